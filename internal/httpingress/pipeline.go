package httpingress

import (
	"bufio"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
)

// rootHandler implements http.Handler for a connection's request stream: it
// is shared verbatim by the HTTP/1.1 and HTTP/2 subhandlers (spec §4.3,
// "Per-request pipeline (shared)").
type rootHandler struct {
	service service.Service
	httpCtx *rpctx.HttpContext
	connCtx rpctx.Context
	logger  *zap.Logger
}

func (h *rootHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	req = rpctx.WithHTTPContext(req, h.httpCtx)
	req = rpctx.WithConnContext(req, h.connCtx)

	if req.ProtoMajor == 2 && h.connCtx.Secure {
		authorityHost := hostOnly(req.Host)
		if authorityHost != h.connCtx.ServerName {
			w.WriteHeader(http.StatusMisdirectedRequest)
			return
		}
	}

	normalized := normalizePath(req.URL.Path)
	if len(normalized) != len(req.URL.Path) {
		newURL := *req.URL
		newURL.Path = normalized
		req.URL = &newURL
	}

	resp, err := h.service.Call(req)
	if err != nil {
		h.logger.Error("service call failed", zap.Error(err), zap.String("path", req.URL.Path))
		w.WriteHeader(statusForErr(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusSwitchingProtocols {
		if upstream, ok := resp.Body.(io.ReadWriteCloser); ok {
			h.tunnelUpgrade(w, resp, upstream)
			return
		}
	}

	writeResponse(w, resp)
}

// statusForErr maps a service error's rpcerr.Kind to the status code the
// ingress reports to the client: auth failures are reported as 403 rather
// than a generic 500, protocol-kind and upstream-kind errors as 502, and
// everything else (including untyped errors) falls back to 500.
func statusForErr(err error) int {
	switch rpcerr.KindOf(err) {
	case rpcerr.KindAuth:
		return http.StatusForbidden
	case rpcerr.KindProtocol, rpcerr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, resp *http.Response) {
	header := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != nil {
		_, _ = io.Copy(w, resp.Body)
	}
}

// tunnelUpgrade splices the hijacked client connection onto upstream, the
// raw post-101 duplex stream the ProxyService handed back, after manually
// writing the mirrored status line and headers — mirroring
// net/http/httputil's own handleUpgradeResponse convention, since
// http.ResponseWriter offers no way to send a 101 and then keep using the
// connection for anything but the hijacked raw bytes.
func (h *rootHandler) tunnelUpgrade(w http.ResponseWriter, resp *http.Response, upstream io.ReadWriteCloser) {
	defer upstream.Close()

	hj, ok := w.(http.Hijacker)
	if !ok {
		h.logger.Error("upgrade requested but connection doesn't support hijacking")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	client, clientBuf, err := hj.Hijack()
	if err != nil {
		h.logger.Error("hijack failed", zap.Error(err))
		return
	}
	defer client.Close()

	if err := writeSwitchingProtocols(clientBuf.Writer, resp); err != nil {
		h.logger.Debug("writing 101 response failed", zap.Error(err))
		return
	}

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(upstream, clientBuf.Reader)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(client, upstream)
		errc <- err
	}()
	if err := <-errc; err != nil {
		h.logger.Debug("tunnel copy ended", zap.Error(err))
	}
}

func writeSwitchingProtocols(w *bufio.Writer, resp *http.Response) error {
	if _, err := w.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if err := resp.Header.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// hostOnly strips an optional ":port" suffix from hostport.
func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
