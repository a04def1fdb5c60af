// Package httpingress implements the HTTP/1.1 + HTTP/2 ingress: ALPN-based
// dispatch, the shared per-request pipeline (extension attachment, HTTP/2
// authority enforcement, URI normalization), and the two protocol
// subhandlers (spec §4.3).
package httpingress

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/irtimmer/rproxy/internal/handler"
	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
	"github.com/irtimmer/rproxy/internal/stream"
)

// Handler composes an HTTP/1 and an HTTP/2 subhandler sharing one
// HttpContext (one session store), dispatching by ctx.ALPN: "h2" goes to
// HTTP/2, everything else (including no ALPN) falls back to HTTP/1.1.
type Handler struct {
	Service service.Service
	HTTPCtx *rpctx.HttpContext
	Logger  *zap.Logger

	// Force pins the subhandler regardless of negotiated ALPN: "h1" or "h2".
	// Empty (the default) dispatches by rc.ALPN, matching the config
	// schema's generic "http" variant; "http1"/"http2" variants set this to
	// pin a single protocol (e.g. HTTP/2 cleartext with no TLS/ALPN at all).
	Force string
}

func (h *Handler) ALPNProtocols() []string {
	switch h.Force {
	case "h1":
		return []string{"http/1.1"}
	case "h2":
		return []string{"h2"}
	default:
		return []string{"h2", "http/1.1"}
	}
}

func (h *Handler) Handle(ctx context.Context, s stream.Stream, rc rpctx.Context) error {
	root := &rootHandler{service: h.Service, httpCtx: h.HTTPCtx, connCtx: rc, logger: logger(h.Logger)}

	useHTTP2 := h.Force == "h2" || (h.Force == "" && rc.ALPN == "h2")
	if useHTTP2 {
		return serveHTTP2(ctx, s, root)
	}
	return serveHTTP1(ctx, s, root)
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// serveHTTP1 serves the connection with net/http's server. Header names are
// canonicalized by net/http when requests are parsed and when the response
// headers are copied (writeResponse uses Header.Add), so their original case
// is not preserved. Upgrade support is enabled implicitly: http.Server hands
// Hijack-capable ResponseWriters to handlers, which is what the
// reverse-proxy service's upgrade tunneling (spec §4.4 step 6) depends on.
func serveHTTP1(ctx context.Context, s stream.Stream, root http.Handler) error {
	var ln *singleConnListener
	conn := closeNotifyConn{Conn: toNetConn(s, nil), onClose: func() {
		if ln != nil {
			ln.Close()
		}
	}}
	ln = newSingleConnListener(conn)

	srv := &http.Server{
		Handler:     root,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	err := srv.Serve(ln)
	if err != nil && err.Error() != "singleconn: listener closed" {
		return rpcerr.HTTP("serve-http1", err)
	}
	return nil
}

// serveHTTP2 serves one HTTP/2 connection (already past ALPN negotiation,
// so no additional protocol sniffing is needed) using the standard
// multiplexed framing via golang.org/x/net/http2.
func serveHTTP2(ctx context.Context, s stream.Stream, root http.Handler) error {
	conn := toNetConn(s, nil)
	h2s := &http2.Server{}
	h2s.ServeConn(conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: root,
	})
	return nil
}

var _ handler.Handler = (*Handler)(nil)
var _ handler.ALPNAdvertiser = (*Handler)(nil)
