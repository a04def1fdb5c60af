// Package reverseproxy implements ProxyService, the HTTP service that
// forwards requests to an upstream URI through the pooled client, including
// protocol-upgrade tunneling (spec §4.4).
package reverseproxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/irtimmer/rproxy/internal/pool"
	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/service"
)

// Service forwards every call to Upstream through Pool, rewriting the
// outbound URI and headers per the negotiated upstream HTTP version and
// handling 101 Switching Protocols by handing back a response whose Body is
// the raw upstream duplex stream (mirroring net/http/httputil's own
// handleUpgradeResponse convention), ready for the ingress pipeline to
// splice onto the hijacked client connection.
type Service struct {
	Upstream *url.URL
	Pool     *pool.Pool
	Logger   *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) Call(req *http.Request) (*http.Response, error) {
	reservation, err := s.Pool.Get(req.Context(), s.Upstream)
	if err != nil {
		return nil, rpcerr.Upstream("acquire-reservation", err)
	}

	isHTTP2Upstream := reservation.Conn().Proto() == "HTTP/2.0"

	outURL := *req.URL
	if isHTTP2Upstream {
		outURL.Scheme = s.Upstream.Scheme
		outURL.Host = s.Upstream.Host
	} else {
		outURL.Scheme = ""
		outURL.Host = ""
	}

	upgrade := httpguts.HeaderValuesContainsToken(req.Header["Connection"], "Upgrade")

	outReq := req.Clone(req.Context())
	outReq.URL = &outURL
	outReq.RequestURI = ""
	outReq.Header = req.Header.Clone()

	if isHTTP2Upstream {
		outReq.Host = s.Upstream.Host
	} else {
		outReq.Host = req.Host
	}

	if upgrade {
		outReq.Body = http.NoBody
		outReq.ContentLength = 0
	} else {
		outReq.Body = req.Body
	}

	resp, err := reservation.RoundTrip(outReq)
	if err != nil {
		reservation.Drop()
		s.logger().Error("upstream round trip failed", zap.Error(err), zap.Stringer("upstream", s.Upstream))
		return nil, rpcerr.Upstream(fmt.Sprintf("round trip to %s", s.Upstream), err)
	}

	if resp.StatusCode == http.StatusSwitchingProtocols {
		hj, ok := reservation.Conn().(pool.Hijacker)
		if !ok {
			reservation.Drop()
			return nil, rpcerr.Protocol("upgrade", fmt.Errorf("upstream %s returned 101 but its connection can't be hijacked", s.Upstream))
		}
		// The reservation is deliberately never Released nor Dropped here:
		// ownership of the underlying connection passes to the hijacked
		// duplex stream below, which the ingress pipeline's tunnel copy
		// closes once either side is done.
		resp.Body = hijackedBody{hj.Hijack()}
		return resp, nil
	}

	// Non-upgrade path: the response body must outlive this call (the
	// ingress pipeline streams it to the client), so the reservation is
	// only released once that body is fully read/closed.
	resp.Body = releaseOnClose{ReadCloser: resp.Body, release: reservation.Release}
	return resp, nil
}

// hijackedBody marks a response body as the raw post-101 duplex stream; the
// ingress pipeline type-asserts for io.ReadWriteCloser to find it.
type hijackedBody struct {
	io.ReadWriteCloser
}

// releaseOnClose returns the reservation to the pool the moment the
// response body is closed, so a streamed (not-yet-fully-read) response
// doesn't hold a connection hostage past the handler's own use of it.
type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (r releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.release()
	return err
}

var _ service.Service = (*Service)(nil)
