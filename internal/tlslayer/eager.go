// Package tlslayer implements the TLS-terminating handlers: an eager
// single-certificate handler and a lazy SNI-dispatching handler, both
// producing a Stream with ctx.Secure/ALPN/ServerName populated before
// handing off to an inner handler (spec §4.2).
package tlslayer

import (
	"context"
	"crypto/tls"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/handler"
	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

// EagerHandler performs a TLS handshake using a single, fixed certificate
// chain, immediately upon Handle being called (no deferred ClientHello
// peek). It advertises whatever ALPN protocols its Inner handler wants.
type EagerHandler struct {
	Cert   tls.Certificate
	Inner  handler.Handler
	KTLS   bool
	Logger *zap.Logger
}

func (h *EagerHandler) ALPNProtocols() []string {
	return innerALPN(h.Inner)
}

func (h *EagerHandler) Handle(ctx context.Context, s stream.Stream, rc rpctx.Context) error {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{h.Cert},
		NextProtos:   h.ALPNProtocols(),
	}

	conn := newCorkedConn(toNetConn(s), defaultCorkSize)
	tlsConn := tls.Server(conn, cfg)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return rpcerr.TLS("handshake", err)
	}
	if err := conn.Flush(); err != nil {
		return rpcerr.TLS("flush", err)
	}

	state := tlsConn.ConnectionState()
	rc = rc.WithSecure()
	rc.ServerName = state.ServerName
	if state.NegotiatedProtocol != "" {
		// NegotiatedProtocol is already a Go string, and the server only
		// ever selects one of its own configured NextProtos, so there is no
		// decoding step here that could fail.
		rc.ALPN = state.NegotiatedProtocol
	}

	outStream := finishTLS(tlsConn, h.KTLS, logger(h.Logger))

	if h.Inner == nil {
		return rpcerr.Protocolf("eager-tls", "no inner handler configured")
	}
	return h.Inner.Handle(ctx, outStream, rc)
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func innerALPN(h handler.Handler) []string {
	if a, ok := h.(handler.ALPNAdvertiser); ok {
		return a.ALPNProtocols()
	}
	return nil
}

var _ handler.Handler = (*EagerHandler)(nil)
var _ handler.ALPNAdvertiser = (*EagerHandler)(nil)
