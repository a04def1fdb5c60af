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

// SNIEntry is one candidate in a LazyHandler's ordered SNI list: a glob
// hostname pattern, the certificate/handler it serves, and the precomputed
// *tls.Config for it (ALPN list derived from Inner's preferences). KTLS
// decides whether finishTLS attempts kernel offload once the handshake is done.
type SNIEntry struct {
	Pattern string
	Cert    tls.Certificate
	Inner   handler.Handler
	KTLS    bool

	config *tls.Config
}

// LazyHandler peeks the ClientHello to read SNI before committing to a
// certificate, choosing the first SNIEntry whose Pattern glob-matches the
// hello's ServerName; if none match, DefaultCert/DefaultInner is used.
type LazyHandler struct {
	DefaultCert  tls.Certificate
	DefaultInner handler.Handler
	DefaultKTLS  bool
	Entries      []SNIEntry
	Logger       *zap.Logger

	defaultConfig *tls.Config
}

// Provision precomputes each entry's *tls.Config (ALPN + certificate) so
// Handle only has to pick one, not build one, per connection.
func (h *LazyHandler) Provision() {
	for i := range h.Entries {
		e := &h.Entries[i]
		e.config = &tls.Config{
			Certificates: []tls.Certificate{e.Cert},
			NextProtos:   innerALPN(e.Inner),
		}
	}
	h.defaultConfig = &tls.Config{
		Certificates: []tls.Certificate{h.DefaultCert},
		NextProtos:   innerALPN(h.DefaultInner),
	}
}

func (h *LazyHandler) ALPNProtocols() []string {
	// A lazy handler's advertised protocols depend on which entry is
	// chosen, which isn't known until the ClientHello arrives; upstream
	// ALPN negotiation for *this* listener therefore has no single static
	// answer, so this returns nil (no opinion) and each entry's own config
	// carries its own NextProtos, applied via GetConfigForClient.
	return nil
}

func (h *LazyHandler) Handle(ctx context.Context, s stream.Stream, rc rpctx.Context) error {
	if h.defaultConfig == nil {
		h.Provision()
	}

	conn := newCorkedConn(toNetConn(s), defaultCorkSize)

	bootstrapCfg := &tls.Config{
		GetConfigForClient: func(chi *tls.ClientHelloInfo) (*tls.Config, error) {
			for _, e := range h.Entries {
				if matchWildcard(e.Pattern, chi.ServerName) {
					return e.config, nil
				}
			}
			return h.defaultConfig, nil
		},
	}

	tlsConn := tls.Server(conn, bootstrapCfg)
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
		rc.ALPN = state.NegotiatedProtocol
	}

	inner, ktls := h.chosenInner(state.ServerName)
	if inner == nil {
		return rpcerr.Protocolf("lazy-tls", "no inner handler configured")
	}

	outStream := finishTLS(tlsConn, ktls, logger(h.Logger))
	return inner.Handle(ctx, outStream, rc)
}

func (h *LazyHandler) chosenInner(serverName string) (handler.Handler, bool) {
	for _, e := range h.Entries {
		if matchWildcard(e.Pattern, serverName) {
			return e.Inner, e.KTLS
		}
	}
	return h.DefaultInner, h.DefaultKTLS
}

var _ handler.Handler = (*LazyHandler)(nil)
var _ handler.ALPNAdvertiser = (*LazyHandler)(nil)
