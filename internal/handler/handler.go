// Package handler defines the Handler contract shared by every composite and
// terminal unit in the connection pipeline (TLS, HTTP ingress, tunnel), and
// the Listener that drives it.
package handler

import (
	"context"

	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

// Handler accepts a Stream plus the Context accumulated so far, and either
// consumes the stream to completion or hands it to an inner handler.
// Implementations must be safe for concurrent use by multiple connections;
// a Listener holds exactly one shared instance.
type Handler interface {
	Handle(ctx context.Context, s stream.Stream, rc rpctx.Context) error
}

// ALPNAdvertiser is implemented by handlers that want a say in which ALPN
// protocols a wrapping TLS handler advertises during the handshake (e.g. an
// HttpHandler advertises ["h2", "http/1.1"]). Handlers with no opinion
// simply don't implement this interface.
type ALPNAdvertiser interface {
	ALPNProtocols() []string
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, s stream.Stream, rc rpctx.Context) error

func (f HandlerFunc) Handle(ctx context.Context, s stream.Stream, rc rpctx.Context) error {
	return f(ctx, s, rc)
}
