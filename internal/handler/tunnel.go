package handler

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

// TunnelHandler is the simplest possible Handler: it dials Target and copies
// bytes bidirectionally between the accepted stream and the dialed
// connection until either side closes, independent of any HTTP semantics.
// It is the config schema's `tunnel{target}` handler variant.
type TunnelHandler struct {
	Target string
	Logger *zap.Logger

	// Dial defaults to (&net.Dialer{}).DialContext; overridable for tests.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

func (h *TunnelHandler) Handle(ctx context.Context, s stream.Stream, _ rpctx.Context) error {
	defer s.Close()

	dial := h.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	upstream, err := dial(ctx, "tcp", h.Target)
	if err != nil {
		return rpcerr.Upstream("tunnel-dial", err)
	}
	defer upstream.Close()

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(upstream, s)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(s, upstream)
		errc <- err
	}()

	// Wait for either direction to finish (a clean EOF or an error); the
	// other direction is aborted by closing both ends on return.
	err = <-errc
	if err != nil {
		l := h.Logger
		if l == nil {
			l = zap.NewNop()
		}
		l.Debug("tunnel copy ended", zap.Error(err))
	}
	return nil
}

var _ Handler = (*TunnelHandler)(nil)
