package handler

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

// Listener binds a TCP address and spawns one task per accepted connection,
// building the initial Context (peer address only) before invoking the root
// Handler. Accept errors are fatal to the loop; per-connection errors are
// logged and do not affect the listener, matching the teacher's
// listeners.go posture of isolating per-conn failures from the accept loop.
type Listener struct {
	Addr   string
	Root   Handler
	Logger *zap.Logger
}

// Run binds Addr and serves until ctx is cancelled or a fatal accept error
// occurs. On ctx cancellation it stops accepting and returns nil once the
// listener socket is closed; in-flight connection tasks are not waited on
// here (graceful drain is the caller's responsibility if desired).
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.Addr)
	if err != nil {
		return rpcerr.IO("listen", err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return rpcerr.IO("accept", err)
		}

		go l.serve(ctx, conn)
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	logger := l.logger()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		// Non-TCP listeners aren't part of this design, but don't panic.
		conn.Close()
		return
	}

	var addr net.IP
	if host, _, err := net.SplitHostPort(tcpConn.RemoteAddr().String()); err == nil {
		addr = net.ParseIP(host)
	}

	rc := rpctx.Context{Addr: addr}
	s := stream.NewTCP(tcpConn)

	if err := l.Root.Handle(ctx, s, rc); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("connection handler failed", zap.Stringer("peer", tcpConn.RemoteAddr()), zap.Error(err))
	}
}

func (l *Listener) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return zap.NewNop()
}
