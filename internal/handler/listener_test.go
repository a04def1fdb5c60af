package handler

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

func TestListenerInvokesRootWithPeerAddr(t *testing.T) {
	invoked := make(chan rpctx.Context, 1)
	root := HandlerFunc(func(_ context.Context, s stream.Stream, rc rpctx.Context) error {
		invoked <- rc
		s.Close()
		return nil
	})

	l := &Listener{Addr: "127.0.0.1:0", Root: root}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	l.Addr = addr

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case rc := <-invoked:
		require.NotNil(t, rc.Addr)
		require.True(t, rc.Addr.IsLoopback())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handler invocation")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestListenerLogsPerConnectionErrorsAndContinues(t *testing.T) {
	var calls int
	root := HandlerFunc(func(_ context.Context, s stream.Stream, _ rpctx.Context) error {
		calls++
		defer s.Close()
		if calls == 1 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})

	l := &Listener{Addr: "127.0.0.1:0", Root: root}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	l.Addr = addr

	go l.Run(ctx)

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conn.Close()
		time.Sleep(10 * time.Millisecond)
	}

	// The readiness probe above is itself an accepted connection (and the
	// one whose handler fails), so root runs once for it and once for each
	// of the two connections after it.
	require.Eventually(t, func() bool { return calls == 3 }, time.Second, 5*time.Millisecond)
}
