package tlslayer

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irtimmer/rproxy/internal/handler"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/stream"
)

func TestEagerHandlerSetsContextAndDispatches(t *testing.T) {
	cert := generateTestCert(t, "example.com")

	invoked := make(chan rpctx.Context, 1)
	inner := handler.HandlerFunc(func(_ context.Context, s stream.Stream, rc rpctx.Context) error {
		invoked <- rc
		return s.Close()
	})

	h := &EagerHandler{Cert: cert, Inner: inner}

	serverRaw, clientRaw := net.Pipe()
	go func() {
		_ = h.Handle(context.Background(), stream.NewGeneric(serverRaw), rpctx.Context{})
	}()

	clientConn := tls.Client(clientRaw, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"http/1.1"},
	})
	require.NoError(t, clientConn.HandshakeContext(context.Background()))
	clientConn.Close()

	select {
	case rc := <-invoked:
		require.True(t, rc.Secure)
	case <-time.After(time.Second):
		t.Fatal("inner handler was not invoked")
	}
}

// generateTestCert is a test helper producing a minimal self-signed
// certificate, used wherever a test needs a valid tls.Certificate without
// depending on the filesystem certloader.
func generateTestCert(t *testing.T, cn string) tls.Certificate {
	t.Helper()
	return selfSignedCert(t, cn)
}
