package tlslayer

import (
	"crypto/tls"
	"net"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/stream"
)

// tryKernelOffload attempts to hand the established TLS session's record
// encryption/decryption over to the kernel (kTLS), freeing the userspace
// record layer from doing it on every read/write.
//
// Kernel TLS offload is only meaningful when the underlying stream is a raw
// OS socket (it needs a real file descriptor to attach the ULP to); the
// Stream variant's generic arm has none, so offload is skipped there ("not
// ready for offload", per the design notes). This implementation does not
// perform the Linux-specific setsockopt(TCP_ULP) dance itself — that's a
// kernel/platform integration with no general cross-platform Go API, and
// pulling in a raw-syscall dependency for it is out of scope for the core
// composition pipeline this package is responsible for. It stays a seam:
// conn is returned unchanged, logged at Debug, so callers still get a
// working (just non-offloaded) TLS stream rather than failing the
// connection.
func tryKernelOffload(conn *tls.Conn, logger *zap.Logger) net.Conn {
	if _, ok := underlyingTCP(conn); !ok {
		logger.Debug("ktls requested but underlying stream has no raw fd; not ready for offload")
		return conn
	}

	logger.Debug("ktls offload not available on this build; using userspace TLS record layer")
	return conn
}

func underlyingTCP(conn *tls.Conn) (*net.TCPConn, bool) {
	base := conn.NetConn()
	if ck, ok := base.(*corkedConn); ok {
		base = ck.Conn
	}
	if sc, ok := base.(streamConn); ok {
		return sc.TCPConn()
	}
	return nil, false
}

// finishTLS wraps the handshaked TLS connection as a Stream, attempting
// kernel offload first if requested.
func finishTLS(conn *tls.Conn, ktls bool, logger *zap.Logger) stream.Stream {
	if !ktls {
		return stream.NewGeneric(conn)
	}
	offloaded := tryKernelOffload(conn, logger)
	if tc, ok := offloaded.(*net.TCPConn); ok {
		return stream.NewTCP(tc)
	}
	return stream.NewGeneric(offloaded)
}
