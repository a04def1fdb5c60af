package tlslayer

import (
	"net"
	"time"

	"github.com/irtimmer/rproxy/internal/stream"
)

// streamConn adapts a stream.Stream to net.Conn so the stdlib tls package
// can perform a handshake over it. When the underlying Stream has a TCP
// fast path, addressing and deadlines are delegated to the real socket;
// otherwise they're no-ops, which is fine because those generic streams
// (already-terminated TLS, Unix sockets) don't need re-deadlining here.
type streamConn struct {
	stream.Stream
}

func toNetConn(s stream.Stream) net.Conn {
	return streamConn{s}
}

func (c streamConn) LocalAddr() net.Addr {
	if tc, ok := c.TCPConn(); ok {
		return tc.LocalAddr()
	}
	return nil
}

func (c streamConn) RemoteAddr() net.Addr {
	return stream.PeerAddr(c.Stream)
}

func (c streamConn) SetDeadline(t time.Time) error {
	if tc, ok := c.TCPConn(); ok {
		return tc.SetDeadline(t)
	}
	return nil
}

func (c streamConn) SetReadDeadline(t time.Time) error {
	if tc, ok := c.TCPConn(); ok {
		return tc.SetReadDeadline(t)
	}
	return nil
}

func (c streamConn) SetWriteDeadline(t time.Time) error {
	if tc, ok := c.TCPConn(); ok {
		return tc.SetWriteDeadline(t)
	}
	return nil
}
