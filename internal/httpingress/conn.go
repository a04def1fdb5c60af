package httpingress

import (
	"net"
	"time"

	"github.com/irtimmer/rproxy/internal/stream"
)

// streamConn adapts a stream.Stream to net.Conn so stdlib/x-net HTTP
// servers (which only know how to Serve a net.Conn) can drive it.
type streamConn struct {
	stream.Stream
	addr net.Addr
}

func toNetConn(s stream.Stream, addr net.Addr) net.Conn {
	return streamConn{Stream: s, addr: addr}
}

func (c streamConn) LocalAddr() net.Addr { return nil }

func (c streamConn) RemoteAddr() net.Addr {
	if c.addr != nil {
		return c.addr
	}
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
