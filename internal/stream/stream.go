// Package stream provides the polymorphic byte-stream type shared by every
// handler in the composition pipeline: a concrete-TCP fast path (so TLS
// handlers can reach the raw file descriptor for kernel offload) and a
// type-erased fallback for anything else (a TLS session, a Unix socket, a
// wrapped kTLS conn).
package stream

import (
	"io"
	"net"
)

// Stream is a duplex byte conduit. Exactly one handler owns it at a time;
// ownership transfers by passing it into an inner Handler or a protocol
// server, and the stream's lifetime ends when the last owner returns or
// closes it.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// TCPConn returns the underlying *net.TCPConn and true if this Stream's
	// fast path is a raw TCP connection (exposing the fd for kTLS offload
	// and the peer address); otherwise it returns (nil, false).
	TCPConn() (*net.TCPConn, bool)
}

// tcpStream is the TCP fast-path representation.
type tcpStream struct {
	conn *net.TCPConn
}

// NewTCP wraps a raw TCP connection as a Stream, preserving the fast path.
func NewTCP(conn *net.TCPConn) Stream {
	return tcpStream{conn: conn}
}

func (t tcpStream) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t tcpStream) Write(p []byte) (int, error) { return t.conn.Write(p) }
func (t tcpStream) Close() error                { return t.conn.Close() }

func (t tcpStream) TCPConn() (*net.TCPConn, bool) { return t.conn, true }

// genericStream is the type-erased representation: anything that can read,
// write and close, but offers no raw socket fast path.
type genericStream struct {
	io.ReadWriteCloser
}

// NewGeneric wraps any readable/writable byte sink (a TLS session, a Unix
// socket, an already-offloaded kTLS conn) as a Stream with no TCP fast path.
func NewGeneric(rwc io.ReadWriteCloser) Stream {
	return genericStream{rwc}
}

func (genericStream) TCPConn() (*net.TCPConn, bool) { return nil, false }

// PeerAddr returns the best-effort remote address of s, or nil if s exposes
// none (e.g. it has already been wrapped past the point of knowing).
func PeerAddr(s Stream) net.Addr {
	if tc, ok := s.TCPConn(); ok {
		return tc.RemoteAddr()
	}
	if ra, ok := s.(interface{ RemoteAddr() net.Addr }); ok {
		return ra.RemoteAddr()
	}
	return nil
}

