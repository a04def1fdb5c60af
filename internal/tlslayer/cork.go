package tlslayer

import (
	"bufio"
	"net"
)

// corkedConn batches the TLS handshake's writes through a buffered writer so
// each handshake flight reaches the socket in as few Write calls as possible.
// While corked it flushes before every Read (the peer cannot answer a flight
// it has not received), once buffered bytes exceed the corking window, and
// on Close. Flush, called once the handshake completes, sends whatever is
// still buffered and uncorks the connection: later writes go straight to the
// underlying conn. The handshake's last record and the first application-data
// record are therefore written by separate Write calls, not one.
type corkedConn struct {
	net.Conn
	w *bufio.Writer

	uncorked bool
}

const defaultCorkSize = 4096

// newCorkedConn wraps conn so writes are buffered up to size bytes.
func newCorkedConn(conn net.Conn, size int) *corkedConn {
	if size <= 0 {
		size = defaultCorkSize
	}
	return &corkedConn{Conn: conn, w: bufio.NewWriterSize(conn, size)}
}

func (c *corkedConn) Write(p []byte) (int, error) {
	if c.uncorked {
		return c.Conn.Write(p)
	}
	return c.w.Write(p)
}

func (c *corkedConn) Read(p []byte) (int, error) {
	if !c.uncorked {
		if err := c.w.Flush(); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

// Flush sends any corked bytes and uncorks the connection. Called once the
// TLS handshake completes, before the stream is handed to an inner handler.
func (c *corkedConn) Flush() error {
	c.uncorked = true
	return c.w.Flush()
}

func (c *corkedConn) Close() error {
	_ = c.w.Flush()
	return c.Conn.Close()
}
