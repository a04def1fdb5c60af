package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// netDialer establishes a fresh pooled connection for a not-yet-cached (or
// exhausted) upstream key: unix-socket or TCP connect, optional client TLS
// handshake offering ALPN ["h2","http/1.1"], and HTTP/1-vs-HTTP/2 selection
// by the negotiated protocol (spec §4.5).
type netDialer struct {
	Logger *zap.Logger
}

// NewDialer returns the default Dialer used by the pool in production: it
// understands the unix/http/https upstream schemes the proxy and
// authenticator are configured with.
func NewDialer(logger *zap.Logger) Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &netDialer{Logger: logger}
}

func (d *netDialer) Dial(ctx context.Context, upstream *url.URL) (Conn, error) {
	switch upstream.Scheme {
	case "unix":
		nc, err := (&net.Dialer{}).DialContext(ctx, "unix", upstream.Path)
		if err != nil {
			return nil, fmt.Errorf("pool: dial unix %s: %w", upstream.Path, err)
		}
		return newHTTP1Conn(nc), nil

	case "http":
		addr := hostPort(upstream.Host, "80")
		nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("pool: dial %s: %w", addr, err)
		}
		return newHTTP1Conn(nc), nil

	case "https":
		addr := hostPort(upstream.Host, "443")
		nc, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("pool: dial %s: %w", addr, err)
		}

		host, _, _ := net.SplitHostPort(addr)
		serverName := host
		if net.ParseIP(host) != nil {
			// host is already an IP literal, not usable for SNI; fall back
			// to the peer's address as the server name we record/log.
			serverName = peerHost(nc)
		}

		tlsConn := tls.Client(nc, &tls.Config{
			ServerName: serverName,
			NextProtos: []string{"h2", "http/1.1"},
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("pool: tls handshake with %s: %w", addr, err)
		}

		if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
			t := &http2.Transport{}
			cc, err := t.NewClientConn(tlsConn)
			if err != nil {
				tlsConn.Close()
				return nil, fmt.Errorf("pool: http2 client conn to %s: %w", addr, err)
			}
			return &http2Conn{cc: cc}, nil
		}
		return newHTTP1Conn(tlsConn), nil

	default:
		return nil, fmt.Errorf("pool: unsupported upstream scheme %q", upstream.Scheme)
	}
}

func hostPort(hostport, defaultPort string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, defaultPort)
}

func peerHost(nc net.Conn) string {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return nc.RemoteAddr().String()
	}
	return host
}

// http1Conn is a pooled HTTP/1.1 connection: serial, one in-flight request
// at a time, matching the wire protocol's own pipelining constraints.
type http1Conn struct {
	conn net.Conn
	br   *bufio.Reader

	mu     sync.Mutex
	inUse  bool
	closed bool
}

func newHTTP1Conn(conn net.Conn) *http1Conn {
	return &http1Conn{conn: conn, br: bufio.NewReader(conn)}
}

func (c *http1Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.inUse
}

func (c *http1Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *http1Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("pool: connection closed")
	}
	c.inUse = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inUse = false
		c.mu.Unlock()
	}()

	if err := req.Write(c.conn); err != nil {
		c.Close()
		return nil, fmt.Errorf("pool: write request: %w", err)
	}
	resp, err := http.ReadResponse(c.br, req)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("pool: read response: %w", err)
	}
	return resp, nil
}

func (c *http1Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *http1Conn) Proto() string { return "HTTP/1.1" }

// Hijack hands over the connection's raw duplex stream (reading through the
// buffered reader so bytes already read off the wire but not yet consumed
// by http.ReadResponse aren't lost) for exclusive use by a protocol-upgrade
// tunnel. The pool never sees this connection again.
func (c *http1Conn) Hijack() io.ReadWriteCloser {
	return &hijackedConn{r: c.br, WriteCloser: c.conn}
}

type hijackedConn struct {
	r io.Reader
	io.WriteCloser
}

func (h *hijackedConn) Read(p []byte) (int, error) { return h.r.Read(p) }

var _ Hijacker = (*http1Conn)(nil)

// http2Conn is a pooled HTTP/2 connection backed by golang.org/x/net/http2's
// own multiplexing client; many requests may be in flight concurrently, so
// Ready just defers to the transport's own stream-concurrency bookkeeping.
type http2Conn struct {
	cc *http2.ClientConn
}

func (c *http2Conn) Ready() bool {
	return c.cc.CanTakeNewRequest()
}

func (c *http2Conn) Closed() bool {
	state := c.cc.State()
	return state.Closed || state.Closing
}

func (c *http2Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.cc.RoundTrip(req)
}

func (c *http2Conn) Close() error {
	return c.cc.Close()
}

func (c *http2Conn) Proto() string { return "HTTP/2.0" }

var _ Conn = (*http1Conn)(nil)
var _ Conn = (*http2Conn)(nil)
