// Package pool implements the pooled HTTP client used by the reverse-proxy
// service and the OIDC authenticator: a FIFO connection pool keyed by
// upstream URI, ALPN-selected HTTP/1 vs HTTP/2, and Unix/HTTP/HTTPS dialing
// (spec §4.5).
package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// Conn is one pooled connection: either an HTTP/1 sender or an HTTP/2
// sender, each independently checkable for readiness/closedness.
type Conn interface {
	// Ready reports whether the connection can accept another request
	// right now (for HTTP/1 this generally means "not currently in use";
	// for HTTP/2 it means the connection isn't closed and hasn't hit its
	// stream concurrency limit).
	Ready() bool
	// Closed reports whether the connection is known to be dead.
	Closed() bool
	// RoundTrip sends req and returns the response, the way
	// http.RoundTripper does.
	RoundTrip(req *http.Request) (*http.Response, error)
	// Close tears down the connection.
	Close() error
	// Proto reports the negotiated protocol, "HTTP/1.1" or "HTTP/2.0", so
	// callers can build the outbound request the way the upstream version
	// requires (spec §4.4 step 2).
	Proto() string
}

// Hijacker is implemented by pooled connections that support handing their
// raw duplex stream over for exclusive use, bypassing the pool entirely.
// Only HTTP/1 upstream connections support this: it backs the reverse-proxy
// service's protocol-upgrade tunneling (spec §4.4 step 6).
type Hijacker interface {
	Hijack() io.ReadWriteCloser
}

// Pool is a map<URI, FIFO<Connection>> behind an asynchronous mutex,
// exactly as described in the design notes. Get pops ready
// entries from the front, skipping and discarding dead ones; if none are
// ready, Dialer.Dial is used to establish a fresh one.
type Pool struct {
	Dialer Dialer
	Logger *zap.Logger

	mu    sync.Mutex
	conns map[string][]Conn
}

// Dialer is the seam the pool uses to establish a new connection for a
// not-yet-pooled (or exhausted) upstream key.
type Dialer interface {
	Dial(ctx context.Context, upstream *url.URL) (Conn, error)
}

// NewPool constructs an empty Pool using dialer to establish new
// connections.
func NewPool(dialer Dialer, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{Dialer: dialer, Logger: logger, conns: make(map[string][]Conn)}
}

func key(u *url.URL) string {
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// Get returns a Reservation wrapping a ready connection for upstream,
// reusing a pooled one (FIFO: least-recently-returned first) if available,
// otherwise dialing a fresh one.
func (p *Pool) Get(ctx context.Context, upstream *url.URL) (*Reservation, error) {
	k := key(upstream)

	p.mu.Lock()
	queue := p.conns[k]
	var chosen Conn
	consumed := len(queue)
	for i, c := range queue {
		if c.Closed() || !c.Ready() {
			continue
		}
		chosen = c
		consumed = i + 1
		break
	}
	// Drop everything up to and including the connection we took (or
	// everything, if none were usable) — dead/not-ready entries are never
	// put back.
	p.conns[k] = queue[consumed:]
	p.mu.Unlock()

	if chosen != nil {
		return &Reservation{pool: p, key: k, conn: chosen}, nil
	}

	conn, err := p.Dialer.Dial(ctx, upstream)
	if err != nil {
		return nil, err
	}
	return &Reservation{pool: p, key: k, conn: conn}, nil
}

// release returns conn to the back of key's queue, unless it's already
// dead, matching the invariant that the pool never hands out a closed or
// not-ready connection.
func (p *Pool) release(key string, conn Conn) {
	if conn.Closed() {
		return
	}
	p.mu.Lock()
	p.conns[key] = append(p.conns[key], conn)
	p.mu.Unlock()
}
