package pool

import "net/http"

// Reservation is a move-only scoped holder of one pooled connection. On
// Release it returns the connection to the pool keyed by the original URI
// exactly once; if the connection is irrecoverably broken, it drops it
// (closes it) instead of returning it. Release must not block the caller:
// the actual pool-map mutation happens in a spawned goroutine.
type Reservation struct {
	pool *Pool
	key  string
	conn Conn

	released bool
}

// RoundTrip sends req over the reserved connection.
func (r *Reservation) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.conn.RoundTrip(req)
}

// Conn exposes the underlying pooled connection, e.g. so callers can check
// HTTP version before building the outbound request.
func (r *Reservation) Conn() Conn { return r.conn }

// Release returns the connection to the pool (or drops it if broken),
// asynchronously so the caller's goroutine never blocks on the pool's
// mutex. Safe to call multiple times; only the first call has any effect.
func (r *Reservation) Release() {
	if r.released {
		return
	}
	r.released = true

	pool, key, conn := r.pool, r.key, r.conn
	go func() {
		if conn.Closed() {
			conn.Close()
			return
		}
		pool.release(key, conn)
	}()
}

// Drop unconditionally closes the connection instead of returning it to the
// pool, for callers that know the connection can't be reused (e.g. after an
// upgrade tunnel has consumed it).
func (r *Reservation) Drop() {
	if r.released {
		return
	}
	r.released = true
	conn := r.conn
	go func() { _ = conn.Close() }()
}
