package pool

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	ready  bool
	closed bool
	id     string
}

func (c *fakeConn) Ready() bool  { return c.ready && !c.closed }
func (c *fakeConn) Closed() bool { return c.closed }
func (c *fakeConn) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK}, nil
}
func (c *fakeConn) Close() error  { c.closed = true; return nil }
func (c *fakeConn) Proto() string { return "HTTP/1.1" }

type fakeDialer struct {
	dials int
	next  func() (Conn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, upstream *url.URL) (Conn, error) {
	d.dials++
	if d.next != nil {
		return d.next()
	}
	return &fakeConn{ready: true, id: "fresh"}, nil
}

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestPoolDialsWhenEmpty(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)

	r, err := p.Get(context.Background(), mustURL(t, "http://upstream.example"))
	require.NoError(t, err)
	require.Equal(t, 1, dialer.dials)
	r.Release()
}

func TestPoolReusesReleasedConnection(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)
	upstream := mustURL(t, "http://upstream.example")

	r1, err := p.Get(context.Background(), upstream)
	require.NoError(t, err)
	first := r1.Conn()
	r1.Release()

	require.Eventually(t, func() bool {
		r2, err := p.Get(context.Background(), upstream)
		if err != nil {
			return false
		}
		defer r2.Release()
		return r2.Conn() == first && dialer.dials == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPoolSkipsDeadAndNotReadyConnections(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)
	upstream := mustURL(t, "http://upstream.example")

	dead := &fakeConn{ready: true, closed: true, id: "dead"}
	notReady := &fakeConn{ready: false, id: "busy"}
	live := &fakeConn{ready: true, id: "live"}
	p.conns[key(upstream)] = []Conn{dead, notReady, live}

	r, err := p.Get(context.Background(), upstream)
	require.NoError(t, err)
	require.Same(t, live, r.Conn())
	require.Equal(t, 0, dialer.dials)
	r.Release()
}

func TestPoolFIFOOrder(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)
	upstream := mustURL(t, "http://upstream.example")

	a := &fakeConn{ready: true, id: "a"}
	b := &fakeConn{ready: true, id: "b"}
	p.conns[key(upstream)] = []Conn{a, b}

	r, err := p.Get(context.Background(), upstream)
	require.NoError(t, err)
	require.Same(t, a, r.Conn())

	p.mu.Lock()
	remaining := p.conns[key(upstream)]
	p.mu.Unlock()
	require.Equal(t, []Conn{b}, remaining)
}

func TestReservationDropClosesConnectionWithoutReturningToPool(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)
	upstream := mustURL(t, "http://upstream.example")

	r, err := p.Get(context.Background(), upstream)
	require.NoError(t, err)
	conn := r.Conn().(*fakeConn)
	r.Drop()

	require.Eventually(t, func() bool {
		return conn.Closed()
	}, time.Second, 5*time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Empty(t, p.conns[key(upstream)])
}

func TestReservationReleaseDropsClosedConnectionInstead(t *testing.T) {
	dialer := &fakeDialer{}
	p := NewPool(dialer, nil)
	upstream := mustURL(t, "http://upstream.example")

	r, err := p.Get(context.Background(), upstream)
	require.NoError(t, err)
	conn := r.Conn().(*fakeConn)
	conn.closed = true
	r.Release()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.conns[key(upstream)]) == 0
	}, time.Second, 5*time.Millisecond)
}
