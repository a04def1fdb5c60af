// Package rpctx carries the per-connection and per-proxy metadata that
// flows down the handler chain and into every HTTP request's extensions.
package rpctx

import (
	"context"
	"net"
	"net/http"
)

// Context is per-connection metadata, mutated by layer as a connection is
// accepted and (optionally) TLS-terminated. It is cloned into every inbound
// HTTP request's extensions so services see a consistent snapshot.
//
// ctx.Secure is monotonic: once a handler sets it true, nothing downstream
// may reset it to false.
type Context struct {
	Secure     bool
	Addr       net.IP
	ALPN       string
	ServerName string
}

// Clone returns a copy of c safe for independent mutation by an inner
// handler (e.g. a nested TLS handler enriching ALPN/ServerName without
// affecting a sibling branch of the handler tree).
func (c Context) Clone() Context {
	return c
}

// WithSecure returns a copy of c with Secure forced true. It never clears
// Secure, preserving the monotonicity invariant.
func (c Context) WithSecure() Context {
	c.Secure = true
	return c
}

type contextKey int

const (
	connContextKey contextKey = iota
	httpContextKey
)

// HttpContext is process-shared state for one HTTP ingress: currently just
// the session store used by the Authenticator layer. One instance is
// created per HttpHandler and cloned (by reference; it is itself a handle)
// into every request's extensions.
type HttpContext struct {
	Sessions SessionStore
}

// SessionStore is the external key/value-with-TTL collaborator the
// Authenticator depends on. Session values are opaque string-keyed maps;
// the store itself does not interpret them.
type SessionStore interface {
	// Load returns the session for cookie, or ok=false if it doesn't exist
	// or has expired.
	Load(cookie string) (Session, bool)
	// Save persists sess under cookie (minting a fresh cookie if cookie is
	// empty) and returns the cookie value now in effect, which may be
	// unchanged from the one passed in.
	Save(cookie string, sess Session) (newCookie string, err error)
}

// Session is an opaque, mutable bag of string values. It carries no expiry
// of its own; expiry is tracked by the SessionStore.
type Session map[string]string

// Request extension helpers.

// WithConnContext attaches ctx to req's Context so downstream services can
// retrieve it with ConnContext.
func WithConnContext(req *http.Request, ctx Context) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), connContextKey, ctx))
}

// ConnContext retrieves the Context previously attached by WithConnContext.
func ConnContext(req *http.Request) (Context, bool) {
	v := req.Context().Value(connContextKey)
	c, ok := v.(Context)
	return c, ok
}

// WithHTTPContext attaches hc to req's Context.
func WithHTTPContext(req *http.Request, hc *HttpContext) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), httpContextKey, hc))
}

// FromRequest retrieves the HttpContext previously attached by
// WithHTTPContext.
func FromRequest(req *http.Request) (*HttpContext, bool) {
	v := req.Context().Value(httpContextKey)
	hc, ok := v.(*HttpContext)
	return hc, ok
}
