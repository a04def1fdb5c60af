// Package rpcerr defines the small set of typed errors that cross handler
// and service boundaries, so callers can decide how to respond (§7 of the
// design spec) without string-matching error text.
package rpcerr

import "fmt"

// Kind classifies an error at the core boundary.
type Kind string

const (
	KindIO       Kind = "io"
	KindTLS      Kind = "tls"
	KindHTTP     Kind = "http"
	KindProtocol Kind = "protocol"
	KindUpstream Kind = "upstream"
	KindAuth     Kind = "auth"
	KindConfig   Kind = "config"
)

// Error is a Kind-tagged, wrapped error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func IO(op string, err error) error       { return wrap(KindIO, op, err) }
func TLS(op string, err error) error      { return wrap(KindTLS, op, err) }
func HTTP(op string, err error) error     { return wrap(KindHTTP, op, err) }
func Protocol(op string, err error) error { return wrap(KindProtocol, op, err) }
func Upstream(op string, err error) error { return wrap(KindUpstream, op, err) }
func Auth(op string, err error) error     { return wrap(KindAuth, op, err) }
func Config(op string, err error) error   { return wrap(KindConfig, op, err) }

func Protocolf(op, format string, args ...any) error { return newf(KindProtocol, op, format, args...) }
func Authf(op, format string, args ...any) error     { return newf(KindAuth, op, format, args...) }
func Configf(op, format string, args ...any) error   { return newf(KindConfig, op, format, args...) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindIO for anything else.
func KindOf(err error) Kind {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind
	}
	return KindIO
}

// As is a hand-written errors.As for *Error: it follows single-error
// Unwrap() chains only (not Unwrap() []error), and is kept local to avoid
// importing errors in call sites that only need Kind classification.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
