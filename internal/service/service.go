// Package service defines the HTTP Service contract and the terminal
// services (Hello, File) and composite Router that sit at the leaves of the
// request-handling tree (spec §4.4).
package service

import "net/http"

// Service is the HTTP analogue of handler.Handler: call it with a request,
// get back a response or an error. Layers (log, authenticator) wrap an
// inner Service; Router dispatches by the first matching prefix.
type Service interface {
	Call(req *http.Request) (*http.Response, error)
}

// Func adapts a plain function to the Service interface.
type Func func(req *http.Request) (*http.Response, error)

func (f Func) Call(req *http.Request) (*http.Response, error) { return f(req) }
