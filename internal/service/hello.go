package service

import (
	"io"
	"net/http"
	"strings"
)

// Hello is the trivial terminal service: it always returns 200 OK with body
// "Hello World!", used throughout the spec's end-to-end scenarios as the
// innermost leaf that proves the rest of the chain works.
type Hello struct{}

func (Hello) Call(req *http.Request) (*http.Response, error) {
	body := "Hello World!"
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Status:        http.StatusText(http.StatusOK),
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        http.Header{"Content-Length": {"12"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
	return resp, nil
}

var _ Service = Hello{}
