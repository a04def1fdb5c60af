// Package accesslog implements LogLayer, a Service wrapper that emits one
// NCSA-extended access-log line per request (spec §4.6).
package accesslog

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
)

// Layer wraps an inner Service, writing one access-log line to Writer per
// call. Writes are serialized through a mutex and flushed (for an
// *os.File-backed Writer that means Sync; for a plain io.Writer there's
// nothing more to do than the Write call itself) before the call returns,
// matching the "atomically emitted" ordering guarantee in the design notes.
type Layer struct {
	Inner  service.Service
	Writer io.Writer

	mu sync.Mutex
}

// now is overridable in tests; defaults to time.Now.
var now = time.Now

func (l *Layer) Call(req *http.Request) (*http.Response, error) {
	addr := "-"
	if connCtx, ok := rpctx.ConnContext(req); ok && connCtx.Addr != nil {
		addr = connCtx.Addr.String()
	}

	timestamp := now().Format("[02/Jan/2006:15:04:05 -0700]")
	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}
	referer := req.Header.Get("Referer")
	userAgent := req.Header.Get("User-Agent")

	resp, err := l.Inner.Call(req)

	status := http.StatusInternalServerError
	bytes := int64(0)
	if err == nil {
		status = resp.StatusCode
		bytes = resp.ContentLength
		if bytes < 0 {
			bytes = 0
		}
	}

	line := fmt.Sprintf("%s - - %s \"%s\" %d %d \"%s\" \"%s\"\n",
		addr, timestamp, pathAndQuery, status, bytes, referer, userAgent)

	l.mu.Lock()
	_, writeErr := io.WriteString(l.Writer, line)
	if f, ok := l.Writer.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
	l.mu.Unlock()
	_ = writeErr

	return resp, err
}

var _ service.Service = (*Layer)(nil)
