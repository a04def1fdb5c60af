package service

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/irtimmer/rproxy/internal/rpcerr"
)

// Route pairs a path prefix with the Service that serves requests under it.
type Route struct {
	Prefix  string
	Service Service
}

// Router dispatches by the first Route whose Prefix is a prefix of the
// request path, rewriting the URI by stripping (len(prefix)-1) characters
// from the path before forwarding (so the matched suffix keeps its leading
// "/"). No match is a service error, which the HTTP ingress turns into 500.
type Router struct {
	Routes []Route
}

func (r Router) Call(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	for _, route := range r.Routes {
		if strings.HasPrefix(path, route.Prefix) {
			stripped := *req
			u := *req.URL
			u.Path = path[len(route.Prefix)-1:]
			stripped.URL = &u
			return route.Service.Call(&stripped)
		}
	}
	return nil, rpcerr.HTTP("router", fmt.Errorf("no route matches path %q", path))
}

var _ Service = Router{}
