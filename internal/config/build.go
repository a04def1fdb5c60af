package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/accesslog"
	"github.com/irtimmer/rproxy/internal/auth"
	"github.com/irtimmer/rproxy/internal/certloader"
	"github.com/irtimmer/rproxy/internal/handler"
	"github.com/irtimmer/rproxy/internal/httpingress"
	"github.com/irtimmer/rproxy/internal/pool"
	"github.com/irtimmer/rproxy/internal/reverseproxy"
	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
	"github.com/irtimmer/rproxy/internal/tlslayer"
)

const (
	defaultSessionTTL    = 1 * time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Builder materializes a decoded Config into a runnable Handler tree. All
// servers share one pooled HTTP client, the way a single process shares one
// connection pool across every proxy/authenticator instance it builds.
type Builder struct {
	Logger *zap.Logger
	Pool   *pool.Pool
}

// NewBuilder constructs a Builder with its own pool backed by the default
// unix/http/https Dialer.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Logger: logger, Pool: pool.NewPool(pool.NewDialer(logger), logger)}
}

// BuildListeners builds one handler.Listener per server entry in cfg.
func (b *Builder) BuildListeners(cfg *Config) ([]*handler.Listener, error) {
	listeners := make([]*handler.Listener, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		root, err := b.buildHandler(s.Handler)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("server %s", s.Listen), err)
		}
		listeners = append(listeners, &handler.Listener{Addr: s.Listen, Root: root, Logger: b.Logger})
	}
	return listeners, nil
}

func (b *Builder) buildHandler(c HandlerConfig) (handler.Handler, error) {
	switch {
	case c.Tunnel != nil:
		return &handler.TunnelHandler{Target: c.Tunnel.Target, Logger: b.Logger}, nil
	case c.TLS != nil:
		return b.buildEagerTLS(c.TLS)
	case c.LazyTLS != nil:
		return b.buildLazyTLS(c.LazyTLS)
	case c.HTTP != nil:
		return b.buildHTTP(c.Type, c.HTTP)
	default:
		return nil, rpcerr.Configf("build-handler", "handler config has no variant populated")
	}
}

func (b *Builder) buildEagerTLS(c *TLSConfig) (handler.Handler, error) {
	cert, err := certloader.Load(c.Certificate, c.Key)
	if err != nil {
		return nil, err
	}
	inner, err := b.buildHandler(c.Handler)
	if err != nil {
		return nil, rpcerr.Config("tls-inner-handler", err)
	}
	return &tlslayer.EagerHandler{Cert: cert, Inner: inner, KTLS: c.KTLS, Logger: b.Logger}, nil
}

func (b *Builder) buildLazyTLS(c *TLSConfig) (handler.Handler, error) {
	defaultCert, err := certloader.Load(c.Certificate, c.Key)
	if err != nil {
		return nil, err
	}
	defaultInner, err := b.buildHandler(c.Handler)
	if err != nil {
		return nil, rpcerr.Config("lazytls-default-handler", err)
	}

	entries := make([]tlslayer.SNIEntry, 0, len(c.SNI))
	for _, s := range c.SNI {
		cert, err := certloader.Load(s.Certificate, s.Key)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("sni entry %s", s.Hostname), err)
		}
		inner, err := b.buildHandler(s.Handler)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("sni entry %s handler", s.Hostname), err)
		}
		entries = append(entries, tlslayer.SNIEntry{Pattern: s.Hostname, Cert: cert, Inner: inner, KTLS: c.KTLS})
	}

	lazy := &tlslayer.LazyHandler{
		DefaultCert:  defaultCert,
		DefaultInner: defaultInner,
		DefaultKTLS:  c.KTLS,
		Entries:      entries,
		Logger:       b.Logger,
	}
	lazy.Provision()
	return lazy, nil
}

func (b *Builder) buildHTTP(variant string, c *HTTPConfig) (handler.Handler, error) {
	svc, err := b.buildService(c.Service)
	if err != nil {
		return nil, rpcerr.Config("http-service", err)
	}

	for i := len(c.Layers) - 1; i >= 0; i-- {
		svc, err = b.wrapLayer(c.Layers[i], svc)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("http layer %d", i), err)
		}
	}

	httpCtx := &rpctx.HttpContext{Sessions: auth.NewMemoryStore(defaultSessionTTL, defaultSweepInterval)}
	h := &httpingress.Handler{Service: svc, HTTPCtx: httpCtx, Logger: b.Logger}
	switch variant {
	case "http1":
		h.Force = "h1"
	case "http2":
		h.Force = "h2"
	}
	return h, nil
}

func (b *Builder) buildService(c ServiceConfig) (service.Service, error) {
	switch {
	case c.Type == "hello":
		return service.Hello{}, nil
	case c.Proxy != nil:
		upstream, err := url.Parse(c.Proxy.URI)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("proxy uri %q", c.Proxy.URI), err)
		}
		return &reverseproxy.Service{Upstream: upstream, Pool: b.Pool, Logger: b.Logger}, nil
	case c.File != nil:
		return service.File{Base: c.File.Path}, nil
	case c.Router != nil:
		routes := make([]service.Route, 0, len(c.Router.Routes))
		for _, r := range c.Router.Routes {
			inner, err := b.buildService(r.Service)
			if err != nil {
				return nil, rpcerr.Config(fmt.Sprintf("router route %q", r.Path), err)
			}
			routes = append(routes, service.Route{Prefix: r.Path, Service: inner})
		}
		return service.Router{Routes: routes}, nil
	default:
		return nil, rpcerr.Configf("build-service", "service config has no variant populated")
	}
}

func (b *Builder) wrapLayer(c LayerConfig, inner service.Service) (service.Service, error) {
	switch {
	case c.Log != nil:
		w, err := openLogWriter(c.Log.Path)
		if err != nil {
			return nil, err
		}
		return &accesslog.Layer{Inner: inner, Writer: w}, nil
	case c.Authenticator != nil:
		return &auth.Authenticator{
			Inner: inner,
			OIDC: &auth.OIDCClient{
				IssuerURL:    c.Authenticator.DiscoveryURL,
				ClientID:     c.Authenticator.ClientID,
				ClientSecret: c.Authenticator.ClientSecret,
				Pool:         b.Pool,
			},
			Logger: b.Logger,
		}, nil
	default:
		return nil, rpcerr.Configf("build-layer", "layer config has no variant populated")
	}
}

// openLogWriter resolves a log layer's `path` to an opaque append-only
// writer: the literal "stdout"/"stderr", or a file opened for append,
// matching Caddy's logging.go writer-opener convention.
func openLogWriter(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, rpcerr.Config(fmt.Sprintf("open log file %s", path), err)
		}
		return f, nil
	}
}
