// Package config decodes the YAML configuration tree (spec §6) into typed
// nodes and builds the corresponding Handler/Service tree.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/irtimmer/rproxy/internal/rpcerr"
)

// Config is the document root: one or more listening servers.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig is one listener: `{type: "socket", listen: "addr:port", handler: ...}`.
type ServerConfig struct {
	Type    string        `yaml:"type"`
	Listen  string        `yaml:"listen"`
	Handler HandlerConfig `yaml:"handler"`
}

// HandlerConfig is the discriminated union over handler variants: tunnel,
// tls, lazytls, http, http1, http2. Exactly one of the pointer fields below
// is populated after decoding, chosen by the `type` field, the same way
// Caddy's JSON config dispatches on a module ID — adapted to YAML via a
// custom UnmarshalYAML instead of json.RawMessage + a module registry.
type HandlerConfig struct {
	Type string

	Tunnel  *TunnelConfig
	TLS     *TLSConfig
	LazyTLS *TLSConfig
	HTTP    *HTTPConfig
}

func (h *HandlerConfig) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&head); err != nil {
		return rpcerr.Config("decode-handler", err)
	}
	h.Type = head.Type

	switch head.Type {
	case "tunnel":
		var c TunnelConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-tunnel-handler", err)
		}
		h.Tunnel = &c
	case "tls":
		var c TLSConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-tls-handler", err)
		}
		h.TLS = &c
	case "lazytls":
		var c TLSConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-lazytls-handler", err)
		}
		h.LazyTLS = &c
	case "http", "http1", "http2":
		var c HTTPConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config(fmt.Sprintf("decode-%s-handler", head.Type), err)
		}
		h.HTTP = &c
	default:
		return rpcerr.Configf("decode-handler", "unknown handler type %q", head.Type)
	}
	return nil
}

// TunnelConfig is the `tunnel{target}` handler variant.
type TunnelConfig struct {
	Target string `yaml:"target"`
}

// TLSConfig covers both `tls{...}` (eager) and `lazytls{...}` (SNI), which
// share an identical shape per spec §6; which builder method consumes it
// determines the dispatch strategy.
type TLSConfig struct {
	Certificate string        `yaml:"certificate"`
	Key         string        `yaml:"key"`
	KTLS        bool          `yaml:"ktls"`
	Handler     HandlerConfig `yaml:"handler"`
	SNI         []SNIConfig   `yaml:"sni"`
}

// SNIConfig is one entry in a lazytls handler's `sni` list.
type SNIConfig struct {
	Hostname    string        `yaml:"hostname"`
	Certificate string        `yaml:"certificate"`
	Key         string        `yaml:"key"`
	Handler     HandlerConfig `yaml:"handler"`
}

// HTTPConfig is the `http{service, layers?}` handler variant (also used,
// with a forced protocol, by `http1`/`http2`).
type HTTPConfig struct {
	Service ServiceConfig  `yaml:"service"`
	Layers  []LayerConfig  `yaml:"layers"`
}

// ServiceConfig is the discriminated union over service variants: hello,
// proxy, file, router.
type ServiceConfig struct {
	Type string

	Proxy  *ProxyConfig
	File   *FileConfig
	Router *RouterConfig
}

func (s *ServiceConfig) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&head); err != nil {
		return rpcerr.Config("decode-service", err)
	}
	s.Type = head.Type

	switch head.Type {
	case "hello":
		// No fields to decode.
	case "proxy":
		var c ProxyConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-proxy-service", err)
		}
		s.Proxy = &c
	case "file":
		var c FileConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-file-service", err)
		}
		s.File = &c
	case "router":
		var c RouterConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-router-service", err)
		}
		s.Router = &c
	default:
		return rpcerr.Configf("decode-service", "unknown service type %q", head.Type)
	}
	return nil
}

// ProxyConfig is the `proxy{uri}` service variant.
type ProxyConfig struct {
	URI string `yaml:"uri"`
}

// FileConfig is the `file{path}` service variant.
type FileConfig struct {
	Path string `yaml:"path"`
}

// RouterConfig is the `router{routes:[{path,service}]}` service variant.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig is one router entry.
type RouteConfig struct {
	Path    string        `yaml:"path"`
	Service ServiceConfig `yaml:"service"`
}

// LayerConfig is the discriminated union over layer variants: log,
// authenticator.
type LayerConfig struct {
	Type string

	Log           *LogConfig
	Authenticator *AuthenticatorConfig
}

func (l *LayerConfig) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&head); err != nil {
		return rpcerr.Config("decode-layer", err)
	}
	l.Type = head.Type

	switch head.Type {
	case "log":
		var c LogConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-log-layer", err)
		}
		l.Log = &c
	case "authenticator":
		var c AuthenticatorConfig
		if err := value.Decode(&c); err != nil {
			return rpcerr.Config("decode-authenticator-layer", err)
		}
		l.Authenticator = &c
	default:
		return rpcerr.Configf("decode-layer", "unknown layer type %q", head.Type)
	}
	return nil
}

// LogConfig is the `log{path}` layer variant.
type LogConfig struct {
	Path string `yaml:"path"`
}

// AuthenticatorConfig is the `authenticator{discovery_url,client_id,client_secret}` layer variant.
type AuthenticatorConfig struct {
	DiscoveryURL string `yaml:"discovery_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Parse decodes a YAML document into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, rpcerr.Config("parse", err)
	}
	return &cfg, nil
}
