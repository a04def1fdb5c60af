package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/irtimmer/rproxy/internal/pool"
	"github.com/irtimmer/rproxy/internal/rpcerr"
)

// OIDCClient is the authenticator's OIDC provider cell: discovery happens at
// most once, concurrent-safe, on first use (spec §4.7 step 3, §9 "OIDC lazy
// init"). sync.Once gives exactly the "initialize-once, await-if-in-flight"
// semantics the design calls for: the first caller to reach Do runs the
// discovery request; every other concurrent caller blocks until it finishes
// and then observes the same result.
type OIDCClient struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Pool         *pool.Pool

	once     sync.Once
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	baseCfg  oauth2.Config
	initErr  error
}

func (c *OIDCClient) ensure(ctx context.Context) error {
	c.once.Do(func() {
		httpClient := &http.Client{Transport: &poolTransport{Pool: c.Pool}}
		ctx := oidc.ClientContext(ctx, httpClient)

		provider, err := oidc.NewProvider(ctx, c.IssuerURL)
		if err != nil {
			c.initErr = rpcerr.Auth(fmt.Sprintf("discovery %s", c.IssuerURL), err)
			return
		}

		scopes := c.Scopes
		if len(scopes) == 0 {
			scopes = []string{oidc.ScopeOpenID, "email"}
		}

		c.provider = provider
		c.verifier = provider.Verifier(&oidc.Config{ClientID: c.ClientID})
		c.baseCfg = oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		}
	})
	return c.initErr
}

// AuthCodeURL builds the authorization endpoint URL the client should be
// redirected to, binding redirectURL/state/nonce for this login attempt.
func (c *OIDCClient) AuthCodeURL(redirectURL, state, nonce string) string {
	cfg := c.baseCfg
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange swaps an authorization code for tokens, verifies the ID token,
// and returns it so the caller can check the nonce and extract claims.
func (c *OIDCClient) Exchange(ctx context.Context, code, redirectURL string) (*oidc.IDToken, error) {
	httpClient := &http.Client{Transport: &poolTransport{Pool: c.Pool}}
	ctx = oidc.ClientContext(ctx, httpClient)

	cfg := c.baseCfg
	cfg.RedirectURL = redirectURL

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, rpcerr.Auth("token-exchange", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, rpcerr.Authf("token-exchange", "token response has no id_token")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, rpcerr.Auth("verify-id-token", err)
	}
	return idToken, nil
}

// poolTransport adapts the pooled client (internal/pool) to an
// http.RoundTripper so go-oidc's provider/oauth2 code — which only knows how
// to take an *http.Client — goes through the same connection pool as the
// reverse-proxy service (spec §4.7: "The authenticator uses the pooled HTTP
// client as its OIDC HTTP transport").
type poolTransport struct {
	Pool *pool.Pool
}

func (t *poolTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	upstream := &url.URL{Scheme: req.URL.Scheme, Host: req.URL.Host}
	reservation, err := t.Pool.Get(req.Context(), upstream)
	if err != nil {
		return nil, rpcerr.Upstream(fmt.Sprintf("acquire reservation for %s", upstream), err)
	}

	outReq := req.Clone(req.Context())
	if reservation.Conn().Proto() != "HTTP/2.0" {
		outURL := *req.URL
		outURL.Scheme = ""
		outURL.Host = ""
		outReq.URL = &outURL
		outReq.Host = req.URL.Host
	}

	resp, err := reservation.RoundTrip(outReq)
	if err != nil {
		reservation.Drop()
		return nil, err
	}
	resp.Body = releaseOnClose{ReadCloser: resp.Body, release: reservation.Release}
	return resp, nil
}

// releaseOnClose returns the reservation to the pool once the response body
// is closed, mirroring the reverse-proxy service's own lifetime handling.
type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (r releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.release()
	return err
}
