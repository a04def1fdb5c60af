package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	josejwt "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/irtimmer/rproxy/internal/pool"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
)

const testKeyID = "test-key"

// testOIDCProvider is a minimal OIDC provider serving discovery, JWKS, and
// token-exchange endpoints, enough to drive the authenticator's full
// Authorization Code flow end-to-end.
type testOIDCProvider struct {
	srv    *httptest.Server
	key    *rsa.PrivateKey
	wantTok string // the authorization code this provider will accept
	email   string
	nonce   string
}

func newTestOIDCProvider(t *testing.T) *testOIDCProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &testOIDCProvider{key: key, wantTok: "test-code", email: "user@example.com"}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/keys", p.jwks)
	mux.HandleFunc("/token", p.token)
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {})
	p.srv = httptest.NewServer(mux)
	return p
}

func (p *testOIDCProvider) close() { p.srv.Close() }

func (p *testOIDCProvider) discovery(w http.ResponseWriter, r *http.Request) {
	doc := map[string]any{
		"issuer":                                p.srv.URL,
		"authorization_endpoint":                p.srv.URL + "/auth",
		"token_endpoint":                        p.srv.URL + "/token",
		"jwks_uri":                              p.srv.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	_ = json.NewEncoder(w).Encode(doc)
}

func (p *testOIDCProvider) jwks(w http.ResponseWriter, r *http.Request) {
	set := josejwt.JSONWebKeySet{Keys: []josejwt.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	_ = json.NewEncoder(w).Encode(set)
}

func (p *testOIDCProvider) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.Form.Get("code") != p.wantTok {
		http.Error(w, "unknown authorization code", http.StatusBadRequest)
		return
	}
	nonce := p.nonce

	claims := map[string]any{
		"iss":   p.srv.URL,
		"aud":   "test-client",
		"sub":   "user-1",
		"email": p.email,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"nonce": nonce,
	}
	payload, _ := json.Marshal(claims)

	signer, err := josejwt.NewSigner(josejwt.SigningKey{Algorithm: josejwt.RS256, Key: p.key},
		(&josejwt.SignerOptions{}).WithType("JWT").WithHeader("kid", testKeyID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	idToken, err := jws.CompactSerialize()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "test-access-token",
		"token_type":   "Bearer",
		"id_token":     idToken,
	})
}

func newTestAuthenticator(t *testing.T, provider *testOIDCProvider, store *MemoryStore) *Authenticator {
	t.Helper()
	p := pool.NewPool(pool.NewDialer(nil), nil)
	return &Authenticator{
		Inner: service.Hello{},
		OIDC: &OIDCClient{
			IssuerURL:    provider.srv.URL,
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Pool:         p,
		},
	}
}

func requestWithSession(t *testing.T, rawURL string, hc *rpctx.HttpContext, secure bool) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	req.Host = u.Host
	req = rpctx.WithHTTPContext(req, hc)
	req = rpctx.WithConnContext(req, rpctx.Context{Secure: secure})
	return req
}

func TestAuthenticatorRedirectsToAuthorizeWhenNotLoggedIn(t *testing.T) {
	provider := newTestOIDCProvider(t)
	defer provider.close()

	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	hc := &rpctx.HttpContext{Sessions: store}
	a := newTestAuthenticator(t, provider, store)

	req := requestWithSession(t, "http://app.example/page", hc, false)
	resp, err := a.Call(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Location"), provider.srv.URL+"/auth")
	require.Contains(t, resp.Header.Get("Set-Cookie"), "session=")
}

func TestAuthenticatorCompletesLoginAndAllowsSubsequentRequest(t *testing.T) {
	provider := newTestOIDCProvider(t)
	defer provider.close()

	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	hc := &rpctx.HttpContext{Sessions: store}
	a := newTestAuthenticator(t, provider, store)

	// Step 1: initial request begins login.
	req1 := requestWithSession(t, "http://app.example/page", hc, false)
	resp1, err := a.Call(req1)
	require.NoError(t, err)
	require.Equal(t, http.StatusTemporaryRedirect, resp1.StatusCode)

	cookie := parseCookieValue(resp1.Header.Get("Set-Cookie"))
	require.NotEmpty(t, cookie)
	sess, ok := store.Load(cookie)
	require.True(t, ok)
	provider.nonce = sess[sessionLoginNonceKey]
	state := sess[sessionLoginStateKey]

	// Step 2: callback with matching state+code.
	req2 := requestWithSession(t, "http://app.example/page?state="+state+"&code="+provider.wantTok, hc, false)
	req2.Header.Set("Cookie", sessionCookieName+"="+cookie)
	resp2, err := a.Call(req2)
	require.NoError(t, err)
	require.Equal(t, http.StatusTemporaryRedirect, resp2.StatusCode)
	require.Equal(t, "http://app.example/page", resp2.Header.Get("Location"))

	newCookie := parseCookieValue(resp2.Header.Get("Set-Cookie"))
	sess2, ok := store.Load(newCookie)
	require.True(t, ok)
	require.Equal(t, provider.email, sess2[sessionUserKey])

	// Step 3: subsequent request with the logged-in cookie reaches Hello.
	req3 := requestWithSession(t, "http://app.example/page", hc, false)
	req3.Header.Set("Cookie", sessionCookieName+"="+newCookie)
	resp3, err := a.Call(req3)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestAuthenticatorRejectsMismatchedState(t *testing.T) {
	provider := newTestOIDCProvider(t)
	defer provider.close()

	store := NewMemoryStore(time.Hour, time.Minute)
	defer store.Close()
	hc := &rpctx.HttpContext{Sessions: store}
	a := newTestAuthenticator(t, provider, store)

	req1 := requestWithSession(t, "http://app.example/page", hc, false)
	resp1, err := a.Call(req1)
	require.NoError(t, err)
	cookie := parseCookieValue(resp1.Header.Get("Set-Cookie"))

	req2 := requestWithSession(t, "http://app.example/page?state=wrong&code=anything", hc, false)
	req2.Header.Set("Cookie", sessionCookieName+"="+cookie)
	_, err = a.Call(req2)
	require.Error(t, err)
}

func parseCookieValue(setCookie string) string {
	req := &http.Request{Header: http.Header{"Cookie": {setCookie}}}
	c, err := req.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
