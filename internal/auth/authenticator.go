package auth

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/irtimmer/rproxy/internal/rpcerr"
	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
)

const sessionCookieName = "session"

// The conceptual "login" session entry (redirect URL, CSRF state, nonce)
// decomposes into three flat string keys since rpctx.Session is a plain
// string-keyed map.
const (
	sessionUserKey          = "user"
	sessionLoginRedirectKey = "login_redirect_url"
	sessionLoginStateKey    = "login_state"
	sessionLoginNonceKey    = "login_nonce"
)

// Authenticator wraps an inner Service, enforcing OIDC Authorization Code
// login before the inner service ever sees a request (spec §4.7).
type Authenticator struct {
	Inner  service.Service
	OIDC   *OIDCClient
	Logger *zap.Logger

	// NewState/NewNonce default to uuid.NewString; overridable for tests.
	NewState func() string
	NewNonce func() string
}

func (a *Authenticator) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *Authenticator) Call(req *http.Request) (*http.Response, error) {
	hc, ok := rpctx.FromRequest(req)
	if !ok || hc.Sessions == nil {
		return nil, rpcerr.Authf("session-lookup", "no session store attached to request")
	}

	connCtx, _ := rpctx.ConnContext(req)

	cookie := cookieValue(req, sessionCookieName)
	sess, found := hc.Sessions.Load(cookie)
	if !found {
		sess = rpctx.Session{}
		cookie = ""
	}

	if email := sess[sessionUserKey]; email != "" {
		return a.Inner.Call(req)
	}

	if err := a.OIDC.ensure(req.Context()); err != nil {
		a.logger().Error("oidc discovery failed", zap.Error(err))
		return nil, err
	}

	query := req.URL.Query()
	state, code := query.Get("state"), query.Get("code")
	redirectURL, hasLogin := sess[sessionLoginRedirectKey]

	if hasLogin && state != "" && code != "" {
		return a.completeLogin(req, hc, cookie, sess, redirectURL, state, code)
	}
	return a.beginLogin(req, hc, connCtx, cookie, sess)
}

func (a *Authenticator) completeLogin(req *http.Request, hc *rpctx.HttpContext, cookie string, sess rpctx.Session, redirectURL, state, code string) (*http.Response, error) {
	if state != sess[sessionLoginStateKey] {
		return nil, rpcerr.Authf("callback", "callback state does not match session CSRF token")
	}

	idToken, err := a.OIDC.Exchange(req.Context(), code, redirectURL)
	if err != nil {
		return nil, rpcerr.Auth("exchange", err)
	}
	if idToken.Nonce != sess[sessionLoginNonceKey] {
		return nil, rpcerr.Authf("callback", "id token nonce does not match session")
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, rpcerr.Auth("decode-claims", err)
	}

	delete(sess, sessionLoginRedirectKey)
	delete(sess, sessionLoginStateKey)
	delete(sess, sessionLoginNonceKey)
	sess[sessionUserKey] = claims.Email

	newCookie, err := hc.Sessions.Save(cookie, sess)
	if err != nil {
		return nil, rpcerr.Auth("save-session", err)
	}

	connCtx, _ := rpctx.ConnContext(req)
	return redirectResponse(req, redirectURL, newCookie, connCtx.Secure), nil
}

func (a *Authenticator) beginLogin(req *http.Request, hc *rpctx.HttpContext, connCtx rpctx.Context, cookie string, sess rpctx.Session) (*http.Response, error) {
	scheme := "http"
	if connCtx.Secure {
		scheme = "https"
	}
	redirectURL := scheme + "://" + req.Host + req.URL.RequestURI()

	state, nonce := a.newState(), a.newNonce()
	sess[sessionLoginRedirectKey] = redirectURL
	sess[sessionLoginStateKey] = state
	sess[sessionLoginNonceKey] = nonce

	newCookie, err := hc.Sessions.Save(cookie, sess)
	if err != nil {
		return nil, rpcerr.Auth("save-session", err)
	}

	authURL := a.OIDC.AuthCodeURL(redirectURL, state, nonce)
	return redirectResponse(req, authURL, newCookie, connCtx.Secure), nil
}

func (a *Authenticator) newState() string {
	if a.NewState != nil {
		return a.NewState()
	}
	return uuid.NewString()
}

func (a *Authenticator) newNonce() string {
	if a.NewNonce != nil {
		return a.NewNonce()
	}
	return uuid.NewString()
}

func cookieValue(req *http.Request, name string) string {
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func redirectResponse(req *http.Request, location, cookie string, secure bool) *http.Response {
	setCookie := fmt.Sprintf("%s=%s; HttpOnly; Path=/", sessionCookieName, cookie)
	if secure {
		setCookie += "; Secure"
	}
	header := http.Header{}
	header.Set("Location", location)
	header.Set("Set-Cookie", setCookie)
	return &http.Response{
		StatusCode: http.StatusTemporaryRedirect,
		Status:     http.StatusText(http.StatusTemporaryRedirect),
		Proto:      req.Proto,
		ProtoMajor: req.ProtoMajor,
		ProtoMinor: req.ProtoMinor,
		Header:     header,
		Body:       http.NoBody,
		Request:    req,
	}
}

var _ service.Service = (*Authenticator)(nil)
