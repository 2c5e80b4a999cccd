package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/profileauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the result Guard stored for the request.
func AuthResultFromContext(ctx context.Context) (*profileauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*profileauth.AuthResult)
	return res, ok
}

// WithAuthResult stores res in ctx. Handlers tests use it to skip Guard.
func WithAuthResult(ctx context.Context, res *profileauth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// CookieOptions controls the session cookies Guard and the HTTP API write.
type CookieOptions struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// CookieOptionsFromConfig derives cookie options from the engine's config.
// Cookies are Secure only in production mode.
func CookieOptionsFromConfig(cfg profileauth.Config) CookieOptions {
	return CookieOptions{
		AccessName:  cfg.Session.AccessCookieName,
		RefreshName: cfg.Session.RefreshCookieName,
		Path:        cfg.Session.CookiePath,
		Domain:      cfg.Session.CookieDomain,
		Secure:      cfg.Security.ProductionMode,
		AccessTTL:   cfg.JWT.AccessTTL,
		RefreshTTL:  cfg.JWT.RefreshTTL,
	}
}

// Authenticator is the part of the engine Guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, creds profileauth.Credentials) (*profileauth.AuthResult, error)
}

// ErrorWriter renders a rejection. The default writes the status text.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Guard admits requests the engine authenticates and rejects the rest with
// profileauth.HTTPStatus(err). A nil onError writes a plain-text body.
func Guard(auth Authenticator, opts CookieOptions, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			status := profileauth.HTTPStatus(err)
			http.Error(w, http.StatusText(status), status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				onError(w, r, profileauth.ErrEngineNotReady)
				return
			}

			creds := ExtractCredentials(r, opts)
			res, err := auth.Authenticate(r.Context(), creds)
			if err != nil {
				onError(w, r, err)
				return
			}

			if res.Tokens != nil {
				SetSessionCookies(w, opts, *res.Tokens)
				overwriteRequestTokens(r, opts, res.Tokens.AccessToken)
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// ExtractCredentials reads the access token (cookie first, then bearer) and
// the refresh token (cookie only) from r.
func ExtractCredentials(r *http.Request, opts CookieOptions) profileauth.Credentials {
	var creds profileauth.Credentials
	if c, err := r.Cookie(opts.AccessName); err == nil && c.Value != "" {
		creds.AccessToken = c.Value
	} else if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		creds.AccessToken = token
	}
	if c, err := r.Cookie(opts.RefreshName); err == nil {
		creds.RefreshToken = c.Value
	}
	return creds
}

// SetSessionCookies writes both session cookies for pair.
func SetSessionCookies(w http.ResponseWriter, opts CookieOptions, pair profileauth.TokenPair) {
	http.SetCookie(w, sessionCookie(opts, opts.AccessName, pair.AccessToken, opts.AccessTTL))
	http.SetCookie(w, sessionCookie(opts, opts.RefreshName, pair.RefreshToken, opts.RefreshTTL))
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	for _, name := range []string{opts.AccessName, opts.RefreshName} {
		c := sessionCookie(opts, name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func sessionCookie(opts CookieOptions, name, value string, ttl time.Duration) *http.Cookie {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   opts.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// overwriteRequestTokens replaces the stale access token on r so handlers
// further down the chain read the rotated one.
func overwriteRequestTokens(r *http.Request, opts CookieOptions, access string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	replaced := false
	for _, c := range cookies {
		if c.Name == opts.AccessName {
			c.Value = access
			replaced = true
		}
		r.AddCookie(c)
	}
	if !replaced {
		r.AddCookie(&http.Cookie{Name: opts.AccessName, Value: access})
	}
	r.Header.Set("Authorization", "Bearer "+access)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
