// Package httpapi exposes the engine over JSON/HTTP. Session tokens travel
// in HttpOnly cookies; the access token is also returned in the body for
// clients that prefer the Authorization header.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/profileauth"
	"github.com/MrEthical07/profileauth/middleware"
)

const maxJSONBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid json body")

type Handler struct {
	engine  *profileauth.Engine
	cookies middleware.CookieOptions
	logger  *slog.Logger
}

// NewHandler wires the engine to HTTP. A nil logger uses slog.Default.
func NewHandler(engine *profileauth.Engine, cookies middleware.CookieOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, cookies: cookies, logger: logger}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type signUpRequest struct {
	Login      string `json:"login"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	RePassword string `json:"repassword"`
}

type signUpResponse struct {
	UserID           string `json:"user_id"`
	VerificationSent bool   `json:"verification_sent"`
	tokenResponse
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	UserID string `json:"user_id"`
	Login  string `json:"login,omitempty"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpRequest
	if !h.decode(w, r, &body) {
		return
	}

	res, err := h.engine.SignUp(r.Context(), profileauth.SignUpRequest{
		Login:      strings.TrimSpace(body.Login),
		Email:      strings.TrimSpace(body.Email),
		Password:   body.Password,
		RePassword: body.RePassword,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	middleware.SetSessionCookies(w, h.cookies, res.Tokens)
	writeJSON(w, http.StatusCreated, signUpResponse{
		UserID:           res.UserID,
		VerificationSent: res.VerificationSent,
		tokenResponse:    h.tokenBody(res.Tokens),
	})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body signInRequest
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.engine.SignIn(r.Context(), strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	middleware.SetSessionCookies(w, h.cookies, pair)
	writeJSON(w, http.StatusOK, h.tokenBody(pair))
}

// Refresh rotates the pair. The refresh token comes from its cookie, or from
// the JSON body when no cookie is present.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	// The refresh token is only ever read from its cookie.
	token := middleware.ExtractCredentials(r, h.cookies).RefreshToken
	if token == "" {
		h.writeEngineError(w, r, profileauth.ErrAuthorizationRequired)
		return
	}

	pair, err := h.engine.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, profileauth.ErrAuthentication) {
			middleware.ClearSessionCookies(w, h.cookies)
		}
		h.writeEngineError(w, r, err)
		return
	}

	middleware.SetSessionCookies(w, h.cookies, pair)
	writeJSON(w, http.StatusOK, h.tokenBody(pair))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.writeEngineError(w, r, profileauth.ErrAuthorizationRequired)
		return
	}

	if err := h.engine.Logout(r.Context(), res.UserID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	middleware.ClearSessionCookies(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.writeEngineError(w, r, profileauth.ErrAuthorizationRequired)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: res.UserID, Login: res.Login})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) tokenBody(pair profileauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.engine.AccessTTL().Seconds()),
	}
}

/*
====================================
RESPONSE HELPERS
====================================
*/

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return false
	}
	return true
}

// writeEngineError renders err with profileauth.HTTPStatus. Server faults
// are reported to Sentry and logged; their detail never reaches the client.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := profileauth.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
