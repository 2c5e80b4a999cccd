package httpapi

import (
	"net/http"

	"github.com/MrEthical07/profileauth/middleware"
)

// Routes registers every endpoint on mux. Routes under /me pass through
// middleware.Guard, which may silently refresh an expired access token.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /auth/signup", h.SignUp)
	mux.HandleFunc("POST /auth/signin", h.SignIn)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/password/forgot", h.ForgotPassword)
	mux.HandleFunc("POST /auth/password/forgot/confirm", h.ConfirmForgotPassword)
	mux.HandleFunc("POST /auth/password/reset", h.ResetPassword)

	guard := middleware.Guard(h.engine, h.cookies, func(w http.ResponseWriter, r *http.Request, err error) {
		h.writeEngineError(w, r, err)
	})
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}

	protected("GET /me", h.Me)
	protected("POST /auth/logout", h.Logout)
	protected("POST /me/email/verification", h.RequestEmailVerification)
	protected("POST /me/email/verification/confirm", h.ConfirmEmailVerification)
	protected("POST /me/login", h.RequestLoginChange)
	protected("POST /me/login/confirm", h.ConfirmLoginChange)
	protected("POST /me/email", h.RequestEmailChange)
	protected("POST /me/email/confirm-current", h.ConfirmEmailChangeCurrent)
	protected("POST /me/email/confirm-new", h.ConfirmEmailChangeNew)
	protected("POST /me/phone", h.RequestPhoneChange)
	protected("POST /me/phone/confirm", h.ConfirmPhoneChange)
	protected("POST /me/password", h.RequestPasswordChange)
	protected("POST /me/password/confirm", h.ConfirmPasswordChange)
}
