package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/profileauth"
	"github.com/MrEthical07/profileauth/middleware"
)

type codeRequest struct {
	Code string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Login string `json:"login"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type resetPasswordRequest struct {
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
	RePassword string `json:"repassword"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
	RePassword      string `json:"repassword"`
}

type forgotConfirmResponse struct {
	UserID string `json:"user_id"`
}

// userID returns the authenticated user placed in the context by Guard.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok || res.UserID == "" {
		h.writeEngineError(w, r, profileauth.ErrAuthorizationRequired)
		return "", false
	}
	return res.UserID, true
}

// pending answers 202: a code was sent and awaits confirmation.
func pending(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func done(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

/*
====================================
EMAIL VERIFICATION
====================================
*/

func (h *Handler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.engine.RequestEmailVerification(r.Context(), userID); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

func (h *Handler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmEmailVerification(r.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	done(w)
}

/*
====================================
FORGOT PASSWORD
====================================
*/

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ForgotPassword(r.Context(), strings.TrimSpace(body.Email)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

func (h *Handler) ConfirmForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	userID, err := h.engine.ConfirmForgotPassword(r.Context(), strings.TrimSpace(body.Code))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forgotConfirmResponse{UserID: userID})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), strings.TrimSpace(body.UserID), body.Password, body.RePassword); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	done(w)
}

/*
====================================
PROFILE CHANGES
====================================
*/

func (h *Handler) RequestLoginChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.RequestLoginChange(r.Context(), userID, strings.TrimSpace(body.Login)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

// ConfirmLoginChange re-issues the session so the new login claim takes
// effect immediately.
func (h *Handler) ConfirmLoginChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	pair, err := h.engine.ConfirmLoginChange(r.Context(), userID, strings.TrimSpace(body.Code))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	middleware.SetSessionCookies(w, h.cookies, pair)
	writeJSON(w, http.StatusOK, h.tokenBody(pair))
}

func (h *Handler) RequestEmailChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body emailRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.RequestEmailChange(r.Context(), userID, strings.TrimSpace(body.Email)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

// ConfirmEmailChangeCurrent completes the first phase; a code is then sent
// to the new address.
func (h *Handler) ConfirmEmailChangeCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmEmailChangeCurrent(r.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

func (h *Handler) ConfirmEmailChangeNew(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmEmailChangeNew(r.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	done(w)
}

func (h *Handler) RequestPhoneChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body phoneRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.RequestPhoneChange(r.Context(), userID, strings.TrimSpace(body.PhoneNumber)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

func (h *Handler) ConfirmPhoneChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmPhoneChange(r.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	done(w)
}

func (h *Handler) RequestPasswordChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body passwordChangeRequest
	if !h.decode(w, r, &body) {
		return
	}
	err := h.engine.RequestPasswordChange(r.Context(), userID, profileauth.PasswordChangeRequest{
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.Password,
		RePassword:      body.RePassword,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	pending(w)
}

func (h *Handler) ConfirmPasswordChange(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body codeRequest
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmPasswordChange(r.Context(), userID, strings.TrimSpace(body.Code)); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	done(w)
}
