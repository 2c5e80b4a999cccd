package profileauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/profileauth/internal/flows"
)

/*
====================================
LOGIN CHANGE
====================================
*/

// RequestLoginChange sends a login-change code to the user's current email.
// A login held by another user is rejected here and again at confirm.
func (e *Engine) RequestLoginChange(ctx context.Context, userID, newLogin string) error {
	newLogin = strings.TrimSpace(newLogin)
	if newLogin == "" {
		return ErrInvalidInput
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.ensureLoginFree(ctx, userID, newLogin); err != nil {
		return err
	}

	payload, err := encodePayload(loginChangePayload{NewLogin: newLogin})
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.loginChange, flows.InitiateRequest{
		UserID:  userID,
		To:      user.Email,
		Payload: payload,
		Context: map[string]string{"login": newLogin},
	})
}

// ConfirmLoginChange applies the pending login change and starts a new
// session, since the login claim of outstanding tokens is now stale.
// Within the cooldown it returns ErrLoginChangeCooldown and keeps the code.
func (e *Engine) ConfirmLoginChange(ctx context.Context, userID, code string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, ErrAuthorizationRequired
	}
	res, err := e.confirm(ctx, e.flows.loginChange, flows.ConfirmRequest{UserID: userID, Code: code})
	if err != nil {
		return TokenPair{}, err
	}
	p, err := decodePayload[loginChangePayload](res.Payload)
	if err != nil {
		return TokenPair{}, err
	}
	e.metricInc(MetricLoginChangeSuccess)
	return e.startSession(ctx, userID, p.NewLogin)
}

/*
====================================
EMAIL CHANGE
====================================
*/

// RequestEmailChange starts the two-step email change: the first code goes
// to the current address.
func (e *Engine) RequestEmailChange(ctx context.Context, userID, newEmail string) error {
	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" {
		return ErrInvalidInput
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.ensureEmailFree(ctx, userID, newEmail); err != nil {
		return err
	}

	payload, err := encodePayload(emailChangePayload{NewEmail: newEmail, Phase: emailPhaseCurrent})
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.emailChangeCurrent, flows.InitiateRequest{
		UserID:  userID,
		To:      user.Email,
		Payload: payload,
		Context: map[string]string{"login": user.Login},
	})
}

// ConfirmEmailChangeCurrent redeems the code sent to the current address.
// The account's email becomes unverified and a second code goes to the new
// address under the same key.
func (e *Engine) ConfirmEmailChangeCurrent(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrAuthorizationRequired
	}
	res, err := e.confirm(ctx, e.flows.emailChangeCurrent, flows.ConfirmRequest{UserID: userID, Code: code})
	if err != nil {
		return err
	}
	p, err := decodePayload[emailChangePayload](res.Payload)
	if err != nil {
		return err
	}

	p.Phase = emailPhaseNew
	payload, err := encodePayload(p)
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.emailChangeNew, flows.InitiateRequest{
		UserID:  userID,
		To:      p.NewEmail,
		Payload: payload,
	})
}

// ConfirmEmailChangeNew redeems the code sent to the new address and
// switches the account to it, verified.
func (e *Engine) ConfirmEmailChangeNew(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrAuthorizationRequired
	}
	if _, err := e.confirm(ctx, e.flows.emailChangeNew, flows.ConfirmRequest{UserID: userID, Code: code}); err != nil {
		return err
	}
	e.metricInc(MetricEmailChangeSuccess)
	return nil
}

/*
====================================
PHONE CHANGE
====================================
*/

// RequestPhoneChange sends a phone-change code to the user's email.
func (e *Engine) RequestPhoneChange(ctx context.Context, userID, newPhoneNumber string) error {
	newPhoneNumber = strings.TrimSpace(newPhoneNumber)
	if newPhoneNumber == "" {
		return ErrInvalidInput
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	payload, err := encodePayload(phoneChangePayload{NewPhoneNumber: newPhoneNumber})
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.phoneChange, flows.InitiateRequest{
		UserID:  userID,
		To:      user.Email,
		Payload: payload,
		Context: map[string]string{"login": user.Login},
	})
}

func (e *Engine) ConfirmPhoneChange(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrAuthorizationRequired
	}
	if _, err := e.confirm(ctx, e.flows.phoneChange, flows.ConfirmRequest{UserID: userID, Code: code}); err != nil {
		return err
	}
	e.metricInc(MetricPhoneChangeSuccess)
	return nil
}

/*
====================================
PASSWORD CHANGE
====================================
*/

// RequestPasswordChange checks the current password and sends a code that
// authorizes the new one. Only the argon2id hash of the new password is
// held in the pending entry.
func (e *Engine) RequestPasswordChange(ctx context.Context, userID string, req PasswordChangeRequest) error {
	if err := e.checkNewPassword(req.NewPassword, req.RePassword); err != nil {
		return err
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := e.passwords.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrCurrentPasswordInvalid
	}

	hash, err := e.passwords.Hash(req.NewPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	payload, err := encodePayload(passwordChangePayload{NewPasswordHash: hash})
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.passwordChange, flows.InitiateRequest{
		UserID:  userID,
		To:      user.Email,
		Payload: payload,
		Context: map[string]string{"login": user.Login},
	})
}

func (e *Engine) ConfirmPasswordChange(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrAuthorizationRequired
	}
	if _, err := e.confirm(ctx, e.flows.passwordChange, flows.ConfirmRequest{UserID: userID, Code: code}); err != nil {
		return err
	}
	e.metricInc(MetricPasswordChangeSuccess)
	return nil
}
