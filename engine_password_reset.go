package profileauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/profileauth/internal/flows"
)

// ForgotPassword sends a recovery code to email. The pending entry is
// keyed by the code itself, since the caller is not signed in. An unknown
// email returns ErrUserNotFound.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidInput
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		return e.providerError(err)
	}

	payload, err := encodePayload(forgotPasswordPayload{UserID: user.UserID})
	if err != nil {
		return err
	}
	return e.initiate(ctx, e.flows.forgotPassword, flows.InitiateRequest{
		UserID:  user.UserID,
		To:      user.Email,
		Payload: payload,
	})
}

// ConfirmForgotPassword redeems a recovery code and returns the id of the
// user it was issued for. That user may then call ResetPassword once.
func (e *Engine) ConfirmForgotPassword(ctx context.Context, code string) (string, error) {
	res, err := e.confirm(ctx, e.flows.forgotPassword, flows.ConfirmRequest{Code: code})
	if err != nil {
		return "", err
	}
	p, err := decodePayload[forgotPasswordPayload](res.Payload)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// ResetPassword sets a new password for a user whose recovery code was
// confirmed, and clears the confirmation. Without a confirmed code it
// returns ErrResetNotVerified.
func (e *Engine) ResetPassword(ctx context.Context, userID, newPassword, rePassword string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsResetVerified {
		e.emitAudit(ctx, auditEventPasswordResetForbidden, false, userID, ErrResetNotVerified, nil)
		return ErrResetNotVerified
	}
	if err := e.checkNewPassword(newPassword, rePassword); err != nil {
		return err
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	if err := e.updateUser(ctx, userID, UserUpdate{
		PasswordHash:    &hash,
		IsResetVerified: boolPtr(false),
	}); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetSuccess, true, userID, nil, nil)
	return nil
}
