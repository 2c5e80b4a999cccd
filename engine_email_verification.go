package profileauth

import (
	"context"

	"github.com/MrEthical07/profileauth/internal/flows"
)

// RequestEmailVerification sends a fresh email-verify code to the user's
// current address, replacing any code sent before. It is a no-op for a
// user whose email is already verified.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		e.emitAudit(ctx, auditEventVerificationRequest, true, user.UserID, nil, func() map[string]string {
			return map[string]string{
				"flow": FlowEmailVerify,
				"noop": "already_verified",
			}
		})
		return nil
	}
	return e.sendEmailVerification(ctx, user)
}

func (e *Engine) sendEmailVerification(ctx context.Context, user UserRecord) error {
	return e.initiate(ctx, e.flows.emailVerify, flows.InitiateRequest{
		UserID:  user.UserID,
		To:      user.Email,
		Context: map[string]string{"login": user.Login},
	})
}

// ConfirmEmailVerification marks the user's email verified when code
// matches the pending email-verify entry.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrAuthorizationRequired
	}
	if _, err := e.confirm(ctx, e.flows.emailVerify, flows.ConfirmRequest{UserID: userID, Code: code}); err != nil {
		return err
	}
	e.metricInc(MetricEmailVerified)
	return nil
}
