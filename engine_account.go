package profileauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/profileauth/internal/limiters"
	"github.com/google/uuid"
)

// SignUp creates an unverified account, starts its first session and sends
// an email-verify code. A delivery failure does not undo the account: the
// result reports VerificationSent=false and RequestEmailVerification resends.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if e == nil || e.userProvider == nil || e.passwords == nil {
		return nil, ErrEngineNotReady
	}

	login := strings.TrimSpace(req.Login)
	email := strings.TrimSpace(req.Email)
	if login == "" || email == "" {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "empty_identifier",
			}
		})
		return nil, ErrInvalidInput
	}
	if err := e.checkNewPassword(req.Password, req.RePassword); err != nil {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", err, nil)
		return nil, err
	}

	if err := e.signUpLimiter.Allow(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrLimited) {
			e.metricInc(MetricSignUpRateLimited)
			e.emitAudit(ctx, auditEventSignUpRateLimited, false, "", ErrSignUpRateLimited, nil)
			return nil, ErrSignUpRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.ensureNewAccount(ctx, login, email); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricSignUpDuplicate)
			e.emitAudit(ctx, auditEventSignUpDuplicate, false, "", err, nil)
		}
		return nil, err
	}

	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		UserID:       uuid.NewString(),
		Login:        login,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrProviderDuplicate) {
			e.metricInc(MetricSignUpDuplicate)
			e.emitAudit(ctx, auditEventSignUpDuplicate, false, "", ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", err, nil)
		return nil, e.providerError(err)
	}

	pair, err := e.startSession(ctx, user.UserID, user.Login)
	if err != nil {
		e.emitAudit(ctx, auditEventSignUpFailure, false, user.UserID, err, nil)
		return nil, err
	}

	result := &SignUpResult{
		UserID:           user.UserID,
		Tokens:           pair,
		VerificationSent: true,
	}
	if err := e.sendEmailVerification(ctx, user); err != nil {
		result.VerificationSent = false
		e.logger.Warn("sign-up verification email not sent", "user_id", user.UserID, "error", err)
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, user.UserID, nil, nil)
	return result, nil
}

func (e *Engine) ensureNewAccount(ctx context.Context, login, email string) error {
	if _, err := e.userProvider.GetUserByLogin(ctx, login); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrProviderNotFound) {
		return e.providerError(err)
	}
	if _, err := e.userProvider.GetUserByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrProviderNotFound) {
		return e.providerError(err)
	}
	return nil
}
