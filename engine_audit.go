package profileauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/profileauth/internal/flows"
	"github.com/MrEthical07/profileauth/internal/limiters"
	"github.com/MrEthical07/profileauth/internal/stores"
)

const (
	auditEventSignUpSuccess          = "sign_up_success"
	auditEventSignUpFailure          = "sign_up_failure"
	auditEventSignUpDuplicate        = "sign_up_duplicate"
	auditEventSignUpRateLimited      = "sign_up_rate_limited"
	auditEventSignInSuccess          = "sign_in_success"
	auditEventSignInFailure          = "sign_in_failure"
	auditEventSignInRateLimited      = "sign_in_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventRefreshRateLimited     = "refresh_rate_limited"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventSilentRefresh          = "silent_refresh"
	auditEventAuthenticateRejected   = "authenticate_rejected"
	auditEventLogout                 = "logout"
	auditEventVerificationRequest    = "verification_request"
	auditEventVerificationConfirm    = "verification_confirm"
	auditEventPasswordResetSuccess   = "password_reset_success"
	auditEventPasswordResetForbidden = "password_reset_forbidden"
)

// AuditErrorCode is the stable label written to AuditEvent.Reason.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrSessionStale       AuditErrorCode = "session_stale"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrCodeNotFound       AuditErrorCode = "code_not_found"
	auditErrDelivery           AuditErrorCode = "delivery_failed"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	attrsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var attrs map[string]string
	if attrsBuilder != nil {
		attrs = attrsBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrs["user_agent"] = ua
	}

	e.audit.Emit(ctx, AuditEvent{
		At:        e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		OK:        success,
		Reason:    string(auditErrorCode(err)),
		Attrs:     attrs,
	})
}

// auditErrorCode never echoes err.Error(): wrapped backend errors may carry
// addresses or payload fragments.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrCurrentPasswordInvalid):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrSessionStale):
		return auditErrSessionStale
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrAuthorizationRequired):
		return auditErrInvalidToken
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrVerificationNotFound), errors.Is(err, flows.ErrEntryNotFound):
		return auditErrCodeNotFound
	case errors.Is(err, ErrVerification), errors.Is(err, flows.ErrCodeMismatch):
		return auditErrCodeInvalid
	case errors.Is(err, ErrDelivery):
		return auditErrDelivery
	case errors.Is(err, ErrNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrRateLimited), errors.Is(err, limiters.ErrLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, stores.ErrPendingUnavailable),
		errors.Is(err, limiters.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
