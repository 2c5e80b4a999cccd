package profileauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes. Every concrete error below wraps exactly one class (two for
// ErrSessionStale), so callers can classify with errors.Is without knowing
// the concrete sentinel.
var (
	// ErrValidation marks malformed or conflicting input.
	ErrValidation = errors.New("validation error")
	// ErrAuthentication marks missing or bad credentials.
	ErrAuthentication = errors.New("authentication error")
	// ErrForbidden marks a recognised caller that may not proceed.
	ErrForbidden = errors.New("forbidden")
	// ErrVerification marks a failed verification code check.
	ErrVerification = errors.New("verification error")
	// ErrDelivery marks a notification that could not be sent.
	ErrDelivery = errors.New("delivery error")
	// ErrNotFound marks a missing user.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that collided with existing state.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited marks a throttled caller.
	ErrRateLimited = errors.New("rate limited")
)

var (
	ErrPasswordMismatch    = fmt.Errorf("%w: passwords do not match", ErrValidation)
	ErrPasswordPolicy      = fmt.Errorf("%w: password policy violation", ErrValidation)
	ErrAccountExists       = fmt.Errorf("%w: account already exists", ErrValidation)
	ErrLoginTaken          = fmt.Errorf("%w: login already taken", ErrValidation)
	ErrEmailTaken          = fmt.Errorf("%w: email already taken", ErrValidation)
	ErrLoginChangeCooldown = fmt.Errorf("%w: login was changed less than 30 days ago", ErrValidation)
	ErrInvalidInput        = fmt.Errorf("%w: invalid input", ErrValidation)

	ErrInvalidCredentials     = fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	ErrTokenInvalid           = fmt.Errorf("%w: invalid token", ErrAuthentication)
	ErrAuthorizationRequired  = fmt.Errorf("%w: authorization required", ErrAuthentication)
	ErrSessionExpired         = fmt.Errorf("%w: session expired", ErrAuthentication)
	ErrCurrentPasswordInvalid = fmt.Errorf("%w: current password is incorrect", ErrAuthentication)

	// ErrSessionStale is returned when a well-formed refresh token is no
	// longer the live one, after rotation or logout.
	ErrSessionStale = fmt.Errorf("%w: %w: session is no longer valid", ErrForbidden, ErrAuthentication)
	// ErrResetNotVerified is returned by ResetPassword before a forgot-password
	// code was confirmed.
	ErrResetNotVerified = fmt.Errorf("%w: password reset not verified", ErrForbidden)

	ErrVerificationInvalid  = fmt.Errorf("%w: invalid verification code", ErrVerification)
	ErrVerificationNotFound = fmt.Errorf("%w: no pending verification", ErrVerification)

	ErrDeliveryFailed = fmt.Errorf("%w: could not send verification code", ErrDelivery)

	ErrUserNotFound = fmt.Errorf("%w: user not found", ErrNotFound)

	ErrLoginRateLimited        = fmt.Errorf("%w: too many sign-in attempts", ErrRateLimited)
	ErrRefreshRateLimited      = fmt.Errorf("%w: too many refresh attempts", ErrRateLimited)
	ErrSignUpRateLimited       = fmt.Errorf("%w: too many sign-up attempts", ErrRateLimited)
	ErrVerificationRateLimited = fmt.Errorf("%w: too many verification attempts", ErrRateLimited)

	ErrConcurrentUpdate = fmt.Errorf("%w: concurrent update", ErrConflict)
)

var (
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrBackendUnavailable wraps faults from Redis or the user store.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Errors a UserProvider returns so the engine can tell "absent" and
// "duplicate" apart from faults.
var (
	ErrProviderNotFound  = errors.New("provider: user not found")
	ErrProviderDuplicate = errors.New("provider: duplicate identifier")
)

// HTTPStatus maps an engine error to its HTTP status code. Forbidden is
// checked before authentication because ErrSessionStale carries both.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, ErrVerification), errors.Is(err, ErrDelivery):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
