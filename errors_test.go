package profileauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrPasswordMismatch, http.StatusBadRequest},
		{ErrLoginChangeCooldown, http.StatusBadRequest},
		{ErrVerificationInvalid, http.StatusBadRequest},
		{ErrVerificationNotFound, http.StatusBadRequest},
		{ErrDeliveryFailed, http.StatusBadRequest},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrSessionExpired, http.StatusUnauthorized},
		{ErrSessionStale, http.StatusForbidden},
		{ErrResetNotVerified, http.StatusForbidden},
		{ErrUserNotFound, http.StatusNotFound},
		{ErrConcurrentUpdate, http.StatusConflict},
		{ErrSignUpRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: dial tcp", ErrBackendUnavailable), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestSessionStaleCarriesBothClasses(t *testing.T) {
	if !errors.Is(ErrSessionStale, ErrForbidden) || !errors.Is(ErrSessionStale, ErrAuthentication) {
		t.Fatal("ErrSessionStale must wrap forbidden and authentication")
	}
	wrapped := fmt.Errorf("refresh: %w", ErrSessionStale)
	if HTTPStatus(wrapped) != http.StatusForbidden {
		t.Fatalf("expected 403 for wrapped stale error, got %d", HTTPStatus(wrapped))
	}
}
