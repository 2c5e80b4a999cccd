package flows

import (
	"context"
	"errors"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureNoSession
	RefreshFailureMismatch
	RefreshFailureIssue
	RefreshFailureBackend
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	Login        string
	AccessToken  string
	RefreshToken string
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, userID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	// ParseRefresh verifies a refresh token and returns its subject and login.
	ParseRefresh func(string) (string, string, error)
	// IssuePair mints a fresh access and refresh token for subject and login.
	IssuePair func(userID, login string) (string, string, error)
	// Exchange swaps the stored refresh state from presented to next.
	Exchange    func(ctx context.Context, userID, presented, next string) error
	RateLimiter RefreshRateLimiter
	NoSession   error
	Mismatch    error
}

// RunRefresh exchanges a refresh token for a new pair. The presented token
// stops being valid the moment this succeeds.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing, Err: errors.New("refresh token missing")}
	}

	userID, login, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, userID); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, UserID: userID}
		}
	}

	access, refresh, err := deps.IssuePair(userID, login)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: userID}
	}

	if err := deps.Exchange(ctx, userID, refreshToken, refresh); err != nil {
		switch {
		case deps.NoSession != nil && errors.Is(err, deps.NoSession):
			return RefreshResult{Failure: RefreshFailureNoSession, Err: err, UserID: userID}
		case deps.Mismatch != nil && errors.Is(err, deps.Mismatch):
			return RefreshResult{Failure: RefreshFailureMismatch, Err: err, UserID: userID}
		default:
			return RefreshResult{Failure: RefreshFailureBackend, Err: err, UserID: userID}
		}
	}

	return RefreshResult{
		UserID:       userID,
		Login:        login,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
