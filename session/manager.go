package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when the user has no live refresh state,
	// for example after logout.
	ErrNoSession = errors.New("no active session")
	// ErrMismatch is returned when the presented token is not the one most
	// recently rotated in.
	ErrMismatch = errors.New("refresh token mismatch")
	// ErrUnavailable wraps backend faults.
	ErrUnavailable = errors.New("session backend unavailable")
)

// Backend persists the refresh digest for each user.
//
// SwapRefreshHash must replace expected with next only when the stored value
// equals expected, and report which of the three outcomes happened.
type Backend interface {
	LoadRefreshHash(ctx context.Context, userID string) (string, bool, error)
	StoreRefreshHash(ctx context.Context, userID, digest string) error
	ClearRefreshHash(ctx context.Context, userID string) error
	SwapRefreshHash(ctx context.Context, userID, expected, next string) (SwapResult, error)
}

// SwapResult is the outcome of a compare-and-swap on the refresh digest.
type SwapResult int

const (
	// SwapMissing means no digest was stored.
	SwapMissing SwapResult = iota
	// SwapMismatch means a different digest was stored and nothing changed.
	SwapMismatch
	// SwapApplied means the digest was replaced.
	SwapApplied
)

// Manager rotates, validates and invalidates refresh-token state.
type Manager struct {
	backend Backend
}

// NewManager returns a Manager over backend.
func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Digest returns the hex SHA-256 of a refresh token as stored at rest.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Rotate makes refreshToken the only valid refresh token for userID.
func (m *Manager) Rotate(ctx context.Context, userID, refreshToken string) error {
	if userID == "" || refreshToken == "" {
		return errors.New("session: empty user or token")
	}
	if err := m.backend.StoreRefreshHash(ctx, userID, Digest(refreshToken)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Validate checks presented against the stored state without changing it.
func (m *Manager) Validate(ctx context.Context, userID, presented string) error {
	stored, ok, err := m.backend.LoadRefreshHash(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok || stored == "" {
		return ErrNoSession
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(Digest(presented))) != 1 {
		return ErrMismatch
	}
	return nil
}

// Exchange atomically replaces presented with next. Exactly one of several
// concurrent exchanges presenting the same token succeeds; the rest observe
// ErrMismatch.
func (m *Manager) Exchange(ctx context.Context, userID, presented, next string) error {
	if next == "" {
		return errors.New("session: empty replacement token")
	}
	res, err := m.backend.SwapRefreshHash(ctx, userID, Digest(presented), Digest(next))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch res {
	case SwapApplied:
		return nil
	case SwapMissing:
		return ErrNoSession
	default:
		return ErrMismatch
	}
}

// Invalidate clears the refresh state. It is idempotent.
func (m *Manager) Invalidate(ctx context.Context, userID string) error {
	if err := m.backend.ClearRefreshHash(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
