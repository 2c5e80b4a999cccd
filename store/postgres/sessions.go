package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/profileauth/session"
)

// LoadRefreshHash implements session.Backend.
func (s *Store) LoadRefreshHash(ctx context.Context, userID string) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT refresh_token_hash FROM refresh_sessions WHERE user_id = $1`, userID).Scan(&digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("db error: %w", err)
	}
	return digest, true, nil
}

// StoreRefreshHash implements session.Backend. It replaces any stored digest.
func (s *Store) StoreRefreshHash(ctx context.Context, userID, digest string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (user_id, refresh_token_hash)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET refresh_token_hash = EXCLUDED.refresh_token_hash, updated_at = NOW()`,
		userID, digest)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ClearRefreshHash implements session.Backend. It is idempotent.
func (s *Store) ClearRefreshHash(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SwapRefreshHash implements session.Backend with a conditional UPDATE, so
// two concurrent exchanges of one token cannot both succeed.
func (s *Store) SwapRefreshHash(ctx context.Context, userID, expected, next string) (session.SwapResult, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET refresh_token_hash = $3, updated_at = NOW()
		WHERE user_id = $1 AND refresh_token_hash = $2`,
		userID, expected, next)
	if err != nil {
		return session.SwapMissing, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return session.SwapMissing, fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return session.SwapApplied, nil
	}

	_, ok, err := s.LoadRefreshHash(ctx, userID)
	if err != nil {
		return session.SwapMissing, err
	}
	if !ok {
		return session.SwapMissing, nil
	}
	return session.SwapMismatch, nil
}
