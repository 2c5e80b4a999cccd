package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/profileauth"
)

const userColumns = `id, login, email, phone_number, password_hash, is_email_verified, is_reset_verified, last_login_change_at`

func (s *Store) GetUserByID(ctx context.Context, userID string) (profileauth.UserRecord, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (profileauth.UserRecord, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (profileauth.UserRecord, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (profileauth.UserRecord, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
		}
		return profileauth.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new, unverified user. A taken login or email returns
// profileauth.ErrProviderDuplicate.
func (s *Store) CreateUser(ctx context.Context, input profileauth.CreateUserInput) (profileauth.UserRecord, error) {
	query := `INSERT INTO users (id, login, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, input.UserID, input.Login, input.Email, input.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
		}
		return profileauth.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// UpdateUser writes the non-nil fields of update in one statement.
func (s *Store) UpdateUser(ctx context.Context, userID string, update profileauth.UserUpdate) (profileauth.UserRecord, error) {
	sets, args := updateAssignments(update)
	if len(sets) == 0 {
		return s.GetUserByID(ctx, userID)
	}

	args = append(args, userID)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE id = $` + strconv.Itoa(len(args)) + `
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, sql.ErrNoRows):
		return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
	case isUniqueViolation(err):
		return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
	default:
		return profileauth.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
}

func updateAssignments(u profileauth.UserUpdate) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if u.Login != nil {
		add("login", *u.Login)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.PhoneNumber != nil {
		add("phone_number", *u.PhoneNumber)
	}
	if u.PasswordHash != nil {
		add("password_hash", *u.PasswordHash)
	}
	if u.IsEmailVerified != nil {
		add("is_email_verified", *u.IsEmailVerified)
	}
	if u.IsResetVerified != nil {
		add("is_reset_verified", *u.IsResetVerified)
	}
	if u.LastLoginChangeAt != nil {
		add("last_login_change_at", u.LastLoginChangeAt.UTC())
	}
	return sets, args
}

func scanUser(row *sql.Row) (profileauth.UserRecord, error) {
	var (
		user          profileauth.UserRecord
		lastChangedAt sql.NullTime
	)
	err := row.Scan(
		&user.UserID,
		&user.Login,
		&user.Email,
		&user.PhoneNumber,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.IsResetVerified,
		&lastChangedAt,
	)
	if err != nil {
		return profileauth.UserRecord{}, err
	}
	if lastChangedAt.Valid {
		t := lastChangedAt.Time
		user.LastLoginChangeAt = &t
	}
	return user, nil
}
