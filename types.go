package profileauth

import (
	"context"
	"time"
)

// UserProvider is the persistent user store the engine writes through.
// Lookups return ErrProviderNotFound when no row matches; CreateUser and
// UpdateUser return ErrProviderDuplicate on a unique login or email
// violation. Any other error is treated as a backend fault.
//
// store/postgres provides an implementation.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByLogin(ctx context.Context, login string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdateUser(ctx context.Context, userID string, update UserUpdate) (UserRecord, error)
}

// UserRecord is the identity slice of a user the engine reads and mutates.
type UserRecord struct {
	UserID            string
	Login             string
	Email             string
	PhoneNumber       string
	PasswordHash      string
	IsEmailVerified   bool
	IsResetVerified   bool
	LastLoginChangeAt *time.Time
}

// CreateUserInput is the input for UserProvider.CreateUser. UserID is
// pre-generated by the engine; providers may keep it or assign their own.
type CreateUserInput struct {
	UserID       string
	Login        string
	Email        string
	PasswordHash string
}

// UserUpdate is a partial update. Nil fields are left unchanged.
type UserUpdate struct {
	Login             *string
	Email             *string
	PhoneNumber       *string
	PasswordHash      *string
	IsEmailVerified   *bool
	IsResetVerified   *bool
	LastLoginChangeAt *time.Time
}

// TokenPair is an access and refresh token minted together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Credentials are the tokens a request presents. Either may be empty.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by Engine.Authenticate for an admitted request.
// Tokens is non-nil when the request was admitted through a silent refresh;
// the caller must hand the new pair back to the client.
type AuthResult struct {
	UserID string
	Login  string
	State  string
	Tokens *TokenPair
}

// SignUpRequest is the input for Engine.SignUp.
type SignUpRequest struct {
	Login      string
	Email      string
	Password   string
	RePassword string
}

// SignUpResult is returned by Engine.SignUp. VerificationSent is false when
// the email-verify code could not be delivered; the account still exists
// and RequestEmailVerification resends.
type SignUpResult struct {
	UserID           string
	Tokens           TokenPair
	VerificationSent bool
}

// PasswordChangeRequest is the input for Engine.RequestPasswordChange.
type PasswordChangeRequest struct {
	CurrentPassword string
	NewPassword     string
	RePassword      string
}

func stringPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
