package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned when a stored hash matches no known scheme.
var ErrUnsupportedHash = errors.New("unsupported password hash")

// Verifier hashes new passwords with argon2id and verifies both argon2id and
// legacy bcrypt hashes. Accounts imported from older deployments keep
// working until their next password change, and NeedsRehash flags them.
type Verifier struct {
	argon *Argon2
}

// NewVerifier returns a Verifier that hashes with cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{argon: a}, nil
}

// Hash returns an argon2id PHC hash of password.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

// Verify reports whether password matches encodedHash.
func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return v.argon.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// argon2id hash with the current parameters.
func (v *Verifier) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(encodedHash)
	return err != nil || upgrade
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
