package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// DefaultMaxPasswordBytes caps argon2 input when Config.MaxPasswordBytes is
// zero.
const DefaultMaxPasswordBytes = 1024

// Lower bounds accepted both for Config and for parameters read back out of
// a stored hash.
var floor = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash wraps every decoding failure of a stored hash.
	ErrMalformedHash = errors.New("malformed argon2id hash")
)

// Config holds argon2id costs. Memory is in KiB. Length policy lives in the
// engine, not here.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < floor.Memory:
		return fmt.Errorf("password memory must be >= %d KiB", floor.Memory)
	case c.Time < floor.Time:
		return fmt.Errorf("password time must be >= %d", floor.Time)
	case c.Parallelism < floor.Parallelism:
		return fmt.Errorf("password parallelism must be >= %d", floor.Parallelism)
	case c.SaltLength < floor.SaltLength:
		return fmt.Errorf("password salt length must be >= %d", floor.SaltLength)
	case c.KeyLength < floor.KeyLength:
		return fmt.Errorf("password key length must be >= %d", floor.KeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Argon2 is an immutable argon2id hasher; safe for concurrent use.
type Argon2 struct {
	cfg Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key for password under a fresh salt and returns it in PHC
// form. The password bytes are used as given, without normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.cfg.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	p := phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p.key = p.derive(password, a.cfg.KeyLength)
	return p.String(), nil
}

// Verify compares password with a stored hash in constant time. A wrong
// password is (false, nil); an unreadable hash is an error.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := p.derive(password, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash is cheaper than the current
// costs or has a different key length.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength
	return weaker, nil
}

// phc is the decoded form of $argon2id$v=19$m=..,t=..,p=..$salt$key.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

var b64 = base64.StdEncoding

func (p phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func decodePHC(s string) (phc, error) {
	var p phc
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, fmt.Errorf("%w: expected 5 sections", ErrMalformedHash)
	}
	if fields[1] != algorithmID {
		return p, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: version section", ErrMalformedHash)
	}
	if version != argon2.Version {
		return p, fmt.Errorf("%w: version %d", ErrMalformedHash, version)
	}

	// Round-trip the section so reordered keys or trailing junk fail.
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil ||
		fields[3] != fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism) {
		return p, fmt.Errorf("%w: parameter section", ErrMalformedHash)
	}
	if p.memory < floor.Memory || p.time < floor.Time || p.parallelism < floor.Parallelism {
		return p, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	var err error
	if p.salt, err = b64.DecodeString(fields[4]); err != nil || uint32(len(p.salt)) < floor.SaltLength {
		return p, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.key, err = b64.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return p, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, nil
}
