package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used by a [Manager].
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret. It is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenExpired is returned by [Manager.Parse] when the signature is valid
	// but the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned by [Manager.Parse] for malformed tokens, bad
	// signatures, wrong algorithms and any other claim failure.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config describes one token class. Access and refresh tokens each get their
// own Config, so their secrets and TTLs never mix.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// Now overrides the clock used for issuance and expiry checks.
	Now func() time.Time
}

// Manager issues and verifies tokens of a single class.
//
// Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the signed claim set carried by both access and refresh tokens.
// Subject holds the user id; ID holds a random jti so that two tokens minted
// within the same second are still distinct.
type Claims struct {
	Login string `json:"login,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the lifetime of tokens issued by the manager.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue mints a token for subject. login is carried as an extra claim when
// non-empty.
func (m *Manager) Issue(subject, login string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("empty subject")
	}

	now := m.config.Now()
	claims := &Claims{
		Login: login,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signKey, err := m.signKey()
	if err != nil {
		return "", nil, err
	}

	token, err := jwt.NewWithClaims(m.method(), claims).SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Parse verifies tokenStr and returns its claims. The error is ErrTokenExpired
// when only the expiry check failed and ErrTokenInvalid otherwise; both wrap
// the underlying parser error.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		// golang-jwt checks the signature before claims, so an expired error
		// here implies the token was genuinely signed with our key.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.Secret, nil
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(m.config.PublicKey)
	default:
		return m.config.Secret, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
