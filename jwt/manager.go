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

// SigningMethod selects the JWS algorithm used for both token kinds.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 using a separate secret per kind.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with a single Ed25519 key pair; the kind claim keeps
	// access and refresh tokens apart.
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong kind,
	// wrong issuer or audience.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Config defines the signing keys and lifetimes of a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SigningMethod SigningMethod
	// AccessSecret and RefreshSecret are used with MethodHS256.
	AccessSecret  []byte
	RefreshSecret []byte
	// PrivateKey and PublicKey are used with MethodEd25519, either raw or PEM.
	PrivateKey []byte
	PublicKey  []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
	KeyID    string
}

// Claims is the payload of both token kinds. Role is empty on refresh tokens.
type Claims struct {
	UID  string `json:"uid"`
	Role string `json:"role,omitempty"`
	Kind Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Option customizes a Manager.
type Option func(*Manager)

// WithTimeFunc overrides the clock used for issuing and verifying.
func WithTimeFunc(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager issues and verifies access and refresh tokens. It holds no mutable
// state and is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time

	edPrivate ed25519.PrivateKey
	edPublic  ed25519.PublicKey
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, now: time.Now}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
			return nil, errors.New("hs256 requires access and refresh secrets")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.edPrivate = priv
			m.edPublic = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.edPublic = pub
		}
		if m.edPublic == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueAccess signs an access token for userID carrying role.
func (m *Manager) IssueAccess(userID, role string) (string, time.Time, error) {
	return m.issue(KindAccess, userID, role, "")
}

// IssueRefresh signs a refresh token for userID. Every call yields a distinct
// value through a random token id.
func (m *Manager) IssueRefresh(userID string) (string, time.Time, error) {
	return m.issue(KindRefresh, userID, "", uuid.NewString())
}

func (m *Manager) issue(kind Kind, userID, role, id string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := m.now()
	exp := now.Add(m.ttl(kind))

	claims := Claims{
		UID:  userID,
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	key, err := m.signKey(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and kind. It returns ErrTokenExpired for an
// otherwise valid token past its expiry and ErrTokenInvalid for everything
// else.
func (m *Manager) Verify(tokenStr string, kind Kind) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
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
		if m.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.verifyKey(kind)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind || claims.UID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// TTL returns the configured lifetime of kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	return m.ttl(kind)
}

func (m *Manager) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey(kind Kind) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.secret(kind), nil
	default:
		if m.edPrivate == nil {
			return nil, errors.New("manager is verify-only")
		}
		return m.edPrivate, nil
	}
}

func (m *Manager) verifyKey(kind Kind) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.secret(kind), nil
	default:
		return m.edPublic, nil
	}
}

func (m *Manager) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
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
