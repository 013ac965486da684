package actiontoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Kind selects the token field on the user record.
type Kind uint8

const (
	KindEmailVerification Kind = iota + 1
	KindPasswordReset
)

func (k Kind) String() string {
	switch k {
	case KindEmailVerification:
		return "email_verification"
	case KindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

const tokenBytes = 32

var (
	// ErrNotFound is returned when no user holds a live token matching the
	// presented value.
	ErrNotFound = errors.New("action token not found or expired")
	// ErrInvalidKind is returned for a Kind outside the known set.
	ErrInvalidKind = errors.New("invalid action token kind")
)

// Effect is applied by the store in the same write that clears a consumed
// token.
type Effect struct {
	MarkEmailVerified bool
	PasswordHash      string
}

// Store persists token hashes on the user record.
type Store interface {
	// SetActionToken overwrites the token hash and expiry of the given kind
	// for userID.
	SetActionToken(ctx context.Context, userID string, kind Kind, tokenHash string, expiresAt time.Time) error
	// ConsumeActionToken finds the user whose token of the given kind equals
	// tokenHash and whose expiry is after now, clears token and expiry, and
	// applies effect, all in one operation. It returns ErrNotFound when
	// nothing matches.
	ConsumeActionToken(ctx context.Context, kind Kind, tokenHash string, now time.Time, effect Effect) (string, error)
}

// Config sets per-kind lifetimes.
type Config struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Issuer generates and consumes action tokens against a [Store].
type Issuer struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewIssuer creates an Issuer. A nil now defaults to time.Now.
func NewIssuer(store Store, cfg Config, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{store: store, config: cfg, now: now}
}

// Issue creates a fresh token of the given kind for userID and persists its
// hash, superseding any outstanding token of the same kind.
func (i *Issuer) Issue(ctx context.Context, userID string, kind Kind) (string, time.Time, error) {
	ttl, err := i.ttl(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("generate %s token: %w", kind, err)
	}
	token := hex.EncodeToString(raw)
	expiresAt := i.now().Add(ttl).UTC()

	if err := i.store.SetActionToken(ctx, userID, kind, Hash(token), expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Consume redeems token and applies effect. It returns the owning user id.
func (i *Issuer) Consume(ctx context.Context, token string, kind Kind, effect Effect) (string, error) {
	if _, err := i.ttl(kind); err != nil {
		return "", err
	}
	if !wellFormed(token) {
		return "", ErrNotFound
	}
	return i.store.ConsumeActionToken(ctx, kind, Hash(token), i.now().UTC(), effect)
}

// TTL returns the configured lifetime for kind.
func (i *Issuer) TTL(kind Kind) time.Duration {
	ttl, _ := i.ttl(kind)
	return ttl
}

func (i *Issuer) ttl(kind Kind) (time.Duration, error) {
	switch kind {
	case KindEmailVerification:
		return i.config.VerificationTTL, nil
	case KindPasswordReset:
		return i.config.ResetTTL, nil
	default:
		return 0, ErrInvalidKind
	}
}

// Hash returns the hex SHA-256 of a token, the form stored on user records.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func wellFormed(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
