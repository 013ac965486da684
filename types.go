package tokenauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/internal/actiontoken"
)

// Role names understood by the engine. The repository may store others; the
// engine only distinguishes admins for [Engine.ListUsers].
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the account record owned by the [UserRepository]. Action-token
// values are never exposed here; the repository keeps only their hashes.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	EmailVerified bool

	Username  string
	Bio       string
	AvatarURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActionKind selects which single-use token field on the user record an
// operation targets.
type ActionKind = actiontoken.Kind

const (
	ActionEmailVerification = actiontoken.KindEmailVerification
	ActionPasswordReset     = actiontoken.KindPasswordReset
)

// ActionEffect is applied by the repository in the same write that clears a
// consumed action token.
type ActionEffect = actiontoken.Effect

// ProfileUpdate lists the user-editable profile fields. Nil pointers are left
// unchanged.
type ProfileUpdate struct {
	Username  *string
	Bio       *string
	AvatarURL *string
}

// UserRepository is the persistence contract the engine consumes. Emails are
// passed already normalized (trimmed, lower-cased).
//
// Implementations must make ConsumeActionToken atomic: a token may be matched
// and cleared by at most one caller.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// UpdateProfile returns ErrUsernameTaken on a username collision.
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)

	actiontoken.Store
}

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Notifier delivers outbound email.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// TokenPair is the credential pair returned by login-like flows.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	TokenPair
	User User
}

// AuthResult is the identity carried by a verified access token.
type AuthResult struct {
	UserID string
	Role   string
}
