// Package postgres implements [tokenauth.UserRepository] on PostgreSQL with
// pgx. Action tokens live in nullable hash and expiry columns on the users
// table; consuming one is a single conditional UPDATE.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/actiontoken"
)

const (
	emailConstraint    = "users_email_key"
	usernameConstraint = "users_username_key"
)

const userColumns = `id, email, password_hash, role, email_verified, COALESCE(username, ''), bio, avatar_url, created_at, updated_at`

// poolIface is the subset of pgxpool.Pool the repository uses. pgxmock
// satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repository implements tokenauth.UserRepository using PostgreSQL.
type Repository struct {
	pool poolIface
}

// New creates a Repository over pool.
func New(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("POSTGRES_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Ping checks database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("POSTGRES_PING_FAILED").Wrap(err)
	}
	return nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*tokenauth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tokenauth.ErrUserNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find by email").Wrap(err)
	}
	return u, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*tokenauth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tokenauth.ErrUserNotFound
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "find by id").With("user_id", id).Wrap(err)
	}
	return u, nil
}

func (r *Repository) Create(ctx context.Context, user *tokenauth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, role, email_verified, username, bio, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
	`, user.ID, user.Email, user.PasswordHash, user.Role, user.EmailVerified,
		user.Username, user.Bio, user.AvatarURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return taken
		}
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", id).With("field", "password_hash").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return tokenauth.ErrUserNotFound
	}
	return nil
}

// UpdateProfile writes the non-nil fields of update. An empty username
// clears it.
func (r *Repository) UpdateProfile(ctx context.Context, id string, update tokenauth.ProfileUpdate) (*tokenauth.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET
			username   = CASE WHEN $2::boolean THEN NULLIF($3, '') ELSE username END,
			bio        = COALESCE($4, bio),
			avatar_url = COALESCE($5, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, update.Username != nil, deref(update.Username), update.Bio, update.AvatarURL)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tokenauth.ErrUserNotFound
	}
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return nil, taken
		}
		return nil, oops.Code("USER_UPDATE_FAILED").With("user_id", id).With("field", "profile").Wrap(err)
	}
	return u, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]tokenauth.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list").Wrap(err)
	}
	defer rows.Close()

	users := make([]tokenauth.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan user row").Wrap(err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return users, nil
}

func (r *Repository) SetActionToken(ctx context.Context, userID string, kind actiontoken.Kind, tokenHash string, expiresAt time.Time) error {
	cols, err := actionColumns(kind)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET `+cols.hash+` = $2, `+cols.expires+` = $3, updated_at = now() WHERE id = $1`,
		userID, tokenHash, expiresAt)
	if err != nil {
		return oops.Code("ACTION_TOKEN_SET_FAILED").With("user_id", userID).With("kind", kind.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return tokenauth.ErrUserNotFound
	}
	return nil
}

// ConsumeActionToken clears a live token and applies effect in one UPDATE.
// Row locking makes concurrent consumers of the same token serialize; only
// the first still sees a matching row.
func (r *Repository) ConsumeActionToken(ctx context.Context, kind actiontoken.Kind, tokenHash string, now time.Time, effect actiontoken.Effect) (string, error) {
	cols, err := actionColumns(kind)
	if err != nil {
		return "", err
	}

	var id string
	err = r.pool.QueryRow(ctx, `
		UPDATE users SET
			`+cols.hash+` = NULL,
			`+cols.expires+` = NULL,
			email_verified = email_verified OR $3,
			password_hash  = COALESCE(NULLIF($4, ''), password_hash),
			updated_at     = $2
		WHERE `+cols.hash+` = $1 AND `+cols.expires+` > $2
		RETURNING id`,
		tokenHash, now, effect.MarkEmailVerified, effect.PasswordHash).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", actiontoken.ErrNotFound
	}
	if err != nil {
		return "", oops.Code("ACTION_TOKEN_CONSUME_FAILED").With("kind", kind.String()).Wrap(err)
	}
	return id, nil
}

// SetRole changes the role of id. Used by the admin seeding command.
func (r *Repository) SetRole(ctx context.Context, id, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", id).With("field", "role").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return tokenauth.ErrUserNotFound
	}
	return nil
}

type tokenColumns struct {
	hash    string
	expires string
}

func actionColumns(kind actiontoken.Kind) (tokenColumns, error) {
	switch kind {
	case actiontoken.KindEmailVerification:
		return tokenColumns{hash: "verification_token_hash", expires: "verification_token_expires_at"}, nil
	case actiontoken.KindPasswordReset:
		return tokenColumns{hash: "reset_token_hash", expires: "reset_token_expires_at"}, nil
	default:
		return tokenColumns{}, actiontoken.ErrInvalidKind
	}
}

func scanUser(row pgx.Row) (*tokenauth.User, error) {
	var u tokenauth.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.EmailVerified,
		&u.Username, &u.Bio, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailConstraint:
		return tokenauth.ErrEmailTaken
	case usernameConstraint:
		return tokenauth.ErrUsernameTaken
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
