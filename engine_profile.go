package tokenauth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/tokenauth/jwt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	maxBioLen      = 300

	defaultListLimit = 20
	maxListLimit     = 100
)

var avatarURLPattern = regexp.MustCompile(`(?i)^https?://.+\.(jpg|jpeg|png|gif|webp)$`)

// Validate verifies an access token and returns the identity it carries.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := e.jwt.Verify(accessToken, jwt.KindAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid.with(err)
	}
	return &AuthResult{UserID: claims.UID, Role: claims.Role}, nil
}

// Profile returns the account of userID.
func (e *Engine) Profile(ctx context.Context, userID string) (*User, error) {
	return e.findByID(ctx, userID)
}

// UpdateProfile applies the non-nil fields of update after validating them.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (user *User, err error) {
	ctx, finish := e.startFlow(ctx, FlowUpdateProfile)
	defer finish(&err)

	clean, details := sanitizeProfile(update)
	if len(details) > 0 {
		return nil, validationError(details...)
	}

	rctx, cancel := e.repoCtx(ctx)
	defer cancel()
	user, err = e.users.UpdateProfile(rctx, userID, clean)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return nil, ErrUsernameTaken
	case errors.Is(err, ErrUserNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, backendError(err)
	}
	return user, nil
}

func sanitizeProfile(update ProfileUpdate) (ProfileUpdate, []FieldError) {
	var (
		out     ProfileUpdate
		details []FieldError
	)
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		n := utf8.RuneCountInString(name)
		if n < minUsernameLen || n > maxUsernameLen {
			details = append(details, FieldError{Field: "username", Message: "Username must be between 3 and 50 characters"})
		}
		out.Username = &name
	}
	if update.Bio != nil {
		bio := strings.TrimSpace(*update.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			details = append(details, FieldError{Field: "bio", Message: "Bio must be at most 300 characters"})
		}
		out.Bio = &bio
	}
	if update.AvatarURL != nil {
		avatar := strings.TrimSpace(*update.AvatarURL)
		if avatar != "" && !avatarURLPattern.MatchString(avatar) {
			details = append(details, FieldError{Field: "avatarUrl", Message: "Avatar URL must be a valid image URL"})
		}
		out.AvatarURL = &avatar
	}
	return out, details
}

// ChangePassword replaces the password of an authenticated user. Every
// refresh session of the user is revoked and a fresh pair is returned.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) (pair TokenPair, err error) {
	ctx, finish := e.startFlow(ctx, FlowChangePassword)
	defer finish(&err)

	if current == "" || next == "" {
		return TokenPair{}, validationError(FieldError{Field: "newPassword", Message: "Current and new password are required"})
	}

	user, err := e.findByID(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}
	if !e.verifyPassword(user, current) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if current == next {
		return TokenPair{}, validationError(FieldError{Field: "newPassword", Message: "New password must differ from the current one"})
	}

	hash, err := e.hashPassword("newPassword", next)
	if err != nil {
		return TokenPair{}, err
	}

	rctx, cancel := e.repoCtx(ctx)
	err = e.users.UpdatePasswordHash(rctx, user.ID, hash)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrNotFound
		}
		return TokenPair{}, backendError(err)
	}

	if err := e.revokeSessions(ctx, user.ID); err != nil {
		return TokenPair{}, err
	}

	e.logger.InfoContext(ctx, "password changed", "user_id", user.ID)
	return e.issuePair(ctx, user)
}

// ListUsers returns a page of accounts. Only admins may call it.
func (e *Engine) ListUsers(ctx context.Context, caller *AuthResult, limit, offset int) ([]User, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	if caller.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rctx, cancel := e.repoCtx(ctx)
	defer cancel()
	users, err := e.users.List(rctx, limit, offset)
	if err != nil {
		return nil, backendError(err)
	}
	return users, nil
}
