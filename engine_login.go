package tokenauth

import (
	"context"
	"errors"
	"strings"
)

// Login checks credentials and issues a token pair. Attempts are charged to
// the login limiter before any lookup.
func (e *Engine) Login(ctx context.Context, email, plain string) (pair TokenPair, err error) {
	ctx, finish := e.startFlow(ctx, FlowLogin)
	defer finish(&err)

	if err := e.consume(ctx, e.loginLimiter, "login"); err != nil {
		return TokenPair{}, err
	}

	if strings.TrimSpace(email) == "" || plain == "" {
		return TokenPair{}, validationError(FieldError{Field: "email", Message: "Email and password are required"})
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		// Still burn a hash so malformed input is not distinguishable by timing.
		e.verifyPassword(nil, plain)
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := e.findByEmail(ctx, normalized)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return TokenPair{}, err
	}
	if !e.verifyPassword(user, plain) {
		return TokenPair{}, ErrInvalidCredentials
	}

	if e.config.EmailVerification.RequireForLogin && !user.EmailVerified {
		return TokenPair{}, ErrEmailNotVerified
	}

	pair, err = e.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	e.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}
