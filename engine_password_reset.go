package tokenauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/internal/actiontoken"
)

// ForgotPassword mails a reset link when an account exists for email. The
// result is identical whether or not it does.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, finish := e.startFlow(ctx, FlowForgotPassword)
	defer finish(&err)

	if err := e.consume(ctx, e.forgotLimiter, "forgot_password"); err != nil {
		return err
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := e.findByEmail(ctx, normalized)
	if errors.Is(err, ErrUserNotFound) {
		e.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	e.sendDetached(ctx, user, e.sendReset)
	return nil
}

// ResetPassword redeems a reset token, stores the new password and signs the
// user in. Existing refresh sessions are revoked when
// Config.Session.RevokeOnPasswordReset is set.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (pair TokenPair, err error) {
	ctx, finish := e.startFlow(ctx, FlowResetPassword)
	defer finish(&err)

	if token == "" {
		return TokenPair{}, ErrTokenMissing
	}

	hash, err := e.hashPassword("newPassword", newPassword)
	if err != nil {
		return TokenPair{}, err
	}

	userID, err := e.consumeAction(ctx, token, ActionPasswordReset, ActionEffect{PasswordHash: hash})
	if err != nil {
		return TokenPair{}, err
	}

	if e.config.Session.RevokeOnPasswordReset {
		if err := e.revokeSessions(ctx, userID); err != nil {
			return TokenPair{}, err
		}
	}

	user, err := e.findByID(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}

	e.logger.InfoContext(ctx, "password reset", "user_id", userID)
	return e.issuePair(ctx, user)
}

func (e *Engine) consumeAction(ctx context.Context, token string, kind ActionKind, effect ActionEffect) (string, error) {
	rctx, cancel := e.repoCtx(ctx)
	defer cancel()
	userID, err := e.actions.Consume(rctx, token, kind, effect)
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotFound) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", backendError(err)
	}
	return userID, nil
}
