package tokenauth

import (
	"context"
	"errors"
)

// VerifyEmail redeems a verification token and marks the owner verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (err error) {
	ctx, finish := e.startFlow(ctx, FlowVerifyEmail)
	defer finish(&err)

	if token == "" {
		return ErrTokenMissing
	}

	userID, err := e.consumeAction(ctx, token, ActionEmailVerification, ActionEffect{MarkEmailVerified: true})
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "email verified", "user_id", userID)
	return nil
}

// ResendVerification supersedes the outstanding verification token of an
// unverified account and mails the new one. Unknown and already verified
// addresses get the same result as a successful send.
func (e *Engine) ResendVerification(ctx context.Context, email string) (err error) {
	ctx, finish := e.startFlow(ctx, FlowResendVerification)
	defer finish(&err)

	if err := e.consume(ctx, e.resendLimiter, "resend_verification"); err != nil {
		return err
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := e.findByEmail(ctx, normalized)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}

	e.sendDetached(ctx, user, e.sendVerification)
	return nil
}
