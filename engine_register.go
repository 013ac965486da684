package tokenauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Register creates an unverified account, signs the caller in and mails a
// verification link.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	ctx, finish := e.startFlow(ctx, FlowRegister)
	defer finish(&err)

	var details []FieldError
	email, emailErr := normalizeEmail(req.Email)
	if typed, ok := asError(emailErr); ok {
		details = append(details, typed.Details...)
	}
	details = append(details, e.passwordProblems("password", req.Password)...)
	if len(details) > 0 {
		return nil, validationError(details...)
	}

	hash, err := e.hashPassword("password", req.Password)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	rctx, cancel := e.repoCtx(ctx)
	err = e.users.Create(rctx, user)
	cancel()
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, backendError(err)
	}

	pair, err := e.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	// The account exists at this point; a lost verification mail is
	// recoverable through ResendVerification.
	if err := e.sendVerification(ctx, user); err != nil {
		e.logger.ErrorContext(ctx, "verification token not issued", "user_id", user.ID, "error", err)
	}

	e.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return &RegisterResult{TokenPair: pair, User: *user}, nil
}

// sendVerification issues a verification token for user, superseding any
// outstanding one, and mails it.
func (e *Engine) sendVerification(ctx context.Context, user *User) error {
	return e.sendActionToken(ctx, user, ActionEmailVerification, e.templates.verificationMessage)
}

// sendReset issues a password reset token for user and mails it.
func (e *Engine) sendReset(ctx context.Context, user *User) error {
	return e.sendActionToken(ctx, user, ActionPasswordReset, e.templates.resetMessage)
}

// sendDetached runs send after the caller returns, so the response time of
// non-disclosing flows does not depend on whether the account exists.
func (e *Engine) sendDetached(ctx context.Context, user *User, send func(context.Context, *User) error) {
	ctx = context.WithoutCancel(ctx)
	e.pendingMail.Add(1)
	go func() {
		defer e.pendingMail.Done()
		if err := send(ctx, user); err != nil {
			e.logger.ErrorContext(ctx, "action token not issued", "user_id", user.ID, "error", err)
		}
	}()
}

func (e *Engine) sendActionToken(
	ctx context.Context,
	user *User,
	kind ActionKind,
	render func(to, token, expiresIn string) (Message, error),
) error {
	rctx, cancel := e.repoCtx(ctx)
	token, _, err := e.actions.Issue(rctx, user.ID, kind)
	cancel()
	if err != nil {
		return backendError(err)
	}

	msg, err := render(user.Email, token, humanDuration(e.actions.TTL(kind)))
	if err != nil {
		return ErrInternal.with(err)
	}
	e.notify(ctx, msg)
	return nil
}

// humanDuration renders d for email copy: "24 hours", "1 hour", "15 minutes".
func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return strconv.Itoa(h) + " hours"
	}
	m := int(d / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return strconv.Itoa(m) + " minutes"
}
