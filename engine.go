package tokenauth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tokenauth/internal/actiontoken"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Engine runs the authentication flows. It is immutable after
// [Builder.Build] and safe for concurrent use.
type Engine struct {
	config   Config
	users    UserRepository
	notifier Notifier
	sessions *session.Store

	// nil when the limiter is disabled
	loginLimiter  rate.Limiter
	forgotLimiter rate.Limiter
	resendLimiter rate.Limiter

	actions   *actiontoken.Issuer
	jwt       *jwt.Manager
	hasher    password.Hasher
	dummyHash string
	templates *mailer

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time

	// mail handed off by ForgotPassword and ResendVerification
	pendingMail sync.WaitGroup
}

// Ping checks the session store backend.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return backendError(e.sessions.Ping(ctx))
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Timeouts.Store)
}

func (e *Engine) repoCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Timeouts.Repository)
}

// startFlow opens a span for flow. The returned finish records the outcome
// on the span and the flow counter, and must be deferred with the named
// error result.
func (e *Engine) startFlow(ctx context.Context, flow string) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "tokenauth."+flow, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		span.SetAttributes(attribute.String("tokenauth.outcome", outcomeLabel(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcomeLabel(err))
		}
		span.End()
		e.metrics.flow(flow, err)
	}
}

// consume spends one point of l for the caller's IP.
func (e *Engine) consume(ctx context.Context, l rate.Limiter, name string) error {
	if l == nil {
		return nil
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	_, err := l.Consume(ctx, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	var limited *rate.LimitedError
	if errors.As(err, &limited) {
		e.metrics.rateLimited(name)
		return rateLimitedError(limited.RetryAfter)
	}
	return backendError(err)
}

// issuePair signs an access and a refresh token and records the refresh token
// in the session store.
func (e *Engine) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	access, _, err := e.jwt.IssueAccess(user.ID, user.Role)
	if err != nil {
		return TokenPair{}, ErrInternal.with(err)
	}
	refresh, _, err := e.jwt.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, ErrInternal.with(err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessions.Put(sctx, refresh, user.ID, e.jwt.TTL(jwt.KindRefresh)); err != nil {
		return TokenPair{}, backendError(err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// revokeSessions deletes every refresh session of userID.
func (e *Engine) revokeSessions(ctx context.Context, userID string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	n, err := e.sessions.DeleteAllForUser(sctx, userID)
	if err != nil {
		return backendError(err)
	}
	e.logger.InfoContext(ctx, "refresh sessions revoked", "user_id", userID, "count", n)
	return nil
}

func (e *Engine) findByEmail(ctx context.Context, email string) (*User, error) {
	rctx, cancel := e.repoCtx(ctx)
	defer cancel()
	user, err := e.users.FindByEmail(rctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, backendError(err)
	}
	return user, nil
}

func (e *Engine) findByID(ctx context.Context, id string) (*User, error) {
	rctx, cancel := e.repoCtx(ctx)
	defer cancel()
	user, err := e.users.FindByID(rctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, backendError(err)
	}
	return user, nil
}

// hashPassword checks the policy and hashes. field names the offending input
// in validation details.
func (e *Engine) hashPassword(field, plain string) (string, error) {
	if details := e.passwordProblems(field, plain); len(details) > 0 {
		return "", validationError(details...)
	}
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return "", validationError(FieldError{Field: field, Message: "Password is too long"})
		}
		return "", ErrInternal.with(err)
	}
	return hash, nil
}

func (e *Engine) passwordProblems(field, plain string) []FieldError {
	problems := e.config.Password.Policy.Check(plain)
	if len(problems) == 0 {
		return nil
	}
	details := make([]FieldError, 0, len(problems))
	for _, p := range problems {
		details = append(details, FieldError{Field: field, Message: "Password " + p})
	}
	return details
}

// verifyPassword compares plain against hash. A nil user runs the comparison
// against a dummy hash so unknown emails cost the same as wrong passwords.
func (e *Engine) verifyPassword(user *User, plain string) bool {
	hash := e.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := e.hasher.Verify(plain, hash)
	if err != nil {
		if user != nil {
			e.logger.Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
		}
		return false
	}
	return ok && user != nil
}

// WaitNotifications blocks until mail queued by [Engine.ForgotPassword] and
// [Engine.ResendVerification] has been handed to the notifier, or ctx ends.
func (e *Engine) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pendingMail.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify sends msg. Delivery failures are logged and swallowed so that the
// caller's response never depends on the mail backend.
func (e *Engine) notify(ctx context.Context, msg Message) {
	nctx, cancel := context.WithTimeout(ctx, e.config.Timeouts.Notifier)
	defer cancel()
	if err := e.notifier.Send(nctx, msg); err != nil {
		e.logger.WarnContext(ctx, "notification delivery failed", "subject", msg.Subject, "error", err)
	}
}

// normalizeEmail trims and lower-cases raw and checks it is a bare address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", validationError(FieldError{Field: "email", Message: "Email is required"})
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", validationError(FieldError{Field: "email", Message: "Email is invalid"})
	}
	return email, nil
}
