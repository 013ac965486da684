package tokenauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/session"
)

// Refresh rotates a refresh token. The presented token must carry a valid
// signature and expiry and still be present in the session store under the
// same user. On success the old token is dead and a new pair is returned.
func (e *Engine) Refresh(ctx context.Context, token string) (pair TokenPair, err error) {
	ctx, finish := e.startFlow(ctx, FlowRefresh)
	defer finish(&err)

	if token == "" {
		return TokenPair{}, ErrTokenMissing
	}

	claims, err := e.jwt.Verify(token, jwt.KindRefresh)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPair{}, ErrTokenExpired
		}
		return TokenPair{}, ErrTokenInvalid.with(err)
	}

	sctx, cancel := e.storeCtx(ctx)
	owner, err := e.sessions.Get(sctx, token)
	cancel()
	switch {
	case errors.Is(err, session.ErrNotFound):
		e.metrics.rotation("not_found")
		return TokenPair{}, ErrSessionNotFound
	case err != nil:
		e.metrics.rotation("error")
		return TokenPair{}, backendError(err)
	case owner != claims.UID:
		e.metrics.rotation("mismatch")
		e.logger.WarnContext(ctx, "refresh session owner mismatch", "token_user_id", claims.UID)
		return TokenPair{}, ErrSessionNotFound
	}

	user, err := e.findByID(ctx, claims.UID)
	if err != nil {
		return TokenPair{}, err
	}

	access, _, err := e.jwt.IssueAccess(user.ID, user.Role)
	if err != nil {
		return TokenPair{}, ErrInternal.with(err)
	}
	next, _, err := e.jwt.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, ErrInternal.with(err)
	}

	// The lookup above is advisory; Rotate re-checks ownership atomically so
	// concurrent callers cannot both win.
	sctx, cancel = e.storeCtx(ctx)
	err = e.sessions.Rotate(sctx, token, user.ID, next, e.jwt.TTL(jwt.KindRefresh))
	cancel()
	switch {
	case errors.Is(err, session.ErrNotFound):
		e.metrics.rotation("not_found")
		return TokenPair{}, ErrSessionNotFound
	case errors.Is(err, session.ErrUserMismatch):
		e.metrics.rotation("mismatch")
		return TokenPair{}, ErrSessionNotFound
	case err != nil:
		e.metrics.rotation("error")
		return TokenPair{}, backendError(err)
	}

	e.metrics.rotation("rotated")
	return TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Logout deletes the refresh session. An unknown or already revoked token is
// not an error.
func (e *Engine) Logout(ctx context.Context, token string) (err error) {
	ctx, finish := e.startFlow(ctx, FlowLogout)
	defer finish(&err)

	if token == "" {
		return ErrTokenMissing
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessions.Delete(sctx, token); err != nil {
		return backendError(err)
	}
	return nil
}
