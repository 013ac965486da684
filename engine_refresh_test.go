package tokenauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/authtest"
)

func TestRefreshRotatesAndKillsOldToken(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	reg := h.Register(t, "lena@example.com")

	pair, err := h.Engine.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)

	auth, err := h.Engine.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, auth.UserID)
	assert.Equal(t, tokenauth.RoleUser, auth.Role)

	_, err = h.Engine.Refresh(ctx, reg.RefreshToken)
	require.ErrorIs(t, err, tokenauth.ErrSessionNotFound)
	assert.Equal(t, 403, tokenauth.AsError(err).Status)

	_, err = h.Engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsBadInput(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	reg := h.Register(t, "milo@example.com")

	_, err := h.Engine.Refresh(ctx, "")
	require.ErrorIs(t, err, tokenauth.ErrTokenMissing)

	_, err = h.Engine.Refresh(ctx, "not.a.jwt")
	require.ErrorIs(t, err, tokenauth.ErrTokenInvalid)

	_, err = h.Engine.Refresh(ctx, reg.AccessToken)
	require.ErrorIs(t, err, tokenauth.ErrTokenInvalid, "access tokens are not refresh tokens")
}

func TestRefreshExpired(t *testing.T) {
	h := authtest.New(t)
	reg := h.Register(t, "nora@example.com")

	h.Advance(7*24*time.Hour + time.Minute)

	_, err := h.Engine.Refresh(context.Background(), reg.RefreshToken)
	require.ErrorIs(t, err, tokenauth.ErrTokenExpired)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	h := authtest.New(t)
	reg := h.Register(t, "omar@example.com")

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := h.Engine.Refresh(context.Background(), reg.RefreshToken)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, tokenauth.ErrSessionNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	reg := h.Register(t, "pia@example.com")

	n, err := h.Engine.ActiveSessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, h.Engine.Logout(ctx, reg.RefreshToken))
	require.NoError(t, h.Engine.Logout(ctx, reg.RefreshToken))

	n, err = h.Engine.ActiveSessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.Engine.Refresh(ctx, reg.RefreshToken)
	require.ErrorIs(t, err, tokenauth.ErrSessionNotFound)

	require.ErrorIs(t, h.Engine.Logout(ctx, ""), tokenauth.ErrTokenMissing)
}

func TestValidateAccessToken(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	reg := h.Register(t, "quinn@example.com")

	_, err := h.Engine.Validate(ctx, "")
	require.ErrorIs(t, err, tokenauth.ErrUnauthorized)

	_, err = h.Engine.Validate(ctx, reg.RefreshToken)
	require.ErrorIs(t, err, tokenauth.ErrTokenInvalid)

	h.Advance(16 * time.Minute)
	_, err = h.Engine.Validate(ctx, reg.AccessToken)
	require.ErrorIs(t, err, tokenauth.ErrTokenExpired)
}
