package tokenauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/authtest"
)

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	h.Register(t, "dana@example.com")

	_, err := h.Engine.Login(ctx, "dana@example.com", authtest.StrongPassword)
	require.ErrorIs(t, err, tokenauth.ErrEmailNotVerified)
	assert.Equal(t, 403, tokenauth.AsError(err).Status)

	require.NoError(t, h.Engine.VerifyEmail(ctx, h.Mail.Token(t, "dana@example.com", "/verify-email")))

	pair, err := h.Engine.Login(ctx, "DANA@example.com", authtest.StrongPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginUnverifiedAllowedWhenGateDisabled(t *testing.T) {
	h := authtest.New(t, func(c *tokenauth.Config) { c.EmailVerification.RequireForLogin = false })
	h.Register(t, "erin@example.com")

	_, err := h.Engine.Login(context.Background(), "erin@example.com", authtest.StrongPassword)
	require.NoError(t, err)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()
	h.RegisterVerified(t, "frank@example.com")

	_, wrongPassword := h.Engine.Login(ctx, "frank@example.com", "Wrong-Password-1")
	_, unknownUser := h.Engine.Login(ctx, "nobody@example.com", authtest.StrongPassword)
	_, malformed := h.Engine.Login(ctx, "not an email", authtest.StrongPassword)

	for _, err := range []error{wrongPassword, unknownUser, malformed} {
		require.ErrorIs(t, err, tokenauth.ErrInvalidCredentials)
		e := tokenauth.AsError(err)
		assert.Equal(t, 401, e.Status)
		assert.Equal(t, "Invalid credentials", e.Message)
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := authtest.New(t)

	_, err := h.Engine.Login(context.Background(), "", "")
	require.ErrorIs(t, err, tokenauth.ErrValidationFailed)
}

func TestLoginRateLimitBlocksThenRecovers(t *testing.T) {
	h := authtest.New(t)
	ctx := tokenauth.WithClientIP(context.Background(), "203.0.113.7")
	h.RegisterVerified(t, "gina@example.com")

	for i := 0; i < 5; i++ {
		_, err := h.Engine.Login(ctx, "gina@example.com", "Wrong-Password-1")
		require.ErrorIs(t, err, tokenauth.ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := h.Engine.Login(ctx, "gina@example.com", authtest.StrongPassword)
	require.ErrorIs(t, err, tokenauth.ErrRateLimited)
	e := tokenauth.AsError(err)
	assert.Equal(t, 429, e.Status)
	assert.InDelta(t, (30 * time.Minute).Seconds(), e.RetryAfter.Seconds(), 2)
	assert.True(t, e.Retryable())

	other := tokenauth.WithClientIP(context.Background(), "198.51.100.9")
	_, err = h.Engine.Login(other, "gina@example.com", authtest.StrongPassword)
	require.NoError(t, err, "other addresses keep their own budget")

	h.Advance(30*time.Minute + time.Second)

	_, err = h.Engine.Login(ctx, "gina@example.com", authtest.StrongPassword)
	require.NoError(t, err)
}

func TestLoginRateLimitCountsSuccesses(t *testing.T) {
	h := authtest.New(t)
	ctx := tokenauth.WithClientIP(context.Background(), "203.0.113.8")
	h.RegisterVerified(t, "hank@example.com")

	for i := 0; i < 5; i++ {
		_, err := h.Engine.Login(ctx, "hank@example.com", authtest.StrongPassword)
		require.NoError(t, err)
	}
	_, err := h.Engine.Login(ctx, "hank@example.com", authtest.StrongPassword)
	require.ErrorIs(t, err, tokenauth.ErrRateLimited)
}

func TestLoginRateLimitDisabled(t *testing.T) {
	h := authtest.New(t, func(c *tokenauth.Config) { c.RateLimit.Login.Enabled = false })
	ctx := context.Background()
	h.RegisterVerified(t, "ivy@example.com")

	for i := 0; i < 8; i++ {
		_, err := h.Engine.Login(ctx, "ivy@example.com", "Wrong-Password-1")
		require.ErrorIs(t, err, tokenauth.ErrInvalidCredentials)
	}
}

func TestLoginInMemoryLimiter(t *testing.T) {
	h := authtest.New(t, func(c *tokenauth.Config) { c.RateLimit.Login.Persistent = false })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.Engine.Login(ctx, "jack@example.com", "Wrong-Password-1")
	}
	_, err := h.Engine.Login(ctx, "jack@example.com", "Wrong-Password-1")
	require.ErrorIs(t, err, tokenauth.ErrRateLimited)

	h.Advance(31 * time.Minute)
	_, err = h.Engine.Login(ctx, "jack@example.com", "Wrong-Password-1")
	require.ErrorIs(t, err, tokenauth.ErrInvalidCredentials)
}

func TestLoginRedisDownIsUnavailable(t *testing.T) {
	h := authtest.New(t)
	h.Redis.Close()

	_, err := h.Engine.Login(context.Background(), "kim@example.com", authtest.StrongPassword)
	require.ErrorIs(t, err, tokenauth.ErrUnavailable)
	assert.Equal(t, 503, tokenauth.AsError(err).Status)
}
