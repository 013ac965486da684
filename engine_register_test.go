package tokenauth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/authtest"
)

func TestRegisterIssuesPairAndMailsVerification(t *testing.T) {
	h := authtest.New(t)
	ctx := context.Background()

	res, err := h.Engine.Register(ctx, tokenauth.RegisterRequest{Email: "  Alice@Example.COM ", Password: authtest.StrongPassword})
	require.NoError(t, err)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, tokenauth.RoleUser, res.User.Role)
	assert.False(t, res.User.EmailVerified)
	assert.NotEqual(t, authtest.StrongPassword, res.User.PasswordHash)

	msgs := h.Mail.Messages("alice@example.com")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "Verify your email")
	assert.Contains(t, msgs[0].Text, "24 hours")
	assert.NotEmpty(t, h.Mail.Token(t, "alice@example.com", "/verify-email"))

	auth, err := h.Engine.Validate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, auth.UserID)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	h := authtest.New(t)
	h.Register(t, "bob@example.com")

	_, err := h.Engine.Register(context.Background(), tokenauth.RegisterRequest{Email: "BOB@example.com", Password: authtest.StrongPassword})
	require.ErrorIs(t, err, tokenauth.ErrEmailTaken)
	assert.Equal(t, 409, tokenauth.AsError(err).Status)
}

func TestRegisterCollectsEveryValidationProblem(t *testing.T) {
	h := authtest.New(t)

	_, err := h.Engine.Register(context.Background(), tokenauth.RegisterRequest{Email: "not-an-email", Password: "short"})
	require.ErrorIs(t, err, tokenauth.ErrValidationFailed)

	e := tokenauth.AsError(err)
	assert.Equal(t, 400, e.Status)
	fields := map[string]int{}
	for _, d := range e.Details {
		fields[d.Field]++
	}
	assert.Equal(t, 1, fields["email"])
	assert.GreaterOrEqual(t, fields["password"], 2)
	assert.Empty(t, h.Mail.Messages("not-an-email"))
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	h := authtest.New(t)
	h.Mail.FailWith(errors.New("smtp down"))

	res, err := h.Engine.Register(context.Background(), tokenauth.RegisterRequest{Email: "carol@example.com", Password: authtest.StrongPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefreshToken)
}

func TestRegisterRejectsNonBareAddresses(t *testing.T) {
	h := authtest.New(t)

	_, err := h.Engine.Register(context.Background(), tokenauth.RegisterRequest{
		Email:    "a b@example.com",
		Password: authtest.StrongPassword,
	})
	require.ErrorIs(t, err, tokenauth.ErrValidationFailed)

	_, err = h.Engine.Register(context.Background(), tokenauth.RegisterRequest{
		Email:    "Name <" + strings.Repeat("x", 3) + "@example.com>",
		Password: authtest.StrongPassword,
	})
	require.ErrorIs(t, err, tokenauth.ErrValidationFailed)
}
