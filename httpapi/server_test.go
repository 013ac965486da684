package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/internal/authtest"
)

type client struct {
	t       *testing.T
	handler http.Handler
}

func (c client) do(method, target string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func newClient(t *testing.T, h *authtest.Harness, opts httpapi.Options) client {
	return client{t: t, handler: httpapi.New(h.Engine, opts)}
}

func credentials(email string) map[string]string {
	return map[string]string{"email": email, "password": authtest.StrongPassword}
}

func TestRegisterVerifyLoginOverHTTP(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})

	rec, body := c.do(http.MethodPost, "/register", credentials("ana@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tokenauth.MsgRegistered, body["message"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "ana@example.com", user["email"])
	assert.Equal(t, false, user["emailVerified"])
	assert.NotEmpty(t, user["id"])
	assert.NotEmpty(t, user["createdAt"])

	rec, body = c.do(http.MethodPost, "/login", credentials("ana@example.com"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", body["code"])

	token := h.Mail.Token(t, "ana@example.com", "/verify-email")
	rec, _ = c.do(http.MethodGet, "/verify-email?token="+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = c.do(http.MethodGet, "/verify-email?token="+token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = c.do(http.MethodPost, "/login", credentials("ana@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tokenauth.MsgLoggedIn, body["message"])
}

func TestShortestStrongPasswordAccepted(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})
	creds := map[string]string{"email": "a@x.com", "password": "Abcd123!"}

	rec, body := c.do(http.MethodPost, "/register", creds)
	require.Equal(t, http.StatusCreated, rec.Code, body)
	assert.Equal(t, false, body["user"].(map[string]any)["emailVerified"])

	rec, _ = c.do(http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = c.do(http.MethodGet, "/verify-email?token="+h.Mail.Token(t, "a@x.com", "/verify-email"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = c.do(http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
}

func TestRegisterValidationBody(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})

	rec, body := c.do(http.MethodPost, "/register", map[string]string{"email": "x", "password": "y"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed", body["error"])
	assert.NotEmpty(t, body["details"])

	rec, _ = c.do(http.MethodPost, "/register", credentials("ana@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = c.do(http.MethodPost, "/register", credentials("ana@example.com"))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestMalformedJSON(t *testing.T) {
	h := authtest.New(t)
	handler := httpapi.New(h.Engine, httpapi.Options{})

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Malformed JSON")
}

func TestRefreshAndLogoutOverHTTP(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})
	reg := h.Register(t, "ben@example.com")

	rec, body := c.do(http.MethodPost, "/refresh", map[string]string{"token": reg.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tokenauth.MsgTokenRefreshed, body["message"])
	next := body["refreshToken"].(string)

	rec, body = c.do(http.MethodPost, "/refresh", map[string]string{"token": reg.RefreshToken})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid refresh token", body["error"])

	rec, _ = c.do(http.MethodPost, "/refresh", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = c.do(http.MethodPost, "/logout", map[string]string{"refreshToken": next})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tokenauth.MsgLoggedOut, body["message"])

	rec, _ = c.do(http.MethodPost, "/refresh", map[string]string{"refreshToken": next})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginRateLimitOverHTTP(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{TrustProxy: true})
	wrong := map[string]string{"email": "cy@example.com", "password": "Wrong-Password-1"}

	for i := 0; i < 5; i++ {
		rec, _ := c.do(http.MethodPost, "/login", wrong, "X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, body := c.do(http.MethodPost, "/login", wrong, "X-Forwarded-For", "203.0.113.5")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1800", rec.Header().Get("Retry-After"))
	assert.EqualValues(t, 1800, body["retryAfter"])

	rec, _ = c.do(http.MethodPost, "/login", wrong, "X-Forwarded-For", "203.0.113.6")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotAndResetOverHTTP(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})
	h.RegisterVerified(t, "dee@example.com")

	known, kb := c.do(http.MethodPost, "/forgot-password", map[string]string{"email": "dee@example.com"})
	unknown, ub := c.do(http.MethodPost, "/forgot-password", map[string]string{"email": "who@example.com"})
	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, kb, ub)

	token := h.Mail.Token(t, "dee@example.com", "/reset-password")
	rec, body := c.do(http.MethodPost, "/reset-password", map[string]string{"token": token, "newPassword": "Fresh-Password-5"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["accessToken"])

	rec, _ = c.do(http.MethodPost, "/reset-password", map[string]string{"token": token, "newPassword": "Fresh-Password-6"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = c.do(http.MethodPost, "/resend-verification", map[string]string{"email": "dee@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileRoutes(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})
	reg := h.Register(t, "eve@example.com")
	auth := []string{"Authorization", "Bearer " + reg.AccessToken}

	rec, _ := c.do(http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := c.do(http.MethodGet, "/profile", nil, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eve@example.com", body["user"].(map[string]any)["email"])
	assert.EqualValues(t, 1, body["activeSessions"])

	rec, body = c.do(http.MethodPatch, "/profile", map[string]any{"username": "eve", "bio": "hi", "role": "admin"}, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "eve", user["username"])
	assert.Equal(t, tokenauth.RoleUser, user["role"])

	rec, _ = c.do(http.MethodPatch, "/profile", map[string]any{"avatarUrl": "not-a-url"}, auth...)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = c.do(http.MethodPost, "/change-password", map[string]string{
		"currentPassword": authtest.StrongPassword,
		"newPassword":     "Changed-Password-8",
	}, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tokenauth.MsgPasswordChanged, body["message"])
}

func TestListUsersRoute(t *testing.T) {
	h := authtest.New(t)
	c := newClient(t, h, httpapi.Options{})
	plain := h.Register(t, "fin@example.com")
	admin := h.RegisterVerified(t, "boss@example.com")
	require.NoError(t, h.Users.SetRole(admin.User.ID, tokenauth.RoleAdmin))

	rec, _ := c.do(http.MethodGet, "/users", nil, "Authorization", "Bearer "+plain.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, body := c.do(http.MethodPost, "/login", credentials("boss@example.com"))
	adminToken := body["accessToken"].(string)

	rec, body = c.do(http.MethodGet, "/users?limit=1&offset=0", nil, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["users"], 1)
	assert.EqualValues(t, 1, body["limit"])

	rec, _ = c.do(http.MethodGet, "/users?limit=-1", nil, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := authtest.New(t)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"}))
	c := newClient(t, h, httpapi.Options{Gatherer: reg})

	rec, body := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["redis"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	c.handler.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "probe_total")

	h.Redis.Close()
	rec, body = c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["redis"])
}
