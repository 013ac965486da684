package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/authtest"
	"github.com/MrEthical07/tokenauth/middleware"
)

func protected(h *authtest.Harness, roles ...string) http.Handler {
	var next http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := middleware.AuthResultFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(res.UserID))
	})
	if len(roles) > 0 {
		next = middleware.RequireRole(nil, roles...)(next)
	}
	return middleware.Guard(h.Engine, nil)(next)
}

func do(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGuard(t *testing.T) {
	h := authtest.New(t)
	reg := h.Register(t, "guard@example.com")
	handler := protected(h)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + reg.AccessToken, http.StatusUnauthorized},
		{"empty bearer", "Bearer   ", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusForbidden},
		{"refresh token", "Bearer " + reg.RefreshToken, http.StatusForbidden},
		{"valid", "Bearer " + reg.AccessToken, http.StatusOK},
		{"lowercase scheme", "bearer " + reg.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(handler, tt.header)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, reg.User.ID, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := authtest.New(t)
	reg := h.Register(t, "role@example.com")
	handler := protected(h, tokenauth.RoleAdmin)

	rec := do(handler, "Bearer "+reg.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// RequireRole without Guard has no identity to check.
	bare := middleware.RequireRole(nil, tokenauth.RoleAdmin)(http.NotFoundHandler())
	rec = do(bare, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
