package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
)

type authResultContextKey struct{}

// ErrorWriter renders a rejected request. Callers usually pass the same
// writer their handlers use so every error has one shape.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// AuthResultFromContext returns the identity stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*tokenauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*tokenauth.AuthResult)
	return res, ok && res != nil
}

// WithAuthResult stores res in ctx.
func WithAuthResult(ctx context.Context, res *tokenauth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard requires a valid bearer access token. A missing token answers 401;
// an invalid or expired one answers 403. A nil onError writes a minimal JSON
// body.
func Guard(engine *tokenauth.Engine, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, tokenauth.ErrUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// RequireRole admits requests whose identity carries one of roles. It must
// run after [Guard].
func RequireRole(onError ErrorWriter, roles ...string) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeError
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok {
				onError(w, r, tokenauth.ErrUnauthorized)
				return
			}
			if _, ok := allowed[res.Role]; !ok {
				onError(w, r, tokenauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	e := tokenauth.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": e.Message})
}
