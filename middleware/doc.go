// Package middleware adapts [tokenauth.Engine] access-token validation to
// net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores the identity in the
//     request context.
//   - [RequireRole] rejects identities whose role is not in the allowed set.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.Validate).
//   - Touch refresh sessions or Redis.
package middleware
