// Package session persists issued refresh tokens in Redis.
//
// Each entry maps the SHA-256 of a refresh token to the user it was issued
// to, with a Redis-enforced TTL matching the token's validity window. A
// per-user index set supports revoking every session of one user.
//
// # Architecture boundaries
//
// This package owns the [Store]. It does NOT verify JWT signatures or make
// authorization decisions; those belong to the Engine.
//
// # What this package must NOT do
//
//   - Import tokenauth or jwt (no upward imports).
//   - Write plaintext refresh tokens to Redis.
package session
