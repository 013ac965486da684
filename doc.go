// Package tokenauth runs the token lifecycle of an email/password account
// system: short-lived JWT access tokens, rotating single-use refresh tokens
// tracked in Redis, single-use email verification and password reset tokens,
// and per-IP rate limits on the credential endpoints.
//
// Build an [Engine] with [New] and the Builder methods, then call its flow
// methods from any number of goroutines. Every flow returns an *[Error]
// carrying the HTTP status and client-safe message the caller should answer
// with; backend causes are kept for logging and never rendered.
//
// # Architecture boundaries
//
// tokenauth owns flow orchestration. Persistence of accounts is behind
// [UserRepository] (see userstore/memory and userstore/postgres), outbound
// mail behind [Notifier] (see notify), and the HTTP mapping lives in httpapi.
//
// # What this package must NOT do
//
//   - Render backend errors or stored secrets to clients.
//   - Store raw refresh or action tokens; only their SHA-256 hashes persist.
//   - Reveal whether an email is registered from login, forgot-password or
//     resend-verification.
package tokenauth
