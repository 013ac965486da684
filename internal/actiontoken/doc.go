// Package actiontoken issues and consumes single-use, time-boxed tokens for
// out-of-band account actions: email verification and password reset.
//
// # Design
//
// Tokens are 32 random bytes rendered as hex. Only the SHA-256 of a token is
// handed to the [Store]; the plaintext leaves the process exactly once, in
// the notification sent to the user. Each user holds at most one live token
// per [Kind]: issuing a new one overwrites the previous hash and expiry.
//
// Consumption is delegated to [Store.ConsumeActionToken], which must match
// the hash and an unexpired expiry, clear both fields, and apply the
// requested [Effect] in a single persistence operation. A concurrent second
// consumption therefore finds nothing and fails with [ErrNotFound].
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Log or persist plaintext tokens.
package actiontoken
