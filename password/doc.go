// Package password implements password hashing, verification and the
// strength policy.
//
// # Output format
//
// Argon2id hashes (the default) are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard $2a$/$2b$ encoding. Both implement [Hasher].
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other tokenauth package.
//   - Log plaintext passwords.
package password
