// Package jwt issues and verifies the signed access and refresh tokens handed
// to clients. Verification is signature, expiry and kind only; revocation of
// refresh tokens is the session store's job.
package jwt
