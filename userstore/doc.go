// Package userstore holds the [tokenauth.UserRepository] implementations:
// memory for tests and local development, postgres for production.
package userstore
