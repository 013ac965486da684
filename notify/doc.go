// Package notify delivers [tokenauth.Message] values. SMTP talks to a mail
// relay directly, NATS hands messages to a mail worker over a subject, and Log
// writes them to a slog logger for local development.
package notify
