// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// PasswordResetQueue is the durable queue consumed by the mail worker.
const PasswordResetQueue = "auth.password_reset"

// PasswordResetRequested is published when a reset token was issued for an
// existing account.  Token is the plaintext value; it only travels over the
// broker to the mailer and is never stored.
type PasswordResetRequested struct {
	UserID    uint64    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	RequestID string    `json:"request_id"`
}
