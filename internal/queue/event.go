// Package queue defines the auth event payloads exchanged over the message
// broker, the publisher used by the API process and the consumer run by the
// worker.
package queue

import "time"

// AuthQueueName is the durable queue every auth event is routed to.
const AuthQueueName = "auth.events"

// Event kinds.
const (
	KindAccountLinked          = "account.linked"
	KindPasswordResetRequested = "password.reset_requested"
	KindPasswordReset          = "password.reset"
)

// AuthEvent is published when a credential changes hands or state.  The
// consumer needs nothing beyond this payload: reset requests carry the
// address and token for the outgoing email.
type AuthEvent struct {
	Kind       string    `json:"kind"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email"`
	ExternalID string    `json:"external_id,omitempty"`
	ResetToken string    `json:"reset_token,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}
