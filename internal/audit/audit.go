// Package audit captures authentication lifecycle events. The engine emits
// these from domain logic; keep the event transport-agnostic so stores and
// sinks can fan out.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionUserRegistered         Action = "user_registered"
	ActionLoginSucceeded         Action = "login_succeeded"
	ActionLoginFailed            Action = "login_failed"
	ActionSessionRevoked         Action = "session_revoked"
	ActionAccountVerified        Action = "account_verified"
	ActionPasswordResetRequested Action = "password_reset_requested"
	ActionPasswordResetConfirmed Action = "password_reset_confirmed"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time
	Action    Action
	// RecordType names the schema type the event concerns.
	RecordType string
	// Subject is a non-sensitive identifier for the affected account when one
	// is available (an identity field value, never a password or token).
	Subject string
	Reason  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context) ([]Event, error)
}
