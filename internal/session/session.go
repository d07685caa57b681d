// Package session tracks per-call state across webhook deliveries.
//
// Call-start and mid-call events for the same call arrive on unrelated HTTP
// requests; the platform-assigned session ID is the only correlation key.
// The registry is the concurrency-safe store that makes a call's context
// reachable from any handler.
package session

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExists   = errors.New("session: already exists")
)

// State is the call's position in the screening flow.
type State string

const (
	// StateStarted: call-start received, risk evaluation in progress.
	StateStarted State = "started"
	// StateRecording: caller admitted, a recording instruction was issued.
	StateRecording State = "recording"
	// StateRejected: caller rejected (by threshold or fail-closed).
	StateRejected State = "rejected"
	// StateRelayed: a recording has been fetched and persisted.
	StateRelayed State = "relayed"
)

// Session is one active or historical inbound call.
type Session struct {
	ID        string    `json:"id"`     // opaque, platform-assigned
	Region    string    `json:"region"` // originating-region URL, set at call start
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists call sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	SetRegion(ctx context.Context, id, region string) error
	SetState(ctx context.Context, id string, state State) error

	// ListExpired returns up to limit sessions not updated since before.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
