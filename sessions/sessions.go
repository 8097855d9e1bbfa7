// Package sessions owns the gateway's session lifecycle: the
// initializing → active → closed state machine, the injected session store,
// and the per-session transport instances that carry streamed messages.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/mailgate/mailgate/auth"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateInitializing means the initialize handshake created the session
	// but no follow-up request has arrived yet.
	StateInitializing State = "initializing"
	// StateActive means the caller has echoed the session id back at least once.
	StateActive State = "active"
	// StateClosed means the session was torn down.
	StateClosed State = "closed"
)

// ErrSessionNotFound indicates the session id is unknown, expired, or not
// visible to the calling identity.
var ErrSessionNotFound = errors.New("session not found")

// Metadata is the persisted session record.
type Metadata struct {
	SessionID       string          `json:"sessionId"`
	Identity        string          `json:"identity"`
	AccessMode      auth.AccessMode `json:"accessMode"`
	ProtocolVersion string          `json:"protocolVersion"`
	State           State           `json:"state"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastSeenAt      time.Time       `json:"lastSeenAt"`
}

// Store persists session metadata and small per-session key/value data. It is
// the injected state boundary of the session manager; implementations must be
// safe for concurrent use.
type Store interface {
	CreateSession(ctx context.Context, meta *Metadata) error
	// GetSession returns ErrSessionNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID string) (*Metadata, error)
	// MutateSession applies fn to the stored record atomically.
	MutateSession(ctx context.Context, sessionID string, fn func(*Metadata) error) error
	DeleteSession(ctx context.Context, sessionID string) error

	PutSessionData(ctx context.Context, sessionID, key string, value []byte) error
	// GetSessionData returns ErrSessionNotFound when the key is absent.
	GetSessionData(ctx context.Context, sessionID, key string) ([]byte, error)
}

// Session is the per-request view handed to capability implementations.
type Session interface {
	SessionID() string
	// Identity is the authenticated principal that owns the session.
	Identity() string
	AccessMode() auth.AccessMode
	State() State

	// PutData and GetData expose small per-session key/value state shared
	// across requests routed to the same session.
	PutData(ctx context.Context, key string, value []byte) error
	GetData(ctx context.Context, key string) ([]byte, error)
}
