package sessions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mailgate/mailgate/auth"
)

// Manager orchestrates session creation, routing and teardown. The live
// transport table is the gateway's single piece of shared mutable state; it
// is guarded by the manager's mutex while metadata lives in the injected
// Store. Safe for concurrent use.
type Manager struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	mu         sync.Mutex
	transports map[string]*Transport
	closed     bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a Manager around the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		log:        slog.Default(),
		now:        time.Now,
		transports: make(map[string]*Transport),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize mints a new session for an initialize handshake: a fresh
// crypto-random id, a persisted record in StateInitializing, and a transport
// bound to the id.
func (m *Manager) Initialize(ctx context.Context, info *auth.Info, protocolVersion string) (*Handle, error) {
	now := m.now().UTC()
	meta := &Metadata{
		SessionID:       uuid.NewString(),
		Identity:        info.Identity,
		AccessMode:      info.Mode,
		ProtocolVersion: protocolVersion,
		State:           StateInitializing,
		CreatedAt:       now,
		LastSeenAt:      now,
	}
	if err := m.store.CreateSession(ctx, meta); err != nil {
		return nil, err
	}

	transport := NewTransport()
	m.mu.Lock()
	m.transports[meta.SessionID] = transport
	m.mu.Unlock()

	return &Handle{meta: meta, store: m.store, transport: transport}, nil
}

// Load routes a request bearing a session id to its existing session. The
// session must belong to the calling identity; a mismatch is reported as
// ErrSessionNotFound so probing for foreign session ids reveals nothing. The
// first successful load moves an initializing session to active.
func (m *Manager) Load(ctx context.Context, sessionID string, info *auth.Info) (*Handle, error) {
	meta, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if meta.Identity != info.Identity || meta.State == StateClosed {
		return nil, ErrSessionNotFound
	}

	now := m.now().UTC()
	if err := m.store.MutateSession(ctx, sessionID, func(rec *Metadata) error {
		if rec.State == StateInitializing {
			rec.State = StateActive
		}
		rec.LastSeenAt = now
		meta = rec
		return nil
	}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	transport, ok := m.transports[sessionID]
	if !ok {
		// The record survived a restart (redis store); rebind a fresh transport.
		transport = NewTransport()
		if !m.closed {
			m.transports[sessionID] = transport
		}
	}
	m.mu.Unlock()

	return &Handle{meta: meta, store: m.store, transport: transport}, nil
}

// Ephemeral creates a one-shot, unpersisted session for stateless mode. The
// transport and any session data die with the request.
func (m *Manager) Ephemeral(info *auth.Info, protocolVersion string) *Handle {
	now := m.now().UTC()
	return &Handle{
		meta: &Metadata{
			SessionID:       uuid.NewString(),
			Identity:        info.Identity,
			AccessMode:      info.Mode,
			ProtocolVersion: protocolVersion,
			State:           StateActive,
			CreatedAt:       now,
			LastSeenAt:      now,
		},
		transport: NewTransport(),
		ephemeral: &ephemeralData{values: make(map[string][]byte)},
	}
}

// Close tears a session down: the record is deleted from the store and the
// transport is released. Idempotent.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.transports, sessionID)
	m.mu.Unlock()

	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	m.log.InfoContext(ctx, "session.close", slog.String("session_id", sessionID))
	return nil
}

// Shutdown releases every live transport. Store records are left to the
// store's own expiry so a shared store is not wiped by one node going down.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	n := len(m.transports)
	m.transports = make(map[string]*Transport)
	m.closed = true
	m.mu.Unlock()
	m.log.InfoContext(ctx, "sessions.shutdown", slog.Int("released", n))
}

// Handle is the concrete Session implementation produced by the manager.
type Handle struct {
	meta      *Metadata
	store     Store
	transport *Transport
	ephemeral *ephemeralData
}

type ephemeralData struct {
	mu     sync.Mutex
	values map[string][]byte
}

var _ Session = (*Handle)(nil)

func (h *Handle) SessionID() string           { return h.meta.SessionID }
func (h *Handle) Identity() string            { return h.meta.Identity }
func (h *Handle) AccessMode() auth.AccessMode { return h.meta.AccessMode }
func (h *Handle) State() State                { return h.meta.State }

// Transport returns the transport instance bound to this session.
func (h *Handle) Transport() *Transport { return h.transport }

func (h *Handle) PutData(ctx context.Context, key string, value []byte) error {
	if h.ephemeral != nil {
		h.ephemeral.mu.Lock()
		h.ephemeral.values[key] = append([]byte(nil), value...)
		h.ephemeral.mu.Unlock()
		return nil
	}
	return h.store.PutSessionData(ctx, h.meta.SessionID, key, value)
}

func (h *Handle) GetData(ctx context.Context, key string) ([]byte, error) {
	if h.ephemeral != nil {
		h.ephemeral.mu.Lock()
		defer h.ephemeral.mu.Unlock()
		v, ok := h.ephemeral.values[key]
		if !ok {
			return nil, ErrSessionNotFound
		}
		return append([]byte(nil), v...), nil
	}
	return h.store.GetSessionData(ctx, h.meta.SessionID, key)
}
