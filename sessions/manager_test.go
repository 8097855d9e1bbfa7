package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mailgate/mailgate/auth"
)

// mapStore is a minimal in-test Store so the package test does not import its
// own subpackages.
type mapStore struct {
	recs map[string]*Metadata
	data map[string]map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{recs: map[string]*Metadata{}, data: map[string]map[string][]byte{}}
}

func (s *mapStore) CreateSession(ctx context.Context, meta *Metadata) error {
	rec := *meta
	s.recs[meta.SessionID] = &rec
	return nil
}

func (s *mapStore) GetSession(ctx context.Context, sessionID string) (*Metadata, error) {
	rec, ok := s.recs[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *rec
	return &out, nil
}

func (s *mapStore) MutateSession(ctx context.Context, sessionID string, fn func(*Metadata) error) error {
	rec, ok := s.recs[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	return fn(rec)
}

func (s *mapStore) DeleteSession(ctx context.Context, sessionID string) error {
	delete(s.recs, sessionID)
	delete(s.data, sessionID)
	return nil
}

func (s *mapStore) PutSessionData(ctx context.Context, sessionID, key string, value []byte) error {
	if _, ok := s.recs[sessionID]; !ok {
		return ErrSessionNotFound
	}
	if s.data[sessionID] == nil {
		s.data[sessionID] = map[string][]byte{}
	}
	s.data[sessionID][key] = value
	return nil
}

func (s *mapStore) GetSessionData(ctx context.Context, sessionID, key string) ([]byte, error) {
	v, ok := s.data[sessionID][key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v, nil
}

var alice = &auth.Info{Identity: "alice@example.com", Mode: auth.AccessModeFull}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMapStore(), WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))

	sess, err := m.Initialize(ctx, alice, "2025-06-18")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if sess.SessionID() == "" {
		t.Fatal("empty session id")
	}
	if sess.State() != StateInitializing {
		t.Fatalf("state = %q, want initializing", sess.State())
	}

	// First load moves the session to active and routes to the same transport.
	loaded, err := m.Load(ctx, sess.SessionID(), alice)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State() != StateActive {
		t.Fatalf("state = %q, want active", loaded.State())
	}
	if loaded.Transport() != sess.Transport() {
		t.Fatal("load bound a different transport")
	}

	// Session data persists across loads.
	if err := loaded.PutData(ctx, "cursor", []byte("42")); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	again, err := m.Load(ctx, sess.SessionID(), alice)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, err := again.GetData(ctx, "cursor")
	if err != nil || string(v) != "42" {
		t.Fatalf("GetData = (%q, %v)", v, err)
	}

	if err := m.Close(ctx, sess.SessionID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Load(ctx, sess.SessionID(), alice); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load after close err = %v, want ErrSessionNotFound", err)
	}
}

func TestLoadRejectsForeignIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMapStore())

	sess, err := m.Initialize(ctx, alice, "2025-06-18")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	eve := &auth.Info{Identity: "eve@example.com", Mode: auth.AccessModeFull}
	if _, err := m.Load(ctx, sess.SessionID(), eve); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound (not a permission error)", err)
	}
}

func TestLoadUnknownSession(t *testing.T) {
	m := NewManager(newMapStore())
	if _, err := m.Load(context.Background(), "nope", alice); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestEphemeralSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newMapStore())

	sess := m.Ephemeral(alice, "2025-06-18")
	if sess.State() != StateActive {
		t.Fatalf("state = %q, want active", sess.State())
	}
	if err := sess.PutData(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("PutData: %v", err)
	}
	v, err := sess.GetData(ctx, "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("GetData = (%q, %v)", v, err)
	}

	// Nothing was persisted; the id is not loadable.
	if _, err := m.Load(ctx, sess.SessionID(), alice); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("ephemeral session leaked into store: %v", err)
	}
}

func TestTransportReplayAfterLastEventID(t *testing.T) {
	tr := NewTransport()
	id1 := tr.Publish([]byte("one"))
	tr.Publish([]byte("two"))
	tr.Publish([]byte("three"))

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := tr.Stream(ctx, id1, func(ctx context.Context, eventID string, data []byte) error {
		got = append(got, string(data))
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream err = %v", err)
	}
	if len(got) != 2 || got[0] != "two" || got[1] != "three" {
		t.Fatalf("replayed %v, want [two three]", got)
	}
}

func TestTransportLiveDelivery(t *testing.T) {
	tr := NewTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan string, 1)
	go func() {
		_ = tr.Stream(ctx, "", func(ctx context.Context, eventID string, data []byte) error {
			received <- string(data)
			return nil
		})
	}()

	// Give the stream a beat to subscribe, then publish.
	time.Sleep(20 * time.Millisecond)
	tr.Publish([]byte("live"))

	select {
	case got := <-received:
		if got != "live" {
			t.Fatalf("received %q", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for live delivery")
	}
}
