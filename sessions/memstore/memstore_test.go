package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/sessions"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	meta := &sessions.Metadata{
		SessionID:  "s1",
		Identity:   "alice@example.com",
		AccessMode: auth.AccessModeFull,
		State:      sessions.StateInitializing,
	}
	if err := s.CreateSession(ctx, meta); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Identity != "alice@example.com" || got.State != sessions.StateInitializing {
		t.Fatalf("record = %+v", got)
	}

	// Mutations apply to the stored record, not the returned copy.
	got.State = sessions.StateClosed
	fresh, _ := s.GetSession(ctx, "s1")
	if fresh.State != sessions.StateInitializing {
		t.Fatal("GetSession returned a shared record")
	}

	err = s.MutateSession(ctx, "s1", func(rec *sessions.Metadata) error {
		rec.State = sessions.StateActive
		return nil
	})
	if err != nil {
		t.Fatalf("MutateSession: %v", err)
	}
	fresh, _ = s.GetSession(ctx, "s1")
	if fresh.State != sessions.StateActive {
		t.Fatalf("state = %q after mutate", fresh.State)
	}
}

func TestStoreUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetSession(ctx, "nope"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("GetSession err = %v", err)
	}
	if err := s.MutateSession(ctx, "nope", func(*sessions.Metadata) error { return nil }); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("MutateSession err = %v", err)
	}
	if err := s.PutSessionData(ctx, "nope", "k", []byte("v")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("PutSessionData err = %v", err)
	}
}

func TestStoreSessionData(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateSession(ctx, &sessions.Metadata{SessionID: "s1"})

	if err := s.PutSessionData(ctx, "s1", "k", []byte("v1")); err != nil {
		t.Fatalf("PutSessionData: %v", err)
	}
	v, err := s.GetSessionData(ctx, "s1", "k")
	if err != nil || string(v) != "v1" {
		t.Fatalf("GetSessionData = (%q, %v)", v, err)
	}

	// Deleting the session removes its data too.
	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSessionData(ctx, "s1", "k"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("data survived session delete: %v", err)
	}
}
