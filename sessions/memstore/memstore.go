// Package memstore is an in-memory sessions.Store for single-node gateways.
package memstore

import (
	"context"
	"sync"

	"github.com/mailgate/mailgate/sessions"
)

var _ sessions.Store = (*Store)(nil)

// Store keeps session records and per-session data in guarded maps.
type Store struct {
	mu   sync.RWMutex
	recs map[string]*sessions.Metadata
	data map[string]map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		recs: make(map[string]*sessions.Metadata),
		data: make(map[string]map[string][]byte),
	}
}

func (s *Store) CreateSession(ctx context.Context, meta *sessions.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *meta
	s.recs[meta.SessionID] = &rec
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*sessions.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[sessionID]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	out := *rec
	return &out, nil
}

func (s *Store) MutateSession(ctx context.Context, sessionID string, fn func(*sessions.Metadata) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[sessionID]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	return fn(rec)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, sessionID)
	delete(s.data, sessionID)
	return nil
}

func (s *Store) PutSessionData(ctx context.Context, sessionID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[sessionID]; !ok {
		return sessions.ErrSessionNotFound
	}
	if s.data[sessionID] == nil {
		s.data[sessionID] = make(map[string][]byte)
	}
	s.data[sessionID][key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) GetSessionData(ctx context.Context, sessionID, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[sessionID][key]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	return append([]byte(nil), v...), nil
}
