// Package redisstore is a Redis-backed sessions.Store for gateways running
// more than one node behind a load balancer with sticky sessions, or for
// surviving process restarts without stranding session ids.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailgate/mailgate/sessions"
)

var _ sessions.Store = (*Store)(nil)

// Config for the Redis-backed store.
type Config struct {
	// Addr like "localhost:6379".
	Addr string
	// KeyPrefix for all keys. Defaults to "mailgate:sessions:".
	KeyPrefix string
	// TTL is the idle expiry applied to session records and data.
	// Defaults to 24h.
	TTL time.Duration
}

// Store persists session records as JSON values with an idle TTL.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mailgate:sessions:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: cl, keyPrefix: prefix, ttl: ttl}, nil
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) recKey(sessionID string) string { return s.keyPrefix + "rec:" + sessionID }
func (s *Store) dataKey(sessionID, key string) string {
	return s.keyPrefix + "data:" + sessionID + ":" + key
}

func (s *Store) CreateSession(ctx context.Context, meta *sessions.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, s.recKey(meta.SessionID), raw, s.ttl).Err()
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*sessions.Metadata, error) {
	raw, err := s.client.Get(ctx, s.recKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, err
	}
	var meta sessions.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &meta, nil
}

func (s *Store) MutateSession(ctx context.Context, sessionID string, fn func(*sessions.Metadata) error) error {
	key := s.recKey(sessionID)
	// Optimistic transaction so concurrent mutations don't clobber each other.
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sessions.ErrSessionNotFound
			}
			return err
		}
		var meta sessions.Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if err := fn(&meta); err != nil {
			return err
		}
		out, err := json.Marshal(&meta)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("session mutate contention: %s", sessionID)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.recKey(sessionID)).Err(); err != nil {
		return err
	}
	// Data keys share the record's TTL; sweep whatever is still around.
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"data:"+sessionID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *Store) PutSessionData(ctx context.Context, sessionID, key string, value []byte) error {
	exists, err := s.client.Exists(ctx, s.recKey(sessionID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return sessions.ErrSessionNotFound
	}
	return s.client.Set(ctx, s.dataKey(sessionID, key), value, s.ttl).Err()
}

func (s *Store) GetSessionData(ctx context.Context, sessionID, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.dataKey(sessionID, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, err
	}
	return raw, nil
}
