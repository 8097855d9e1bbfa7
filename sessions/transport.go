package sessions

import (
	"context"
	"strconv"
	"sync"
)

// Transport is the process-local message channel bound to a single session.
// It buffers outbound messages with monotonically increasing event ids so a
// reconnecting stream can resume from its last seen id. A transport is owned
// exclusively by its session and is never shared across sessions.
type Transport struct {
	mu      sync.Mutex
	counter int64
	events  []event
	subs    map[*subscriber]struct{}
}

type event struct {
	id   string
	data []byte
}

type subscriber struct {
	ch chan event
}

// NewTransport constructs an empty transport.
func NewTransport() *Transport {
	return &Transport{subs: make(map[*subscriber]struct{})}
}

// Publish appends a message to the transport's buffer and wakes any attached
// streams. It returns the assigned event id.
func (t *Transport) Publish(data []byte) string {
	t.mu.Lock()
	t.counter++
	ev := event{id: strconv.FormatInt(t.counter, 10), data: append([]byte(nil), data...)}
	t.events = append(t.events, ev)
	subs := make([]*subscriber, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			// Slow consumer; it will catch up from the buffer on reconnect.
		}
	}
	return ev.id
}

// Stream replays buffered messages after lastEventID and then delivers new
// messages until ctx is canceled or fn returns an error.
func (t *Transport) Stream(ctx context.Context, lastEventID string, fn func(ctx context.Context, eventID string, data []byte) error) error {
	sub := &subscriber{ch: make(chan event, 16)}

	t.mu.Lock()
	replay := make([]event, 0, len(t.events))
	seen := lastEventID == ""
	for _, ev := range t.events {
		if seen {
			replay = append(replay, ev)
		} else if ev.id == lastEventID {
			seen = true
		}
	}
	if !seen {
		// Unknown cursor; replay everything rather than dropping messages.
		replay = append(replay[:0], t.events...)
	}
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}()

	delivered := make(map[string]struct{}, len(replay))
	for _, ev := range replay {
		if err := fn(ctx, ev.id, ev.data); err != nil {
			return err
		}
		delivered[ev.id] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sub.ch:
			if _, dup := delivered[ev.id]; dup {
				continue
			}
			if err := fn(ctx, ev.id, ev.data); err != nil {
				return err
			}
		}
	}
}
