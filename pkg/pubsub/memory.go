package pubsub

import (
	"context"
	"errors"
	"path"
	"sync"
)

var errBusClosed = errors.New("pubsub: closed")

type memorySubscription struct {
	pattern string
	ch      chan *Event
	done    <-chan struct{}
}

// MemoryPubSub is an in-process bus with Redis-style glob patterns. Several
// hubs sharing one MemoryPubSub behave like several instances sharing Redis.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryPubSub creates an empty in-memory bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[*memorySubscription]struct{})}
}

func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errBusClosed
	}
	for sub := range m.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errBusClosed
	}

	sub := &memorySubscription{pattern: pattern, ch: make(chan *Event, 256), done: ctx.Done()}
	m.subs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if _, ok := m.subs[sub]; ok {
			delete(m.subs, sub)
			close(sub.ch)
		}
		m.mu.Unlock()
	}()

	return sub.ch, nil
}

func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for sub := range m.subs {
		delete(m.subs, sub)
		close(sub.ch)
	}
	return nil
}
