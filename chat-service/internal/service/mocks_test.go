package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/cache"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockRepository) Recent(ctx context.Context, roomID, count int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, count)
	msgs, _ := args.Get(0).([]domain.ChatMessage)
	return msgs, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, stockCode, username string, roomID int) error {
	args := m.Called(ctx, stockCode, username, roomID)
	return args.Error(0)
}

// memoryRepository is an in-memory MessageRepository.
type memoryRepository struct {
	mu     sync.Mutex
	nextID int64
	msgs   []domain.ChatMessage
}

func (r *memoryRepository) Append(_ context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	msg.ID = r.nextID
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *memoryRepository) Recent(_ context.Context, roomID, count int) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range r.msgs {
		if m.ChatRoomID == roomID {
			out = append(out, m)
		}
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (r *memoryRepository) all() []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChatMessage(nil), r.msgs...)
}

// fakeCache mimics the generation scheme of the redis cache.
type fakeCache struct {
	mu    sync.Mutex
	gens  map[int]int64
	pages map[[3]int64][]domain.ChatMessage
	sets  int

	// invalidateErr makes Invalidate fail without retiring any page.
	invalidateErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		gens:  make(map[int]int64),
		pages: make(map[[3]int64][]domain.ChatMessage),
	}
}

func (c *fakeCache) Get(_ context.Context, roomID, limit int) ([]domain.ChatMessage, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[roomID]
	page, ok := c.pages[[3]int64{int64(roomID), gen, int64(limit)}]
	if !ok {
		return nil, gen, cache.ErrCacheMiss
	}
	return page, gen, nil
}

func (c *fakeCache) Set(_ context.Context, roomID int, generation int64, limit int, msgs []domain.ChatMessage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[[3]int64{int64(roomID), generation, int64(limit)}] = msgs
	c.sets++
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, roomID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.gens[roomID]++
	return nil
}

func (c *fakeCache) failInvalidate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateErr = err
}

func (c *fakeCache) Close() error { return nil }

func (c *fakeCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}
