package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/cache"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/repository"
	"github.com/Lucca-Muniz/Chat/pkg/log"
)

type messageServiceImpl struct {
	repo     repository.MessageRepository
	cache    cache.RecentCache
	cacheTTL time.Duration
	sf       singleflight.Group

	// Local per-room append counters. They are part of the singleflight key
	// so a load started before an append is never shared with a caller that
	// arrives after it.
	generations sync.Map // int -> *atomic.Int64

	// Rooms whose last cache invalidation failed. Their cached pages may be
	// stale, so reads bypass the cache until an invalidation succeeds.
	dirty sync.Map // int -> struct{}
}

// NewMessageService creates the message service. msgCache may be nil.
func NewMessageService(repo repository.MessageRepository, msgCache cache.RecentCache, cacheTTL time.Duration) MessageService {
	return &messageServiceImpl{
		repo:     repo,
		cache:    msgCache,
		cacheTTL: cacheTTL,
	}
}

func (s *messageServiceImpl) generation(roomID int) *atomic.Int64 {
	v, _ := s.generations.LoadOrStore(roomID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (s *messageServiceImpl) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if err := s.repo.Append(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	s.generation(msg.ChatRoomID).Add(1)

	if s.cache != nil {
		s.invalidate(ctx, msg.ChatRoomID)
	}
	return nil
}

// invalidate retires the cached pages of roomID and reports whether the
// cache can be trusted for it again.
func (s *messageServiceImpl) invalidate(ctx context.Context, roomID int) bool {
	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		s.dirty.Store(roomID, struct{}{})
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int(log.FieldRoomID, roomID).Msg("cache invalidate error, bypassing cache for room")
		return false
	}
	s.dirty.Delete(roomID)
	return true
}

func (s *messageServiceImpl) GetRecentMessages(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, error) {
	key := fmt.Sprintf("%d:%d:%d", roomID, limit, s.generation(roomID).Load())

	// Use singleflight to prevent duplicate loads for the same room page
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, roomID, limit)
	})
	if err != nil {
		return nil, err
	}

	msgs, ok := result.([]domain.ChatMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	// Shared results must not alias between callers.
	return append([]domain.ChatMessage(nil), msgs...), nil
}

func (s *messageServiceImpl) fetchWithCache(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	if s.cache == nil {
		return s.load(ctx, roomID, limit)
	}
	if _, stale := s.dirty.Load(roomID); stale && !s.invalidate(ctx, roomID) {
		return s.load(ctx, roomID, limit)
	}

	cached, gen, err := s.cache.Get(ctx, roomID, limit)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l.Warn().Err(err).Msg("cache get error")
	}

	msgs, err := s.load(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, roomID, gen, limit, msgs, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return msgs, nil
}

func (s *messageServiceImpl) load(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, error) {
	msgs, err := s.repo.Recent(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from repository: %w", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}
