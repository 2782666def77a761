package cache

import (
	"context"
	"time"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
)

// RecentCache caches the recent-messages page of a room. Entries are tagged
// with the room generation current when they were loaded; Invalidate bumps the
// generation so a load that raced with an append can never be served.
type RecentCache interface {
	// Get returns the cached page, or ErrCacheMiss along with the generation
	// to pass to Set once the page has been loaded.
	Get(ctx context.Context, roomID, limit int) ([]domain.ChatMessage, int64, error)
	Set(ctx context.Context, roomID int, generation int64, limit int, msgs []domain.ChatMessage, ttl time.Duration) error
	Invalidate(ctx context.Context, roomID int) error
	Close() error
}
