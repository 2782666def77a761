package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/chat-service/internal/repository"
)

func TestMessageService_AddMessagePropagatesErrors(t *testing.T) {
	req := require.New(t)
	repo := new(mockRepository)
	repo.On("Append", mock.Anything, mock.Anything).Return(repository.ErrInvalidMessage).Once()

	svc := NewMessageService(repo, nil, time.Minute)
	err := svc.AddMessage(context.Background(), domain.NewChatMessage("", "bob", 1))

	req.ErrorIs(err, repository.ErrInvalidMessage)
	repo.AssertExpectations(t)
}

func TestMessageService_RecentWithoutCache(t *testing.T) {
	req := require.New(t)
	repo := new(mockRepository)
	want := []domain.ChatMessage{{ID: 1, Content: "a", ChatRoomID: 3}}
	repo.On("Recent", mock.Anything, 3, 50).Return(want, nil).Once()
	repo.On("Recent", mock.Anything, 4, 50).Return(nil, errors.New("db down")).Once()

	svc := NewMessageService(repo, nil, time.Minute)

	got, err := svc.GetRecentMessages(context.Background(), 3, 50)
	req.NoError(err)
	req.Equal(want, got)

	_, err = svc.GetRecentMessages(context.Background(), 4, 50)
	req.Error(err)
	repo.AssertExpectations(t)
}

func TestMessageService_CacheServesUntilAppend(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := &memoryRepository{}
	c := newFakeCache()
	svc := NewMessageService(repo, c, time.Minute)

	req.NoError(svc.AddMessage(ctx, domain.NewChatMessage("first", "bob", 1)))

	got, err := svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 1)
	req.Eventually(func() bool { return c.setCount() == 1 }, time.Second, 5*time.Millisecond)

	// Served from cache now.
	got, err = svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(1, c.setCount())

	req.NoError(svc.AddMessage(ctx, domain.NewChatMessage("second", "bob", 1)))

	got, err = svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 2)
	req.Equal("second", got[1].Content)
}

func TestMessageService_FailedInvalidateBypassesStalePage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := &memoryRepository{}
	c := newFakeCache()
	svc := NewMessageService(repo, c, time.Minute)

	// An empty page is cached for the current generation.
	req.NoError(c.Set(ctx, 1, 0, 50, []domain.ChatMessage{}, time.Minute))
	c.failInvalidate(errors.New("redis down"))

	req.NoError(svc.AddMessage(ctx, domain.NewChatMessage("hello", "bob", 1)))

	got, err := svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("hello", got[0].Content)
	req.Equal(1, c.setCount(), "stale room must not be cached")

	// Once the cache answers again the stale generation is retired.
	c.failInvalidate(nil)
	got, err = svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 1)
	req.Eventually(func() bool { return c.setCount() == 2 }, time.Second, 5*time.Millisecond)

	got, err = svc.GetRecentMessages(ctx, 1, 50)
	req.NoError(err)
	req.Len(got, 1)
}

func TestMessageService_ConcurrentLoadsAreCollapsed(t *testing.T) {
	req := require.New(t)
	repo := new(mockRepository)
	release := make(chan struct{})
	repo.On("Recent", mock.Anything, 1, 50).
		Run(func(mock.Arguments) { <-release }).
		Return([]domain.ChatMessage{{ID: 1, Content: "a", ChatRoomID: 1}}, nil)

	svc := NewMessageService(repo, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, err := svc.GetRecentMessages(context.Background(), 1, 50)
			assert.NoError(t, err)
			assert.Len(t, msgs, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	calls := 0
	for _, call := range repo.Calls {
		if call.Method == "Recent" {
			calls++
		}
	}
	req.Less(calls, 10)
}
