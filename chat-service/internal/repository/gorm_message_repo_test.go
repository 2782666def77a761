package repository

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/pkg/database"
)

func newTestRepo(t *testing.T) *GormMessageRepository {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "chat.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, &domain.MessageModel{}))
	t.Cleanup(func() { _ = database.Close(db) })

	return NewGormMessageRepository(db)
}

func TestAppend_AssignsID(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	first := domain.NewChatMessage("hello room", "bob", 2)
	second := domain.NewChatMessage("again", "bob", 2)
	req.NoError(repo.Append(ctx, first))
	req.NoError(repo.Append(ctx, second))

	req.NotZero(first.ID)
	req.Greater(second.ID, first.ID)
}

func TestAppend_RejectsInvalid(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	req.ErrorIs(repo.Append(ctx, domain.NewChatMessage("", "bob", 1)), ErrInvalidMessage)
	req.ErrorIs(repo.Append(ctx, domain.NewChatMessage(strings.Repeat("x", 1001), "bob", 1)), ErrInvalidMessage)
	req.ErrorIs(repo.Append(ctx, domain.NewChatMessage("hi", "", 1)), ErrInvalidMessage)

	msgs, err := repo.Recent(ctx, 1, 50)
	req.NoError(err)
	req.Empty(msgs)
}

func TestRecent_AscendingAndLimited(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		msg := domain.NewChatMessage(string(rune('a'+i)), "alice", 1)
		msg.Timestamp = base.Add(time.Duration(i) * time.Second)
		req.NoError(repo.Append(ctx, msg))
	}
	other := domain.NewChatMessage("elsewhere", "carol", 2)
	other.Timestamp = base.Add(time.Hour)
	req.NoError(repo.Append(ctx, other))

	msgs, err := repo.Recent(ctx, 1, 3)
	req.NoError(err)
	req.Len(msgs, 3)
	req.Equal([]string{"h", "i", "j"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	for i := 1; i < len(msgs); i++ {
		req.True(msgs[i-1].Timestamp.Before(msgs[i].Timestamp))
	}
	for _, m := range msgs {
		req.Equal(1, m.ChatRoomID)
	}

	msgs, err = repo.Recent(ctx, 2, 50)
	req.NoError(err)
	req.Len(msgs, 1)
	req.Equal("elsewhere", msgs[0].Content)
}

func TestRecent_TiesBrokenByID(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, content := range []string{"first", "second", "third"} {
		msg := domain.NewChatMessage(content, "alice", 1)
		msg.Timestamp = ts
		req.NoError(repo.Append(ctx, msg))
	}

	msgs, err := repo.Recent(ctx, 1, 2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("second", msgs[0].Content)
	req.Equal("third", msgs[1].Content)
}

func TestRecent_BotFlagRoundTrips(t *testing.T) {
	req := require.New(t)
	repo := newTestRepo(t)
	ctx := context.Background()

	req.NoError(repo.Append(ctx, domain.NewBotMessage("AAPL quote is $150.25 per share", 1)))

	msgs, err := repo.Recent(ctx, 1, 50)
	req.NoError(err)
	req.Len(msgs, 1)
	req.True(msgs[0].IsBot)
	req.Equal(domain.BotUsername, msgs[0].Username)
	req.Equal(time.UTC, msgs[0].Timestamp.Location())
}
