package repository

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/Lucca-Muniz/Chat/chat-service/internal/domain"
	"github.com/Lucca-Muniz/Chat/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Append stores a message.
func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	model := domain.MessageToModel(msg)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Int(log.FieldRoomID, msg.ChatRoomID).Msg("failed to append message to db")
		return err
	}

	msg.ID = model.ID
	l.Debug().Int64("message_id", msg.ID).Int(log.FieldRoomID, msg.ChatRoomID).Msg("message appended")
	return nil
}

// Recent retrieves the newest messages of a room in chronological order.
func (r *GormMessageRepository) Recent(ctx context.Context, roomID, count int) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	if count <= 0 {
		return []domain.ChatMessage{}, nil
	}

	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(count).
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Int(log.FieldRoomID, roomID).Msg("failed to load recent messages")
		return nil, result.Error
	}

	messages := lo.Map(lo.Reverse(models), func(m domain.MessageModel, _ int) domain.ChatMessage {
		return m.ToDomain()
	})
	return messages, nil
}
