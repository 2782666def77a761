// Package mq connects chat-service to the durable stock queues: commands go
// out to the bot, responses come back into rooms.
package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lucca-Muniz/Chat/pkg/contracts"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
)

// CommandPublisher enqueues stock quote requests.
type CommandPublisher interface {
	Publish(ctx context.Context, stockCode, username string, roomID int) error
}

// BrokerCommandPublisher publishes commands on the shared broker connection.
// A publish failure is returned to the caller without retrying.
type BrokerCommandPublisher struct {
	broker queue.Broker
	queue  string

	mu       sync.Mutex
	declared bool
}

func NewBrokerCommandPublisher(broker queue.Broker, queueName string) *BrokerCommandPublisher {
	if queueName == "" {
		queueName = contracts.StockCommandQueue
	}
	return &BrokerCommandPublisher{
		broker: broker,
		queue:  queueName,
	}
}

func (p *BrokerCommandPublisher) declare(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.declared {
		return nil
	}
	if err := p.broker.DeclareQueue(ctx, p.queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", p.queue, err)
	}
	p.declared = true
	return nil
}

func (p *BrokerCommandPublisher) Publish(ctx context.Context, stockCode, username string, roomID int) error {
	if err := p.declare(ctx); err != nil {
		return err
	}

	body, err := contracts.Encode(&contracts.StockCommand{
		StockCode:  stockCode,
		Username:   username,
		ChatRoomID: roomID,
	})
	if err != nil {
		return err
	}

	if err := p.broker.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("failed to publish stock command: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldQueue, p.queue).Str(log.FieldStockCode, stockCode).Int(log.FieldRoomID, roomID).Msg("stock command published")
	return nil
}
