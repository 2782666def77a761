package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

const (
	// headerDeliveryCount is set by RabbitMQ on quorum-queue redeliveries.
	headerDeliveryCount = "x-delivery-count"
	// headerAttempt carries the attempt number of a message republished
	// for retry on a classic queue.
	headerAttempt = "x-attempt"
)

var errNotConfirmed = errors.New("queue: publish not confirmed by broker")

// AMQPBroker implements Broker on RabbitMQ. The connection is shared; the
// publisher owns one confirm-mode channel and every consumer gets its own.
type AMQPBroker struct {
	conn *amqp.Connection
	cfg  AMQPConfig

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPBroker dials RabbitMQ and opens the publishing channel.
func NewAMQPBroker(cfg AMQPConfig) (*AMQPBroker, error) {
	props := amqp.NewConnectionProperties()
	if cfg.ConnectionName != "" {
		props.SetClientConnectionName(cfg.ConnectionName)
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &AMQPBroker{
		conn:  conn,
		cfg:   cfg,
		pubCh: ch,
	}, nil
}

func (b *AMQPBroker) queueArgs() amqp.Table {
	if b.cfg.Quorum {
		return amqp.Table{"x-queue-type": "quorum"}
	}
	return nil
}

func declare(ch *amqp.Channel, name string, args amqp.Table) error {
	// durable, not auto-deleted, not exclusive
	_, err := ch.QueueDeclare(name, true, false, false, false, args)
	return err
}

func (b *AMQPBroker) DeclareQueue(_ context.Context, name string) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := declare(b.pubCh, name, b.queueArgs()); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return b.publish(ctx, queue, body, nil)
}

func (b *AMQPBroker) publish(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	confirm, err := b.pubCh.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm publish to %s: %w", queue, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", errNotConfirmed, queue)
	}
	return nil
}

func (b *AMQPBroker) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if b.cfg.Prefetch > 0 {
		if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	if err := declare(ch, queue, b.queueArgs()); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume %s: %w", queue, err)
	}

	out := make(chan *Delivery)
	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					l := log.L()
					l.Warn().Str(log.FieldQueue, queue).Msg("rabbitmq delivery channel closed")
					return
				}

				attempt := amqpAttempt(m)
				d := NewDelivery(queue, m.Body, attempt,
					func() error { return m.Ack(false) },
					func(requeue bool) error { return b.nack(ctx, queue, m, attempt, requeue) },
				)

				select {
				case out <- d:
				case <-ctx.Done():
					_ = m.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

// nack requeues m. Quorum queues count redeliveries themselves; on classic
// queues the message is republished with its next attempt number and the
// original acked, falling back to a plain requeue if the republish fails.
func (b *AMQPBroker) nack(ctx context.Context, queue string, m amqp.Delivery, attempt int, requeue bool) error {
	if !requeue || b.cfg.Quorum {
		return m.Nack(false, requeue)
	}
	if err := b.publish(ctx, queue, m.Body, amqp.Table{headerAttempt: int32(attempt + 1)}); err != nil {
		return m.Nack(false, true)
	}
	return m.Ack(false)
}

func headerInt(h amqp.Table, key string) (int, bool) {
	switch v := h[key].(type) {
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func amqpAttempt(m amqp.Delivery) int {
	if n, ok := headerInt(m.Headers, headerDeliveryCount); ok {
		return n + 1
	}
	if n, ok := headerInt(m.Headers, headerAttempt); ok {
		return n
	}
	if m.Redelivered {
		return 2
	}
	return 1
}

func (b *AMQPBroker) Close() error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := b.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		l := log.L()
		l.Warn().Err(err).Msg("failed to close rabbitmq channel")
	}
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close rabbitmq connection: %w", err)
	}
	return nil
}
