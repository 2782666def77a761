package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

const (
	streamFieldBody    = "body"
	streamFieldAttempt = "attempt"
)

// RedisBroker implements Broker on Redis Streams. Each queue is a stream read
// through one consumer group, so consumers in different processes compete
// for messages. Ack is XACK+XDEL; a requeue re-adds the entry with a bumped
// attempt counter before acknowledging the old one.
type RedisBroker struct {
	client   *redis.Client
	group    string
	consumer string
	block    time.Duration
}

// NewRedisBroker connects to Redis.
func NewRedisBroker(cfg RedisConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisBroker(client, cfg), nil
}

func newRedisBroker(client *redis.Client, cfg RedisConfig) *RedisBroker {
	b := &RedisBroker{
		client:   client,
		group:    cfg.Group,
		consumer: cfg.Consumer,
		block:    cfg.Block,
	}
	if b.group == "" {
		b.group = "financial-chat"
	}
	if b.consumer == "" {
		b.consumer = "consumer"
	}
	if b.block <= 0 {
		b.block = 2 * time.Second
	}
	return b
}

func (b *RedisBroker) DeclareQueue(ctx context.Context, name string) error {
	err := b.client.XGroupCreateMkStream(ctx, name, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for %s: %w", name, err)
	}
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return b.add(ctx, b.client, queue, body, 1)
}

func (b *RedisBroker) add(ctx context.Context, c redis.Cmdable, queue string, body []byte, attempt int) error {
	err := c.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		Values: map[string]interface{}{
			streamFieldBody:    body,
			streamFieldAttempt: attempt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to stream %s: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	if err := b.DeclareQueue(ctx, queue); err != nil {
		return nil, err
	}

	out := make(chan *Delivery)
	go func() {
		defer close(out)
		l := log.L().With().Str(log.FieldQueue, queue).Logger()

		// Entries delivered to this consumer before a restart come first.
		cursor := "0"
		for ctx.Err() == nil {
			streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.group,
				Consumer: b.consumer,
				Streams:  []string{queue, cursor},
				Count:    1,
				Block:    b.block,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				l.Error().Err(err).Msg("redis stream read failed")
				sleepCtx(ctx, time.Second)
				continue
			}

			delivered := 0
			for _, s := range streams {
				for _, msg := range s.Messages {
					delivered++
					if !b.emit(ctx, out, queue, msg) {
						return
					}
				}
			}
			if cursor == "0" && delivered == 0 {
				cursor = ">"
			}
		}
	}()

	return out, nil
}

func (b *RedisBroker) emit(ctx context.Context, out chan<- *Delivery, queue string, msg redis.XMessage) bool {
	body := []byte(fmt.Sprint(msg.Values[streamFieldBody]))
	attempt, _ := strconv.Atoi(fmt.Sprint(msg.Values[streamFieldAttempt]))

	settle := func(requeue bool) error {
		_, err := b.client.TxPipelined(context.Background(), func(p redis.Pipeliner) error {
			if requeue {
				if err := b.add(context.Background(), p, queue, body, attempt+1); err != nil {
					return err
				}
			}
			p.XAck(context.Background(), queue, b.group, msg.ID)
			p.XDel(context.Background(), queue, msg.ID)
			return nil
		})
		return err
	}

	d := NewDelivery(queue, body, attempt,
		func() error { return settle(false) },
		settle,
	)

	select {
	case out <- d:
		return true
	case <-ctx.Done():
		// Left pending; redelivered from the pending list on next start.
		return false
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
