package queue

import (
	"context"
	"fmt"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

// malformedAttempts bounds redelivery of permanently failing messages: they
// are requeued once, then given up on.
const malformedAttempts = 2

// RetryPolicy decides what happens to a message whose handler failed.
type RetryPolicy struct {
	// MaxAttempts caps deliveries of a failing message. Zero means requeue
	// forever.
	MaxAttempts int
	// DeadLetter moves given-up messages to DeadLetterQueue instead of
	// dropping them.
	DeadLetter bool
}

type outcome int

const (
	outcomeRequeue outcome = iota
	outcomeDeadLetter
	outcomeDrop
)

func (p RetryPolicy) decide(err error, attempt int) outcome {
	limit := p.MaxAttempts
	if IsPermanent(err) && (limit == 0 || limit > malformedAttempts) {
		limit = malformedAttempts
	}
	if limit == 0 || attempt < limit {
		return outcomeRequeue
	}
	if p.DeadLetter {
		return outcomeDeadLetter
	}
	return outcomeDrop
}

// Consumer runs a single-threaded consumption loop over one queue, settling
// each delivery from the handler result.
type Consumer struct {
	broker  Broker
	queue   string
	handler HandlerFunc
	policy  RetryPolicy
}

// NewConsumer creates a consumer for queue.
func NewConsumer(broker Broker, queue string, handler HandlerFunc, policy RetryPolicy) *Consumer {
	return &Consumer{
		broker:  broker,
		queue:   queue,
		handler: handler,
		policy:  policy,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation and an
// error if the queue cannot be consumed or the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.broker.DeclareQueue(ctx, c.queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}

	deliveries, err := c.broker.Consume(ctx, c.queue)
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", c.queue, err)
	}

	l := log.L().With().Str(log.FieldQueue, c.queue).Logger()
	l.Info().Int("max_attempts", c.policy.MaxAttempts).Msg("queue consumer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("queue consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("queue %s: %w", c.queue, ErrClosed)
			}
			// In-flight work finishes even if shutdown starts meanwhile.
			dctx := log.WithLogger(context.WithoutCancel(ctx), l)
			c.process(dctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d *Delivery) {
	l := log.Ctx(ctx)

	err := c.handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			l.Error().Err(ackErr).Msg("failed to ack message")
		}
		return
	}

	switch c.policy.decide(err, d.Attempt) {
	case outcomeRequeue:
		l.Warn().Err(err).Int(log.FieldAttempt, d.Attempt).Msg("message failed, requeueing")
		if nackErr := d.Nack(true); nackErr != nil {
			l.Error().Err(nackErr).Msg("failed to nack message")
		}

	case outcomeDeadLetter:
		c.deadLetter(ctx, d, err)

	case outcomeDrop:
		l.Error().Err(err).Int(log.FieldAttempt, d.Attempt).Msg("message failed permanently, dropping")
		if nackErr := d.Nack(false); nackErr != nil {
			l.Error().Err(nackErr).Msg("failed to reject message")
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, d *Delivery, cause error) {
	l := log.Ctx(ctx)
	dlq := DeadLetterQueue(c.queue)

	err := c.broker.DeclareQueue(ctx, dlq)
	if err == nil {
		err = c.broker.Publish(ctx, dlq, d.Body)
	}
	if err != nil {
		// Keep the message rather than lose it.
		l.Error().Err(err).Str("dead_letter_queue", dlq).Msg("failed to dead-letter message, requeueing")
		if nackErr := d.Nack(true); nackErr != nil {
			l.Error().Err(nackErr).Msg("failed to nack message")
		}
		return
	}

	l.Error().Err(cause).Int(log.FieldAttempt, d.Attempt).Str("dead_letter_queue", dlq).Msg("message moved to dead letter queue")
	if ackErr := d.Ack(); ackErr != nil {
		l.Error().Err(ackErr).Msg("failed to ack dead-lettered message")
	}
}
