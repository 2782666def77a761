// Package queue is the durable work-queue transport shared by chat-service
// and stock-bot-service. Brokers hand out deliveries that must be settled
// exactly once with Ack or Nack.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrClosed         = errors.New("queue: broker closed")
	ErrUnknownDriver  = errors.New("queue: unknown driver")
	ErrAlreadySettled = errors.New("queue: delivery already settled")
)

// Broker is a connection to a message broker. One Broker is opened per
// process and shared by every publisher and consumer in it.
type Broker interface {
	// DeclareQueue makes sure a durable, shared queue exists. It is idempotent.
	DeclareQueue(ctx context.Context, name string) error
	// Publish enqueues body and returns once the broker has accepted it.
	Publish(ctx context.Context, queue string, body []byte) error
	// Consume streams deliveries from queue until ctx is cancelled.
	Consume(ctx context.Context, queue string) (<-chan *Delivery, error)
	Close() error
}

// Delivery is one message handed to a consumer.
type Delivery struct {
	Queue string
	Body  []byte
	// Attempt is 1 on first delivery. Transports that cannot count
	// redeliveries report 2 for any redelivered message.
	Attempt int

	ack     func() error
	nack    func(requeue bool) error
	settled atomic.Bool
}

// NewDelivery wires a delivery to its transport-specific settle functions.
func NewDelivery(queue string, body []byte, attempt int, ack func() error, nack func(requeue bool) error) *Delivery {
	if attempt < 1 {
		attempt = 1
	}
	return &Delivery{
		Queue:   queue,
		Body:    body,
		Attempt: attempt,
		ack:     ack,
		nack:    nack,
	}
}

// Ack removes the message from the queue.
func (d *Delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.ack()
}

// Nack rejects the message; with requeue it will be delivered again.
func (d *Delivery) Nack(requeue bool) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.nack(requeue)
}

// Settled reports whether Ack or Nack has been called.
func (d *Delivery) Settled() bool {
	return d.settled.Load()
}

// HandlerFunc processes one message body. A nil return acknowledges it.
type HandlerFunc func(ctx context.Context, body []byte) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that redelivery cannot fix, such as a payload
// that does not decode.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DeadLetterQueue names the queue that receives messages given up on.
func DeadLetterQueue(queue string) string {
	return fmt.Sprintf("%s.dead_letter", queue)
}
