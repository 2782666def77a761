package queue

import (
	"context"
	"errors"
	"sync"
)

const memoryQueueSize = 1024

var errMemoryQueueFull = errors.New("queue: memory queue full")

type memoryMessage struct {
	body    []byte
	attempt int
}

// MemoryBroker is an in-process Broker. Messages do not survive a restart;
// it exists for tests and single-process development.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan memoryMessage
	closed bool
	done   chan struct{}
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string]chan memoryMessage),
		done:   make(chan struct{}),
	}
}

func (b *MemoryBroker) queue(name string) (chan memoryMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	q, ok := b.queues[name]
	if !ok {
		q = make(chan memoryMessage, memoryQueueSize)
		b.queues[name] = q
	}
	return q, nil
}

func (b *MemoryBroker) DeclareQueue(_ context.Context, name string) error {
	_, err := b.queue(name)
	return err
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return b.enqueue(ctx, queue, memoryMessage{body: append([]byte(nil), body...), attempt: 1})
}

func (b *MemoryBroker) enqueue(ctx context.Context, queue string, msg memoryMessage) error {
	q, err := b.queue(queue)
	if err != nil {
		return err
	}
	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errMemoryQueueFull
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	q, err := b.queue(queue)
	if err != nil {
		return nil, err
	}

	out := make(chan *Delivery)
	go func() {
		defer close(out)
		for {
			var msg memoryMessage
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case msg = <-q:
			}

			d := NewDelivery(queue, msg.body, msg.attempt,
				func() error { return nil },
				func(requeue bool) error {
					if !requeue {
						return nil
					}
					return b.enqueue(context.Background(), queue, memoryMessage{body: msg.body, attempt: msg.attempt + 1})
				},
			)

			select {
			case out <- d:
			case <-ctx.Done():
				// Hand the message back so it is not lost.
				_ = b.enqueue(context.Background(), queue, msg)
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

// Len reports the number of messages waiting in queue.
func (b *MemoryBroker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
