package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

const kafkaHeaderAttempt = "attempt"

// KafkaBroker implements Broker on Kafka. A queue is a topic consumed by one
// consumer group with manual commits: Ack commits the offset, a requeue
// produces a copy with a bumped attempt header and then commits.
type KafkaBroker struct {
	producer *kafka.Producer
	cfg      KafkaConfig

	mu        sync.Mutex
	consumers []chan struct{}
	doneCh    chan struct{}
}

// NewKafkaBroker creates the shared producer.
func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBroker{
		producer: p,
		cfg:      cfg,
		doneCh:   make(chan struct{}),
	}
	go b.eventHandler()

	return b, nil
}

// eventHandler drains producer events that are not per-message reports.
func (b *KafkaBroker) eventHandler() {
	defer close(b.doneCh)
	l := log.L()
	for e := range b.producer.Events() {
		if ev, ok := e.(kafka.Error); ok {
			l.Error().Err(ev).Bool("fatal", ev.IsFatal()).Msg("kafka producer error")
		}
	}
}

func (b *KafkaBroker) DeclareQueue(ctx context.Context, name string) error {
	admin, err := kafka.NewAdminClientFromProducer(b.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := b.cfg.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             name,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", name, err)
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Error)
		}
	}
	return nil
}

func (b *KafkaBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return b.produce(ctx, queue, body, 1)
}

func (b *KafkaBroker) produce(ctx context.Context, topic string, body []byte, attempt int) error {
	report := make(chan kafka.Event, 1)
	err := b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          body,
		Headers:        []kafka.Header{{Key: kafkaHeaderAttempt, Value: []byte(strconv.Itoa(attempt))}},
	}, report)
	if err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}

	select {
	case e := <-report:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *KafkaBroker) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  b.cfg.Brokers,
		"group.id":           b.cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(queue, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", queue, err)
	}

	stopped := make(chan struct{})
	b.mu.Lock()
	b.consumers = append(b.consumers, stopped)
	b.mu.Unlock()

	out := make(chan *Delivery)
	go func() {
		defer close(stopped)
		defer c.Close()
		defer close(out)
		l := log.L().With().Str(log.FieldQueue, queue).Logger()

		for ctx.Err() == nil {
			ev := c.Poll(500)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				msg := e
				attempt := kafkaAttempt(msg)
				d := NewDelivery(queue, msg.Value, attempt,
					func() error {
						_, err := c.CommitMessage(msg)
						return err
					},
					func(requeue bool) error {
						if requeue {
							if err := b.produce(context.Background(), queue, msg.Value, attempt+1); err != nil {
								return err
							}
						}
						_, err := c.CommitMessage(msg)
						return err
					},
				)
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}

			case kafka.Error:
				l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
				if e.IsFatal() {
					return
				}
			}
		}
	}()

	return out, nil
}

func kafkaAttempt(m *kafka.Message) int {
	for _, h := range m.Headers {
		if h.Key == kafkaHeaderAttempt {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 1
}

// Close waits for consumer loops to exit (their contexts must already be
// cancelled) and then flushes and closes the producer.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	consumers := b.consumers
	b.consumers = nil
	b.mu.Unlock()

	for _, stopped := range consumers {
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			l := log.L()
			l.Warn().Msg("kafka consumer did not stop in time")
		}
	}

	b.producer.Flush(5000)
	b.producer.Close()
	<-b.doneCh
	return nil
}
