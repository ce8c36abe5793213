package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher writes one message to a topic. Messages with the same key land in
// the same partition and keep their relative order.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// PublishEvent serializes e and publishes it to the topic for its type.
func PublishEvent(ctx context.Context, p Publisher, topics Topics, e Event) error {
	value, err := e.Value()
	if err != nil {
		return err
	}
	return p.Publish(ctx, topics.For(e.Type), e.Key, value)
}

// KafkaPublisher publishes through a single kafka.Writer; the topic is set
// per message.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.CRC32Balancer{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		Compression:            kafka.Snappy,
	}

	log.Info().Strs("brokers", brokers).Msg("kafka publisher created")
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ErrBrokerUnavailable is returned by MemoryBroker while failing.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// MemoryBroker is an in-process Publisher. Published messages are recorded
// and delivered synchronously to handlers subscribed to the topic; a handler
// error fails the Publish so the outbox row stays PENDING for the Relay. It
// backs single-process deployments without Kafka and the tests.
type MemoryBroker struct {
	mu       sync.Mutex
	messages []kafka.Message
	handlers map[string][]Handler
	offsets  map[string]int64
	failing  bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		handlers: make(map[string][]Handler),
		offsets:  make(map[string]int64),
	}
}

// Subscribe registers h for every later message on topic.
func (b *MemoryBroker) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// SetFailing makes every Publish fail with ErrBrokerUnavailable until reset.
func (b *MemoryBroker) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

func (b *MemoryBroker) Publish(ctx context.Context, topic, key string, value []byte) error {
	b.mu.Lock()
	if b.failing {
		b.mu.Unlock()
		return ErrBrokerUnavailable
	}
	msg := kafka.Message{
		Topic:  topic,
		Key:    []byte(key),
		Value:  append([]byte(nil), value...),
		Offset: b.offsets[topic],
		Time:   time.Now(),
	}
	b.offsets[topic]++
	b.messages = append(b.messages, msg)
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("topic", topic).
				Str("key", key).
				Msg("memory broker handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Messages returns the messages published to topic, or all when topic is empty.
func (b *MemoryBroker) Messages(topic string) []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []kafka.Message
	for _, m := range b.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (b *MemoryBroker) Close() error {
	return nil
}
