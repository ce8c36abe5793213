package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
)

// Handler processes one broker message. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, msg kafka.Message) error

// ConsumerConfig configures a Consumer for a single topic.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer reads a topic as part of a consumer group. Offsets are committed
// only after the handler succeeds or its attempts are exhausted, so a crash
// mid-handler redelivers the message.
type Consumer struct {
	reader      *kafka.Reader
	topic       string
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		SessionTimeout: 10 * time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("group_id", cfg.GroupID).
		Msg("kafka consumer created")

	return newConsumer(reader, cfg, handler)
}

func newConsumer(reader *kafka.Reader, cfg ConsumerConfig, handler Handler) *Consumer {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Consumer{
		reader:      reader,
		topic:       cfg.Topic,
		handler:     handler,
		maxAttempts: attempts,
		backoff:     backoff,
	}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) {
	logger := log.With().Str("component", "consumer").Str("topic", c.topic).Logger()
	logger.Info().Msg("starting consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info().Msg("shutting down consumer")
				return
			}
			logger.Error().Err(err).Msg("failed to fetch message")
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !Deliver(ctx, c.handler, msg, c.maxAttempts, c.backoff) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit message")
		}
	}
}

// Deliver calls h until it succeeds or maxAttempts is reached, doubling the
// wait between attempts. A message that still fails is logged and dropped so
// one poison message cannot stall its partition. It returns false when ctx
// ends first.
func Deliver(ctx context.Context, h Handler, msg kafka.Message, maxAttempts int, backoff time.Duration) bool {
	logger := log.With().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	wait := backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, msg)
		if err == nil {
			metrics.MessagesConsumed.WithLabelValues(msg.Topic, metrics.ResultOK).Inc()
			return true
		}
		if attempt >= maxAttempts {
			metrics.MessagesConsumed.WithLabelValues(msg.Topic, metrics.ResultDropped).Inc()
			logger.Error().Err(err).Int("attempts", attempt).Msg("dropping message after retries")
			return true
		}
		metrics.MessagesConsumed.WithLabelValues(msg.Topic, metrics.ResultFailed).Inc()
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("handler failed, retrying")
		if !sleep(ctx, wait) {
			return false
		}
		wait *= 2
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
