package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
)

// Relay republishes outbox rows that are still pending after retryAfter,
// covering events whose best-effort dispatch failed or never ran.
type Relay struct {
	outbox     *OutboxStore
	publisher  Publisher
	topics     Topics
	interval   time.Duration
	retryAfter time.Duration
	batchSize  int
	retention  time.Duration
}

type RelayConfig struct {
	Interval   time.Duration
	RetryAfter time.Duration
	BatchSize  int
}

func NewRelay(outbox *OutboxStore, publisher Publisher, topics Topics, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if topics == nil {
		topics = DefaultTopics()
	}
	return &Relay{
		outbox:     outbox,
		publisher:  publisher,
		topics:     topics,
		interval:   cfg.Interval,
		retryAfter: cfg.RetryAfter,
		batchSize:  cfg.BatchSize,
		retention:  24 * time.Hour,
	}
}

// Start begins the relay loop
func (r *Relay) Start(ctx context.Context) {
	logger := log.With().Str("component", "outbox_relay").Logger()
	logger.Info().Dur("interval", r.interval).Msg("starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down outbox relay")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to relay pending events")
			}
		}
	}
}

// RunOnce publishes one batch of due rows and returns how many were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "outbox_relay").Logger()

	rows, err := r.outbox.Pending(ctx, time.Now().UTC().Add(-r.retryAfter), r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, row := range rows {
		topic := r.topics.For(row.EventType)
		if err := r.publisher.Publish(ctx, topic, row.Key, row.Value); err != nil {
			metrics.EventsPublished.WithLabelValues(topic, metrics.ResultFailed).Inc()
			logger.Warn().Err(err).
				Str("event_id", row.EventID).
				Int("attempts", row.Attempts+1).
				Msg("failed to relay event")
			if markErr := r.outbox.MarkFailed(ctx, row.EventID, err); markErr != nil {
				logger.Error().Err(markErr).Str("event_id", row.EventID).Msg("failed to record relay failure")
			}
			continue
		}

		metrics.EventsPublished.WithLabelValues(topic, metrics.ResultOK).Inc()
		if err := r.outbox.MarkSent(ctx, row.EventID); err != nil {
			logger.Error().Err(err).Str("event_id", row.EventID).Msg("failed to mark relayed event sent")
			continue
		}
		sent++
	}

	if pending, err := r.outbox.CountPending(ctx); err == nil {
		metrics.OutboxPending.Set(float64(pending))
	}

	if removed, err := r.outbox.CleanupSent(ctx, time.Now().UTC().Add(-r.retention)); err != nil {
		logger.Warn().Err(err).Msg("failed to clean up sent events")
	} else if removed > 0 {
		logger.Debug().Int64("removed", removed).Msg("cleaned up sent events")
	}

	if len(rows) > 0 {
		logger.Info().Int("due", len(rows)).Int("sent", sent).Msg("relayed pending events")
	}
	return sent, nil
}
