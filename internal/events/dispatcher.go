package events

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
)

// Dispatcher publishes the side effects returned by a service call. It never
// fails the caller: a failed publish is logged and left PENDING in the outbox
// for the Relay.
type Dispatcher struct {
	publisher Publisher
	topics    Topics
	outbox    *OutboxStore
}

// NewDispatcher builds a Dispatcher. outbox may be nil when events were not
// staged, in which case failures are only logged.
func NewDispatcher(publisher Publisher, topics Topics, outbox *OutboxStore) *Dispatcher {
	if topics == nil {
		topics = DefaultTopics()
	}
	return &Dispatcher{publisher: publisher, topics: topics, outbox: outbox}
}

// Dispatch publishes evts in order and returns how many were published.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...Event) int {
	published := 0
	for _, e := range evts {
		topic := d.topics.For(e.Type)
		logger := log.With().
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Str("topic", topic).
			Str("key", e.Key).
			Logger()

		if err := PublishEvent(ctx, d.publisher, d.topics, e); err != nil {
			metrics.EventsPublished.WithLabelValues(topic, metrics.ResultFailed).Inc()
			logger.Error().Err(err).Msg("failed to publish event, left for relay")
			if d.outbox != nil {
				if markErr := d.outbox.MarkFailed(ctx, e.ID, err); markErr != nil {
					logger.Error().Err(markErr).Msg("failed to record publish failure")
				}
			}
			continue
		}

		metrics.EventsPublished.WithLabelValues(topic, metrics.ResultOK).Inc()
		published++
		logger.Debug().Msg("event published")

		if d.outbox != nil {
			if err := d.outbox.MarkSent(ctx, e.ID); err != nil {
				// The relay will publish it again; consumers are idempotent.
				logger.Warn().Err(err).Msg("failed to mark outbox row sent")
			}
		}
	}
	return published
}
