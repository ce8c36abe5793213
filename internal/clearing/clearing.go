// Package clearing reconciles positions from trade history. For each
// executed trade it recomputes the (account, instrument) position from every
// recorded trade and asks the position ledger to overwrite its copy.
package clearing

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/response"
)

// Service handles position reconciliation
type Service struct {
	db        *Database
	publisher events.Publisher
	topics    events.Topics
}

// NewService creates a new clearing service with the given database connection
func NewService(gormDB *gorm.DB, publisher events.Publisher, topics events.Topics) *Service {
	if topics == nil {
		topics = events.DefaultTopics()
	}
	return &Service{
		db:        NewDatabase(gormDB),
		publisher: publisher,
		topics:    topics,
	}
}

// Reconcile nets the trade history of (accountID, instrumentID) and publishes
// a positions-recalculate-requested message for it. Publication errors are
// returned so the triggering message is redelivered.
func (s *Service) Reconcile(ctx context.Context, accountID, instrumentID string) (*NetPosition, *events.RecalculateRequested, error) {
	accountID = strings.TrimSpace(accountID)
	instrumentID = strings.TrimSpace(instrumentID)
	if accountID == "" || instrumentID == "" {
		return nil, nil, apperr.Validation("account_id and instrument_id are required")
	}

	logger := log.With().
		Str("account_id", accountID).
		Str("instrument_id", instrumentID).
		Str("service", "clearing").
		Logger()

	trades, err := s.db.GetTradesForPosition(ctx, accountID, instrumentID)
	if err != nil {
		return nil, nil, err
	}

	net := NetTrades(accountID, instrumentID, trades)

	req := events.RecalculateRequested{
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Quantity:     numeric.FormatQuantity(net.Quantity),
		AvgCost:      numeric.FormatNullPrice(net.AvgCost),
		Version:      net.Version,
		RequestedAt:  numeric.Now(),
	}
	evt, err := events.NewRecalculateRequested(req)
	if err != nil {
		return nil, nil, err
	}

	topic := s.topics.For(evt.Type)
	if err := events.PublishEvent(ctx, s.publisher, s.topics, evt); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, metrics.ResultFailed).Inc()
		return nil, nil, apperr.Infrastructure(err, "failed to publish recalculation for %s", evt.Key)
	}
	metrics.EventsPublished.WithLabelValues(topic, metrics.ResultOK).Inc()

	logger.Info().
		Int("trades", net.TradeCount).
		Str("quantity", req.Quantity).
		Int64("version", req.Version).
		Msg("recalculation requested")

	return &net, &req, nil
}

// TradeExecutedHandler consumes trade-executed messages. Undecodable messages
// are logged and skipped; reconciliation failures are returned for retry.
func (s *Service) TradeExecutedHandler() events.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var body events.TradeExecuted
		evt, err := events.Decode(msg.Value, &body)
		if err != nil {
			log.Error().Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Str("payload", string(msg.Value)).
				Msg("skipping undecodable trade-executed message")
			return nil
		}

		log.Debug().
			Str("event_id", evt.ID).
			Str("trade_id", body.Trade.TradeID).
			Msg("trade-executed received")

		_, _, err = s.Reconcile(ctx, body.Trade.AccountID, body.Trade.InstrumentID)
		if errors.Is(err, apperr.ErrInfrastructure) {
			return err
		}
		if err != nil {
			log.Error().Err(err).Str("event_id", evt.ID).Msg("skipping trade-executed message")
		}
		return nil
	}
}

// GinHandlers contains HTTP handlers for reconciliation endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for reconciliation endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ReconcileHandler handles internal POST requests to recompute a position
// from trade history
func (h *GinHandlers) ReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReconcileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		net, sent, err := h.service.Reconcile(c.Request.Context(), req.AccountID, req.InstrumentID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, ReconcileResponse{
			AccountID:    net.AccountID,
			InstrumentID: net.InstrumentID,
			Quantity:     sent.Quantity,
			AvgCost:      sent.AvgCost,
			TradeCount:   net.TradeCount,
			Version:      sent.Version,
			RequestedAt:  sent.RequestedAt,
		})
	}
}
