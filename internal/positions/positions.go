// Package positions owns the position ledger. Positions are never
// incremented here: each recalculation request overwrites the stored
// (quantity, average cost) of its (account, instrument) key.
package positions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/response"
)

// Service maintains positions
type Service struct {
	gormDB *gorm.DB
	db     *Database
	locker lock.Locker
	topic  string
}

// NewService creates a position service. topic labels messages handed to
// ProcessMessage without broker metadata.
func NewService(gormDB *gorm.DB, locker lock.Locker, topic string) *Service {
	if topic == "" {
		topic = events.DefaultTopics().For(events.TypeRecalculateRequested)
	}
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		locker: locker,
		topic:  topic,
	}
}

// Recalculate overwrites the position of the request's key with its target
// state, creating the position on first use. A versioned request older than
// the stored version fails with apperr.ErrStale and changes nothing.
func (s *Service) Recalculate(ctx context.Context, req *Request) (*types.Position, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := req.Normalize()

	logger := log.With().
		Str("account_id", r.AccountID).
		Str("instrument_id", r.InstrumentID).
		Int64("version", r.Version).
		Str("service", "positions").
		Logger()

	release, err := s.locker.Lock(ctx, lock.PositionKey(r.AccountID, r.InstrumentID))
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to lock position %s/%s", r.AccountID, r.InstrumentID)
	}
	defer release()

	var position *types.Position
	err = s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		var err error
		position, err = db.LockPositionByKey(r.AccountID, r.InstrumentID)
		if err != nil {
			return err
		}
		if position == nil {
			position = &types.Position{
				PositionID:   uuid.New().String(),
				AccountID:    r.AccountID,
				InstrumentID: r.InstrumentID,
			}
		} else if r.Version != 0 && r.Version < position.SourceVersion {
			return apperr.Stale("version %d is older than stored version %d", r.Version, position.SourceVersion)
		}

		position.Quantity = r.Quantity
		position.AvgCost = r.AvgCost
		position.LastUpdated = numeric.Now()
		if r.Version != 0 {
			position.SourceVersion = r.Version
		}
		return db.SavePosition(position)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStale) {
			metrics.Recalculations.WithLabelValues(metrics.ResultStale).Inc()
			logger.Warn().Err(err).Msg("stale recalculation rejected")
		} else {
			metrics.Recalculations.WithLabelValues(metrics.ResultFailed).Inc()
		}
		return nil, err
	}

	metrics.Recalculations.WithLabelValues(metrics.ResultApplied).Inc()
	logger.Info().
		Str("position_id", position.PositionID).
		Str("quantity", numeric.FormatQuantity(position.Quantity)).
		Interface("avg_cost", numeric.FormatNullPrice(position.AvgCost)).
		Msg("position recalculated")

	return position, nil
}

// ProcessMessage applies one raw recalculation message. Every failure is
// logged and the message counts as handled.
func (s *Service) ProcessMessage(ctx context.Context, raw []byte) {
	s.process(ctx, kafka.Message{Topic: s.topic, Value: raw})
}

// MessageHandler adapts ProcessMessage to a broker consumer. It never asks
// for redelivery.
func (s *Service) MessageHandler() events.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		s.process(ctx, msg)
		return nil
	}
}

func (s *Service) process(ctx context.Context, msg kafka.Message) {
	logger := log.With().
		Str("topic", msg.Topic).
		Str("key", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	req, err := decodeRequest(msg.Value)
	if err != nil {
		metrics.Recalculations.WithLabelValues(metrics.ResultDropped).Inc()
		logger.Error().Err(err).
			Str("payload", string(msg.Value)).
			Msg("dead letter: undecodable recalculation message")
		return
	}

	if _, err := s.Recalculate(ctx, req); err != nil {
		if errors.Is(err, apperr.ErrStale) {
			return
		}
		logger.Error().Err(err).
			Str("account_id", req.AccountID).
			Str("instrument_id", req.InstrumentID).
			Str("payload", string(msg.Value)).
			Msg("dead letter: recalculation failed")
	}
}

// decodeRequest accepts an event envelope or a bare request body.
func decodeRequest(raw []byte) (*Request, error) {
	var body events.RecalculateRequested
	if _, err := events.Decode(raw, &body); err != nil {
		body = events.RecalculateRequested{}
		if jerr := json.Unmarshal(raw, &body); jerr != nil {
			return nil, apperr.Validation("malformed message: %v", jerr)
		}
	}
	return RequestFromMessage(body)
}

// Get returns a position owned by accountID.
func (s *Service) Get(ctx context.Context, positionID, accountID string) (*types.Position, error) {
	return s.db.WithContext(ctx).GetPosition(positionID, accountID)
}

func (s *Service) GetByKey(ctx context.Context, accountID, instrumentID string) (*types.Position, error) {
	return s.db.WithContext(ctx).GetPositionByKey(accountID, instrumentID)
}

func (s *Service) ListByAccount(ctx context.Context, accountID string, page types.Pagination) ([]types.Position, int64, error) {
	return s.db.WithContext(ctx).ListPositions(accountID, page)
}

// Delete removes a position owned by accountID. A later recalculation for
// the same key creates it again.
func (s *Service) Delete(ctx context.Context, positionID, accountID string) error {
	if err := s.db.WithContext(ctx).DeletePosition(positionID, accountID); err != nil {
		return err
	}
	log.Info().
		Str("position_id", positionID).
		Str("account_id", accountID).
		Str("service", "positions").
		Msg("position deleted")
	return nil
}

// GinHandlers contains HTTP handlers for position endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// Register mounts the position routes on v1. authenticated guards the
// account routes and internal the recalculation endpoint.
func (h *GinHandlers) Register(v1 *gin.RouterGroup, authenticated, internal gin.HandlersChain) {
	group := v1.Group("/positions")
	group.Use(authenticated...)
	{
		group.GET("", h.ListPositionsHandler())
		group.GET("/:position_id", h.GetPositionHandler())
		group.GET("/instrument/:instrument_id", h.GetInstrumentPositionHandler())
		group.DELETE("/:position_id", h.DeletePositionHandler())
	}

	recalc := v1.Group("/internal/positions")
	recalc.Use(internal...)
	{
		recalc.POST("/recalculate", h.RecalculateHandler())
	}
}

func accountOrAbort(c *gin.Context) (string, bool) {
	accountID := auth.GetAccountID(c)
	if accountID == "" {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}
	return accountID, true
}

// ListPositionsHandler handles GET requests for the caller's positions
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		page, err := types.ParsePagination(c.Query("limit"), c.Query("offset"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		positions, total, err := h.service.ListByAccount(c.Request.Context(), accountID, page)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, types.MapPage(positions, total, page.Limit, page.Offset, func(p types.Position) types.PositionResponse {
			return p.Response()
		}))
	}
}

// GetPositionHandler handles GET requests for a single position
// URL parameter: position_id
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		position, err := h.service.Get(c.Request.Context(), c.Param("position_id"), accountID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, position.Response())
	}
}

// GetInstrumentPositionHandler handles GET requests for the caller's
// position in one instrument
func (h *GinHandlers) GetInstrumentPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		position, err := h.service.GetByKey(c.Request.Context(), accountID, c.Param("instrument_id"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, position.Response())
	}
}

// DeletePositionHandler handles DELETE requests
func (h *GinHandlers) DeletePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		if err := h.service.Delete(c.Request.Context(), c.Param("position_id"), accountID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.NoContent(c)
	}
}

// RecalculateHandler handles internal POST requests carrying a
// recalculation body, the same shape as the broker message
func (h *GinHandlers) RecalculateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body events.RecalculateRequested
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		req, err := RequestFromMessage(body)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		position, err := h.service.Recalculate(c.Request.Context(), req)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, position.Response())
	}
}
