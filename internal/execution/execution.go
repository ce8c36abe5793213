// Package execution records trades against orders and drives the fill part
// of the order state machine.
package execution

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/metrics"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/trading"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/response"
)

// Service records executions
type Service struct {
	gormDB   *gorm.DB
	db       *Database
	orders   *trading.Database
	locker   lock.Locker
	fillMode string
}

// NewService creates an execution service. fillMode is config.FillModeCumulative
// or config.FillModeSingle.
func NewService(gormDB *gorm.DB, locker lock.Locker, fillMode string) *Service {
	if fillMode == "" {
		fillMode = config.FillModeCumulative
	}
	return &Service{
		gormDB:   gormDB,
		db:       NewDatabase(gormDB),
		orders:   trading.NewDatabase(gormDB),
		locker:   locker,
		fillMode: fillMode,
	}
}

// classify returns the order status after recording a fill of qty.
func (s *Service) classify(order *types.Order, qty decimal.Decimal) types.OrderStatus {
	target := order.RemainingQuantity()
	if s.fillMode == config.FillModeSingle {
		target = order.Quantity
	}
	if qty.GreaterThanOrEqual(target) {
		return types.OrderStatusFilled
	}
	return types.OrderStatusPartiallyFilled
}

// Execute validates req, then persists the trade, the order's new fill state
// and the trade-executed event in one transaction. A repeated idempotency key
// returns the trade recorded the first time and no events.
func (s *Service) Execute(ctx context.Context, req Request, idempotencyKey string) (*types.Trade, []events.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	req = req.Normalize()

	logger := log.With().
		Str("order_id", req.OrderID).
		Str("account_id", req.AccountID).
		Str("service", "execution").
		Logger()

	scopedKey := ""
	if idempotencyKey != "" {
		scopedKey = trading.IdempotencyKey("trade", req.AccountID, idempotencyKey)
		if existing, err := s.replay(ctx, scopedKey, req.AccountID); err != nil || existing != nil {
			return existing, nil, err
		}
	}

	release, err := s.locker.Lock(ctx, lock.OrderKey(req.OrderID))
	if err != nil {
		return nil, nil, apperr.Infrastructure(err, "failed to lock order %s", req.OrderID)
	}
	defer release()

	var (
		trade *types.Trade
		order *types.Order
		evt   events.Event
	)
	err = s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := trading.NewDatabase(tx)

		var err error
		order, err = orders.LockOrder(req.OrderID, req.AccountID)
		if err != nil {
			return err
		}
		if !order.Status.Executable() {
			return apperr.InvalidState("order %s is %s, no further executions accepted", order.OrderID, order.Status)
		}

		trade = &types.Trade{
			TradeID:        uuid.New().String(),
			OrderID:        order.OrderID,
			AccountID:      order.AccountID,
			InstrumentID:   order.InstrumentID,
			Side:           order.Side,
			Quantity:       req.Quantity,
			Price:          req.Price,
			Fees:           req.Fees,
			Taxes:          req.Taxes,
			ExecutedAt:     req.ExecutedAt,
			SettlementDate: req.SettlementDate,
			Status:         types.TradeStatusExecuted,
		}
		if err := NewDatabase(tx).CreateTrade(trade); err != nil {
			return err
		}

		order.Status = s.classify(order, trade.Quantity)
		order.FilledQuantity = numeric.Quantity(order.FilledQuantity.Add(trade.Quantity))
		if err := orders.UpdateOrder(order); err != nil {
			return err
		}

		if scopedKey != "" {
			if err := orders.CreateIdempotencyRecord(scopedKey, trade.TradeID, "trade"); err != nil {
				return err
			}
		}

		evt, err = events.NewTradeExecuted(trade, order)
		if err != nil {
			return err
		}
		if err := events.Stage(tx, evt); err != nil {
			return apperr.Infrastructure(err, "failed to stage trade-executed")
		}
		return nil
	})
	if err != nil {
		if scopedKey != "" {
			if existing, rerr := s.replay(ctx, scopedKey, req.AccountID); rerr == nil && existing != nil {
				return existing, nil, nil
			}
		}
		return nil, nil, err
	}

	metrics.Executions.WithLabelValues(string(order.Status)).Inc()
	logger.Info().
		Str("trade_id", trade.TradeID).
		Str("quantity", numeric.FormatQuantity(trade.Quantity)).
		Str("price", numeric.FormatPrice(trade.Price)).
		Str("filled_quantity", numeric.FormatQuantity(order.FilledQuantity)).
		Str("order_status", string(order.Status)).
		Msg("execution recorded")

	return trade, []events.Event{evt}, nil
}

func (s *Service) replay(ctx context.Context, scopedKey, accountID string) (*types.Trade, error) {
	record, err := s.orders.WithContext(ctx).GetIdempotencyRecord(scopedKey)
	if err != nil || record == nil {
		return nil, err
	}
	return s.db.WithContext(ctx).GetTrade(record.ResourceID, accountID)
}

// GetExecution returns a trade owned by accountID.
func (s *Service) GetExecution(ctx context.Context, tradeID, accountID string) (*types.Trade, error) {
	return s.db.WithContext(ctx).GetTrade(tradeID, accountID)
}

// LastExecution returns the most recent trade of an order owned by accountID.
func (s *Service) LastExecution(ctx context.Context, orderID, accountID string) (*types.Trade, error) {
	if _, err := s.orders.WithContext(ctx).GetOrderForAccount(orderID, accountID); err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).LastTrade(orderID, accountID)
}

// HistoryByOrder lists an order's trades, newest first.
func (s *Service) HistoryByOrder(ctx context.Context, orderID, accountID string, page types.Pagination) ([]types.Trade, int64, error) {
	if _, err := s.orders.WithContext(ctx).GetOrderForAccount(orderID, accountID); err != nil {
		return nil, 0, err
	}
	return s.db.WithContext(ctx).ListTrades(accountID, orderID, page)
}

// HistoryByAccount lists an account's trades, newest first.
func (s *Service) HistoryByAccount(ctx context.Context, accountID string, page types.Pagination) ([]types.Trade, int64, error) {
	return s.db.WithContext(ctx).ListTrades(accountID, "", page)
}

// GinHandlers contains HTTP handlers for execution endpoints
type GinHandlers struct {
	service    *Service
	dispatcher *events.Dispatcher
}

func NewGinHandlers(service *Service, dispatcher *events.Dispatcher) *GinHandlers {
	return &GinHandlers{
		service:    service,
		dispatcher: dispatcher,
	}
}

func tradePage(trades []types.Trade, total int64, page types.Pagination) types.Page[types.TradeResponse] {
	return types.MapPage(trades, total, page.Limit, page.Offset, func(t types.Trade) types.TradeResponse {
		return t.Response()
	})
}

// ExecuteHandler handles internal POST requests reporting a fill
// Idempotency-Key header is optional
func (h *GinHandlers) ExecuteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body ExecutionBody
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		req, err := body.Request()
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		trade, evts, err := h.service.Execute(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if len(evts) > 0 {
			h.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), evts...)
		}

		response.Success(c, trade.Response())
	}
}

// GetExecutionHandler handles GET requests for a single trade
// URL parameter: trade_id
func (h *GinHandlers) GetExecutionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := auth.GetAccountID(c)
		if accountID == "" {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		trade, err := h.service.GetExecution(c.Request.Context(), c.Param("trade_id"), accountID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, trade.Response())
	}
}

// LastExecutionHandler handles GET requests for an order's latest trade
func (h *GinHandlers) LastExecutionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := auth.GetAccountID(c)
		if accountID == "" {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		trade, err := h.service.LastExecution(c.Request.Context(), c.Param("order_id"), accountID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, trade.Response())
	}
}

// OrderExecutionsHandler handles GET requests for an order's trade history
func (h *GinHandlers) OrderExecutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := auth.GetAccountID(c)
		if accountID == "" {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		page, err := types.ParsePagination(c.Query("limit"), c.Query("offset"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trades, total, err := h.service.HistoryByOrder(c.Request.Context(), c.Param("order_id"), accountID, page)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, tradePage(trades, total, page))
	}
}

// AccountExecutionsHandler handles GET requests for the caller's trade history
func (h *GinHandlers) AccountExecutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := auth.GetAccountID(c)
		if accountID == "" {
			response.Unauthorized(c, "Missing authentication claims")
			return
		}

		page, err := types.ParsePagination(c.Query("limit"), c.Query("offset"))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trades, total, err := h.service.HistoryByAccount(c.Request.Context(), accountID, page)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, tradePage(trades, total, page))
	}
}
