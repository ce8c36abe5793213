// Package trading is the order ledger: it owns order records and the
// administrative part of the fill state machine.
package trading

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/response"
)

// Service handles order placement and management
type Service struct {
	db     *Database
	locker lock.Locker
}

// NewService creates a new trading service with the given database connection
func NewService(gormDB *gorm.DB, locker lock.Locker) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		locker: locker,
	}
}

// PlaceOrder validates spec and persists a PENDING order for accountID
// together with its order-created event. A repeated idempotency key returns
// the order created the first time and no events.
func (s *Service) PlaceOrder(ctx context.Context, accountID string, spec OrderSpec, idempotencyKey string) (*types.Order, []events.Event, error) {
	logger := log.With().
		Str("account_id", accountID).
		Str("service", "trading").
		Logger()

	if accountID == "" {
		return nil, nil, apperr.Validation("account_id is required")
	}
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}

	db := s.db.WithContext(ctx)
	scopedKey := ""
	if idempotencyKey != "" {
		scopedKey = IdempotencyKey("order", accountID, idempotencyKey)
		if existing, err := s.replay(db, scopedKey, accountID); err != nil || existing != nil {
			return existing, nil, err
		}
	}

	order := &types.Order{
		OrderID:        uuid.New().String(),
		AccountID:      accountID,
		InstrumentID:   spec.InstrumentID,
		Side:           spec.Side,
		OrderType:      spec.OrderType,
		Quantity:       spec.Quantity,
		FilledQuantity: decimal.Zero,
		LimitPrice:     spec.LimitPrice,
		Status:         types.OrderStatusPending,
		PlacedAt:       numeric.Now(),
		Note:           spec.Note,
	}

	evt, err := events.NewOrderCreated(order)
	if err != nil {
		return nil, nil, err
	}

	err = db.Transaction(func(tx *Database) error {
		if err := tx.CreateOrder(order); err != nil {
			return err
		}
		if scopedKey != "" {
			if err := tx.CreateIdempotencyRecord(scopedKey, order.OrderID, "order"); err != nil {
				return err
			}
		}
		if err := events.Stage(tx.DB(), evt); err != nil {
			return apperr.Infrastructure(err, "failed to stage order-created")
		}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key may have won the race.
		if scopedKey != "" {
			if existing, rerr := s.replay(db, scopedKey, accountID); rerr == nil && existing != nil {
				return existing, nil, nil
			}
		}
		return nil, nil, err
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("instrument_id", order.InstrumentID).
		Str("side", string(order.Side)).
		Str("quantity", numeric.FormatQuantity(order.Quantity)).
		Msg("order placed")

	return order, []events.Event{evt}, nil
}

func (s *Service) replay(db *Database, scopedKey, accountID string) (*types.Order, error) {
	record, err := db.GetIdempotencyRecord(scopedKey)
	if err != nil || record == nil {
		return nil, err
	}
	return db.GetOrderForAccount(record.ResourceID, accountID)
}

// UpdateOrder replaces the client-controlled fields of a PENDING order.
func (s *Service) UpdateOrder(ctx context.Context, orderID, accountID string, spec OrderSpec) (*types.Order, error) {
	release, err := s.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to lock order %s", orderID)
	}
	defer release()

	var updated *types.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *Database) error {
		order, err := tx.LockOrder(orderID, accountID)
		if err != nil {
			return err
		}
		if order.Status != types.OrderStatusPending {
			return apperr.InvalidState("order %s is %s, only PENDING orders can be updated", orderID, order.Status)
		}

		spec = spec.Normalize()
		if err := spec.Validate(); err != nil {
			return err
		}

		order.InstrumentID = spec.InstrumentID
		order.Side = spec.Side
		order.OrderType = spec.OrderType
		order.Quantity = spec.Quantity
		order.LimitPrice = spec.LimitPrice
		order.Note = spec.Note
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("service", "trading").
		Msg("order updated")
	return updated, nil
}

// GetOrder retrieves an order owned by accountID.
func (s *Service) GetOrder(ctx context.Context, orderID, accountID string) (*types.Order, error) {
	return s.db.WithContext(ctx).GetOrderForAccount(orderID, accountID)
}

// DeleteOrder removes an order owned by accountID. Orders with recorded
// executions are kept since trades reference them.
func (s *Service) DeleteOrder(ctx context.Context, orderID, accountID string) error {
	release, err := s.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		return apperr.Infrastructure(err, "failed to lock order %s", orderID)
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *Database) error {
		order, err := tx.LockOrder(orderID, accountID)
		if err != nil {
			return err
		}
		if order.FilledQuantity.IsPositive() {
			return apperr.InvalidState("order %s has recorded executions", orderID)
		}
		return tx.DeleteOrder(order)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("order_id", orderID).
		Str("service", "trading").
		Msg("order deleted")
	return nil
}

func (s *Service) ListOrdersByAccount(ctx context.Context, accountID string, page types.Pagination) ([]types.Order, int64, error) {
	return s.db.WithContext(ctx).ListOrders(accountID, OrderFilter{}, page)
}

func (s *Service) ListOrdersByAccountAndStatus(ctx context.Context, accountID string, status types.OrderStatus, page types.Pagination) ([]types.Order, int64, error) {
	if !status.Valid() {
		return nil, 0, apperr.Validation("unknown order status %q", status)
	}
	return s.db.WithContext(ctx).ListOrders(accountID, OrderFilter{Status: status}, page)
}

func (s *Service) ListOrdersByInstrument(ctx context.Context, accountID, instrumentID string, page types.Pagination) ([]types.Order, int64, error) {
	return s.db.WithContext(ctx).ListOrders(accountID, OrderFilter{InstrumentID: instrumentID}, page)
}

// CancelOrder moves a PENDING order owned by accountID to CANCELED.
func (s *Service) CancelOrder(ctx context.Context, orderID, accountID, reason string) (*types.Order, []events.Event, error) {
	return s.transition(ctx, orderID, accountID, types.OrderStatusCanceled, reason)
}

// RejectOrder moves a PENDING order to REJECTED on behalf of the venue.
func (s *Service) RejectOrder(ctx context.Context, orderID, reason string) (*types.Order, []events.Event, error) {
	return s.transition(ctx, orderID, "", types.OrderStatusRejected, reason)
}

// FailOrder moves a PENDING order to FAILED on behalf of the venue.
func (s *Service) FailOrder(ctx context.Context, orderID, reason string) (*types.Order, []events.Event, error) {
	return s.transition(ctx, orderID, "", types.OrderStatusFailed, reason)
}

func (s *Service) transition(ctx context.Context, orderID, accountID string, target types.OrderStatus, reason string) (*types.Order, []events.Event, error) {
	release, err := s.locker.Lock(ctx, lock.OrderKey(orderID))
	if err != nil {
		return nil, nil, apperr.Infrastructure(err, "failed to lock order %s", orderID)
	}
	defer release()

	var (
		result *types.Order
		evt    events.Event
		old    types.OrderStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *Database) error {
		order, err := tx.LockOrder(orderID, accountID)
		if err != nil {
			return err
		}
		if order.Status != types.OrderStatusPending {
			return apperr.InvalidState("order %s is %s, cannot move to %s", orderID, order.Status, target)
		}

		old = order.Status
		order.Status = target
		if err := tx.UpdateOrder(order); err != nil {
			return err
		}

		evt, err = events.NewOrderStatusChanged(order, old, reason)
		if err != nil {
			return err
		}
		if err := events.Stage(tx.DB(), evt); err != nil {
			return apperr.Infrastructure(err, "failed to stage order-status-changed")
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("service", "trading").
		Str("old_status", string(old)).
		Str("new_status", string(target)).
		Str("reason", reason).
		Msg("order status changed")
	return result, []events.Event{evt}, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service    *Service
	dispatcher *events.Dispatcher
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints.
// Events returned by the service are handed to dispatcher after commit.
func NewGinHandlers(service *Service, dispatcher *events.Dispatcher) *GinHandlers {
	return &GinHandlers{
		service:    service,
		dispatcher: dispatcher,
	}
}

func (h *GinHandlers) dispatch(c *gin.Context, evts []events.Event) {
	if len(evts) > 0 {
		h.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), evts...)
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

func orderPage(orders []types.Order, total int64, page types.Pagination) types.Page[types.OrderResponse] {
	return types.MapPage(orders, total, page.Limit, page.Offset, func(o types.Order) types.OrderResponse {
		return o.Response()
	})
}

// CreateOrderHandler handles POST requests to place new orders
// Idempotency-Key header is optional
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		spec, err := req.Spec()
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		order, evts, err := h.service.PlaceOrder(c.Request.Context(), accountID, spec, c.GetHeader("Idempotency-Key"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		h.dispatch(c, evts)

		response.Success(c, order.Response())
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		order, err := h.service.GetOrder(c.Request.Context(), c.Param("order_id"), accountID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, order.Response())
	}
}

// UpdateOrderHandler handles PUT requests to amend a PENDING order
func (h *GinHandlers) UpdateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		var spec OrderSpec
		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			spec.parseErr = apperr.Validation("invalid request body")
		} else {
			spec = req.UpdateSpec()
		}

		order, err := h.service.UpdateOrder(c.Request.Context(), c.Param("order_id"), accountID, spec)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, order.Response())
	}
}

// DeleteOrderHandler handles DELETE requests
func (h *GinHandlers) DeleteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		if err := h.service.DeleteOrder(c.Request.Context(), c.Param("order_id"), accountID); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.NoContent(c)
	}
}

// CancelOrderHandler handles POST requests to cancel a PENDING order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := accountOrAbort(c)
		if !ok {
			return
		}

		var req StatusRequest
		_ = c.ShouldBindJSON(&req)

		order, evts, err := h.service.CancelOrder(c.Request.Context(), c.Param("order_id"), accountID, req.Reason)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		h.dispatch(c, evts)
		response.Success(c, order.Response())
	}
}

// ListOrdersHandler handles GET requests listing the caller's orders
// Query parameters: status (optional), limit, offset
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
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

		var (
			orders []types.Order
			total  int64
		)
		if status := c.Query("status"); status != "" {
			orders, total, err = h.service.ListOrdersByAccountAndStatus(c.Request.Context(), accountID, types.OrderStatus(status), page)
		} else {
			orders, total, err = h.service.ListOrdersByAccount(c.Request.Context(), accountID, page)
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, orderPage(orders, total, page))
	}
}

// ListInstrumentOrdersHandler handles GET requests listing the caller's
// orders in one instrument
func (h *GinHandlers) ListInstrumentOrdersHandler() gin.HandlerFunc {
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

		orders, total, err := h.service.ListOrdersByInstrument(c.Request.Context(), accountID, c.Param("instrument_id"), page)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, orderPage(orders, total, page))
	}
}

// RejectOrderHandler handles internal POST requests from the venue
func (h *GinHandlers) RejectOrderHandler() gin.HandlerFunc {
	return h.adminTransition(h.service.RejectOrder)
}

// FailOrderHandler handles internal POST requests from the venue
func (h *GinHandlers) FailOrderHandler() gin.HandlerFunc {
	return h.adminTransition(h.service.FailOrder)
}

func (h *GinHandlers) adminTransition(fn func(ctx context.Context, orderID, reason string) (*types.Order, []events.Event, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StatusRequest
		_ = c.ShouldBindJSON(&req)

		order, evts, err := fn(c.Request.Context(), c.Param("order_id"), req.Reason)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		h.dispatch(c, evts)
		response.Success(c, order.Response())
	}
}
