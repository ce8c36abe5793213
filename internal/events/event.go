// Package events carries domain events from the order and execution services
// to the broker, and broker messages back into the reconciliation services.
//
// Publication is at-least-once: events are staged in the outbox table in the
// same transaction as the state they describe, dispatched best-effort right
// after commit, and re-published by the Relay while still pending. Consumers
// must therefore be idempotent.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

// Type names an event kind independently of the topic it is routed to.
type Type string

const (
	TypeOrderCreated         Type = "order-created"
	TypeOrderStatusChanged   Type = "order-status-changed"
	TypeTradeExecuted        Type = "trade-executed"
	TypeRecalculateRequested Type = "positions-recalculate-requested"
)

// Topics maps event types to broker topics.
type Topics map[Type]string

// DefaultTopics routes each type to a topic of the same name.
func DefaultTopics() Topics {
	return Topics{
		TypeOrderCreated:         string(TypeOrderCreated),
		TypeOrderStatusChanged:   string(TypeOrderStatusChanged),
		TypeTradeExecuted:        string(TypeTradeExecuted),
		TypeRecalculateRequested: string(TypeRecalculateRequested),
	}
}

func TopicsFromConfig(cfg config.TopicsConfig) Topics {
	t := DefaultTopics()
	set := func(typ Type, topic string) {
		if topic != "" {
			t[typ] = topic
		}
	}
	set(TypeOrderCreated, cfg.OrderCreated)
	set(TypeOrderStatusChanged, cfg.OrderStatusChanged)
	set(TypeTradeExecuted, cfg.TradeExecuted)
	set(TypeRecalculateRequested, cfg.RecalculateRequested)
	return t
}

func (t Topics) For(typ Type) string {
	if topic, ok := t[typ]; ok {
		return topic
	}
	return string(typ)
}

// Event is a serialized domain event ready for publication.
type Event struct {
	ID         string    `json:"event_id"`
	Type       Type      `json:"type"`
	Key        string    `json:"-"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    []byte    `json:"-"`
}

// envelope is the wire form: metadata plus the type-specific body.
type envelope struct {
	ID         string          `json:"event_id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Value returns the bytes written to the broker.
func (e Event) Value() ([]byte, error) {
	return json.Marshal(envelope{ID: e.ID, Type: e.Type, OccurredAt: e.OccurredAt, Data: e.Payload})
}

// Decode reads an envelope and unmarshals its data into dest.
func Decode(value []byte, dest any) (Event, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Event{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return Event{}, fmt.Errorf("envelope %s has no data", env.ID)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return Event{}, fmt.Errorf("failed to decode %s data: %w", env.Type, err)
	}
	return Event{ID: env.ID, Type: env.Type, OccurredAt: env.OccurredAt, Payload: env.Data}, nil
}

func newEvent(typ Type, key string, data any) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s: %w", typ, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		OccurredAt: numeric.Now(),
		Payload:    payload,
	}, nil
}

// OrderKey routes all events of one order to the same partition.
func OrderKey(orderID string) string {
	return orderID
}

// TradeKey prefers the owning order so every trade of an order keeps its
// relative order; the trade id is used only when the order id is absent.
func TradeKey(orderID, tradeID string) string {
	if orderID != "" {
		return orderID
	}
	return tradeID
}

// PositionKey routes all recalculations of one (account, instrument) pair to
// the same partition.
func PositionKey(accountID, instrumentID string) string {
	return accountID + ":" + instrumentID
}

type OrderCreated struct {
	Order types.OrderResponse `json:"order"`
}

type OrderStatusChanged struct {
	OrderID   string            `json:"order_id"`
	AccountID string            `json:"account_id"`
	OldStatus types.OrderStatus `json:"old_status"`
	NewStatus types.OrderStatus `json:"new_status"`
	Reason    string            `json:"reason,omitempty"`
}

type TradeExecuted struct {
	Trade               types.TradeResponse `json:"trade"`
	OrderStatus         types.OrderStatus   `json:"order_status"`
	OrderFilledQuantity string              `json:"order_filled_quantity"`
}

// RecalculateRequested asks the position ledger to overwrite the position of
// (AccountID, InstrumentID). Version orders requests for the same key; zero
// means unversioned.
type RecalculateRequested struct {
	AccountID    string    `json:"account_id"`
	InstrumentID string    `json:"instrument_id"`
	Quantity     string    `json:"quantity"`
	AvgCost      *string   `json:"avg_cost"`
	Version      int64     `json:"version,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

func NewOrderCreated(order *types.Order) (Event, error) {
	return newEvent(TypeOrderCreated, OrderKey(order.OrderID), OrderCreated{Order: order.Response()})
}

func NewOrderStatusChanged(order *types.Order, old types.OrderStatus, reason string) (Event, error) {
	return newEvent(TypeOrderStatusChanged, OrderKey(order.OrderID), OrderStatusChanged{
		OrderID:   order.OrderID,
		AccountID: order.AccountID,
		OldStatus: old,
		NewStatus: order.Status,
		Reason:    reason,
	})
}

func NewTradeExecuted(trade *types.Trade, order *types.Order) (Event, error) {
	return newEvent(TypeTradeExecuted, TradeKey(trade.OrderID, trade.TradeID), TradeExecuted{
		Trade:               trade.Response(),
		OrderStatus:         order.Status,
		OrderFilledQuantity: numeric.FormatQuantity(order.FilledQuantity),
	})
}

func NewRecalculateRequested(req RecalculateRequested) (Event, error) {
	return newEvent(TypeRecalculateRequested, PositionKey(req.AccountID, req.InstrumentID), req)
}
