package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
)

// OrderResponse is the wire form of an order. Decimals are rendered at their
// fixed scale so clients never see a trimmed representation.
type OrderResponse struct {
	OrderID        string      `json:"order_id"`
	AccountID      string      `json:"account_id"`
	InstrumentID   string      `json:"instrument_id"`
	Side           Side        `json:"side"`
	OrderType      OrderType   `json:"order_type"`
	Quantity       string      `json:"quantity"`
	FilledQuantity string      `json:"filled_quantity"`
	LimitPrice     *string     `json:"limit_price"`
	Status         OrderStatus `json:"status"`
	PlacedAt       time.Time   `json:"placed_at"`
	Note           string      `json:"note,omitempty"`
}

type TradeResponse struct {
	TradeID        string      `json:"trade_id"`
	OrderID        string      `json:"order_id"`
	AccountID      string      `json:"account_id"`
	InstrumentID   string      `json:"instrument_id"`
	Side           Side        `json:"side"`
	Quantity       string      `json:"quantity"`
	Price          string      `json:"price"`
	Fees           string      `json:"fees"`
	Taxes          string      `json:"taxes"`
	ExecutedAt     time.Time   `json:"executed_at"`
	SettlementDate *time.Time  `json:"settlement_date,omitempty"`
	Status         TradeStatus `json:"status"`
}

type PositionResponse struct {
	PositionID    string    `json:"position_id"`
	AccountID     string    `json:"account_id"`
	InstrumentID  string    `json:"instrument_id"`
	Quantity      string    `json:"quantity"`
	AvgCost       *string   `json:"avg_cost"`
	SourceVersion int64     `json:"source_version"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Page is a slice of results with the unpaginated total.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func (o *Order) Response() OrderResponse {
	return OrderResponse{
		OrderID:        o.OrderID,
		AccountID:      o.AccountID,
		InstrumentID:   o.InstrumentID,
		Side:           o.Side,
		OrderType:      o.OrderType,
		Quantity:       numeric.FormatQuantity(o.Quantity),
		FilledQuantity: numeric.FormatQuantity(o.FilledQuantity),
		LimitPrice:     numeric.FormatNullPrice(o.LimitPrice),
		Status:         o.Status,
		PlacedAt:       o.PlacedAt,
		Note:           o.Note,
	}
}

func (t *Trade) Response() TradeResponse {
	return TradeResponse{
		TradeID:        t.TradeID,
		OrderID:        t.OrderID,
		AccountID:      t.AccountID,
		InstrumentID:   t.InstrumentID,
		Side:           t.Side,
		Quantity:       numeric.FormatQuantity(t.Quantity),
		Price:          numeric.FormatPrice(t.Price),
		Fees:           numeric.FormatPrice(t.Fees),
		Taxes:          numeric.FormatPrice(t.Taxes),
		ExecutedAt:     t.ExecutedAt,
		SettlementDate: t.SettlementDate,
		Status:         t.Status,
	}
}

func (p *Position) Response() PositionResponse {
	return PositionResponse{
		PositionID:    p.PositionID,
		AccountID:     p.AccountID,
		InstrumentID:  p.InstrumentID,
		Quantity:      numeric.FormatQuantity(p.Quantity),
		AvgCost:       numeric.FormatNullPrice(p.AvgCost),
		SourceVersion: p.SourceVersion,
		LastUpdated:   p.LastUpdated,
	}
}

// MapPage converts every item of a page with fn.
func MapPage[T, R any](items []T, total int64, limit, offset int, fn func(T) R) Page[R] {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return Page[R]{Items: out, Total: total, Limit: limit, Offset: offset}
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination selects a window of a result set.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset query values. Blank values take
// the defaults; limit is capped at MaxPageLimit.
func ParsePagination(limit, offset string) (Pagination, error) {
	p := Pagination{Limit: DefaultPageLimit}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		p.Limit = n
	}
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			return p, fmt.Errorf("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p, nil
}
