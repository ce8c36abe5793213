package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	gorm.Model     `json:"-"`
	OrderID        string              `gorm:"uniqueIndex;size:64" json:"order_id"`
	AccountID      string              `gorm:"index:idx_orders_account_status;size:64;not null" json:"account_id"`
	InstrumentID   string              `gorm:"index;size:64;not null" json:"instrument_id"`
	Side           Side                `gorm:"size:8;not null" json:"side"`
	OrderType      OrderType           `gorm:"size:16;not null" json:"order_type"`
	Quantity       decimal.Decimal     `gorm:"type:decimal(38,10);not null" json:"quantity"`
	FilledQuantity decimal.Decimal     `gorm:"type:decimal(38,10);not null;default:0" json:"filled_quantity"`
	LimitPrice     decimal.NullDecimal `gorm:"type:decimal(38,6)" json:"limit_price"`
	Status         OrderStatus         `gorm:"index:idx_orders_account_status;size:24;not null" json:"status"`
	PlacedAt       time.Time           `json:"placed_at"`
	Note           string              `gorm:"size:1024" json:"note"`
}

// RemainingQuantity is the quantity not yet covered by recorded trades.
func (o *Order) RemainingQuantity() decimal.Decimal {
	remaining := o.Quantity.Sub(o.FilledQuantity)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Trade is an immutable execution record. Corrections are new trades with
// status CORRECTED.
type Trade struct {
	gorm.Model     `json:"-"`
	TradeID        string          `gorm:"uniqueIndex;size:64" json:"trade_id"`
	OrderID        string          `gorm:"index:idx_trades_order_executed;size:64;not null" json:"order_id"`
	AccountID      string          `gorm:"index:idx_trades_account_instrument;size:64;not null" json:"account_id"`
	InstrumentID   string          `gorm:"index:idx_trades_account_instrument;size:64;not null" json:"instrument_id"`
	Side           Side            `gorm:"size:8;not null" json:"side"`
	Quantity       decimal.Decimal `gorm:"type:decimal(38,10);not null" json:"quantity"`
	Price          decimal.Decimal `gorm:"type:decimal(38,6);not null" json:"price"`
	Fees           decimal.Decimal `gorm:"type:decimal(38,6);not null;default:0" json:"fees"`
	Taxes          decimal.Decimal `gorm:"type:decimal(38,6);not null;default:0" json:"taxes"`
	ExecutedAt     time.Time       `gorm:"index:idx_trades_order_executed" json:"executed_at"`
	SettlementDate *time.Time      `json:"settlement_date,omitempty"`
	Status         TradeStatus     `gorm:"size:24;not null" json:"status"`
}

// Position is the net holding of an account in an instrument. At most one row
// exists per (account, instrument). A flat position has no average cost.
type Position struct {
	ID            uint                `gorm:"primaryKey" json:"-"`
	PositionID    string              `gorm:"uniqueIndex;size:64" json:"position_id"`
	AccountID     string              `gorm:"uniqueIndex:idx_positions_account_instrument;size:64;not null" json:"account_id"`
	InstrumentID  string              `gorm:"uniqueIndex:idx_positions_account_instrument;size:64;not null" json:"instrument_id"`
	Quantity      decimal.Decimal     `gorm:"type:decimal(38,10);not null" json:"quantity"`
	AvgCost       decimal.NullDecimal `gorm:"type:decimal(38,6)" json:"avg_cost"`
	SourceVersion int64               `gorm:"not null;default:0" json:"source_version"`
	LastUpdated   time.Time           `json:"last_updated"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}
