package clearing

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetPosition is the position implied by an account's trade history in one
// instrument.
type NetPosition struct {
	AccountID    string
	InstrumentID string
	Quantity     decimal.Decimal
	AvgCost      decimal.NullDecimal
	TradeCount   int
	// Version is the recording time of the newest trade included, in unix
	// nanoseconds. Later reconciliations of the same key never carry a
	// smaller version.
	Version int64
}

// ReconcileRequest is the body of the manual reconciliation endpoint.
type ReconcileRequest struct {
	AccountID    string `json:"account_id" binding:"required"`
	InstrumentID string `json:"instrument_id" binding:"required"`
}

type ReconcileResponse struct {
	AccountID    string    `json:"account_id"`
	InstrumentID string    `json:"instrument_id"`
	Quantity     string    `json:"quantity"`
	AvgCost      *string   `json:"avg_cost"`
	TradeCount   int       `json:"trade_count"`
	Version      int64     `json:"version"`
	RequestedAt  time.Time `json:"requested_at"`
}
