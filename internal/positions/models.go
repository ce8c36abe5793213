package positions

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

// Request carries the target state of one position. Quantity may be
// negative for a short position.
type Request struct {
	AccountID    string
	InstrumentID string
	Quantity     decimal.Decimal
	AvgCost      decimal.NullDecimal
	// Version orders requests for the same key. Zero is unversioned and
	// always applies.
	Version int64
}

func (r *Request) Validate() error {
	if r == nil {
		return apperr.Validation("recalculation request is required")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return apperr.Validation("account_id is required")
	}
	if strings.TrimSpace(r.InstrumentID) == "" {
		return apperr.Validation("instrument_id is required")
	}
	if r.Version < 0 {
		return apperr.Validation("version must not be negative")
	}
	if r.AvgCost.Valid && r.AvgCost.Decimal.IsNegative() {
		return apperr.Validation("avg_cost must not be negative")
	}
	return nil
}

// Normalize applies the fixed-point scales. A flat position has no average
// cost whatever the request says.
func (r Request) Normalize() Request {
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.InstrumentID = strings.TrimSpace(r.InstrumentID)
	r.Quantity = numeric.Quantity(r.Quantity)
	r.AvgCost = numeric.NullPrice(r.AvgCost)
	if r.Quantity.IsZero() {
		r.AvgCost = decimal.NullDecimal{}
	}
	return r
}

// RequestFromMessage parses the wire form of a recalculation request.
func RequestFromMessage(m events.RecalculateRequested) (*Request, error) {
	qty, err := numeric.Parse(m.Quantity)
	if err != nil {
		return nil, apperr.Validation("quantity: %v", err)
	}
	avg, err := numeric.ParseOptional(m.AvgCost)
	if err != nil {
		return nil, apperr.Validation("avg_cost: %v", err)
	}
	return &Request{
		AccountID:    m.AccountID,
		InstrumentID: m.InstrumentID,
		Quantity:     qty,
		AvgCost:      avg,
		Version:      m.Version,
	}, nil
}
