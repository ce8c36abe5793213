package trading

import (
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

// orderRule declares the pricing constraints of one order type.
type orderRule struct {
	LimitPriceRequired bool
}

var orderRules = map[types.OrderType]orderRule{
	types.OrderTypeMarket:    {},
	types.OrderTypeLimit:     {LimitPriceRequired: true},
	types.OrderTypeStop:      {LimitPriceRequired: true},
	types.OrderTypeStopLimit: {LimitPriceRequired: true},
	types.OrderTypeOther:     {},
}

// Validate checks a normalized spec against the order invariants.
func (s OrderSpec) Validate() error {
	if s.parseErr != nil {
		return s.parseErr
	}
	if s.InstrumentID == "" {
		return apperr.Validation("instrument_id is required")
	}
	if !s.Side.Valid() {
		return apperr.Validation("side must be BUY or SELL, got %q", s.Side)
	}
	rule, ok := orderRules[s.OrderType]
	if !ok {
		return apperr.Validation("unsupported order type %q", s.OrderType)
	}
	if !s.Quantity.IsPositive() {
		return apperr.Validation("quantity must be greater than zero")
	}
	if rule.LimitPriceRequired && !s.LimitPrice.Valid {
		return apperr.Validation("limit_price is required for %s orders", s.OrderType)
	}
	if s.LimitPrice.Valid && s.LimitPrice.Decimal.IsNegative() {
		return apperr.Validation("limit_price must not be negative")
	}
	return nil
}
