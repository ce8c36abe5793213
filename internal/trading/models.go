package trading

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

// IdempotencyRecord maps a client-supplied key to the resource it created.
// Keys are scoped per account and resource type before storage.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex;size:255" json:"idempotency_key"`
	ResourceID     string    `gorm:"size:64" json:"resource_id"`
	ResourceType   string    `gorm:"size:32" json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// OrderSpec is the client-controlled part of an order.
type OrderSpec struct {
	InstrumentID string
	Side         types.Side
	OrderType    types.OrderType
	Quantity     decimal.Decimal
	LimitPrice   decimal.NullDecimal
	Note         string

	// parseErr is reported by Validate; set by OrderRequest.UpdateSpec.
	parseErr error
}

// Normalize applies the fixed-point scales.
func (s OrderSpec) Normalize() OrderSpec {
	s.InstrumentID = strings.TrimSpace(s.InstrumentID)
	s.Quantity = numeric.Quantity(s.Quantity)
	s.LimitPrice = numeric.NullPrice(s.LimitPrice)
	return s
}

// OrderRequest is the JSON body of order placement and update.
type OrderRequest struct {
	InstrumentID string  `json:"instrument_id"`
	Side         string  `json:"side"`
	OrderType    string  `json:"order_type"`
	Quantity     string  `json:"quantity"`
	LimitPrice   *string `json:"limit_price"`
	Note         string  `json:"note"`
}

// Spec parses the request into an OrderSpec. It does not apply the order
// rules; see OrderSpec.Validate.
func (r OrderRequest) Spec() (OrderSpec, error) {
	qty, err := numeric.Parse(r.Quantity)
	if err != nil {
		return OrderSpec{}, apperr.Validation("quantity: %v", err)
	}
	limit, err := numeric.ParseOptional(r.LimitPrice)
	if err != nil {
		return OrderSpec{}, apperr.Validation("limit_price: %v", err)
	}
	return OrderSpec{
		InstrumentID: r.InstrumentID,
		Side:         types.Side(strings.ToUpper(strings.TrimSpace(r.Side))),
		OrderType:    types.OrderType(strings.ToUpper(strings.TrimSpace(r.OrderType))),
		Quantity:     qty,
		LimitPrice:   limit,
		Note:         r.Note,
	}, nil
}

// UpdateSpec parses like Spec but leaves a parse failure for Validate, so an
// update reports the order's state before the payload.
func (r OrderRequest) UpdateSpec() OrderSpec {
	spec, err := r.Spec()
	spec.parseErr = err
	return spec
}

// StatusRequest is the body of the administrative transitions.
type StatusRequest struct {
	Reason string `json:"reason"`
}

// OrderFilter narrows order listings. Empty fields match everything.
type OrderFilter struct {
	Status       types.OrderStatus
	InstrumentID string
}
