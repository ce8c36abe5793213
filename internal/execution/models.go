package execution

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

// Request describes one fill reported against an order.
type Request struct {
	OrderID        string
	AccountID      string
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	Fees           decimal.Decimal
	Taxes          decimal.Decimal
	ExecutedAt     time.Time
	SettlementDate *time.Time
}

// Validate checks the request before anything is read or written.
func (r Request) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return apperr.Validation("order_id is required")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return apperr.Validation("account_id is required")
	}
	if !r.Quantity.IsPositive() || !numeric.Quantity(r.Quantity).IsPositive() {
		return apperr.Validation("quantity must be greater than zero")
	}
	if !r.Price.IsPositive() || !numeric.Price(r.Price).IsPositive() {
		return apperr.Validation("price must be greater than zero")
	}
	if r.Fees.IsNegative() {
		return apperr.Validation("fees must not be negative")
	}
	if r.Taxes.IsNegative() {
		return apperr.Validation("taxes must not be negative")
	}
	return nil
}

// Normalize applies the fixed-point scales and fills the execution time.
func (r Request) Normalize() Request {
	r.Quantity = numeric.Quantity(r.Quantity)
	r.Price = numeric.Price(r.Price)
	r.Fees = numeric.Money(r.Fees)
	r.Taxes = numeric.Money(r.Taxes)
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = numeric.Now()
	} else {
		r.ExecutedAt = numeric.Timestamp(r.ExecutedAt)
	}
	if r.SettlementDate != nil {
		d := numeric.Timestamp(*r.SettlementDate)
		r.SettlementDate = &d
	}
	return r
}

// ExecutionBody is the JSON body of trade submission.
type ExecutionBody struct {
	OrderID        string     `json:"order_id" binding:"required"`
	AccountID      string     `json:"account_id" binding:"required"`
	Quantity       string     `json:"quantity" binding:"required"`
	Price          string     `json:"price" binding:"required"`
	Fees           *string    `json:"fees"`
	Taxes          *string    `json:"taxes"`
	ExecutedAt     *time.Time `json:"executed_at"`
	SettlementDate *time.Time `json:"settlement_date"`
}

// Request parses the body. Absent fees and taxes default to zero.
func (b ExecutionBody) Request() (Request, error) {
	qty, err := numeric.Parse(b.Quantity)
	if err != nil {
		return Request{}, apperr.Validation("quantity: %v", err)
	}
	price, err := numeric.Parse(b.Price)
	if err != nil {
		return Request{}, apperr.Validation("price: %v", err)
	}
	fees, err := numeric.ParseOptional(b.Fees)
	if err != nil {
		return Request{}, apperr.Validation("fees: %v", err)
	}
	taxes, err := numeric.ParseOptional(b.Taxes)
	if err != nil {
		return Request{}, apperr.Validation("taxes: %v", err)
	}

	req := Request{
		OrderID:        b.OrderID,
		AccountID:      b.AccountID,
		Quantity:       qty,
		Price:          price,
		Fees:           fees.Decimal,
		Taxes:          taxes.Decimal,
		SettlementDate: b.SettlementDate,
	}
	if b.ExecutedAt != nil {
		req.ExecutedAt = *b.ExecutedAt
	}
	return req, nil
}
