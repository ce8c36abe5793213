// Package exchange simulates execution venues. The simulation client uses it
// to turn a working order into one or more (possibly partial) fills, which it
// then reports to the execution recorder.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

var (
	ErrRejected              = errors.New("venue rejected the order")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrNoFills               = errors.New("no venue filled the order")
)

// Venue is a mock execution venue.
type Venue struct {
	ID              string
	Name            string
	MinLatency      time.Duration
	MaxLatency      time.Duration
	LiquidityFactor float64 // 0-1, share of the ticket a thin book can absorb
	SuccessRate     float64 // 0-1, probability the venue accepts the ticket
	FeeRate         decimal.Decimal
}

// DefaultVenues mirrors a primary market, two alternatives and a dark pool.
func DefaultVenues() []*Venue {
	return []*Venue{
		{ID: "EXCH1", Name: "Primary Exchange", MinLatency: 5 * time.Millisecond, MaxLatency: 30 * time.Millisecond,
			LiquidityFactor: 0.9, SuccessRate: 0.95, FeeRate: decimal.RequireFromString("0.001")},
		{ID: "EXCH2", Name: "Secondary Exchange", MinLatency: 10 * time.Millisecond, MaxLatency: 50 * time.Millisecond,
			LiquidityFactor: 0.7, SuccessRate: 0.90, FeeRate: decimal.RequireFromString("0.0008")},
		{ID: "EXCH3", Name: "Regional Exchange", MinLatency: 15 * time.Millisecond, MaxLatency: 70 * time.Millisecond,
			LiquidityFactor: 0.5, SuccessRate: 0.85, FeeRate: decimal.RequireFromString("0.0005")},
		{ID: "EXCH4", Name: "Dark Pool", MinLatency: 20 * time.Millisecond, MaxLatency: 100 * time.Millisecond,
			LiquidityFactor: 0.3, SuccessRate: 0.75, FeeRate: decimal.RequireFromString("0.0003")},
	}
}

// Ticket is the part of an order a venue needs to fill it.
type Ticket struct {
	OrderID        string
	InstrumentID   string
	Side           types.Side
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
}

// Fill is one venue execution.
type Fill struct {
	FillID     string
	VenueID    string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fees       decimal.Decimal
	ExecutedAt time.Time
}

// Router spreads tickets over venues, weighted by liquidity and success
// rate. It is safe for concurrent use.
type Router struct {
	venues      []*Venue
	maxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRouter creates a router over venues. A nil rng seeds one from the clock.
func NewRouter(venues []*Venue, maxAttempts int, rng *rand.Rand) *Router {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Router{venues: venues, maxAttempts: maxAttempts, rng: rng}
}

func (r *Router) float() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Router) latency(v *Venue) time.Duration {
	if v.MaxLatency <= v.MinLatency {
		return v.MinLatency
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return v.MinLatency + time.Duration(r.rng.Int63n(int64(v.MaxLatency-v.MinLatency)+1))
}

// Execute asks v to fill t. The price drifts up to 2% around the reference
// price and a thin book fills only LiquidityFactor of the quantity.
func (r *Router) Execute(ctx context.Context, v *Venue, t Ticket) (*Fill, error) {
	logger := log.With().
		Str("venue_id", v.ID).
		Str("order_id", t.OrderID).
		Str("quantity", numeric.FormatQuantity(t.Quantity)).
		Str("side", string(t.Side)).
		Logger()

	wait := r.latency(v)
	logger.Debug().Dur("latency", wait).Msg("simulated network latency")
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if r.float() > v.SuccessRate {
		logger.Warn().Float64("success_rate", v.SuccessRate).Msg("venue rejected order")
		return nil, fmt.Errorf("%w: %s", ErrRejected, v.ID)
	}

	drift := decimal.NewFromFloat(r.float()*0.04 - 0.02)
	price := numeric.Price(t.ReferencePrice.Mul(decimal.NewFromInt(1).Add(drift)))
	if !price.IsPositive() {
		price = numeric.Price(t.ReferencePrice)
	}

	qty := numeric.Quantity(t.Quantity)
	if r.float() > v.LiquidityFactor {
		qty = numeric.Quantity(t.Quantity.Mul(decimal.NewFromFloat(v.LiquidityFactor)))
		logger.Debug().
			Float64("liquidity_factor", v.LiquidityFactor).
			Str("filled_quantity", numeric.FormatQuantity(qty)).
			Msg("quantity reduced by liquidity")
		if !qty.IsPositive() {
			return nil, fmt.Errorf("%w on %s", ErrInsufficientLiquidity, v.ID)
		}
	}

	fill := &Fill{
		FillID:     uuid.NewString(),
		VenueID:    v.ID,
		Quantity:   qty,
		Price:      price,
		Fees:       numeric.Money(price.Mul(qty).Mul(v.FeeRate)),
		ExecutedAt: numeric.Now(),
	}

	logger.Info().
		Str("fill_id", fill.FillID).
		Str("price", numeric.FormatPrice(fill.Price)).
		Str("filled_quantity", numeric.FormatQuantity(fill.Quantity)).
		Str("fees", numeric.FormatPrice(fill.Fees)).
		Msg("venue filled order")

	return fill, nil
}

// SelectVenue picks a venue at random, weighted by liquidity times success
// rate.
func (r *Router) SelectVenue() *Venue {
	total := 0.0
	for _, v := range r.venues {
		total += v.LiquidityFactor * v.SuccessRate
	}

	choice := r.float() * total
	current := 0.0
	for _, v := range r.venues {
		current += v.LiquidityFactor * v.SuccessRate
		if current >= choice {
			return v
		}
	}
	return r.venues[0]
}

// Route works t across venues until it is fully filled or the attempts run
// out. Partial results are returned with a nil error.
func (r *Router) Route(ctx context.Context, t Ticket) ([]Fill, error) {
	if len(r.venues) == 0 {
		return nil, ErrNoFills
	}
	logger := log.With().
		Str("order_id", t.OrderID).
		Str("total_quantity", numeric.FormatQuantity(t.Quantity)).
		Logger()

	remaining := numeric.Quantity(t.Quantity)
	var fills []Fill
	for attempt := 1; attempt <= r.maxAttempts && remaining.IsPositive(); attempt++ {
		venue := r.SelectVenue()
		slice := t
		slice.Quantity = remaining

		fill, err := r.Execute(ctx, venue, slice)
		if err != nil {
			if ctx.Err() != nil {
				return fills, ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt).Str("venue_id", venue.ID).Msg("execution attempt failed")
			continue
		}
		fills = append(fills, *fill)
		remaining = remaining.Sub(fill.Quantity)
	}

	if len(fills) == 0 {
		return nil, ErrNoFills
	}

	logger.Info().
		Int("fills", len(fills)).
		Str("remaining_quantity", numeric.FormatQuantity(remaining)).
		Str("average_price", numeric.FormatPrice(AveragePrice(fills))).
		Msg("routing completed")
	return fills, nil
}

// AveragePrice is the quantity-weighted price of fills.
func AveragePrice(fills []Fill) decimal.Decimal {
	qty := decimal.Zero
	notional := decimal.Zero
	for _, f := range fills {
		qty = qty.Add(f.Quantity)
		notional = notional.Add(f.Quantity.Mul(f.Price))
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return numeric.Price(notional.Div(qty))
}
