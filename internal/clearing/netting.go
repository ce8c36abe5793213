package clearing

import (
	"github.com/shopspring/decimal"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

// NetTrades folds trades, oldest first, into a position using weighted
// average cost:
//
//   - a fill that opens or extends the position moves the average toward
//     the fill price, weighted by quantity
//   - a fill that reduces the position leaves the average unchanged
//   - a fill that crosses through zero opens the opposite side at its price
//
// Trades whose status does not move positions are skipped. A flat result
// has no average cost.
func NetTrades(accountID, instrumentID string, trades []types.Trade) NetPosition {
	qty := decimal.Zero
	avg := decimal.Zero
	result := NetPosition{AccountID: accountID, InstrumentID: instrumentID}

	for _, t := range trades {
		if !t.Status.CountsTowardPosition() {
			continue
		}
		result.TradeCount++
		if v := t.CreatedAt.UnixNano(); v > result.Version {
			result.Version = v
		}

		fill := t.Quantity
		if t.Side == types.SideSell {
			fill = fill.Neg()
		}

		switch {
		case qty.IsZero() || qty.Sign() == fill.Sign():
			held := qty.Abs()
			avg = held.Mul(avg).Add(t.Quantity.Mul(t.Price)).Div(held.Add(t.Quantity))
			qty = qty.Add(fill)
		case t.Quantity.LessThanOrEqual(qty.Abs()):
			qty = qty.Add(fill)
			if qty.IsZero() {
				avg = decimal.Zero
			}
		default:
			qty = qty.Add(fill)
			avg = t.Price
		}
	}

	result.Quantity = numeric.Quantity(qty)
	if !result.Quantity.IsZero() {
		result.AvgCost = decimal.NewNullDecimal(numeric.Price(avg))
	}
	return result
}
