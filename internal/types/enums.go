package types

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType selects the pricing rules an order is validated against.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
	OrderTypeOther     OrderType = "OTHER"
)

// OrderStatus is a state of the order fill lifecycle.
//
//	PENDING -> PARTIALLY_FILLED | FILLED          (execution)
//	PENDING -> CANCELED | REJECTED | FAILED       (administrative)
//	PARTIALLY_FILLED -> FILLED                    (execution)
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// Terminal reports whether no further mutation is permitted.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// Executable reports whether trades may still be recorded against the order.
func (s OrderStatus) Executable() bool {
	return s == OrderStatusPending || s == OrderStatusPartiallyFilled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCanceled, OrderStatusRejected, OrderStatusFailed:
		return true
	}
	return false
}

// TradeStatus is the status of a recorded execution.
type TradeStatus string

const (
	TradeStatusExecuted         TradeStatus = "EXECUTED"
	TradeStatusCanceled         TradeStatus = "CANCELED"
	TradeStatusCorrected        TradeStatus = "CORRECTED"
	TradeStatusFailed           TradeStatus = "FAILED"
	TradeStatusSettled          TradeStatus = "SETTLED"
	TradeStatusPartiallySettled TradeStatus = "PARTIALLY_SETTLED"
)

// CountsTowardPosition reports whether a trade in this status moves the
// holder's position.
func (s TradeStatus) CountsTowardPosition() bool {
	switch s {
	case TradeStatusExecuted, TradeStatusCorrected, TradeStatusSettled, TradeStatusPartiallySettled:
		return true
	}
	return false
}
