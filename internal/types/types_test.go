package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Executable(), s)
	}

	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusPartiallyFilled} {
		assert.False(t, s.Terminal(), s)
		assert.True(t, s.Executable(), s)
	}

	assert.False(t, OrderStatus("OPEN").Valid())
}

func TestRemainingQuantity(t *testing.T) {
	o := &Order{Quantity: decimal.NewFromInt(10), FilledQuantity: decimal.NewFromInt(4)}
	assert.True(t, o.RemainingQuantity().Equal(decimal.NewFromInt(6)))

	o.FilledQuantity = decimal.NewFromInt(12)
	assert.True(t, o.RemainingQuantity().IsZero())
}

func TestResponsesUseFixedScale(t *testing.T) {
	o := &Order{
		OrderID:    "o-1",
		Quantity:   decimal.NewFromInt(10),
		LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString("101.11")),
	}
	or := o.Response()
	assert.Equal(t, "10.0000000000", or.Quantity)
	assert.Equal(t, "0.0000000000", or.FilledQuantity)
	require.NotNil(t, or.LimitPrice)
	assert.Equal(t, "101.110000", *or.LimitPrice)

	p := &Position{Quantity: decimal.Zero}
	pr := p.Response()
	assert.Equal(t, "0.0000000000", pr.Quantity)
	assert.Nil(t, pr.AvgCost)
}

func TestTradeStatusCountsTowardPosition(t *testing.T) {
	assert.True(t, TradeStatusExecuted.CountsTowardPosition())
	assert.True(t, TradeStatusCorrected.CountsTowardPosition())
	assert.False(t, TradeStatusCanceled.CountsTowardPosition())
	assert.False(t, TradeStatusFailed.CountsTowardPosition())
}

func TestMapPage(t *testing.T) {
	page := MapPage([]int{1, 2}, 7, 2, 4, func(i int) string { return string(rune('a' + i)) })
	assert.Equal(t, []string{"b", "c"}, page.Items)
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 4, page.Offset)
}

func TestParsePagination(t *testing.T) {
	p, err := ParsePagination("", "")
	require.NoError(t, err)
	assert.Equal(t, Pagination{Limit: DefaultPageLimit}, p)

	p, err = ParsePagination("500", "40")
	require.NoError(t, err)
	assert.Equal(t, Pagination{Limit: MaxPageLimit, Offset: 40}, p)

	_, err = ParsePagination("0", "")
	assert.Error(t, err)
	_, err = ParsePagination("10", "-1")
	assert.Error(t, err)
	_, err = ParsePagination("ten", "")
	assert.Error(t, err)
}
