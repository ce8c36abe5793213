package bootstrap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/clearing"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/execution"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/lock"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/positions"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/trading"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

func TestInProcessTradeFlowUpdatesPosition(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, database.OrderLedger, database.PositionLedger)
	require.NoError(t, err)

	broker := events.NewMemoryBroker()
	topics := events.DefaultTopics()
	locker := lock.NewKeyedMutex()
	outbox := events.NewOutboxStore(db)
	dispatcher := events.NewDispatcher(broker, topics, outbox)

	orders := trading.NewService(db, locker)
	executions := execution.NewService(db, locker, config.FillModeCumulative)
	ledger := positions.NewService(db, locker, topics.For(events.TypeRecalculateRequested))
	WireInProcess(broker, topics, clearing.NewService(db, broker, topics).TradeExecutedHandler(), ledger.MessageHandler())

	order, evts, err := orders.PlaceOrder(ctx, "A", trading.OrderSpec{
		InstrumentID: "I",
		Side:         types.SideBuy,
		OrderType:    types.OrderTypeMarket,
		Quantity:     decimal.NewFromInt(10),
	}, "")
	require.NoError(t, err)
	dispatcher.Dispatch(ctx, evts...)

	for _, f := range []struct{ qty, price int64 }{{4, 100}, {6, 110}} {
		_, evts, err := executions.Execute(ctx, execution.Request{
			OrderID:   order.OrderID,
			AccountID: "A",
			Quantity:  decimal.NewFromInt(f.qty),
			Price:     decimal.NewFromInt(f.price),
		}, "")
		require.NoError(t, err)
		assert.Equal(t, len(evts), dispatcher.Dispatch(ctx, evts...))
	}

	position, err := ledger.GetByKey(ctx, "A", "I")
	require.NoError(t, err)
	view := position.Response()
	assert.Equal(t, "10.0000000000", view.Quantity)
	require.NotNil(t, view.AvgCost)
	assert.Equal(t, "106.000000", *view.AvgCost)
	assert.NotZero(t, position.SourceVersion)

	assert.Len(t, broker.Messages(topics.For(events.TypeRecalculateRequested)), 2)
	pending, err := outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
