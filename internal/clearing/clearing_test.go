package clearing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database/dialect"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func trade(side types.Side, qty, price string, minute int) types.Trade {
	t := types.Trade{
		TradeID:      uuid.NewString(),
		OrderID:      uuid.NewString(),
		AccountID:    "A",
		InstrumentID: "I",
		Side:         side,
		Quantity:     decimal.RequireFromString(qty),
		Price:        decimal.RequireFromString(price),
		ExecutedAt:   base.Add(time.Duration(minute) * time.Minute),
		Status:       types.TradeStatusExecuted,
	}
	t.CreatedAt = t.ExecutedAt
	return t
}

func TestNetTrades(t *testing.T) {
	tests := []struct {
		name   string
		trades []types.Trade
		qty    string
		avg    string // empty means null
	}{
		{
			name:   "no trades",
			trades: nil,
			qty:    "0",
		},
		{
			name:   "single buy",
			trades: []types.Trade{trade(types.SideBuy, "10", "101.11", 0)},
			qty:    "10",
			avg:    "101.11",
		},
		{
			name: "weighted buys",
			trades: []types.Trade{
				trade(types.SideBuy, "10", "100", 0),
				trade(types.SideBuy, "30", "104", 1),
			},
			qty: "40",
			avg: "103",
		},
		{
			name: "partial sell keeps average",
			trades: []types.Trade{
				trade(types.SideBuy, "10", "100", 0),
				trade(types.SideBuy, "10", "110", 1),
				trade(types.SideSell, "5", "200", 2),
			},
			qty: "15",
			avg: "105",
		},
		{
			name: "flat has no cost",
			trades: []types.Trade{
				trade(types.SideBuy, "10", "100", 0),
				trade(types.SideSell, "10", "120", 1),
			},
			qty: "0",
		},
		{
			name: "crossing zero resets average",
			trades: []types.Trade{
				trade(types.SideBuy, "10", "100", 0),
				trade(types.SideSell, "15", "90", 1),
			},
			qty: "-5",
			avg: "90",
		},
		{
			name: "short extended",
			trades: []types.Trade{
				trade(types.SideSell, "10", "50", 0),
				trade(types.SideSell, "10", "60", 1),
			},
			qty: "-20",
			avg: "55",
		},
		{
			name: "average rounds to price scale",
			trades: []types.Trade{
				trade(types.SideBuy, "1", "1", 0),
				trade(types.SideBuy, "2", "1.0000005", 1),
			},
			qty: "3",
			avg: "1.000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := NetTrades("A", "I", tt.trades)
			assert.True(t, net.Quantity.Equal(decimal.RequireFromString(tt.qty)), net.Quantity.String())
			if tt.avg == "" {
				assert.False(t, net.AvgCost.Valid)
			} else {
				require.True(t, net.AvgCost.Valid)
				assert.True(t, net.AvgCost.Decimal.Equal(decimal.RequireFromString(tt.avg)), net.AvgCost.Decimal.String())
			}
		})
	}
}

func TestNetTradesSkipsNonPositionStatuses(t *testing.T) {
	canceled := trade(types.SideBuy, "100", "1", 1)
	canceled.Status = types.TradeStatusCanceled
	failed := trade(types.SideBuy, "100", "1", 2)
	failed.Status = types.TradeStatusFailed
	settled := trade(types.SideBuy, "5", "10", 3)
	settled.Status = types.TradeStatusSettled

	net := NetTrades("A", "I", []types.Trade{trade(types.SideBuy, "5", "10", 0), canceled, failed, settled})
	assert.True(t, net.Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 2, net.TradeCount)
	assert.Equal(t, settled.CreatedAt.UnixNano(), net.Version)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dialect.SQLite("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Trade{}))
	return db
}

func TestReconcilePublishesRecalculation(t *testing.T) {
	db := setupTestDB(t)
	for _, tr := range []types.Trade{
		trade(types.SideBuy, "10", "100", 0),
		trade(types.SideBuy, "10", "102", 1),
	} {
		tr := tr
		require.NoError(t, db.Create(&tr).Error)
	}

	broker := events.NewMemoryBroker()
	s := NewService(db, broker, events.DefaultTopics())

	net, req, err := s.Reconcile(context.Background(), "A", "I")
	require.NoError(t, err)
	assert.Equal(t, 2, net.TradeCount)
	assert.Equal(t, "20.0000000000", req.Quantity)
	require.NotNil(t, req.AvgCost)
	assert.Equal(t, "101.000000", *req.AvgCost)
	assert.Positive(t, req.Version)

	msgs := broker.Messages("positions-recalculate-requested")
	require.Len(t, msgs, 1)
	assert.Equal(t, "A:I", string(msgs[0].Key))

	var body events.RecalculateRequested
	_, err = events.Decode(msgs[0].Value, &body)
	require.NoError(t, err)
	assert.Equal(t, req.Version, body.Version)
}

func TestReconcileReturnsPublishFailure(t *testing.T) {
	broker := events.NewMemoryBroker()
	broker.SetFailing(true)
	s := NewService(setupTestDB(t), broker, nil)

	_, _, err := s.Reconcile(context.Background(), "A", "I")
	assert.ErrorIs(t, err, apperr.ErrInfrastructure)

	_, _, err = s.Reconcile(context.Background(), "", "I")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTradeExecutedHandler(t *testing.T) {
	db := setupTestDB(t)
	tr := trade(types.SideBuy, "4", "100", 0)
	require.NoError(t, db.Create(&tr).Error)

	broker := events.NewMemoryBroker()
	s := NewService(db, broker, nil)
	h := s.TradeExecutedHandler()

	order := &types.Order{OrderID: tr.OrderID, AccountID: "A", Status: types.OrderStatusPartiallyFilled}
	evt, err := events.NewTradeExecuted(&tr, order)
	require.NoError(t, err)
	value, err := evt.Value()
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), kafka.Message{Topic: "trade-executed", Value: value}))
	assert.Len(t, broker.Messages("positions-recalculate-requested"), 1)

	// Garbage is skipped rather than retried.
	assert.NoError(t, h(context.Background(), kafka.Message{Topic: "trade-executed", Value: []byte("{")}))

	broker.SetFailing(true)
	assert.Error(t, h(context.Background(), kafka.Message{Topic: "trade-executed", Value: value}))
}
