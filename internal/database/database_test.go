package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

func memoryConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}
}

func TestNewDatabaseMigratesBothSchemas(t *testing.T) {
	db, err := NewDatabase(memoryConfig(), OrderLedger, PositionLedger)
	require.NoError(t, err)

	m := db.Migrator()
	assert.True(t, m.HasTable(&types.Order{}))
	assert.True(t, m.HasTable(&types.Trade{}))
	assert.True(t, m.HasTable(&types.Position{}))
	assert.True(t, m.HasTable(&events.OutboxMessage{}))
	assert.True(t, m.HasIndex(&types.Position{}, "idx_positions_account_instrument"))
}

func TestPositionKeyIsUnique(t *testing.T) {
	db, err := NewDatabase(memoryConfig(), PositionLedger)
	require.NoError(t, err)

	first := &types.Position{PositionID: uuid.NewString(), AccountID: "A", InstrumentID: "I", Quantity: decimal.NewFromInt(1)}
	require.NoError(t, db.Create(first).Error)

	dup := &types.Position{PositionID: uuid.NewString(), AccountID: "A", InstrumentID: "I", Quantity: decimal.NewFromInt(2)}
	assert.Error(t, db.Create(dup).Error)
}

func TestDecimalsKeepFullPrecision(t *testing.T) {
	db, err := NewDatabase(memoryConfig(), OrderLedger, PositionLedger)
	require.NoError(t, err)

	qty := decimal.RequireFromString("99999999.9999999999")
	cost := decimal.RequireFromString("123456789012.123456")
	position := &types.Position{
		PositionID:   uuid.NewString(),
		AccountID:    "A",
		InstrumentID: "I",
		Quantity:     qty,
		AvgCost:      decimal.NullDecimal{Decimal: cost, Valid: true},
	}
	require.NoError(t, db.Create(position).Error)

	var got types.Position
	require.NoError(t, db.First(&got, "position_id = ?", position.PositionID).Error)
	assert.True(t, qty.Equal(got.Quantity), got.Quantity.String())
	assert.True(t, cost.Equal(got.AvgCost.Decimal), got.AvgCost.Decimal.String())

	var storage string
	require.NoError(t, db.Raw("SELECT typeof(quantity) FROM positions WHERE position_id = ?", position.PositionID).Scan(&storage).Error)
	assert.Equal(t, "text", storage)
}

func TestMigrationsAreRepeatable(t *testing.T) {
	cfg := memoryConfig()
	db, err := NewDatabase(cfg, OrderLedger)
	require.NoError(t, err)

	assert.NoError(t, Migrate(db, OrderLedger))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
