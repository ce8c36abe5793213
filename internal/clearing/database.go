package clearing

import (
	"context"

	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetTradesForPosition returns every trade of accountID in instrumentID in
// execution order.
func (d *Database) GetTradesForPosition(ctx context.Context, accountID, instrumentID string) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.WithContext(ctx).
		Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).
		Order("executed_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to fetch trades for %s/%s", accountID, instrumentID)
	}
	return trades, nil
}
