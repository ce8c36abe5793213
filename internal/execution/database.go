package execution

import (
	"context"
	"errors"

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

func (d *Database) WithContext(ctx context.Context) *Database {
	return &Database{db: d.db.WithContext(ctx)}
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	if err := d.db.Create(trade).Error; err != nil {
		return apperr.Infrastructure(err, "failed to create trade")
	}
	return nil
}

// GetTrade returns the trade only if accountID owns it.
func (d *Database) GetTrade(tradeID, accountID string) (*types.Trade, error) {
	var trade types.Trade
	q := d.db.Where("trade_id = ?", tradeID)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	if err := q.First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("trade %s not found", tradeID)
		}
		return nil, apperr.Infrastructure(err, "failed to get trade %s", tradeID)
	}
	return &trade, nil
}

// LastTrade returns the most recent trade of an order owned by accountID.
func (d *Database) LastTrade(orderID, accountID string) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.
		Where("order_id = ? AND account_id = ?", orderID, accountID).
		Order("executed_at DESC, id DESC").
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no executions for order %s", orderID)
		}
		return nil, apperr.Infrastructure(err, "failed to get last trade of order %s", orderID)
	}
	return &trade, nil
}

// ListTrades returns a page of trades matching the filter, newest first.
func (d *Database) ListTrades(accountID, orderID string, page types.Pagination) ([]types.Trade, int64, error) {
	q := d.db.Model(&types.Trade{}).Where("account_id = ?", accountID)
	if orderID != "" {
		q = q.Where("order_id = ?", orderID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to count trades")
	}

	var trades []types.Trade
	if err := q.Order("executed_at DESC, id DESC").Limit(page.Limit).Offset(page.Offset).Find(&trades).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to list trades")
	}
	return trades, total, nil
}
