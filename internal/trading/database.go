package trading

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/pkg/apperr"
)

const idempotencyTTL = 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) WithContext(ctx context.Context) *Database {
	return &Database{db: d.db.WithContext(ctx)}
}

// DB exposes the underlying handle, e.g. to stage outbox rows in the same
// transaction.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Transaction runs fn in a single database transaction.
func (d *Database) Transaction(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// forUpdate adds a row lock where the dialect supports it. SQLite serializes
// writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (d *Database) CreateOrder(order *types.Order) error {
	if err := d.db.Create(order).Error; err != nil {
		return apperr.Infrastructure(err, "failed to create order")
	}
	return nil
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, orderError(err, orderID)
	}
	return &order, nil
}

// GetOrderForAccount returns the order only if accountID owns it. A foreign
// order is reported exactly like a missing one.
func (d *Database) GetOrderForAccount(orderID, accountID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND account_id = ?", orderID, accountID).First(&order).Error; err != nil {
		return nil, orderError(err, orderID)
	}
	return &order, nil
}

// LockOrder reads the order for update inside a transaction. An empty
// accountID skips the ownership filter.
func (d *Database) LockOrder(orderID, accountID string) (*types.Order, error) {
	q := forUpdate(d.db).Where("order_id = ?", orderID)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	var order types.Order
	if err := q.First(&order).Error; err != nil {
		return nil, orderError(err, orderID)
	}
	return &order, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	if err := d.db.Save(order).Error; err != nil {
		return apperr.Infrastructure(err, "failed to update order %s", order.OrderID)
	}
	return nil
}

func (d *Database) DeleteOrder(order *types.Order) error {
	if err := d.db.Delete(order).Error; err != nil {
		return apperr.Infrastructure(err, "failed to delete order %s", order.OrderID)
	}
	return nil
}

// ListOrders returns one page of the account's orders, newest first, and the
// total number of matches.
func (d *Database) ListOrders(accountID string, filter OrderFilter, page types.Pagination) ([]types.Order, int64, error) {
	q := d.db.Model(&types.Order{}).Where("account_id = ?", accountID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.InstrumentID != "" {
		q = q.Where("instrument_id = ?", filter.InstrumentID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to count orders")
	}

	var orders []types.Order
	if err := q.Order("placed_at DESC, id DESC").Limit(page.Limit).Offset(page.Offset).Find(&orders).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to list orders")
	}
	return orders, total, nil
}

// GetIdempotencyRecord returns the live record for key, or nil when there is
// none or it has expired.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Infrastructure(err, "failed to read idempotency record")
	}
	if !record.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &record, nil
}

// CreateIdempotencyRecord stores key for resourceID, replacing an expired
// record with the same key.
func (d *Database) CreateIdempotencyRecord(key, resourceID, resourceType string) error {
	now := time.Now()
	if err := d.db.Unscoped().
		Where("idempotency_key = ? AND expires_at <= ?", key, now).
		Delete(&IdempotencyRecord{}).Error; err != nil {
		return apperr.Infrastructure(err, "failed to expire idempotency record")
	}

	record := IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		ExpiresAt:      now.Add(idempotencyTTL),
	}
	if err := d.db.Create(&record).Error; err != nil {
		return apperr.Infrastructure(err, "failed to create idempotency record")
	}
	return nil
}

// IdempotencyKey scopes a client key to an account and resource type.
func IdempotencyKey(resourceType, accountID, key string) string {
	return resourceType + ":" + accountID + ":" + key
}

func orderError(err error, orderID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("order %s not found", orderID)
	}
	return apperr.Infrastructure(err, "failed to get order %s", orderID)
}
