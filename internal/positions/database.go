package positions

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

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

func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func positionError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("position %s not found", what)
	}
	return apperr.Infrastructure(err, "failed to get position %s", what)
}

// GetPosition returns the position only if accountID owns it.
func (d *Database) GetPosition(positionID, accountID string) (*types.Position, error) {
	var position types.Position
	err := d.db.Where("position_id = ? AND account_id = ?", positionID, accountID).First(&position).Error
	if err != nil {
		return nil, positionError(err, positionID)
	}
	return &position, nil
}

func (d *Database) GetPositionByKey(accountID, instrumentID string) (*types.Position, error) {
	var position types.Position
	err := d.db.Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).First(&position).Error
	if err != nil {
		return nil, positionError(err, accountID+"/"+instrumentID)
	}
	return &position, nil
}

// LockPositionByKey returns the row for update, or nil when none exists yet.
func (d *Database) LockPositionByKey(accountID, instrumentID string) (*types.Position, error) {
	var position types.Position
	err := forUpdate(d.db).Where("account_id = ? AND instrument_id = ?", accountID, instrumentID).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to lock position %s/%s", accountID, instrumentID)
	}
	return &position, nil
}

// SavePosition inserts a new position or overwrites an existing one.
func (d *Database) SavePosition(position *types.Position) error {
	if err := d.db.Save(position).Error; err != nil {
		return apperr.Infrastructure(err, "failed to save position %s/%s", position.AccountID, position.InstrumentID)
	}
	return nil
}

// ListPositions returns a page of an account's positions by instrument.
func (d *Database) ListPositions(accountID string, page types.Pagination) ([]types.Position, int64, error) {
	q := d.db.Model(&types.Position{}).Where("account_id = ?", accountID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to count positions")
	}

	var positions []types.Position
	if err := q.Order("instrument_id ASC").Limit(page.Limit).Offset(page.Offset).Find(&positions).Error; err != nil {
		return nil, 0, apperr.Infrastructure(err, "failed to list positions")
	}
	return positions, total, nil
}

// DeletePosition removes the row of a position owned by accountID.
func (d *Database) DeletePosition(positionID, accountID string) error {
	res := d.db.Where("position_id = ? AND account_id = ?", positionID, accountID).Delete(&types.Position{})
	if res.Error != nil {
		return apperr.Infrastructure(res.Error, "failed to delete position %s", positionID)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("position %s not found", positionID)
	}
	return nil
}
