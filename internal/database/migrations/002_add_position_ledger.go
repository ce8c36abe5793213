package migrations

import (
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

// AddPositionLedger creates the positions table owned by the reconciliation
// boundary. At most one row exists per (account_id, instrument_id).
func AddPositionLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Position{}); err != nil {
		return err
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_account_instrument
		 ON positions(account_id, instrument_id)`,

		`CREATE INDEX IF NOT EXISTS idx_positions_last_updated
		 ON positions(last_updated)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
