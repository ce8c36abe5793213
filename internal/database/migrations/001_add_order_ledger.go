package migrations

import (
	"gorm.io/gorm"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/events"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/trading"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

// AddOrderLedger creates the order, trade, idempotency and outbox tables
// owned by the order-processing boundary.
func AddOrderLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Order{},
		&types.Trade{},
		&trading.IdempotencyRecord{},
		&events.OutboxMessage{},
	); err != nil {
		return err
	}

	indexes := []string{
		// History by account, newest first
		`CREATE INDEX IF NOT EXISTS idx_trades_account_executed
		 ON trades(account_id, executed_at)`,

		// Relay scans pending rows oldest first
		`CREATE INDEX IF NOT EXISTS idx_outbox_status_created
		 ON outbox_messages(status, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
