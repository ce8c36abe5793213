package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/config"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database/dialect"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/database/migrations"
)

// Schema selects which boundary's tables a process owns.
type Schema int

const (
	OrderLedger Schema = iota
	PositionLedger
)

// Open returns a GORM DB connection for the configured driver.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = dialect.SQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// NewDatabase opens the store and runs the migrations of the given schemas.
func NewDatabase(cfg config.DatabaseConfig, schemas ...Schema) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, schemas...); err != nil {
		return nil, err
	}

	log.Info().
		Str("driver", cfg.Driver).
		Int("schemas", len(schemas)).
		Msg("database ready")
	return db, nil
}

// Migrate runs the migrations for each schema.
func Migrate(db *gorm.DB, schemas ...Schema) error {
	for _, schema := range schemas {
		switch schema {
		case OrderLedger:
			if err := migrations.AddOrderLedger(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		case PositionLedger:
			if err := migrations.AddPositionLedger(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
	}
	return nil
}
