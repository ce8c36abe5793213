// Package dialect adapts GORM dialectors to the ledger's column types.
package dialect

import (
	"reflect"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"
)

var (
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	nullDecimalType = reflect.TypeOf(decimal.NullDecimal{})
)

// SQLiteDialector stores decimal fields as TEXT. A decimal(p,s) column has
// NUMERIC affinity in SQLite, which keeps only 15 significant digits.
type SQLiteDialector struct {
	sqlite.Dialector
}

// SQLite opens dsn with decimal columns stored as TEXT.
func SQLite(dsn string) gorm.Dialector {
	return &SQLiteDialector{Dialector: sqlite.Dialector{DSN: dsn}}
}

func (d SQLiteDialector) DataTypeOf(field *schema.Field) string {
	if IsDecimal(field) {
		return "text"
	}
	return d.Dialector.DataTypeOf(field)
}

func (d SQLiteDialector) Migrator(db *gorm.DB) gorm.Migrator {
	return sqlite.Migrator{Migrator: migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   d,
		CreateIndexAfterCreateTable: true,
	}}}
}

// IsDecimal reports whether field holds a shopspring decimal.
func IsDecimal(field *schema.Field) bool {
	t := field.IndirectFieldType
	return t == decimalType || t == nullDecimalType
}
