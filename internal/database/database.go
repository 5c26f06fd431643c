package database

import (
	"fmt"

	"github.com/collectpay/collect-api/internal/database/migrations"
	"github.com/collectpay/collect-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	// TranslateError surfaces uniqueness violations as gorm.ErrDuplicatedKey,
	// which the order id collision retry relies on.
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddTransactionOrderGuard(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddExpirySweepIndex(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Merchant{},
		&types.MerchantDomain{},
		&types.UnmappedNotification{},
		&types.AuditLog{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
