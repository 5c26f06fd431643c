package migrations

import (
	"github.com/collectpay/collect-api/internal/types"
	"gorm.io/gorm"
)

// AddExpirySweepIndex creates the orders table plus a composite index backing
// the expiry sweep's "PENDING and stale" query.
func AddExpirySweepIndex(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Order{}); err != nil {
		return err
	}

	return db.Exec("CREATE INDEX IF NOT EXISTS idx_orders_status_pending_at ON orders(status, pending_at)").Error
}
