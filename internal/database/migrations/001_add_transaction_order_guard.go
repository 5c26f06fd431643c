package migrations

import (
	"github.com/collectpay/collect-api/internal/types"
	"gorm.io/gorm"
)

// AddTransactionOrderGuard creates the transactions table with a unique index
// on order_id. The index is the storage-level backstop for the
// one-transaction-per-order rule enforced by the reconciliation engine.
func AddTransactionOrderGuard(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_order_id ON transactions(order_id)").Error
}
