package notify

import (
	"errors"

	"github.com/collectpay/collect-api/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTransaction(tx *types.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	return d.db.Create(tx).Error
}

func (d *Database) GetTransactionByOrderID(orderID string) (*types.Transaction, error) {
	var tx types.Transaction
	if err := d.db.Where("order_id = ?", orderID).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (d *Database) GetTransactionsByMerchant(merchantID string) ([]types.Transaction, error) {
	var txs []types.Transaction
	err := d.db.Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (d *Database) CreateUnmapped(notificationJSON string) error {
	record := types.UnmappedNotification{
		ID:               uuid.New().String(),
		NotificationJSON: notificationJSON,
	}
	return d.db.Create(&record).Error
}

func (d *Database) GetUnmapped() ([]types.UnmappedNotification, error) {
	var records []types.UnmappedNotification
	err := d.db.Order("received_at DESC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
