package orders

import (
	"errors"
	"time"

	"github.com/collectpay/collect-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListFilters narrows merchant order listings.
type ListFilters struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
}

func (d *Database) GetOrdersByMerchant(merchantID string, filters ListFilters) ([]types.Order, error) {
	query := d.db.Where("merchant_id = ?", merchantID)

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.StartDate != nil {
		query = query.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		query = query.Where("created_at <= ?", *filters.EndDate)
	}

	var results []types.Order
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// timestampColumn maps a target status to its entry timestamp field.
var timestampColumn = map[string]string{
	types.OrderPending:   "pending_at",
	types.OrderCompleted: "completed_at",
	types.OrderExpired:   "expired_at",
	types.OrderFailed:    "failed_at",
}

// TransitionStatus performs the atomic conditional update
// "set status = to where status = from". It returns whether the update won
// (affected exactly one row). A lost race affects zero rows and leaves the
// order untouched; the caller decides how to recover. The entry timestamp is
// written by the same statement, so each timestamp field is set at most once.
func (d *Database) TransitionStatus(orderID, from, to string, now time.Time) (bool, error) {
	fields := map[string]interface{}{"status": to}
	if col, ok := timestampColumn[to]; ok {
		fields[col] = now
	}

	result := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetQRPath attaches the QR image path to an order.
func (d *Database) SetQRPath(orderID, qrPath string) error {
	return d.db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Update("qr_path", qrPath).Error
}

// GetStalePending returns PENDING orders whose pending_at is strictly older
// than the cutoff. The expiry sweep's race with concurrent completion is
// resolved by this predicate plus the conditional update, not by locking.
func (d *Database) GetStalePending(cutoff time.Time) ([]types.Order, error) {
	var results []types.Order
	err := d.db.
		Where("status = ? AND pending_at < ?", types.OrderPending, cutoff).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
