package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/orders"
	"github.com/collectpay/collect-api/internal/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&types.Order{},
		&types.Transaction{},
		&types.UnmappedNotification{},
		&types.AuditLog{},
	)
	require.NoError(t, err)
	return db
}

func newTestEngine(t *testing.T) (*Service, *orders.Service, *gorm.DB) {
	db := setupTestDB(t)
	orderSvc := orders.NewService(db)
	engine := NewService(db, orderSvc, audit.NewLogger(db), 120*time.Second)
	return engine, orderSvc, db
}

func createPendingOrder(t *testing.T, svc *orders.Service) *types.Order {
	order, err := svc.Create(orders.CreateSpec{
		MerchantID:     "merchant-1",
		CustomerName:   "Asha Verma",
		CustomerMobile: "9876543210",
		Amount:         15000,
		ReceiverUPIID:  "shop@upi",
	})
	require.NoError(t, err)

	updated, err := svc.AttachQR(order.OrderID, "")
	require.NoError(t, err)
	require.Equal(t, types.OrderPending, updated.Status)
	require.NotNil(t, updated.PendingAt)
	return updated
}

func backdatePending(t *testing.T, db *gorm.DB, orderID string, age time.Duration) {
	err := db.Model(&types.Order{}).
		Where("order_id = ?", orderID).
		Update("pending_at", time.Now().Add(-age)).Error
	require.NoError(t, err)
}

func transactionCount(t *testing.T, db *gorm.DB, orderID string) int64 {
	var count int64
	require.NoError(t, db.Model(&types.Transaction{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

func TestReconcileCompletedThenDuplicate(t *testing.T) {
	engine, orderSvc, db := newTestEngine(t)
	order := createPendingOrder(t, orderSvc)

	notification := types.Notification{
		Title:   "Rahul Kumar paid you ₹150.00",
		BigText: order.OrderID,
	}

	result, err := engine.Reconcile(notification)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCompleted, result.Status)
	assert.Equal(t, order.OrderID, result.OrderID)

	completed, err := orderSvc.Get(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.NotNil(t, completed.PendingAt)
	assert.True(t, completed.PendingAt.Before(*completed.CompletedAt))

	tx, err := engine.TransactionByOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "Rahul Kumar", tx.PayerName)
	assert.False(t, tx.IsLatePayment)

	// Replaying the identical notification must not create a second
	// transaction or touch the order.
	replay, err := engine.Reconcile(notification)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDuplicate, replay.Status)
	assert.EqualValues(t, 1, transactionCount(t, db, order.OrderID))

	again, err := orderSvc.Get(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, again.Status)
}

func TestReconcileUnmapped(t *testing.T) {
	engine, orderSvc, db := newTestEngine(t)
	order := createPendingOrder(t, orderSvc)

	t.Run("no digit run", func(t *testing.T) {
		result, err := engine.Reconcile(types.Notification{
			Title:   "Someone paid you ₹50",
			BigText: "no reference here",
		})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeUnmapped, result.Status)
		assert.Empty(t, result.OrderID)

		var unmapped int64
		require.NoError(t, db.Model(&types.UnmappedNotification{}).Count(&unmapped).Error)
		assert.EqualValues(t, 1, unmapped)

		// Order store untouched
		assert.EqualValues(t, 0, transactionCount(t, db, order.OrderID))
		current, err := orderSvc.Get(order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderPending, current.Status)
	})

	t.Run("order id not found", func(t *testing.T) {
		result, err := engine.Reconcile(types.Notification{
			BigText: "Ref 0000000001",
		})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeUnmapped, result.Status)
		assert.Equal(t, "0000000001", result.OrderID)

		var unmapped int64
		require.NoError(t, db.Model(&types.UnmappedNotification{}).Count(&unmapped).Error)
		assert.EqualValues(t, 2, unmapped)
	})
}

func TestReconcileLateness(t *testing.T) {
	t.Run("within window is on time", func(t *testing.T) {
		engine, orderSvc, db := newTestEngine(t)
		order := createPendingOrder(t, orderSvc)
		backdatePending(t, db, order.OrderID, 119*time.Second)

		result, err := engine.Reconcile(types.Notification{BigText: order.OrderID})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeCompleted, result.Status)
	})

	t.Run("past window is late and order status unchanged", func(t *testing.T) {
		engine, orderSvc, db := newTestEngine(t)
		order := createPendingOrder(t, orderSvc)
		backdatePending(t, db, order.OrderID, 121*time.Second)

		result, err := engine.Reconcile(types.Notification{
			Title:   "Vikram Singh paid you ₹150.00",
			BigText: order.OrderID,
		})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeLatePayment, result.Status)
		assert.Equal(t, types.OrderPending, result.OrderStatus)

		// Late payments still get a transaction for manual reconciliation.
		tx, err := engine.TransactionByOrder(order.OrderID)
		require.NoError(t, err)
		require.NotNil(t, tx)
		assert.True(t, tx.IsLatePayment)
		assert.Equal(t, "Vikram Singh", tx.PayerName)

		current, err := orderSvc.Get(order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderPending, current.Status)
		assert.Nil(t, current.CompletedAt)
	})

	t.Run("order that never reached pending is late", func(t *testing.T) {
		engine, orderSvc, _ := newTestEngine(t)
		order, err := orderSvc.Create(orders.CreateSpec{
			MerchantID:     "merchant-1",
			CustomerName:   "Asha Verma",
			CustomerMobile: "9876543210",
			Amount:         15000,
			ReceiverUPIID:  "shop@upi",
		})
		require.NoError(t, err)

		result, err := engine.Reconcile(types.Notification{BigText: order.OrderID})
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeLatePayment, result.Status)
		assert.Equal(t, types.OrderCreated, result.OrderStatus)
	})
}

func TestReconcileUnknownPayerDefault(t *testing.T) {
	engine, orderSvc, _ := newTestEngine(t)
	order := createPendingOrder(t, orderSvc)

	result, err := engine.Reconcile(types.Notification{
		Title:   "Payment received",
		BigText: order.OrderID,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCompleted, result.Status)

	tx, err := engine.TransactionByOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, UnknownPayer, tx.PayerName)
}

func TestReconcileAfterExpiry(t *testing.T) {
	engine, orderSvc, _ := newTestEngine(t)
	order := createPendingOrder(t, orderSvc)

	// The expiry sweep won the race before the notification arrived.
	won, err := orderSvc.ExpireFromPending(order.OrderID)
	require.NoError(t, err)
	require.True(t, won)

	result, err := engine.Reconcile(types.Notification{
		Title:   "Sneha Reddy paid you ₹150.00",
		BigText: order.OrderID,
	})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLatePayment, result.Status)
	assert.Equal(t, types.OrderExpired, result.OrderStatus)

	// Exactly one of completed_at / expired_at may ever be set.
	current, err := orderSvc.Get(order.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, current.ExpiredAt)
	assert.Nil(t, current.CompletedAt)

	tx, err := engine.TransactionByOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.True(t, tx.IsLatePayment)
}
