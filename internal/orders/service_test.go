package orders

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/collectpay/collect-api/internal/types"
)

func setupTestService(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Order{}))
	return NewService(db)
}

func validSpec() CreateSpec {
	return CreateSpec{
		MerchantID:     "merchant-1",
		CustomerName:   "Asha Verma",
		CustomerMobile: "9876543210",
		Amount:         15000,
		ReceiverUPIID:  "shop@upi",
	}
}

func TestGenerateOrderID(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{10}$`)
	for i := 0; i < 100; i++ {
		id := GenerateOrderID()
		assert.True(t, pattern.MatchString(id), "unexpected id %q", id)
	}
}

func TestCreate(t *testing.T) {
	t.Run("valid spec", func(t *testing.T) {
		svc := setupTestService(t)

		order, err := svc.Create(validSpec())
		require.NoError(t, err)
		assert.Regexp(t, `^\d{10}$`, order.OrderID)
		assert.Equal(t, types.OrderCreated, order.Status)
		assert.EqualValues(t, 15000, order.Amount)
		assert.Nil(t, order.PendingAt)

		stored, err := svc.Get(order.OrderID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, order.OrderID, stored.OrderID)
	})

	t.Run("metadata is stored as json", func(t *testing.T) {
		svc := setupTestService(t)

		spec := validSpec()
		spec.Metadata = map[string]interface{}{"invoice": "INV-42"}
		order, err := svc.Create(spec)
		require.NoError(t, err)
		assert.JSONEq(t, `{"invoice":"INV-42"}`, order.Metadata)
	})

	t.Run("validation failures", func(t *testing.T) {
		svc := setupTestService(t)

		cases := []struct {
			name   string
			mutate func(*CreateSpec)
		}{
			{"empty customer name", func(s *CreateSpec) { s.CustomerName = "  " }},
			{"short mobile", func(s *CreateSpec) { s.CustomerMobile = "98765" }},
			{"non-numeric mobile", func(s *CreateSpec) { s.CustomerMobile = "98765abcde" }},
			{"zero amount", func(s *CreateSpec) { s.Amount = 0 }},
			{"negative amount", func(s *CreateSpec) { s.Amount = -100 }},
			{"empty upi id", func(s *CreateSpec) { s.ReceiverUPIID = "" }},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				spec := validSpec()
				tc.mutate(&spec)
				_, err := svc.Create(spec)
				assert.Error(t, err)
			})
		}
	})
}

func TestAttachQR(t *testing.T) {
	t.Run("moves order to pending", func(t *testing.T) {
		svc := setupTestService(t)
		order, err := svc.Create(validSpec())
		require.NoError(t, err)

		updated, err := svc.AttachQR(order.OrderID, "uploads/qr/"+order.OrderID+".png")
		require.NoError(t, err)
		assert.Equal(t, types.OrderPending, updated.Status)
		require.NotNil(t, updated.QRPath)
		assert.Equal(t, "uploads/qr/"+order.OrderID+".png", *updated.QRPath)
		require.NotNil(t, updated.PendingAt)
		assert.WithinDuration(t, time.Now(), *updated.PendingAt, 5*time.Second)
	})

	t.Run("rejected once already pending", func(t *testing.T) {
		svc := setupTestService(t)
		order, err := svc.Create(validSpec())
		require.NoError(t, err)

		_, err = svc.AttachQR(order.OrderID, "")
		require.NoError(t, err)

		_, err = svc.AttachQR(order.OrderID, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := setupTestService(t)
		_, err := svc.AttachQR("0000000000", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTransition(t *testing.T) {
	t.Run("pending to completed sets timestamp", func(t *testing.T) {
		svc := setupTestService(t)
		order, err := svc.Create(validSpec())
		require.NoError(t, err)
		_, err = svc.AttachQR(order.OrderID, "")
		require.NoError(t, err)

		err = svc.Transition(order.OrderID, types.OrderPending, types.OrderCompleted)
		require.NoError(t, err)

		current, err := svc.Get(order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderCompleted, current.Status)
		assert.NotNil(t, current.CompletedAt)
		assert.Nil(t, current.ExpiredAt)
	})

	t.Run("no edge back out of a terminal state", func(t *testing.T) {
		svc := setupTestService(t)
		err := svc.Transition("0000000000", types.OrderCompleted, types.OrderPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("no skip from created to completed", func(t *testing.T) {
		svc := setupTestService(t)
		err := svc.Transition("0000000000", types.OrderCreated, types.OrderCompleted)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("lost race reports conflict and leaves order unchanged", func(t *testing.T) {
		svc := setupTestService(t)
		order, err := svc.Create(validSpec())
		require.NoError(t, err)
		pending, err := svc.AttachQR(order.OrderID, "")
		require.NoError(t, err)

		won, err := svc.CompleteFromPending(order.OrderID)
		require.NoError(t, err)
		require.True(t, won)

		err = svc.Transition(order.OrderID, types.OrderPending, types.OrderExpired)
		assert.ErrorIs(t, err, ErrTransitionConflict)

		current, err := svc.Get(order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderCompleted, current.Status)
		assert.Nil(t, current.ExpiredAt)
		require.NotNil(t, current.PendingAt)
		assert.Equal(t, pending.PendingAt.Unix(), current.PendingAt.Unix())
	})
}

func TestCompleteAndExpireFromPending(t *testing.T) {
	svc := setupTestService(t)
	order, err := svc.Create(validSpec())
	require.NoError(t, err)
	_, err = svc.AttachQR(order.OrderID, "")
	require.NoError(t, err)

	won, err := svc.ExpireFromPending(order.OrderID)
	require.NoError(t, err)
	assert.True(t, won)

	// Second writer loses without error.
	won, err = svc.CompleteFromPending(order.OrderID)
	require.NoError(t, err)
	assert.False(t, won)

	current, err := svc.Get(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderExpired, current.Status)
	assert.NotNil(t, current.ExpiredAt)
	assert.Nil(t, current.CompletedAt)
}

func TestStalePending(t *testing.T) {
	svc := setupTestService(t)

	stale, err := svc.Create(validSpec())
	require.NoError(t, err)
	_, err = svc.AttachQR(stale.OrderID, "")
	require.NoError(t, err)
	err = svc.db.db.Model(&types.Order{}).
		Where("order_id = ?", stale.OrderID).
		Update("pending_at", time.Now().Add(-121*time.Second)).Error
	require.NoError(t, err)

	fresh, err := svc.Create(validSpec())
	require.NoError(t, err)
	_, err = svc.AttachQR(fresh.OrderID, "")
	require.NoError(t, err)

	created, err := svc.Create(validSpec())
	require.NoError(t, err)

	list, err := svc.StalePending(120 * time.Second)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.OrderID, list[0].OrderID)
	assert.NotEqual(t, created.OrderID, list[0].OrderID)
}

func TestProject(t *testing.T) {
	now := time.Now()

	t.Run("expired is published as failed", func(t *testing.T) {
		order := &types.Order{
			OrderID:   "1234567890",
			Amount:    15000,
			Status:    types.OrderExpired,
			ExpiredAt: &now,
		}
		view := Project(order, nil)
		assert.Equal(t, types.OrderFailed, view.Status)
		assert.Equal(t, types.OrderExpired, view.InternalStatus)
		assert.Equal(t, 150.0, view.Amount)
	})

	t.Run("other statuses pass through", func(t *testing.T) {
		order := &types.Order{OrderID: "1234567890", Amount: 9900, Status: types.OrderCompleted}
		tx := &types.TransactionSummary{PayerName: "Rahul Kumar"}
		view := Project(order, tx)
		assert.Equal(t, types.OrderCompleted, view.Status)
		assert.Equal(t, types.OrderCompleted, view.InternalStatus)
		assert.Equal(t, 99.0, view.Amount)
		require.NotNil(t, view.Transaction)
		assert.Equal(t, "Rahul Kumar", view.Transaction.PayerName)
	})
}

func TestAmountConversion(t *testing.T) {
	assert.EqualValues(t, 15000, RupeesToPaise(150.00))
	assert.EqualValues(t, 15001, RupeesToPaise(150.005))
	assert.EqualValues(t, 9900, RupeesToPaise(99))
	assert.Equal(t, 150.0, PaiseToRupees(15000))
	assert.Equal(t, 0.01, PaiseToRupees(1))
}
