package notify

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/orders"
	"github.com/collectpay/collect-api/internal/types"
	"github.com/collectpay/collect-api/pkg/metrics"
)

// UnknownPayer is recorded when the notification title yields no payer name.
const UnknownPayer = "Unknown"

// Service is the reconciliation engine: it matches a parsed notification to
// an order, classifies the outcome and drives the resulting state
// transition.
type Service struct {
	db         *Database
	orders     *orders.Service
	audit      *audit.Logger
	lateWindow time.Duration
}

// NewService creates the reconciliation engine. lateWindow is the same
// constant the expiry sweep uses, so "late" and "expired" converge: a
// payment arriving after expiry is classified late rather than lost.
func NewService(gormDB *gorm.DB, orderService *orders.Service, auditLogger *audit.Logger, lateWindow time.Duration) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		orders:     orderService,
		audit:      auditLogger,
		lateWindow: lateWindow,
	}
}

// Reconcile processes one raw payment notification and returns the
// structured outcome. It never creates a second Transaction for an order:
// replayed notifications classify as DUPLICATE, and a lost race against the
// expiry sweep falls back to LATE_PAYMENT instead of erroring.
func (s *Service) Reconcile(n types.Notification) (*types.NotificationResult, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	orderID, payerName := Parse(n)

	if orderID == "" {
		if err := s.db.CreateUnmapped(string(raw)); err != nil {
			return nil, err
		}
		return s.outcome(&types.NotificationResult{
			Status:  types.OutcomeUnmapped,
			Message: "no order id found in notification",
		}), nil
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if err := s.db.CreateUnmapped(string(raw)); err != nil {
			return nil, err
		}
		return s.outcome(&types.NotificationResult{
			Status:  types.OutcomeUnmapped,
			Message: "order not found",
			OrderID: orderID,
		}), nil
	}

	existing, err := s.db.GetTransactionByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionDuplicateNotification, map[string]interface{}{
			"order_id":     orderID,
			"notification": n,
		}, "")
		return s.outcome(&types.NotificationResult{
			Status:  types.OutcomeDuplicate,
			Message: "payment already recorded",
			OrderID: orderID,
		}), nil
	}

	// An order that never reached PENDING has no window to be on time for.
	isLate := true
	if order.PendingAt != nil {
		isLate = time.Since(*order.PendingAt) > s.lateWindow
	}

	if payerName == "" {
		payerName = UnknownPayer
	}

	tx := &types.Transaction{
		OrderID:          orderID,
		MerchantID:       order.MerchantID,
		PayerName:        payerName,
		NotificationJSON: string(raw),
		IsLatePayment:    isLate,
	}
	if err := s.db.CreateTransaction(tx); err != nil {
		// Two notifications racing past the existence check: the unique
		// index picks one winner, the loser classifies as duplicate.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionDuplicateNotification, map[string]interface{}{
				"order_id": orderID,
			}, "")
			return s.outcome(&types.NotificationResult{
				Status:  types.OutcomeDuplicate,
				Message: "payment already recorded",
				OrderID: orderID,
			}), nil
		}
		return nil, err
	}

	if order.Status == types.OrderPending && !isLate {
		won, err := s.orders.CompleteFromPending(orderID)
		if err != nil {
			return nil, err
		}
		if won {
			s.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionPaymentCompleted, map[string]interface{}{
				"order_id":   orderID,
				"payer_name": payerName,
			}, "")
			return s.outcome(&types.NotificationResult{
				Status:  types.OutcomeCompleted,
				Message: "payment recorded successfully",
				OrderID: orderID,
			}), nil
		}

		// The expiry sweep won the conditional update; re-read and fall
		// back to the late classification.
		if current, err := s.orders.Get(orderID); err == nil && current != nil {
			order = current
		}
	}

	s.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionLatePayment, map[string]interface{}{
		"order_id":     orderID,
		"payer_name":   payerName,
		"order_status": order.Status,
	}, "")
	return s.outcome(&types.NotificationResult{
		Status:      types.OutcomeLatePayment,
		Message:     "payment recorded as late",
		OrderID:     orderID,
		OrderStatus: order.Status,
	}), nil
}

// TransactionsByMerchant lists a merchant's recorded payments.
func (s *Service) TransactionsByMerchant(merchantID string) ([]types.Transaction, error) {
	return s.db.GetTransactionsByMerchant(merchantID)
}

// TransactionByOrder returns the transaction for an order, or nil.
func (s *Service) TransactionByOrder(orderID string) (*types.Transaction, error) {
	return s.db.GetTransactionByOrderID(orderID)
}

// Unmapped lists quarantined notifications for operators.
func (s *Service) Unmapped() ([]types.UnmappedNotification, error) {
	return s.db.GetUnmapped()
}

func (s *Service) outcome(result *types.NotificationResult) *types.NotificationResult {
	metrics.ReconciliationOutcomes.WithLabelValues(result.Status).Inc()
	return result
}
