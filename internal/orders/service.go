package orders

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/collectpay/collect-api/internal/types"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrTransitionConflict means the conditional update lost a race: the
	// order was no longer in the expected source state.
	ErrTransitionConflict = errors.New("order state changed concurrently")
	ErrIDExhausted        = errors.New("could not allocate a unique order id")
)

var mobilePattern = regexp.MustCompile(`^\d{10}$`)

// validTransitions are the directed edges of the order state machine. No
// transition back to an earlier state exists.
var validTransitions = map[string][]string{
	types.OrderCreated: {types.OrderPending, types.OrderFailed},
	types.OrderPending: {types.OrderCompleted, types.OrderExpired, types.OrderFailed},
}

const createRetries = 3

// Service owns the order lifecycle: creation, the QR-attach transition into
// PENDING, and the conditional transitions used by reconciliation and expiry.
type Service struct {
	db *Database
}

// NewService creates an order service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateSpec is the validated input to Create. Amount is in paise.
type CreateSpec struct {
	MerchantID     string
	CustomerName   string
	CustomerMobile string
	Amount         int64
	ReceiverUPIID  string
	Metadata       map[string]interface{}
}

// Validate applies the field-level checks rejected before storage is touched.
func (s CreateSpec) Validate() error {
	if strings.TrimSpace(s.CustomerName) == "" {
		return fmt.Errorf("customer_name must not be empty")
	}
	if !mobilePattern.MatchString(s.CustomerMobile) {
		return fmt.Errorf("customer_mobile must be exactly 10 digits")
	}
	if s.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(s.ReceiverUPIID) == "" {
		return fmt.Errorf("receiver_upi_id must not be empty")
	}
	return nil
}

// Create allocates a fresh 10-digit order id and persists the order in state
// CREATED. An id collision on the primary key is retried with a new id a
// bounded number of times before erroring.
func (s *Service) Create(spec CreateSpec) (*types.Order, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var metadata string
	if spec.Metadata != nil {
		raw, err := json.Marshal(spec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("metadata is not serializable: %w", err)
		}
		metadata = string(raw)
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		order := &types.Order{
			OrderID:        GenerateOrderID(),
			MerchantID:     spec.MerchantID,
			CustomerName:   spec.CustomerName,
			CustomerMobile: spec.CustomerMobile,
			Amount:         spec.Amount,
			ReceiverUPIID:  spec.ReceiverUPIID,
			Status:         types.OrderCreated,
			Metadata:       metadata,
		}

		err := s.db.CreateOrder(order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	return nil, ErrIDExhausted
}

// Get loads an order by id.
func (s *Service) Get(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// ListByMerchant returns a merchant's orders with optional filters.
func (s *Service) ListByMerchant(merchantID string, filters ListFilters) ([]types.Order, error) {
	return s.db.GetOrdersByMerchant(merchantID, filters)
}

// AttachQR moves an order from CREATED to PENDING, optionally recording the
// stored QR image path. Valid only while the order is in CREATED.
func (s *Service) AttachQR(orderID string, qrPath string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if order.Status != types.OrderCreated {
		return nil, fmt.Errorf("%w: order is not in CREATED status", ErrInvalidTransition)
	}

	if qrPath != "" {
		if err := s.db.SetQRPath(orderID, qrPath); err != nil {
			return nil, err
		}
	}

	if err := s.Transition(orderID, types.OrderCreated, types.OrderPending); err != nil {
		return nil, err
	}
	return s.db.GetOrder(orderID)
}

// Transition applies one conditional status update along a valid edge.
// A non-existent edge returns ErrInvalidTransition; a lost race on the
// conditional update returns ErrTransitionConflict with the order unchanged.
func (s *Service) Transition(orderID, from, to string) error {
	if !edgeExists(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	won, err := s.db.TransitionStatus(orderID, from, to, time.Now())
	if err != nil {
		return err
	}
	if !won {
		return ErrTransitionConflict
	}
	return nil
}

// CompleteFromPending attempts the PENDING -> COMPLETED transition and
// reports whether it won. Used by reconciliation, which falls back to the
// late-payment outcome when the expiry sweep got there first.
func (s *Service) CompleteFromPending(orderID string) (bool, error) {
	won, err := s.db.TransitionStatus(orderID, types.OrderPending, types.OrderCompleted, time.Now())
	if err != nil {
		return false, err
	}
	return won, nil
}

// ExpireFromPending attempts the PENDING -> EXPIRED transition and reports
// whether it won. An order already completed concurrently is left alone.
func (s *Service) ExpireFromPending(orderID string) (bool, error) {
	won, err := s.db.TransitionStatus(orderID, types.OrderPending, types.OrderExpired, time.Now())
	if err != nil {
		return false, err
	}
	return won, nil
}

// StalePending returns PENDING orders older than the window, for the expiry
// sweep.
func (s *Service) StalePending(window time.Duration) ([]types.Order, error) {
	return s.db.GetStalePending(time.Now().Add(-window))
}

// Project builds the external view of an order: public status with EXPIRED
// aliased to FAILED, internal status preserved, amount in rupees.
func Project(order *types.Order, tx *types.TransactionSummary) types.OrderProjection {
	return types.OrderProjection{
		OrderID:        order.OrderID,
		MerchantID:     order.MerchantID,
		CustomerName:   order.CustomerName,
		CustomerMobile: order.CustomerMobile,
		Amount:         PaiseToRupees(order.Amount),
		ReceiverUPIID:  order.ReceiverUPIID,
		Status:         order.PublicStatus(),
		InternalStatus: order.Status,
		QRPath:         order.QRPath,
		CreatedAt:      order.CreatedAt,
		PendingAt:      order.PendingAt,
		CompletedAt:    order.CompletedAt,
		ExpiredAt:      order.ExpiredAt,
		Transaction:    tx,
	}
}

// GenerateOrderID builds a 10-digit numeric id from the last six digits of
// the current unix-millis timestamp plus four random digits. Uniqueness is
// not guaranteed at generation time; the primary key constraint is the
// arbiter and Create retries on collision.
func GenerateOrderID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	prefix := ts[len(ts)-6:]

	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		n = big.NewInt(time.Now().UnixNano() % 9000)
	}
	return prefix + strconv.FormatInt(n.Int64()+1000, 10)
}

// PaiseToRupees converts internal minor units to the external two-decimal
// representation.
func PaiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}

// RupeesToPaise converts an external amount to minor units, rounding at the
// boundary. Conversion never happens inside the state machine.
func RupeesToPaise(rupees float64) int64 {
	return int64(math.Round(rupees * 100))
}

func edgeExists(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
