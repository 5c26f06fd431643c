package types

import "time"

// OrderCreatedResponse is returned from the order creation entrypoints.
// Amount is in rupees with two decimal places.
type OrderCreatedResponse struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	Amount         float64   `json:"amount"`
	UPIIntentURL   string    `json:"upi_intent_url"`
	CustomerName   string    `json:"customer_name,omitempty"`
	CustomerMobile string    `json:"customer_mobile,omitempty"`
	ReceiverUPIID  string    `json:"receiver_upi_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransactionSummary is the transaction fragment embedded in an order read.
type TransactionSummary struct {
	PayerName     string    `json:"payer_name"`
	IsLatePayment bool      `json:"is_late_payment"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderProjection is the full external view of an order. Status carries the
// public (EXPIRED-aliased) value, InternalStatus the stored one.
type OrderProjection struct {
	OrderID        string              `json:"order_id"`
	MerchantID     string              `json:"merchant_id"`
	CustomerName   string              `json:"customer_name"`
	CustomerMobile string              `json:"customer_mobile"`
	Amount         float64             `json:"amount"`
	ReceiverUPIID  string              `json:"receiver_upi_id"`
	Status         string              `json:"status"`
	InternalStatus string              `json:"internal_status"`
	QRPath         *string             `json:"qr_path"`
	CreatedAt      time.Time           `json:"created_at"`
	PendingAt      *time.Time          `json:"pending_at"`
	CompletedAt    *time.Time          `json:"completed_at"`
	ExpiredAt      *time.Time          `json:"expired_at"`
	Transaction    *TransactionSummary `json:"transaction"`
}

// NotificationResult is the structured outcome of notification ingestion.
// Always delivered with a 2xx status: the upstream forwarder has no retry
// logic and must not treat unmapped payments as failures worth resending.
type NotificationResult struct {
	Status      string `json:"status"` // COMPLETED, LATE_PAYMENT, DUPLICATE, UNMAPPED
	Message     string `json:"message"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
}

// Reconciliation outcomes
const (
	OutcomeCompleted   = "COMPLETED"
	OutcomeLatePayment = "LATE_PAYMENT"
	OutcomeDuplicate   = "DUPLICATE"
	OutcomeUnmapped    = "UNMAPPED"
)

// DashboardStats summarises a merchant's order book.
type DashboardStats struct {
	TotalVolume    float64 `json:"total_volume"`
	SuccessRate    string  `json:"success_rate"`
	PendingOrders  int     `json:"pending_orders"`
	TotalCustomers int     `json:"total_customers"`
}
