package types

import (
	"time"
)

// Order statuses. EXPIRED and FAILED are stored distinctly; EXPIRED is
// presented as FAILED at the read boundary (see PublicStatus).
const (
	OrderCreated   = "CREATED"
	OrderPending   = "PENDING"
	OrderCompleted = "COMPLETED"
	OrderExpired   = "EXPIRED"
	OrderFailed    = "FAILED"
)

// Merchant roles
const (
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

// Merchant owns orders and holds the API credentials used by the signing gate.
type Merchant struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `json:"name"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	Password     string    `json:"-"` // salted pbkdf2 hash
	BusinessName string    `json:"business_name"`
	Phone        string    `json:"phone,omitempty"`
	APIKey       string    `gorm:"uniqueIndex" json:"api_key,omitempty"`
	APISecret    string    `json:"-"` // HMAC secret for request signing
	Role         string    `gorm:"default:MERCHANT" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MerchantDomain is one allowlisted hostname for signed API calls.
type MerchantDomain struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	MerchantID string    `gorm:"index" json:"merchant_id"`
	Domain     string    `json:"domain"` // stored lowercase
	CreatedAt  time.Time `json:"created_at"`
}

// Order is a single payment request identified by a 10-digit numeric id.
// Amount is stored in paise; conversion to rupees happens only at the API
// boundary. Each per-state timestamp is written exactly once, when the state
// is entered.
type Order struct {
	OrderID        string     `gorm:"primaryKey;size:10" json:"order_id"`
	MerchantID     string     `gorm:"index" json:"merchant_id"`
	CustomerName   string     `json:"customer_name"`
	CustomerMobile string     `json:"customer_mobile"`
	Amount         int64      `json:"amount"`
	ReceiverUPIID  string     `json:"receiver_upi_id"`
	Status         string     `gorm:"index" json:"status"`
	Metadata       string     `gorm:"type:text" json:"metadata,omitempty"`
	QRPath         *string    `json:"qr_path"`
	CreatedAt      time.Time  `json:"created_at"`
	PendingAt      *time.Time `json:"pending_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ExpiredAt      *time.Time `json:"expired_at"`
	FailedAt       *time.Time `json:"failed_at"`
}

// PublicStatus maps the stored status to the externally visible one:
// EXPIRED is never shown to API consumers, it reads as FAILED.
func (o *Order) PublicStatus() string {
	if o.Status == OrderExpired {
		return OrderFailed
	}
	return o.Status
}

// Transaction records one successfully parsed and matched payment
// notification. At most one exists per order; the first match wins and
// later matches are classified DUPLICATE.
type Transaction struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	OrderID          string    `gorm:"uniqueIndex;size:10" json:"order_id"`
	MerchantID       string    `gorm:"index" json:"merchant_id"`
	PayerName        string    `json:"payer_name"`
	NotificationJSON string    `gorm:"type:text" json:"notification_json"`
	IsLatePayment    bool      `json:"is_late_payment"`
	CreatedAt        time.Time `json:"created_at"`
}

// UnmappedNotification quarantines a notification that could not be matched
// to any order. Append-only; read by operators, never by core logic.
type UnmappedNotification struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	NotificationJSON string    `gorm:"type:text" json:"notification_json"`
	ReceivedAt       time.Time `gorm:"autoCreateTime" json:"received_at"`
}

// AuditLog is an append-only record of every state-changing operation.
type AuditLog struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Actor     string    `json:"actor"` // merchant email or "SYSTEM"
	ActorID   string    `gorm:"index" json:"actor_id,omitempty"`
	Action    string    `gorm:"index" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is the raw payload forwarded from the phone's notification
// listener. The field names mirror the Android notification extras.
type Notification struct {
	Title   string `json:"title"`
	Text    string `json:"text"`
	BigText string `json:"bigText"`
}
