package audit

import (
	"encoding/json"

	"github.com/collectpay/collect-api/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SystemActor marks entries emitted by background processes rather than a
// logged-in merchant.
const SystemActor = "SYSTEM"

// Audit action names
const (
	ActionRegister              = "REGISTER"
	ActionLogin                 = "LOGIN"
	ActionCreateOrder           = "CREATE_ORDER"
	ActionQRUpload              = "QR_UPLOAD"
	ActionPaymentCompleted      = "PAYMENT_COMPLETED"
	ActionLatePayment           = "LATE_PAYMENT"
	ActionDuplicateNotification = "DUPLICATE_NOTIFICATION"
	ActionOrderExpired          = "ORDER_EXPIRED"
	ActionDomainAdd             = "DOMAIN_ADD"
	ActionDomainRemove          = "DOMAIN_REMOVE"
	ActionAPIKeyRegenerate      = "API_KEY_REGENERATE"
)

// Logger appends audit entries as a side effect of state-changing operations.
type Logger struct {
	db *gorm.DB
}

func NewLogger(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Log writes one audit entry. Failures are logged and swallowed: auditing
// must never fail the operation it records.
func (l *Logger) Log(actor, actorID, action string, details map[string]interface{}, ip string) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	entry := types.AuditLog{
		ID:        uuid.New().String(),
		Actor:     actor,
		ActorID:   actorID,
		Action:    action,
		Details:   string(payload),
		IPAddress: ip,
	}

	if err := l.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
	}
}

// Filters narrows List results. Actor matches as a substring, Action exactly.
type Filters struct {
	Actor  string
	Action string
	Limit  int
}

// List returns audit entries, newest first. Limit defaults to 100.
func (l *Logger) List(f Filters) ([]types.AuditLog, error) {
	query := l.db.Model(&types.AuditLog{})

	if f.Actor != "" {
		query = query.Where("actor LIKE ?", "%"+f.Actor+"%")
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var logs []types.AuditLog
	if err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
