package notify

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/collectpay/collect-api/internal/auth"
	"github.com/collectpay/collect-api/internal/types"
	"github.com/collectpay/collect-api/pkg/response"
)

// GinHandlers contains HTTP handlers for notification and transaction
// endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for notification
// endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// IngestHandler handles POST requests from the phone's notification
// forwarder. Every classification, UNMAPPED included, returns 200: the
// forwarder has no retry logic and must never be told to resend.
func (h *GinHandlers) IngestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var n types.Notification
		if err := c.ShouldBindJSON(&n); err != nil {
			response.BadRequest(c, "invalid notification payload")
			return
		}

		result, err := h.service.Reconcile(n)
		if err != nil {
			log.Error().Err(err).Msg("failed to process notification")
			response.InternalError(c, "failed to process notification")
			return
		}

		response.OK(c, result)
	}
}

// ListTransactionsHandler handles GET requests for a merchant's recorded
// payments
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := auth.MerchantFromContext(c)
		if merchant == nil {
			response.Unauthorized(c, "authentication required")
			return
		}

		txs, err := h.service.TransactionsByMerchant(merchant.ID)
		response.Handle(c, txs, err)
	}
}

// ListUnmappedHandler handles GET requests for the quarantine queue (admin)
func (h *GinHandlers) ListUnmappedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.service.Unmapped()
		response.Handle(c, records, err)
	}
}
