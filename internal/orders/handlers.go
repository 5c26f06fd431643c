package orders

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/auth"
	"github.com/collectpay/collect-api/internal/types"
	"github.com/collectpay/collect-api/pkg/metrics"
	"github.com/collectpay/collect-api/pkg/response"
	"github.com/collectpay/collect-api/pkg/upi"
)

// TransactionLookup resolves the transaction recorded against an order, if
// any. Implemented by the reconciliation service; declared here to keep the
// dependency one-directional.
type TransactionLookup interface {
	TransactionByOrder(orderID string) (*types.Transaction, error)
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service     *Service
	authService *auth.Service
	txs         TransactionLookup
	audit       *audit.Logger
	uploadDir   string
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service, authService *auth.Service, txs TransactionLookup, auditLogger *audit.Logger, uploadDir string) *GinHandlers {
	return &GinHandlers{
		service:     service,
		authService: authService,
		txs:         txs,
		audit:       auditLogger,
		uploadDir:   uploadDir,
	}
}

type createOrderRequest struct {
	CustomerName   string                 `json:"customer_name" binding:"required"`
	CustomerMobile string                 `json:"customer_mobile" binding:"required"`
	Amount         float64                `json:"amount" binding:"required,gt=0"`
	ReceiverUPIID  string                 `json:"receiver_upi_id" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// CreateOrderHandler handles POST requests to create payment orders.
// Serves both the signed third-party API and the dashboard; the auth
// middleware in front decides which. Amounts arrive in rupees and are
// converted to paise here, at the boundary.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := auth.MerchantFromContext(c)
		if merchant == nil {
			response.Unauthorized(c, "authentication required")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		spec := CreateSpec{
			MerchantID:     merchant.ID,
			CustomerName:   req.CustomerName,
			CustomerMobile: req.CustomerMobile,
			Amount:         RupeesToPaise(req.Amount),
			ReceiverUPIID:  req.ReceiverUPIID,
			Metadata:       req.Metadata,
		}
		if err := spec.Validate(); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		order, err := h.service.Create(spec)
		if err != nil {
			response.InternalError(c, "failed to create order")
			return
		}

		metrics.OrdersCreated.Inc()
		h.audit.Log(merchant.Email, merchant.ID, audit.ActionCreateOrder, map[string]interface{}{
			"order_id":        order.OrderID,
			"amount":          req.Amount,
			"customer_mobile": req.CustomerMobile,
		}, c.ClientIP())

		intentURL := upi.IntentURL(order.ReceiverUPIID, merchant.BusinessName, PaiseToRupees(order.Amount), order.OrderID)

		response.Success(c, types.OrderCreatedResponse{
			OrderID:        order.OrderID,
			Status:         order.Status,
			Amount:         PaiseToRupees(order.Amount),
			UPIIntentURL:   intentURL,
			CustomerName:   order.CustomerName,
			CustomerMobile: order.CustomerMobile,
			ReceiverUPIID:  order.ReceiverUPIID,
			CreatedAt:      order.CreatedAt,
		})
	}
}

type attachQRRequest struct {
	OrderID       string `json:"order_id" binding:"required"`
	QRImageBase64 string `json:"qr_image_base64"`
}

// AttachQRHandler handles POST requests to attach a QR to an order, moving
// it from CREATED to PENDING. A supplied base64 PNG is stored as-is;
// otherwise the QR is rendered from the order's UPI intent URI.
func (h *GinHandlers) AttachQRHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req attachQRRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "order_id is required")
			return
		}

		order, err := h.service.Get(req.OrderID)
		if err != nil {
			response.InternalError(c, "failed to load order")
			return
		}
		if order == nil {
			response.NotFound(c, "order not found")
			return
		}
		if order.Status != types.OrderCreated {
			response.BadRequest(c, "order is not in CREATED status")
			return
		}

		var png []byte
		if req.QRImageBase64 != "" {
			png, err = base64.StdEncoding.DecodeString(req.QRImageBase64)
			if err != nil {
				response.BadRequest(c, "qr_image_base64 is not valid base64")
				return
			}
		} else {
			payeeName := ""
			if m, err := h.authService.GetMerchant(order.MerchantID); err == nil && m != nil {
				payeeName = m.BusinessName
			}
			intentURL := upi.IntentURL(order.ReceiverUPIID, payeeName, PaiseToRupees(order.Amount), order.OrderID)
			png, err = upi.QRPNG(intentURL, 512)
			if err != nil {
				response.InternalError(c, "failed to render QR")
				return
			}
		}

		qrPath, err := h.storeQR(order.OrderID, png)
		if err != nil {
			response.InternalError(c, "failed to store QR")
			return
		}

		updated, err := h.service.AttachQR(order.OrderID, qrPath)
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				response.BadRequest(c, "order is not in CREATED status")
				return
			}
			response.InternalError(c, "failed to update order")
			return
		}

		h.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionQRUpload, map[string]interface{}{
			"order_id": order.OrderID,
		}, c.ClientIP())

		response.Success(c, gin.H{
			"message":  "QR attached and order is now PENDING",
			"order_id": updated.OrderID,
			"status":   updated.Status,
			"qr_path":  qrPath,
		})
	}
}

func (h *GinHandlers) storeQR(orderID string, png []byte) (string, error) {
	dir := filepath.Join(h.uploadDir, "qr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, orderID+".png"), png, 0o644); err != nil {
		return "", err
	}
	return "/uploads/qr/" + orderID + ".png", nil
}

// GetOrderHandler handles GET requests for the public order projection.
// The response carries both the public status (EXPIRED aliased to FAILED)
// and the true internal_status.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		order, err := h.service.Get(orderID)
		if err != nil {
			response.InternalError(c, "failed to fetch order")
			return
		}
		if order == nil {
			response.NotFound(c, "order not found")
			return
		}

		var summary *types.TransactionSummary
		if tx, err := h.txs.TransactionByOrder(orderID); err == nil && tx != nil {
			summary = &types.TransactionSummary{
				PayerName:     tx.PayerName,
				IsLatePayment: tx.IsLatePayment,
				CreatedAt:     tx.CreatedAt,
			}
		}

		response.Success(c, Project(order, summary))
	}
}

// ListMerchantOrdersHandler handles GET requests listing the authenticated
// merchant's orders with status/date filters
func (h *GinHandlers) ListMerchantOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := auth.MerchantFromContext(c)
		if merchant == nil {
			response.Unauthorized(c, "authentication required")
			return
		}

		filters := ListFilters{Status: c.Query("status")}
		if t, ok := parseDate(c.Query("start_date")); ok {
			filters.StartDate = &t
		}
		if t, ok := parseDate(c.Query("end_date")); ok {
			filters.EndDate = &t
		}

		list, err := h.service.ListByMerchant(merchant.ID, filters)
		if err != nil {
			response.InternalError(c, "failed to fetch orders")
			return
		}

		projections := make([]types.OrderProjection, 0, len(list))
		for i := range list {
			projections = append(projections, Project(&list[i], nil))
		}
		response.Success(c, projections)
	}
}

// DashboardHandler handles GET requests for merchant dashboard stats
func (h *GinHandlers) DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		merchant := auth.MerchantFromContext(c)
		if merchant == nil {
			response.Unauthorized(c, "authentication required")
			return
		}

		list, err := h.service.ListByMerchant(merchant.ID, ListFilters{})
		if err != nil {
			response.InternalError(c, "failed to fetch dashboard data")
			return
		}

		var volumePaise int64
		var completed, pending int
		customers := make(map[string]bool)
		for i := range list {
			switch list[i].Status {
			case types.OrderCompleted:
				completed++
				volumePaise += list[i].Amount
			case types.OrderPending:
				pending++
			}
			customers[list[i].CustomerMobile] = true
		}

		successRate := 0.0
		if len(list) > 0 {
			successRate = float64(completed) / float64(len(list)) * 100
		}

		recent := make([]types.OrderProjection, 0, 5)
		for i := range list {
			if i >= 5 {
				break
			}
			recent = append(recent, Project(&list[i], nil))
		}

		response.Success(c, gin.H{
			"stats": types.DashboardStats{
				TotalVolume:    PaiseToRupees(volumePaise),
				SuccessRate:    formatRate(successRate),
				PendingOrders:  pending,
				TotalCustomers: len(customers),
			},
			"recent_orders": recent,
		})
	}
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatRate renders a percentage with one decimal place, matching the
// dashboard display convention.
func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}
