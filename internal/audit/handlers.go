package audit

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collectpay/collect-api/pkg/response"
)

// GinHandlers contains HTTP handlers for audit log endpoints
type GinHandlers struct {
	logger *Logger
}

func NewGinHandlers(logger *Logger) *GinHandlers {
	return &GinHandlers{logger: logger}
}

// ListHandler handles GET requests for audit logs with actor/action/limit
// filters (admin)
func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := Filters{
			Actor:  c.Query("actor"),
			Action: c.Query("action"),
		}
		if raw := c.Query("limit"); raw != "" {
			if limit, err := strconv.Atoi(raw); err == nil {
				filters.Limit = limit
			}
		}

		logs, err := h.logger.List(filters)
		response.Handle(c, logs, err)
	}
}
