package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collect"

var (
	// OrdersCreated counts successful order creations.
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "Number of orders created",
	})

	// OrdersExpired counts orders the expiry sweep moved to EXPIRED.
	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_expired_total",
		Help:      "Number of pending orders expired by the sweep",
	})

	// ReconciliationOutcomes counts notification ingestion results by outcome
	// (COMPLETED, LATE_PAYMENT, DUPLICATE, UNMAPPED).
	ReconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliation_outcomes_total",
		Help:      "Reconciliation outcomes by classification",
	}, []string{"outcome"})
)

// Handler exposes the prometheus registry as a gin handler for GET /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
