package expiry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/collectpay/collect-api/internal/audit"
	"github.com/collectpay/collect-api/internal/orders"
	"github.com/collectpay/collect-api/pkg/metrics"
)

// Processor is the expiry scheduler: a periodic sweep that moves stale
// PENDING orders to EXPIRED. It is owned by the composition root and runs
// for the lifetime of the process.
type Processor struct {
	orders        *orders.Service
	audit         *audit.Logger
	window        time.Duration // pending orders older than this expire
	sweepInterval time.Duration
}

func NewProcessor(orderService *orders.Service, auditLogger *audit.Logger, window, sweepInterval time.Duration) *Processor {
	return &Processor{
		orders:        orderService,
		audit:         auditLogger,
		window:        window,
		sweepInterval: sweepInterval,
	}
}

// Start begins the expiry sweep loop. Sweep errors are logged, never fatal
// to the loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "expiry_processor").Logger()
	logger.Info().
		Dur("window", p.window).
		Dur("interval", p.sweepInterval).
		Msg("starting expiry processor")

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down expiry processor")
			return
		case <-ticker.C:
			if err := p.Sweep(); err != nil {
				logger.Error().Err(err).Msg("failed to sweep pending orders")
			}
		}
	}
}

// Sweep expires every PENDING order whose pending_at is older than the
// window. Each order is attempted independently: one failure skips that
// order and continues the batch. An order completed concurrently loses the
// conditional update and is left untouched.
func (p *Processor) Sweep() error {
	logger := log.With().Str("component", "expiry_processor").Logger()

	stale, err := p.orders.StalePending(p.window)
	if err != nil {
		return err
	}

	if len(stale) > 0 {
		logger.Info().Int("stale_count", len(stale)).Msg("expiring stale pending orders")
	}

	for _, order := range stale {
		won, err := p.orders.ExpireFromPending(order.OrderID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("order_id", order.OrderID).
				Msg("failed to expire order")
			continue
		}
		if !won {
			// Completed by a concurrent notification between the query and
			// the update; nothing to do.
			continue
		}

		metrics.OrdersExpired.Inc()
		p.audit.Log(audit.SystemActor, order.MerchantID, audit.ActionOrderExpired, map[string]interface{}{
			"order_id":    order.OrderID,
			"merchant_id": order.MerchantID,
		}, "")
	}

	return nil
}
