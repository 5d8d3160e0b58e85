package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts terminated sync runs by platform, operation and final
	// status.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksync_runs_total",
		Help: "Terminated sync runs by platform, operation and status.",
	}, []string{"platform", "operation", "status"})

	// WebhookDeliveries counts inbound webhook deliveries by outcome:
	// processed, partial, duplicate, unsupported, rejected, error.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksync_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by outcome.",
	}, []string{"outcome"})

	// StockAdjustments counts applied ledger mutations by cause.
	StockAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksync_stock_adjustments_total",
		Help: "Applied stock mutations by cause (order, return).",
	}, []string{"cause"})

	// OutboxPublished counts integration events handed to the bus.
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stocksync_outbox_published_total",
		Help: "Outbox messages successfully published.",
	})

	// OutboxDispatchCycles counts dispatcher sweeps by result, so a stuck
	// bus shows up as a growing error series even when nothing publishes.
	OutboxDispatchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stocksync_outbox_dispatch_cycles_total",
		Help: "Outbox dispatch sweeps by result (ok, error).",
	}, []string{"result"})
)
