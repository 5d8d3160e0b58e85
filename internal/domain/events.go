package domain

import (
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
)

// =========== Eventos salientes StockSync -> otros ===========

// StockAdjustedEvent is published after every reconciliation mutation so
// downstream consumers (feed generators, store pushes) can react. It is the
// explicit secondary effect channel: a stock change whose publication fails
// is still a stock change.
type StockAdjustedEvent struct {
	primitives.BaseEvent
	ProductID     string    `json:"productId"`
	Stock         int       `json:"stock"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	Platform      Platform  `json:"platform"`
	OccurredAtUtc time.Time `json:"occurredAtUtc"`
}

func NewStockAdjustedEvent(productID string, stock, delta int, reason string, platform Platform) *StockAdjustedEvent {
	ev := &StockAdjustedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		ProductID:     productID,
		Stock:         stock,
		Delta:         delta,
		Reason:        reason,
		Platform:      platform,
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("StockAdjusted")
	return ev
}

// SyncCompletedEvent is published when a batch run terminates, carrying the
// final counters for dashboards and alerting.
type SyncCompletedEvent struct {
	primitives.BaseEvent
	Platform        Platform      `json:"platform"`
	Operation       SyncOperation `json:"operation"`
	Status          SyncStatus    `json:"status"`
	ItemsProcessed  int           `json:"itemsProcessed"`
	ItemsSuccessful int           `json:"itemsSuccessful"`
	ItemsFailed     int           `json:"itemsFailed"`
	DurationMs      int64         `json:"durationMs"`
	OccurredAtUtc   time.Time     `json:"occurredAtUtc"`
}

func NewSyncCompletedEvent(run *SyncRun) *SyncCompletedEvent {
	var duration int64
	if run.DurationMs != nil {
		duration = *run.DurationMs
	}
	ev := &SyncCompletedEvent{
		BaseEvent:       primitives.NewBaseEvent(),
		Platform:        run.Platform,
		Operation:       run.Operation,
		Status:          run.Status,
		ItemsProcessed:  run.ItemsProcessed,
		ItemsSuccessful: run.ItemsSuccessful,
		ItemsFailed:     run.ItemsFailed,
		DurationMs:      duration,
		OccurredAtUtc:   time.Now().UTC(),
	}
	ev.SetRoutingKey("SyncCompleted")
	return ev
}
