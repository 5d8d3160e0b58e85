package application

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
	"github.com/marketsync/stocksync-go/internal/metrics"
)

// Order states recognized by the ingestion path. Other states are reported
// as unsupported without inserting a dedup row, so a later redelivery under
// a state we understand is still treated as novel when it carries a new
// event type.
const (
	orderStateAccepted = "accepted"
	orderStateReturned = "returned"
)

// WebhookPayload is the inbound delivery shape.
type WebhookPayload struct {
	EventType string       `json:"event_type"`
	Order     WebhookOrder `json:"order"`
}

type WebhookOrder struct {
	Code      string            `json:"code"`
	State     string            `json:"state"`
	LineItems []WebhookLineItem `json:"line_items"`
}

type WebhookLineItem struct {
	ID          string `json:"id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// IngestOutcome classifies one delivery for the HTTP layer.
type IngestOutcome int

const (
	IngestProcessed IngestOutcome = iota
	IngestPartial
	IngestDuplicate
	IngestUnsupportedState
)

// WebhookIngestService consumes a single inbound webhook delivery. The
// dedup row is inserted before processing begins, so redeliveries of a
// delivery whose processing broke halfway are also suppressed; that trades
// retry-ability for never double-applying stock.
type WebhookIngestService struct {
	platform domain.Platform
	events   domain.WebhookEventRepository
	ledger   *StockLedgerService
	cursors  *CursorService
	runs     *SyncRunService
	outbox   OutboxWriter
}

func NewWebhookIngestService(
	platform domain.Platform,
	events domain.WebhookEventRepository,
	ledger *StockLedgerService,
	cursors *CursorService,
	runs *SyncRunService,
	outbox OutboxWriter,
) *WebhookIngestService {
	return &WebhookIngestService{
		platform: platform,
		events:   events,
		ledger:   ledger,
		cursors:  cursors,
		runs:     runs,
		outbox:   outbox,
	}
}

// Ingest runs the delivery state machine. The caller has already validated
// payload shape; a non-nil error here means an unhandled failure and maps
// to a 500.
func (s *WebhookIngestService) Ingest(ctx context.Context, payload WebhookPayload) (IngestOutcome, error) {
	orderID := payload.Order.Code
	eventType := payload.EventType

	seen, err := s.events.Exists(ctx, orderID, eventType)
	if err != nil {
		return 0, err
	}
	if seen {
		return s.logDuplicate(ctx, payload)
	}

	state := payload.Order.State
	if state != orderStateAccepted && state != orderStateReturned {
		log.Printf("WebhookIngest: unsupported order state %q for order %s, not processed", state, orderID)
		metrics.WebhookDeliveries.WithLabelValues("unsupported").Inc()
		return IngestUnsupportedState, nil
	}

	// Idempotency boundary: insert the dedup row before touching stock.
	novel, err := s.events.InsertIfNovel(ctx, domain.NewWebhookEvent(orderID, eventType))
	if err != nil {
		return 0, err
	}
	if !novel {
		// Lost the race against a concurrent delivery of the same pair.
		return s.logDuplicate(ctx, payload)
	}

	cursor, err := s.cursors.OpenOrReuse(ctx, s.platform)
	if err != nil {
		return 0, err
	}

	operation := domain.OperationOrders
	if state == orderStateReturned {
		operation = domain.OperationReturns
	}
	run, err := s.runs.Start(ctx, s.platform, domain.DirectionInbound, operation, &cursor.ID, "webhook:"+orderID)
	if err != nil {
		return 0, err
	}

	var progress Progress
	pushFailures := 0
	for _, line := range payload.Order.LineItems {
		if err := s.processLine(ctx, state, line, cursor.ID, &progress, &pushFailures); err != nil {
			log.Printf("WebhookIngest: line %s of order %s failed: %v", line.ID, orderID, err)
			progress.Failure()
		}
		if err := s.runs.UpdateProgress(ctx, run.ID, progress, ""); err != nil {
			log.Printf("WebhookIngest: progress update failed for run %s: %v", run.ID, err)
		}
	}

	details := fmt.Sprintf("order %s state %s", orderID, state)
	if pushFailures > 0 {
		details += fmt.Sprintf(", %d stock push enqueues failed", pushFailures)
	}
	if err := s.runs.Complete(ctx, run.ID, progress, details); err != nil {
		// The dedup row stays; the delivery is permanently marked seen.
		s.failRun(ctx, run.ID, err)
		return 0, err
	}

	if progress.Failed > 0 {
		metrics.WebhookDeliveries.WithLabelValues("partial").Inc()
		return IngestPartial, nil
	}
	metrics.WebhookDeliveries.WithLabelValues("processed").Inc()
	return IngestProcessed, nil
}

func (s *WebhookIngestService) processLine(ctx context.Context, state string, line WebhookLineItem,
	cursorID uuid.UUID, progress *Progress, pushFailures *int) error {
	var skipped bool
	var err error
	switch state {
	case orderStateAccepted:
		skipped, err = s.ledger.ReduceByOrder(ctx, line.ID, line.Quantity)
	case orderStateReturned:
		skipped, err = s.ledger.IncreaseByReturn(ctx, line.ID, line.Quantity)
	}
	if err != nil {
		return err
	}
	if skipped {
		progress.Skipped()
		return nil
	}

	if err := s.ledger.SetLastSync(ctx, line.ID, cursorID); err != nil {
		return err
	}

	// Best effort: the feed/store push rides the outbox. Its failure is
	// recorded alongside the mutation outcome, never instead of it.
	delta := -line.Quantity
	reason := "webhook_order"
	if state == orderStateReturned {
		delta = line.Quantity
		reason = "webhook_return"
	}
	p, err := s.ledger.GetProduct(ctx, line.ID)
	if err == nil && p != nil {
		ev := domain.NewStockAdjustedEvent(p.ID, p.Stock, delta, reason, s.platform)
		if err := s.outbox.Enqueue(ctx, ev); err != nil {
			log.Printf("WebhookIngest: stock push enqueue failed for %s: %v", line.ID, err)
			*pushFailures++
		}
	}

	progress.Success()
	return nil
}

// logDuplicate records the short-circuit as a SUCCESS single-operation run
// so the redelivery stays visible in the audit trail.
func (s *WebhookIngestService) logDuplicate(ctx context.Context, payload WebhookPayload) (IngestOutcome, error) {
	log.Printf("WebhookIngest: duplicate delivery of order %s event %s ignored", payload.Order.Code, payload.EventType)
	details := fmt.Sprintf("duplicate ignored: order %s event %s", payload.Order.Code, payload.EventType)
	operation := domain.OperationOrders
	if payload.Order.State == orderStateReturned {
		operation = domain.OperationReturns
	}
	if _, err := s.runs.LogSingleOperation(ctx, s.platform, domain.DirectionInbound, operation, nil, true, details, ""); err != nil {
		return 0, err
	}
	metrics.WebhookDeliveries.WithLabelValues("duplicate").Inc()
	return IngestDuplicate, nil
}

func (s *WebhookIngestService) failRun(ctx context.Context, runID uuid.UUID, cause error) {
	if err := s.runs.Fail(ctx, runID, cause.Error(), Progress{}); err != nil {
		log.Printf("WebhookIngest: failed to mark run %s failed: %v", runID, err)
	}
}
