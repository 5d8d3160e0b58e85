package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/marketsync/stocksync-go/internal/domain"
)

// ReconciliationEngine orchestrates the scheduled batch path: for a
// platform and operation it pages through the collaborator's data bounded
// by the cursor window, applies ledger deltas, advances run progress and
// finalizes the cursor. One bad page never aborts a batch; a failure before
// the first page does, and retry is left to the next scheduled trigger.
type ReconciliationEngine struct {
	ledger  *StockLedgerService
	cursors *CursorService
	runs    *SyncRunService
	outbox  OutboxWriter
	limiter *rate.Limiter
}

// NewReconciliationEngine builds the engine. pageDelay spaces successive
// collaborator calls to respect upstream rate limits (~1.2s in production).
func NewReconciliationEngine(
	ledger *StockLedgerService,
	cursors *CursorService,
	runs *SyncRunService,
	outbox OutboxWriter,
	pageDelay time.Duration,
) *ReconciliationEngine {
	if pageDelay <= 0 {
		pageDelay = time.Millisecond
	}
	return &ReconciliationEngine{
		ledger:  ledger,
		cursors: cursors,
		runs:    runs,
		outbox:  outbox,
		limiter: rate.NewLimiter(rate.Every(pageDelay), 1),
	}
}

// FullSync runs orders, returns and the outbound stock push for one
// platform under a single batch id, then closes the day's cursor. This is
// the unit of work one cron tick performs.
func (e *ReconciliationEngine) FullSync(ctx context.Context, client domain.MarketplaceClient) error {
	platform := client.Platform()
	batchID := uuid.NewString()

	cursor, err := e.cursors.OpenOrReuse(ctx, platform)
	if err != nil {
		return err
	}
	windowStart, windowEnd, err := e.cursors.Window(ctx, platform, time.Now().UTC())
	if err != nil {
		return err
	}

	ordersErr := e.syncOrders(ctx, client, cursor, windowStart, windowEnd, batchID)
	returnsErr := e.syncReturns(ctx, client, cursor, windowStart, windowEnd, batchID)
	pushErr := e.pushStock(ctx, client, cursor, batchID)

	// A structural inbound failure leaves the cursor open so the next
	// trigger's window re-covers the period.
	if ordersErr == nil && returnsErr == nil {
		if err := e.cursors.Close(ctx, cursor); err != nil {
			return err
		}
	}

	for _, err := range []error{ordersErr, returnsErr, pushErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// SyncOrders is the standalone orders pull: own cursor handling, own run.
func (e *ReconciliationEngine) SyncOrders(ctx context.Context, client domain.MarketplaceClient, batchID string) error {
	cursor, windowStart, windowEnd, err := e.openWindow(ctx, client.Platform())
	if err != nil {
		return err
	}
	if err := e.syncOrders(ctx, client, cursor, windowStart, windowEnd, batchID); err != nil {
		return err
	}
	return e.cursors.Close(ctx, cursor)
}

// SyncReturns is the standalone returns pull.
func (e *ReconciliationEngine) SyncReturns(ctx context.Context, client domain.MarketplaceClient, batchID string) error {
	cursor, windowStart, windowEnd, err := e.openWindow(ctx, client.Platform())
	if err != nil {
		return err
	}
	if err := e.syncReturns(ctx, client, cursor, windowStart, windowEnd, batchID); err != nil {
		return err
	}
	return e.cursors.Close(ctx, cursor)
}

// PushStock pushes today's touched products outbound, standalone.
func (e *ReconciliationEngine) PushStock(ctx context.Context, client domain.MarketplaceClient, batchID string) error {
	cursor, err := e.cursors.OpenOrReuse(ctx, client.Platform())
	if err != nil {
		return err
	}
	return e.pushStock(ctx, client, cursor, batchID)
}

func (e *ReconciliationEngine) openWindow(ctx context.Context, platform domain.Platform) (*domain.SyncCursor, time.Time, time.Time, error) {
	cursor, err := e.cursors.OpenOrReuse(ctx, platform)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	start, end, err := e.cursors.Window(ctx, platform, time.Now().UTC())
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return cursor, start, end, nil
}

func (e *ReconciliationEngine) syncOrders(ctx context.Context, client domain.MarketplaceClient,
	cursor *domain.SyncCursor, windowStart, windowEnd time.Time, batchID string) error {
	platform := client.Platform()
	run, err := e.runs.Start(ctx, platform, domain.DirectionInbound, domain.OperationOrders, &cursor.ID, batchID)
	if err != nil {
		return err
	}

	var progress Progress
	page := 1
	totalPages := 1
	for page <= totalPages {
		if err := e.limiter.Wait(ctx); err != nil {
			e.fail(ctx, run.ID, err, progress)
			return err
		}

		orderPage, err := client.FetchOrders(ctx, windowStart, windowEnd, page)
		if err != nil {
			if page == 1 {
				// Nothing consumed yet: structural failure, abort the run.
				// The next scheduled trigger covers the window again.
				e.fail(ctx, run.ID, err, progress)
				return err
			}
			log.Printf("Reconciliation: %s orders page %d/%d fetch failed: %v", platform, page, totalPages, err)
			progress.FailureN(client.PageSize())
			page++
			continue
		}
		if orderPage.TotalPages > 0 {
			totalPages = orderPage.TotalPages
		}

		for _, line := range orderPage.Lines {
			e.applyLine(ctx, platform, cursor.ID, line, true, &progress)
		}

		details := fmt.Sprintf("window [%s, %s], page %d/%d",
			windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339), page, totalPages)
		if err := e.runs.UpdateProgress(ctx, run.ID, progress, details); err != nil {
			log.Printf("Reconciliation: progress update failed for run %s: %v", run.ID, err)
		}
		page++
	}

	return e.runs.Complete(ctx, run.ID, progress,
		fmt.Sprintf("window [%s, %s], %d pages", windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339), totalPages))
}

func (e *ReconciliationEngine) syncReturns(ctx context.Context, client domain.MarketplaceClient,
	cursor *domain.SyncCursor, windowStart, windowEnd time.Time, batchID string) error {
	platform := client.Platform()
	run, err := e.runs.Start(ctx, platform, domain.DirectionInbound, domain.OperationReturns, &cursor.ID, batchID)
	if err != nil {
		return err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.fail(ctx, run.ID, err, Progress{})
		return err
	}
	lines, err := client.FetchReturns(ctx, windowStart, windowEnd)
	if err != nil {
		e.fail(ctx, run.ID, err, Progress{})
		return err
	}

	var progress Progress
	for _, line := range lines {
		e.applyLine(ctx, platform, cursor.ID, line, false, &progress)
	}
	return e.runs.Complete(ctx, run.ID, progress,
		fmt.Sprintf("window [%s, %s]", windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339)))
}

// applyLine applies one order or return line: ledger delta, cursor stamp,
// best-effort outbound event. Per-item failures are counted, never fatal.
func (e *ReconciliationEngine) applyLine(ctx context.Context, platform domain.Platform, cursorID uuid.UUID,
	line domain.OrderLine, isOrder bool, progress *Progress) {
	var skipped bool
	var err error
	if isOrder {
		skipped, err = e.ledger.ReduceByOrder(ctx, line.ProductID, line.Quantity)
	} else {
		skipped, err = e.ledger.IncreaseByReturn(ctx, line.ProductID, line.Quantity)
	}
	if err != nil {
		log.Printf("Reconciliation: %s line for product %s failed: %v", platform, line.ProductID, err)
		progress.Failure()
		return
	}
	if skipped {
		progress.Skipped()
		return
	}

	if err := e.ledger.SetLastSync(ctx, line.ProductID, cursorID); err != nil {
		log.Printf("Reconciliation: cursor stamp failed for product %s: %v", line.ProductID, err)
	}

	delta := -line.Quantity
	reason := "order"
	if !isOrder {
		delta = line.Quantity
		reason = "return"
	}
	if p, err := e.ledger.GetProduct(ctx, line.ProductID); err == nil && p != nil {
		ev := domain.NewStockAdjustedEvent(p.ID, p.Stock, delta, reason, platform)
		if err := e.outbox.Enqueue(ctx, ev); err != nil {
			log.Printf("Reconciliation: stock push enqueue failed for %s: %v", line.ProductID, err)
		}
	}
	progress.Success()
}

// pushStock sends the current stock of every product touched today to the
// platform. OUTBOUND direction: here a missing product would be our own
// query's fault, so per-item errors are counted as failures.
func (e *ReconciliationEngine) pushStock(ctx context.Context, client domain.MarketplaceClient,
	cursor *domain.SyncCursor, batchID string) error {
	platform := client.Platform()
	run, err := e.runs.Start(ctx, platform, domain.DirectionOutbound, domain.OperationStockUpdate, &cursor.ID, batchID)
	if err != nil {
		return err
	}

	products, err := e.ledger.SyncedSince(ctx, StartOfDay(time.Now().UTC()))
	if err != nil {
		e.fail(ctx, run.ID, err, Progress{})
		return err
	}

	var progress Progress
	for i, p := range products {
		if err := e.limiter.Wait(ctx); err != nil {
			e.fail(ctx, run.ID, err, progress)
			return err
		}
		if err := client.PushStock(ctx, p.ID, p.Stock); err != nil {
			log.Printf("Reconciliation: stock push to %s failed for %s: %v", platform, p.ID, err)
			progress.Failure()
		} else {
			progress.Success()
		}
		if (i+1)%progressFlushEvery == 0 {
			if err := e.runs.UpdateProgress(ctx, run.ID, progress, ""); err != nil {
				log.Printf("Reconciliation: progress update failed for run %s: %v", run.ID, err)
			}
		}
	}

	return e.runs.Complete(ctx, run.ID, progress, fmt.Sprintf("%d products pushed", len(products)))
}

// ImportProducts pulls the platform's catalog pages and creates or
// refreshes local products. No cursor: imports are not incremental.
func (e *ReconciliationEngine) ImportProducts(ctx context.Context, client domain.MarketplaceClient, batchID string) error {
	platform := client.Platform()
	run, err := e.runs.Start(ctx, platform, domain.DirectionInbound, domain.OperationProductImport, nil, batchID)
	if err != nil {
		return err
	}

	var progress Progress
	created := 0
	page := 1
	totalPages := 1
	for page <= totalPages {
		if err := e.limiter.Wait(ctx); err != nil {
			e.fail(ctx, run.ID, err, progress)
			return err
		}
		catalogPage, err := client.FetchCatalog(ctx, page)
		if err != nil {
			if page == 1 {
				e.fail(ctx, run.ID, err, progress)
				return err
			}
			log.Printf("Reconciliation: %s catalog page %d/%d fetch failed: %v", platform, page, totalPages, err)
			progress.FailureN(client.PageSize())
			page++
			continue
		}
		if catalogPage.TotalPages > 0 {
			totalPages = catalogPage.TotalPages
		}

		for _, item := range catalogPage.Items {
			isNew, err := e.ledger.UpsertFromImport(ctx, item)
			if err != nil {
				log.Printf("Reconciliation: import of product %s failed: %v", item.ProductID, err)
				progress.Failure()
				continue
			}
			if isNew {
				created++
			}
			progress.Success()
		}
		if err := e.runs.UpdateProgress(ctx, run.ID, progress, fmt.Sprintf("page %d/%d", page, totalPages)); err != nil {
			log.Printf("Reconciliation: progress update failed for run %s: %v", run.ID, err)
		}
		page++
	}

	return e.runs.Complete(ctx, run.ID, progress, fmt.Sprintf("%d products created", created))
}

// progressFlushEvery bounds write amplification of progress updates on
// long outbound pushes.
const progressFlushEvery = 10

func (e *ReconciliationEngine) fail(ctx context.Context, runID uuid.UUID, cause error, p Progress) {
	if err := e.runs.Fail(ctx, runID, cause.Error(), p); err != nil {
		log.Printf("Reconciliation: failed to mark run %s failed: %v", runID, err)
	}
}
