package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/marketsync/stocksync-go/internal/application"
	"github.com/marketsync/stocksync-go/internal/domain"
)

// SyncScheduler is the cron effect: on every tick it runs a full sync for
// each registered platform, sequentially. Triggers are independent of the
// webhook path and of manual triggers; nothing serializes them beyond the
// cursor and dedup invariants.
type SyncScheduler struct {
	engine   *application.ReconciliationEngine
	clients  []domain.MarketplaceClient
	interval time.Duration
}

func NewSyncScheduler(engine *application.ReconciliationEngine, clients []domain.MarketplaceClient, intervalMin int) *SyncScheduler {
	return &SyncScheduler{
		engine:   engine,
		clients:  clients,
		interval: time.Duration(intervalMin) * time.Minute,
	}
}

func (s *SyncScheduler) Start(ctx context.Context) {
	if len(s.clients) == 0 {
		log.Printf("Sync scheduler: no marketplace clients registered, nothing to schedule")
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("Sync scheduler stopped")
				return
			case <-ticker.C:
				s.runAll(ctx)
			}
		}
	}()
}

func (s *SyncScheduler) runAll(ctx context.Context) {
	for _, client := range s.clients {
		if err := s.engine.FullSync(ctx, client); err != nil {
			// The run is already recorded as FAILED; the next tick retries
			// the window.
			log.Printf("Sync scheduler: full sync for %s failed: %v", client.Platform(), err)
		}
	}
}
