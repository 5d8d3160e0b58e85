package outbox

import (
	"context"
	"log"
	"time"

	"github.com/marketsync/stocksync-go/internal/metrics"
)

// dispatchRunner is what the scheduler needs from the dispatcher: one
// bounded sweep over pending messages.
type dispatchRunner interface {
	DispatchOnce(ctx context.Context) (int, error)
}

// Scheduler sweeps the stock event outbox on a fixed interval. Sweeps are
// sequential; a slow bus stretches the effective period instead of piling
// up concurrent dispatches.
type Scheduler struct {
	dispatcher dispatchRunner
	interval   time.Duration
}

func NewScheduler(d *Dispatcher, intervalSec int) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		interval:   time.Duration(intervalSec) * time.Second,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("Stock outbox scheduler stopped")
				return
			case <-ticker.C:
				n, err := s.dispatcher.DispatchOnce(ctx)
				if err != nil {
					metrics.OutboxDispatchCycles.WithLabelValues("error").Inc()
					log.Printf("Stock outbox dispatch error: %v", err)
					continue
				}
				metrics.OutboxDispatchCycles.WithLabelValues("ok").Inc()
				if n > 0 {
					log.Printf("Stock outbox dispatched %d events", n)
				}
			}
		}
	}()
}
