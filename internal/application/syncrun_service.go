package application

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
	"github.com/marketsync/stocksync-go/internal/metrics"
)

// SyncRunService records every sync attempt as an auditable, resumable unit
// of work and answers the operator query surface. Terminal transitions of
// batch runs additionally stage a SyncCompleted event for dashboards;
// outbox may be nil in contexts that do not publish.
type SyncRunService struct {
	runs   domain.SyncRunRepository
	outbox OutboxWriter
}

func NewSyncRunService(runs domain.SyncRunRepository, outbox OutboxWriter) *SyncRunService {
	return &SyncRunService{runs: runs, outbox: outbox}
}

func (s *SyncRunService) announce(ctx context.Context, run *domain.SyncRun) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, domain.NewSyncCompletedEvent(run)); err != nil {
		log.Printf("SyncRun: SyncCompleted enqueue failed for run %s: %v", run.ID, err)
	}
}

// Start inserts a STARTED record with zeroed counters.
func (s *SyncRunService) Start(ctx context.Context, platform domain.Platform, direction domain.SyncDirection,
	operation domain.SyncOperation, cursorID *uuid.UUID, batchID string) (*domain.SyncRun, error) {
	run := domain.NewSyncRun(platform, direction, operation, cursorID, batchID)
	if err := s.runs.Insert(ctx, run); err != nil {
		return nil, err
	}
	log.Printf("SyncRun: started %s %s sync for %s - id %s", direction, operation, platform, run.ID)
	return run, nil
}

// UpdateProgress overwrites the counters of a STARTED run. A run that no
// longer exists is logged and ignored, matching the fire-and-forget nature
// of progress reporting.
func (s *SyncRunService) UpdateProgress(ctx context.Context, runID uuid.UUID, p Progress, details string) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		log.Printf("SyncRun: progress update for unknown run %s ignored", runID)
		return nil
	}
	if err := run.SetProgress(p.Processed, p.Successful, p.Failed, details); err != nil {
		return err
	}
	return s.runs.Save(ctx, run)
}

// Complete terminates the run; the final status follows from the counters.
func (s *SyncRunService) Complete(ctx context.Context, runID uuid.UUID, p Progress, details string) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		log.Printf("SyncRun: completion for unknown run %s ignored", runID)
		return nil
	}
	if err := run.Complete(p.Processed, p.Successful, p.Failed, details); err != nil {
		return err
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	metrics.SyncRuns.WithLabelValues(string(run.Platform), string(run.Operation), string(run.Status)).Inc()
	s.announce(ctx, run)
	log.Printf("SyncRun: completed %s %s sync for %s - status %s, %s, duration %dms",
		run.Direction, run.Operation, run.Platform, run.Status, p.String(), *run.DurationMs)
	return nil
}

// Fail terminates the run as FAILED regardless of counters.
func (s *SyncRunService) Fail(ctx context.Context, runID uuid.UUID, errorMessage string, p Progress) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		log.Printf("SyncRun: failure for unknown run %s ignored", runID)
		return nil
	}
	if err := run.Fail(errorMessage, p.Processed, p.Successful, p.Failed); err != nil {
		return err
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	metrics.SyncRuns.WithLabelValues(string(run.Platform), string(run.Operation), string(run.Status)).Inc()
	s.announce(ctx, run)
	log.Printf("SyncRun: failed %s %s sync for %s - error: %s", run.Direction, run.Operation, run.Platform, errorMessage)
	return nil
}

func (s *SyncRunService) Cancel(ctx context.Context, runID uuid.UUID, reason string) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}
	if err := run.Cancel(reason); err != nil {
		return err
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	log.Printf("SyncRun: cancelled %s %s sync for %s - reason: %s", run.Direction, run.Operation, run.Platform, reason)
	return nil
}

func (s *SyncRunService) Timeout(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}
	if err := run.Timeout(); err != nil {
		return err
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	log.Printf("SyncRun: timeout %s %s sync for %s after %dms", run.Direction, run.Operation, run.Platform, *run.DurationMs)
	return nil
}

// LogSingleOperation records START and terminal transition atomically for
// operations too small for incremental progress, e.g. one stock push.
func (s *SyncRunService) LogSingleOperation(ctx context.Context, platform domain.Platform, direction domain.SyncDirection,
	operation domain.SyncOperation, cursorID *uuid.UUID, success bool, details, errorMessage string) (*domain.SyncRun, error) {
	run := domain.NewSingleOperationRun(platform, direction, operation, cursorID, success, details, errorMessage)
	if err := s.runs.Insert(ctx, run); err != nil {
		return nil, err
	}
	metrics.SyncRuns.WithLabelValues(string(run.Platform), string(run.Operation), string(run.Status)).Inc()
	log.Printf("SyncRun: logged single %s %s operation for %s - status %s", direction, operation, platform, run.Status)
	return run, nil
}

// Query surface.

func (s *SyncRunService) Find(ctx context.Context, filter domain.SyncRunFilter, page, size int) ([]*domain.SyncRun, int64, error) {
	return s.runs.Find(ctx, filter, page, size)
}

func (s *SyncRunService) RecentByPlatform(ctx context.Context, platform domain.Platform) ([]*domain.SyncRun, error) {
	return s.runs.RecentByPlatform(ctx, platform)
}

func (s *SyncRunService) FailedOperations(ctx context.Context) ([]*domain.SyncRun, error) {
	return s.runs.ByStatus(ctx, domain.StatusFailed)
}

// RunningOperations lists runs still STARTED. A STARTED run older than the
// expected batch duration is the signal of a crashed worker; remediation is
// the operator's call, there is no automatic sweeper.
func (s *SyncRunService) RunningOperations(ctx context.Context) ([]*domain.SyncRun, error) {
	return s.runs.Running(ctx)
}

func (s *SyncRunService) Statistics(ctx context.Context, since time.Time) ([]domain.SyncStatistic, error) {
	return s.runs.Statistics(ctx, since)
}

func (s *SyncRunService) FailedCountSince(ctx context.Context, since time.Time) (int64, error) {
	return s.runs.CountFailedSince(ctx, since)
}

func (s *SyncRunService) LatestSuccessful(ctx context.Context, platform domain.Platform,
	operation domain.SyncOperation, direction domain.SyncDirection) (*domain.SyncRun, error) {
	return s.runs.LatestSuccessful(ctx, platform, operation, direction)
}

// CleanupOlderThan prunes terminated runs for maintenance.
func (s *SyncRunService) CleanupOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.runs.DeleteOlderThan(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	log.Printf("SyncRun: cleaned up %d logs older than %s", n, olderThan.Format(time.RFC3339))
	return n, nil
}
