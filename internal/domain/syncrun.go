package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunTerminated is returned when a mutation is attempted on a sync run
// that already reached a terminal status.
var ErrRunTerminated = errors.New("sync run already terminated")

// SyncRun is one auditable attempt at a sync operation: a scheduled batch
// pull, a webhook-triggered update, or a single outbound push. It is the
// state machine STARTED -> {SUCCESS, PARTIAL_SUCCESS, FAILED, CANCELLED,
// TIMEOUT}; every terminal transition sets EndTime and DurationMs and the
// run is immutable afterwards.
type SyncRun struct {
	ID              uuid.UUID
	Platform        Platform
	Direction       SyncDirection
	Operation       SyncOperation
	Status          SyncStatus
	StartTime       time.Time
	EndTime         *time.Time
	ItemsProcessed  int
	ItemsSuccessful int
	ItemsFailed     int
	Details         string
	ErrorMessage    string
	BatchID         string
	SyncCursorID    *uuid.UUID
	DurationMs      *int64
}

func NewSyncRun(platform Platform, direction SyncDirection, operation SyncOperation, cursorID *uuid.UUID, batchID string) *SyncRun {
	return &SyncRun{
		ID:           uuid.New(),
		Platform:     platform,
		Direction:    direction,
		Operation:    operation,
		Status:       StatusStarted,
		StartTime:    time.Now().UTC(),
		BatchID:      batchID,
		SyncCursorID: cursorID,
	}
}

// SetProgress overwrites the counters and details. Only valid while STARTED.
func (r *SyncRun) SetProgress(processed, successful, failed int, details string) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminated
	}
	r.ItemsProcessed = processed
	r.ItemsSuccessful = successful
	r.ItemsFailed = failed
	if details != "" {
		r.Details = details
	}
	return nil
}

// Complete terminates the run. The final status is decided purely by the
// counters: SUCCESS when nothing failed, PARTIAL_SUCCESS when some items
// made it through, FAILED when none did.
func (r *SyncRun) Complete(processed, successful, failed int, details string) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminated
	}
	r.ItemsProcessed = processed
	r.ItemsSuccessful = successful
	r.ItemsFailed = failed
	if details != "" {
		r.Details = details
	}
	switch {
	case failed == 0:
		r.Status = StatusSuccess
	case successful > 0:
		r.Status = StatusPartialSuccess
	default:
		r.Status = StatusFailed
	}
	r.finish()
	return nil
}

// Fail terminates the run as FAILED regardless of counters. Used when an
// unrecoverable error aborts the run before normal completion logic.
func (r *SyncRun) Fail(errorMessage string, processed, successful, failed int) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminated
	}
	r.Status = StatusFailed
	r.ErrorMessage = errorMessage
	r.ItemsProcessed = processed
	r.ItemsSuccessful = successful
	r.ItemsFailed = failed
	r.finish()
	return nil
}

func (r *SyncRun) Cancel(reason string) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminated
	}
	r.Status = StatusCancelled
	r.ErrorMessage = reason
	r.finish()
	return nil
}

func (r *SyncRun) Timeout() error {
	if r.Status.IsTerminal() {
		return ErrRunTerminated
	}
	r.Status = StatusTimeout
	r.ErrorMessage = "Operation timed out"
	r.finish()
	return nil
}

func (r *SyncRun) finish() {
	now := time.Now().UTC()
	r.EndTime = &now
	d := now.Sub(r.StartTime).Milliseconds()
	r.DurationMs = &d
}

// NewSingleOperationRun builds an already-terminated run for operations too
// small to warrant incremental progress reporting, e.g. one stock push.
func NewSingleOperationRun(platform Platform, direction SyncDirection, operation SyncOperation,
	cursorID *uuid.UUID, success bool, details, errorMessage string) *SyncRun {
	run := NewSyncRun(platform, direction, operation, cursorID, "")
	run.Details = details
	run.ErrorMessage = errorMessage
	if success {
		run.Status = StatusSuccess
		run.ItemsProcessed = 1
		run.ItemsSuccessful = 1
	} else {
		run.Status = StatusFailed
		run.ItemsProcessed = 1
		run.ItemsFailed = 1
	}
	run.finish()
	return run
}
