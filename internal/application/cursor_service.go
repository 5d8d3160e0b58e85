package application

import (
	"context"
	"log"
	"time"

	"github.com/marketsync/stocksync-go/internal/domain"
)

// CursorService manages the per-platform synchronization windows.
type CursorService struct {
	cursors domain.SyncCursorRepository
}

func NewCursorService(cursors domain.SyncCursorRepository) *CursorService {
	return &CursorService{cursors: cursors}
}

// OpenOrReuse returns today's open cursor for the platform, creating one
// when none exists. Idempotent per (platform, day): a manual re-run and the
// scheduled trigger landing on the same day share one cursor, so the
// "since when" boundary is never reset.
func (s *CursorService) OpenOrReuse(ctx context.Context, platform domain.Platform) (*domain.SyncCursor, error) {
	cursor, err := s.cursors.OpenOrCreateForDay(ctx, domain.NewSyncCursor(platform))
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// Close stamps the cursor's write timestamp. Calling it twice overwrites
// the timestamp, which is wasteful but harmless.
func (s *CursorService) Close(ctx context.Context, cursor *domain.SyncCursor) error {
	cursor.MarkClosed()
	if err := s.cursors.Save(ctx, cursor); err != nil {
		return err
	}
	log.Printf("Cursor: %s window closed at %s", cursor.Platform, cursor.WriteAt.Format(time.RFC3339))
	return nil
}

func (s *CursorService) LastClosedFor(ctx context.Context, platform domain.Platform) (*domain.SyncCursor, error) {
	return s.cursors.LastClosed(ctx, platform)
}

// Window computes the incremental query bound [lastClosed.WriteAt, now].
// Cold start, or a crash that left the previous window unclosed, falls back
// to the start of the current day; the next run then re-covers the missed
// period.
func (s *CursorService) Window(ctx context.Context, platform domain.Platform, now time.Time) (start, end time.Time, err error) {
	last, err := s.cursors.LastClosed(ctx, platform)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if last == nil || last.WriteAt == nil {
		return StartOfDay(now), now, nil
	}
	return *last.WriteAt, now, nil
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
