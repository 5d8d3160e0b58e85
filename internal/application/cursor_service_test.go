package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/stocksync-go/internal/domain"
)

func TestOpenOrReuseIsIdempotentPerDay(t *testing.T) {
	repo := newMemCursorRepo()
	svc := NewCursorService(repo)

	first, err := svc.OpenOrReuse(context.Background(), domain.PlatformSkroutz)
	require.NoError(t, err)

	// Manual trigger on the same day reuses the same window.
	second, err := svc.OpenOrReuse(context.Background(), domain.PlatformSkroutz)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Another platform gets its own cursor.
	other, err := svc.OpenOrReuse(context.Background(), domain.PlatformBol)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCloseThenReopenCreatesNewCursor(t *testing.T) {
	repo := newMemCursorRepo()
	svc := NewCursorService(repo)
	ctx := context.Background()

	first, err := svc.OpenOrReuse(ctx, domain.PlatformSkroutz)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, first))

	second, err := svc.OpenOrReuse(ctx, domain.PlatformSkroutz)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	last, err := svc.LastClosedFor(ctx, domain.PlatformSkroutz)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, first.ID, last.ID)
}

func TestWindowColdStartFallsBackToStartOfDay(t *testing.T) {
	repo := newMemCursorRepo()
	svc := NewCursorService(repo)
	now := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)

	start, end, err := svc.Window(context.Background(), domain.PlatformMagento, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)
}

func TestWindowStartsAtLastClose(t *testing.T) {
	repo := newMemCursorRepo()
	svc := NewCursorService(repo)
	ctx := context.Background()

	cursor, err := svc.OpenOrReuse(ctx, domain.PlatformSkroutz)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, cursor))

	now := time.Now().UTC().Add(time.Hour)
	start, end, err := svc.Window(ctx, domain.PlatformSkroutz, now)
	require.NoError(t, err)
	assert.Equal(t, *cursor.WriteAt, start)
	assert.Equal(t, now, end)

	// No gap and no overlap beyond the boundary instant itself: the next
	// window begins exactly where the previous one was sealed.
	assert.True(t, start.Before(end))
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2026, 2, 3, 23, 59, 59, 1e9-1, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), StartOfDay(in))
}
