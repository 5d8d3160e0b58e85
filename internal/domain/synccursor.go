package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncCursor is a per-platform pointer recording the time window already
// consumed from that platform. At most one open cursor (WriteAt nil) exists
// per platform per calendar day; the schema enforces that with a partial
// unique index on (platform, date(read_at)).
type SyncCursor struct {
	ID       uuid.UUID
	Platform Platform
	ReadAt   time.Time
	WriteAt  *time.Time
}

func NewSyncCursor(platform Platform) *SyncCursor {
	return &SyncCursor{
		ID:       uuid.New(),
		Platform: platform,
		ReadAt:   time.Now().UTC(),
	}
}

func (c *SyncCursor) Open() bool {
	return c.WriteAt == nil
}

// MarkClosed stamps the write timestamp. Calling it twice just overwrites
// the timestamp.
func (c *SyncCursor) MarkClosed() {
	now := time.Now().UTC()
	c.WriteAt = &now
}
