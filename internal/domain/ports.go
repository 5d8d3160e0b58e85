package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ProductRepository interface {
	// GetByID returns nil, nil when the product does not exist locally.
	GetByID(ctx context.Context, id string) (*Product, error)
	Upsert(ctx context.Context, p *Product) error
	// SyncedSince returns products whose last-touching cursor was opened at
	// or after the given time. Feeds the outbound stock push.
	SyncedSince(ctx context.Context, since time.Time) ([]*Product, error)
}

type SyncCursorRepository interface {
	// OpenOrCreateForDay returns the open cursor for (platform, day of
	// readAt) or inserts a new one. The storage layer resolves concurrent
	// first-of-the-day inserts to a single row.
	OpenOrCreateForDay(ctx context.Context, cursor *SyncCursor) (*SyncCursor, error)
	Save(ctx context.Context, cursor *SyncCursor) error
	GetByID(ctx context.Context, id uuid.UUID) (*SyncCursor, error)
	// LastClosed returns the most recently closed cursor for the platform,
	// or nil, nil when the platform has never completed a sync.
	LastClosed(ctx context.Context, platform Platform) (*SyncCursor, error)
}

// SyncRunFilter holds the optional criteria of the operator query surface.
type SyncRunFilter struct {
	Platform  *Platform
	Direction *SyncDirection
	Operation *SyncOperation
	Status    *SyncStatus
	StartDate *time.Time
	EndDate   *time.Time
}

// SyncStatistic is one row of the aggregate view: run count grouped by
// platform, operation and status.
type SyncStatistic struct {
	Platform  Platform
	Operation SyncOperation
	Status    SyncStatus
	Count     int64
}

type SyncRunRepository interface {
	Insert(ctx context.Context, run *SyncRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*SyncRun, error)
	Save(ctx context.Context, run *SyncRun) error
	Find(ctx context.Context, filter SyncRunFilter, page, size int) ([]*SyncRun, int64, error)
	RecentByPlatform(ctx context.Context, platform Platform) ([]*SyncRun, error)
	ByStatus(ctx context.Context, status SyncStatus) ([]*SyncRun, error)
	Running(ctx context.Context) ([]*SyncRun, error)
	Statistics(ctx context.Context, since time.Time) ([]SyncStatistic, error)
	CountFailedSince(ctx context.Context, since time.Time) (int64, error)
	LatestSuccessful(ctx context.Context, platform Platform, operation SyncOperation, direction SyncDirection) (*SyncRun, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

type WebhookEventRepository interface {
	// InsertIfNovel inserts the dedup row and reports whether it was new.
	// A false return means the (orderId, eventType) pair was seen before.
	InsertIfNovel(ctx context.Context, ev *WebhookEvent) (bool, error)
	Exists(ctx context.Context, orderID, eventType string) (bool, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]OutboxMessage, error)
	Save(ctx context.Context, msg OutboxMessage) error
}

type OutboxMessage struct {
	ID             uuid.UUID
	Type           string
	PayloadJSON    string
	OccurredAtUtc  int64
	RetryCount     int
	ProcessedAtUtc *int64
}

// OrderLine is one line item of an order or return as reported upstream.
type OrderLine struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// OrderPage is one page of an order pull.
type OrderPage struct {
	Lines      []OrderLine
	TotalPages int
}

type CatalogItem struct {
	ProductID string
	Name      string
	Brand     string
	Stock     int
}

type CatalogPage struct {
	Items      []CatalogItem
	TotalPages int
}

// MarketplaceClient is the excluded HTTP collaborator for one platform:
// at-least-once, possibly slow, possibly erroring calls. Implementations
// own their own timeouts and authentication.
type MarketplaceClient interface {
	Platform() Platform
	FetchOrders(ctx context.Context, windowStart, windowEnd time.Time, page int) (OrderPage, error)
	FetchReturns(ctx context.Context, windowStart, windowEnd time.Time) ([]OrderLine, error)
	FetchCatalog(ctx context.Context, page int) (CatalogPage, error)
	PushStock(ctx context.Context, productID string, quantity int) error
	// PageSize is the expected item count per order page, used to account
	// for pages whose fetch failed entirely.
	PageSize() int
}
