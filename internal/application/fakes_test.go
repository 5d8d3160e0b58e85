package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"

	"github.com/marketsync/stocksync-go/internal/domain"
)

// In-memory fakes mirroring the postgres repository semantics closely
// enough to exercise the services without a database.

type memProductRepo struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	// cursorOpenedAt lets SyncedSince resolve cursor ids to open times the
	// way the join in the real repository does.
	cursorOpenedAt map[uuid.UUID]time.Time
	upsertErr      error
	upsertErrFor   map[string]error
}

func newMemProductRepo() *memProductRepo {
	return &memProductRepo{
		products:       make(map[string]*domain.Product),
		cursorOpenedAt: make(map[uuid.UUID]time.Time),
	}
}

func (r *memProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) Upsert(_ context.Context, p *domain.Product) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if err := r.upsertErrFor[p.ID]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *memProductRepo) SyncedSince(_ context.Context, since time.Time) ([]*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Product
	for _, p := range r.products {
		if p.SyncCursorID == nil {
			continue
		}
		opened, ok := r.cursorOpenedAt[*p.SyncCursorID]
		if !ok || opened.Before(since) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProductRepo) seed(p *domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
}

func (r *memProductRepo) stock(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

type memCursorRepo struct {
	mu      sync.Mutex
	cursors map[uuid.UUID]*domain.SyncCursor
}

func newMemCursorRepo() *memCursorRepo {
	return &memCursorRepo{cursors: make(map[uuid.UUID]*domain.SyncCursor)}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (r *memCursorRepo) OpenOrCreateForDay(_ context.Context, cursor *domain.SyncCursor) (*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cursors {
		if c.Platform == cursor.Platform && c.WriteAt == nil && sameDay(c.ReadAt, cursor.ReadAt) {
			cp := *c
			return &cp, nil
		}
	}
	cp := *cursor
	r.cursors[cursor.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memCursorRepo) Save(_ context.Context, cursor *domain.SyncCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cursor
	r.cursors[cursor.ID] = &cp
	return nil
}

func (r *memCursorRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memCursorRepo) LastClosed(_ context.Context, platform domain.Platform) (*domain.SyncCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.SyncCursor
	for _, c := range r.cursors {
		if c.Platform != platform || c.WriteAt == nil {
			continue
		}
		if latest == nil || c.WriteAt.After(*latest.WriteAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.SyncRun
	ord  []uuid.UUID
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[uuid.UUID]*domain.SyncRun)}
}

func (r *memRunRepo) Insert(_ context.Context, run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	r.ord = append(r.ord, run.ID)
	return nil
}

func (r *memRunRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *memRunRepo) Save(_ context.Context, run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *memRunRepo) all() []*domain.SyncRun {
	out := make([]*domain.SyncRun, 0, len(r.ord))
	for _, id := range r.ord {
		cp := *r.runs[id]
		out = append(out, &cp)
	}
	return out
}

func (r *memRunRepo) matches(run *domain.SyncRun, f domain.SyncRunFilter) bool {
	if f.Platform != nil && run.Platform != *f.Platform {
		return false
	}
	if f.Direction != nil && run.Direction != *f.Direction {
		return false
	}
	if f.Operation != nil && run.Operation != *f.Operation {
		return false
	}
	if f.Status != nil && run.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && run.StartTime.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && run.StartTime.After(*f.EndDate) {
		return false
	}
	return true
}

func (r *memRunRepo) Find(_ context.Context, filter domain.SyncRunFilter, page, size int) ([]*domain.SyncRun, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.SyncRun
	for _, run := range r.all() {
		if r.matches(run, filter) {
			matched = append(matched, run)
		}
	}
	total := int64(len(matched))
	if size <= 0 {
		size = 20
	}
	start := page * size
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memRunRepo) RecentByPlatform(_ context.Context, platform domain.Platform) ([]*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncRun
	for _, run := range r.all() {
		if run.Platform == platform {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *memRunRepo) ByStatus(_ context.Context, status domain.SyncStatus) ([]*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncRun
	for _, run := range r.all() {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *memRunRepo) Running(ctx context.Context) ([]*domain.SyncRun, error) {
	return r.ByStatus(ctx, domain.StatusStarted)
}

func (r *memRunRepo) Statistics(_ context.Context, since time.Time) ([]domain.SyncStatistic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[[3]string]int64)
	for _, run := range r.all() {
		if run.StartTime.Before(since) {
			continue
		}
		counts[[3]string{string(run.Platform), string(run.Operation), string(run.Status)}]++
	}
	var out []domain.SyncStatistic
	for key, n := range counts {
		out = append(out, domain.SyncStatistic{
			Platform:  domain.Platform(key[0]),
			Operation: domain.SyncOperation(key[1]),
			Status:    domain.SyncStatus(key[2]),
			Count:     n,
		})
	}
	return out, nil
}

func (r *memRunRepo) CountFailedSince(_ context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, run := range r.all() {
		if run.Status == domain.StatusFailed && !run.StartTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRunRepo) LatestSuccessful(_ context.Context, platform domain.Platform,
	operation domain.SyncOperation, direction domain.SyncDirection) (*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.SyncRun
	for _, run := range r.all() {
		if run.Platform != platform || run.Operation != operation ||
			run.Direction != direction || run.Status != domain.StatusSuccess {
			continue
		}
		if latest == nil || run.StartTime.After(latest.StartTime) {
			latest = run
		}
	}
	return latest, nil
}

func (r *memRunRepo) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	var kept []uuid.UUID
	for _, id := range r.ord {
		run := r.runs[id]
		if run.StartTime.Before(olderThan) && run.Status != domain.StatusStarted {
			delete(r.runs, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	r.ord = kept
	return n, nil
}

type memWebhookRepo struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{seen: make(map[string]struct{})}
}

func (r *memWebhookRepo) InsertIfNovel(_ context.Context, ev *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ev.OrderID + "|" + ev.EventType
	if _, ok := r.seen[key]; ok {
		return false, nil
	}
	r.seen[key] = struct{}{}
	return true, nil
}

func (r *memWebhookRepo) Exists(_ context.Context, orderID, eventType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[orderID+"|"+eventType]
	return ok, nil
}

type memOutbox struct {
	mu     sync.Mutex
	events []primitives.Event
	err    error
}

func (o *memOutbox) Enqueue(_ context.Context, ev primitives.Event) error {
	if o.err != nil {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return nil
}

func (o *memOutbox) byRoutingKey(key string) []primitives.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []primitives.Event
	for _, ev := range o.events {
		if ev.GetRoutingKey() == key {
			out = append(out, ev)
		}
	}
	return out
}

// fakeClient scripts marketplace behavior per test.
type fakeClient struct {
	platform     domain.Platform
	orderPages   []domain.OrderPage
	orderErrs    map[int]error
	returnLines  []domain.OrderLine
	returnsErr   error
	catalogPages []domain.CatalogPage
	catalogErrs  map[int]error
	pushErr      map[string]error
	pushed       map[string]int
	pageSize     int
}

func newFakeClient(platform domain.Platform) *fakeClient {
	return &fakeClient{
		platform: platform,
		pushed:   make(map[string]int),
		pageSize: 25,
	}
}

func (c *fakeClient) Platform() domain.Platform { return c.platform }
func (c *fakeClient) PageSize() int             { return c.pageSize }

func (c *fakeClient) FetchOrders(_ context.Context, _, _ time.Time, page int) (domain.OrderPage, error) {
	if err := c.orderErrs[page]; err != nil {
		return domain.OrderPage{}, err
	}
	if page < 1 || page > len(c.orderPages) {
		return domain.OrderPage{TotalPages: len(c.orderPages)}, nil
	}
	return c.orderPages[page-1], nil
}

func (c *fakeClient) FetchReturns(_ context.Context, _, _ time.Time) ([]domain.OrderLine, error) {
	if c.returnsErr != nil {
		return nil, c.returnsErr
	}
	return c.returnLines, nil
}

func (c *fakeClient) FetchCatalog(_ context.Context, page int) (domain.CatalogPage, error) {
	if err := c.catalogErrs[page]; err != nil {
		return domain.CatalogPage{}, err
	}
	if page < 1 || page > len(c.catalogPages) {
		return domain.CatalogPage{TotalPages: len(c.catalogPages)}, nil
	}
	return c.catalogPages[page-1], nil
}

func (c *fakeClient) PushStock(_ context.Context, productID string, quantity int) error {
	if err := c.pushErr[productID]; err != nil {
		return err
	}
	c.pushed[productID] = quantity
	return nil
}
