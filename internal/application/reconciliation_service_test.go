package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/stocksync-go/internal/domain"
)

type engineFixture struct {
	engine   *ReconciliationEngine
	products *memProductRepo
	cursors  *memCursorRepo
	runs     *memRunRepo
	outbox   *memOutbox
}

func newEngineFixture() *engineFixture {
	products := newMemProductRepo()
	cursors := newMemCursorRepo()
	runs := newMemRunRepo()
	outbox := &memOutbox{}
	engine := NewReconciliationEngine(
		NewStockLedgerService(products),
		NewCursorService(cursors),
		NewSyncRunService(runs, outbox),
		outbox,
		time.Microsecond,
	)
	return &engineFixture{engine: engine, products: products, cursors: cursors, runs: runs, outbox: outbox}
}

func (f *engineFixture) runsByOperation(op domain.SyncOperation) []*domain.SyncRun {
	var out []*domain.SyncRun
	for _, run := range f.runs.all() {
		if run.Operation == op {
			out = append(out, run)
		}
	}
	return out
}

func TestSyncOrdersAppliesPagedLines(t *testing.T) {
	f := newEngineFixture()
	f.products.seed(domain.NewProduct("SKU-1", "Valve", "Sigma", 10))
	f.products.seed(domain.NewProduct("SKU-2", "Pump", "Sigma", 10))

	client := newFakeClient(domain.PlatformEmagRo)
	client.orderPages = []domain.OrderPage{
		{Lines: []domain.OrderLine{{ProductID: "SKU-1", Quantity: 2}}, TotalPages: 2},
		{Lines: []domain.OrderLine{{ProductID: "SKU-2", Quantity: 5}}, TotalPages: 2},
	}

	require.NoError(t, f.engine.SyncOrders(context.Background(), client, "batch-1"))
	assert.Equal(t, 8, f.products.stock("SKU-1"))
	assert.Equal(t, 5, f.products.stock("SKU-2"))

	orders := f.runsByOperation(domain.OperationOrders)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusSuccess, orders[0].Status)
	assert.Equal(t, 2, orders[0].ItemsSuccessful)

	// Window sealed after a clean pull.
	last, err := f.cursors.LastClosed(context.Background(), domain.PlatformEmagRo)
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestSyncOrdersBadMiddlePageChargedAsFailed(t *testing.T) {
	f := newEngineFixture()
	f.products.seed(domain.NewProduct("SKU-1", "Valve", "Sigma", 10))
	f.products.seed(domain.NewProduct("SKU-3", "Hose", "Sigma", 10))

	client := newFakeClient(domain.PlatformEmagRo)
	client.pageSize = 25
	client.orderPages = []domain.OrderPage{
		{Lines: []domain.OrderLine{{ProductID: "SKU-1", Quantity: 1}}, TotalPages: 3},
		{},
		{Lines: []domain.OrderLine{{ProductID: "SKU-3", Quantity: 1}}, TotalPages: 3},
	}
	client.orderErrs = map[int]error{2: errors.New("502 bad gateway")}

	require.NoError(t, f.engine.SyncOrders(context.Background(), client, "batch-1"))

	// The batch survives the bad page: later pages still applied.
	assert.Equal(t, 9, f.products.stock("SKU-1"))
	assert.Equal(t, 9, f.products.stock("SKU-3"))

	orders := f.runsByOperation(domain.OperationOrders)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusPartialSuccess, orders[0].Status)
	assert.Equal(t, 2, orders[0].ItemsSuccessful)
	// The whole expected page was charged as failed.
	assert.Equal(t, 25, orders[0].ItemsFailed)
	assert.Equal(t, 27, orders[0].ItemsProcessed)
}

func TestSyncOrdersFirstPageFailureAbortsAndKeepsCursorOpen(t *testing.T) {
	f := newEngineFixture()
	client := newFakeClient(domain.PlatformBol)
	client.orderErrs = map[int]error{1: errors.New("auth token expired")}

	err := f.engine.SyncOrders(context.Background(), client, "batch-1")
	require.Error(t, err)

	orders := f.runsByOperation(domain.OperationOrders)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.StatusFailed, orders[0].Status)
	assert.Equal(t, "auth token expired", orders[0].ErrorMessage)

	// Cursor stays open so the next trigger re-covers the window.
	last, err := f.cursors.LastClosed(context.Background(), domain.PlatformBol)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSyncReturnsIncreasesStock(t *testing.T) {
	f := newEngineFixture()
	f.products.seed(domain.NewProduct("SKU-1", "Valve", "Sigma", 2))

	client := newFakeClient(domain.PlatformSkroutz)
	client.returnLines = []domain.OrderLine{{ProductID: "SKU-1", Quantity: 3}}

	require.NoError(t, f.engine.SyncReturns(context.Background(), client, "batch-1"))
	assert.Equal(t, 5, f.products.stock("SKU-1"))

	returns := f.runsByOperation(domain.OperationReturns)
	require.Len(t, returns, 1)
	assert.Equal(t, domain.StatusSuccess, returns[0].Status)
}

func TestFullSyncPushesTouchedProductsUnderOneBatch(t *testing.T) {
	f := newEngineFixture()
	f.products.seed(domain.NewProduct("SKU-1", "Valve", "Sigma", 10))

	client := newFakeClient(domain.PlatformSkroutz)
	client.orderPages = []domain.OrderPage{
		{Lines: []domain.OrderLine{{ProductID: "SKU-1", Quantity: 4}}, TotalPages: 1},
	}

	// Pre-open today's cursor so the fixture can resolve it for the
	// outbound SyncedSince query.
	cursor := domain.NewSyncCursor(domain.PlatformSkroutz)
	require.NoError(t, f.cursors.Save(context.Background(), cursor))
	f.products.cursorOpenedAt[cursor.ID] = cursor.ReadAt

	// FullSync stamps SKU-1 with today's cursor during the orders pull,
	// then the outbound leg pushes its fresh stock.
	require.NoError(t, f.engine.FullSync(context.Background(), client))

	assert.Equal(t, 6, f.products.stock("SKU-1"))
	assert.Equal(t, 6, client.pushed["SKU-1"])

	all := f.runs.all()
	require.Len(t, all, 3) // orders, returns, stock push
	batch := all[0].BatchID
	for _, run := range all {
		assert.Equal(t, batch, run.BatchID)
		assert.Equal(t, domain.StatusSuccess, run.Status)
	}

	last, err := f.cursors.LastClosed(context.Background(), domain.PlatformSkroutz)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestFullSyncInboundFailureLeavesCursorOpen(t *testing.T) {
	f := newEngineFixture()
	client := newFakeClient(domain.PlatformMagento)
	client.orderErrs = map[int]error{1: errors.New("503")}

	err := f.engine.FullSync(context.Background(), client)
	require.Error(t, err)

	last, err := f.cursors.LastClosed(context.Background(), domain.PlatformMagento)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestPushStockCountsPerItemFailures(t *testing.T) {
	f := newEngineFixture()
	cursorID := uuid.New()
	f.products.cursorOpenedAt[cursorID] = time.Now().UTC()
	for _, id := range []string{"SKU-1", "SKU-2", "SKU-3"} {
		p := domain.NewProduct(id, id, "Sigma", 5)
		p.StampCursor(cursorID)
		f.products.seed(p)
	}

	client := newFakeClient(domain.PlatformMicroinvest)
	client.pushErr = map[string]error{"SKU-2": errors.New("timeout")}

	require.NoError(t, f.engine.PushStock(context.Background(), client, "batch-1"))

	pushes := f.runsByOperation(domain.OperationStockUpdate)
	require.Len(t, pushes, 1)
	assert.Equal(t, domain.StatusPartialSuccess, pushes[0].Status)
	assert.Equal(t, 2, pushes[0].ItemsSuccessful)
	assert.Equal(t, 1, pushes[0].ItemsFailed)
	assert.Equal(t, 5, client.pushed["SKU-1"])
	assert.Equal(t, 5, client.pushed["SKU-3"])
}

func TestImportProductsCreatesAndRefreshes(t *testing.T) {
	f := newEngineFixture()
	f.products.seed(domain.NewProduct("SKU-1", "Old", "Sigma", 2))

	client := newFakeClient(domain.PlatformMagento)
	client.catalogPages = []domain.CatalogPage{
		{Items: []domain.CatalogItem{
			{ProductID: "SKU-1", Name: "Refreshed", Brand: "Sigma", Stock: 7},
			{ProductID: "SKU-2", Name: "Brand new", Brand: "Sigma", Stock: 3},
		}, TotalPages: 1},
	}

	require.NoError(t, f.engine.ImportProducts(context.Background(), client, "batch-1"))
	assert.Equal(t, 7, f.products.stock("SKU-1"))
	assert.Equal(t, 3, f.products.stock("SKU-2"))

	imports := f.runsByOperation(domain.OperationProductImport)
	require.Len(t, imports, 1)
	assert.Equal(t, domain.StatusSuccess, imports[0].Status)
	assert.Equal(t, 2, imports[0].ItemsSuccessful)
	assert.Contains(t, imports[0].Details, "1 products created")
}
