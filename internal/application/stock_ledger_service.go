package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/marketsync/stocksync-go/internal/domain"
	"github.com/marketsync/stocksync-go/internal/metrics"
)

// StockLedgerService owns every stock mutation. Each successful mutation is
// persisted immediately so a reader mid-run always sees a consistent
// single-product view; no cross-product atomicity is provided.
type StockLedgerService struct {
	products domain.ProductRepository
}

func NewStockLedgerService(products domain.ProductRepository) *StockLedgerService {
	return &StockLedgerService{products: products}
}

// ReduceByOrder subtracts an ordered quantity. A product we do not carry is
// logged and skipped, not an error: upstream feeds routinely reference only
// a subset of the catalog. The skipped return tells the caller whether the
// mutation actually happened.
func (s *StockLedgerService) ReduceByOrder(ctx context.Context, productID string, quantity int) (skipped bool, err error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return false, err
	}
	if p == nil {
		log.Printf("StockLedger: product %s not found, skipping order reduction", productID)
		return true, nil
	}

	p.ApplyOrder(quantity)
	if p.Oversold() {
		// Over-reduction is persisted and surfaced, not rejected: the
		// platform already sold the unit.
		log.Printf("StockLedger: insufficient stock for product %s, stock now %d", productID, p.Stock)
	}
	if err := s.products.Upsert(ctx, p); err != nil {
		return false, err
	}
	metrics.StockAdjustments.WithLabelValues("order").Inc()
	return false, nil
}

// IncreaseByReturn adds a returned quantity back.
func (s *StockLedgerService) IncreaseByReturn(ctx context.Context, productID string, quantity int) (skipped bool, err error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return false, err
	}
	if p == nil {
		log.Printf("StockLedger: product %s not found, skipping return increase", productID)
		return true, nil
	}

	p.ApplyReturn(quantity)
	if err := s.products.Upsert(ctx, p); err != nil {
		return false, err
	}
	metrics.StockAdjustments.WithLabelValues("return").Inc()
	return false, nil
}

// SetLastSync stamps the product with the cursor that most recently touched
// it. Downstream "what changed since yesterday" queries select on this mark.
func (s *StockLedgerService) SetLastSync(ctx context.Context, productID string, cursorID uuid.UUID) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		log.Printf("StockLedger: no product %s to stamp with sync cursor", productID)
		return nil
	}
	p.StampCursor(cursorID)
	return s.products.Upsert(ctx, p)
}

// AdminSetStock is the operator path. Here the product id is caller
// supplied, so a missing product is an error instead of a skip.
func (s *StockLedgerService) AdminSetStock(ctx context.Context, productID string, stock int) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("set stock for %s: %w", productID, domain.ErrProductNotFound)
	}
	p.Stock = stock
	return s.products.Upsert(ctx, p)
}

// CreateProduct registers a new catalog entry.
func (s *StockLedgerService) CreateProduct(ctx context.Context, id, name, brand string, stock int) (*domain.Product, error) {
	existing, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("create product %s: %w", id, domain.ErrProductExists)
	}
	p := domain.NewProduct(id, name, brand, stock)
	if err := s.products.Upsert(ctx, p); err != nil {
		return nil, err
	}
	log.Printf("StockLedger: product %s created", id)
	return p, nil
}

// UpsertFromImport creates or refreshes a product from a platform catalog
// page. Existing products keep their ledger stock only when the import
// carries none.
func (s *StockLedgerService) UpsertFromImport(ctx context.Context, item domain.CatalogItem) (created bool, err error) {
	existing, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		existing.Name = item.Name
		existing.Brand = item.Brand
		existing.Stock = item.Stock
		return false, s.products.Upsert(ctx, existing)
	}
	p := domain.NewProduct(item.ProductID, item.Name, item.Brand, item.Stock)
	return true, s.products.Upsert(ctx, p)
}

// GetProduct returns the current ledger row, nil when absent.
func (s *StockLedgerService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.products.GetByID(ctx, productID)
}

// SyncedSince returns the products touched by any cursor opened at or after
// the given time.
func (s *StockLedgerService) SyncedSince(ctx context.Context, since time.Time) ([]*domain.Product, error) {
	return s.products.SyncedSince(ctx, since)
}
