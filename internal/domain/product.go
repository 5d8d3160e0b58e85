package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is one catalog entry whose stock we keep consistent across
// platforms. The id is the external part number, not a surrogate key.
type Product struct {
	ID           string
	Name         string
	Brand        string
	Stock        int
	SyncCursorID *uuid.UUID
	UpdatedAtUtc time.Time
}

func NewProduct(id, name, brand string, stock int) *Product {
	return &Product{
		ID:           id,
		Name:         name,
		Brand:        brand,
		Stock:        stock,
		UpdatedAtUtc: time.Now().UTC(),
	}
}

// ApplyOrder subtracts the ordered quantity. The result may go negative:
// the marketplace is the source of truth for what was actually sold, so an
// over-reduction is persisted and surfaced by the caller as a warning
// instead of being rejected.
func (p *Product) ApplyOrder(quantity int) {
	if quantity < 0 {
		quantity = -quantity
	}
	p.Stock -= quantity
	p.UpdatedAtUtc = time.Now().UTC()
}

// ApplyReturn adds the returned quantity back.
func (p *Product) ApplyReturn(quantity int) {
	if quantity < 0 {
		quantity = -quantity
	}
	p.Stock += quantity
	p.UpdatedAtUtc = time.Now().UTC()
}

func (p *Product) Oversold() bool {
	return p.Stock < 0
}

// StampCursor records which sync window touched this product last. The
// outbound push path selects products by this mark.
func (p *Product) StampCursor(cursorID uuid.UUID) {
	id := cursorID
	p.SyncCursorID = &id
	p.UpdatedAtUtc = time.Now().UTC()
}
