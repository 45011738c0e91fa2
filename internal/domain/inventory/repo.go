package inventory

import (
	"context"

	"github.com/google/uuid"
)

// ItemRepository provides access to stock items and the adjustment audit
// trail.
//
// AdjustGuarded is the single-statement guard at the heart of the ledger:
// it moves current_stock by delta, recomputes the derived status and bumps
// the version, all conditional on the resulting stock staying non-negative.
// A refused movement surfaces as InsufficientStockError with the freshly
// read availability. RecountStock rewrites current_stock from the remaining
// active batches after a dispense.
type ItemRepository interface {
	Create(ctx context.Context, item *StockItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*StockItem, error)
	GetBySKU(ctx context.Context, sku string) (*StockItem, error)
	List(ctx context.Context, category, status string, limit, offset int) ([]*StockItem, int, error)
	AdjustGuarded(ctx context.Context, id uuid.UUID, delta int) (*StockItem, error)
	RecountStock(ctx context.Context, id uuid.UUID) (*StockItem, error)
	RecordAdjustment(ctx context.Context, adj *StockAdjustment) error
	ListAdjustments(ctx context.Context, itemID uuid.UUID) ([]*StockAdjustment, error)
}

// BatchRepository provides access to stock batches. ActiveForUpdate returns
// the item's live batches in first-expiry-first-out order and locks them
// for the rest of the unit of work; Consume takes quantity out of one batch
// and flips it to depleted when it hits zero.
type BatchRepository interface {
	Insert(ctx context.Context, b *StockBatch) error
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*StockBatch, error)
	ActiveForUpdate(ctx context.Context, itemID uuid.UUID) ([]*StockBatch, error)
	Consume(ctx context.Context, batchID uuid.UUID, take int) error
}

// ReservationRepository provides access to stock reservations.
//
// InsertGuarded inserts only while the item's unreserved stock covers the
// requested quantity, counting active, unexpired holds; it reports whether
// the row went in. ExpireLapsed is the lazy sweep flipping overdue active
// rows to expired.
type ReservationRepository interface {
	InsertGuarded(ctx context.Context, r *Reservation) (bool, error)
	Release(ctx context.Context, itemID uuid.UUID, reference string) error
	ExpireLapsed(ctx context.Context, itemID uuid.UUID) error
	HeldQuantity(ctx context.Context, itemID uuid.UUID) (int, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*Reservation, error)
}
