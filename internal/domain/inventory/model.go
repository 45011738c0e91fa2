package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stock item statuses, derived from current_stock against reorder_level.
// They are recomputed inside the same statement that moves the stock and
// are never set by hand.
const (
	StockStatusInStock    = "in-stock"
	StockStatusLowStock   = "low-stock"
	StockStatusOutOfStock = "out-of-stock"
)

// Batch statuses. A batch is depleted when its remaining quantity reaches
// zero; depleted batches never come back.
const (
	BatchStatusActive   = "active"
	BatchStatusDepleted = "depleted"
)

// Reservation statuses. Active reservations past their expiry stop counting
// against availability immediately; the row is flipped to expired lazily on
// the next reserve touching the item.
const (
	ReservationStatusActive   = "active"
	ReservationStatusReleased = "released"
	ReservationStatusExpired  = "expired"
)

// ErrItemNotFound is returned when a stock item id or SKU matches no row.
var ErrItemNotFound = errors.New("stock item not found")

// ErrReservationNotFound is returned when no active reservation matches the
// item and reference.
var ErrReservationNotFound = errors.New("reservation not found")

// StockItem maps to the stock_item table. current_stock is the on-hand
// aggregate: the guarded adjust moves it directly, a dispense recomputes it
// from the remaining active batches.
type StockItem struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SKU          string    `db:"sku" json:"sku"`
	Name         string    `db:"name" json:"name"`
	Category     *string   `db:"category" json:"category,omitempty"`
	Unit         string    `db:"unit" json:"unit"`
	CurrentStock int       `db:"current_stock" json:"current_stock"`
	ReorderLevel int       `db:"reorder_level" json:"reorder_level"`
	Status       string    `db:"status" json:"status"`
	UnitCost     int64     `db:"unit_cost" json:"unit_cost"`
	Currency     string    `db:"currency" json:"currency"`
	VersionID    int       `db:"version_id" json:"version_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (s *StockItem) GetVersionID() int { return s.VersionID }

// SetVersionID sets the current version.
func (s *StockItem) SetVersionID(v int) { s.VersionID = v }

// stockStatus derives the item status from the on-hand quantity.
func stockStatus(current, reorderLevel int) string {
	switch {
	case current <= 0:
		return StockStatusOutOfStock
	case current <= reorderLevel:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// StockBatch maps to the stock_batch table. quantity is what remains;
// expires_at may be null for non-perishables, which dispense consumes last.
type StockBatch struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ItemID           uuid.UUID  `db:"item_id" json:"item_id"`
	LotNumber        string     `db:"lot_number" json:"lot_number"`
	Quantity         int        `db:"quantity" json:"quantity"`
	ReceivedQuantity int        `db:"received_quantity" json:"received_quantity"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Status           string     `db:"status" json:"status"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Reservation maps to the stock_reservation table. A reservation holds
// quantity against availability until it is released or expires; it never
// moves current_stock.
type Reservation struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ItemID     uuid.UUID  `db:"item_id" json:"item_id"`
	Quantity   int        `db:"quantity" json:"quantity"`
	Reference  string     `db:"reference" json:"reference"`
	Status     string     `db:"status" json:"status"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	ReleasedAt *time.Time `db:"released_at" json:"released_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// StockAdjustment maps to the stock_adjustment table, the audit trail of
// manual stock corrections.
type StockAdjustment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ItemID    uuid.UUID `db:"item_id" json:"item_id"`
	Delta     int       `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BatchAllocation records how much of a dispense came out of one batch.
type BatchAllocation struct {
	BatchID   uuid.UUID  `json:"batch_id"`
	LotNumber string     `json:"lot_number"`
	Quantity  int        `json:"quantity"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// DispenseResult is the outcome of one all-or-nothing dispense.
type DispenseResult struct {
	Item          *StockItem        `json:"item"`
	DispensedFrom []BatchAllocation `json:"dispensed_from"`
}

// UsageLine is one item consumed during a procedure.
type UsageLine struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// UsageOutcome is one usage line that dispensed successfully.
type UsageOutcome struct {
	ItemID        uuid.UUID         `json:"item_id"`
	Quantity      int               `json:"quantity"`
	DispensedFrom []BatchAllocation `json:"dispensed_from"`
}

// UsageFailure is one usage line that could not be dispensed.
type UsageFailure struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Reason   string    `json:"reason"`
}

// BatchResult itemizes a best-effort usage recording: every line lands in
// exactly one of the two lists, and a failed line never blocks its
// siblings.
type BatchResult struct {
	Succeeded []UsageOutcome `json:"succeeded"`
	Failed    []UsageFailure `json:"failed"`
}

// InsufficientStockError reports a stock movement the guard refused. It
// carries what was asked, what was actually available, and how far short
// the request fell.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Requested int
	Available int
	Shortfall int
}

func newInsufficientStock(itemID uuid.UUID, requested, available int) *InsufficientStockError {
	return &InsufficientStockError{ItemID: itemID, Requested: requested, Available: available, Shortfall: requested - available}
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d (short %d)",
		e.ItemID, e.Requested, e.Available, e.Shortfall)
}

// IsInsufficientStock reports whether the error chain contains a stock
// guard rejection.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}
