package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/telemetry"
)

type Service struct {
	items               ItemRepository
	batches             BatchRepository
	reservations        ReservationRepository
	coord               *db.Coordinator
	defaultReorderLevel int
}

func NewService(items ItemRepository, batches BatchRepository, reservations ReservationRepository, coord *db.Coordinator) *Service {
	return &Service{items: items, batches: batches, reservations: reservations, coord: coord}
}

// SetDefaultReorderLevel sets the reorder threshold applied to new items
// created without one.
func (s *Service) SetDefaultReorderLevel(level int) {
	if level > 0 {
		s.defaultReorderLevel = level
	}
}

func (s *Service) CreateItem(ctx context.Context, item *StockItem) error {
	if item.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.CurrentStock < 0 {
		return fmt.Errorf("current_stock cannot be negative, got %d", item.CurrentStock)
	}
	if item.ReorderLevel < 0 {
		return fmt.Errorf("reorder_level cannot be negative, got %d", item.ReorderLevel)
	}
	if item.ReorderLevel == 0 {
		item.ReorderLevel = s.defaultReorderLevel
	}
	if item.Unit == "" {
		item.Unit = "each"
	}
	item.Status = stockStatus(item.CurrentStock, item.ReorderLevel)
	if err := s.items.Create(ctx, item); err != nil {
		return err
	}
	item.VersionID = 1
	return nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (*StockItem, error) {
	return s.items.GetBySKU(ctx, sku)
}

func (s *Service) ListItems(ctx context.Context, category, status string, limit, offset int) ([]*StockItem, int, error) {
	return s.items.List(ctx, category, status, limit, offset)
}

// Adjust moves stock by delta with an audit row. The movement itself is one
// guarded statement, so two concurrent withdrawals can never drive the
// stock negative: the second one loses the guard and gets
// InsufficientStockError.
func (s *Service) Adjust(ctx context.Context, itemID uuid.UUID, delta int, reason string) (*StockItem, error) {
	if delta == 0 {
		return nil, fmt.Errorf("delta must be non-zero")
	}
	if reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	var item *StockItem
	err := s.coord.Run(ctx, "stock.adjust", func(ctx context.Context) error {
		var err error
		item, err = s.items.AdjustGuarded(ctx, itemID, delta)
		if err != nil {
			return err
		}
		return s.items.RecordAdjustment(ctx, &StockAdjustment{ItemID: itemID, Delta: delta, Reason: reason})
	})
	if err != nil {
		if IsInsufficientStock(err) {
			telemetry.AddConflict("stock_item", "stock")
		}
		return nil, err
	}
	return item, nil
}

// Dispense takes quantity out of the item's batches, soonest expiry first.
// The whole quantity comes out or none of it does: availability is checked
// against the locked batches before anything is consumed, and the item's
// stock and status are recomputed from what remains.
func (s *Service) Dispense(ctx context.Context, itemID uuid.UUID, quantity int) (*DispenseResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var result *DispenseResult
	err := s.coord.Run(ctx, "stock.dispense", func(ctx context.Context) error {
		if _, err := s.items.GetByID(ctx, itemID); err != nil {
			return err
		}

		batches, err := s.batches.ActiveForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		available := 0
		for _, b := range batches {
			available += b.Quantity
		}
		if available < quantity {
			return newInsufficientStock(itemID, quantity, available)
		}

		allocations := make([]BatchAllocation, 0, len(batches))
		remaining := quantity
		for _, b := range batches {
			if remaining == 0 {
				break
			}
			take := b.Quantity
			if take > remaining {
				take = remaining
			}
			if err := s.batches.Consume(ctx, b.ID, take); err != nil {
				return err
			}
			allocations = append(allocations, BatchAllocation{
				BatchID: b.ID, LotNumber: b.LotNumber, Quantity: take, ExpiresAt: b.ExpiresAt,
			})
			remaining -= take
		}

		item, err := s.items.RecountStock(ctx, itemID)
		if err != nil {
			return err
		}
		result = &DispenseResult{Item: item, DispensedFrom: allocations}
		return nil
	})
	if err != nil {
		if IsInsufficientStock(err) {
			telemetry.AddConflict("stock_item", "stock")
		}
		return nil, err
	}
	return result, nil
}

// Reserve holds quantity against the item for a surgery or order without
// moving stock. The insert carries its own availability guard; lapsed holds
// are swept first so they free their stock.
func (s *Service) Reserve(ctx context.Context, itemID uuid.UUID, quantity int, reference string, expiresAt time.Time) (*Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	res := &Reservation{ItemID: itemID, Quantity: quantity, Reference: reference, ExpiresAt: expiresAt}
	err := s.coord.Run(ctx, "stock.reserve", func(ctx context.Context) error {
		item, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.reservations.ExpireLapsed(ctx, itemID); err != nil {
			return err
		}
		inserted, err := s.reservations.InsertGuarded(ctx, res)
		if err != nil {
			return err
		}
		if !inserted {
			held, err := s.reservations.HeldQuantity(ctx, itemID)
			if err != nil {
				return err
			}
			return newInsufficientStock(itemID, quantity, item.CurrentStock-held)
		}
		return nil
	})
	if err != nil {
		if IsInsufficientStock(err) {
			telemetry.AddConflict("stock_item", "stock")
		}
		return nil, err
	}
	return res, nil
}

// Release frees an active hold by its reference.
func (s *Service) Release(ctx context.Context, itemID uuid.UUID, reference string) error {
	if reference == "" {
		return fmt.Errorf("reference is required")
	}
	return s.reservations.Release(ctx, itemID, reference)
}

// RecordSurgicalUsage dispenses each line independently and reports
// per-line outcomes. A line that cannot be filled lands in Failed with its
// reason and never blocks the others.
func (s *Service) RecordSurgicalUsage(ctx context.Context, lines []UsageLine) *BatchResult {
	result := &BatchResult{Succeeded: []UsageOutcome{}, Failed: []UsageFailure{}}
	for _, line := range lines {
		dispensed, err := s.Dispense(ctx, line.ItemID, line.Quantity)
		if err != nil {
			result.Failed = append(result.Failed, UsageFailure{
				ItemID: line.ItemID, Quantity: line.Quantity, Reason: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, UsageOutcome{
			ItemID: line.ItemID, Quantity: line.Quantity, DispensedFrom: dispensed.DispensedFrom,
		})
	}
	return result
}

// ReceiveBatch books a delivered lot in and raises the item's stock in the
// same unit of work.
func (s *Service) ReceiveBatch(ctx context.Context, batch *StockBatch) (*StockItem, error) {
	if batch.ItemID == uuid.Nil {
		return nil, fmt.Errorf("item_id is required")
	}
	if batch.LotNumber == "" {
		return nil, fmt.Errorf("lot_number is required")
	}
	if batch.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", batch.Quantity)
	}
	if batch.ExpiresAt != nil && !batch.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("expires_at must be in the future")
	}

	var item *StockItem
	err := s.coord.Run(ctx, "stock.receive", func(ctx context.Context) error {
		if err := s.batches.Insert(ctx, batch); err != nil {
			return err
		}
		var err error
		item, err = s.items.AdjustGuarded(ctx, batch.ItemID, batch.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) ListBatches(ctx context.Context, itemID uuid.UUID) ([]*StockBatch, error) {
	return s.batches.ListByItem(ctx, itemID)
}

func (s *Service) ListReservations(ctx context.Context, itemID uuid.UUID) ([]*Reservation, error) {
	return s.reservations.ListByItem(ctx, itemID)
}

func (s *Service) ListAdjustments(ctx context.Context, itemID uuid.UUID) ([]*StockAdjustment, error) {
	return s.items.ListAdjustments(ctx, itemID)
}
