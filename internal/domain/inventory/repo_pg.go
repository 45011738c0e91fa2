package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// statusCase renders the derived-status expression over the given stock
// expression, so every statement that moves stock recomputes the status in
// the same breath.
func statusCase(stockExpr string) string {
	return fmt.Sprintf(`CASE WHEN %[1]s <= 0 THEN 'out-of-stock'
		WHEN %[1]s <= reorder_level THEN 'low-stock'
		ELSE 'in-stock' END`, stockExpr)
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository { return &itemRepoPG{pool: pool} }

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const itemCols = `id, sku, name, category, unit, current_stock, reorder_level,
	status, unit_cost, currency, version_id, created_at, updated_at`

func scanItem(row pgx.Row) (*StockItem, error) {
	var s StockItem
	err := row.Scan(&s.ID, &s.SKU, &s.Name, &s.Category, &s.Unit, &s.CurrentStock, &s.ReorderLevel,
		&s.Status, &s.UnitCost, &s.Currency, &s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return &s, err
}

func (r *itemRepoPG) Create(ctx context.Context, item *StockItem) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_item (id, sku, name, category, unit, current_stock,
			reorder_level, status, unit_cost, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		item.ID, item.SKU, item.Name, item.Category, item.Unit, item.CurrentStock,
		item.ReorderLevel, item.Status, item.UnitCost, item.Currency)
	return err
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM stock_item WHERE id = $1`, id))
}

func (r *itemRepoPG) GetBySKU(ctx context.Context, sku string) (*StockItem, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM stock_item WHERE sku = $1`, sku))
}

func (r *itemRepoPG) List(ctx context.Context, category, status string, limit, offset int) ([]*StockItem, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if category != "" {
		args = append(args, category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM stock_item `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM stock_item %s ORDER BY name LIMIT $%d OFFSET $%d`,
		itemCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*StockItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// AdjustGuarded moves the stock and recomputes the derived status in one
// statement, guarded by the resulting stock staying non-negative. The miss
// path re-reads the row to report the availability the guard saw.
func (r *itemRepoPG) AdjustGuarded(ctx context.Context, id uuid.UUID, delta int) (*StockItem, error) {
	query := `
		UPDATE stock_item
		SET current_stock = current_stock + $2,
			status = ` + statusCase("current_stock + $2") + `,
			version_id = version_id + 1,
			updated_at = NOW()
		WHERE id = $1 AND current_stock + $2 >= 0
		RETURNING ` + itemCols
	item, err := scanItem(r.conn(ctx).QueryRow(ctx, query, id, delta))
	if !errors.Is(err, ErrItemNotFound) {
		return item, err
	}

	cur, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	if delta < 0 {
		return nil, newInsufficientStock(id, -delta, cur.CurrentStock)
	}
	return nil, fmt.Errorf("stock adjust for item %s affected no rows", id)
}

// RecountStock rewrites current_stock as the sum of the item's remaining
// active batches.
func (r *itemRepoPG) RecountStock(ctx context.Context, id uuid.UUID) (*StockItem, error) {
	query := `
		UPDATE stock_item
		SET current_stock = b.total,
			status = ` + statusCase("b.total") + `,
			version_id = version_id + 1,
			updated_at = NOW()
		FROM (SELECT COALESCE(SUM(quantity), 0) AS total
			FROM stock_batch WHERE item_id = $1 AND status = 'active') b
		WHERE id = $1
		RETURNING ` + itemCols
	return scanItem(r.conn(ctx).QueryRow(ctx, query, id))
}

func (r *itemRepoPG) RecordAdjustment(ctx context.Context, adj *StockAdjustment) error {
	adj.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_adjustment (id, item_id, delta, reason)
		VALUES ($1,$2,$3,$4)`,
		adj.ID, adj.ItemID, adj.Delta, adj.Reason)
	return err
}

func (r *itemRepoPG) ListAdjustments(ctx context.Context, itemID uuid.UUID) ([]*StockAdjustment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, item_id, delta, reason, created_at
		FROM stock_adjustment WHERE item_id = $1 ORDER BY created_at DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []*StockAdjustment
	for rows.Next() {
		var adj StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.ItemID, &adj.Delta, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, &adj)
	}
	return adjustments, rows.Err()
}

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

func (r *batchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const batchCols = `id, item_id, lot_number, quantity, received_quantity,
	expires_at, status, created_at, updated_at`

func scanBatch(row pgx.Row) (*StockBatch, error) {
	var b StockBatch
	err := row.Scan(&b.ID, &b.ItemID, &b.LotNumber, &b.Quantity, &b.ReceivedQuantity,
		&b.ExpiresAt, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *batchRepoPG) Insert(ctx context.Context, b *StockBatch) error {
	b.ID = uuid.New()
	b.Status = BatchStatusActive
	b.ReceivedQuantity = b.Quantity
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_batch (id, item_id, lot_number, quantity, received_quantity, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.ID, b.ItemID, b.LotNumber, b.Quantity, b.ReceivedQuantity, b.ExpiresAt, b.Status)
	return err
}

func (r *batchRepoPG) listBatches(ctx context.Context, query string, itemID uuid.UUID) ([]*StockBatch, error) {
	rows, err := r.conn(ctx).Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*StockBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *batchRepoPG) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*StockBatch, error) {
	return r.listBatches(ctx, `SELECT `+batchCols+` FROM stock_batch
		WHERE item_id = $1 ORDER BY expires_at ASC NULLS LAST, id ASC`, itemID)
}

// ActiveForUpdate locks the item's live batches in first-expiry-first-out
// order: soonest expiry first, never-expiring lots last.
func (r *batchRepoPG) ActiveForUpdate(ctx context.Context, itemID uuid.UUID) ([]*StockBatch, error) {
	return r.listBatches(ctx, `SELECT `+batchCols+` FROM stock_batch
		WHERE item_id = $1 AND status = 'active' AND quantity > 0
		ORDER BY expires_at ASC NULLS LAST, id ASC
		FOR UPDATE`, itemID)
}

func (r *batchRepoPG) Consume(ctx context.Context, batchID uuid.UUID, take int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_batch
		SET quantity = quantity - $2,
			status = CASE WHEN quantity - $2 <= 0 THEN 'depleted' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND quantity >= $2`,
		batchID, take)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: remaining quantity below requested %d", batchID, take)
	}
	return nil
}

// =========== Reservation Repository ===========

type reservationRepoPG struct{ pool *pgxpool.Pool }

func NewReservationRepoPG(pool *pgxpool.Pool) ReservationRepository { return &reservationRepoPG{pool: pool} }

func (r *reservationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// InsertGuarded inserts the reservation only while unreserved stock covers
// it. Held quantity counts active rows that have not lapsed yet, so an
// expired hold frees its stock without waiting for the sweep.
func (r *reservationRepoPG) InsertGuarded(ctx context.Context, res *Reservation) (bool, error) {
	res.ID = uuid.New()
	res.Status = ReservationStatusActive
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO stock_reservation (id, item_id, quantity, reference, status, expires_at)
		SELECT $1, $2, $3, $4, 'active', $5
		WHERE (SELECT current_stock FROM stock_item WHERE id = $2)
			- COALESCE((SELECT SUM(quantity) FROM stock_reservation
				WHERE item_id = $2 AND status = 'active' AND expires_at > NOW()), 0) >= $3`,
		res.ID, res.ItemID, res.Quantity, res.Reference, res.ExpiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *reservationRepoPG) Release(ctx context.Context, itemID uuid.UUID, reference string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_reservation
		SET status = 'released', released_at = NOW()
		WHERE item_id = $1 AND reference = $2 AND status = 'active'`,
		itemID, reference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *reservationRepoPG) ExpireLapsed(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_reservation
		SET status = 'expired'
		WHERE item_id = $1 AND status = 'active' AND expires_at <= NOW()`,
		itemID)
	return err
}

func (r *reservationRepoPG) HeldQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	var held int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM stock_reservation
		WHERE item_id = $1 AND status = 'active' AND expires_at > NOW()`,
		itemID).Scan(&held)
	return held, err
}

func (r *reservationRepoPG) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*Reservation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, item_id, quantity, reference, status, expires_at, released_at, created_at
		FROM stock_reservation WHERE item_id = $1 ORDER BY created_at DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []*Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ItemID, &res.Quantity, &res.Reference, &res.Status,
			&res.ExpiresAt, &res.ReleasedAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, &res)
	}
	return reservations, rows.Err()
}
