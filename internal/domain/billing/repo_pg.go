package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/oplock"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const invCols = `id, invoice_number, patient_id, encounter_id, currency,
	subtotal, discount_total, tax_total, total, amount_paid, amount_due,
	status, note, version_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PatientID, &inv.EncounterID, &inv.Currency,
		&inv.Subtotal, &inv.DiscountTotal, &inv.TaxTotal, &inv.Total, &inv.AmountPaid, &inv.AmountDue,
		&inv.Status, &inv.Note, &inv.VersionID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	inv.ID = uuid.New()
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = "INV-" + inv.ID.String()[:8]
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice (id, invoice_number, patient_id, encounter_id, currency,
			subtotal, discount_total, tax_total, total, amount_paid, amount_due,
			status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		inv.ID, inv.InvoiceNumber, inv.PatientID, inv.EncounterID, inv.Currency,
		inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.Total, inv.AmountPaid, inv.AmountDue,
		inv.Status, inv.Note)
	return err
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE id = $1`, id))
}

func (r *invoiceRepoPG) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE invoice_number = $1`, number))
}

// UpdateGuarded rewrites the money columns only when the row still carries
// the version this unit of work read. A miss re-reads the row so the
// conflict error can name the version it lost to.
func (r *invoiceRepoPG) UpdateGuarded(ctx context.Context, inv *Invoice) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice
		SET amount_paid = $3, amount_due = $4, status = $5, note = $6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2`,
		inv.ID, inv.VersionID, inv.AmountPaid, inv.AmountDue, inv.Status, inv.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		cur, gerr := r.GetByID(ctx, inv.ID)
		if gerr != nil {
			return gerr
		}
		return &oplock.ConflictError{
			Resource: "invoice", ID: inv.ID.String(),
			Expected: inv.VersionID, Actual: cur.VersionID,
		}
	}
	return nil
}

func (r *invoiceRepoPG) List(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if patientID != uuid.Nil {
		args = append(args, patientID)
		where += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM invoice %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		invCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

func (r *invoiceRepoPG) AddLine(ctx context.Context, line *InvoiceLine) error {
	line.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_line (id, invoice_id, description, service_code,
			quantity, unit_price, discount_percent, tax_percent, line_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		line.ID, line.InvoiceID, line.Description, line.ServiceCode,
		line.Quantity, line.UnitPrice, line.DiscountPercent, line.TaxPercent, line.LineTotal)
	return err
}

func (r *invoiceRepoPG) GetLines(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, description, service_code,
			quantity, unit_price, discount_percent, tax_percent, line_total, created_at
		FROM invoice_line WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.ServiceCode,
			&l.Quantity, &l.UnitPrice, &l.DiscountPercent, &l.TaxPercent, &l.LineTotal, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const paymentCols = `id, invoice_id, batch_id, amount, currency, method,
	reference, received_by, note, created_at`

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (id, invoice_id, batch_id, amount, currency, method,
			reference, received_by, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.InvoiceID, p.BatchID, p.Amount, p.Currency, p.Method,
		p.Reference, p.ReceivedBy, p.Note)
	return err
}

func (r *paymentRepoPG) listWhere(ctx context.Context, clause string, arg interface{}) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paymentCols+` FROM payment WHERE `+clause+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.BatchID, &p.Amount, &p.Currency, &p.Method,
			&p.Reference, &p.ReceivedBy, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

func (r *paymentRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	return r.listWhere(ctx, "invoice_id = $1", invoiceID)
}

func (r *paymentRepoPG) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Payment, error) {
	return r.listWhere(ctx, "batch_id = $1", batchID)
}

// =========== Refund Repository ===========

type refundRepoPG struct{ pool *pgxpool.Pool }

func NewRefundRepoPG(pool *pgxpool.Pool) RefundRepository { return &refundRepoPG{pool: pool} }

func (r *refundRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *refundRepoPG) Create(ctx context.Context, ref *Refund) error {
	ref.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO refund (id, invoice_id, amount, reason, method, refunded_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ref.ID, ref.InvoiceID, ref.Amount, ref.Reason, ref.Method, ref.RefundedBy)
	return err
}

func (r *refundRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Refund, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount, reason, method, refunded_by, created_at
		FROM refund WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []*Refund
	for rows.Next() {
		var ref Refund
		if err := rows.Scan(&ref.ID, &ref.InvoiceID, &ref.Amount, &ref.Reason, &ref.Method,
			&ref.RefundedBy, &ref.CreatedAt); err != nil {
			return nil, err
		}
		refunds = append(refunds, &ref)
	}
	return refunds, rows.Err()
}
