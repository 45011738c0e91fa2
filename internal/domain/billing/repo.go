package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrInvoiceNotFound is returned when an invoice id or number matches no row.
var ErrInvoiceNotFound = errors.New("invoice not found")

// InvoiceRepository provides access to invoices and their lines.
//
// UpdateGuarded is the only write path for the protected columns
// (amount_paid, amount_due, status, version_id): it matches the version the
// row had when this unit of work read it and bumps it by exactly one. A
// zero-row update means another writer got there first and surfaces as an
// oplock.ConflictError.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	UpdateGuarded(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error)
	AddLine(ctx context.Context, line *InvoiceLine) error
	GetLines(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLine, error)
}

// PaymentRepository records and lists payment rows. Rows are append-only.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Payment, error)
}

// RefundRepository records and lists refund rows. Rows are append-only.
type RefundRepository interface {
	Create(ctx context.Context, r *Refund) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Refund, error)
}
