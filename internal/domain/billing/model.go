package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses. Lifecycle: issued -> partial -> paid, with refunded,
// cancelled and voided as terminal branches. cancelled and voided invoices
// accept no further money movement.
const (
	StatusIssued    = "issued"
	StatusPartial   = "partial"
	StatusPaid      = "paid"
	StatusRefunded  = "refunded"
	StatusCancelled = "cancelled"
	StatusVoided    = "voided"
)

var validInvoiceStatuses = map[string]bool{
	StatusIssued: true, StatusPartial: true, StatusPaid: true,
	StatusRefunded: true, StatusCancelled: true, StatusVoided: true,
}

// Invoice maps to the invoice table. All monetary columns hold integer
// amounts in the currency's smallest unit; amount_due is always
// total - amount_paid and both are rewritten together under the version
// guard, never patched independently.
type Invoice struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	InvoiceNumber string     `db:"invoice_number" json:"invoice_number"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID   *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	Currency      string     `db:"currency" json:"currency"`
	Subtotal      int64      `db:"subtotal" json:"subtotal"`
	DiscountTotal int64      `db:"discount_total" json:"discount_total"`
	TaxTotal      int64      `db:"tax_total" json:"tax_total"`
	Total         int64      `db:"total" json:"total"`
	AmountPaid    int64      `db:"amount_paid" json:"amount_paid"`
	AmountDue     int64      `db:"amount_due" json:"amount_due"`
	Status        string     `db:"status" json:"status"`
	Note          *string    `db:"note" json:"note,omitempty"`
	VersionID     int        `db:"version_id" json:"version_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (i *Invoice) GetVersionID() int { return i.VersionID }

// SetVersionID sets the current version.
func (i *Invoice) SetVersionID(v int) { i.VersionID = v }

// Terminal reports whether the invoice accepts no further money movement.
func (i *Invoice) Terminal() bool {
	return i.Status == StatusCancelled || i.Status == StatusVoided
}

// InvoiceLine maps to the invoice_line table. unit_price and line_total are
// smallest-unit amounts; discount and tax percentages apply per line, in
// that order, rounding after each step.
type InvoiceLine struct {
	ID              uuid.UUID `db:"id" json:"id"`
	InvoiceID       uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Description     string    `db:"description" json:"description"`
	ServiceCode     *string   `db:"service_code" json:"service_code,omitempty"`
	Quantity        int       `db:"quantity" json:"quantity"`
	UnitPrice       int64     `db:"unit_price" json:"unit_price"`
	DiscountPercent float64   `db:"discount_percent" json:"discount_percent"`
	TaxPercent      float64   `db:"tax_percent" json:"tax_percent"`
	LineTotal       int64     `db:"line_total" json:"line_total"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Payment maps to the payment table. Rows are append-only; correcting a
// payment means recording a refund, never editing the row. batch_id groups
// the payments recorded by one allocation run.
type Payment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	InvoiceID  uuid.UUID `db:"invoice_id" json:"invoice_id"`
	BatchID    uuid.UUID `db:"batch_id" json:"batch_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Currency   string    `db:"currency" json:"currency"`
	Method     string    `db:"method" json:"method"`
	Reference  *string   `db:"reference" json:"reference,omitempty"`
	ReceivedBy *string   `db:"received_by" json:"received_by,omitempty"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Refund maps to the refund table. Append-only audit trail; reason is
// mandatory.
type Refund struct {
	ID         uuid.UUID `db:"id" json:"id"`
	InvoiceID  uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Reason     string    `db:"reason" json:"reason"`
	Method     string    `db:"method" json:"method"`
	RefundedBy *string   `db:"refunded_by" json:"refunded_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AllocationRequest is one invoice's share of a batch payment. The expected
// version is the version the caller last read; allocation is rejected when
// the invoice has moved past it.
type AllocationRequest struct {
	InvoiceID       uuid.UUID `json:"invoice_id"`
	Amount          int64     `json:"amount"`
	ExpectedVersion int       `json:"expected_version"`
}

// PaymentDetails carries the fields shared by every payment in a batch.
type PaymentDetails struct {
	Method     string  `json:"method"`
	Reference  *string `json:"reference,omitempty"`
	ReceivedBy *string `json:"received_by,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// AllocationError reports an allocation the invoice's current state cannot
// accept: a non-positive amount, an amount past what is due, or a terminal
// invoice. It aborts the whole batch.
type AllocationError struct {
	InvoiceID uuid.UUID
	Reason    string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation to invoice %s rejected: %s", e.InvoiceID, e.Reason)
}

// RefundError reports a refund the invoice's current state cannot accept.
type RefundError struct {
	InvoiceID uuid.UUID
	Reason    string
}

func (e *RefundError) Error() string {
	return fmt.Sprintf("refund on invoice %s rejected: %s", e.InvoiceID, e.Reason)
}

// deriveStatus recomputes the payment status from the amounts. Terminal
// statuses are assigned explicitly by their operations, never derived.
func deriveStatus(paid, due int64) string {
	switch {
	case due <= 0:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusIssued
	}
}
