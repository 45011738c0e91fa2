package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/money"
	"github.com/clinicore/clinicore/internal/platform/oplock"
	"github.com/clinicore/clinicore/internal/platform/telemetry"
)

type Service struct {
	invoices InvoiceRepository
	payments PaymentRepository
	refunds  RefundRepository
	coord    *db.Coordinator
}

func NewService(inv InvoiceRepository, pay PaymentRepository, ref RefundRepository, coord *db.Coordinator) *Service {
	return &Service{invoices: inv, payments: pay, refunds: ref, coord: coord}
}

// CreateInvoice prices the lines and persists the invoice with its lines as
// one unit of work. Each line applies its discount and then its tax to the
// quantity-extended price, rounding after every step; the invoice totals
// are sums of the already-rounded line figures.
func (s *Service) CreateInvoice(ctx context.Context, inv *Invoice, lines []*InvoiceLine) error {
	if inv.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if inv.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if len(lines) == 0 {
		return fmt.Errorf("at least one invoice line is required")
	}
	for _, line := range lines {
		if line.Description == "" {
			return fmt.Errorf("line description is required")
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("line quantity must be positive, got %d", line.Quantity)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("line unit price cannot be negative, got %d", line.UnitPrice)
		}
	}

	inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.Total = 0, 0, 0, 0
	for _, line := range lines {
		base := money.Multiply(line.UnitPrice, float64(line.Quantity))
		discounted := money.ApplyDiscount(base, line.DiscountPercent)
		taxed := money.AddTax(discounted, line.TaxPercent)
		line.LineTotal = taxed.Gross

		inv.Subtotal = money.Add(inv.Subtotal, base)
		inv.DiscountTotal = money.Add(inv.DiscountTotal, money.Subtract(base, discounted))
		inv.TaxTotal = money.Add(inv.TaxTotal, taxed.Tax)
		inv.Total = money.Add(inv.Total, taxed.Gross)
	}
	inv.AmountPaid = 0
	inv.AmountDue = inv.Total
	inv.Status = StatusIssued

	err := s.coord.Run(ctx, "invoice.create", func(ctx context.Context) error {
		if err := s.invoices.Create(ctx, inv); err != nil {
			return err
		}
		for _, line := range lines {
			line.InvoiceID = inv.ID
			if err := s.invoices.AddLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	inv.VersionID = 1
	return nil
}

// AllocatePayments records one incoming payment split across invoices. The
// whole batch commits or none of it does: every allocation re-reads its
// invoice inside the unit of work, verifies the caller's expected version,
// checks the freshly read amount due, appends the payment row and rewrites
// the invoice under the version guard. The first rejection aborts the batch.
func (s *Service) AllocatePayments(ctx context.Context, batchID uuid.UUID, allocs []AllocationRequest, details PaymentDetails) ([]*Invoice, error) {
	if len(allocs) == 0 {
		return nil, fmt.Errorf("at least one allocation is required")
	}
	if details.Method == "" {
		return nil, fmt.Errorf("payment method is required")
	}
	if batchID == uuid.Nil {
		batchID = uuid.New()
	}

	var updated []*Invoice
	err := s.coord.Run(ctx, "payment.allocate", func(ctx context.Context) error {
		updated = updated[:0]
		for _, alloc := range allocs {
			inv, err := s.allocateOne(ctx, batchID, alloc, details)
			if err != nil {
				return err
			}
			updated = append(updated, inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) allocateOne(ctx context.Context, batchID uuid.UUID, alloc AllocationRequest, details PaymentDetails) (*Invoice, error) {
	if alloc.Amount <= 0 {
		return nil, &AllocationError{InvoiceID: alloc.InvoiceID, Reason: fmt.Sprintf("amount must be positive, got %d", alloc.Amount)}
	}

	inv, err := s.invoices.GetByID(ctx, alloc.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := oplock.Check("invoice", inv.ID.String(), alloc.ExpectedVersion, inv.VersionID); err != nil {
		telemetry.AddConflict("invoice", "version")
		return nil, err
	}
	if inv.Terminal() || inv.Status == StatusRefunded {
		return nil, &AllocationError{InvoiceID: inv.ID, Reason: "invoice is " + inv.Status}
	}
	if alloc.Amount > inv.AmountDue {
		return nil, &AllocationError{InvoiceID: inv.ID, Reason: fmt.Sprintf("amount %d exceeds amount due %d", alloc.Amount, inv.AmountDue)}
	}

	p := &Payment{
		InvoiceID:  inv.ID,
		BatchID:    batchID,
		Amount:     alloc.Amount,
		Currency:   inv.Currency,
		Method:     details.Method,
		Reference:  details.Reference,
		ReceivedBy: details.ReceivedBy,
		Note:       details.Note,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	inv.AmountPaid = money.Add(inv.AmountPaid, alloc.Amount)
	inv.AmountDue = money.Subtract(inv.Total, inv.AmountPaid)
	inv.Status = deriveStatus(inv.AmountPaid, inv.AmountDue)
	if err := s.invoices.UpdateGuarded(ctx, inv); err != nil {
		return nil, err
	}
	oplock.Bump(inv)
	return inv, nil
}

// Refund returns money against an invoice. Reason is mandatory and the
// amount must not exceed what was actually paid; refunding everything paid
// moves the invoice to refunded, a partial refund recomputes partial/paid.
func (s *Service) Refund(ctx context.Context, invoiceID uuid.UUID, amount int64, reason, method string, refundedBy *string, expectedVersion int) (*Invoice, error) {
	if reason == "" {
		return nil, &RefundError{InvoiceID: invoiceID, Reason: "reason is required"}
	}
	if amount <= 0 {
		return nil, &RefundError{InvoiceID: invoiceID, Reason: fmt.Sprintf("amount must be positive, got %d", amount)}
	}

	var out *Invoice
	err := s.coord.Run(ctx, "invoice.refund", func(ctx context.Context) error {
		inv, err := s.invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := oplock.Check("invoice", inv.ID.String(), expectedVersion, inv.VersionID); err != nil {
			telemetry.AddConflict("invoice", "version")
			return err
		}
		if inv.Terminal() {
			return &RefundError{InvoiceID: inv.ID, Reason: "invoice is " + inv.Status}
		}
		if amount > inv.AmountPaid {
			return &RefundError{InvoiceID: inv.ID, Reason: fmt.Sprintf("amount %d exceeds amount paid %d", amount, inv.AmountPaid)}
		}

		ref := &Refund{InvoiceID: inv.ID, Amount: amount, Reason: reason, Method: method, RefundedBy: refundedBy}
		if err := s.refunds.Create(ctx, ref); err != nil {
			return err
		}

		prevPaid := inv.AmountPaid
		inv.AmountPaid = money.Subtract(prevPaid, amount)
		inv.AmountDue = money.Subtract(inv.Total, inv.AmountPaid)
		if amount == prevPaid {
			inv.Status = StatusRefunded
		} else {
			inv.Status = deriveStatus(inv.AmountPaid, inv.AmountDue)
		}
		if err := s.invoices.UpdateGuarded(ctx, inv); err != nil {
			return err
		}
		oplock.Bump(inv)
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelInvoice withdraws an unpaid invoice. Invoices with recorded
// payments must be refunded first.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID uuid.UUID, expectedVersion int) (*Invoice, error) {
	return s.terminate(ctx, "invoice.cancel", invoiceID, expectedVersion, StatusCancelled, true)
}

// VoidInvoice strikes an invoice entered in error. Unlike cancel it is
// allowed while payments exist; the payment and refund rows stay as audit
// trail.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID uuid.UUID, expectedVersion int) (*Invoice, error) {
	return s.terminate(ctx, "invoice.void", invoiceID, expectedVersion, StatusVoided, false)
}

func (s *Service) terminate(ctx context.Context, unit string, invoiceID uuid.UUID, expectedVersion int, target string, rejectPaid bool) (*Invoice, error) {
	var out *Invoice
	err := s.coord.Run(ctx, unit, func(ctx context.Context) error {
		inv, err := s.invoices.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := oplock.Check("invoice", inv.ID.String(), expectedVersion, inv.VersionID); err != nil {
			telemetry.AddConflict("invoice", "version")
			return err
		}
		if inv.Terminal() {
			return fmt.Errorf("invoice %s is already %s", inv.ID, inv.Status)
		}
		if rejectPaid && inv.AmountPaid > 0 {
			return fmt.Errorf("invoice %s has recorded payments; refund before cancelling", inv.ID)
		}

		inv.Status = target
		if err := s.invoices.UpdateGuarded(ctx, inv); err != nil {
			return err
		}
		oplock.Bump(inv)
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.invoices.GetByNumber(ctx, number)
}

func (s *Service) ListInvoices(ctx context.Context, patientID uuid.UUID, status string, limit, offset int) ([]*Invoice, int, error) {
	if status != "" && !validInvoiceStatuses[status] {
		return nil, 0, fmt.Errorf("invalid invoice status: %s", status)
	}
	return s.invoices.List(ctx, patientID, status, limit, offset)
}

func (s *Service) GetInvoiceLines(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLine, error) {
	return s.invoices.GetLines(ctx, invoiceID)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	return s.payments.ListByInvoice(ctx, invoiceID)
}

func (s *Service) ListPaymentsByBatch(ctx context.Context, batchID uuid.UUID) ([]*Payment, error) {
	return s.payments.ListByBatch(ctx, batchID)
}

func (s *Service) ListRefunds(ctx context.Context, invoiceID uuid.UUID) ([]*Refund, error) {
	return s.refunds.ListByInvoice(ctx, invoiceID)
}
