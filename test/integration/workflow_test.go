package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/inventory"
	"github.com/clinicore/clinicore/internal/domain/scheduling"
)

// TestPatientVisitWorkflow walks one visit end to end across all three
// domains: book the room, hold and consume supplies, invoice the visit,
// collect payment, and settle a partial refund.
func TestPatientVisitWorkflow(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newServices(t)

	patient := uuid.New()
	room := uuid.New()
	visitStart := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)

	// Book the operating room.
	visit := &scheduling.Booking{
		ResourceID: room,
		PatientID:  patient,
		StartTime:  visitStart,
		EndTime:    visitStart.Add(time.Hour),
		Reason:     ptrStr("knee arthroscopy"),
	}
	if err := svc.scheduling.Book(ctx, visit); err != nil {
		t.Fatalf("book room: %v", err)
	}

	// Stock the supplies and hold them for the procedure.
	kit := seedStockItem(t, ctx, svc.inventory, "ARTHRO-KIT", 0, 1)
	expiry := time.Now().Add(180 * 24 * time.Hour)
	mustReceive(t, ctx, svc.inventory, kit.ID, "LOT-2026-04", 6, &expiry)
	if _, err := svc.inventory.Reserve(ctx, kit.ID, 2, visit.ID.String(), visitStart.Add(2*time.Hour)); err != nil {
		t.Fatalf("reserve kits: %v", err)
	}

	// Patient arrives; the visit starts.
	checked, err := svc.scheduling.UpdateStatus(ctx, visit.ID, scheduling.StatusCheckedIn, visit.VersionID)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	started, err := svc.scheduling.UpdateStatus(ctx, visit.ID, scheduling.StatusInProgress, checked.VersionID)
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}

	// What the surgery actually consumed replaces the hold.
	if err := svc.inventory.Release(ctx, kit.ID, visit.ID.String()); err != nil {
		t.Fatalf("release hold: %v", err)
	}
	usage := svc.inventory.RecordSurgicalUsage(ctx, []inventory.UsageLine{
		{ItemID: kit.ID, Quantity: 2},
	})
	if len(usage.Failed) != 0 {
		t.Fatalf("usage failures: %+v", usage.Failed)
	}
	stocked, err := svc.inventory.GetItem(ctx, kit.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if stocked.CurrentStock != 4 {
		t.Errorf("kit stock = %d, want 4", stocked.CurrentStock)
	}

	if _, err := svc.scheduling.UpdateStatus(ctx, visit.ID, scheduling.StatusCompleted, started.VersionID); err != nil {
		t.Fatalf("complete visit: %v", err)
	}

	// Invoice the visit: procedure fee plus the two kits, taxed.
	inv := &billing.Invoice{PatientID: patient, Currency: "USD"}
	lines := []*billing.InvoiceLine{
		{Description: "Knee arthroscopy", Quantity: 1, UnitPrice: 120000, TaxPercent: 10},
		{Description: "Arthroscopy kit", Quantity: 2, UnitPrice: 15000, TaxPercent: 10},
	}
	if err := svc.billing.CreateInvoice(ctx, inv, lines); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.Total != 165000 {
		t.Errorf("invoice total = %d, want 165000 (150000 + 10%% tax)", inv.Total)
	}

	// Insurance covers most of it, the patient settles the rest.
	afterInsurance, err := svc.billing.AllocatePayments(ctx, uuid.Nil, []billing.AllocationRequest{
		{InvoiceID: inv.ID, Amount: 132000, ExpectedVersion: inv.VersionID},
	}, billing.PaymentDetails{Method: "insurance", Reference: ptrStr("CLAIM-77120")})
	if err != nil {
		t.Fatalf("insurance payment: %v", err)
	}
	if afterInsurance[0].Status != billing.StatusPartial {
		t.Errorf("status = %s, want partial", afterInsurance[0].Status)
	}
	settled, err := svc.billing.AllocatePayments(ctx, uuid.Nil, []billing.AllocationRequest{
		{InvoiceID: inv.ID, Amount: 33000, ExpectedVersion: afterInsurance[0].VersionID},
	}, billing.PaymentDetails{Method: "card"})
	if err != nil {
		t.Fatalf("patient payment: %v", err)
	}
	if settled[0].Status != billing.StatusPaid || settled[0].AmountDue != 0 {
		t.Errorf("after settlement = %s due %d, want paid due 0", settled[0].Status, settled[0].AmountDue)
	}

	// One kit turned out unused and goes back on the shelf, with a refund.
	if _, err := svc.inventory.Adjust(ctx, kit.ID, 1, "unused kit returned"); err != nil {
		t.Fatalf("restock: %v", err)
	}
	refunded, err := svc.billing.Refund(ctx, inv.ID, 16500, "unused kit returned", "card", nil, settled[0].VersionID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != billing.StatusPartial {
		t.Errorf("status after refund = %s, want partial", refunded.Status)
	}
	if refunded.AmountPaid != 148500 || refunded.AmountDue != 16500 {
		t.Errorf("paid/due = %d/%d, want 148500/16500", refunded.AmountPaid, refunded.AmountDue)
	}

	final, err := svc.inventory.GetItem(ctx, kit.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if final.CurrentStock != 5 {
		t.Errorf("final kit stock = %d, want 5", final.CurrentStock)
	}
}
