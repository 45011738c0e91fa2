package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/oplock"
)

func TestBookingOverlapRules(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newServices(t)

	room := uuid.New()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	first := bookSlot(t, ctx, svc.scheduling, room, at(10, 0), at(10, 30))

	// A request overlapping the middle of the taken slot loses, and the
	// error names the booking it collided with.
	err := svc.scheduling.Book(ctx, &scheduling.Booking{
		ResourceID: room, PatientID: uuid.New(), StartTime: at(10, 15), EndTime: at(10, 45),
	})
	var conflict *scheduling.SlotConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if conflict.BookingID != first.ID {
		t.Errorf("colliding booking = %s, want %s", conflict.BookingID, first.ID)
	}
	if !conflict.Start.Equal(at(10, 0)) || !conflict.End.Equal(at(10, 30)) {
		t.Errorf("colliding interval = [%s, %s), want [10:00, 10:30)", conflict.Start, conflict.End)
	}

	// Intervals are half-open: a booking starting exactly where the last
	// one ends is back-to-back, not overlapping.
	adjacent := bookSlot(t, ctx, svc.scheduling, room, at(10, 30), at(11, 0))
	if adjacent.Status != scheduling.StatusScheduled {
		t.Errorf("adjacent booking status = %s, want scheduled", adjacent.Status)
	}

	// The same interval on a different resource is free.
	bookSlot(t, ctx, svc.scheduling, uuid.New(), at(10, 0), at(10, 30))

	// A cancelled booking releases its interval.
	if _, err := svc.scheduling.UpdateStatus(ctx, first.ID, scheduling.StatusCancelled, first.VersionID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	bookSlot(t, ctx, svc.scheduling, room, at(10, 0), at(10, 30))
}

func TestRescheduleKeepsHistoryAndInterval(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newServices(t)

	room := uuid.New()
	day := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	original := bookSlot(t, ctx, svc.scheduling, room, at(9, 0), at(9, 30))
	blocker := bookSlot(t, ctx, svc.scheduling, room, at(14, 0), at(14, 30))

	// Moving onto a taken interval aborts the whole unit: the original
	// booking stays scheduled on its old slot.
	_, err := svc.scheduling.Reschedule(ctx, original.ID, at(14, 15), at(14, 45), original.VersionID)
	if !scheduling.IsSlotConflict(err) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	unchanged, err := svc.scheduling.GetBooking(ctx, original.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if unchanged.Status != scheduling.StatusScheduled || unchanged.VersionID != 1 {
		t.Errorf("original after failed reschedule = %s/v%d, want scheduled/v1", unchanged.Status, unchanged.VersionID)
	}

	// A move to a free interval cancels the old row and links the new one
	// back to it.
	rebooked, err := svc.scheduling.Reschedule(ctx, original.ID, at(11, 0), at(11, 30), original.VersionID)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if rebooked.RescheduledFrom == nil || *rebooked.RescheduledFrom != original.ID {
		t.Errorf("rescheduled_from = %v, want %s", rebooked.RescheduledFrom, original.ID)
	}
	old, err := svc.scheduling.GetBooking(ctx, original.ID)
	if err != nil {
		t.Fatalf("get old booking: %v", err)
	}
	if old.Status != scheduling.StatusCancelled {
		t.Errorf("old booking status = %s, want cancelled", old.Status)
	}

	// The vacated morning slot is immediately bookable again; the blocker
	// keeps its slot.
	bookSlot(t, ctx, svc.scheduling, room, at(9, 0), at(9, 30))
	still, err := svc.scheduling.GetBooking(ctx, blocker.ID)
	if err != nil {
		t.Fatalf("get blocker: %v", err)
	}
	if still.Status != scheduling.StatusScheduled {
		t.Errorf("blocker status = %s, want scheduled", still.Status)
	}
}

func TestBookingStatusGuards(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)
	svc := newServices(t)

	room := uuid.New()
	start := time.Date(2026, 9, 16, 8, 0, 0, 0, time.UTC)
	b := bookSlot(t, ctx, svc.scheduling, room, start, start.Add(30*time.Minute))

	// The lifecycle advances one step at a time.
	checked, err := svc.scheduling.UpdateStatus(ctx, b.ID, scheduling.StatusCheckedIn, 1)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checked.VersionID != 2 {
		t.Errorf("version = %d, want 2", checked.VersionID)
	}

	// Skipping ahead is refused.
	if _, err := svc.scheduling.UpdateStatus(ctx, b.ID, scheduling.StatusCompleted, checked.VersionID); err == nil {
		t.Error("expected checked_in -> completed to be refused")
	}

	// A stale version is a conflict, regardless of the transition being
	// otherwise legal.
	_, err = svc.scheduling.UpdateStatus(ctx, b.ID, scheduling.StatusInProgress, 1)
	if !oplock.IsConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	// The correct version still works.
	if _, err := svc.scheduling.UpdateStatus(ctx, b.ID, scheduling.StatusInProgress, checked.VersionID); err != nil {
		t.Fatalf("progress with fresh version: %v", err)
	}
}

func bookSlot(t *testing.T, ctx context.Context, svc *scheduling.Service, resource uuid.UUID, start, end time.Time) *scheduling.Booking {
	t.Helper()
	b := &scheduling.Booking{
		ResourceID: resource,
		PatientID:  uuid.New(),
		StartTime:  start,
		EndTime:    end,
	}
	if err := svc.Book(ctx, b); err != nil {
		t.Fatalf("book [%s, %s): %v", start.Format("15:04"), end.Format("15:04"), err)
	}
	return b
}
