package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/oplock"
	"github.com/clinicore/clinicore/internal/platform/telemetry"
)

type Service struct {
	bookings BookingRepository
	coord    *db.Coordinator
}

func NewService(bookings BookingRepository, coord *db.Coordinator) *Service {
	return &Service{bookings: bookings, coord: coord}
}

// Book places a booking on a resource. Overlap check and insert run in one
// unit of work: under a session no concurrent writer can slip a colliding
// row between the two statements, and a found collision aborts with
// SlotConflictError naming the interval it lost to.
func (s *Service) Book(ctx context.Context, b *Booking) error {
	if b.ResourceID == uuid.Nil {
		return fmt.Errorf("resource_id is required")
	}
	if b.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if b.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if b.EndTime.IsZero() {
		return fmt.Errorf("end_time is required")
	}
	if !b.EndTime.After(b.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	b.Status = StatusScheduled

	err := s.coord.Run(ctx, "booking.create", func(ctx context.Context) error {
		colliding, err := s.bookings.FindOverlap(ctx, b.ResourceID, b.StartTime, b.EndTime)
		if err != nil {
			return err
		}
		if colliding != nil {
			return newSlotConflict(colliding)
		}
		return s.bookings.Insert(ctx, b)
	})
	if err != nil {
		if IsSlotConflict(err) {
			telemetry.AddConflict("booking", "slot")
		}
		return err
	}
	b.VersionID = 1
	return nil
}

// UpdateStatus advances the booking lifecycle by one step, or cancels. The
// caller states which version it decided on; a stale version fails with a
// conflict instead of overwriting a concurrent transition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, expectedVersion int) (*Booking, error) {
	if !validBookingStatuses[status] {
		return nil, fmt.Errorf("invalid booking status: %s", status)
	}

	var out *Booking
	err := s.coord.Run(ctx, "booking.status", func(ctx context.Context) error {
		b, err := s.bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := oplock.Check("booking", b.ID.String(), expectedVersion, b.VersionID); err != nil {
			telemetry.AddConflict("booking", "version")
			return err
		}
		if !canTransition(b.Status, status) {
			return fmt.Errorf("cannot move booking from %s to %s", b.Status, status)
		}
		b.Status = status
		if err := s.bookings.UpdateGuarded(ctx, b); err != nil {
			return err
		}
		oplock.Bump(b)
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reschedule moves a booking to a new interval by cancelling the existing
// row and inserting a fresh one linked back to it, all in one unit of
// work. History stays intact: the cancelled row keeps its interval, the
// new row starts its own version chain. A conflict on the target interval
// aborts the whole unit, leaving the original booking untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, expectedVersion int) (*Booking, error) {
	if newStart.IsZero() || newEnd.IsZero() {
		return nil, fmt.Errorf("start_time and end_time are required")
	}
	if !newEnd.After(newStart) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	var rebooked *Booking
	err := s.coord.Run(ctx, "booking.reschedule", func(ctx context.Context) error {
		old, err := s.bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := oplock.Check("booking", old.ID.String(), expectedVersion, old.VersionID); err != nil {
			telemetry.AddConflict("booking", "version")
			return err
		}
		if old.Status == StatusCompleted || old.Status == StatusCancelled {
			return fmt.Errorf("booking %s is %s and cannot be rescheduled", old.ID, old.Status)
		}

		// cancel first so the old interval stops counting against the
		// overlap check within this session
		old.Status = StatusCancelled
		if err := s.bookings.UpdateGuarded(ctx, old); err != nil {
			return err
		}
		oplock.Bump(old)

		colliding, err := s.bookings.FindOverlap(ctx, old.ResourceID, newStart, newEnd)
		if err != nil {
			return err
		}
		if colliding != nil {
			return newSlotConflict(colliding)
		}

		rebooked = &Booking{
			ResourceID:      old.ResourceID,
			PatientID:       old.PatientID,
			StartTime:       newStart,
			EndTime:         newEnd,
			Status:          StatusScheduled,
			Reason:          old.Reason,
			Note:            old.Note,
			RescheduledFrom: &old.ID,
		}
		return s.bookings.Insert(ctx, rebooked)
	})
	if err != nil {
		if IsSlotConflict(err) {
			telemetry.AddConflict("booking", "slot")
		}
		return nil, err
	}
	rebooked.VersionID = 1
	return rebooked, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *Service) ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time, limit, offset int) ([]*Booking, int, error) {
	if resourceID == uuid.Nil {
		return nil, 0, fmt.Errorf("resource_id is required")
	}
	return s.bookings.ListByResource(ctx, resourceID, from, to, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByPatient(ctx, patientID, limit, offset)
}
