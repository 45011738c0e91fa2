package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Booking statuses. The lifecycle only moves forward; cancellation is
// allowed from any state short of completed and is terminal.
const (
	StatusScheduled  = "scheduled"
	StatusCheckedIn  = "checked_in"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var validBookingStatuses = map[string]bool{
	StatusScheduled: true, StatusCheckedIn: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true,
}

// statusRank orders the forward path. Transitions may advance one rank at
// a time; cancellation sits outside the ranking.
var statusRank = map[string]int{
	StatusScheduled:  0,
	StatusCheckedIn:  1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

// canTransition reports whether a booking may move from one status to the
// next. Cancelling is allowed until the visit completed; everything else
// advances exactly one step.
func canTransition(from, to string) bool {
	if to == StatusCancelled {
		return from != StatusCompleted && from != StatusCancelled
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// ErrBookingNotFound is returned when a booking id matches no row.
var ErrBookingNotFound = errors.New("booking not found")

// Booking maps to the booking table. A booking occupies the half-open
// interval [start_time, end_time) on one resource, a practitioner or an
// operating room. No two non-cancelled bookings on the same resource may
// overlap; back-to-back bookings sharing a boundary instant do not
// overlap.
type Booking struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ResourceID      uuid.UUID  `db:"resource_id" json:"resource_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         time.Time  `db:"end_time" json:"end_time"`
	Status          string     `db:"status" json:"status"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	Note            *string    `db:"note" json:"note,omitempty"`
	RescheduledFrom *uuid.UUID `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	VersionID       int        `db:"version_id" json:"version_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (b *Booking) GetVersionID() int { return b.VersionID }

// SetVersionID sets the current version.
func (b *Booking) SetVersionID(v int) { b.VersionID = v }

// SlotConflictError reports that a requested interval collides with an
// existing booking. It carries the colliding interval so the caller can
// offer the next free slot.
type SlotConflictError struct {
	ResourceID uuid.UUID
	BookingID  uuid.UUID
	Start      time.Time
	End        time.Time
}

func newSlotConflict(colliding *Booking) *SlotConflictError {
	return &SlotConflictError{
		ResourceID: colliding.ResourceID,
		BookingID:  colliding.ID,
		Start:      colliding.StartTime,
		End:        colliding.EndTime,
	}
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot conflict on resource %s: interval collides with booking %s [%s, %s)",
		e.ResourceID, e.BookingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// IsSlotConflict reports whether the error chain contains a slot conflict.
func IsSlotConflict(err error) bool {
	var target *SlotConflictError
	return errors.As(err, &target)
}
