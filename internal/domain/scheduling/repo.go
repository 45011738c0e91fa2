package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository is the storage surface of the booking guard. All
// methods run against the session carried by ctx when one is attached.
type BookingRepository interface {
	Insert(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// FindOverlap returns the earliest non-cancelled booking on the
	// resource whose interval intersects [start, end), or nil when the
	// interval is free.
	FindOverlap(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*Booking, error)
	// UpdateGuarded writes status and note back only while the stored
	// version still matches b.VersionID, bumping the version in the same
	// statement. A version miss returns oplock.ConflictError.
	UpdateGuarded(ctx context.Context, b *Booking) error
	ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time, limit, offset int) ([]*Booking, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error)
}
