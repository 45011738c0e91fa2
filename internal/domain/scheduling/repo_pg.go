package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

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

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.SessionFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, resource_id, patient_id, start_time, end_time,
	status, reason, note, rescheduled_from, version_id, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.ResourceID, &b.PatientID, &b.StartTime, &b.EndTime,
		&b.Status, &b.Reason, &b.Note, &b.RescheduledFrom, &b.VersionID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return &b, err
}

func (r *bookingRepoPG) Insert(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking (id, resource_id, patient_id, start_time, end_time,
			status, reason, note, rescheduled_from)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.ResourceID, b.PatientID, b.StartTime, b.EndTime,
		b.Status, b.Reason, b.Note, b.RescheduledFrom)
	return err
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
}

// FindOverlap implements the half-open interval test: [a, b) and [c, d)
// intersect exactly when a < d and b > c. Bookings that merely touch at a
// boundary instant do not match.
func (r *bookingRepoPG) FindOverlap(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bookingCols+` FROM booking
		WHERE resource_id = $1 AND status <> $2
			AND start_time < $4 AND end_time > $3
		ORDER BY start_time ASC
		LIMIT 1`,
		resourceID, StatusCancelled, start, end))
	if errors.Is(err, ErrBookingNotFound) {
		return nil, nil
	}
	return b, err
}

func (r *bookingRepoPG) UpdateGuarded(ctx context.Context, b *Booking) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE booking
		SET status = $3, note = $4, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2`,
		b.ID, b.VersionID, b.Status, b.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		cur, gerr := r.GetByID(ctx, b.ID)
		if gerr != nil {
			return gerr
		}
		return &oplock.ConflictError{
			Resource: "booking", ID: b.ID.String(),
			Expected: b.VersionID, Actual: cur.VersionID,
		}
	}
	return nil
}

func (r *bookingRepoPG) ListByResource(ctx context.Context, resourceID uuid.UUID, from, to time.Time, limit, offset int) ([]*Booking, int, error) {
	where := "WHERE resource_id = $1"
	args := []interface{}{resourceID}
	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(" AND end_time > $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	return r.list(ctx, where, "start_time ASC", args, limit, offset)
}

func (r *bookingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return r.list(ctx, "WHERE patient_id = $1", "start_time DESC", []interface{}{patientID}, limit, offset)
}

func (r *bookingRepoPG) list(ctx context.Context, where, order string, args []interface{}, limit, offset int) ([]*Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM booking `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM booking %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		bookingCols, where, order, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}
