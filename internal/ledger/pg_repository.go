package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.ResourceID,
		&r.RoleID,
		&r.ReservedStart,
		&r.ReservedEnd,
		&r.Mode,
		&r.QuantityConsumed,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const reservationColumns = `
	ar.id, ar.appointment_id, ar.resource_id, ar.role_id,
	ar.reserved_start, ar.reserved_end, ar.reservation_mode,
	ar.quantity_consumed, ar.created_at`

// Live reservations are those backing a pending or confirmed appointment.
const liveJoin = `
	JOIN appointments a ON a.id = ar.appointment_id
	 AND a.status IN ('pending', 'confirmed')`

func (r *PgRepository) ListForResourceInRange(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM appointment_resources ar
		`+liveJoin+`
		WHERE ar.resource_id = $1
		  AND ar.reserved_start < $3
		  AND ar.reserved_end > $2
		ORDER BY ar.reserved_start
	`, resourceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM appointment_resources ar
		WHERE ar.appointment_id = $1
		ORDER BY ar.reserved_start
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func (r *PgRepository) ReservedQuantity(ctx context.Context, resourceID uuid.UUID, asOf time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(ar.quantity_consumed), 0)
		FROM appointment_resources ar
		`+liveJoin+`
		WHERE ar.resource_id = $1
		  AND ar.reserved_end > $2
	`, resourceID, asOf).Scan(&n)
	return n, err
}
