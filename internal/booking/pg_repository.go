package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/slot"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var prefsJSON []byte
	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.ContactID,
		&a.Status,
		&a.Notes,
		&prefsJSON,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &a.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &a, nil
}

const appointmentColumns = `id, slot_id, contact_id, status, notes, preferences, created_at, updated_at`

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Commit(ctx context.Context, appt *Appointment, reservations []ledger.Reservation, newSlot *slot.ProcedureSlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if newSlot != nil {
		if newSlot.ID == uuid.Nil {
			newSlot.ID = uuid.New()
		}
		newSlot.Status = slot.StatusBooked
		_, err = tx.Exec(ctx, `
			INSERT INTO procedure_slots (id, procedure_id, start_time, end_time, status, generation_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, newSlot.ID, newSlot.ProcedureID, newSlot.StartTime, newSlot.EndTime, newSlot.Status, newSlot.Generation)
		if err != nil {
			return fmt.Errorf("insert ad hoc slot: %w", err)
		}
		appt.SlotID = newSlot.ID
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE procedure_slots
			SET status = 'booked', updated_at = now()
			WHERE id = $1 AND status = 'available'
		`, appt.SlotID)
		if err != nil {
			return fmt.Errorf("book slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var status slot.SlotStatus
			err := tx.QueryRow(ctx, `SELECT status FROM procedure_slots WHERE id = $1`, appt.SlotID).Scan(&status)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return slot.ErrSlotNotFound
				}
				return err
			}
			return slot.ErrSlotNotBookable(status)
		}
	}

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	prefsJSON, err := json.Marshal(appt.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.SlotID, appt.ContactID, StatusPending, appt.Notes, prefsJSON)
	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	*appt = *created

	consumed := make(map[uuid.UUID]int)
	for i := range reservations {
		res := &reservations[i]
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		res.AppointmentID = appt.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_resources
				(id, appointment_id, resource_id, role_id, reserved_start,
				 reserved_end, reservation_mode, quantity_consumed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		`, res.ID, res.AppointmentID, res.ResourceID, res.RoleID,
			res.ReservedStart, res.ReservedEnd, res.Mode, res.QuantityConsumed)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if res.QuantityConsumed > 0 {
			consumed[res.ResourceID] += res.QuantityConsumed
		}
	}

	// Consumable inventory must never go negative at commit time.
	for resourceID, qty := range consumed {
		tag, err := tx.Exec(ctx, `
			UPDATE resources
			SET quantity = quantity - $2, updated_at = now()
			WHERE id = $1 AND quantity >= $2
		`, resourceID, qty)
		if err != nil {
			return fmt.Errorf("decrement inventory: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientInventory
		}
	}

	// Post-insert verification: abort if a concurrent booking slipped a
	// conflicting reservation in between the availability check and here.
	for i := range reservations {
		if err := r.verifyNoConflict(ctx, tx, &reservations[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) verifyNoConflict(ctx context.Context, tx pgx.Tx, res *ledger.Reservation) error {
	var overlapping int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment_resources ar
		JOIN appointments a ON a.id = ar.appointment_id
		 AND a.status IN ('pending', 'confirmed')
		WHERE ar.resource_id = $1
		  AND ar.appointment_id <> $2
		  AND ar.reserved_start < $4
		  AND ar.reserved_end > $3
	`, res.ResourceID, res.AppointmentID, res.ReservedStart, res.ReservedEnd).Scan(&overlapping)
	if err != nil {
		return err
	}

	if res.Mode == catalog.ModeExclusive {
		if overlapping > 0 {
			return ErrReservationConflict
		}
		return nil
	}

	var maxConcurrent int
	if err := tx.QueryRow(ctx, `SELECT max_concurrent FROM resources WHERE id = $1`, res.ResourceID).Scan(&maxConcurrent); err != nil {
		return err
	}
	if overlapping >= maxConcurrent {
		return ErrReservationConflict
	}
	return nil
}

func (r *PgRepository) CancelTx(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id, reason)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// distinguish "gone" from "already terminal"
			if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
				return nil, ErrInvalidStatusTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	// Restore every consumed unit back to inventory.
	_, err = tx.Exec(ctx, `
		UPDATE resources r
		SET quantity = r.quantity + ar.quantity_consumed, updated_at = now()
		FROM appointment_resources ar
		WHERE ar.appointment_id = $1
		  AND ar.resource_id = r.id
		  AND ar.quantity_consumed > 0
	`, id)
	if err != nil {
		return nil, fmt.Errorf("restore inventory: %w", err)
	}

	// Reopen the slot for rebooking.
	_, err = tx.Exec(ctx, `
		UPDATE procedure_slots
		SET status = 'available', updated_at = now()
		WHERE id = $1 AND status = 'booked'
	`, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("reopen slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, to, fromStrs)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
				return nil, ErrInvalidStatusTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) AppendNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE id = $1
	`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListReservingResource(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT `+prefixedAppointmentColumns("a")+`
		FROM appointments a
		JOIN appointment_resources ar ON ar.appointment_id = a.id
		WHERE ar.resource_id = $1
		  AND a.status IN ('pending', 'confirmed')
		  AND ar.reserved_start < $3
		  AND ar.reserved_end > $2
		ORDER BY a.created_at
	`, resourceID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func prefixedAppointmentColumns(alias string) string {
	return alias + ".id, " + alias + ".slot_id, " + alias + ".contact_id, " +
		alias + ".status, " + alias + ".notes, " + alias + ".preferences, " +
		alias + ".created_at, " + alias + ".updated_at"
}

func (r *PgRepository) ReplaceReservationResource(ctx context.Context, appointmentID, oldResourceID, newResourceID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment_resources
		SET resource_id = $3
		WHERE appointment_id = $1 AND resource_id = $2
	`, appointmentID, oldResourceID, newResourceID)
	if err != nil {
		return fmt.Errorf("replace reservation resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrReservationNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
