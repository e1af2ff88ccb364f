package slot

import (
	"context"
	"errors"
	"fmt"
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

func scanSlot(row pgx.Row) (*ProcedureSlot, error) {
	var s ProcedureSlot
	err := row.Scan(
		&s.ID,
		&s.ProcedureID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.Generation,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

const slotColumns = `id, procedure_id, start_time, end_time, status, generation_type, created_at, updated_at`

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*ProcedureSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM procedure_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListByProcedureInRange(ctx context.Context, procedureID uuid.UUID, start, end time.Time) ([]ProcedureSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM procedure_slots
		WHERE procedure_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, procedureID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProcedureSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) ExistsAtStart(ctx context.Context, procedureID uuid.UUID, start time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM procedure_slots
			WHERE procedure_id = $1 AND start_time = $2
		)
	`, procedureID, start).Scan(&exists)
	return exists, err
}

func (r *PgRepository) Create(ctx context.Context, s *ProcedureSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO procedure_slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, s.ID, s.ProcedureID, s.StartTime, s.EndTime, s.Status, s.Generation)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*ProcedureSlot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE procedure_slots
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+slotColumns+`
	`, id, from, to)
	return scanSlot(row)
}

func (r *PgRepository) DeleteExpiredAuto(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM procedure_slots
		WHERE generation_type = 'auto'
		  AND status = 'available'
		  AND end_time < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
