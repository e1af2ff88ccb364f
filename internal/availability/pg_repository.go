package availability

import (
	"context"
	"encoding/json"
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

// recurrence patterns are stored as a jsonb column

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	var recJSON []byte
	err := row.Scan(
		&a.ID,
		&a.ResourceID,
		&a.StartTime,
		&a.EndTime,
		&a.Type,
		&recJSON,
		&a.ModeOverride,
		&a.MaxConcurrentOverride,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}
	if len(recJSON) > 0 {
		var rec Recurrence
		if err := json.Unmarshal(recJSON, &rec); err != nil {
			return nil, fmt.Errorf("decode recurrence: %w", err)
		}
		a.Recurrence = &rec
	}
	return &a, nil
}

const availabilityColumns = `
	id, resource_id, start_time, end_time, type, recurrence,
	mode_override, max_concurrent_override, created_at, updated_at`

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM resource_availability
		WHERE id = $1
	`, id)
	return scanAvailability(row)
}

// ListForResource fetches one-off records overlapping the range plus
// recurring records whose stored start is no more than a year before it.
func (r *PgRepository) ListForResource(ctx context.Context, resourceID uuid.UUID, rangeStart, rangeEnd time.Time) ([]Availability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM resource_availability
		WHERE resource_id = $1
		  AND start_time < $3
		  AND (
			(recurrence IS NULL AND end_time > $2)
			OR (recurrence IS NOT NULL AND start_time > $2 - interval '1 year')
		  )
		ORDER BY start_time
	`, resourceID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListForResources(ctx context.Context, resourceIDs []uuid.UUID, rangeStart, rangeEnd time.Time) (map[uuid.UUID][]Availability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM resource_availability
		WHERE resource_id = ANY($1)
		  AND start_time < $3
		  AND (
			(recurrence IS NULL AND end_time > $2)
			OR (recurrence IS NOT NULL AND start_time > $2 - interval '1 year')
		  )
		ORDER BY start_time
	`, resourceIDs, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]Availability)
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result[a.ResourceID] = append(result[a.ResourceID], *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, a *Availability) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	var recJSON []byte
	if a.Recurrence != nil {
		var err error
		recJSON, err = json.Marshal(a.Recurrence)
		if err != nil {
			return fmt.Errorf("encode recurrence: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO resource_availability (`+availabilityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, a.ID, a.ResourceID, a.StartTime, a.EndTime, a.Type, recJSON,
		a.ModeOverride, a.MaxConcurrentOverride)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resource_availability WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}
