package procedure

import (
	"context"
	"errors"
	"fmt"

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

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Type,
		&p.DurationMinutes,
		&p.BufferBeforeMinutes,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProcedureNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, type, duration_minutes, buffer_before_minutes, active, created_at, updated_at
		FROM procedures
		WHERE id = $1
	`, id)
	p, err := scanProcedure(row)
	if err != nil {
		return nil, err
	}

	if err := r.loadRequirements(ctx, p); err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) loadRequirements(ctx context.Context, p *Procedure) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, procedure_id, role_id, quantity_min, quantity_max,
		       is_required, offset_start_minutes, offset_end_minutes
		FROM procedure_requirements
		WHERE procedure_id = $1
		ORDER BY offset_start_minutes, id
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var req Requirement
		err := rows.Scan(
			&req.ID,
			&req.ProcedureID,
			&req.RoleID,
			&req.QuantityMin,
			&req.QuantityMax,
			&req.Required,
			&req.OffsetStartMinutes,
			&req.OffsetEndMinutes,
		)
		if err != nil {
			return err
		}
		p.Requirements = append(p.Requirements, req)
	}
	return rows.Err()
}

func (r *PgRepository) loadChildren(ctx context.Context, p *Procedure) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, child_id, sequence_order, gap_after_minutes
		FROM procedure_children
		WHERE parent_id = $1
		ORDER BY sequence_order
	`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var link ChildLink
		err := rows.Scan(&link.ID, &link.ParentID, &link.ChildID, &link.SequenceOrder, &link.GapAfterMinutes)
		if err != nil {
			return err
		}
		p.Children = append(p.Children, link)
	}
	return rows.Err()
}

func (r *PgRepository) ListProcedures(ctx context.Context, activeOnly bool) ([]Procedure, error) {
	q := `
		SELECT id, name, type, duration_minutes, buffer_before_minutes, active, created_at, updated_at
		FROM procedures`
	if activeOnly {
		q += " WHERE active"
	}
	q += " ORDER BY name"

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateProcedure(ctx context.Context, p *Procedure) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO procedures (id, name, type, duration_minutes, buffer_before_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, p.ID, p.Name, p.Type, p.DurationMinutes, p.BufferBeforeMinutes, p.Active)
	if err != nil {
		return fmt.Errorf("insert procedure: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateProcedure(ctx context.Context, p *Procedure) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE procedures
		SET name = $2, duration_minutes = $3, buffer_before_minutes = $4,
		    active = $5, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.DurationMinutes, p.BufferBeforeMinutes, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProcedureNotFound
	}
	return nil
}

func (r *PgRepository) DeleteProcedure(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM procedures WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProcedureNotFound
	}
	return nil
}

func (r *PgRepository) AddRequirement(ctx context.Context, req *Requirement) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO procedure_requirements
			(id, procedure_id, role_id, quantity_min, quantity_max,
			 is_required, offset_start_minutes, offset_end_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.ProcedureID, req.RoleID, req.QuantityMin, req.QuantityMax,
		req.Required, req.OffsetStartMinutes, req.OffsetEndMinutes)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (r *PgRepository) RemoveRequirement(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM procedure_requirements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequirementNotFound
	}
	return nil
}

func (r *PgRepository) AddChild(ctx context.Context, link *ChildLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO procedure_children (id, parent_id, child_id, sequence_order, gap_after_minutes)
		VALUES ($1, $2, $3, $4, $5)
	`, link.ID, link.ParentID, link.ChildID, link.SequenceOrder, link.GapAfterMinutes)
	if err != nil {
		return fmt.Errorf("insert child link: %w", err)
	}
	return nil
}

func (r *PgRepository) RemoveChild(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM procedure_children WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProcedureNotFound
	}
	return nil
}
