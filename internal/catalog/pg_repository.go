package catalog

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

// Helpers

func scanType(row pgx.Row) (*ResourceType, error) {
	var t ResourceType
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanSubtype(row pgx.Row) (*ResourceSubtype, error) {
	var st ResourceSubtype
	err := row.Scan(&st.ID, &st.TypeID, &st.Code, &st.Name, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubtypeNotFound
		}
		return nil, err
	}
	return &st, nil
}

func scanRole(row pgx.Row) (*ResourceRole, error) {
	var rl ResourceRole
	err := row.Scan(&rl.ID, &rl.TypeID, &rl.Code, &rl.Name, &rl.CreatedAt, &rl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &rl, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	err := row.Scan(
		&r.ID,
		&r.TypeID,
		&r.SubtypeID,
		&r.ParentID,
		&r.Name,
		&r.Mode,
		&r.MaxConcurrent,
		&r.Consumable,
		&r.Quantity,
		&r.LowThreshold,
		&r.SortIndex,
		&r.Active,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return &r, nil
}

const resourceColumns = `
	id, type_id, subtype_id, parent_id, name, mode, max_concurrent,
	consumable, quantity, low_threshold, sort_index, active, created_at, updated_at`

// Interface methods

func (r *PgRepository) ListTypes(ctx context.Context) ([]ResourceType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, created_at, updated_at
		FROM resource_types
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ResourceType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListSubtypes(ctx context.Context) ([]ResourceSubtype, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type_id, code, name, created_at, updated_at
		FROM resource_subtypes
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ResourceSubtype
	for rows.Next() {
		st, err := scanSubtype(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListRoles(ctx context.Context) ([]ResourceRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type_id, code, name, created_at, updated_at
		FROM resource_roles
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ResourceRole
	for rows.Next() {
		rl, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rl)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetType(ctx context.Context, id uuid.UUID) (*ResourceType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, name, created_at, updated_at
		FROM resource_types
		WHERE id = $1
	`, id)
	return scanType(row)
}

func (r *PgRepository) GetSubtype(ctx context.Context, id uuid.UUID) (*ResourceSubtype, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, type_id, code, name, created_at, updated_at
		FROM resource_subtypes
		WHERE id = $1
	`, id)
	return scanSubtype(row)
}

func (r *PgRepository) GetRole(ctx context.Context, id uuid.UUID) (*ResourceRole, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, type_id, code, name, created_at, updated_at
		FROM resource_roles
		WHERE id = $1
	`, id)
	return scanRole(row)
}

func (r *PgRepository) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE id = $1
	`, id)
	res, err := scanResource(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadRoles(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PgRepository) loadRoles(ctx context.Context, res *Resource) error {
	rows, err := r.pool.Query(ctx, `
		SELECT role_id
		FROM resource_role_assignments
		WHERE resource_id = $1
	`, res.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var roleID uuid.UUID
		if err := rows.Scan(&roleID); err != nil {
			return err
		}
		res.RoleIDs = append(res.RoleIDs, roleID)
	}
	return rows.Err()
}

func (r *PgRepository) ListResources(ctx context.Context, f ListFilter) ([]Resource, error) {
	q := `SELECT ` + resourceColumns + ` FROM resources WHERE 1=1`
	args := []any{}

	if f.TypeID != uuid.Nil {
		args = append(args, f.TypeID)
		q += fmt.Sprintf(" AND type_id = $%d", len(args))
	}
	if f.ParentID != uuid.Nil {
		args = append(args, f.ParentID)
		q += fmt.Sprintf(" AND parent_id = $%d", len(args))
	}
	if f.RoleID != uuid.Nil {
		args = append(args, f.RoleID)
		q += fmt.Sprintf(" AND id IN (SELECT resource_id FROM resource_role_assignments WHERE role_id = $%d)", len(args))
	}
	if f.ActiveOnly {
		q += " AND active"
	}
	q += " ORDER BY sort_index, created_at"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := r.loadRoles(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *PgRepository) ListByRole(ctx context.Context, roleID uuid.UUID) ([]Resource, error) {
	return r.ListResources(ctx, ListFilter{RoleID: roleID, ActiveOnly: true})
}

func (r *PgRepository) CreateResource(ctx context.Context, res *Resource) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO resources (`+resourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`, res.ID, res.TypeID, res.SubtypeID, res.ParentID, res.Name, res.Mode,
		res.MaxConcurrent, res.Consumable, res.Quantity, res.LowThreshold,
		res.SortIndex, res.Active)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}

	for _, roleID := range res.RoleIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO resource_role_assignments (resource_id, role_id)
			VALUES ($1, $2)
		`, res.ID, roleID)
		if err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) UpdateResource(ctx context.Context, res *Resource) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE resources
		SET subtype_id = $2, parent_id = $3, name = $4, mode = $5,
		    max_concurrent = $6, consumable = $7, quantity = $8,
		    low_threshold = $9, sort_index = $10, active = $11,
		    updated_at = now()
		WHERE id = $1
	`, res.ID, res.SubtypeID, res.ParentID, res.Name, res.Mode,
		res.MaxConcurrent, res.Consumable, res.Quantity, res.LowThreshold,
		res.SortIndex, res.Active)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}

	_, err = tx.Exec(ctx, `DELETE FROM resource_role_assignments WHERE resource_id = $1`, res.ID)
	if err != nil {
		return err
	}
	for _, roleID := range res.RoleIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO resource_role_assignments (resource_id, role_id)
			VALUES ($1, $2)
		`, res.ID, roleID)
		if err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) DeleteResource(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (r *PgRepository) CountChildren(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM resources WHERE parent_id = $1
	`, id).Scan(&n)
	return n, err
}
