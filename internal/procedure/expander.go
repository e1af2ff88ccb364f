package procedure

import (
	"context"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

// ExpandedRequirement is one flattened role requirement with offsets made
// absolute to the start of the outermost procedure, plus the pool of
// catalog resources currently eligible to fill it.
type ExpandedRequirement struct {
	RoleID             uuid.UUID
	ProcedureID        uuid.UUID // the atomic procedure the requirement came from
	QuantityMin        int
	QuantityMax        int
	Required           bool
	OffsetStartMinutes int
	OffsetEndMinutes   int
	EligibleResources  []catalog.Resource
}

// RolePool is the slice of the resource catalog the expander needs.
type RolePool interface {
	ListByRole(ctx context.Context, roleID uuid.UUID) ([]catalog.Resource, error)
}

// Expander flattens a procedure, recursively for composites, into absolute
// timed role requirements.
type Expander struct {
	repo Repository
	pool RolePool
}

func NewExpander(repo Repository, pool RolePool) *Expander {
	return &Expander{repo: repo, pool: pool}
}

// Expand walks the procedure tree with an offset cursor. Children advance
// the cursor by their total duration plus the configured gap-after; nested
// composites recurse through the same arena.
func (e *Expander) Expand(ctx context.Context, procedureID uuid.UUID) ([]ExpandedRequirement, error) {
	arena, err := loadArena(ctx, e.repo, procedureID)
	if err != nil {
		return nil, err
	}

	var out []ExpandedRequirement
	if _, err := expandInto(arena, procedureID, 0, &out); err != nil {
		return nil, err
	}

	// One pool fetch per distinct role, shared across requirements.
	pools := make(map[uuid.UUID][]catalog.Resource)
	for i := range out {
		roleID := out[i].RoleID
		if _, ok := pools[roleID]; !ok {
			resources, err := e.pool.ListByRole(ctx, roleID)
			if err != nil {
				return nil, err
			}
			pools[roleID] = resources
		}
		out[i].EligibleResources = pools[roleID]
	}

	return out, nil
}

// expandInto appends the procedure's requirements shifted by base minutes
// and returns the total minutes consumed.
func expandInto(arena map[uuid.UUID]*Procedure, id uuid.UUID, base int, out *[]ExpandedRequirement) (int, error) {
	p, ok := arena[id]
	if !ok {
		return 0, ErrProcedureNotFound
	}

	cursor := base + p.BufferBeforeMinutes

	if p.Type == TypeAtomic {
		for _, req := range p.Requirements {
			*out = append(*out, ExpandedRequirement{
				RoleID:             req.RoleID,
				ProcedureID:        p.ID,
				QuantityMin:        req.QuantityMin,
				QuantityMax:        req.QuantityMax,
				Required:           req.Required,
				OffsetStartMinutes: cursor + req.OffsetStartMinutes,
				OffsetEndMinutes:   cursor + req.OffsetEndMinutes,
			})
		}
		return p.BufferBeforeMinutes + p.DurationMinutes, nil
	}

	for _, link := range p.Children {
		consumed, err := expandInto(arena, link.ChildID, cursor, out)
		if err != nil {
			return 0, err
		}
		cursor += consumed + link.GapAfterMinutes
	}
	return cursor - base, nil
}
