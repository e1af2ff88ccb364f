package procedure

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

// mockRepository serves procedures out of a map, mirroring the hydration
// the real repository does.
type mockRepository struct {
	procedures map[uuid.UUID]*Procedure
}

func newMockRepository(procs ...*Procedure) *mockRepository {
	m := &mockRepository{procedures: make(map[uuid.UUID]*Procedure)}
	for _, p := range procs {
		m.procedures[p.ID] = p
	}
	return m
}

func (m *mockRepository) GetProcedure(_ context.Context, id uuid.UUID) (*Procedure, error) {
	p, ok := m.procedures[id]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return p, nil
}

func (m *mockRepository) ListProcedures(context.Context, bool) ([]Procedure, error) {
	return nil, nil
}

func (m *mockRepository) CreateProcedure(_ context.Context, p *Procedure) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.procedures[p.ID] = p
	return nil
}

func (m *mockRepository) UpdateProcedure(_ context.Context, p *Procedure) error {
	m.procedures[p.ID] = p
	return nil
}

func (m *mockRepository) DeleteProcedure(_ context.Context, id uuid.UUID) error {
	delete(m.procedures, id)
	return nil
}

func (m *mockRepository) AddRequirement(_ context.Context, req *Requirement) error {
	p := m.procedures[req.ProcedureID]
	p.Requirements = append(p.Requirements, *req)
	return nil
}

func (m *mockRepository) RemoveRequirement(context.Context, uuid.UUID) error { return nil }

func (m *mockRepository) AddChild(_ context.Context, link *ChildLink) error {
	p := m.procedures[link.ParentID]
	p.Children = append(p.Children, *link)
	return nil
}

func (m *mockRepository) RemoveChild(context.Context, uuid.UUID) error { return nil }

type mockRolePool struct {
	byRole map[uuid.UUID][]catalog.Resource
}

func (m *mockRolePool) ListByRole(_ context.Context, roleID uuid.UUID) ([]catalog.Resource, error) {
	return m.byRole[roleID], nil
}

func TestExpandAtomicWithBuffer(t *testing.T) {
	roleID := uuid.New()
	p := &Procedure{
		ID:                  uuid.New(),
		Name:                "X-Ray",
		Type:                TypeAtomic,
		DurationMinutes:     20,
		BufferBeforeMinutes: 5,
		Requirements: []Requirement{
			{RoleID: roleID, QuantityMin: 1, Required: true, OffsetStartMinutes: 0, OffsetEndMinutes: 20},
		},
	}
	e := NewExpander(newMockRepository(p), &mockRolePool{byRole: map[uuid.UUID][]catalog.Resource{}})

	reqs, err := e.Expand(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(reqs))
	}
	if reqs[0].OffsetStartMinutes != 5 || reqs[0].OffsetEndMinutes != 25 {
		t.Errorf("buffer must shift offsets: got [%d, %d], want [5, 25]",
			reqs[0].OffsetStartMinutes, reqs[0].OffsetEndMinutes)
	}
}

func TestExpandCompositeOffsetsChildren(t *testing.T) {
	roomRole, staffRole := uuid.New(), uuid.New()

	childA := &Procedure{
		ID:              uuid.New(),
		Name:            "Scan",
		Type:            TypeAtomic,
		DurationMinutes: 20,
		Requirements: []Requirement{
			{RoleID: roomRole, QuantityMin: 1, Required: true, OffsetStartMinutes: 0, OffsetEndMinutes: 20},
		},
	}
	childB := &Procedure{
		ID:              uuid.New(),
		Name:            "Consult",
		Type:            TypeAtomic,
		DurationMinutes: 30,
		Requirements: []Requirement{
			{RoleID: staffRole, QuantityMin: 1, Required: true, OffsetStartMinutes: 0, OffsetEndMinutes: 30},
		},
	}
	parent := &Procedure{
		ID:   uuid.New(),
		Name: "Scan with Consult",
		Type: TypeComposite,
		Children: []ChildLink{
			{ParentID: uuid.Nil, ChildID: childA.ID, SequenceOrder: 1, GapAfterMinutes: 5},
			{ParentID: uuid.Nil, ChildID: childB.ID, SequenceOrder: 2},
		},
	}

	e := NewExpander(newMockRepository(parent, childA, childB), &mockRolePool{byRole: map[uuid.UUID][]catalog.Resource{}})

	reqs, err := e.Expand(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 flattened requirements, got %d", len(reqs))
	}

	// child A occupies [0, 20), gap 5, so child B starts at minute 25
	if reqs[0].OffsetStartMinutes != 0 || reqs[0].OffsetEndMinutes != 20 {
		t.Errorf("first child offsets [%d, %d], want [0, 20]",
			reqs[0].OffsetStartMinutes, reqs[0].OffsetEndMinutes)
	}
	if reqs[1].OffsetStartMinutes != 25 || reqs[1].OffsetEndMinutes != 55 {
		t.Errorf("second child offsets [%d, %d], want [25, 55]",
			reqs[1].OffsetStartMinutes, reqs[1].OffsetEndMinutes)
	}
}

func TestExpandAttachesEligiblePools(t *testing.T) {
	roleID := uuid.New()
	pool := []catalog.Resource{
		{ID: uuid.New(), Name: "Room A", RoleIDs: []uuid.UUID{roleID}},
		{ID: uuid.New(), Name: "Room B", RoleIDs: []uuid.UUID{roleID}},
	}
	p := &Procedure{
		ID:              uuid.New(),
		Type:            TypeAtomic,
		DurationMinutes: 15,
		Requirements: []Requirement{
			{RoleID: roleID, QuantityMin: 1, Required: true, OffsetStartMinutes: 0, OffsetEndMinutes: 15},
		},
	}
	e := NewExpander(newMockRepository(p), &mockRolePool{
		byRole: map[uuid.UUID][]catalog.Resource{roleID: pool},
	})

	reqs, err := e.Expand(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(reqs[0].EligibleResources) != 2 {
		t.Errorf("expected pool of 2, got %d", len(reqs[0].EligibleResources))
	}
}
