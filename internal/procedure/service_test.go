package procedure

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

type mockRoleGetter struct {
	roles map[uuid.UUID]*catalog.ResourceRole
}

func (m *mockRoleGetter) GetRole(_ context.Context, id uuid.UUID) (*catalog.ResourceRole, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, catalog.ErrRoleNotFound
	}
	return r, nil
}

func newTestService(procs ...*Procedure) (*Service, *mockRepository, *mockRoleGetter) {
	repo := newMockRepository(procs...)
	roles := &mockRoleGetter{roles: make(map[uuid.UUID]*catalog.ResourceRole)}
	return NewService(repo, roles, zerolog.Nop()), repo, roles
}

func TestAddChildRejectsDirectCycle(t *testing.T) {
	parent := &Procedure{ID: uuid.New(), Name: "Combo", Type: TypeComposite}
	svc, _, _ := newTestService(parent)

	err := svc.AddChild(context.Background(), &ChildLink{ParentID: parent.ID, ChildID: parent.ID})
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("self-reference must fail with ErrCircularReference, got %v", err)
	}
}

func TestAddChildRejectsTransitiveCycle(t *testing.T) {
	a := &Procedure{ID: uuid.New(), Name: "A", Type: TypeComposite}
	b := &Procedure{ID: uuid.New(), Name: "B", Type: TypeComposite}
	svc, _, _ := newTestService(a, b)

	if err := svc.AddChild(context.Background(), &ChildLink{ParentID: a.ID, ChildID: b.ID}); err != nil {
		t.Fatalf("a -> b: %v", err)
	}
	err := svc.AddChild(context.Background(), &ChildLink{ParentID: b.ID, ChildID: a.ID})
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("b -> a closes a cycle, must fail, got %v", err)
	}
}

func TestAddChildRejectsAtomicParent(t *testing.T) {
	atomic := &Procedure{ID: uuid.New(), Name: "Scan", Type: TypeAtomic, DurationMinutes: 20}
	other := &Procedure{ID: uuid.New(), Name: "Other", Type: TypeAtomic, DurationMinutes: 10}
	svc, _, _ := newTestService(atomic, other)

	err := svc.AddChild(context.Background(), &ChildLink{ParentID: atomic.ID, ChildID: other.ID})
	if !errors.Is(err, ErrNotComposite) {
		t.Fatalf("atomic parent must fail with ErrNotComposite, got %v", err)
	}
}

func TestAddRequirementValidation(t *testing.T) {
	roleID := uuid.New()
	p := &Procedure{ID: uuid.New(), Name: "Scan", Type: TypeAtomic, DurationMinutes: 30}
	svc, _, roles := newTestService(p)
	roles.roles[roleID] = &catalog.ResourceRole{ID: roleID, Code: "sonographer"}

	cases := []struct {
		name    string
		req     Requirement
		wantErr error
	}{
		{
			"offset past duration",
			Requirement{ProcedureID: p.ID, RoleID: roleID, QuantityMin: 1, OffsetStartMinutes: 10, OffsetEndMinutes: 40},
			ErrOffsetOutOfRange,
		},
		{
			"zero quantity",
			Requirement{ProcedureID: p.ID, RoleID: roleID, QuantityMin: 0},
			ErrInvalidQuantity,
		},
		{
			"max below min",
			Requirement{ProcedureID: p.ID, RoleID: roleID, QuantityMin: 2, QuantityMax: 1},
			ErrInvalidQuantity,
		},
		{
			"unknown role",
			Requirement{ProcedureID: p.ID, RoleID: uuid.New(), QuantityMin: 1},
			catalog.ErrRoleNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.AddRequirement(context.Background(), &tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAddRequirementDefaultsOffsetEnd(t *testing.T) {
	roleID := uuid.New()
	p := &Procedure{ID: uuid.New(), Name: "Scan", Type: TypeAtomic, DurationMinutes: 30}
	svc, _, roles := newTestService(p)
	roles.roles[roleID] = &catalog.ResourceRole{ID: roleID}

	req := &Requirement{ProcedureID: p.ID, RoleID: roleID, QuantityMin: 1}
	if err := svc.AddRequirement(context.Background(), req); err != nil {
		t.Fatalf("add requirement: %v", err)
	}
	if req.OffsetEndMinutes != 30 {
		t.Errorf("offset end must default to the duration, got %d", req.OffsetEndMinutes)
	}
	if req.QuantityMax != 1 {
		t.Errorf("quantity max must default to min, got %d", req.QuantityMax)
	}
}

func TestTotalDurationComposite(t *testing.T) {
	childA := &Procedure{ID: uuid.New(), Type: TypeAtomic, DurationMinutes: 20}
	childB := &Procedure{ID: uuid.New(), Type: TypeAtomic, DurationMinutes: 30, BufferBeforeMinutes: 5}
	parent := &Procedure{
		ID:                  uuid.New(),
		Type:                TypeComposite,
		BufferBeforeMinutes: 10,
		Children: []ChildLink{
			{ChildID: childA.ID, SequenceOrder: 1, GapAfterMinutes: 15},
			{ChildID: childB.ID, SequenceOrder: 2},
		},
	}
	svc, _, _ := newTestService(parent, childA, childB)

	total, err := svc.TotalDuration(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("total duration: %v", err)
	}
	// 10 buffer + 20 + 15 gap + (5 buffer + 30)
	if total != 80 {
		t.Errorf("total = %d, want 80", total)
	}
}
