package procedure

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

var (
	ErrCircularReference = errors.New("procedure cannot contain itself, directly or transitively")
	ErrNotAtomic         = errors.New("requirements can only be attached to atomic procedures")
	ErrNotComposite      = errors.New("children can only be attached to composite procedures")
	ErrOffsetOutOfRange  = errors.New("requirement offsets exceed procedure duration")
	ErrInvalidQuantity   = errors.New("requirement quantity_min must be at least 1 and not exceed quantity_max")
)

// graph traversal guard; procedure trees in practice are a handful of levels
const maxGraphSize = 512

// RoleGetter is the slice of the resource catalog the procedure service needs.
type RoleGetter interface {
	GetRole(ctx context.Context, id uuid.UUID) (*catalog.ResourceRole, error)
}

type Service struct {
	repo   Repository
	roles  RoleGetter
	logger zerolog.Logger
}

func NewService(repo Repository, roles RoleGetter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, roles: roles, logger: logger}
}

func (s *Service) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	return s.repo.GetProcedure(ctx, id)
}

func (s *Service) ListProcedures(ctx context.Context, activeOnly bool) ([]Procedure, error) {
	return s.repo.ListProcedures(ctx, activeOnly)
}

func (s *Service) CreateProcedure(ctx context.Context, p *Procedure) error {
	if p.Name == "" {
		return fmt.Errorf("procedure name is required")
	}
	switch p.Type {
	case TypeAtomic:
		if p.DurationMinutes <= 0 {
			return fmt.Errorf("atomic procedure requires a positive duration")
		}
	case TypeComposite:
		if p.DurationMinutes != 0 {
			return fmt.Errorf("composite procedure duration is derived from its children")
		}
	default:
		return fmt.Errorf("invalid procedure type: %s", p.Type)
	}
	if p.BufferBeforeMinutes < 0 {
		return fmt.Errorf("buffer_before_minutes cannot be negative")
	}
	return s.repo.CreateProcedure(ctx, p)
}

func (s *Service) UpdateProcedure(ctx context.Context, p *Procedure) error {
	existing, err := s.repo.GetProcedure(ctx, p.ID)
	if err != nil {
		return err
	}
	// Type is immutable after creation.
	p.Type = existing.Type
	if p.Type == TypeAtomic && p.DurationMinutes <= 0 {
		return fmt.Errorf("atomic procedure requires a positive duration")
	}
	return s.repo.UpdateProcedure(ctx, p)
}

func (s *Service) DeleteProcedure(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteProcedure(ctx, id)
}

// AddRequirement validates the role reference and the offset window before
// writing. Offsets are minutes relative to the procedure's own start.
func (s *Service) AddRequirement(ctx context.Context, req *Requirement) error {
	p, err := s.repo.GetProcedure(ctx, req.ProcedureID)
	if err != nil {
		return err
	}
	if p.Type != TypeAtomic {
		return ErrNotAtomic
	}
	if _, err := s.roles.GetRole(ctx, req.RoleID); err != nil {
		return err
	}
	if req.QuantityMax == 0 {
		req.QuantityMax = req.QuantityMin
	}
	if req.QuantityMin < 1 || req.QuantityMax < req.QuantityMin {
		return ErrInvalidQuantity
	}
	if req.OffsetEndMinutes == 0 {
		req.OffsetEndMinutes = p.DurationMinutes
	}
	if req.OffsetStartMinutes < 0 ||
		req.OffsetEndMinutes <= req.OffsetStartMinutes ||
		req.OffsetEndMinutes > p.DurationMinutes {
		return ErrOffsetOutOfRange
	}
	return s.repo.AddRequirement(ctx, req)
}

func (s *Service) RemoveRequirement(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveRequirement(ctx, id)
}

// AddChild links a child into a composite parent. The cycle check runs here,
// at link time, so a stored graph is always a tree.
func (s *Service) AddChild(ctx context.Context, link *ChildLink) error {
	parent, err := s.repo.GetProcedure(ctx, link.ParentID)
	if err != nil {
		return err
	}
	if parent.Type != TypeComposite {
		return ErrNotComposite
	}
	if link.ParentID == link.ChildID {
		return ErrCircularReference
	}
	if _, err := s.repo.GetProcedure(ctx, link.ChildID); err != nil {
		return err
	}
	if link.GapAfterMinutes < 0 {
		return fmt.Errorf("gap_after_minutes cannot be negative")
	}

	// Would the parent become reachable from the child?
	arena, err := loadArena(ctx, s.repo, link.ChildID)
	if err != nil {
		return err
	}
	if _, reachable := arena[link.ParentID]; reachable {
		return ErrCircularReference
	}

	return s.repo.AddChild(ctx, link)
}

func (s *Service) RemoveChild(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveChild(ctx, id)
}

// TotalDuration returns the complete minutes the procedure occupies,
// including its buffer-before and, for composites, inter-step gaps.
func (s *Service) TotalDuration(ctx context.Context, id uuid.UUID) (int, error) {
	arena, err := loadArena(ctx, s.repo, id)
	if err != nil {
		return 0, err
	}
	return totalDuration(arena, id)
}

// loadArena fetches every procedure reachable from rootID into a map.
// The walk is breadth-first with a size cap so a corrupted graph cannot
// loop forever.
func loadArena(ctx context.Context, repo Repository, rootID uuid.UUID) (map[uuid.UUID]*Procedure, error) {
	arena := make(map[uuid.UUID]*Procedure)
	queue := []uuid.UUID{rootID}

	for len(queue) > 0 {
		if len(arena) > maxGraphSize {
			return nil, ErrCircularReference
		}
		id := queue[0]
		queue = queue[1:]
		if _, seen := arena[id]; seen {
			continue
		}
		p, err := repo.GetProcedure(ctx, id)
		if err != nil {
			return nil, err
		}
		arena[id] = p
		for _, link := range p.Children {
			queue = append(queue, link.ChildID)
		}
	}
	return arena, nil
}

func totalDuration(arena map[uuid.UUID]*Procedure, id uuid.UUID) (int, error) {
	p, ok := arena[id]
	if !ok {
		return 0, ErrProcedureNotFound
	}
	if p.Type == TypeAtomic {
		return p.BufferBeforeMinutes + p.DurationMinutes, nil
	}
	total := p.BufferBeforeMinutes
	for _, link := range p.Children {
		child, err := totalDuration(arena, link.ChildID)
		if err != nil {
			return 0, err
		}
		total += child + link.GapAfterMinutes
	}
	return total, nil
}
