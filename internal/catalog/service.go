package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrResourceHasChildren = errors.New("resource still contains child resources")
	ErrRoleTypeMismatch    = errors.New("role does not belong to the resource's type")
	ErrSubtypeTypeMismatch = errors.New("subtype does not belong to the resource's type")
	ErrInvalidParent       = errors.New("parent resource must be an active place")
)

type Service struct {
	repo            Repository
	defaultLowStock int
	logger          zerolog.Logger
}

func NewService(repo Repository, defaultLowStock int, logger zerolog.Logger) *Service {
	return &Service{repo: repo, defaultLowStock: defaultLowStock, logger: logger}
}

func (s *Service) ListResourceTypes(ctx context.Context) ([]ResourceType, error) {
	return s.repo.ListTypes(ctx)
}

func (s *Service) ListResourceSubtypes(ctx context.Context) ([]ResourceSubtype, error) {
	return s.repo.ListSubtypes(ctx)
}

func (s *Service) ListResourceRoles(ctx context.Context) ([]ResourceRole, error) {
	return s.repo.ListRoles(ctx)
}

func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	return s.repo.GetResource(ctx, id)
}

func (s *Service) ListResources(ctx context.Context, f ListFilter) ([]Resource, error) {
	return s.repo.ListResources(ctx, f)
}

// CreateResource validates taxonomy references before writing anything.
func (s *Service) CreateResource(ctx context.Context, res *Resource) error {
	if res.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if res.Mode == "" {
		res.Mode = ModeExclusive
	}
	if res.Mode != ModeExclusive && res.Mode != ModeShared {
		return fmt.Errorf("invalid reservation mode: %s", res.Mode)
	}
	if res.MaxConcurrent <= 0 {
		res.MaxConcurrent = 1
	}
	if res.Mode == ModeExclusive {
		res.MaxConcurrent = 1
	}

	typ, err := s.repo.GetType(ctx, res.TypeID)
	if err != nil {
		return err
	}
	res.Consumable = typ.Code == TypeConsumable
	if res.Consumable && res.LowThreshold <= 0 {
		res.LowThreshold = s.defaultLowStock
	}

	if err := s.validateRefs(ctx, res); err != nil {
		return err
	}

	if err := s.repo.CreateResource(ctx, res); err != nil {
		return err
	}
	s.logger.Info().Str("resource_id", res.ID.String()).Str("name", res.Name).Msg("resource created")
	return nil
}

func (s *Service) UpdateResource(ctx context.Context, res *Resource) error {
	existing, err := s.repo.GetResource(ctx, res.ID)
	if err != nil {
		return err
	}
	// Type is immutable after creation; keep the stored one.
	res.TypeID = existing.TypeID
	res.Consumable = existing.Consumable

	if res.Mode != ModeExclusive && res.Mode != ModeShared {
		return fmt.Errorf("invalid reservation mode: %s", res.Mode)
	}

	if err := s.validateRefs(ctx, res); err != nil {
		return err
	}

	return s.repo.UpdateResource(ctx, res)
}

// DeleteResource refuses to delete a place that still contains resources.
func (s *Service) DeleteResource(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetResource(ctx, id); err != nil {
		return err
	}
	n, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrResourceHasChildren
	}
	return s.repo.DeleteResource(ctx, id)
}

func (s *Service) validateRefs(ctx context.Context, res *Resource) error {
	if res.SubtypeID != nil {
		st, err := s.repo.GetSubtype(ctx, *res.SubtypeID)
		if err != nil {
			return err
		}
		if st.TypeID != res.TypeID {
			return ErrSubtypeTypeMismatch
		}
	}

	if res.ParentID != nil {
		parent, err := s.repo.GetResource(ctx, *res.ParentID)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				return ErrInvalidParent
			}
			return err
		}
		ptype, err := s.repo.GetType(ctx, parent.TypeID)
		if err != nil {
			return err
		}
		if !parent.Active || ptype.Code != TypePlace {
			return ErrInvalidParent
		}
	}

	for _, roleID := range res.RoleIDs {
		role, err := s.repo.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.TypeID != res.TypeID {
			return ErrRoleTypeMismatch
		}
	}
	return nil
}
