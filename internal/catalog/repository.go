package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTypeNotFound     = errors.New("resource type not found")
	ErrSubtypeNotFound  = errors.New("resource subtype not found")
	ErrRoleNotFound     = errors.New("resource role not found")
	ErrResourceNotFound = errors.New("resource not found")
)

// ListFilter narrows ListResources. Zero values mean "no filter".
type ListFilter struct {
	TypeID     uuid.UUID
	RoleID     uuid.UUID
	ParentID   uuid.UUID
	ActiveOnly bool
}

// Repository contains all catalog DB interactions.
type Repository interface {
	ListTypes(ctx context.Context) ([]ResourceType, error)
	ListSubtypes(ctx context.Context) ([]ResourceSubtype, error)
	ListRoles(ctx context.Context) ([]ResourceRole, error)

	GetType(ctx context.Context, id uuid.UUID) (*ResourceType, error)
	GetSubtype(ctx context.Context, id uuid.UUID) (*ResourceSubtype, error)
	GetRole(ctx context.Context, id uuid.UUID) (*ResourceRole, error)

	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	ListResources(ctx context.Context, f ListFilter) ([]Resource, error)
	// ListByRole returns active resources assigned the role, in catalog
	// order (sort_index, then creation time).
	ListByRole(ctx context.Context, roleID uuid.UUID) ([]Resource, error)

	CreateResource(ctx context.Context, r *Resource) error
	UpdateResource(ctx context.Context, r *Resource) error
	DeleteResource(ctx context.Context, id uuid.UUID) error
	CountChildren(ctx context.Context, id uuid.UUID) (int, error)
}
