package procedure

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProcedureNotFound   = errors.New("procedure not found")
	ErrRequirementNotFound = errors.New("procedure requirement not found")
)

// Repository contains all procedure catalog DB interactions. GetProcedure
// returns the record hydrated with its requirements and ordered children.
type Repository interface {
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
	ListProcedures(ctx context.Context, activeOnly bool) ([]Procedure, error)

	CreateProcedure(ctx context.Context, p *Procedure) error
	UpdateProcedure(ctx context.Context, p *Procedure) error
	DeleteProcedure(ctx context.Context, id uuid.UUID) error

	AddRequirement(ctx context.Context, req *Requirement) error
	RemoveRequirement(ctx context.Context, id uuid.UUID) error

	AddChild(ctx context.Context, link *ChildLink) error
	RemoveChild(ctx context.Context, id uuid.UUID) error
}
