package procedure

import (
	"time"

	"github.com/google/uuid"
)

type ProcedureType string

const (
	TypeAtomic    ProcedureType = "atomic"
	TypeComposite ProcedureType = "composite"
)

// Procedure is a bookable clinical service. Atomic procedures have a fixed
// duration and a flat requirement list; composite procedures are ordered
// sequences of child procedures with inter-step gaps.
type Procedure struct {
	ID                  uuid.UUID
	Name                string
	Type                ProcedureType
	DurationMinutes     int // atomic only
	BufferBeforeMinutes int
	Active              bool
	Requirements        []Requirement // atomic only
	Children            []ChildLink   // composite only, by sequence order
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Requirement declares "this procedure needs N of role R between minute A
// and minute B of its duration".
type Requirement struct {
	ID                 uuid.UUID
	ProcedureID        uuid.UUID
	RoleID             uuid.UUID
	QuantityMin        int
	QuantityMax        int
	Required           bool
	OffsetStartMinutes int
	OffsetEndMinutes   int
}

// ChildLink places one child procedure inside a composite parent.
type ChildLink struct {
	ID              uuid.UUID
	ParentID        uuid.UUID
	ChildID         uuid.UUID
	SequenceOrder   int
	GapAfterMinutes int
}
