package catalog

import (
	"time"

	"github.com/google/uuid"
)

// ReservationMode controls how many concurrent reservations a resource
// can hold. Availability windows may override it per window.
type ReservationMode string

const (
	ModeExclusive ReservationMode = "exclusive"
	ModeShared    ReservationMode = "shared"
)

// ResourceType is the top level taxonomy: place, equipment, staff, consumable.
type ResourceType struct {
	ID        uuid.UUID
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	TypePlace      = "place"
	TypeEquipment  = "equipment"
	TypeStaff      = "staff"
	TypeConsumable = "consumable"
)

type ResourceSubtype struct {
	ID        uuid.UUID
	TypeID    uuid.UUID
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResourceRole is a functional capability a resource can fulfill,
// e.g. "sonographer" or "mri-machine". Roles belong to one resource type.
type ResourceRole struct {
	ID        uuid.UUID
	TypeID    uuid.UUID
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource is one concrete bookable unit: a room, a machine, a staff
// member or a consumable stock line.
type Resource struct {
	ID            uuid.UUID
	TypeID        uuid.UUID
	SubtypeID     *uuid.UUID
	ParentID      *uuid.UUID // containing place, if any
	Name          string
	Mode          ReservationMode
	MaxConcurrent int // shared mode capacity; 1 for exclusive
	Consumable    bool
	Quantity      int // units on hand, consumables only
	LowThreshold  int // warn when free inventory falls to this level
	SortIndex     int // catalog order, used for deterministic assignment
	Active        bool
	RoleIDs       []uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasRole reports whether the resource is assigned the given role.
func (r *Resource) HasRole(roleID uuid.UUID) bool {
	for _, id := range r.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
