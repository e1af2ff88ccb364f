package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/booking"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/procedure"
	"github.com/careops/clinic-scheduling/internal/slot"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// --- catalog ---

type ResourceRequest struct {
	TypeID        uuid.UUID   `json:"type_id"`
	SubtypeID     *uuid.UUID  `json:"subtype_id,omitempty"`
	ParentID      *uuid.UUID  `json:"parent_id,omitempty"`
	Name          string      `json:"name"`
	Mode          string      `json:"mode,omitempty"`
	MaxConcurrent int         `json:"max_concurrent,omitempty"`
	Quantity      int         `json:"quantity,omitempty"`
	LowThreshold  int         `json:"low_threshold,omitempty"`
	SortIndex     int         `json:"sort_index,omitempty"`
	Active        *bool       `json:"active,omitempty"`
	RoleIDs       []uuid.UUID `json:"role_ids,omitempty"`
}

func (r *ResourceRequest) toModel() *catalog.Resource {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &catalog.Resource{
		TypeID:        r.TypeID,
		SubtypeID:     r.SubtypeID,
		ParentID:      r.ParentID,
		Name:          r.Name,
		Mode:          catalog.ReservationMode(r.Mode),
		MaxConcurrent: r.MaxConcurrent,
		Quantity:      r.Quantity,
		LowThreshold:  r.LowThreshold,
		SortIndex:     r.SortIndex,
		Active:        active,
		RoleIDs:       r.RoleIDs,
	}
}

type ResourceResponse struct {
	ID            uuid.UUID   `json:"id"`
	TypeID        uuid.UUID   `json:"type_id"`
	SubtypeID     *uuid.UUID  `json:"subtype_id,omitempty"`
	ParentID      *uuid.UUID  `json:"parent_id,omitempty"`
	Name          string      `json:"name"`
	Mode          string      `json:"mode"`
	MaxConcurrent int         `json:"max_concurrent"`
	Consumable    bool        `json:"consumable"`
	Quantity      int         `json:"quantity,omitempty"`
	LowThreshold  int         `json:"low_threshold,omitempty"`
	SortIndex     int         `json:"sort_index"`
	Active        bool        `json:"active"`
	RoleIDs       []uuid.UUID `json:"role_ids,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func toResourceResponse(res *catalog.Resource) ResourceResponse {
	return ResourceResponse{
		ID:            res.ID,
		TypeID:        res.TypeID,
		SubtypeID:     res.SubtypeID,
		ParentID:      res.ParentID,
		Name:          res.Name,
		Mode:          string(res.Mode),
		MaxConcurrent: res.MaxConcurrent,
		Consumable:    res.Consumable,
		Quantity:      res.Quantity,
		LowThreshold:  res.LowThreshold,
		SortIndex:     res.SortIndex,
		Active:        res.Active,
		RoleIDs:       res.RoleIDs,
		CreatedAt:     res.CreatedAt,
	}
}

type InventoryResponse struct {
	ResourceID   uuid.UUID `json:"resource_id"`
	OnHand       int       `json:"on_hand"`
	HeldUpcoming int       `json:"held_upcoming"`
	LowThreshold int       `json:"low_threshold"`
	Low          bool      `json:"low"`
}

// --- availability ---

type RecurrenceRequest struct {
	Frequency  string     `json:"frequency"`
	Interval   int        `json:"interval"`
	DaysOfWeek []int      `json:"days_of_week,omitempty"`
	DayOfMonth int        `json:"day_of_month,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Count      int        `json:"count,omitempty"`
}

type AvailabilityRequest struct {
	StartTime             time.Time          `json:"start_time"`
	EndTime               time.Time          `json:"end_time"`
	Type                  string             `json:"type"`
	Recurrence            *RecurrenceRequest `json:"recurrence,omitempty"`
	ModeOverride          *string            `json:"mode_override,omitempty"`
	MaxConcurrentOverride *int               `json:"max_concurrent_override,omitempty"`
}

func (r *AvailabilityRequest) toModel(resourceID uuid.UUID) *availability.Availability {
	a := &availability.Availability{
		ResourceID:            resourceID,
		StartTime:             r.StartTime,
		EndTime:               r.EndTime,
		Type:                  availability.WindowType(r.Type),
		MaxConcurrentOverride: r.MaxConcurrentOverride,
	}
	if r.ModeOverride != nil {
		mode := catalog.ReservationMode(*r.ModeOverride)
		a.ModeOverride = &mode
	}
	if r.Recurrence != nil {
		rec := &availability.Recurrence{
			Frequency:  availability.Frequency(r.Recurrence.Frequency),
			Interval:   r.Recurrence.Interval,
			DayOfMonth: r.Recurrence.DayOfMonth,
			Until:      r.Recurrence.Until,
			Count:      r.Recurrence.Count,
		}
		for _, d := range r.Recurrence.DaysOfWeek {
			rec.DaysOfWeek = append(rec.DaysOfWeek, time.Weekday(d))
		}
		a.Recurrence = rec
	}
	return a
}

type WindowResponse struct {
	AvailabilityID uuid.UUID `json:"availability_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Type           string    `json:"type"`
}

func toWindowResponses(windows []availability.Window) []WindowResponse {
	out := make([]WindowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, WindowResponse{
			AvailabilityID: w.AvailabilityID,
			Start:          w.Start,
			End:            w.End,
			Type:           string(w.Type),
		})
	}
	return out
}

type CheckResponse struct {
	Available     bool                    `json:"available"`
	Mode          string                  `json:"mode"`
	MaxConcurrent int                     `json:"max_concurrent"`
	Conflicts     []availability.Conflict `json:"conflicts,omitempty"`
}

// --- procedures ---

type ProcedureRequest struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	DurationMinutes     int    `json:"duration_minutes,omitempty"`
	BufferBeforeMinutes int    `json:"buffer_before_minutes,omitempty"`
	Active              *bool  `json:"active,omitempty"`
}

func (r *ProcedureRequest) toModel() *procedure.Procedure {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &procedure.Procedure{
		Name:                r.Name,
		Type:                procedure.ProcedureType(r.Type),
		DurationMinutes:     r.DurationMinutes,
		BufferBeforeMinutes: r.BufferBeforeMinutes,
		Active:              active,
	}
}

type RequirementRequest struct {
	RoleID             uuid.UUID `json:"role_id"`
	QuantityMin        int       `json:"quantity_min"`
	QuantityMax        int       `json:"quantity_max,omitempty"`
	Required           *bool     `json:"required,omitempty"`
	OffsetStartMinutes int       `json:"offset_start_minutes,omitempty"`
	OffsetEndMinutes   int       `json:"offset_end_minutes,omitempty"`
}

type ChildLinkRequest struct {
	ChildID         uuid.UUID `json:"child_id"`
	SequenceOrder   int       `json:"sequence_order"`
	GapAfterMinutes int       `json:"gap_after_minutes,omitempty"`
}

type ProcedureResponse struct {
	ID                  uuid.UUID               `json:"id"`
	Name                string                  `json:"name"`
	Type                string                  `json:"type"`
	DurationMinutes     int                     `json:"duration_minutes,omitempty"`
	BufferBeforeMinutes int                     `json:"buffer_before_minutes,omitempty"`
	Active              bool                    `json:"active"`
	Requirements        []procedure.Requirement `json:"requirements,omitempty"`
	Children            []procedure.ChildLink   `json:"children,omitempty"`
}

func toProcedureResponse(p *procedure.Procedure) ProcedureResponse {
	return ProcedureResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Type:                string(p.Type),
		DurationMinutes:     p.DurationMinutes,
		BufferBeforeMinutes: p.BufferBeforeMinutes,
		Active:              p.Active,
		Requirements:        p.Requirements,
		Children:            p.Children,
	}
}

type ExpandedRequirementResponse struct {
	RoleID             uuid.UUID   `json:"role_id"`
	ProcedureID        uuid.UUID   `json:"procedure_id"`
	QuantityMin        int         `json:"quantity_min"`
	QuantityMax        int         `json:"quantity_max"`
	Required           bool        `json:"required"`
	OffsetStartMinutes int         `json:"offset_start_minutes"`
	OffsetEndMinutes   int         `json:"offset_end_minutes"`
	EligibleResources  []uuid.UUID `json:"eligible_resources"`
}

func toExpandedResponses(reqs []procedure.ExpandedRequirement) []ExpandedRequirementResponse {
	out := make([]ExpandedRequirementResponse, 0, len(reqs))
	for _, req := range reqs {
		ids := make([]uuid.UUID, 0, len(req.EligibleResources))
		for i := range req.EligibleResources {
			ids = append(ids, req.EligibleResources[i].ID)
		}
		out = append(out, ExpandedRequirementResponse{
			RoleID:             req.RoleID,
			ProcedureID:        req.ProcedureID,
			QuantityMin:        req.QuantityMin,
			QuantityMax:        req.QuantityMax,
			Required:           req.Required,
			OffsetStartMinutes: req.OffsetStartMinutes,
			OffsetEndMinutes:   req.OffsetEndMinutes,
			EligibleResources:  ids,
		})
	}
	return out
}

// --- slots ---

type GenerateSlotsRequest struct {
	RangeStart      time.Time  `json:"range_start"`
	RangeEnd        time.Time  `json:"range_end"`
	IntervalMinutes int        `json:"interval_minutes,omitempty"`
	MaxSlots        int        `json:"max_slots,omitempty"`
	LocationID      *uuid.UUID `json:"location_id,omitempty"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	ProcedureID uuid.UUID `json:"procedure_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	Generation  string    `json:"generation_type"`
}

func toSlotResponse(s *slot.ProcedureSlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		ProcedureID: s.ProcedureID,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Status:      string(s.Status),
		Generation:  string(s.Generation),
	}
}

// --- appointments ---

type BookAppointmentRequest struct {
	SlotID      *uuid.UUID                   `json:"slot_id,omitempty"`
	ProcedureID *uuid.UUID                   `json:"procedure_id,omitempty"`
	StartTime   *time.Time                   `json:"start_time,omitempty"`
	ContactID   uuid.UUID                    `json:"contact_id"`
	Notes       string                       `json:"notes,omitempty"`
	Preferences []booking.ResourcePreference `json:"preferences,omitempty"`
}

func (r *BookAppointmentRequest) toModel() booking.BookRequest {
	req := booking.BookRequest{
		ContactID:   r.ContactID,
		Notes:       r.Notes,
		Preferences: r.Preferences,
	}
	if r.SlotID != nil {
		req.SlotID = *r.SlotID
	}
	if r.ProcedureID != nil {
		req.ProcedureID = *r.ProcedureID
	}
	if r.StartTime != nil {
		req.StartTime = *r.StartTime
	}
	return req
}

type AppointmentResponse struct {
	ID          uuid.UUID                    `json:"id"`
	SlotID      uuid.UUID                    `json:"slot_id"`
	ContactID   uuid.UUID                    `json:"contact_id"`
	Status      string                       `json:"status"`
	Notes       string                       `json:"notes,omitempty"`
	Preferences []booking.ResourcePreference `json:"preferences,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		SlotID:      a.SlotID,
		ContactID:   a.ContactID,
		Status:      string(a.Status),
		Notes:       a.Notes,
		Preferences: a.Preferences,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type BookResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Slot        SlotResponse        `json:"slot"`
	Warnings    []booking.Warning   `json:"warnings,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	SlotID      *uuid.UUID `json:"slot_id,omitempty"`
	ProcedureID *uuid.UUID `json:"procedure_id,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type ReassignRequest struct {
	OldResourceID uuid.UUID `json:"old_resource_id"`
	NewResourceID uuid.UUID `json:"new_resource_id"`
}
