package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/internal/slot"
)

var (
	ErrMissingSlotOrTime = errors.New("either slot_id or procedure_id with start_time is required")
	ErrAppointmentClosed = errors.New("appointment is already in a terminal status")
)

// alternativeWindowDays bounds how far ahead Book searches for suggested
// alternatives when it has to reject a request.
const (
	alternativeWindowDays = 14
	maxAlternatives       = 5
)

// SlotStore is the slice of the slot repository the booking engine needs.
type SlotStore interface {
	Get(ctx context.Context, id uuid.UUID) (*slot.ProcedureSlot, error)
}

// RequirementSource flattens a procedure into absolute timed requirements.
type RequirementSource interface {
	Expand(ctx context.Context, procedureID uuid.UUID) ([]procedure.ExpandedRequirement, error)
}

type DurationSource interface {
	TotalDuration(ctx context.Context, id uuid.UUID) (int, error)
}

// AvailabilityChecker answers whether one resource is free for a window.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*availability.CheckResult, error)
}

// AlternativeSource proposes candidate slots when a booking is rejected.
type AlternativeSource interface {
	GenerateSlots(ctx context.Context, p slot.GenerateParams) ([]slot.Candidate, error)
}

type ResourceGetter interface {
	GetResource(ctx context.Context, id uuid.UUID) (*catalog.Resource, error)
}

type RolePool interface {
	ListByRole(ctx context.Context, roleID uuid.UUID) ([]catalog.Resource, error)
}

// Service is the booking engine: the only write path into appointments and
// the reservation ledger.
type Service struct {
	repo         Repository
	slots        SlotStore
	requirements RequirementSource
	durations    DurationSource
	checker      AvailabilityChecker
	alternatives AlternativeSource
	resources    ResourceGetter
	rolePool     RolePool
	reservations ledger.Repository
	locker       redisclient.Locker
	logger       zerolog.Logger
}

func NewService(
	repo Repository,
	slots SlotStore,
	requirements RequirementSource,
	durations DurationSource,
	checker AvailabilityChecker,
	alternatives AlternativeSource,
	resources ResourceGetter,
	rolePool RolePool,
	reservations ledger.Repository,
	locker redisclient.Locker,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		slots:        slots,
		requirements: requirements,
		durations:    durations,
		checker:      checker,
		alternatives: alternatives,
		resources:    resources,
		rolePool:     rolePool,
		reservations: reservations,
		locker:       locker,
		logger:       logger,
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// Book reserves every required resource for the slot's window and commits
// the appointment atomically. Nothing is persisted on rejection: the
// caller gets a ConflictError naming the unmet requirements plus suggested
// alternatives instead.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	target, newSlot, err := s.resolveSlot(ctx, req)
	if err != nil {
		return nil, err
	}

	lockKey := redisclient.SlotKey(target.ID)
	if newSlot != nil {
		// Ad hoc bookings have no slot row yet; serialize on the
		// procedure and start time instead.
		lockKey = fmt.Sprintf("lock:booking:%s:%d", target.ProcedureID, target.StartTime.Unix())
	}

	var result *BookResult
	err = s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		var lockErr error
		result, lockErr = s.bookLocked(ctx, req, target, newSlot)
		return lockErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveSlot maps the request onto either an existing available slot or
// an ad hoc in-memory slot persisted inside the commit transaction.
func (s *Service) resolveSlot(ctx context.Context, req BookRequest) (*slot.ProcedureSlot, *slot.ProcedureSlot, error) {
	if req.SlotID != uuid.Nil {
		existing, err := s.slots.Get(ctx, req.SlotID)
		if err != nil {
			return nil, nil, err
		}
		if existing.Status != slot.StatusAvailable {
			return nil, nil, slot.ErrSlotNotBookable(existing.Status)
		}
		return existing, nil, nil
	}

	if req.ProcedureID == uuid.Nil || req.StartTime.IsZero() {
		return nil, nil, ErrMissingSlotOrTime
	}
	totalMinutes, err := s.durations.TotalDuration(ctx, req.ProcedureID)
	if err != nil {
		return nil, nil, err
	}
	adHoc := &slot.ProcedureSlot{
		ID:          uuid.New(),
		ProcedureID: req.ProcedureID,
		StartTime:   req.StartTime,
		EndTime:     req.StartTime.Add(time.Duration(totalMinutes) * time.Minute),
		Status:      slot.StatusAvailable,
		Generation:  slot.GenerationManual,
	}
	return adHoc, adHoc, nil
}

func (s *Service) bookLocked(ctx context.Context, req BookRequest, target, newSlot *slot.ProcedureSlot) (*BookResult, error) {
	reqs, err := s.requirements.Expand(ctx, target.ProcedureID)
	if err != nil {
		return nil, err
	}

	plan, warnings, conflicts, shortfalls, err := s.assign(ctx, target, reqs, req.Preferences)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 || len(shortfalls) > 0 {
		alternatives, altErr := s.suggestAlternatives(ctx, target)
		if altErr != nil {
			s.logger.Warn().Err(altErr).Msg("alternative search failed")
		}
		return nil, &ConflictError{Conflicts: conflicts, Shortfalls: shortfalls, Alternatives: alternatives}
	}

	appt := &Appointment{
		SlotID:      target.ID,
		ContactID:   req.ContactID,
		Status:      StatusPending,
		Notes:       req.Notes,
		Preferences: req.Preferences,
	}
	if err := s.repo.Commit(ctx, appt, plan, newSlot); err != nil {
		return nil, err
	}
	target.Status = slot.StatusBooked

	s.recordEvent(ctx, EventBooked, appt.ID, map[string]any{
		"slot_id":      target.ID,
		"procedure_id": target.ProcedureID,
		"start_time":   target.StartTime,
	})
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", target.ID.String()).
		Int("reservations", len(plan)).
		Msg("appointment booked")

	return &BookResult{Appointment: appt, Slot: target, Warnings: warnings}, nil
}

// assign picks concrete resources for every expanded requirement.
// Preferences are honored first: a required preference that cannot be
// satisfied rejects the booking, a preferred one degrades to a warning.
// Remaining seats fill from the eligible pool in catalog order.
func (s *Service) assign(
	ctx context.Context,
	target *slot.ProcedureSlot,
	reqs []procedure.ExpandedRequirement,
	prefs []ResourcePreference,
) ([]ledger.Reservation, []Warning, []availability.Conflict, []slot.Shortfall, error) {
	var (
		plan       []ledger.Reservation
		warnings   []Warning
		conflicts  []availability.Conflict
		shortfalls []slot.Shortfall
		taken      = make(map[uuid.UUID]bool)
	)

	prefsByRole := make(map[uuid.UUID][]ResourcePreference)
	for _, p := range prefs {
		prefsByRole[p.RoleID] = append(prefsByRole[p.RoleID], p)
	}

	for _, req := range reqs {
		subStart := target.StartTime.Add(time.Duration(req.OffsetStartMinutes) * time.Minute)
		subEnd := target.StartTime.Add(time.Duration(req.OffsetEndMinutes) * time.Minute)

		var chosen []chosenResource

		for _, pref := range prefsByRole[req.RoleID] {
			if len(chosen) >= req.QuantityMax && req.QuantityMax > 0 {
				break
			}
			pick, cs, w := s.tryResource(ctx, req, pref.ResourceID, subStart, subEnd, taken)
			warnings = append(warnings, w...)
			if pick != nil {
				chosen = append(chosen, *pick)
				taken[pick.resource.ID] = true
				continue
			}
			if pref.Level == PreferenceRequired {
				conflicts = append(conflicts, cs...)
			} else {
				warnings = append(warnings, Warning{
					Code:       "preference_unavailable",
					ResourceID: pref.ResourceID,
					Message:    "preferred resource is unavailable",
				})
			}
		}

		for i := range req.EligibleResources {
			if len(chosen) >= req.QuantityMin {
				break
			}
			res := &req.EligibleResources[i]
			if taken[res.ID] {
				continue
			}
			pick, _, w := s.tryResource(ctx, req, res.ID, subStart, subEnd, taken)
			warnings = append(warnings, w...)
			if pick != nil {
				chosen = append(chosen, *pick)
				taken[pick.resource.ID] = true
			}
		}

		if len(chosen) < req.QuantityMin && req.Required {
			shortfalls = append(shortfalls, slot.Shortfall{
				RoleID:    req.RoleID,
				Needed:    req.QuantityMin,
				Available: len(chosen),
			})
			continue
		}

		for _, c := range chosen {
			qty := 0
			if c.resource.Consumable {
				qty = 1
			}
			plan = append(plan, ledger.Reservation{
				ResourceID:       c.resource.ID,
				RoleID:           req.RoleID,
				ReservedStart:    subStart,
				ReservedEnd:      subEnd,
				Mode:             c.mode,
				QuantityConsumed: qty,
			})
		}
	}

	return plan, warnings, conflicts, shortfalls, nil
}

type chosenResource struct {
	resource *catalog.Resource
	mode     catalog.ReservationMode
}

// tryResource checks one candidate resource against the sub window. A nil
// pick means the resource cannot serve; the returned conflicts explain why.
func (s *Service) tryResource(
	ctx context.Context,
	req procedure.ExpandedRequirement,
	resourceID uuid.UUID,
	subStart, subEnd time.Time,
	taken map[uuid.UUID]bool,
) (*chosenResource, []availability.Conflict, []Warning) {
	if taken[resourceID] {
		return nil, nil, nil
	}

	var res *catalog.Resource
	for i := range req.EligibleResources {
		if req.EligibleResources[i].ID == resourceID {
			res = &req.EligibleResources[i]
			break
		}
	}
	if res == nil || !res.Active {
		return nil, []availability.Conflict{{
			ResourceID: resourceID,
			Reason:     availability.ReasonOutsideAvailability,
			Start:      subStart,
			End:        subEnd,
		}}, nil
	}

	check, err := s.checker.CheckAvailability(ctx, res.ID, subStart, subEnd)
	if err != nil {
		s.logger.Warn().Err(err).Str("resource_id", res.ID.String()).Msg("availability check errored")
		return nil, []availability.Conflict{{
			ResourceID: res.ID,
			Reason:     availability.ReasonOutsideAvailability,
			Start:      subStart,
			End:        subEnd,
		}}, nil
	}
	if !check.Available {
		return nil, check.Conflicts, nil
	}

	var warnings []Warning
	if res.Consumable {
		// Inventory is decremented at commit, so on-hand already nets
		// out live holds.
		if res.Quantity < 1 {
			// skipped with a warning; the conflict only surfaces when a
			// required preference insisted on this resource
			conflict := availability.Conflict{
				ResourceID: res.ID,
				Reason:     availability.ReasonOutOfStock,
				Start:      subStart,
				End:        subEnd,
			}
			warn := Warning{
				Code:       "out_of_stock",
				ResourceID: res.ID,
				Message:    res.Name + " is out of stock",
			}
			return nil, []availability.Conflict{conflict}, []Warning{warn}
		}
		if res.Quantity-1 <= res.LowThreshold {
			warnings = append(warnings, Warning{
				Code:       "low_stock",
				ResourceID: res.ID,
				Message:    res.Name + " is running low",
				Remaining:  res.Quantity - 1,
			})
		}
	}

	return &chosenResource{resource: res, mode: check.Mode}, nil, warnings
}

func (s *Service) suggestAlternatives(ctx context.Context, target *slot.ProcedureSlot) ([]slot.Candidate, error) {
	candidates, err := s.alternatives.GenerateSlots(ctx, slot.GenerateParams{
		ProcedureID: target.ProcedureID,
		RangeStart:  target.EndTime,
		RangeEnd:    target.EndTime.AddDate(0, 0, alternativeWindowDays),
		MaxSlots:    maxAlternatives,
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusPending)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, EventConfirmed, id, nil)
	return appt, nil
}

// Cancel releases every reservation, restores consumed inventory and
// reopens the slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		reason = "cancelled"
	}
	appt, err := s.repo.CancelTx(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, EventCancelled, id, map[string]any{"reason": reason})
	s.logger.Info().Str("appointment_id", id.String()).Msg("appointment cancelled")
	return appt, nil
}

// Complete closes out a confirmed appointment. Consumed inventory stays
// consumed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, id, StatusCompleted, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, EventCompleted, id, nil)
	return appt, nil
}

// MarkNoShow records a missed confirmed appointment. Reservations are
// released by status, consumed inventory is not restored.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, id, StatusNoShow, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, EventNoShow, id, nil)
	return appt, nil
}

// Reschedule cancels the appointment and books the new request for the
// same contact, carrying preferences over. If the new booking fails it
// compensates by re-booking the freed original slot, so the caller never
// loses their appointment to a failed move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newReq BookRequest) (*BookResult, error) {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, ErrAppointmentClosed
	}

	newReq.ContactID = current.ContactID
	if len(newReq.Preferences) == 0 {
		newReq.Preferences = current.Preferences
	}

	if _, err := s.Cancel(ctx, id, "rescheduled"); err != nil {
		return nil, err
	}

	result, bookErr := s.Book(ctx, newReq)
	if bookErr != nil {
		// Compensate: the original slot was reopened by Cancel, take it
		// back before surfacing the failure.
		_, restoreErr := s.Book(ctx, BookRequest{
			SlotID:      current.SlotID,
			ContactID:   current.ContactID,
			Notes:       current.Notes,
			Preferences: current.Preferences,
		})
		if restoreErr != nil {
			s.logger.Error().
				Err(restoreErr).
				Str("appointment_id", id.String()).
				Msg("reschedule compensation failed, original slot lost")
			return nil, fmt.Errorf("reschedule failed and original could not be restored: %w", bookErr)
		}
		return nil, bookErr
	}

	s.recordEvent(ctx, EventRescheduled, result.Appointment.ID, map[string]any{
		"previous_appointment_id": id,
		"previous_slot_id":        current.SlotID,
	})
	return result, nil
}

// CheckCoverageNeeded reports every live appointment that would lose a
// resource going offline over [start, end), with the substitutes that
// could take each hold over the exact reserved window.
func (s *Service) CheckCoverageNeeded(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]CoverageItem, error) {
	affected, err := s.repo.ListReservingResource(ctx, resourceID, start, end)
	if err != nil {
		return nil, err
	}

	var items []CoverageItem
	for _, appt := range affected {
		holds, err := s.reservations.ListByAppointment(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		for _, hold := range holds {
			if hold.ResourceID != resourceID || !hold.Overlaps(start, end) {
				continue
			}
			alternatives, err := s.substitutes(ctx, hold.RoleID, resourceID, hold.ReservedStart, hold.ReservedEnd)
			if err != nil {
				return nil, err
			}
			items = append(items, CoverageItem{
				AppointmentID:    appt.ID,
				RoleID:           hold.RoleID,
				ReservedStart:    hold.ReservedStart,
				ReservedEnd:      hold.ReservedEnd,
				Alternatives:     alternatives,
				AutoReassignable: len(alternatives) > 0,
			})
		}
	}
	return items, nil
}

func (s *Service) substitutes(ctx context.Context, roleID, excludeID uuid.UUID, start, end time.Time) ([]uuid.UUID, error) {
	pool, err := s.rolePool.ListByRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for i := range pool {
		res := &pool[i]
		if res.ID == excludeID || !res.Active {
			continue
		}
		check, err := s.checker.CheckAvailability(ctx, res.ID, start, end)
		if err != nil {
			return nil, err
		}
		if check.Available {
			out = append(out, res.ID)
		}
	}
	return out, nil
}

// ReassignResource swaps one reservation onto a substitute resource of the
// same role. The swap happens only after the substitute passes an
// availability check for the exact reserved window, so a failed reassign
// leaves the original hold untouched.
func (s *Service) ReassignResource(ctx context.Context, appointmentID, oldResourceID, newResourceID uuid.UUID) error {
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Status.Terminal() {
		return ErrAppointmentClosed
	}

	holds, err := s.reservations.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	var hold *ledger.Reservation
	for i := range holds {
		if holds[i].ResourceID == oldResourceID {
			hold = &holds[i]
			break
		}
	}
	if hold == nil {
		return ledger.ErrReservationNotFound
	}

	substitute, err := s.resources.GetResource(ctx, newResourceID)
	if err != nil {
		return err
	}
	if !substitute.Active || !substitute.HasRole(hold.RoleID) {
		return fmt.Errorf("resource %s cannot fill role %s", newResourceID, hold.RoleID)
	}

	return s.locker.WithLock(ctx, redisclient.ResourceKey(newResourceID), func(ctx context.Context) error {
		check, err := s.checker.CheckAvailability(ctx, newResourceID, hold.ReservedStart, hold.ReservedEnd)
		if err != nil {
			return err
		}
		if !check.Available {
			return &ConflictError{Conflicts: check.Conflicts}
		}

		if err := s.repo.ReplaceReservationResource(ctx, appointmentID, oldResourceID, newResourceID); err != nil {
			return err
		}
		s.recordEvent(ctx, EventReassigned, appointmentID, map[string]any{
			"old_resource_id": oldResourceID,
			"new_resource_id": newResourceID,
			"role_id":         hold.RoleID,
		})
		s.logger.Info().
			Str("appointment_id", appointmentID.String()).
			Str("old_resource_id", oldResourceID.String()).
			Str("new_resource_id", newResourceID.String()).
			Msg("resource reassigned")
		return nil
	})
}

// recordEvent appends an audit row. Event logging never fails the
// operation that triggered it.
func (s *Service) recordEvent(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	ev := EventLog{EventType: eventType, AppointmentID: &appointmentID, Payload: body}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event log write failed")
	}
}
