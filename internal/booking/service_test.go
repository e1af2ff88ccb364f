package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	"github.com/careops/clinic-scheduling/internal/slot"
)

// mockRepo keeps the whole booking state in maps and mimics the
// transactional guarantees of the real repository.
type mockRepo struct {
	appointments map[uuid.UUID]*Appointment
	reservations map[uuid.UUID][]ledger.Reservation
	slots        map[uuid.UUID]*slot.ProcedureSlot
	inventory    map[uuid.UUID]int
	events       []EventLog
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		appointments: make(map[uuid.UUID]*Appointment),
		reservations: make(map[uuid.UUID][]ledger.Reservation),
		slots:        make(map[uuid.UUID]*slot.ProcedureSlot),
		inventory:    make(map[uuid.UUID]int),
	}
}

func (m *mockRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Commit(_ context.Context, appt *Appointment, reservations []ledger.Reservation, newSlot *slot.ProcedureSlot) error {
	if newSlot != nil {
		newSlot.Status = slot.StatusBooked
		m.slots[newSlot.ID] = newSlot
		appt.SlotID = newSlot.ID
	} else {
		s, ok := m.slots[appt.SlotID]
		if !ok {
			return slot.ErrSlotNotFound
		}
		if s.Status != slot.StatusAvailable {
			return slot.ErrSlotNotBookable(s.Status)
		}
		s.Status = slot.StatusBooked
	}

	for resourceID, qty := range consumedBy(reservations) {
		if m.inventory[resourceID] < qty {
			return ErrInsufficientInventory
		}
		m.inventory[resourceID] -= qty
	}

	appt.ID = uuid.New()
	appt.Status = StatusPending
	appt.CreatedAt = time.Now()
	for i := range reservations {
		reservations[i].AppointmentID = appt.ID
	}
	m.appointments[appt.ID] = appt
	m.reservations[appt.ID] = reservations
	return nil
}

func consumedBy(reservations []ledger.Reservation) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for _, r := range reservations {
		if r.QuantityConsumed > 0 {
			out[r.ResourceID] += r.QuantityConsumed
		}
	}
	return out
}

func (m *mockRepo) CancelTx(_ context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}
	a.Status = StatusCancelled
	a.Notes = a.Notes + reason
	for resourceID, qty := range consumedBy(m.reservations[id]) {
		m.inventory[resourceID] += qty
	}
	if s, ok := m.slots[a.SlotID]; ok && s.Status == slot.StatusBooked {
		s.Status = slot.StatusAvailable
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	for _, f := range from {
		if a.Status == f {
			a.Status = to
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrInvalidStatusTransition
}

func (m *mockRepo) AppendNotes(_ context.Context, id uuid.UUID, notes string) error {
	a, ok := m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Notes += notes
	return nil
}

func (m *mockRepo) ListReservingResource(_ context.Context, resourceID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	var out []Appointment
	for id, holds := range m.reservations {
		a := m.appointments[id]
		if a.Status.Terminal() {
			continue
		}
		for _, h := range holds {
			if h.ResourceID == resourceID && h.Overlaps(start, end) {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

func (m *mockRepo) ReplaceReservationResource(_ context.Context, appointmentID, oldResourceID, newResourceID uuid.UUID) error {
	holds := m.reservations[appointmentID]
	for i := range holds {
		if holds[i].ResourceID == oldResourceID {
			holds[i].ResourceID = newResourceID
			return nil
		}
	}
	return ledger.ErrReservationNotFound
}

func (m *mockRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.events = append(m.events, ev)
	return nil
}

// ledger read side over the same state
type mockLedger struct{ repo *mockRepo }

func (m *mockLedger) ListForResourceInRange(_ context.Context, resourceID uuid.UUID, start, end time.Time) ([]ledger.Reservation, error) {
	var out []ledger.Reservation
	for id, holds := range m.repo.reservations {
		if m.repo.appointments[id].Status.Terminal() {
			continue
		}
		for _, h := range holds {
			if h.ResourceID == resourceID && h.Overlaps(start, end) {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (m *mockLedger) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]ledger.Reservation, error) {
	return m.repo.reservations[appointmentID], nil
}

func (m *mockLedger) ReservedQuantity(context.Context, uuid.UUID, time.Time) (int, error) {
	return 0, nil
}

type mockSlotStore struct{ repo *mockRepo }

func (m *mockSlotStore) Get(_ context.Context, id uuid.UUID) (*slot.ProcedureSlot, error) {
	s, ok := m.repo.slots[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return s, nil
}

type mockRequirements struct {
	reqs []procedure.ExpandedRequirement
}

func (m *mockRequirements) Expand(context.Context, uuid.UUID) ([]procedure.ExpandedRequirement, error) {
	return m.reqs, nil
}

type mockDurations struct{ minutes int }

func (m *mockDurations) TotalDuration(context.Context, uuid.UUID) (int, error) {
	return m.minutes, nil
}

// mockChecker answers from the live mock ledger so double bookings show
// up exactly as they would against Postgres.
type mockChecker struct {
	resources map[uuid.UUID]*catalog.Resource
	ledger    *mockLedger
}

func (m *mockChecker) CheckAvailability(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*availability.CheckResult, error) {
	res, ok := m.resources[resourceID]
	if !ok {
		return nil, catalog.ErrResourceNotFound
	}
	holds, _ := m.ledger.ListForResourceInRange(ctx, resourceID, start, end)
	return availability.CheckAgainst(res, nil, holds, start, end), nil
}

type mockAlternatives struct {
	candidates []slot.Candidate
}

func (m *mockAlternatives) GenerateSlots(context.Context, slot.GenerateParams) ([]slot.Candidate, error) {
	return m.candidates, nil
}

type mockResources struct {
	resources map[uuid.UUID]*catalog.Resource
}

func (m *mockResources) GetResource(_ context.Context, id uuid.UUID) (*catalog.Resource, error) {
	res, ok := m.resources[id]
	if !ok {
		return nil, catalog.ErrResourceNotFound
	}
	return res, nil
}

func (m *mockResources) ListByRole(_ context.Context, roleID uuid.UUID) ([]catalog.Resource, error) {
	var out []catalog.Resource
	for _, res := range m.resources {
		if res.HasRole(roleID) {
			out = append(out, *res)
		}
	}
	return out, nil
}

// inlineLocker runs the critical section directly.
type inlineLocker struct{}

func (inlineLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fixture wires a one-room one-sonographer clinic with a 30 minute
// procedure and one open slot.
type fixture struct {
	repo    *mockRepo
	svc     *Service
	slotID  uuid.UUID
	room    *catalog.Resource
	staff   *catalog.Resource
	reqs    *mockRequirements
	catalog *mockResources
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 2, hour, min, 0, 0, time.UTC)
}

func newFixture() *fixture {
	roomRole, staffRole := uuid.New(), uuid.New()
	room := &catalog.Resource{
		ID: uuid.New(), Name: "Exam Room", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, SortIndex: 0, RoleIDs: []uuid.UUID{roomRole},
	}
	staff := &catalog.Resource{
		ID: uuid.New(), Name: "Sam Rivers", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, SortIndex: 0, RoleIDs: []uuid.UUID{staffRole},
	}

	repo := newMockRepo()
	s := &slot.ProcedureSlot{
		ID:          uuid.New(),
		ProcedureID: uuid.New(),
		StartTime:   at(9, 0),
		EndTime:     at(9, 30),
		Status:      slot.StatusAvailable,
		Generation:  slot.GenerationAuto,
	}
	repo.slots[s.ID] = s

	reqs := &mockRequirements{reqs: []procedure.ExpandedRequirement{
		{RoleID: roomRole, QuantityMin: 1, QuantityMax: 1, Required: true, OffsetEndMinutes: 30, EligibleResources: []catalog.Resource{*room}},
		{RoleID: staffRole, QuantityMin: 1, QuantityMax: 1, Required: true, OffsetEndMinutes: 30, EligibleResources: []catalog.Resource{*staff}},
	}}

	resources := &mockResources{resources: map[uuid.UUID]*catalog.Resource{
		room.ID:  room,
		staff.ID: staff,
	}}
	lgr := &mockLedger{repo: repo}
	checker := &mockChecker{resources: resources.resources, ledger: lgr}

	svc := NewService(
		repo, &mockSlotStore{repo: repo}, reqs, &mockDurations{minutes: 30},
		checker, &mockAlternatives{}, resources, resources, lgr,
		inlineLocker{}, zerolog.Nop(),
	)
	return &fixture{repo: repo, svc: svc, slotID: s.ID, room: room, staff: staff, reqs: reqs, catalog: resources}
}

func TestBookReservesEveryRequiredResource(t *testing.T) {
	f := newFixture()

	result, err := f.svc.Book(context.Background(), BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if result.Appointment.Status != StatusPending {
		t.Errorf("status = %s, want pending", result.Appointment.Status)
	}
	if f.repo.slots[f.slotID].Status != slot.StatusBooked {
		t.Errorf("slot must flip to booked")
	}
	holds := f.repo.reservations[result.Appointment.ID]
	if len(holds) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(holds))
	}
	seen := map[uuid.UUID]bool{}
	for _, h := range holds {
		seen[h.ResourceID] = true
		if !h.ReservedStart.Equal(at(9, 0)) || !h.ReservedEnd.Equal(at(9, 30)) {
			t.Errorf("hold window [%s, %s]", h.ReservedStart, h.ReservedEnd)
		}
	}
	if !seen[f.room.ID] || !seen[f.staff.ID] {
		t.Errorf("both room and staff must be held")
	}
	if len(f.repo.events) != 1 || f.repo.events[0].EventType != EventBooked {
		t.Errorf("booked event must be recorded")
	}
}

func TestBookRejectsDoubleBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	var notBookable *slot.NotBookableError
	if !errors.As(err, &notBookable) {
		t.Fatalf("second booking of the same slot must fail, got %v", err)
	}
	if len(f.repo.appointments) != 1 {
		t.Errorf("rejected booking must not create rows, have %d appointments", len(f.repo.appointments))
	}
}

func TestBookAdHocConflictsWithOverlappingHold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// Ad hoc request overlapping the committed holds must surface a
	// conflict naming the first appointment's resources.
	_, err := f.svc.Book(ctx, BookRequest{
		ProcedureID: uuid.New(),
		StartTime:   at(9, 15),
		ContactID:   uuid.New(),
	})
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("overlapping ad hoc booking must return ConflictError, got %v", err)
	}
	if len(conflictErr.Shortfalls) == 0 {
		t.Errorf("conflict must report the unmet roles")
	}
	if len(f.repo.appointments) != 1 {
		t.Errorf("nothing may be persisted on rejection")
	}
}

func TestBookRequiredPreferenceUnavailableFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Room held by an earlier booking.
	if _, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("setup booking: %v", err)
	}

	// New slot same time: required preference for the taken room.
	other := &slot.ProcedureSlot{
		ID: uuid.New(), ProcedureID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(9, 30), Status: slot.StatusAvailable,
	}
	f.repo.slots[other.ID] = other

	_, err := f.svc.Book(ctx, BookRequest{
		SlotID:    other.ID,
		ContactID: uuid.New(),
		Preferences: []ResourcePreference{
			{RoleID: f.room.RoleIDs[0], ResourceID: f.room.ID, Level: PreferenceRequired},
		},
	})
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("required preference on a held resource must fail, got %v", err)
	}
}

func TestBookConsumableInventory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stockRole := uuid.New()
	stock := &catalog.Resource{
		ID: uuid.New(), Name: "Contrast", Mode: catalog.ModeShared, MaxConcurrent: 10,
		Active: true, Consumable: true, Quantity: 2, LowThreshold: 1,
		RoleIDs: []uuid.UUID{stockRole},
	}
	f.catalog.resources[stock.ID] = stock
	f.repo.inventory[stock.ID] = stock.Quantity
	f.reqs.reqs = append(f.reqs.reqs, procedure.ExpandedRequirement{
		RoleID: stockRole, QuantityMin: 1, QuantityMax: 1, Required: true,
		OffsetEndMinutes: 30, EligibleResources: []catalog.Resource{*stock},
	})

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if f.repo.inventory[stock.ID] != 1 {
		t.Errorf("inventory = %d, want 1 after consuming a unit", f.repo.inventory[stock.ID])
	}
	foundLow := false
	for _, w := range result.Warnings {
		if w.Code == "low_stock" && w.ResourceID == stock.ID {
			foundLow = true
		}
	}
	if !foundLow {
		t.Errorf("dropping to the threshold must warn low_stock, got %+v", result.Warnings)
	}

	// Cancelling flows the unit back.
	if _, err := f.svc.Cancel(ctx, result.Appointment.ID, "test"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.repo.inventory[stock.ID] != 2 {
		t.Errorf("inventory = %d, want 2 after cancellation restore", f.repo.inventory[stock.ID])
	}
}

func TestBookSkipsOutOfStockConsumableWithWarning(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	gelRole := uuid.New()
	empty := &catalog.Resource{
		ID: uuid.New(), Name: "Gel A", Mode: catalog.ModeShared, MaxConcurrent: 10,
		Active: true, Consumable: true, Quantity: 0, LowThreshold: 5,
		SortIndex: 0, RoleIDs: []uuid.UUID{gelRole},
	}
	stocked := &catalog.Resource{
		ID: uuid.New(), Name: "Gel B", Mode: catalog.ModeShared, MaxConcurrent: 10,
		Active: true, Consumable: true, Quantity: 50, LowThreshold: 5,
		SortIndex: 1, RoleIDs: []uuid.UUID{gelRole},
	}
	f.catalog.resources[empty.ID] = empty
	f.catalog.resources[stocked.ID] = stocked
	f.repo.inventory[stocked.ID] = stocked.Quantity
	f.reqs.reqs = append(f.reqs.reqs, procedure.ExpandedRequirement{
		RoleID: gelRole, QuantityMin: 1, QuantityMax: 1, Required: true,
		OffsetEndMinutes: 30, EligibleResources: []catalog.Resource{*empty, *stocked},
	})

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	// the exhausted unit is skipped, the next in catalog order is assigned
	for _, h := range f.repo.reservations[result.Appointment.ID] {
		if h.ResourceID == empty.ID {
			t.Errorf("exhausted consumable must not be reserved")
		}
	}
	if f.repo.inventory[stocked.ID] != 49 {
		t.Errorf("stocked consumable inventory = %d, want 49", f.repo.inventory[stocked.ID])
	}

	foundSkip := false
	for _, w := range result.Warnings {
		if w.Code == "out_of_stock" && w.ResourceID == empty.ID {
			foundSkip = true
		}
	}
	if !foundSkip {
		t.Errorf("skipping an exhausted consumable must warn out_of_stock, got %+v", result.Warnings)
	}
}

func TestBookRequiredPreferenceOutOfStockConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	gelRole := uuid.New()
	empty := &catalog.Resource{
		ID: uuid.New(), Name: "Gel A", Mode: catalog.ModeShared, MaxConcurrent: 10,
		Active: true, Consumable: true, Quantity: 0, LowThreshold: 5,
		RoleIDs: []uuid.UUID{gelRole},
	}
	stocked := &catalog.Resource{
		ID: uuid.New(), Name: "Gel B", Mode: catalog.ModeShared, MaxConcurrent: 10,
		Active: true, Consumable: true, Quantity: 50, LowThreshold: 5,
		RoleIDs: []uuid.UUID{gelRole},
	}
	f.catalog.resources[empty.ID] = empty
	f.catalog.resources[stocked.ID] = stocked
	f.repo.inventory[stocked.ID] = stocked.Quantity
	f.reqs.reqs = append(f.reqs.reqs, procedure.ExpandedRequirement{
		RoleID: gelRole, QuantityMin: 1, QuantityMax: 1, Required: true,
		OffsetEndMinutes: 30, EligibleResources: []catalog.Resource{*empty, *stocked},
	})

	_, err := f.svc.Book(ctx, BookRequest{
		SlotID:    f.slotID,
		ContactID: uuid.New(),
		Preferences: []ResourcePreference{
			{RoleID: gelRole, ResourceID: empty.ID, Level: PreferenceRequired},
		},
	})
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("required preference for an exhausted consumable must fail, got %v", err)
	}
	found := false
	for _, c := range conflictErr.Conflicts {
		if c.Reason == availability.ReasonOutOfStock && c.ResourceID == empty.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("conflict must name the exhausted resource, got %+v", conflictErr.Conflicts)
	}
	if len(f.repo.appointments) != 0 {
		t.Errorf("rejected booking must not create rows")
	}
}

func TestBookPreferredPreferenceDegradesToWarning(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// the preferred room is held by an earlier booking, the fixture's own
	// room takes its place
	held := &catalog.Resource{
		ID: uuid.New(), Name: "Exam Room 2", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, RoleIDs: []uuid.UUID{f.room.RoleIDs[0]},
	}
	f.catalog.resources[held.ID] = held
	f.reqs.reqs[0].EligibleResources = []catalog.Resource{*held, *f.room}

	// second staff member so the concurrent bookings only contend on rooms
	relief := &catalog.Resource{
		ID: uuid.New(), Name: "Jordan Lee", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, RoleIDs: []uuid.UUID{f.staff.RoleIDs[0]},
	}
	f.catalog.resources[relief.ID] = relief
	f.reqs.reqs[1].EligibleResources = []catalog.Resource{*f.staff, *relief}

	if _, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("setup booking: %v", err)
	}
	other := &slot.ProcedureSlot{
		ID: uuid.New(), ProcedureID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(9, 30), Status: slot.StatusAvailable,
	}
	f.repo.slots[other.ID] = other

	result, err := f.svc.Book(ctx, BookRequest{
		SlotID:    other.ID,
		ContactID: uuid.New(),
		Preferences: []ResourcePreference{
			{RoleID: f.room.RoleIDs[0], ResourceID: held.ID, Level: PreferencePreferred},
		},
	})
	if err != nil {
		t.Fatalf("preferred-level preference must not block the booking: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Code == "preference_unavailable" && w.ResourceID == held.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("degraded preference must warn, got %+v", result.Warnings)
	}
}

func TestRescheduleMovesToNewSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	later := &slot.ProcedureSlot{
		ID: uuid.New(), ProcedureID: uuid.New(),
		StartTime: at(11, 0), EndTime: at(11, 30), Status: slot.StatusAvailable,
	}
	f.repo.slots[later.ID] = later

	result, err := f.svc.Reschedule(ctx, first.Appointment.ID, BookRequest{SlotID: later.ID})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if result.Appointment.SlotID != later.ID {
		t.Errorf("new appointment sits on slot %s, want the later slot", result.Appointment.SlotID)
	}
	if result.Appointment.ContactID != first.Appointment.ContactID {
		t.Errorf("reschedule must carry the contact over")
	}
	old, err := f.svc.GetAppointment(ctx, first.Appointment.ID)
	if err != nil {
		t.Fatalf("get old appointment: %v", err)
	}
	if old.Status != StatusCancelled {
		t.Errorf("old appointment status = %s, want cancelled", old.Status)
	}
	if f.repo.slots[f.slotID].Status != slot.StatusAvailable {
		t.Errorf("vacated slot must reopen")
	}
	if f.repo.slots[later.ID].Status != slot.StatusBooked {
		t.Errorf("target slot must be booked")
	}
}

func TestRescheduleRestoresOriginalOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	unavailable := &slot.ProcedureSlot{
		ID: uuid.New(), ProcedureID: uuid.New(),
		StartTime: at(11, 0), EndTime: at(11, 30), Status: slot.StatusBooked,
	}
	f.repo.slots[unavailable.ID] = unavailable

	_, err = f.svc.Reschedule(ctx, first.Appointment.ID, BookRequest{SlotID: unavailable.ID})
	var notBookable *slot.NotBookableError
	if !errors.As(err, &notBookable) {
		t.Fatalf("rescheduling onto a booked slot must fail, got %v", err)
	}

	// the original slot is taken back by a fresh live appointment
	if f.repo.slots[f.slotID].Status != slot.StatusBooked {
		t.Errorf("original slot must be re-booked after the failed move")
	}
	live := 0
	for _, a := range f.repo.appointments {
		if a.Status == StatusPending && a.SlotID == f.slotID {
			if a.ContactID != first.Appointment.ContactID {
				t.Errorf("restored appointment belongs to the wrong contact")
			}
			live++
		}
	}
	if live != 1 {
		t.Errorf("expected exactly 1 restored appointment on the original slot, got %d", live)
	}
}

func TestCancelReopensSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, result.Appointment.ID, "patient request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.repo.slots[f.slotID].Status != slot.StatusAvailable {
		t.Errorf("cancelled appointment must reopen its slot")
	}

	// The freed slot books again.
	if _, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	id := result.Appointment.ID

	// completing a pending appointment skips confirmation
	if _, err := f.svc.Complete(ctx, id); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("complete from pending must fail, got %v", err)
	}
	if _, err := f.svc.Confirm(ctx, id); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, id); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("double confirm must fail, got %v", err)
	}
	appt, err := f.svc.Complete(ctx, id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if appt.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", appt.Status)
	}
	if _, err := f.svc.MarkNoShow(ctx, id); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("no-show after completion must fail, got %v", err)
	}
}

func TestTerminalStatusReleasesHolds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, first.Appointment.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.MarkNoShow(ctx, first.Appointment.ID); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	// Same window, new slot: the no-show released the room and staff.
	other := &slot.ProcedureSlot{
		ID: uuid.New(), ProcedureID: uuid.New(),
		StartTime: at(9, 0), EndTime: at(9, 30), Status: slot.StatusAvailable,
	}
	f.repo.slots[other.ID] = other
	if _, err := f.svc.Book(ctx, BookRequest{SlotID: other.ID, ContactID: uuid.New()}); err != nil {
		t.Fatalf("booking against released holds: %v", err)
	}
}

func TestReassignResource(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	backupRole := f.staff.RoleIDs[0]
	backup := &catalog.Resource{
		ID: uuid.New(), Name: "Alex Chen", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, RoleIDs: []uuid.UUID{backupRole},
	}
	f.catalog.resources[backup.ID] = backup

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	id := result.Appointment.ID

	if err := f.svc.ReassignResource(ctx, id, f.staff.ID, backup.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	holds := f.repo.reservations[id]
	reassigned := false
	for _, h := range holds {
		if h.ResourceID == backup.ID {
			reassigned = true
		}
		if h.ResourceID == f.staff.ID {
			t.Errorf("old resource still holds the reservation")
		}
	}
	if !reassigned {
		t.Errorf("reservation must move to the substitute")
	}
}

func TestReassignResourceRejectsWrongRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	wrongRole := &catalog.Resource{
		ID: uuid.New(), Name: "Ultrasound", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, RoleIDs: []uuid.UUID{uuid.New()},
	}
	f.catalog.resources[wrongRole.ID] = wrongRole

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := f.svc.ReassignResource(ctx, result.Appointment.ID, f.staff.ID, wrongRole.ID); err == nil {
		t.Fatal("substitute without the role must be rejected")
	}
	for _, h := range f.repo.reservations[result.Appointment.ID] {
		if h.ResourceID == wrongRole.ID {
			t.Errorf("failed reassign must leave the original hold untouched")
		}
	}
}

func TestCheckCoverageNeeded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	backup := &catalog.Resource{
		ID: uuid.New(), Name: "Backup Staff", Mode: catalog.ModeExclusive,
		MaxConcurrent: 1, Active: true, RoleIDs: []uuid.UUID{f.staff.RoleIDs[0]},
	}
	f.catalog.resources[backup.ID] = backup

	result, err := f.svc.Book(ctx, BookRequest{SlotID: f.slotID, ContactID: uuid.New()})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	items, err := f.svc.CheckCoverageNeeded(ctx, f.staff.ID, at(8, 0), at(12, 0))
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 affected appointment, got %d", len(items))
	}
	item := items[0]
	if item.AppointmentID != result.Appointment.ID {
		t.Errorf("coverage names the wrong appointment")
	}
	if !item.AutoReassignable || len(item.Alternatives) != 1 || item.Alternatives[0] != backup.ID {
		t.Errorf("backup staff must appear as the substitute: %+v", item)
	}
}
