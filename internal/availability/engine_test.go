package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
)

func exclusiveResource() *catalog.Resource {
	return &catalog.Resource{
		ID:            uuid.New(),
		Name:          "Exam Room 1",
		Mode:          catalog.ModeExclusive,
		MaxConcurrent: 1,
		Active:        true,
	}
}

func reservation(resourceID uuid.UUID, start, end time.Time) ledger.Reservation {
	return ledger.Reservation{
		ID:            uuid.New(),
		AppointmentID: uuid.New(),
		ResourceID:    resourceID,
		ReservedStart: start,
		ReservedEnd:   end,
		Mode:          catalog.ModeExclusive,
	}
}

func TestCheckAgainstNoWindowsDefaultsAvailable(t *testing.T) {
	res := exclusiveResource()
	start := day(2026, time.March, 2, 9, 0)
	end := day(2026, time.March, 2, 10, 0)

	result := CheckAgainst(res, nil, nil, start, end)
	if !result.Available {
		t.Fatalf("resource with no declared windows must default to available: %+v", result.Conflicts)
	}
}

func TestCheckAgainstOutsideDeclaredAvailability(t *testing.T) {
	res := exclusiveResource()
	windows := []Window{{
		Start: day(2026, time.March, 2, 8, 0),
		End:   day(2026, time.March, 2, 12, 0),
		Type:  WindowAvailable,
	}}

	result := CheckAgainst(res, windows, nil,
		day(2026, time.March, 2, 11, 30), day(2026, time.March, 2, 12, 30))
	if result.Available {
		t.Fatal("request extending past the declared window must fail")
	}
	if result.Conflicts[0].Reason != ReasonOutsideAvailability {
		t.Errorf("reason = %s, want %s", result.Conflicts[0].Reason, ReasonOutsideAvailability)
	}
}

func TestCheckAgainstAdjacentWindowsCoverUnion(t *testing.T) {
	res := exclusiveResource()
	windows := []Window{
		{Start: day(2026, time.March, 2, 8, 0), End: day(2026, time.March, 2, 12, 0), Type: WindowAvailable},
		{Start: day(2026, time.March, 2, 12, 0), End: day(2026, time.March, 2, 17, 0), Type: WindowAvailable},
	}

	result := CheckAgainst(res, windows, nil,
		day(2026, time.March, 2, 11, 0), day(2026, time.March, 2, 13, 0))
	if !result.Available {
		t.Fatalf("request spanning two touching windows must pass: %+v", result.Conflicts)
	}
}

func TestCheckAgainstBlockedWindow(t *testing.T) {
	res := exclusiveResource()
	windows := []Window{
		{Start: day(2026, time.March, 2, 8, 0), End: day(2026, time.March, 2, 17, 0), Type: WindowAvailable},
		{Start: day(2026, time.March, 2, 12, 0), End: day(2026, time.March, 2, 13, 0), Type: WindowBlocked},
	}

	result := CheckAgainst(res, windows, nil,
		day(2026, time.March, 2, 12, 30), day(2026, time.March, 2, 13, 30))
	if result.Available {
		t.Fatal("overlap with a blocked window must fail")
	}
	if result.Conflicts[0].Reason != ReasonBlockedWindow {
		t.Errorf("reason = %s, want %s", result.Conflicts[0].Reason, ReasonBlockedWindow)
	}
}

func TestCheckAgainstExclusiveReservationConflict(t *testing.T) {
	res := exclusiveResource()
	existing := reservation(res.ID, day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 10, 0))

	result := CheckAgainst(res, nil, []ledger.Reservation{existing},
		day(2026, time.March, 2, 9, 30), day(2026, time.March, 2, 10, 30))
	if result.Available {
		t.Fatal("exclusive resource with overlapping hold must fail")
	}
	c := result.Conflicts[0]
	if c.Reason != ReasonReservation {
		t.Errorf("reason = %s", c.Reason)
	}
	if c.AppointmentID == nil || *c.AppointmentID != existing.AppointmentID {
		t.Errorf("conflict must name the holding appointment")
	}
}

func TestCheckAgainstTouchingReservationsDoNotConflict(t *testing.T) {
	res := exclusiveResource()
	existing := reservation(res.ID, day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 10, 0))

	result := CheckAgainst(res, nil, []ledger.Reservation{existing},
		day(2026, time.March, 2, 10, 0), day(2026, time.March, 2, 11, 0))
	if !result.Available {
		t.Fatalf("back-to-back intervals must not conflict: %+v", result.Conflicts)
	}
}

func TestCheckAgainstSharedCapacity(t *testing.T) {
	res := &catalog.Resource{
		ID:            uuid.New(),
		Name:          "Waiting Area",
		Mode:          catalog.ModeShared,
		MaxConcurrent: 2,
		Active:        true,
	}
	start := day(2026, time.March, 2, 9, 0)
	end := day(2026, time.March, 2, 10, 0)

	one := []ledger.Reservation{reservation(res.ID, start, end)}
	if result := CheckAgainst(res, nil, one, start, end); !result.Available {
		t.Fatalf("one hold under capacity 2 must pass: %+v", result.Conflicts)
	}

	two := append(one, reservation(res.ID, start, end))
	if result := CheckAgainst(res, nil, two, start, end); result.Available {
		t.Fatal("capacity 2 with 2 overlapping holds must fail")
	}
}

func TestCheckAgainstSharedSequentialHoldsUnderCapacity(t *testing.T) {
	res := &catalog.Resource{
		ID:            uuid.New(),
		Mode:          catalog.ModeShared,
		MaxConcurrent: 2,
		Active:        true,
	}
	// Two holds that never coexist: peak overlap stays at 1.
	holds := []ledger.Reservation{
		reservation(res.ID, day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 10, 0)),
		reservation(res.ID, day(2026, time.March, 2, 10, 0), day(2026, time.March, 2, 11, 0)),
	}

	result := CheckAgainst(res, nil, holds,
		day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 11, 0))
	if !result.Available {
		t.Fatalf("sequential holds must not hit the concurrency cap: %+v", result.Conflicts)
	}
}

func TestCheckAgainstWindowOverrides(t *testing.T) {
	res := exclusiveResource()
	shared := catalog.ModeShared
	three := 3
	windows := []Window{{
		Start:                 day(2026, time.March, 2, 8, 0),
		End:                   day(2026, time.March, 2, 17, 0),
		Type:                  WindowAvailable,
		ModeOverride:          &shared,
		MaxConcurrentOverride: &three,
	}}
	start := day(2026, time.March, 2, 9, 0)
	end := day(2026, time.March, 2, 10, 0)
	holds := []ledger.Reservation{
		reservation(res.ID, start, end),
		reservation(res.ID, start, end),
	}

	result := CheckAgainst(res, windows, holds, start, end)
	if !result.Available {
		t.Fatalf("window override to shared/3 must admit a third booking: %+v", result.Conflicts)
	}
	if result.Mode != catalog.ModeShared || result.MaxConcurrent != 3 {
		t.Errorf("effective mode=%s max=%d, want shared/3", result.Mode, result.MaxConcurrent)
	}
}

func TestCoveredGapFails(t *testing.T) {
	windows := []Window{
		{Start: day(2026, time.March, 2, 8, 0), End: day(2026, time.March, 2, 10, 0), Type: WindowAvailable},
		{Start: day(2026, time.March, 2, 11, 0), End: day(2026, time.March, 2, 17, 0), Type: WindowAvailable},
	}
	if covered(windows, day(2026, time.March, 2, 9, 0), day(2026, time.March, 2, 12, 0)) {
		t.Fatal("union with a gap must not cover the request")
	}
}
