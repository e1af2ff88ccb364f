package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
)

type ConflictReason string

const (
	ReasonBlockedWindow       ConflictReason = "blocked_window"
	ReasonOutsideAvailability ConflictReason = "outside_availability"
	ReasonReservation         ConflictReason = "existing_reservation"
	ReasonOutOfStock          ConflictReason = "out_of_stock"
)

// Conflict is one structured reason a resource cannot take a reservation.
type Conflict struct {
	ResourceID    uuid.UUID      `json:"resource_id"`
	Reason        ConflictReason `json:"reason"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
}

// CheckResult reports whether a resource is free for a window, under which
// effective reservation mode, and why not if it isn't.
type CheckResult struct {
	Available     bool
	Mode          catalog.ReservationMode
	MaxConcurrent int
	Conflicts     []Conflict
}

// ResourceGetter is the slice of the catalog the engine needs.
type ResourceGetter interface {
	GetResource(ctx context.Context, id uuid.UUID) (*catalog.Resource, error)
}

// Engine expands declared windows and answers "is resource R free for
// [start, end)?" against the reservation ledger.
type Engine struct {
	repo      Repository
	resources ResourceGetter
	ledger    ledger.Repository
	logger    zerolog.Logger
}

func NewEngine(repo Repository, resources ResourceGetter, reservations ledger.Repository, logger zerolog.Logger) *Engine {
	return &Engine{repo: repo, resources: resources, ledger: reservations, logger: logger}
}

// CreateAvailability validates the window and its recurrence pattern
// before writing.
func (e *Engine) CreateAvailability(ctx context.Context, a *Availability) error {
	if _, err := e.resources.GetResource(ctx, a.ResourceID); err != nil {
		return err
	}
	if a.Type != WindowAvailable && a.Type != WindowBlocked {
		return fmt.Errorf("invalid window type: %s", a.Type)
	}
	if !a.StartTime.Before(a.EndTime) {
		return fmt.Errorf("window start must precede end")
	}
	if a.Recurrence != nil {
		if err := a.Recurrence.Validate(); err != nil {
			return err
		}
	}
	if a.MaxConcurrentOverride != nil && *a.MaxConcurrentOverride < 1 {
		return fmt.Errorf("max_concurrent override must be positive")
	}
	return e.repo.Create(ctx, a)
}

func (e *Engine) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return e.repo.Delete(ctx, id)
}

// WindowsForResource returns all expanded windows for the resource over
// the range, sorted by start.
func (e *Engine) WindowsForResource(ctx context.Context, resourceID uuid.UUID, rangeStart, rangeEnd time.Time) ([]Window, error) {
	records, err := e.repo.ListForResource(ctx, resourceID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	return expandAll(records, rangeStart, rangeEnd), nil
}

// WindowsForResources batch-expands windows for many resources at once;
// the slot generator uses this to avoid per-candidate queries.
func (e *Engine) WindowsForResources(ctx context.Context, resourceIDs []uuid.UUID, rangeStart, rangeEnd time.Time) (map[uuid.UUID][]Window, error) {
	recordsByResource, err := e.repo.ListForResources(ctx, resourceIDs, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]Window, len(recordsByResource))
	for id, records := range recordsByResource {
		out[id] = expandAll(records, rangeStart, rangeEnd)
	}
	return out, nil
}

func expandAll(records []Availability, rangeStart, rangeEnd time.Time) []Window {
	var windows []Window
	for i := range records {
		windows = append(windows, records[i].Expand(rangeStart, rangeEnd)...)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	return windows
}

// CheckAvailability applies, in order: blocked-window overlap, declared
// availability coverage, then reservation conflicts under the effective
// mode. An unknown resource id is an error, not a "not available" result.
func (e *Engine) CheckAvailability(ctx context.Context, resourceID uuid.UUID, start, end time.Time) (*CheckResult, error) {
	res, err := e.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	windows, err := e.WindowsForResource(ctx, resourceID, start, end)
	if err != nil {
		return nil, err
	}

	reservations, err := e.ledger.ListForResourceInRange(ctx, resourceID, start, end)
	if err != nil {
		return nil, err
	}

	result := CheckAgainst(res, windows, reservations, start, end)
	if !result.Available {
		e.logger.Debug().
			Str("resource_id", resourceID.String()).
			Int("conflicts", len(result.Conflicts)).
			Msg("availability check failed")
	}
	return result, nil
}

// CheckAgainst is the pure core of CheckAvailability, shared with the slot
// generator which works from pre-fetched windows.
func CheckAgainst(res *catalog.Resource, windows []Window, reservations []ledger.Reservation, start, end time.Time) *CheckResult {
	mode := res.Mode
	maxConcurrent := res.MaxConcurrent

	var conflicts []Conflict
	var availableWindows []Window

	for _, w := range windows {
		if !w.Start.Before(end) || !w.End.After(start) {
			continue
		}
		switch w.Type {
		case WindowBlocked:
			conflicts = append(conflicts, Conflict{
				ResourceID: res.ID,
				Reason:     ReasonBlockedWindow,
				Start:      w.Start,
				End:        w.End,
			})
		case WindowAvailable:
			availableWindows = append(availableWindows, w)
			// window-scoped overrides layer onto the resource default
			if w.ModeOverride != nil {
				mode = *w.ModeOverride
			}
			if w.MaxConcurrentOverride != nil {
				maxConcurrent = *w.MaxConcurrentOverride
			}
		}
	}

	// With no declared availability the resource is available by default;
	// otherwise the request must be fully covered by the union.
	if len(availableWindows) > 0 && !covered(availableWindows, start, end) {
		conflicts = append(conflicts, Conflict{
			ResourceID: res.ID,
			Reason:     ReasonOutsideAvailability,
			Start:      start,
			End:        end,
		})
	}

	if mode == catalog.ModeExclusive {
		for _, r := range reservations {
			if r.Overlaps(start, end) {
				apptID := r.AppointmentID
				conflicts = append(conflicts, Conflict{
					ResourceID:    res.ID,
					Reason:        ReasonReservation,
					Start:         r.ReservedStart,
					End:           r.ReservedEnd,
					AppointmentID: &apptID,
				})
			}
		}
	} else {
		if maxConcurrent < 1 {
			maxConcurrent = 1
		}
		if peakOverlap(reservations, start, end) >= maxConcurrent {
			for _, r := range reservations {
				if r.Overlaps(start, end) {
					apptID := r.AppointmentID
					conflicts = append(conflicts, Conflict{
						ResourceID:    res.ID,
						Reason:        ReasonReservation,
						Start:         r.ReservedStart,
						End:           r.ReservedEnd,
						AppointmentID: &apptID,
					})
				}
			}
		}
	}

	return &CheckResult{
		Available:     len(conflicts) == 0,
		Mode:          mode,
		MaxConcurrent: maxConcurrent,
		Conflicts:     conflicts,
	}
}

// covered reports whether [start, end) is fully inside the union of the
// windows, using a sorted sweep over their starts.
func covered(windows []Window, start, end time.Time) bool {
	sorted := make([]Window, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	cursor := start
	for _, w := range sorted {
		if w.Start.After(cursor) {
			break // gap
		}
		if w.End.After(cursor) {
			cursor = w.End
		}
		if !cursor.Before(end) {
			return true
		}
	}
	return !cursor.Before(end)
}

// peakOverlap returns the maximum number of reservations that coexist at
// any instant inside [start, end).
func peakOverlap(reservations []ledger.Reservation, start, end time.Time) int {
	type event struct {
		at    time.Time
		delta int
	}
	var events []event
	for _, r := range reservations {
		if !r.Overlaps(start, end) {
			continue
		}
		s, e := r.ReservedStart, r.ReservedEnd
		if s.Before(start) {
			s = start
		}
		if e.After(end) {
			e = end
		}
		events = append(events, event{s, +1}, event{e, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta < events[j].delta // ends before starts
		}
		return events[i].at.Before(events[j].at)
	})

	current, peak := 0, 0
	for _, ev := range events {
		current += ev.delta
		if current > peak {
			peak = current
		}
	}
	return peak
}
