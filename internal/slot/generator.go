package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
)

// RequirementExpander flattens a procedure into absolute timed role
// requirements with eligible resource pools.
type RequirementExpander interface {
	Expand(ctx context.Context, procedureID uuid.UUID) ([]procedure.ExpandedRequirement, error)
}

// DurationSource yields a procedure's total occupied minutes.
type DurationSource interface {
	TotalDuration(ctx context.Context, id uuid.UUID) (int, error)
}

// AvailabilitySource provides pre-expanded windows for a resource set.
type AvailabilitySource interface {
	WindowsForResources(ctx context.Context, resourceIDs []uuid.UUID, rangeStart, rangeEnd time.Time) (map[uuid.UUID][]availability.Window, error)
}

// ReservationSource is the ledger read path the generator needs.
type ReservationSource interface {
	ListForResourceInRange(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]ledger.Reservation, error)
}

// GenerateParams bounds one slot generation run.
type GenerateParams struct {
	ProcedureID     uuid.UUID
	RangeStart      time.Time
	RangeEnd        time.Time
	IntervalMinutes int       // candidate step; defaulted from config when 0
	MaxSlots        int       // cap; defaulted from config when 0
	LocationID      uuid.UUID // optional: only resources in this place
}

// ValidateResult is the outcome of re-checking a persisted slot.
type ValidateResult struct {
	Valid        bool        `json:"valid"`
	Shortfalls   []Shortfall `json:"shortfalls,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// Generator enumerates candidate bookable windows that satisfy every
// required role of a procedure.
type Generator struct {
	repo         Repository
	expander     RequirementExpander
	durations    DurationSource
	windows      AvailabilitySource
	reservations ReservationSource
	logger       zerolog.Logger

	defaultInterval int
	defaultMax      int
}

func NewGenerator(
	repo Repository,
	expander RequirementExpander,
	durations DurationSource,
	windows AvailabilitySource,
	reservations ReservationSource,
	defaultInterval, defaultMax int,
	logger zerolog.Logger,
) *Generator {
	return &Generator{
		repo:            repo,
		expander:        expander,
		durations:       durations,
		windows:         windows,
		reservations:    reservations,
		defaultInterval: defaultInterval,
		defaultMax:      defaultMax,
		logger:          logger,
	}
}

// GenerateSlots steps a cursor through the range and emits, per viable
// start time, one candidate carrying a single resource combination.
// A required role with zero satisfiable resources disqualifies the whole
// candidate; a procedure whose required role has an empty eligible pool
// yields an empty list, not an error.
func (g *Generator) GenerateSlots(ctx context.Context, p GenerateParams) ([]Candidate, error) {
	interval := p.IntervalMinutes
	if interval <= 0 {
		interval = g.defaultInterval
	}
	maxSlots := p.MaxSlots
	if maxSlots <= 0 {
		maxSlots = g.defaultMax
	}

	reqs, err := g.expander.Expand(ctx, p.ProcedureID)
	if err != nil {
		return nil, err
	}

	totalMinutes, err := g.durations.TotalDuration(ctx, p.ProcedureID)
	if err != nil {
		return nil, err
	}

	pools := eligiblePools(reqs, p.LocationID)

	// Union of all eligible resources, batch-fetched once.
	var resourceIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, pool := range pools {
		for i := range pool {
			if !seen[pool[i].ID] {
				seen[pool[i].ID] = true
				resourceIDs = append(resourceIDs, pool[i].ID)
			}
		}
	}
	if len(resourceIDs) == 0 && hasRequired(reqs) {
		return []Candidate{}, nil
	}

	windowsByResource, err := g.windows.WindowsForResources(ctx, resourceIDs, p.RangeStart, p.RangeEnd)
	if err != nil {
		return nil, err
	}
	reservationsByResource := make(map[uuid.UUID][]ledger.Reservation, len(resourceIDs))
	for _, id := range resourceIDs {
		rs, err := g.reservations.ListForResourceInRange(ctx, id, p.RangeStart, p.RangeEnd)
		if err != nil {
			return nil, err
		}
		reservationsByResource[id] = rs
	}

	var out []Candidate
	total := time.Duration(totalMinutes) * time.Minute
	step := time.Duration(interval) * time.Minute

	for cursor := p.RangeStart; !cursor.Add(total).After(p.RangeEnd); cursor = cursor.Add(step) {
		candidate, ok := buildCandidate(p.ProcedureID, cursor, total, reqs, pools, windowsByResource, reservationsByResource)
		if !ok {
			continue
		}
		out = append(out, candidate)
		if len(out) >= maxSlots {
			break
		}
	}

	g.logger.Debug().
		Str("procedure_id", p.ProcedureID.String()).
		Int("candidates", len(out)).
		Msg("slot generation complete")
	return out, nil
}

// CreateSlotsInRange persists generated candidates, skipping any start
// time that already has a slot for the procedure.
func (g *Generator) CreateSlotsInRange(ctx context.Context, p GenerateParams) ([]ProcedureSlot, error) {
	candidates, err := g.GenerateSlots(ctx, p)
	if err != nil {
		return nil, err
	}

	var created []ProcedureSlot
	for _, c := range candidates {
		exists, err := g.repo.ExistsAtStart(ctx, c.ProcedureID, c.StartTime)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		s := ProcedureSlot{
			ProcedureID: c.ProcedureID,
			StartTime:   c.StartTime,
			EndTime:     c.EndTime,
			Status:      StatusAvailable,
			Generation:  GenerationAuto,
		}
		if err := g.repo.Create(ctx, &s); err != nil {
			return nil, err
		}
		created = append(created, s)
	}
	return created, nil
}

// Validate re-runs the availability checks for a persisted available slot
// and, on shortfall, proposes alternatives over the following week.
func (g *Generator) Validate(ctx context.Context, slotID uuid.UUID) (*ValidateResult, error) {
	s, err := g.repo.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusAvailable {
		return nil, ErrSlotNotBookable(s.Status)
	}

	reqs, err := g.expander.Expand(ctx, s.ProcedureID)
	if err != nil {
		return nil, err
	}
	pools := eligiblePools(reqs, uuid.Nil)

	var resourceIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, pool := range pools {
		for i := range pool {
			if !seen[pool[i].ID] {
				seen[pool[i].ID] = true
				resourceIDs = append(resourceIDs, pool[i].ID)
			}
		}
	}

	windowsByResource, err := g.windows.WindowsForResources(ctx, resourceIDs, s.StartTime, s.EndTime)
	if err != nil {
		return nil, err
	}
	reservationsByResource := make(map[uuid.UUID][]ledger.Reservation, len(resourceIDs))
	for _, id := range resourceIDs {
		rs, err := g.reservations.ListForResourceInRange(ctx, id, s.StartTime, s.EndTime)
		if err != nil {
			return nil, err
		}
		reservationsByResource[id] = rs
	}

	var shortfalls []Shortfall
	for ri, req := range reqs {
		if !req.Required {
			continue
		}
		subStart := s.StartTime.Add(time.Duration(req.OffsetStartMinutes) * time.Minute)
		subEnd := s.StartTime.Add(time.Duration(req.OffsetEndMinutes) * time.Minute)
		free := 0
		for i := range pools[ri] {
			res := &pools[ri][i]
			check := availability.CheckAgainst(res, windowsByResource[res.ID], reservationsByResource[res.ID], subStart, subEnd)
			if check.Available {
				free++
			}
		}
		if free < req.QuantityMin {
			shortfalls = append(shortfalls, Shortfall{
				RoleID:    req.RoleID,
				Needed:    req.QuantityMin,
				Available: free,
			})
		}
	}

	result := &ValidateResult{Valid: len(shortfalls) == 0, Shortfalls: shortfalls}
	if !result.Valid {
		alternatives, err := g.GenerateSlots(ctx, GenerateParams{
			ProcedureID: s.ProcedureID,
			RangeStart:  s.EndTime,
			RangeEnd:    s.EndTime.AddDate(0, 0, 7),
		})
		if err != nil {
			return nil, err
		}
		result.Alternatives = alternatives
	}
	return result, nil
}

// CleanupExpired deletes stale auto-generated slots; invoked by the worker.
func (g *Generator) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := g.repo.DeleteExpiredAuto(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Info().Int("deleted", n).Msg("expired slots cleaned up")
	}
	return n, nil
}

// eligiblePools applies the optional location filter to each requirement's
// pool, preserving catalog order.
func eligiblePools(reqs []procedure.ExpandedRequirement, locationID uuid.UUID) [][]catalog.Resource {
	pools := make([][]catalog.Resource, len(reqs))
	for i, req := range reqs {
		if locationID == uuid.Nil {
			pools[i] = req.EligibleResources
			continue
		}
		for _, res := range req.EligibleResources {
			if res.ID == locationID || (res.ParentID != nil && *res.ParentID == locationID) {
				pools[i] = append(pools[i], res)
			}
		}
	}
	return pools
}

func hasRequired(reqs []procedure.ExpandedRequirement) bool {
	for _, req := range reqs {
		if req.Required {
			return true
		}
	}
	return false
}

// buildCandidate tests one start time. Every required role must reach its
// minimum quantity or the candidate is discarded whole.
func buildCandidate(
	procedureID uuid.UUID,
	start time.Time,
	total time.Duration,
	reqs []procedure.ExpandedRequirement,
	pools [][]catalog.Resource,
	windowsByResource map[uuid.UUID][]availability.Window,
	reservationsByResource map[uuid.UUID][]ledger.Reservation,
) (Candidate, bool) {
	var assignments []RoleAssignment

	for ri, req := range reqs {
		subStart := start.Add(time.Duration(req.OffsetStartMinutes) * time.Minute)
		subEnd := start.Add(time.Duration(req.OffsetEndMinutes) * time.Minute)

		var chosen []uuid.UUID
		for i := range pools[ri] {
			if len(chosen) >= req.QuantityMin {
				break
			}
			res := &pools[ri][i]
			check := availability.CheckAgainst(res, windowsByResource[res.ID], reservationsByResource[res.ID], subStart, subEnd)
			if check.Available {
				chosen = append(chosen, res.ID)
			}
		}

		if len(chosen) < req.QuantityMin {
			if req.Required {
				return Candidate{}, false
			}
			continue // optional requirement left unassigned
		}
		assignments = append(assignments, RoleAssignment{RoleID: req.RoleID, ResourceIDs: chosen})
	}

	return Candidate{
		ProcedureID: procedureID,
		StartTime:   start,
		EndTime:     start.Add(total),
		Assignments: assignments,
	}, true
}
