package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/slot"
)

func generateParamsFrom(procedureID uuid.UUID, req GenerateSlotsRequest) (slot.GenerateParams, bool) {
	if req.RangeStart.IsZero() || req.RangeEnd.IsZero() || !req.RangeStart.Before(req.RangeEnd) {
		return slot.GenerateParams{}, false
	}
	p := slot.GenerateParams{
		ProcedureID:     procedureID,
		RangeStart:      req.RangeStart,
		RangeEnd:        req.RangeEnd,
		IntervalMinutes: req.IntervalMinutes,
		MaxSlots:        req.MaxSlots,
	}
	if req.LocationID != nil {
		p.LocationID = *req.LocationID
	}
	return p, true
}

// previewSlotsHandler enumerates candidates without persisting anything.
func previewSlotsHandler(gen *slot.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		var req GenerateSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		params, ok := generateParamsFrom(id, req)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_time_range", "range_start must precede range_end")
			return
		}
		candidates, err := gen.GenerateSlots(r.Context(), params)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if candidates == nil {
			candidates = []slot.Candidate{}
		}
		writeJSON(w, http.StatusOK, candidates)
	}
}

// materializeSlotsHandler persists generated candidates, skipping start
// times that already have a slot.
func materializeSlotsHandler(gen *slot.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		var req GenerateSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		params, ok := generateParamsFrom(id, req)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_time_range", "range_start must precede range_end")
			return
		}
		created, err := gen.CreateSlotsInRange(r.Context(), params)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		out := make([]SlotResponse, 0, len(created))
		for i := range created {
			out = append(out, toSlotResponse(&created[i]))
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func listSlotsHandler(repo slot.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		from, to, err := parseTimeRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
			return
		}
		slots, err := repo.ListByProcedureInRange(r.Context(), id, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		out := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			out = append(out, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getSlotHandler(repo slot.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}
		s, err := repo.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(s))
	}
}

// validateSlotHandler re-checks a persisted slot against the current
// ledger and proposes alternatives on shortfall.
func validateSlotHandler(gen *slot.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}
		result, err := gen.Validate(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// cleanupSlotsHandler is the manual trigger for what the worker does on a
// schedule.
func cleanupSlotsHandler(gen *slot.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := gen.CleanupExpired(r.Context(), time.Now().UTC())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}
