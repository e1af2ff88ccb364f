package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/procedure"
)

func listProceduresHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		procs, err := svc.ListProcedures(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			handleDomainError(w, err)
			return
		}
		out := make([]ProcedureResponse, 0, len(procs))
		for i := range procs {
			out = append(out, toProcedureResponse(&procs[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getProcedureHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		p, err := svc.GetProcedure(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProcedureResponse(p))
	}
}

func createProcedureHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProcedureRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p := req.toModel()
		if err := svc.CreateProcedure(r.Context(), p); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toProcedureResponse(p))
	}
}

func addRequirementHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		var body RequirementRequest
		if !decodeBody(w, r, &body) {
			return
		}
		required := true
		if body.Required != nil {
			required = *body.Required
		}
		req := &procedure.Requirement{
			ProcedureID:        id,
			RoleID:             body.RoleID,
			QuantityMin:        body.QuantityMin,
			QuantityMax:        body.QuantityMax,
			Required:           required,
			OffsetStartMinutes: body.OffsetStartMinutes,
			OffsetEndMinutes:   body.OffsetEndMinutes,
		}
		if err := svc.AddRequirement(r.Context(), req); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func addChildHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		var body ChildLinkRequest
		if !decodeBody(w, r, &body) {
			return
		}
		link := &procedure.ChildLink{
			ParentID:        id,
			ChildID:         body.ChildID,
			SequenceOrder:   body.SequenceOrder,
			GapAfterMinutes: body.GapAfterMinutes,
		}
		if err := svc.AddChild(r.Context(), link); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, link)
	}
}

// expandProcedureHandler exposes the flattened requirement view the slot
// generator works from. Useful for debugging composite trees.
func expandProcedureHandler(expander *procedure.Expander) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		reqs, err := expander.Expand(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toExpandedResponses(reqs))
	}
}

func procedureDurationHandler(svc *procedure.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_procedure_id", "id must be a valid UUID")
			return
		}
		minutes, err := svc.TotalDuration(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"total_minutes": minutes})
	}
}

// --- availability ---

func createAvailabilityHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		var req AvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		a := req.toModel(resourceID)
		if err := engine.CreateAvailability(r.Context(), a); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": a.ID})
	}
}

func deleteAvailabilityHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_availability_id", "id must be a valid UUID")
			return
		}
		if err := engine.DeleteAvailability(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resourceWindowsHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		from, to, err := parseTimeRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
			return
		}
		windows, err := engine.WindowsForResource(r.Context(), id, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWindowResponses(windows))
	}
}

func checkAvailabilityHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		from, to, err := parseTimeRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
			return
		}
		result, err := engine.CheckAvailability(r.Context(), id, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CheckResponse{
			Available:     result.Available,
			Mode:          string(result.Mode),
			MaxConcurrent: result.MaxConcurrent,
			Conflicts:     result.Conflicts,
		})
	}
}
