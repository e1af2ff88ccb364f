package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/booking"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
)

func listResourceTypesHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListResourceTypes(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types)
	}
}

func listResourceSubtypesHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subtypes, err := svc.ListResourceSubtypes(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subtypes)
	}
}

func listResourceRolesHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := svc.ListResourceRoles(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	}
}

func listResourcesHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f catalog.ListFilter
		q := r.URL.Query()
		if v := q.Get("type_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
				return
			}
			f.TypeID = id
		}
		if v := q.Get("role_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_role_id", "role_id must be a valid UUID")
				return
			}
			f.RoleID = id
		}
		if v := q.Get("parent_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_parent_id", "parent_id must be a valid UUID")
				return
			}
			f.ParentID = id
		}
		f.ActiveOnly = q.Get("active") == "true"

		resources, err := svc.ListResources(r.Context(), f)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		out := make([]ResourceResponse, 0, len(resources))
		for i := range resources {
			out = append(out, toResourceResponse(&resources[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getResourceHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		res, err := svc.GetResource(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResourceResponse(res))
	}
}

func createResourceHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResourceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res := req.toModel()
		if err := svc.CreateResource(r.Context(), res); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toResourceResponse(res))
	}
}

func updateResourceHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		var req ResourceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		res := req.toModel()
		res.ID = id
		if err := svc.UpdateResource(r.Context(), res); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResourceResponse(res))
	}
}

func deleteResourceHandler(svc *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		if err := svc.DeleteResource(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// resourceInventoryHandler reports on-hand stock next to the live holds
// that will flow back on cancellation.
func resourceInventoryHandler(svc *catalog.Service, reservations ledger.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_resource_id", "id must be a valid UUID")
			return
		}
		res, err := svc.GetResource(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		held, err := reservations.ReservedQuantity(r.Context(), id, time.Now().UTC())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, InventoryResponse{
			ResourceID:   res.ID,
			OnHand:       res.Quantity,
			HeldUpcoming: held,
			LowThreshold: res.LowThreshold,
			Low:          res.Quantity <= res.LowThreshold,
		})
	}
}

// resourceCoverageHandler lists appointments stranded by a resource going
// offline over a window.
func resourceCoverageHandler(svc *booking.Service) http.HandlerFunc {
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
		items, err := svc.CheckCoverageNeeded(r.Context(), id, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if items == nil {
			items = []booking.CoverageItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}
