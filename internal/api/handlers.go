package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/booking"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/internal/slot"
)

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseTimeRange reads from/to query parameters, defaulting to the next
// seven days when absent.
func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 0, 7)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must precede to")
	}
	return from, to, nil
}

// handleDomainError maps sentinel errors onto HTTP statuses. Booking
// rejections carry their conflicts and suggested alternatives in the body.
func handleDomainError(w http.ResponseWriter, err error) {
	var conflictErr *booking.ConflictError
	if errors.As(err, &conflictErr) {
		writeJSON(w, http.StatusConflict, conflictErr)
		return
	}
	var notBookable *slot.NotBookableError
	if errors.As(err, &notBookable) {
		writeError(w, http.StatusConflict, "slot_not_bookable", notBookable.Error())
		return
	}

	switch {
	case errors.Is(err, catalog.ErrResourceNotFound),
		errors.Is(err, catalog.ErrTypeNotFound),
		errors.Is(err, catalog.ErrSubtypeNotFound),
		errors.Is(err, catalog.ErrRoleNotFound),
		errors.Is(err, procedure.ErrProcedureNotFound),
		errors.Is(err, slot.ErrSlotNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, ledger.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, booking.ErrInvalidStatusTransition),
		errors.Is(err, booking.ErrAppointmentClosed):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.Is(err, booking.ErrReservationConflict):
		writeError(w, http.StatusConflict, "reservation_conflict", err.Error())

	case errors.Is(err, booking.ErrInsufficientInventory):
		writeError(w, http.StatusConflict, "insufficient_inventory", err.Error())

	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "booking_in_progress", "another booking for this slot is in flight, please retry shortly")

	case errors.Is(err, catalog.ErrResourceHasChildren):
		writeError(w, http.StatusConflict, "resource_has_children", err.Error())

	case errors.Is(err, catalog.ErrRoleTypeMismatch),
		errors.Is(err, catalog.ErrSubtypeTypeMismatch),
		errors.Is(err, catalog.ErrInvalidParent),
		errors.Is(err, procedure.ErrCircularReference),
		errors.Is(err, procedure.ErrNotAtomic),
		errors.Is(err, procedure.ErrNotComposite),
		errors.Is(err, procedure.ErrOffsetOutOfRange),
		errors.Is(err, procedure.ErrInvalidQuantity),
		errors.Is(err, availability.ErrInvalidRecurrence),
		errors.Is(err, booking.ErrMissingSlotOrTime):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// --- appointments ---

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ContactID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "invalid_contact_id", "contact_id is required")
			return
		}

		result, err := svc.Book(r.Context(), req.toModel())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, BookResponse{
			Appointment: toAppointmentResponse(result.Appointment),
			Slot:        toSlotResponse(result.Slot),
			Warnings:    result.Warnings,
		})
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		appt, err := fn(r, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// transitionHandlerFor adapts the plain status-transition methods on the
// booking service (confirm, complete, no-show).
func transitionHandlerFor(fn func(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*booking.Appointment, error) {
		return fn(r.Context(), id)
	})
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*booking.Appointment, error) {
		var req CancelRequest
		_ = json.NewDecoder(r.Body).Decode(&req) // body optional
		return svc.Cancel(r.Context(), id, req.Reason)
	})
}

func rescheduleAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		newReq := booking.BookRequest{Notes: req.Notes}
		if req.SlotID != nil {
			newReq.SlotID = *req.SlotID
		}
		if req.ProcedureID != nil {
			newReq.ProcedureID = *req.ProcedureID
		}
		if req.StartTime != nil {
			newReq.StartTime = *req.StartTime
		}

		result, err := svc.Reschedule(r.Context(), id, newReq)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BookResponse{
			Appointment: toAppointmentResponse(result.Appointment),
			Slot:        toSlotResponse(result.Slot),
			Warnings:    result.Warnings,
		})
	}
}

func reassignResourceHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseUUIDParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		var req ReassignRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := svc.ReassignResource(r.Context(), id, req.OldResourceID, req.NewResourceID); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reassigned"})
	}
}
