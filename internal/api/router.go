package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/booking"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	"github.com/careops/clinic-scheduling/internal/slot"
)

type RouterConfig struct {
	Catalog      *catalog.Service
	Procedures   *procedure.Service
	Expander     *procedure.Expander
	Availability *availability.Engine
	Generator    *slot.Generator
	Slots        slot.Repository
	Bookings     *booking.Service
	Ledger       ledger.Repository
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/resource-types", func(r chi.Router) {
		r.Get("/", listResourceTypesHandler(cfg.Catalog))
	})
	r.Route("/resource-subtypes", func(r chi.Router) {
		r.Get("/", listResourceSubtypesHandler(cfg.Catalog))
	})
	r.Route("/resource-roles", func(r chi.Router) {
		r.Get("/", listResourceRolesHandler(cfg.Catalog))
	})

	r.Route("/resources", func(r chi.Router) {
		r.Get("/", listResourcesHandler(cfg.Catalog))
		r.Post("/", createResourceHandler(cfg.Catalog))
		r.Get("/{id}", getResourceHandler(cfg.Catalog))
		r.Put("/{id}", updateResourceHandler(cfg.Catalog))
		r.Delete("/{id}", deleteResourceHandler(cfg.Catalog))
		r.Get("/{id}/inventory", resourceInventoryHandler(cfg.Catalog, cfg.Ledger))
		r.Post("/{id}/availability", createAvailabilityHandler(cfg.Availability))
		r.Get("/{id}/windows", resourceWindowsHandler(cfg.Availability))
		r.Get("/{id}/check", checkAvailabilityHandler(cfg.Availability))
		r.Get("/{id}/coverage", resourceCoverageHandler(cfg.Bookings))
	})

	r.Delete("/availability/{id}", deleteAvailabilityHandler(cfg.Availability))

	r.Route("/procedures", func(r chi.Router) {
		r.Get("/", listProceduresHandler(cfg.Procedures))
		r.Post("/", createProcedureHandler(cfg.Procedures))
		r.Get("/{id}", getProcedureHandler(cfg.Procedures))
		r.Post("/{id}/requirements", addRequirementHandler(cfg.Procedures))
		r.Post("/{id}/children", addChildHandler(cfg.Procedures))
		r.Get("/{id}/expand", expandProcedureHandler(cfg.Expander))
		r.Get("/{id}/duration", procedureDurationHandler(cfg.Procedures))
		r.Post("/{id}/slots/preview", previewSlotsHandler(cfg.Generator))
		r.Post("/{id}/slots", materializeSlotsHandler(cfg.Generator))
		r.Get("/{id}/slots", listSlotsHandler(cfg.Slots))
	})

	r.Route("/slots", func(r chi.Router) {
		r.Get("/{id}", getSlotHandler(cfg.Slots))
		r.Get("/{id}/validate", validateSlotHandler(cfg.Generator))
		r.Post("/cleanup", cleanupSlotsHandler(cfg.Generator))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Bookings))
		r.Get("/{id}", getAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/confirm", transitionHandlerFor(cfg.Bookings.Confirm))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/complete", transitionHandlerFor(cfg.Bookings.Complete))
		r.Post("/{id}/no-show", transitionHandlerFor(cfg.Bookings.MarkNoShow))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/reassign", reassignResourceHandler(cfg.Bookings))
	})

	return r
}
