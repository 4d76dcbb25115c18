package www

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"remanflow/engine"
)

type Handlers struct {
	engine *engine.Engine
	feed   *eventFeed
}

// NewRouter builds the HTTP API. The returned func detaches the router from
// the engine's event bus and must be called on shutdown.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine: eng,
		feed:   newEventFeed(eng.Events, feedSize),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", h.apiHealth)
	r.Method(http.MethodGet, "/metrics", eng.Metrics().Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Logger)

		api.Post("/requests", h.apiSubmitRequest)
		api.Get("/requests", h.apiListRequests)
		api.Get("/requests/{id}", h.apiGetRequest)
		api.Get("/requests/{id}/strategies", h.apiListStrategies)
		api.Post("/requests/{id}/select", h.apiSelectStrategy)

		api.Get("/plans", h.apiListPlans)
		api.Get("/plans/{id}", h.apiGetPlan)
		api.Post("/plans/{id}/cancel", h.apiCancelPlan)

		api.Get("/providers", h.apiListProviders)
		api.Post("/providers", h.apiRegisterProvider)
		api.Get("/providers/{id}/bookings", h.apiProviderBookings)
		api.Post("/providers/{id}/enable", h.apiEnableProvider)
		api.Post("/providers/{id}/disable", h.apiDisableProvider)
		api.Delete("/providers/{id}", h.apiDeleteProvider)

		api.Post("/messaging/reload", h.apiReloadMessaging)

		api.Get("/audit", h.apiAudit)
		api.Get("/events", h.apiEvents)
	})

	return r, h.feed.Close
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
