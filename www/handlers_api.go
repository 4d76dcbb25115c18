package www

import (
	"errors"
	"net/http"
	"strconv"

	"remanflow/dispatch"
	"remanflow/domain"
	"remanflow/engine"
	"remanflow/pipeline"
	"remanflow/store"
)

const defaultLimit = 100

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, pipeline.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotAwaitingSelection),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, dispatch.ErrConcurrentUpdate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	h.jsonError(w, err.Error(), statusFor(err))
}

func limitParam(r *http.Request) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return defaultLimit
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := h.engine.DB().PingContext(r.Context()) == nil
	pending, _ := h.engine.DB().PendingOutboxCount()
	plans, _ := h.engine.DB().CountPlansByStatus()

	status := "ok"
	if !dbOK || !h.engine.MessagingConnected() {
		status = "degraded"
	}
	h.jsonOK(w, map[string]any{
		"status":         status,
		"database":       dbOK,
		"messaging":      h.engine.MessagingConnected(),
		"outbox_pending": pending,
		"plans":          plans,
		"breakers":       h.engine.Pipeline().BreakerStates(),
	})
}

func (h *Handlers) apiReloadMessaging(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ReloadMessaging(); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]any{
		"backend":   h.engine.AppConfig().Messaging.Backend,
		"connected": h.engine.MessagingConnected(),
	})
}

func (h *Handlers) apiAudit(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("type")
	entityID := r.URL.Query().Get("id")
	if entityType == "" || entityID == "" {
		h.jsonError(w, "type and id are required", http.StatusBadRequest)
		return
	}
	entries, err := h.engine.DB().ListAudit(entityType, entityID, limitParam(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	h.jsonOK(w, entries)
}

func (h *Handlers) apiEvents(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.feed.Recent(limitParam(r)))
}
