package www

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"remanflow/domain"
	"remanflow/store"
)

// actor names who made a registry change; there is no login, so the
// caller may identify itself with a header.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func (h *Handlers) apiListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.engine.DB().ListProviders()
	if err != nil {
		h.fail(w, err)
		return
	}
	if providers == nil {
		providers = []*store.ProviderRecord{}
	}
	h.jsonOK(w, providers)
}

func (h *Handlers) apiRegisterProvider(w http.ResponseWriter, r *http.Request) {
	p := domain.Provider{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.jsonError(w, "invalid provider: "+err.Error(), http.StatusBadRequest)
		return
	}
	if p.ID == "" || len(p.Capabilities) == 0 {
		h.jsonError(w, "id and capabilities are required", http.StatusBadRequest)
		return
	}
	if err := h.engine.RegisterProvider(p, actor(r)); err != nil {
		h.fail(w, err)
		return
	}
	rec, err := h.engine.DB().GetProvider(p.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, rec)
}

func (h *Handlers) apiEnableProvider(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handlers) apiDisableProvider(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handlers) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := chi.URLParam(r, "id")
	if err := h.engine.SetProviderEnabled(id, enabled, actor(r)); err != nil {
		h.fail(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"id": id, "enabled": enabled})
}

func (h *Handlers) apiDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.DB().GetProvider(id); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.engine.DeleteProvider(id, actor(r)); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiProviderBookings lists bookings that have not ended yet.
func (h *Handlers) apiProviderBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from := time.Now().UTC()
	var (
		bookings []store.Booking
		err      error
	)
	if c := h.engine.Capacity(); c != nil {
		bookings, err = c.Bookings(id, from)
	} else {
		bookings, err = h.engine.DB().ListBookings(id, from)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	if bookings == nil {
		bookings = []store.Booking{}
	}
	h.jsonOK(w, bookings)
}
