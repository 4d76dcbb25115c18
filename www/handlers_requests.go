package www

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remanflow/domain"
	"remanflow/store"
)

func (h *Handlers) apiSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	accepted, err := h.engine.SubmitRequest(req)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/requests/"+accepted.ID)
	h.jsonStatus(w, http.StatusCreated, accepted)
}

func (h *Handlers) apiListRequests(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.DB().ListRequests(limitParam(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if recs == nil {
		recs = []*store.RequestRecord{}
	}
	h.jsonOK(w, recs)
}

func (h *Handlers) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.DB().GetRequest(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.jsonOK(w, rec)
}

func (h *Handlers) apiListStrategies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.DB().GetRequest(id); err != nil {
		h.fail(w, err)
		return
	}
	strategies, err := h.engine.DB().ListStrategies(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if strategies == nil {
		strategies = []domain.Strategy{}
	}
	h.jsonOK(w, strategies)
}

func (h *Handlers) apiSelectStrategy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StrategyID string `json:"strategy_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StrategyID == "" {
		h.jsonError(w, "strategy_id is required", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.engine.SelectStrategy(id, body.StrategyID); err != nil {
		h.fail(w, err)
		return
	}
	h.jsonStatus(w, http.StatusAccepted, map[string]string{"request_id": id, "strategy_id": body.StrategyID})
}
