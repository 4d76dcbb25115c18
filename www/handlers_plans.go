package www

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remanflow/domain"
)

func (h *Handlers) apiListPlans(w http.ResponseWriter, r *http.Request) {
	var status domain.PlanStatus
	if s := r.URL.Query().Get("status"); s != "" {
		var err error
		if status, err = domain.ParsePlanStatus(s); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	plans, err := h.engine.DB().ListPlans(status, limitParam(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	if plans == nil {
		plans = []*domain.Plan{}
	}
	h.jsonOK(w, plans)
}

func (h *Handlers) apiGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.engine.DB().GetPlan(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.jsonOK(w, plan)
}

func (h *Handlers) apiCancelPlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	// An empty body cancels without a reason.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	plan, err := h.engine.CancelPlan(chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.jsonOK(w, plan)
}
