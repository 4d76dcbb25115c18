package www

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remanflow/config"
	"remanflow/domain"
	"remanflow/engine"
	"remanflow/messaging"
	"remanflow/metrics"
	"remanflow/store"
)

type apiFixture struct {
	db      *store.DB
	handler http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Messaging.Backend = "memory"
	cfg.Workflows = config.WorkflowsConfig{Upgrade: []string{"Cleaning", "Turning"}, Refurbish: []string{"Cleaning"}}

	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "www.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := messaging.NewClientWithBackend(messaging.NewMemoryBackend(messaging.NewMemoryBroker()), "core")
	require.NoError(t, client.Connect())
	t.Cleanup(client.Close)

	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		MsgClient: client,
		Metrics:   metrics.New("test"),
		LogFunc:   t.Logf,
	})
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)

	handler, stop := NewRouter(eng)
	t.Cleanup(stop)
	return &apiFixture{db: db, handler: handler}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor", "tester")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["database"])
	assert.Equal(t, true, body["messaging"])
	assert.Equal(t, map[string]any{}, body["breakers"])
}

func TestReloadMessagingWithoutConfigFile(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/messaging/reload", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "no config file")

	rec = f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, true, decode[map[string]any](t, rec)["messaging"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "remanflow_")
}

func TestSubmitRequest(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/requests", `{"customer_id":"c1","motor":{"power_kw":0,"current_efficiency":"IE2","target_efficiency":"IE3"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/requests", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/requests", `{"customer_id":"c1","motor":{"power_kw":11,"axis_height_mm":132,"current_efficiency":"IE2","target_efficiency":"IE2"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	accepted := decode[domain.Request](t, rec)
	require.NotEmpty(t, accepted.ID)
	assert.Equal(t, "/api/requests/"+accepted.ID, rec.Header().Get("Location"))

	// No provider is registered, so the pipeline fails at matching.
	require.Eventually(t, func() bool {
		r, err := f.db.GetRequest(accepted.ID)
		return err == nil && r.Status == store.RequestFailed
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodGet, "/api/requests/"+accepted.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[store.RequestRecord](t, rec)
	assert.Equal(t, store.RequestFailed, got.Status)
	assert.Equal(t, "Refurbish", got.WorkflowType)

	rec = f.do(t, http.MethodGet, "/api/requests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.RequestRecord](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/requests/"+accepted.ID+"/strategies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.Strategy](t, rec))

	rec = f.do(t, http.MethodPost, "/api/requests/"+accepted.ID+"/select", `{"strategy_id":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestNotFound(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/requests/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/requests/missing/strategies", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/requests/missing/select", `{"strategy_id":"s"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/requests/missing/select", `{}`).Code)
}

func TestProviderLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/providers", `{"id":"p1","name":"Shop","capabilities":["Cleaning","Turning"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[store.ProviderRecord](t, rec)
	assert.True(t, created.Enabled)
	assert.Equal(t, []domain.ProcessType{domain.ProcessCleaning, domain.ProcessTurning}, created.Capabilities)

	rec = f.do(t, http.MethodPost, "/api/providers", `{"id":"p2","capabilities":["Polishing"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/providers", `{"id":"p2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/providers/p1/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	enabled, err := f.db.EnabledProviders()
	require.NoError(t, err)
	assert.Empty(t, enabled)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/providers/nope/enable", "").Code)

	rec = f.do(t, http.MethodGet, "/api/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.ProviderRecord](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/providers/p1/bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]store.Booking](t, rec))

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/providers/p1", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/providers/p1", "").Code)

	rec = f.do(t, http.MethodGet, "/api/audit?type=provider&id=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[[]store.AuditEntry](t, rec)
	require.Len(t, audit, 3)
	assert.Equal(t, "deleted", audit[0].Action)
	assert.Equal(t, "tester", audit[0].Actor)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/audit?type=provider", "").Code)

	rec = f.do(t, http.MethodGet, "/api/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]FeedEntry](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, "provider_updated", events[0].Type)
	assert.Equal(t, "p1", events[0].EntityID)
	assert.Equal(t, "deleted by tester", events[0].Summary)
}

func completedPlan(t *testing.T, db *store.DB) *domain.Plan {
	t.Helper()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s := domain.Strategy{
		ID: "s1", RequestID: "r1", Priority: domain.PriorityHighestQuality, WorkflowType: domain.WorkflowRefurbish,
		Steps: []domain.ProcessStep{{ID: "st1", StepNumber: 1, Process: domain.ProcessCleaning}},
	}
	plan := domain.NewPlan("plan-1", domain.Request{ID: "r1", CustomerID: "c1"}, s, now)
	for _, to := range []domain.PlanStatus{domain.PlanSelected, domain.PlanConfirmed, domain.PlanInProgress, domain.PlanCompleted} {
		require.NoError(t, plan.Transition(to, now))
	}
	require.NoError(t, db.CreatePlan(plan))
	return plan
}

func TestPlans(t *testing.T) {
	f := newAPIFixture(t)
	plan := completedPlan(t, f.db)

	rec := f.do(t, http.MethodGet, "/api/plans/"+plan.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Plan](t, rec)
	assert.Equal(t, domain.PlanCompleted, got.Status)

	rec = f.do(t, http.MethodGet, "/api/plans?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Plan](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/plans?status=InProgress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.Plan](t, rec))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/plans?status=bogus", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/plans/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/plans/missing/cancel", "").Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/plans/"+plan.ID+"/cancel", `{"reason":"late"}`).Code)
}
