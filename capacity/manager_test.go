package capacity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remanflow/config"
	"remanflow/store"
)

type memCache struct {
	mu    sync.Mutex
	data  map[string][]store.Booking
	reads int
	fail  bool
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]store.Booking)} }

func (c *memCache) GetBookings(_ context.Context, id string) ([]store.Booking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.fail {
		return nil, errors.New("connection refused")
	}
	b, ok := c.data[id]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (c *memCache) SetBookings(_ context.Context, id string, b []store.Booking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = b
	return nil
}

func (c *memCache) FlushAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]store.Booking)
	return nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cap.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, cache Cache) *Manager {
	m := NewManager(testDB(t), cache)
	m.now = func() time.Time { return monday }
	return m
}

func TestBookWritesThrough(t *testing.T) {
	cache := newMemCache()
	m := newTestManager(t, cache)

	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "plan-1", StepID: "s1",
		Start: monday.Add(8 * time.Hour), End: monday.Add(10 * time.Hour)}))

	require.Len(t, cache.data["p1"], 1)

	got, err := m.Bookings("p1", monday)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "plan-1", got[0].PlanID)
	assert.Equal(t, 1, cache.reads)

	n, err := m.Release("p1", "plan-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, cache.data["p1"])
}

func TestBookingsFiltersCachedByFrom(t *testing.T) {
	cache := newMemCache()
	m := newTestManager(t, cache)
	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "a", StepID: "s1",
		Start: monday.Add(8 * time.Hour), End: monday.Add(10 * time.Hour)}))
	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "b", StepID: "s1",
		Start: monday.Add(13 * time.Hour), End: monday.Add(15 * time.Hour)}))

	got, err := m.Bookings("p1", monday.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].PlanID)
}

func TestBookingsFallsBackToSQL(t *testing.T) {
	cache := newMemCache()
	m := newTestManager(t, cache)
	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "a", StepID: "s1",
		Start: monday.Add(8 * time.Hour), End: monday.Add(10 * time.Hour)}))

	cache.fail = true
	got, err := m.Bookings("p1", monday)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNilCacheIsSQLOnly(t *testing.T) {
	m := newTestManager(t, nil)
	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "a", StepID: "s1",
		Start: monday.Add(8 * time.Hour), End: monday.Add(10 * time.Hour)}))
	got, err := m.Bookings("p1", monday)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, m.SyncRedisFromSQL("p1"))
}

func TestSyncRedisFromSQL(t *testing.T) {
	cache := newMemCache()
	m := newTestManager(t, cache)
	require.NoError(t, m.Book(&store.Booking{ProviderID: "p1", PlanID: "a", StepID: "s1",
		Start: monday.Add(8 * time.Hour), End: monday.Add(10 * time.Hour)}))
	cache.data["stale"] = []store.Booking{{ProviderID: "stale"}}

	require.NoError(t, m.SyncRedisFromSQL("p1", "p2"))
	assert.NotContains(t, cache.data, "stale")
	assert.Len(t, cache.data["p1"], 1)
	assert.Empty(t, cache.data["p2"])
}

func TestBookingsKey(t *testing.T) {
	assert.Equal(t, "remanflow:bookings:p1", bookingsKey("p1"))
}
