package capacity

import (
	"context"
	"errors"
	"log"
	"time"

	"remanflow/store"
)

var ErrCacheMiss = errors.New("capacity: cache miss")

// Cache holds a read copy of provider bookings.
type Cache interface {
	GetBookings(ctx context.Context, providerID string) ([]store.Booking, error)
	SetBookings(ctx context.Context, providerID string, bookings []store.Booking) error
	FlushAll(ctx context.Context) error
}

// BookingStore is the SQL side.
type BookingStore interface {
	CreateBooking(b *store.Booking) error
	ListBookings(providerID string, from time.Time) ([]store.Booking, error)
	DeletePlanBookings(planID string) (int64, error)
}

// Manager provides write-through booking management: SQL first, then the
// cache. With a nil cache every read goes to SQL.
type Manager struct {
	db    BookingStore
	cache Cache
	now   func() time.Time
}

func NewManager(db BookingStore, cache Cache) *Manager {
	return &Manager{db: db, cache: cache, now: time.Now}
}

// Book reserves a slot in SQL and refreshes the provider's cached list.
func (m *Manager) Book(b *store.Booking) error {
	if err := m.db.CreateBooking(b); err != nil {
		return err
	}
	m.refresh(b.ProviderID)
	return nil
}

// Release drops every booking the plan holds with the provider.
func (m *Manager) Release(providerID, planID string) (int64, error) {
	n, err := m.db.DeletePlanBookings(planID)
	if err != nil {
		return 0, err
	}
	m.refresh(providerID)
	return n, nil
}

// Bookings returns the provider's bookings ending after from, reading the
// cache first and falling back to SQL.
func (m *Manager) Bookings(providerID string, from time.Time) ([]store.Booking, error) {
	if m.cache != nil {
		cached, err := m.cache.GetBookings(context.Background(), providerID)
		if err == nil {
			return endingAfter(cached, from), nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("capacity: cache read for %s: %v", providerID, err)
		}
	}
	bookings, err := m.db.ListBookings(providerID, from)
	if err != nil {
		return nil, err
	}
	if m.cache != nil && from.Before(m.now()) {
		m.store(providerID, bookings)
	}
	return bookings, nil
}

// SyncRedisFromSQL rebuilds the cache for the given providers. Called on startup.
func (m *Manager) SyncRedisFromSQL(providerIDs ...string) error {
	if m.cache == nil {
		return nil
	}
	ctx := context.Background()
	if err := m.cache.FlushAll(ctx); err != nil {
		return err
	}
	for _, id := range providerIDs {
		m.refresh(id)
	}
	log.Printf("capacity: synced %d providers to redis", len(providerIDs))
	return nil
}

func (m *Manager) refresh(providerID string) {
	if m.cache == nil {
		return
	}
	bookings, err := m.db.ListBookings(providerID, m.now())
	if err != nil {
		log.Printf("capacity: refresh cache for %s: %v", providerID, err)
		return
	}
	m.store(providerID, bookings)
}

func (m *Manager) store(providerID string, bookings []store.Booking) {
	if bookings == nil {
		bookings = []store.Booking{}
	}
	if err := m.cache.SetBookings(context.Background(), providerID, bookings); err != nil {
		log.Printf("capacity: cache write for %s: %v", providerID, err)
	}
}

func endingAfter(bookings []store.Booking, from time.Time) []store.Booking {
	var out []store.Booking
	for _, b := range bookings {
		if b.End.After(from) {
			out = append(out, b)
		}
	}
	return out
}
