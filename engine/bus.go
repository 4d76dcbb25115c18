package engine

import (
	"sync"
	"time"
)

type EventType int

type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// EventBus fans events out to subscribers synchronously, in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id    int
	types map[EventType]bool
	fn    func(Event)
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event type and returns an id for Unsubscribe.
func (b *EventBus) Subscribe(fn func(Event)) int {
	return b.SubscribeTypes(fn)
}

// SubscribeTypes registers fn for the given types, or all types when none are given.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := subscription{id: b.nextID, fn: fn}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	b.subs = append(b.subs, s)
	return s.id
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.types == nil || s.types[evt.Type] {
			s.fn(evt)
		}
	}
}
