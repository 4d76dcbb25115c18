package www

import (
	"fmt"
	"sync"
	"time"

	"remanflow/engine"
)

const feedSize = 200

// FeedEntry is a flattened engine event for the operator feed.
type FeedEntry struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	EntityID string    `json:"entity_id,omitempty"`
	Summary  string    `json:"summary"`
}

// eventFeed keeps the most recent engine events in a ring buffer.
type eventFeed struct {
	bus   *engine.EventBus
	subID int

	mu      sync.Mutex
	entries []FeedEntry
	next    int
	full    bool
}

func newEventFeed(bus *engine.EventBus, size int) *eventFeed {
	f := &eventFeed{bus: bus, entries: make([]FeedEntry, size)}
	f.subID = bus.Subscribe(f.record)
	return f
}

func (f *eventFeed) Close() {
	f.bus.Unsubscribe(f.subID)
}

func (f *eventFeed) record(evt engine.Event) {
	entry := FeedEntry{Type: evt.Type.String(), Time: evt.Timestamp}
	entry.EntityID, entry.Summary = summarize(evt)

	f.mu.Lock()
	f.entries[f.next] = entry
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()
}

// Recent returns up to n entries, newest first.
func (f *eventFeed) Recent(n int) []FeedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := f.next
	if f.full {
		count = len(f.entries)
	}
	if n > count {
		n = count
	}
	out := make([]FeedEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (f.next - i + len(f.entries)) % len(f.entries)
		out = append(out, f.entries[idx])
	}
	return out
}

func summarize(evt engine.Event) (string, string) {
	switch p := evt.Payload.(type) {
	case engine.RequestReceivedEvent:
		return p.RequestID, "request from customer " + p.CustomerID
	case engine.StrategiesReadyEvent:
		return p.RequestID, fmt.Sprintf("%d strategies offered", len(p.Strategies))
	case engine.PipelineFailedEvent:
		return p.RequestID, p.Err.Error()
	case engine.PlanEvent:
		switch evt.Type {
		case engine.EventStepDispatched, engine.EventStepCompleted:
			st := p.Plan.Strategy.Steps[p.Step]
			return p.Plan.ID, fmt.Sprintf("step %d %s", st.StepNumber, st.Process)
		}
		if p.Reason != "" {
			return p.Plan.ID, p.Plan.Status.String() + ": " + p.Reason
		}
		return p.Plan.ID, p.Plan.Status.String()
	case engine.ProviderUpdatedEvent:
		return p.ProviderID, p.Action + " by " + p.Actor
	case engine.ConnectionEvent:
		return "", p.Detail
	}
	return "", ""
}
