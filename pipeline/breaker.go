package pipeline

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerSet keeps one circuit breaker per provider. Three consecutive
// failed estimate calls open it for 30 seconds.
type breakerSet struct {
	mu       sync.Mutex
	m        map[string]*gobreaker.CircuitBreaker
	logFn    LogFunc
	onChange BreakerObserver
}

// BreakerObserver is told when a provider's breaker changes state.
type BreakerObserver func(providerID string, state gobreaker.State)

func newBreakerSet(logFn LogFunc, onChange BreakerObserver) *breakerSet {
	return &breakerSet{m: make(map[string]*gobreaker.CircuitBreaker), logFn: logFn, onChange: onChange}
}

func (b *breakerSet) get(providerID string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[providerID]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "provider-" + providerID,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				b.logFn("pipeline: breaker %s %s -> %s", name, from, to)
				if b.onChange != nil {
					b.onChange(providerID, to)
				}
			},
		})
		b.m[providerID] = cb
	}
	return cb
}

// States reports the state of every breaker created so far.
func (b *breakerSet) States() map[string]gobreaker.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]gobreaker.State, len(b.m))
	for id, cb := range b.m {
		out[id] = cb.State()
	}
	return out
}
