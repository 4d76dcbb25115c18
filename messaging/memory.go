package messaging

import (
	"errors"
	"sync"
)

var errNotConnected = errors.New("messaging: not connected")

// MemoryBroker routes messages between in-process backends. Each
// subscription delivers on its own goroutine, in publish order.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*MemoryBackend]*memorySub
}

var sharedBroker = NewMemoryBroker()

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*MemoryBackend]*memorySub)}
}

// HasSubscribers reports whether anything is listening on topic.
func (b *MemoryBroker) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic]) > 0
}

func (b *MemoryBroker) publish(topic string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[topic] {
		s.push(payload)
	}
}

func (b *MemoryBroker) subscribe(owner *MemoryBackend, topic string, h Handler) {
	s := newMemorySub(topic, h)
	b.mu.Lock()
	m, ok := b.subs[topic]
	if !ok {
		m = make(map[*MemoryBackend]*memorySub)
		b.subs[topic] = m
	}
	old := m[owner]
	m[owner] = s
	b.mu.Unlock()
	if old != nil {
		old.stop()
	}
}

func (b *MemoryBroker) unsubscribe(owner *MemoryBackend, topic string) {
	b.mu.Lock()
	s := b.subs[topic][owner]
	delete(b.subs[topic], owner)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	b.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

type memorySub struct {
	topic   string
	handler Handler

	mu     sync.Mutex
	queue  [][]byte
	signal chan struct{}
	done   chan struct{}
}

func newMemorySub(topic string, h Handler) *memorySub {
	s := &memorySub{
		topic:   topic,
		handler: h,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *memorySub) push(payload []byte) {
	s.mu.Lock()
	s.queue = append(s.queue, payload)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// stop ends delivery; anything still queued is discarded.
func (s *memorySub) stop() {
	close(s.done)
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.handler(s.topic, msg)
		}
	}
}

// MemoryBackend is a Backend bound to a MemoryBroker.
type MemoryBackend struct {
	broker *MemoryBroker

	mu        sync.Mutex
	connected bool
	topics    map[string]bool
}

func NewMemoryBackend(broker *MemoryBroker) *MemoryBackend {
	if broker == nil {
		broker = sharedBroker
	}
	return &MemoryBackend{broker: broker, topics: make(map[string]bool)}
}

func (m *MemoryBackend) Connect() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MemoryBackend) Publish(topic string, payload []byte) error {
	if !m.IsConnected() {
		return errNotConnected
	}
	m.broker.publish(topic, payload)
	return nil
}

func (m *MemoryBackend) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return errNotConnected
	}
	m.topics[topic] = true
	m.mu.Unlock()
	m.broker.subscribe(m, topic, h)
	return nil
}

func (m *MemoryBackend) Unsubscribe(topic string) error {
	m.mu.Lock()
	delete(m.topics, topic)
	m.mu.Unlock()
	m.broker.unsubscribe(m, topic)
	return nil
}

func (m *MemoryBackend) Close() {
	m.mu.Lock()
	topics := make([]string, 0, len(m.topics))
	for t := range m.topics {
		topics = append(topics, t)
	}
	m.topics = make(map[string]bool)
	m.connected = false
	m.mu.Unlock()
	for _, t := range topics {
		m.broker.unsubscribe(m, t)
	}
}
