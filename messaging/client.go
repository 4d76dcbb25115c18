package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"remanflow/config"
)

// ErrTimeout is returned when a request or inbox wait gets no message in time.
var ErrTimeout = errors.New("messaging: timed out waiting for message")

// Handler receives raw payloads for a logical topic.
type Handler func(topic string, payload []byte)

// Backend is a broker transport.
type Backend interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Subscribe(topic string, h Handler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Close()
}

// Purger is implemented by backends that can delete temporary topics.
type Purger interface {
	Purge(topic string) error
}

// EphemeralSubscriber is implemented by backends that consume reply and
// inbox topics outside any shared consumer group.
type EphemeralSubscriber interface {
	SubscribeEphemeral(topic string, h Handler) error
}

// Client publishes and consumes envelopes over a swappable backend.
type Client struct {
	mu      sync.RWMutex
	backend Backend
	source  string
	subs    map[string]subscription
}

type subscription struct {
	handler   Handler
	ephemeral bool
}

func subscribeBackend(b Backend, topic string, sub subscription) error {
	if sub.ephemeral {
		if es, ok := b.(EphemeralSubscriber); ok {
			return es.SubscribeEphemeral(topic, sub.handler)
		}
	}
	return b.Subscribe(topic, sub.handler)
}

// NewClient builds the backend named in cfg.
func NewClient(cfg *config.MessagingConfig, source string) *Client {
	return NewClientWithBackend(newBackend(cfg), source)
}

func NewClientWithBackend(b Backend, source string) *Client {
	return &Client{backend: b, source: source, subs: make(map[string]subscription)}
}

func newBackend(cfg *config.MessagingConfig) Backend {
	switch cfg.Backend {
	case "kafka":
		return NewKafkaBackend(cfg.Kafka)
	case "memory":
		return NewMemoryBackend(nil)
	default:
		return NewMQTTBackend(cfg.MQTT)
	}
}

func (c *Client) Source() string { return c.source }

func (c *Client) Connect() error {
	return c.getBackend().Connect()
}

func (c *Client) IsConnected() bool {
	return c.getBackend().IsConnected()
}

func (c *Client) Close() {
	c.getBackend().Close()
}

func (c *Client) getBackend() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend
}

// Reconfigure swaps in a backend built from cfg, connects it and replays
// every live subscription. The old backend is closed only on success.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	next := newBackend(cfg)
	if err := next.Connect(); err != nil {
		return fmt.Errorf("reconnect %s: %w", cfg.Backend, err)
	}

	c.mu.Lock()
	old := c.backend
	c.backend = next
	subs := make(map[string]subscription, len(c.subs))
	for t, sub := range c.subs {
		subs[t] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		if err := subscribeBackend(next, topic, sub); err != nil {
			log.Printf("messaging: resubscribe %s: %v", topic, err)
		}
	}
	old.Close()
	log.Printf("messaging: reconfigured to %s backend", cfg.Backend)
	return nil
}

// PublishRaw sends already encoded bytes to a logical topic.
func (c *Client) PublishRaw(topic string, data []byte) error {
	return c.getBackend().Publish(topic, data)
}

func (c *Client) Publish(exchange, routingKey string, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	topic := Topic(exchange, routingKey)
	if err := c.PublishRaw(topic, data); err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Type, topic, err)
	}
	return nil
}

// Send wraps body in a fresh envelope and publishes it.
func (c *Client) Send(exchange, routingKey, msgType string, body any) error {
	return c.Publish(exchange, routingKey, NewEnvelope(msgType, c.source, body))
}

// Subscribe decodes envelopes on the topic and hands them to fn.
func (c *Client) Subscribe(exchange, routingKey string, fn func(*Envelope)) error {
	return c.subscribeTopic(Topic(exchange, routingKey), fn, false)
}

func (c *Client) subscribeTopic(topic string, fn func(*Envelope), ephemeral bool) error {
	h := func(t string, payload []byte) {
		env, err := Decode(payload)
		if err != nil {
			log.Printf("messaging: drop message on %s: %v", t, err)
			return
		}
		fn(env)
	}
	sub := subscription{handler: h, ephemeral: ephemeral}
	c.mu.Lock()
	c.subs[topic] = sub
	b := c.backend
	c.mu.Unlock()
	if err := subscribeBackend(b, topic, sub); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Unsubscribe(exchange, routingKey string) error {
	return c.unsubscribeTopic(Topic(exchange, routingKey))
}

func (c *Client) unsubscribeTopic(topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	b := c.backend
	c.mu.Unlock()
	return b.Unsubscribe(topic)
}

func (c *Client) purge(topic string) {
	if p, ok := c.getBackend().(Purger); ok {
		if err := p.Purge(topic); err != nil {
			log.Printf("messaging: purge %s: %v", topic, err)
		}
	}
}

// Request publishes body to exchange/routingKey and waits for the single
// reply carrying the same correlation id. The temporary reply subscription
// is always removed, including on timeout.
func (c *Client) Request(ctx context.Context, exchange, routingKey, msgType string, body any, timeout time.Duration) (*Envelope, error) {
	corrID := uuid.New().String()
	replyTopic := Topic(ExchangeRPC, replyKey(corrID))

	replies := make(chan *Envelope, 1)
	err := c.subscribeTopic(replyTopic, func(env *Envelope) {
		if env.CorrelationID != corrID {
			return
		}
		select {
		case replies <- env:
		default:
		}
	}, true)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.unsubscribeTopic(replyTopic); err != nil {
			log.Printf("messaging: unsubscribe %s: %v", replyTopic, err)
		}
		c.purge(replyTopic)
	}()

	env := NewEnvelope(msgType, c.source, body)
	env.CorrelationID = corrID
	env.ReplyTo = replyTopic
	if err := c.Publish(exchange, routingKey, env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s to %s after %s", ErrTimeout, msgType, Topic(exchange, routingKey), timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers a request envelope on its reply topic.
func (c *Client) Reply(req *Envelope, msgType string, body any) error {
	if req.ReplyTo == "" {
		return fmt.Errorf("%s from %s has no reply_to", req.Type, req.Source)
	}
	env := NewEnvelope(msgType, c.source, body)
	env.CorrelationID = req.CorrelationID
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return c.PublishRaw(req.ReplyTo, data)
}

// Inbox is a temporary subscription that buffers envelopes until read.
type Inbox struct {
	client *Client
	topic  string
	ch     chan *Envelope
	once   sync.Once
}

// OpenInbox subscribes to exchange/routingKey and buffers what arrives.
func (c *Client) OpenInbox(exchange, routingKey string) (*Inbox, error) {
	in := &Inbox{client: c, topic: Topic(exchange, routingKey), ch: make(chan *Envelope, 16)}
	err := c.subscribeTopic(in.topic, func(env *Envelope) {
		select {
		case in.ch <- env:
		default:
			log.Printf("messaging: inbox %s full, dropping %s", in.topic, env.Type)
		}
	}, true)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Inbox) Topic() string { return in.topic }

// Receive blocks for the next envelope.
func (in *Inbox) Receive(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-in.ch:
		return env, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: inbox %s after %s", ErrTimeout, in.topic, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes, purges the topic and drops buffered envelopes.
func (in *Inbox) Close() {
	in.once.Do(func() {
		if err := in.client.unsubscribeTopic(in.topic); err != nil {
			log.Printf("messaging: unsubscribe %s: %v", in.topic, err)
		}
		in.client.purge(in.topic)
		for {
			select {
			case <-in.ch:
			default:
				return
			}
		}
	})
}
