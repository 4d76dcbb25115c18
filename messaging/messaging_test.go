package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remanflow/config"
	"remanflow/domain"
	"remanflow/store"
)

func pair(t *testing.T) (*MemoryBroker, *Client, *Client) {
	t.Helper()
	broker := NewMemoryBroker()
	a := NewClientWithBackend(NewMemoryBackend(broker), "core")
	b := NewClientWithBackend(NewMemoryBackend(broker), "p1")
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return broker, a, b
}

func TestEnvelopeCarriesPayload(t *testing.T) {
	env := NewEnvelope(TypeSelectStrategy, "web", SelectStrategy{RequestID: "r1", SelectedStrategyID: "s2"})
	data, err := env.Encode()
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, TypeSelectStrategy, got.Type)
	assert.Equal(t, "web", got.Source)

	var sel SelectStrategy
	require.NoError(t, got.DecodePayload(&sel))
	assert.Equal(t, "s2", sel.SelectedStrategyID)
}

func TestDecodePayloadEmpty(t *testing.T) {
	env := &Envelope{Type: "x"}
	var v map[string]any
	assert.Error(t, env.DecodePayload(&v))
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "provider.p1.propose", Topic(ExchangeProvider, ProposeKey("p1")))
	assert.Equal(t, "optimization.select.r9", Topic(ExchangeOptimization, SelectKey("r9")))
	assert.Equal(t, "customer.c1.plan", Topic(ExchangeCustomer, CustomerPlanKey("c1")))
	assert.Equal(t, "provider/p1/propose", mqttTopic("provider.p1.propose"))
	assert.Equal(t, "provider.p1.propose", logicalTopic("provider/p1/propose"))
}

func TestPublishSubscribeOrder(t *testing.T) {
	_, a, b := pair(t)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	require.NoError(t, b.Subscribe(ExchangeOptimization, KeyPlanReady, func(env *Envelope) {
		mu.Lock()
		got = append(got, env.ID)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
	}))

	var want []string
	for i := 0; i < 3; i++ {
		env := NewEnvelope(TypeOptimizationPlanReady, a.Source(), map[string]int{"n": i})
		want = append(want, env.ID)
		require.NoError(t, a.Publish(ExchangeOptimization, KeyPlanReady, env))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestRequestReply(t *testing.T) {
	_, core, prov := pair(t)

	require.NoError(t, prov.Subscribe(ExchangeProvider, ProposeKey("p1"), func(env *Envelope) {
		var req ProposeProcessToProvider
		if !assert.NoError(t, env.DecodePayload(&req)) {
			return
		}
		err := prov.Reply(env, TypeProcessProposalEstimated, ProcessProposalEstimated{
			RequestID:  req.RequestID,
			ProviderID: "p1",
			Process:    req.Process,
			Estimate:   domain.Estimate{Cost: 120, DurationHours: 4},
		})
		assert.NoError(t, err)
	}))

	reply, err := core.Request(context.Background(), ExchangeProvider, ProposeKey("p1"),
		TypeProposeProcessToProvider,
		ProposeProcessToProvider{RequestID: "r1", ProviderID: "p1", Process: domain.ProcessCleaning},
		time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeProcessProposalEstimated, reply.Type)

	var est ProcessProposalEstimated
	require.NoError(t, reply.DecodePayload(&est))
	assert.Equal(t, 120.0, est.Estimate.Cost)
	assert.Equal(t, domain.ProcessCleaning, est.Process)

	core.mu.RLock()
	defer core.mu.RUnlock()
	assert.Empty(t, core.subs, "reply subscription should be gone")
}

func TestRequestTimeoutCleansUp(t *testing.T) {
	broker, core, _ := pair(t)

	start := time.Now()
	_, err := core.Request(context.Background(), ExchangeProvider, ProposeKey("nobody"),
		TypeProposeProcessToProvider, ProposeProcessToProvider{}, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	core.mu.RLock()
	n := len(core.subs)
	core.mu.RUnlock()
	assert.Zero(t, n)

	broker.mu.RLock()
	defer broker.mu.RUnlock()
	assert.Empty(t, broker.subs)
}

func TestRequestContextCancel(t *testing.T) {
	_, core, _ := pair(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := core.Request(ctx, ExchangeProvider, ProposeKey("p1"), TypeProposeProcessToProvider, nil, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplyWithoutReplyTo(t *testing.T) {
	_, core, _ := pair(t)
	err := core.Reply(&Envelope{Type: TypeProposeProcessToProvider, Source: "x"}, TypeProcessProposalEstimated, nil)
	assert.Error(t, err)
}

func TestInboxReceiveAndClose(t *testing.T) {
	broker, core, web := pair(t)

	in, err := core.OpenInbox(ExchangeOptimization, SelectKey("r1"))
	require.NoError(t, err)
	assert.True(t, broker.HasSubscribers("optimization.select.r1"))

	require.NoError(t, web.Send(ExchangeOptimization, SelectKey("r1"), TypeSelectStrategy,
		SelectStrategy{RequestID: "r1", SelectedStrategyID: "s1"}))

	env, err := in.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	var sel SelectStrategy
	require.NoError(t, env.DecodePayload(&sel))
	assert.Equal(t, "s1", sel.SelectedStrategyID)

	_, err = in.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	in.Close()
	in.Close()
	assert.False(t, broker.HasSubscribers("optimization.select.r1"))
}

func TestPublishNotConnected(t *testing.T) {
	c := NewClientWithBackend(NewMemoryBackend(NewMemoryBroker()), "x")
	assert.Error(t, c.Send(ExchangeOptimization, KeyPlanReady, TypeOptimizationPlanReady, nil))
}

func TestReconfigureKeepsSubscriptions(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "memory"}, "core")
	require.NoError(t, c.Connect())
	defer c.Close()

	got := make(chan *Envelope, 1)
	require.NoError(t, c.Subscribe(ExchangeOptimization, "reconf.test", func(env *Envelope) { got <- env }))

	require.NoError(t, c.Reconfigure(&config.MessagingConfig{Backend: "memory"}))
	require.NoError(t, c.Send(ExchangeOptimization, "reconf.test", "ping", nil))

	select {
	case env := <-got:
		assert.Equal(t, "ping", env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription lost across reconfigure")
	}
}

// groupedBackend records which topics were consumed outside the group.
type groupedBackend struct {
	*MemoryBackend

	mu        sync.Mutex
	ephemeral []string
}

func (g *groupedBackend) SubscribeEphemeral(topic string, h Handler) error {
	g.mu.Lock()
	g.ephemeral = append(g.ephemeral, topic)
	g.mu.Unlock()
	return g.MemoryBackend.Subscribe(topic, h)
}

func (g *groupedBackend) ephemeralTopics() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ephemeral...)
}

func TestRepliesAndInboxesSubscribeEphemeral(t *testing.T) {
	broker := NewMemoryBroker()
	backend := &groupedBackend{MemoryBackend: NewMemoryBackend(broker)}
	core := NewClientWithBackend(backend, "core")
	prov := NewClientWithBackend(NewMemoryBackend(broker), "p1")
	require.NoError(t, core.Connect())
	require.NoError(t, prov.Connect())
	t.Cleanup(func() {
		core.Close()
		prov.Close()
	})

	require.NoError(t, core.Subscribe(ExchangeOptimization, KeyPlanReady, func(*Envelope) {}))
	assert.Empty(t, backend.ephemeralTopics())

	require.NoError(t, prov.Subscribe(ExchangeProvider, ConfirmKey("p1"), func(env *Envelope) {
		assert.NoError(t, prov.Reply(env, TypeProcessProposalConfirmed, ProcessProposalConfirmed{ProviderID: "p1", Confirmed: true}))
	}))
	reply, err := core.Request(context.Background(), ExchangeProvider, ConfirmKey("p1"),
		TypeConfirmProcessProposal, ConfirmProcessProposal{ProviderID: "p1"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeProcessProposalConfirmed, reply.Type)

	in, err := core.OpenInbox(ExchangeOptimization, SelectKey("r1"))
	require.NoError(t, err)
	defer in.Close()

	topics := backend.ephemeralTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, reply.CorrelationID, topics[0][len("rpc.reply."):])
	assert.Equal(t, "optimization.select.r1", topics[1])
}

type fakeOutbox struct {
	mu     sync.Mutex
	rows   []*store.OutboxMessage
	acked  []int64
	failed []int64
}

func (f *fakeOutbox) ListPendingOutbox(limit int) ([]*store.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.OutboxMessage
	for _, r := range f.rows {
		if !contains(f.acked, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeOutbox) AckOutbox(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeOutbox) FailOutbox(id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestOutboxDrainOnce(t *testing.T) {
	_, core, cust := pair(t)

	got := make(chan *Envelope, 2)
	require.NoError(t, cust.Subscribe(ExchangeCustomer, CustomerPlanKey("c1"), func(env *Envelope) { got <- env }))

	data, err := NewEnvelope(TypePlanStatusChanged, "core", PlanStatusChanged{PlanID: "p1", Status: "completed"}).Encode()
	require.NoError(t, err)
	ob := &fakeOutbox{rows: []*store.OutboxMessage{
		{ID: 1, Topic: Topic(ExchangeCustomer, CustomerPlanKey("c1")), MsgType: TypePlanStatusChanged, Payload: data},
	}}

	var published []int64
	d := NewOutboxDrainer(ob, core, time.Hour)
	d.OnPublished = func(m *store.OutboxMessage) { published = append(published, m.ID) }

	assert.Equal(t, 1, d.DrainOnce())
	assert.Equal(t, 0, d.DrainOnce())
	assert.Equal(t, []int64{1}, ob.acked)
	assert.Equal(t, []int64{1}, published)

	select {
	case env := <-got:
		var ch PlanStatusChanged
		require.NoError(t, env.DecodePayload(&ch))
		assert.Equal(t, "completed", ch.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("outbox message not delivered")
	}
}

func TestOutboxSkipsWhenDisconnected(t *testing.T) {
	c := NewClientWithBackend(NewMemoryBackend(NewMemoryBroker()), "x")
	ob := &fakeOutbox{rows: []*store.OutboxMessage{{ID: 1, Topic: "a.b"}}}
	d := NewOutboxDrainer(ob, c, time.Hour)
	assert.Equal(t, 0, d.DrainOnce())
	assert.Empty(t, ob.failed)
	d.Start()
	d.Stop()
	d.Stop()
}
