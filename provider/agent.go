package provider

import (
	"fmt"
	"log"
	"sync"
	"time"

	"remanflow/domain"
	"remanflow/messaging"
	"remanflow/scheduling"
	"remanflow/store"
)

// LogFunc is the logging callback used by the agent.
type LogFunc func(format string, args ...any)

const (
	// Horizon searched for capacity when a request carries no window.
	defaultHorizon    = 14 * 24 * time.Hour
	heartbeatInterval = 30 * time.Second
	// How long a withdrawn plan id is remembered to refuse late confirmations.
	withdrawnTTL = time.Hour
)

// Messenger is the slice of messaging.Client the agent uses.
type Messenger interface {
	Subscribe(exchange, routingKey string, fn func(*messaging.Envelope)) error
	Unsubscribe(exchange, routingKey string) error
	Reply(req *messaging.Envelope, msgType string, body any) error
	Send(exchange, routingKey, msgType string, body any) error
}

// Capacity reads and books the provider's calendar.
type Capacity interface {
	Book(b *store.Booking) error
	Bookings(providerID string, from time.Time) ([]store.Booking, error)
	Release(providerID, planID string) (int64, error)
}

// Registry is where the agent announces itself. Optional.
type Registry interface {
	UpsertProvider(p domain.Provider) error
	TouchProvider(id string) error
}

// Agent answers estimate and confirm requests for one provider and
// simulates execution of dispatched processes.
type Agent struct {
	profile  *Profile
	client   Messenger
	capacity Capacity
	registry Registry
	logFn    LogFunc
	now      func() time.Time

	bookMu    sync.Mutex
	withdrawn map[string]time.Time // plan id -> when withdrawn, guarded by bookMu

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewAgent(profile *Profile, client Messenger, capacity Capacity, registry Registry, logFn LogFunc) *Agent {
	if logFn == nil {
		logFn = log.Printf
	}
	return &Agent{
		profile:   profile,
		client:    client,
		capacity:  capacity,
		registry:  registry,
		logFn:     logFn,
		now:       time.Now,
		withdrawn: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// SetClock overrides the agent clock.
func (a *Agent) SetClock(now func() time.Time) { a.now = now }

func (a *Agent) ID() string { return a.profile.Provider.ID }

// Start registers the provider and subscribes to its request topics.
func (a *Agent) Start() error {
	id := a.ID()
	if a.registry != nil {
		if err := a.registry.UpsertProvider(a.profile.Provider); err != nil {
			return fmt.Errorf("register provider %s: %w", id, err)
		}
		a.wg.Add(1)
		go a.heartbeat()
	}

	subs := []struct {
		key string
		fn  func(*messaging.Envelope)
	}{
		{messaging.ProposeKey(id), a.handlePropose},
		{messaging.ConfirmKey(id), a.handleConfirm},
		{messaging.CancelKey(id), a.handleCancel},
		{messaging.ExecuteKey(id), a.handleExecute},
	}
	for _, s := range subs {
		if err := a.client.Subscribe(messaging.ExchangeProvider, s.key, s.fn); err != nil {
			return err
		}
	}
	a.logFn("provider: %s (%s) ready, capabilities %v", id, a.profile.Provider.Name, a.profile.Provider.Capabilities)
	return nil
}

// Stop unsubscribes and abandons simulated executions still running.
func (a *Agent) Stop() {
	a.stopped.Do(func() {
		close(a.stopCh)
		id := a.ID()
		for _, key := range []string{messaging.ProposeKey(id), messaging.ConfirmKey(id), messaging.CancelKey(id), messaging.ExecuteKey(id)} {
			if err := a.client.Unsubscribe(messaging.ExchangeProvider, key); err != nil {
				a.logFn("provider: unsubscribe %s: %v", key, err)
			}
		}
		a.wg.Wait()
	})
}

func (a *Agent) heartbeat() {
	defer a.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.registry.TouchProvider(a.ID()); err != nil {
				a.logFn("provider: heartbeat: %v", err)
			}
		case <-a.stopCh:
			return
		}
	}
}

func (a *Agent) handlePropose(env *messaging.Envelope) {
	var req messaging.ProposeProcessToProvider
	if err := env.DecodePayload(&req); err != nil {
		a.logFn("provider: bad propose from %s: %v", env.Source, err)
		return
	}
	if err := a.client.Reply(env, messaging.TypeProcessProposalEstimated, a.Estimate(req)); err != nil {
		a.logFn("provider: reply estimate for %s: %v", req.RequestID, err)
	}
}

func (a *Agent) handleConfirm(env *messaging.Envelope) {
	var req messaging.ConfirmProcessProposal
	if err := env.DecodePayload(&req); err != nil {
		a.logFn("provider: bad confirm from %s: %v", env.Source, err)
		return
	}
	if err := a.client.Reply(env, messaging.TypeProcessProposalConfirmed, a.Confirm(req)); err != nil {
		a.logFn("provider: reply confirm for plan %s: %v", req.PlanID, err)
	}
}

func (a *Agent) handleCancel(env *messaging.Envelope) {
	var req messaging.CancelProcessProposal
	if err := env.DecodePayload(&req); err != nil {
		a.logFn("provider: bad cancel from %s: %v", env.Source, err)
		return
	}
	if err := a.Withdraw(req.PlanID); err != nil {
		a.logFn("provider: withdraw plan %s: %v", req.PlanID, err)
	}
}

func (a *Agent) handleExecute(env *messaging.Envelope) {
	var cmd messaging.ExecuteProcess
	if err := env.DecodePayload(&cmd); err != nil {
		a.logFn("provider: bad execute from %s: %v", env.Source, err)
		return
	}
	if cmd.TargetProviderID != a.ID() {
		a.logFn("provider: execute for %s delivered to %s, ignored", cmd.TargetProviderID, a.ID())
		return
	}
	a.wg.Add(1)
	go a.execute(cmd)
}

// Estimate quotes a process and lists the free slots in the requested window.
func (a *Agent) Estimate(req messaging.ProposeProcessToProvider) messaging.ProcessProposalEstimated {
	resp := messaging.ProcessProposalEstimated{
		RequestID:  req.RequestID,
		ProviderID: a.ID(),
		Process:    req.Process,
	}
	decline := func(reason string) messaging.ProcessProposalEstimated {
		resp.Declined = true
		resp.Reason = reason
		a.logFn("provider: %s declines %s for request %s: %s", a.ID(), req.Process, req.RequestID, reason)
		return resp
	}

	est, ok := a.profile.Quote(req.Process)
	if !ok {
		return decline(fmt.Sprintf("process %s not offered", req.Process))
	}
	if !a.profile.Provider.Fits(req.Motor) {
		return decline("motor exceeds technical limits")
	}

	window := req.RequestedWindow
	if !window.End.After(window.Start) {
		now := a.now()
		window = domain.TimeWindow{Start: now, End: now.Add(defaultHorizon)}
	}
	booked, err := a.booked(window.Start)
	if err != nil {
		return decline(fmt.Sprintf("calendar unavailable: %v", err))
	}
	est.AvailableSlots = scheduling.ComputeAvailableSlots(window, est.DurationHours, a.profile.Hours, booked)
	if len(est.AvailableSlots) == 0 {
		return decline("no capacity in requested window")
	}
	resp.Estimate = est
	return resp
}

// Confirm books the proposed slot. When the slot has been taken since the
// estimate, the next free slot is booked instead.
func (a *Agent) Confirm(req messaging.ConfirmProcessProposal) messaging.ProcessProposalConfirmed {
	resp := messaging.ProcessProposalConfirmed{
		RequestID:  req.RequestID,
		ProviderID: a.ID(),
		Process:    req.Process,
		PlanID:     req.PlanID,
		StepID:     req.StepID,
	}
	refuse := func(reason string) messaging.ProcessProposalConfirmed {
		resp.Reason = reason
		a.logFn("provider: %s refuses plan %s step %s: %s", a.ID(), req.PlanID, req.StepID, reason)
		return resp
	}

	quote, ok := a.profile.Quote(req.Process)
	if !ok {
		return refuse(fmt.Sprintf("process %s not offered", req.Process))
	}
	hours := req.DurationHours
	if hours <= 0 {
		hours = quote.DurationHours
	}

	a.bookMu.Lock()
	defer a.bookMu.Unlock()

	if _, ok := a.withdrawn[req.PlanID]; ok {
		return refuse("proposal withdrawn")
	}
	now := a.now()
	all, err := a.capacity.Bookings(a.ID(), now)
	if err != nil {
		return refuse(fmt.Sprintf("calendar unavailable: %v", err))
	}
	var others []scheduling.Booking
	for _, b := range all {
		if b.PlanID == req.PlanID && b.StepID == req.StepID {
			continue
		}
		others = append(others, scheduling.Booking{Start: b.Start, End: b.End})
	}

	var slot domain.TimeWindow
	if req.Slot != nil && !overlapsAny(*req.Slot, others) {
		slot = *req.Slot
	} else {
		window := domain.TimeWindow{Start: now, End: now.Add(defaultHorizon)}
		slots := scheduling.ComputeAvailableSlots(window, hours, a.profile.Hours, others)
		if len(slots) == 0 {
			return refuse("fully booked")
		}
		slot = slots[0]
	}

	b := &store.Booking{ProviderID: a.ID(), PlanID: req.PlanID, StepID: req.StepID, Start: slot.Start, End: slot.End}
	if err := a.capacity.Book(b); err != nil {
		return refuse(fmt.Sprintf("booking failed: %v", err))
	}
	a.logFn("provider: %s booked %s for plan %s step %s (%s - %s)",
		a.ID(), req.Process, req.PlanID, req.StepID, slot.Start.Format(time.RFC3339), slot.End.Format(time.RFC3339))
	resp.Confirmed = true
	return resp
}

// Withdraw releases every booking held for a plan that was not confirmed and
// refuses later confirmations for it.
func (a *Agent) Withdraw(planID string) error {
	a.bookMu.Lock()
	defer a.bookMu.Unlock()

	now := a.now()
	for id, at := range a.withdrawn {
		if now.Sub(at) > withdrawnTTL {
			delete(a.withdrawn, id)
		}
	}
	a.withdrawn[planID] = now

	n, err := a.capacity.Release(a.ID(), planID)
	if err != nil {
		return err
	}
	if n > 0 {
		a.logFn("provider: %s released %d bookings of withdrawn plan %s", a.ID(), n, planID)
	}
	return nil
}

func (a *Agent) booked(from time.Time) ([]scheduling.Booking, error) {
	bookings, err := a.capacity.Bookings(a.ID(), from)
	if err != nil {
		return nil, err
	}
	out := make([]scheduling.Booking, len(bookings))
	for i, b := range bookings {
		out[i] = scheduling.Booking{Start: b.Start, End: b.End}
	}
	return out, nil
}

func overlapsAny(w domain.TimeWindow, booked []scheduling.Booking) bool {
	for _, b := range booked {
		if w.Overlaps(b.Start, b.End) {
			return true
		}
	}
	return false
}

// execute simulates the process and reports completion.
func (a *Agent) execute(cmd messaging.ExecuteProcess) {
	defer a.wg.Done()

	evt := messaging.ProcessExecutionCompleted{
		PlanID:     cmd.PlanID,
		StepID:     cmd.StepID,
		ProviderID: a.ID(),
		Success:    true,
	}
	proc, err := domain.ParseProcessType(cmd.ProcessName)
	if err != nil || !a.profile.Provider.Can(proc) {
		evt.Success = false
		evt.FailureReason = fmt.Sprintf("process %s not offered", cmd.ProcessName)
	}

	if evt.Success {
		a.logFn("provider: %s executing %s for plan %s step %d", a.ID(), cmd.ProcessName, cmd.PlanID, cmd.StepIndex+1)
		d := time.Duration(cmd.DurationHours * a.profile.ExecutionSpeed * float64(time.Second))
		if d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-a.stopCh:
				timer.Stop()
				a.logFn("provider: %s abandoned plan %s step %d on shutdown", a.ID(), cmd.PlanID, cmd.StepIndex+1)
				return
			}
		}
	}

	if err := a.client.Send(messaging.ExchangeProvider, messaging.KeyExecutionCompleted, messaging.TypeProcessExecutionCompleted, evt); err != nil {
		a.logFn("provider: report completion of plan %s step %d: %v", cmd.PlanID, cmd.StepIndex+1, err)
	}
}
