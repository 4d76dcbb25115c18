package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remanflow/domain"
	"remanflow/messaging"
	"remanflow/pipeline"
	"remanflow/store"
)

type brokerSub struct {
	exchange string
	key      string
	fn       func(*messaging.Envelope)
}

func (e *Engine) brokerSubs() []brokerSub {
	return []brokerSub{
		{messaging.ExchangeOptimization, messaging.KeyOptimizationRequest, e.handleRequest},
		{messaging.ExchangeOptimization, messaging.KeyPlanReady, e.handlePlanReady},
		{messaging.ExchangeProvider, messaging.KeyExecutionCompleted, e.handleExecutionCompleted},
	}
}

func (e *Engine) subscribe() {
	for _, s := range e.brokerSubs() {
		if err := e.msgClient.Subscribe(s.exchange, s.key, s.fn); err != nil {
			e.logFn("engine: subscribe %s: %v", messaging.Topic(s.exchange, s.key), err)
		}
	}
}

func (e *Engine) unsubscribe() {
	for _, s := range e.brokerSubs() {
		if err := e.msgClient.Unsubscribe(s.exchange, s.key); err != nil {
			e.logFn("engine: unsubscribe %s: %v", messaging.Topic(s.exchange, s.key), err)
		}
	}
}

// handleRequest starts one pipeline goroutine per request so a request
// waiting for selection never blocks the next one.
func (e *Engine) handleRequest(env *messaging.Envelope) {
	var msg messaging.RequestOptimizationPlan
	if err := env.DecodePayload(&msg); err != nil {
		e.logFn("engine: bad request from %s: %v", env.Source, err)
		return
	}
	if err := msg.Request.Validate(); err != nil {
		e.logFn("engine: reject request %s from %s: %v", msg.Request.ID, env.Source, err)
		return
	}
	select {
	case <-e.stopChan:
		return
	default:
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runPipeline(msg.Request)
	}()
}

func (e *Engine) runPipeline(req domain.Request) {
	start := time.Now()
	st, err := e.pipeline.Process(e.ctx, req)
	outcome := pipelineOutcome(err)
	e.metrics.RecordPipeline(outcome, time.Since(start))
	if err != nil {
		e.logFn("engine: request %s %s: %v", req.ID, outcome, err)
		return
	}
	e.logFn("engine: request %s planned as %s (plan %s)", req.ID, st.Selected.Priority, st.Plan.ID)
}

// pipelineOutcome labels a pipeline result for metrics.
func pipelineOutcome(err error) string {
	switch {
	case err == nil:
		return "planned"
	case errors.Is(err, pipeline.ErrUnmatchedStep):
		return "unmatched"
	case errors.Is(err, pipeline.ErrNoFeasibleStrategy):
		return "infeasible"
	case errors.Is(err, pipeline.ErrSelectionTimeout):
		return "selection_timeout"
	case errors.Is(err, pipeline.ErrUnknownStrategy):
		return "unknown_strategy"
	case errors.Is(err, pipeline.ErrConfirmationFailed):
		return "confirmation_failed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func (e *Engine) handlePlanReady(env *messaging.Envelope) {
	var msg messaging.OptimizationPlanReady
	if err := env.DecodePayload(&msg); err != nil {
		e.logFn("engine: bad plan ready from %s: %v", env.Source, err)
		return
	}
	if err := e.coordinator.HandlePlanReady(msg.Plan.ID); err != nil {
		e.logFn("engine: start plan %s: %v", msg.Plan.ID, err)
	}
}

func (e *Engine) handleExecutionCompleted(env *messaging.Envelope) {
	var msg messaging.ProcessExecutionCompleted
	if err := env.DecodePayload(&msg); err != nil {
		e.logFn("engine: bad completion from %s: %v", env.Source, err)
		return
	}
	if err := e.coordinator.HandleExecutionCompleted(msg); err != nil {
		e.logFn("engine: completion for plan %s step %s: %v", msg.PlanID, msg.StepID, err)
	}
}

func (e *Engine) wireEventHandlers() {
	// Requests: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RequestReceivedEvent)
		e.audit("request", ev.RequestID, "received", "customer "+ev.CustomerID, "system")
	}, EventRequestReceived)

	// Strategies offered: audit and count
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StrategiesReadyEvent)
		e.metrics.RecordStrategies(ev.Strategies)
		e.audit("request", ev.RequestID, "strategies_ready", fmt.Sprintf("%d strategies", len(ev.Strategies)), "system")
	}, EventStrategiesReady)

	// Pipeline failures: audit and tell the customer
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PipelineFailedEvent)
		e.audit("request", ev.RequestID, "failed", ev.Err.Error(), "system")
		e.notifyCustomer(ev.CustomerID, messaging.PlanStatusChanged{
			RequestID:  ev.RequestID,
			CustomerID: ev.CustomerID,
			Status:     store.RequestFailed,
			Detail:     ev.Err.Error(),
		})
	}, EventPipelineFailed)

	// Plan lifecycle: metrics, audit, customer notification
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PlanEvent)
		e.planStatusChanged(ev.Plan, ev.Reason)
	}, EventPlanConfirmed, EventPlanStarted, EventPlanCompleted, EventPlanFailed, EventPlanCancelled)

	// Failed or cancelled plans give their remaining capacity back
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PlanEvent)
		e.releaseBookings(ev.Plan)
	}, EventPlanFailed, EventPlanCancelled)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PlanEvent)
		st := ev.Plan.Strategy.Steps[ev.Step]
		e.audit("plan", ev.Plan.ID, "step_dispatched",
			fmt.Sprintf("step %d %s -> %s", ev.Step+1, st.Process, selectedProvider(st)), "system")
	}, EventStepDispatched)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PlanEvent)
		st := ev.Plan.Strategy.Steps[ev.Step]
		e.metrics.RecordStepCompleted(st.Process)
		e.audit("plan", ev.Plan.ID, "step_completed",
			fmt.Sprintf("step %d %s at %s", ev.Step+1, st.Process, selectedProvider(st)), "system")
	}, EventStepCompleted)

	// Provider registry changes: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ProviderUpdatedEvent)
		e.audit("provider", ev.ProviderID, ev.Action, "", ev.Actor)
	}, EventProviderUpdated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventMessagingConnected, EventMessagingDisconnected)
}

func (e *Engine) planStatusChanged(plan *domain.Plan, reason string) {
	e.metrics.RecordPlanTransition(plan.Status)
	status := plan.Status.String()
	e.audit("plan", plan.ID, strings.ToLower(status), reason, "system")
	e.notifyCustomer(plan.CustomerID, messaging.PlanStatusChanged{
		PlanID:     plan.ID,
		RequestID:  plan.RequestID,
		CustomerID: plan.CustomerID,
		Status:     status,
		Detail:     reason,
	})
}

func (e *Engine) releaseBookings(plan *domain.Plan) {
	if e.capacity == nil {
		return
	}
	seen := make(map[string]bool)
	for _, st := range plan.Strategy.Steps {
		id := selectedProvider(st)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := e.capacity.Release(id, plan.ID); err != nil {
			e.logFn("engine: release bookings of plan %s at %s: %v", plan.ID, id, err)
		}
	}
}

func (e *Engine) audit(entityType, entityID, action, detail, actor string) {
	err := e.db.AppendAudit(&store.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     detail,
		Actor:      actor,
	})
	if err != nil {
		e.logFn("engine: audit %s %s %s: %v", entityType, entityID, action, err)
	}
}

// notifyCustomer queues a status message in the outbox; the drainer delivers it.
func (e *Engine) notifyCustomer(customerID string, msg messaging.PlanStatusChanged) {
	if customerID == "" {
		return
	}
	data, err := messaging.NewEnvelope(messaging.TypePlanStatusChanged, e.cfg.ServiceID, msg).Encode()
	if err != nil {
		e.logFn("engine: encode customer notification: %v", err)
		return
	}
	topic := messaging.Topic(messaging.ExchangeCustomer, messaging.CustomerPlanKey(customerID))
	if _, err := e.db.EnqueueOutbox(topic, messaging.TypePlanStatusChanged, data); err != nil {
		e.logFn("engine: queue notification for %s: %v", customerID, err)
	}
}

func selectedProvider(st domain.ProcessStep) string {
	if st.Selected == nil {
		return ""
	}
	return st.Selected.Provider.ID
}
