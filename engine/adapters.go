package engine

import "remanflow/domain"

// pipelineEmitter bridges the pipeline package's emitter interface to the EventBus.
type pipelineEmitter struct {
	bus *EventBus
}

func (e *pipelineEmitter) EmitRequestReceived(requestID, customerID string) {
	e.bus.Emit(Event{Type: EventRequestReceived, Payload: RequestReceivedEvent{
		RequestID:  requestID,
		CustomerID: customerID,
	}})
}

func (e *pipelineEmitter) EmitStrategiesReady(requestID string, strategies []domain.Strategy) {
	e.bus.Emit(Event{Type: EventStrategiesReady, Payload: StrategiesReadyEvent{
		RequestID:  requestID,
		Strategies: strategies,
	}})
}

func (e *pipelineEmitter) EmitPlanConfirmed(plan *domain.Plan) {
	e.bus.Emit(Event{Type: EventPlanConfirmed, Payload: PlanEvent{Plan: plan}})
}

func (e *pipelineEmitter) EmitPipelineFailed(requestID, customerID string, err error) {
	e.bus.Emit(Event{Type: EventPipelineFailed, Payload: PipelineFailedEvent{
		RequestID:  requestID,
		CustomerID: customerID,
		Err:        err,
	}})
}

// dispatchEmitter bridges the coordinator's plan execution events to the EventBus.
type dispatchEmitter struct {
	bus *EventBus
}

func (e *dispatchEmitter) EmitPlanStarted(plan *domain.Plan) {
	e.bus.Emit(Event{Type: EventPlanStarted, Payload: PlanEvent{Plan: plan}})
}

func (e *dispatchEmitter) EmitStepDispatched(plan *domain.Plan, stepIndex int) {
	e.bus.Emit(Event{Type: EventStepDispatched, Payload: PlanEvent{Plan: plan, Step: stepIndex}})
}

func (e *dispatchEmitter) EmitStepCompleted(plan *domain.Plan, stepIndex int) {
	e.bus.Emit(Event{Type: EventStepCompleted, Payload: PlanEvent{Plan: plan, Step: stepIndex}})
}

func (e *dispatchEmitter) EmitPlanCompleted(plan *domain.Plan) {
	e.bus.Emit(Event{Type: EventPlanCompleted, Payload: PlanEvent{Plan: plan}})
}

func (e *dispatchEmitter) EmitPlanFailed(plan *domain.Plan, reason string) {
	e.bus.Emit(Event{Type: EventPlanFailed, Payload: PlanEvent{Plan: plan, Reason: reason}})
}

func (e *dispatchEmitter) EmitPlanCancelled(plan *domain.Plan, reason string) {
	e.bus.Emit(Event{Type: EventPlanCancelled, Payload: PlanEvent{Plan: plan, Reason: reason}})
}
