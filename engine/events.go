package engine

import "remanflow/domain"

const (
	EventRequestReceived EventType = iota + 1
	EventStrategiesReady
	EventPipelineFailed
	EventPlanConfirmed
	EventPlanStarted
	EventStepDispatched
	EventStepCompleted
	EventPlanCompleted
	EventPlanFailed
	EventPlanCancelled
	EventProviderUpdated
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

type RequestReceivedEvent struct {
	RequestID  string
	CustomerID string
}

type StrategiesReadyEvent struct {
	RequestID  string
	Strategies []domain.Strategy
}

type PipelineFailedEvent struct {
	RequestID  string
	CustomerID string
	Err        error
}

// PlanEvent carries a plan snapshot. Step is the step index for step events,
// Reason the failure or cancellation reason.
type PlanEvent struct {
	Plan   *domain.Plan
	Step   int
	Reason string
}

type ProviderUpdatedEvent struct {
	ProviderID string
	Action     string // "registered", "enabled", "disabled", "deleted"
	Actor      string
}

type ConnectionEvent struct {
	Detail string
}

var eventNames = map[EventType]string{
	EventRequestReceived:       "request_received",
	EventStrategiesReady:       "strategies_ready",
	EventPipelineFailed:        "pipeline_failed",
	EventPlanConfirmed:         "plan_confirmed",
	EventPlanStarted:           "plan_started",
	EventStepDispatched:        "step_dispatched",
	EventStepCompleted:         "step_completed",
	EventPlanCompleted:         "plan_completed",
	EventPlanFailed:            "plan_failed",
	EventPlanCancelled:         "plan_cancelled",
	EventProviderUpdated:       "provider_updated",
	EventMessagingConnected:    "messaging_connected",
	EventMessagingDisconnected: "messaging_disconnected",
}

func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}
