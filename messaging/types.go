package messaging

import (
	"remanflow/domain"
)

// Message types.
const (
	TypeRequestOptimizationPlan   = "request_optimization_plan"
	TypeProposeProcessToProvider  = "propose_process_to_provider"
	TypeProcessProposalEstimated  = "process_proposal_estimated"
	TypeMultipleStrategiesReady   = "multiple_strategies_ready"
	TypeSelectStrategy            = "select_strategy"
	TypeConfirmProcessProposal    = "confirm_process_proposal"
	TypeProcessProposalConfirmed  = "process_proposal_confirmed"
	TypeCancelProcessProposal     = "cancel_process_proposal"
	TypeOptimizationPlanReady     = "optimization_plan_ready"
	TypeExecuteProcess            = "execute_process"
	TypeProcessExecutionCompleted = "process_execution_completed"
	TypePlanStatusChanged         = "plan_status_changed"
)

type RequestOptimizationPlan struct {
	Request domain.Request `json:"request"`
}

type ProposeProcessToProvider struct {
	RequestID       string             `json:"request_id"`
	ProviderID      string             `json:"provider_id"`
	Process         domain.ProcessType `json:"process"`
	Motor           domain.MotorSpecs  `json:"motor"`
	RequestedWindow domain.TimeWindow  `json:"requested_window"`
}

type ProcessProposalEstimated struct {
	RequestID  string             `json:"request_id"`
	ProviderID string             `json:"provider_id"`
	Process    domain.ProcessType `json:"process"`
	Declined   bool               `json:"declined,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Estimate   domain.Estimate    `json:"estimate"`
}

type MultipleStrategiesReady struct {
	RequestID    string              `json:"request_id"`
	WorkflowType domain.WorkflowType `json:"workflow_type"`
	Strategies   []domain.Strategy   `json:"strategies"`
}

type SelectStrategy struct {
	RequestID          string `json:"request_id"`
	SelectedStrategyID string `json:"selected_strategy_id"`
}

type ConfirmProcessProposal struct {
	RequestID     string             `json:"request_id"`
	ProviderID    string             `json:"provider_id"`
	Process       domain.ProcessType `json:"process"`
	PlanID        string             `json:"plan_id"`
	StepID        string             `json:"step_id"`
	DurationHours float64            `json:"duration_hours"`
	Slot          *domain.TimeWindow `json:"slot,omitempty"`
}

type ProcessProposalConfirmed struct {
	RequestID  string             `json:"request_id"`
	ProviderID string             `json:"provider_id"`
	Process    domain.ProcessType `json:"process"`
	PlanID     string             `json:"plan_id"`
	StepID     string             `json:"step_id"`
	Confirmed  bool               `json:"confirmed"`
	Reason     string             `json:"reason,omitempty"`
}

// CancelProcessProposal withdraws a confirmation request for a plan that
// will not be persisted. Providers drop any booking they made for it.
type CancelProcessProposal struct {
	RequestID  string `json:"request_id"`
	ProviderID string `json:"provider_id"`
	PlanID     string `json:"plan_id"`
	Reason     string `json:"reason,omitempty"`
}

type OptimizationPlanReady struct {
	Plan domain.Plan `json:"plan"`
}

type ExecuteProcess struct {
	PlanID           string  `json:"plan_id"`
	StepID           string  `json:"step_id"`
	StepIndex        int     `json:"step_index"`
	ProcessName      string  `json:"process_name"`
	TargetProviderID string  `json:"target_provider_id"`
	DurationHours    float64 `json:"duration_hours"`
}

type ProcessExecutionCompleted struct {
	PlanID        string `json:"plan_id"`
	StepID        string `json:"step_id"`
	ProviderID    string `json:"provider_id"`
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type PlanStatusChanged struct {
	PlanID     string `json:"plan_id"`
	RequestID  string `json:"request_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
}
