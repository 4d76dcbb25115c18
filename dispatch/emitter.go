package dispatch

import "remanflow/domain"

// Emitter is the interface adapters must satisfy to bridge plan execution events to the engine.
type Emitter interface {
	EmitPlanStarted(plan *domain.Plan)
	EmitStepDispatched(plan *domain.Plan, stepIndex int)
	EmitStepCompleted(plan *domain.Plan, stepIndex int)
	EmitPlanCompleted(plan *domain.Plan)
	EmitPlanFailed(plan *domain.Plan, reason string)
	EmitPlanCancelled(plan *domain.Plan, reason string)
}

type nopEmitter struct{}

func (nopEmitter) EmitPlanStarted(*domain.Plan)           {}
func (nopEmitter) EmitStepDispatched(*domain.Plan, int)   {}
func (nopEmitter) EmitStepCompleted(*domain.Plan, int)    {}
func (nopEmitter) EmitPlanCompleted(*domain.Plan)         {}
func (nopEmitter) EmitPlanFailed(*domain.Plan, string)    {}
func (nopEmitter) EmitPlanCancelled(*domain.Plan, string) {}
