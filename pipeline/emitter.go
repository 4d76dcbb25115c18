package pipeline

import "remanflow/domain"

// Emitter bridges pipeline events to the engine.
type Emitter interface {
	EmitRequestReceived(requestID, customerID string)
	EmitStrategiesReady(requestID string, strategies []domain.Strategy)
	EmitPlanConfirmed(plan *domain.Plan)
	EmitPipelineFailed(requestID, customerID string, err error)
}

type nopEmitter struct{}

func (nopEmitter) EmitRequestReceived(string, string)            {}
func (nopEmitter) EmitStrategiesReady(string, []domain.Strategy) {}
func (nopEmitter) EmitPlanConfirmed(*domain.Plan)                {}
func (nopEmitter) EmitPipelineFailed(string, string, error)      {}
