package pipeline

import (
	"errors"

	"remanflow/domain"
	"remanflow/optimizer"
)

var (
	ErrUnmatchedStep      = errors.New("no provider can perform step")
	ErrNoFeasibleStrategy = optimizer.ErrNoFeasibleStrategy
	ErrSelectionTimeout   = errors.New("strategy selection timed out")
	ErrUnknownStrategy    = errors.New("selected strategy is not one of the offered strategies")
	ErrConfirmationFailed = errors.New("provider confirmation failed")
	ErrUnknownWorkflow    = errors.New("no process list configured for workflow")
)

// State is the value threaded through the pipeline steps. Each step returns
// an updated copy.
type State struct {
	Request    domain.Request
	Workflow   domain.WorkflowType
	Steps      []domain.ProcessStep
	Strategies []domain.Strategy
	Selected   *domain.Strategy
	Plan       *domain.Plan
	Errors     []error
}

// cloneSteps copies steps deep enough that candidate slices can be written.
func cloneSteps(steps []domain.ProcessStep) []domain.ProcessStep {
	out := make([]domain.ProcessStep, len(steps))
	for i, st := range steps {
		c := st
		c.Candidates = append([]domain.Candidate(nil), st.Candidates...)
		out[i] = c
	}
	return out
}
