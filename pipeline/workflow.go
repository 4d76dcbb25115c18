package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"remanflow/domain"
)

// Classify picks Upgrade when the customer asks for a better efficiency
// class than the motor has, Refurbish otherwise.
func Classify(m domain.MotorSpecs) domain.WorkflowType {
	if m.TargetEfficiency > m.CurrentEfficiency {
		return domain.WorkflowUpgrade
	}
	return domain.WorkflowRefurbish
}

func (p *Pipeline) matchWorkflow(_ context.Context, st State) (State, error) {
	wf := Classify(st.Request.Motor)
	procs := p.workflows[wf]
	if len(procs) == 0 {
		return st, fmt.Errorf("%w: %s", ErrUnknownWorkflow, wf)
	}
	steps := make([]domain.ProcessStep, len(procs))
	for i, proc := range procs {
		steps[i] = domain.ProcessStep{
			ID:         uuid.New().String(),
			StepNumber: i + 1,
			Process:    proc,
		}
	}
	st.Workflow = wf
	st.Steps = steps
	p.logFn("pipeline: request %s classified %s with %d steps", st.Request.ID, wf, len(steps))
	return st, nil
}

// matchProviders attaches every enabled provider that can perform the step
// and fits the motor. All steps are matched before failing so the error
// names every gap.
func (p *Pipeline) matchProviders(_ context.Context, st State) (State, error) {
	providers, err := p.providers.EnabledProviders()
	if err != nil {
		return st, fmt.Errorf("list providers: %w", err)
	}

	steps := cloneSteps(st.Steps)
	var errs []error
	for i := range steps {
		steps[i].Candidates = nil
		for _, prov := range providers {
			if prov.Enabled && prov.Can(steps[i].Process) && prov.Fits(st.Request.Motor) {
				steps[i].Candidates = append(steps[i].Candidates, domain.Candidate{Provider: prov})
			}
		}
		if len(steps[i].Candidates) == 0 {
			errs = append(errs, fmt.Errorf("%w %d (%s)", ErrUnmatchedStep, steps[i].StepNumber, steps[i].Process))
		}
	}
	st.Steps = steps
	if len(errs) > 0 {
		st.Errors = append(st.Errors, errs...)
		return st, errors.Join(errs...)
	}
	return st, nil
}
