package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"remanflow/domain"
	"remanflow/messaging"
)

// confirm asks every selected provider to commit to its step. Only when all
// of them agree is the plan persisted and announced.
func (p *Pipeline) confirm(ctx context.Context, st State) (State, error) {
	if st.Selected == nil {
		return st, errors.New("no strategy selected")
	}
	now := p.now()
	plan := domain.NewPlan(uuid.New().String(), st.Request, *st.Selected, now)

	errs := make([]error, len(plan.Strategy.Steps))
	var wg sync.WaitGroup
	for i := range plan.Strategy.Steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.confirmStep(ctx, plan, &plan.Strategy.Steps[i])
		}(i)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		p.withdraw(plan, err)
		return st, fmt.Errorf("%w: %w", ErrConfirmationFailed, err)
	}

	if err := plan.Transition(domain.PlanSelected, now); err != nil {
		return st, err
	}
	if err := plan.Transition(domain.PlanConfirmed, p.now()); err != nil {
		return st, err
	}
	if err := p.store.CreatePlan(plan); err != nil {
		return st, fmt.Errorf("save plan: %w", err)
	}
	p.emitter.EmitPlanConfirmed(plan)
	if err := p.client.Send(messaging.ExchangeOptimization, messaging.KeyPlanReady, messaging.TypeOptimizationPlanReady,
		messaging.OptimizationPlanReady{Plan: *plan}); err != nil {
		return st, err
	}
	p.logFn("pipeline: request %s plan %s confirmed with %d steps", st.Request.ID, plan.ID, len(plan.Strategy.Steps))

	st.Plan = plan
	return st, nil
}

// withdraw tells every provider of an unconfirmed plan to drop its booking.
// Providers that timed out are included since their confirmation may still land.
func (p *Pipeline) withdraw(plan *domain.Plan, cause error) {
	seen := make(map[string]bool)
	for _, step := range plan.Strategy.Steps {
		if step.Selected == nil || seen[step.Selected.Provider.ID] {
			continue
		}
		providerID := step.Selected.Provider.ID
		seen[providerID] = true
		err := p.client.Send(messaging.ExchangeProvider, messaging.CancelKey(providerID), messaging.TypeCancelProcessProposal,
			messaging.CancelProcessProposal{RequestID: plan.RequestID, ProviderID: providerID, PlanID: plan.ID, Reason: cause.Error()})
		if err != nil {
			p.logFn("pipeline: withdraw plan %s from %s: %v", plan.ID, providerID, err)
		}
	}
}

func (p *Pipeline) confirmStep(ctx context.Context, plan *domain.Plan, step *domain.ProcessStep) error {
	if step.Selected == nil {
		return fmt.Errorf("step %d has no selected provider", step.StepNumber)
	}
	providerID := step.Selected.Provider.ID
	body := messaging.ConfirmProcessProposal{
		RequestID:     plan.RequestID,
		ProviderID:    providerID,
		Process:       step.Process,
		PlanID:        plan.ID,
		StepID:        step.ID,
		DurationHours: step.Selected.Estimate.DurationHours,
	}
	if slots := step.Selected.Estimate.AvailableSlots; len(slots) > 0 {
		slot := slots[0]
		body.Slot = &slot
	}

	env, err := p.client.Request(ctx, messaging.ExchangeProvider, messaging.ConfirmKey(providerID),
		messaging.TypeConfirmProcessProposal, body, p.cfg.ConfirmTimeout)
	if err != nil {
		return fmt.Errorf("step %d provider %s: %w", step.StepNumber, providerID, err)
	}
	var reply messaging.ProcessProposalConfirmed
	if err := env.DecodePayload(&reply); err != nil {
		return fmt.Errorf("step %d provider %s: %w", step.StepNumber, providerID, err)
	}
	if reply.ProviderID != providerID {
		return fmt.Errorf("step %d: confirmation from %s, expected %s", step.StepNumber, reply.ProviderID, providerID)
	}
	if !reply.Confirmed {
		return fmt.Errorf("step %d provider %s refused: %s", step.StepNumber, providerID, reply.Reason)
	}
	return nil
}
