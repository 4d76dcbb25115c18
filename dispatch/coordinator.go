package dispatch

import (
	"errors"
	"fmt"
	"log"
	"time"

	"remanflow/domain"
	"remanflow/messaging"
)

var (
	// ErrConcurrentUpdate is returned when a plan changed underneath an update.
	ErrConcurrentUpdate = errors.New("plan was modified concurrently")
	// ErrUnknownStep is returned for a completion naming a step the plan lacks.
	ErrUnknownStep = errors.New("plan has no such step")
)

type PlanStore interface {
	GetPlan(id string) (*domain.Plan, error)
	CompareAndSwapPlan(p *domain.Plan, fromStatus domain.PlanStatus, fromStep int) (bool, error)
	ListActivePlans() ([]*domain.Plan, error)
}

type Publisher interface {
	Send(exchange, routingKey, msgType string, body any) error
}

type LogFunc func(format string, args ...any)

// Coordinator drives confirmed plans through their steps, one step at a
// time, advancing on completion events. Every write is a compare-and-set on
// (status, current step) so redelivered or concurrent events cannot advance
// a plan twice.
type Coordinator struct {
	db      PlanStore
	client  Publisher
	emitter Emitter
	now     func() time.Time
	logFn   LogFunc
}

func NewCoordinator(db PlanStore, client Publisher, emitter Emitter, logFn LogFunc) *Coordinator {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logFn == nil {
		logFn = log.Printf
	}
	return &Coordinator{db: db, client: client, emitter: emitter, now: time.Now, logFn: logFn}
}

// SetClock overrides the time source for plan timestamps.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// HandlePlanReady starts a confirmed plan. Plans in any other status are
// ignored, which makes the handler safe to call more than once.
func (c *Coordinator) HandlePlanReady(planID string) error {
	plan, err := c.db.GetPlan(planID)
	if err != nil {
		return err
	}
	if plan.Status != domain.PlanConfirmed {
		c.logFn("dispatch: plan %s is %s, not starting", plan.ID, plan.Status)
		return nil
	}

	now := c.now()
	if err := plan.Transition(domain.PlanInProgress, now); err != nil {
		return err
	}
	plan.CurrentStep = 0
	if len(plan.Strategy.Steps) == 0 {
		if err := plan.Transition(domain.PlanCompleted, now); err != nil {
			return err
		}
	}
	ok, err := c.db.CompareAndSwapPlan(plan, domain.PlanConfirmed, 0)
	if err != nil {
		return err
	}
	if !ok {
		c.logFn("dispatch: plan %s already started elsewhere", plan.ID)
		return nil
	}

	if plan.Status == domain.PlanCompleted {
		c.logFn("dispatch: plan %s has no steps, completed", plan.ID)
		c.emitter.EmitPlanCompleted(plan)
		return nil
	}
	c.logFn("dispatch: plan %s started (%d steps)", plan.ID, len(plan.Strategy.Steps))
	c.emitter.EmitPlanStarted(plan)
	return c.dispatchStep(plan, 0)
}

// HandleExecutionCompleted advances, completes or fails the plan the event
// belongs to. Events for a step other than the plan's current one, or for
// a plan that is not in progress, are ignored.
func (c *Coordinator) HandleExecutionCompleted(evt messaging.ProcessExecutionCompleted) error {
	plan, err := c.db.GetPlan(evt.PlanID)
	if err != nil {
		return err
	}
	if plan.Status != domain.PlanInProgress {
		c.logFn("dispatch: plan %s is %s, ignoring completion of step %s", plan.ID, plan.Status, evt.StepID)
		return nil
	}
	cur := plan.CurrentStep
	idx := plan.Strategy.StepIndex(evt.StepID)
	if idx < 0 {
		return fmt.Errorf("%w: plan %s step %s from %s", ErrUnknownStep, plan.ID, evt.StepID, evt.ProviderID)
	}
	if idx != cur {
		c.logFn("dispatch: plan %s ignoring completion of step %d (current step %d)", plan.ID, idx+1, cur+1)
		return nil
	}

	now := c.now()
	if !evt.Success {
		reason := evt.FailureReason
		if reason == "" {
			reason = "execution failed"
		}
		plan.FailureReason = fmt.Sprintf("step %d (%s) at %s: %s",
			plan.Strategy.Steps[cur].StepNumber, plan.Strategy.Steps[cur].Process, evt.ProviderID, reason)
		if err := plan.Transition(domain.PlanFailed, now); err != nil {
			return err
		}
		if ok, err := c.db.CompareAndSwapPlan(plan, domain.PlanInProgress, cur); err != nil || !ok {
			return c.lost(plan, err)
		}
		c.logFn("dispatch: plan %s failed: %s", plan.ID, plan.FailureReason)
		c.emitter.EmitPlanFailed(plan, plan.FailureReason)
		return nil
	}

	next := cur + 1
	plan.CurrentStep = next
	if next == len(plan.Strategy.Steps) {
		if err := plan.Transition(domain.PlanCompleted, now); err != nil {
			return err
		}
	}
	if ok, err := c.db.CompareAndSwapPlan(plan, domain.PlanInProgress, cur); err != nil || !ok {
		return c.lost(plan, err)
	}
	c.emitter.EmitStepCompleted(plan, cur)

	if plan.Status == domain.PlanCompleted {
		c.logFn("dispatch: plan %s completed", plan.ID)
		c.emitter.EmitPlanCompleted(plan)
		return nil
	}
	return c.dispatchStep(plan, next)
}

// lost reports a failed compare-and-set. A lost race is not an error: the
// competing writer already handled the event.
func (c *Coordinator) lost(plan *domain.Plan, err error) error {
	if err != nil {
		return err
	}
	c.logFn("dispatch: plan %s changed concurrently, dropping event", plan.ID)
	return nil
}

func (c *Coordinator) dispatchStep(plan *domain.Plan, i int) error {
	step := plan.Strategy.Steps[i]
	if step.Selected == nil {
		return c.failDispatch(plan, i, fmt.Errorf("step %d has no selected provider", step.StepNumber))
	}
	msg := messaging.ExecuteProcess{
		PlanID:           plan.ID,
		StepID:           step.ID,
		StepIndex:        i,
		ProcessName:      step.Process.String(),
		TargetProviderID: step.Selected.Provider.ID,
		DurationHours:    step.Selected.Estimate.DurationHours,
	}
	err := c.client.Send(messaging.ExchangeProvider, messaging.ExecuteKey(msg.TargetProviderID), messaging.TypeExecuteProcess, msg)
	if err != nil {
		return c.failDispatch(plan, i, err)
	}
	c.logFn("dispatch: plan %s step %d (%s) dispatched to %s", plan.ID, step.StepNumber, step.Process, msg.TargetProviderID)
	c.emitter.EmitStepDispatched(plan, i)
	return nil
}

func (c *Coordinator) failDispatch(plan *domain.Plan, i int, cause error) error {
	plan.FailureReason = fmt.Sprintf("dispatch step %d: %v", i+1, cause)
	if err := plan.Transition(domain.PlanFailed, c.now()); err != nil {
		return err
	}
	if ok, err := c.db.CompareAndSwapPlan(plan, domain.PlanInProgress, i); err != nil || !ok {
		return c.lost(plan, err)
	}
	c.emitter.EmitPlanFailed(plan, plan.FailureReason)
	return cause
}

// Cancel moves a non-terminal plan to Cancelled.
func (c *Coordinator) Cancel(planID, reason string) (*domain.Plan, error) {
	plan, err := c.db.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	from, step := plan.Status, plan.CurrentStep
	if err := plan.Transition(domain.PlanCancelled, c.now()); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled"
	}
	plan.FailureReason = reason
	ok, err := c.db.CompareAndSwapPlan(plan, from, step)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cancel plan %s: %w", planID, ErrConcurrentUpdate)
	}
	c.logFn("dispatch: plan %s cancelled: %s", plan.ID, reason)
	c.emitter.EmitPlanCancelled(plan, reason)
	return plan, nil
}

// Resume starts confirmed plans whose ready event was lost, for example
// across a restart. In-progress plans wait for their outstanding completion.
func (c *Coordinator) Resume() (int, error) {
	plans, err := c.db.ListActivePlans()
	if err != nil {
		return 0, err
	}
	started := 0
	for _, p := range plans {
		if p.Status != domain.PlanConfirmed {
			continue
		}
		if err := c.HandlePlanReady(p.ID); err != nil {
			c.logFn("dispatch: resume plan %s: %v", p.ID, err)
			continue
		}
		started++
	}
	return started, nil
}
