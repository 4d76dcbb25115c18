package optimizer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"remanflow/domain"
)

var ErrNoFeasibleStrategy = errors.New("no feasible strategy for any priority")

type LogFunc func(format string, args ...any)

// Optimizer produces one strategy per priority for which the solver finds an assignment.
type Optimizer struct {
	solver Solver
	now    func() time.Time
	logFn  LogFunc
}

func New(solver Solver, logFn LogFunc) *Optimizer {
	if logFn == nil {
		logFn = log.Printf
	}
	return &Optimizer{solver: solver, now: time.Now, logFn: logFn}
}

// WithClock overrides the clock used for deadline arithmetic.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	o.now = now
	return o
}

// Optimize solves the assignment program for every priority. Priorities whose
// program is infeasible or fails to solve are skipped; if none succeed it
// returns ErrNoFeasibleStrategy.
func (o *Optimizer) Optimize(ctx context.Context, req domain.Request, wf domain.WorkflowType, steps []domain.ProcessStep) ([]domain.Strategy, error) {
	now := o.now()
	var strategies []domain.Strategy
	for _, p := range domain.Priorities {
		s, err := o.solvePriority(ctx, req, wf, steps, p, now)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, ErrNoCandidates) {
				return nil, err
			}
			o.logFn("optimizer: request %s priority %s skipped: %v", req.ID, p, err)
			continue
		}
		strategies = append(strategies, *s)
	}
	if len(strategies) == 0 {
		return nil, ErrNoFeasibleStrategy
	}
	return strategies, nil
}

type unsolvedError struct{ status string }

func (e *unsolvedError) Error() string { return "solver status " + e.status }

func (o *Optimizer) solvePriority(ctx context.Context, req domain.Request, wf domain.WorkflowType, steps []domain.ProcessStep, p domain.Priority, now time.Time) (s *domain.Strategy, err error) {
	m, err := Build(steps, req.Constraints, WeightsFor(p), now)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			s, err = nil, errors.New("solver panic")
		}
	}()
	sol, err := o.solver.Solve(ctx, m)
	if err != nil {
		return nil, err
	}
	if !sol.Solved() {
		return nil, &unsolvedError{status: sol.Status}
	}

	chosen := make([]domain.ProcessStep, len(steps))
	for i, st := range steps {
		c := st
		c.Candidates = append([]domain.Candidate(nil), st.Candidates...)
		c.Selected = nil
		for j, v := range sol.Values[i] {
			if v > 0.5 {
				sel := st.Candidates[j]
				c.Selected = &sel
				break
			}
		}
		if c.Selected == nil {
			return nil, errors.New("solution leaves a step unassigned")
		}
		chosen[i] = c
	}

	metrics := domain.ComputeMetrics(chosen)
	metrics.SolverStatus = sol.Status
	metrics.ObjectiveValue = sol.Objective
	o.logFn("optimizer: request %s priority %s: %s objective=%.4f cost=%.2f hours=%.2f nodes=%d",
		req.ID, p, sol.Status, sol.Objective, metrics.TotalCost, metrics.TotalDurationHours, sol.Nodes)

	return &domain.Strategy{
		ID:           uuid.New().String(),
		RequestID:    req.ID,
		Priority:     p,
		WorkflowType: wf,
		Steps:        chosen,
		Metrics:      metrics,
		Warranty:     domain.WarrantyFor(p, wf),
	}, nil
}
