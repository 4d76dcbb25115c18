package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"
)

type LogFunc func(format string, args ...any)

// Step is one stage of the pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context, st State) (State, error)
}

// StepObserver is told how long each step took and whether it failed.
type StepObserver func(step string, elapsed time.Duration, err error)

// Runner executes steps in order and stops at the first error, returning the
// failing step's state. A panicking step is converted into an error.
type Runner struct {
	steps    []Step
	logFn    LogFunc
	observer StepObserver
}

func NewRunner(logFn LogFunc, steps ...Step) *Runner {
	if logFn == nil {
		logFn = log.Printf
	}
	return &Runner{steps: steps, logFn: logFn}
}

func (r *Runner) Observe(fn StepObserver) { r.observer = fn }

func (r *Runner) Run(ctx context.Context, st State) (State, error) {
	start := time.Now()
	for _, step := range r.steps {
		stepStart := time.Now()
		next, err := r.runStep(ctx, step, st)
		elapsed := time.Since(stepStart)
		if r.observer != nil {
			r.observer(step.Name, elapsed, err)
		}
		if err != nil {
			r.logFn("pipeline: request %s failed in %s after %s (total %s): %v",
				st.Request.ID, step.Name, elapsed.Round(time.Millisecond), time.Since(start).Round(time.Millisecond), err)
			return next, fmt.Errorf("%s: %w", step.Name, err)
		}
		r.logFn("pipeline: request %s %s done in %s", st.Request.ID, step.Name, elapsed.Round(time.Millisecond))
		st = next
	}
	r.logFn("pipeline: request %s finished in %s", st.Request.ID, time.Since(start).Round(time.Millisecond))
	return st, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, st State) (next State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logFn("pipeline: panic in %s: %v\n%s", step.Name, rec, debug.Stack())
			next, err = st, fmt.Errorf("panic: %v", rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return st, err
	}
	return step.Run(ctx, st)
}
