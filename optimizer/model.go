package optimizer

import (
	"errors"
	"fmt"
	"time"

	"remanflow/domain"
)

var ErrNoCandidates = errors.New("step has no matched provider")

// fallbackPenalty lifts a fallback estimate above the worst real candidate.
const fallbackPenalty = 1.0

// Var is the binary variable x[step, candidate].
type Var struct {
	Step      int
	Candidate int
	Coef      float64 // objective coefficient
	Cost      float64
	Hours     float64
}

// Model is a 0/1 assignment program: pick exactly one variable per step, keep the cost and time sums under their optional limits, and minimize
// the sum of coefficients.
type Model struct {
	Vars     [][]Var
	MaxCost  *float64
	MaxHours *float64
}

// Normalized holds the per-metric ranges used to scale the objective.
type Normalized struct {
	Cost      Range
	Hours     Range
	Emissions Range
}

// Ranges computes min-max ranges over every real (non-fallback) estimate.
func Ranges(steps []domain.ProcessStep) Normalized {
	n := Normalized{Cost: newRange(), Hours: newRange(), Emissions: newRange()}
	for _, st := range steps {
		for _, c := range st.Candidates {
			if c.Estimate.Fallback {
				continue
			}
			n.Cost.add(c.Estimate.Cost)
			n.Hours.add(c.Estimate.DurationHours)
			n.Emissions.add(c.Estimate.EmissionsKgCO2)
		}
	}
	return n
}

// Coefficient is the weighted objective contribution of one candidate.
// Fallback estimates score worse than any real candidate but stay selectable,
// so a tight budget can still be met by a provider that did not answer.
func Coefficient(w Weights, n Normalized, e domain.Estimate) float64 {
	if e.Fallback {
		return w.Cost + w.Time + w.Emissions + fallbackPenalty
	}
	return w.Cost*n.Cost.Normalize(e.Cost) +
		w.Time*n.Hours.Normalize(e.DurationHours) +
		w.Emissions*n.Emissions.Normalize(e.EmissionsKgCO2) -
		w.Quality*clamp01(e.Quality)
}

// Build assembles the model for one priority. Deadline hours are measured from now.
func Build(steps []domain.ProcessStep, c domain.Constraints, w Weights, now time.Time) (*Model, error) {
	for _, st := range steps {
		if len(st.Candidates) == 0 {
			return nil, fmt.Errorf("%w: step %d (%s)", ErrNoCandidates, st.StepNumber, st.Process)
		}
	}

	n := Ranges(steps)
	m := &Model{Vars: make([][]Var, len(steps))}
	for i, st := range steps {
		vars := make([]Var, len(st.Candidates))
		for j, c := range st.Candidates {
			vars[j] = Var{
				Step:      i,
				Candidate: j,
				Coef:      Coefficient(w, n, c.Estimate),
				Cost:      c.Estimate.Cost,
				Hours:     c.Estimate.DurationHours,
			}
		}
		m.Vars[i] = vars
	}

	if c.MaxBudget != nil {
		b := *c.MaxBudget
		m.MaxCost = &b
	}
	if c.Deadline != nil {
		h := c.Deadline.Sub(now).Hours()
		m.MaxHours = &h
	}
	return m, nil
}
