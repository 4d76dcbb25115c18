package optimizer

import (
	"context"
	"math"
	"sort"
)

const (
	StatusOptimal    = "OPTIMAL"
	StatusFeasible   = "FEASIBLE"
	StatusInfeasible = "INFEASIBLE"
	StatusNotSolved  = "NOT_SOLVED"
)

// tolerance applied to constraint right-hand sides and bound comparisons
const tolerance = 1e-6

type Solution struct {
	Status    string
	Objective float64
	// Values[step][candidate] is 1 for the selected variable, 0 otherwise.
	Values [][]float64
	Nodes  int
}

// Solved reports whether the solution carries a usable assignment.
func (s *Solution) Solved() bool {
	return s != nil && (s.Status == StatusOptimal || s.Status == StatusFeasible)
}

type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}

// BranchAndBound is an exact depth-first solver for the assignment model.
// When NodeLimit stops the search early the best incumbent is returned as FEASIBLE.
type BranchAndBound struct {
	NodeLimit int
}

func NewBranchAndBound(nodeLimit int) *BranchAndBound {
	return &BranchAndBound{NodeLimit: nodeLimit}
}

type bbSearch struct {
	ctx      context.Context
	m        *Model
	order    [][]Var
	minCoef  []float64
	minCost  []float64
	minHours []float64
	limit    int

	nodes    int
	stopped  bool
	err      error
	best     float64
	bestPick []int
	pick     []int
}

func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	n := len(m.Vars)
	s := &bbSearch{
		ctx:      ctx,
		m:        m,
		order:    make([][]Var, n),
		minCoef:  make([]float64, n+1),
		minCost:  make([]float64, n+1),
		minHours: make([]float64, n+1),
		limit:    b.NodeLimit,
		best:     math.Inf(1),
		pick:     make([]int, n),
	}

	for i, vars := range m.Vars {
		open := append([]Var(nil), vars...)
		if len(open) == 0 {
			return &Solution{Status: StatusInfeasible}, nil
		}
		sort.SliceStable(open, func(a, c int) bool { return open[a].Coef < open[c].Coef })
		s.order[i] = open
	}

	// suffix lower bounds
	for i := n - 1; i >= 0; i-- {
		mc, mcost, mh := math.Inf(1), math.Inf(1), math.Inf(1)
		for _, v := range s.order[i] {
			mc = math.Min(mc, v.Coef)
			mcost = math.Min(mcost, v.Cost)
			mh = math.Min(mh, v.Hours)
		}
		s.minCoef[i] = s.minCoef[i+1] + mc
		s.minCost[i] = s.minCost[i+1] + mcost
		s.minHours[i] = s.minHours[i+1] + mh
	}

	s.search(0, 0, 0, 0)
	if s.err != nil {
		return nil, s.err
	}

	sol := &Solution{Nodes: s.nodes}
	switch {
	case s.bestPick != nil && !s.stopped:
		sol.Status = StatusOptimal
	case s.bestPick != nil:
		sol.Status = StatusFeasible
	case s.stopped:
		sol.Status = StatusNotSolved
		return sol, nil
	default:
		sol.Status = StatusInfeasible
		return sol, nil
	}

	sol.Objective = s.best
	sol.Values = make([][]float64, n)
	for i, vars := range m.Vars {
		sol.Values[i] = make([]float64, len(vars))
		sol.Values[i][s.bestPick[i]] = 1
	}
	return sol, nil
}

func (s *bbSearch) search(i int, coef, cost, hours float64) {
	if s.stopped {
		return
	}
	s.nodes++
	if s.limit > 0 && s.nodes > s.limit {
		s.stopped = true
		return
	}
	if s.nodes%1024 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.stopped = true
			return
		}
	}

	if i == len(s.order) {
		if coef < s.best {
			s.best = coef
			s.bestPick = append(make([]int, 0, len(s.pick)), s.pick...)
		}
		return
	}

	for _, v := range s.order[i] {
		// options are sorted by coefficient, so the bound only grows from here
		if coef+v.Coef+s.minCoef[i+1] >= s.best-tolerance {
			break
		}
		c := cost + v.Cost
		if s.m.MaxCost != nil && c+s.minCost[i+1] > *s.m.MaxCost+tolerance {
			continue
		}
		h := hours + v.Hours
		if s.m.MaxHours != nil && h+s.minHours[i+1] > *s.m.MaxHours+tolerance {
			continue
		}
		s.pick[i] = v.Candidate
		s.search(i+1, coef+v.Coef, c, h)
		if s.stopped {
			return
		}
	}
}
