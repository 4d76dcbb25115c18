package optimizer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"remanflow/domain"
)

var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func quiet(string, ...any) {}

func candidate(id string, cost, hours, quality, emissions float64) domain.Candidate {
	return domain.Candidate{
		Provider: domain.Provider{ID: id},
		Estimate: domain.Estimate{Cost: cost, DurationHours: hours, Quality: quality, EmissionsKgCO2: emissions},
	}
}

// Provider "a" is cheap, slow, and dirty; provider "b" is the opposite.
func twoStepFixture() []domain.ProcessStep {
	return []domain.ProcessStep{
		{ID: "s1", StepNumber: 1, Process: domain.ProcessCleaning, Candidates: []domain.Candidate{
			candidate("a", 100, 10, 0.6, 50),
			candidate("b", 300, 4, 0.95, 10),
		}},
		{ID: "s2", StepNumber: 2, Process: domain.ProcessGrinding, Candidates: []domain.Candidate{
			candidate("a", 80, 8, 0.6, 40),
			candidate("b", 200, 3, 0.9, 8),
		}},
	}
}

func newTestOptimizer(s Solver) *Optimizer {
	return New(s, quiet).WithClock(func() time.Time { return fixedNow })
}

func selectedIDs(s domain.Strategy) []string {
	var ids []string
	for _, st := range s.Steps {
		ids = append(ids, st.Selected.Provider.ID)
	}
	return ids
}

func byPriority(strategies []domain.Strategy) map[domain.Priority]domain.Strategy {
	out := make(map[domain.Priority]domain.Strategy)
	for _, s := range strategies {
		out[s.Priority] = s
	}
	return out
}

func TestWeightsSumToOne(t *testing.T) {
	for _, p := range domain.Priorities {
		t.Run(p.String(), func(t *testing.T) {
			assert.InDelta(t, 1.0, WeightsFor(p).Sum(), 0.001)
		})
	}
}

func TestNormalizationBounds(t *testing.T) {
	steps := twoStepFixture()
	n := Ranges(steps)
	for _, st := range steps {
		for _, c := range st.Candidates {
			for _, v := range []float64{
				n.Cost.Normalize(c.Estimate.Cost),
				n.Hours.Normalize(c.Estimate.DurationHours),
				n.Emissions.Normalize(c.Estimate.EmissionsKgCO2),
			} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
	assert.Equal(t, 0.0, n.Cost.Normalize(80))
	assert.Equal(t, 1.0, n.Cost.Normalize(300))
	assert.Equal(t, 0.0, Range{Min: 5, Max: 5}.Normalize(5))
}

func TestOptimizeProducesOneStrategyPerPriority(t *testing.T) {
	o := newTestOptimizer(NewBranchAndBound(0))
	strategies, err := o.Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, twoStepFixture())
	require.NoError(t, err)
	require.Len(t, strategies, 4)

	for _, s := range strategies {
		require.Len(t, s.Steps, 2)
		for _, st := range s.Steps {
			require.NotNil(t, st.Selected, "every step has exactly one provider")
		}
		assert.Equal(t, StatusOptimal, s.Metrics.SolverStatus)
		assert.Equal(t, domain.WarrantyFor(s.Priority, domain.WorkflowRefurbish), s.Warranty)
		assert.NotEmpty(t, s.ID)
	}

	got := byPriority(strategies)
	assert.Equal(t, []string{"a", "a"}, selectedIDs(got[domain.PriorityLowestCost]))
	assert.Equal(t, []string{"b", "b"}, selectedIDs(got[domain.PriorityFastestDelivery]))
	assert.Equal(t, []string{"b", "b"}, selectedIDs(got[domain.PriorityHighestQuality]))
	assert.Equal(t, []string{"b", "b"}, selectedIDs(got[domain.PriorityLowestEmissions]))

	cheap := got[domain.PriorityLowestCost].Metrics
	assert.Equal(t, 180.0, cheap.TotalCost)
	assert.Equal(t, 18.0, cheap.TotalDurationHours)
	assert.InDelta(t, 0.6, cheap.AverageQuality, 1e-9)
}

func TestOptimizeRespectsBudget(t *testing.T) {
	budget := 250.0
	req := domain.Request{ID: "r1", Constraints: domain.Constraints{MaxBudget: &budget}}

	strategies, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), req, domain.WorkflowRefurbish, twoStepFixture())
	require.NoError(t, err)
	require.Len(t, strategies, 4)
	for _, s := range strategies {
		assert.LessOrEqual(t, s.Metrics.TotalCost, budget+tolerance)
		assert.Equal(t, []string{"a", "a"}, selectedIDs(s))
	}
}

func TestOptimizeInfeasibleBudget(t *testing.T) {
	budget := 150.0
	req := domain.Request{ID: "r1", Constraints: domain.Constraints{MaxBudget: &budget}}

	_, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), req, domain.WorkflowRefurbish, twoStepFixture())
	assert.True(t, errors.Is(err, ErrNoFeasibleStrategy))
}

func TestOptimizeRespectsDeadline(t *testing.T) {
	deadline := fixedNow.Add(8 * time.Hour)
	req := domain.Request{ID: "r1", Constraints: domain.Constraints{Deadline: &deadline}}

	strategies, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), req, domain.WorkflowUpgrade, twoStepFixture())
	require.NoError(t, err)
	for _, s := range strategies {
		assert.LessOrEqual(t, s.Metrics.TotalDurationHours, 8.0)
		assert.Equal(t, []string{"b", "b"}, selectedIDs(s))
	}
}

func TestOptimizeRejectsUnmatchedStep(t *testing.T) {
	steps := twoStepFixture()
	steps[1].Candidates = nil
	_, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, steps)
	assert.True(t, errors.Is(err, ErrNoCandidates))
}

func TestFallbackCandidatesLoseToRealEstimates(t *testing.T) {
	steps := twoStepFixture()
	// provider "z" timed out: zero-valued estimate would otherwise look free
	steps[0].Candidates = append(steps[0].Candidates, domain.Candidate{
		Provider: domain.Provider{ID: "z"},
		Estimate: domain.Estimate{Fallback: true},
	})

	strategies, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, steps)
	require.NoError(t, err)
	for _, s := range strategies {
		assert.NotEqual(t, "z", s.Steps[0].Selected.Provider.ID)
	}

	// a step with only fallback estimates still gets an assignment
	steps[1].Candidates = []domain.Candidate{{Provider: domain.Provider{ID: "y"}, Estimate: domain.Estimate{Fallback: true}}}
	strategies, err = newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, steps)
	require.NoError(t, err)
	for _, s := range strategies {
		assert.Equal(t, "y", s.Steps[1].Selected.Provider.ID)
	}
}

func TestFallbackCandidateKeepsTightBudgetFeasible(t *testing.T) {
	steps := twoStepFixture()
	budget := 150.0
	c := domain.Constraints{MaxBudget: &budget}

	_, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), domain.Request{ID: "r1", Constraints: c}, domain.WorkflowRefurbish, steps)
	require.Error(t, err, "cheapest real plan costs 180")

	steps[0].Candidates = append(steps[0].Candidates, domain.Candidate{
		Provider: domain.Provider{ID: "z"},
		Estimate: domain.Estimate{Fallback: true},
	})
	strategies, err := newTestOptimizer(NewBranchAndBound(0)).Optimize(context.Background(), domain.Request{ID: "r1", Constraints: c}, domain.WorkflowRefurbish, steps)
	require.NoError(t, err)
	require.NotEmpty(t, strategies)
	for _, s := range strategies {
		assert.Equal(t, []string{"z", "a"}, selectedIDs(s))
	}

	w := Weights{Cost: 1, Time: 1, Emissions: 1, Quality: 1}
	n := Ranges(steps)
	worstReal := Coefficient(w, n, domain.Estimate{Cost: 300, DurationHours: 10, EmissionsKgCO2: 50})
	assert.Greater(t, Coefficient(w, n, domain.Estimate{Fallback: true}), worstReal)
}

type MockSolver struct {
	mock.Mock
}

func (m *MockSolver) Solve(ctx context.Context, model *Model) (*Solution, error) {
	args := m.Called(ctx, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Solution), args.Error(1)
}

func TestOptimizeSkipsFailingPriorities(t *testing.T) {
	ok := &Solution{Status: StatusOptimal, Objective: 0.5, Values: [][]float64{{1, 0}, {0, 1}}}

	s := new(MockSolver)
	s.On("Solve", mock.Anything, mock.Anything).Return(nil, errors.New("solver unavailable")).Once()
	s.On("Solve", mock.Anything, mock.Anything).Return(&Solution{Status: StatusInfeasible}, nil).Once()
	s.On("Solve", mock.Anything, mock.Anything).Return(ok, nil).Twice()

	strategies, err := newTestOptimizer(s).Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, twoStepFixture())
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, domain.PriorityHighestQuality, strategies[0].Priority)
	assert.Equal(t, domain.PriorityLowestEmissions, strategies[1].Priority)
	assert.Equal(t, []string{"a", "b"}, selectedIDs(strategies[0]))
	assert.Equal(t, 0.5, strategies[0].Metrics.ObjectiveValue)
	s.AssertExpectations(t)
}

func TestOptimizeAllPrioritiesFail(t *testing.T) {
	s := new(MockSolver)
	s.On("Solve", mock.Anything, mock.Anything).Return(nil, errors.New("solver unavailable"))

	_, err := newTestOptimizer(s).Optimize(context.Background(), domain.Request{ID: "r1"}, domain.WorkflowRefurbish, twoStepFixture())
	assert.True(t, errors.Is(err, ErrNoFeasibleStrategy))
	s.AssertNumberOfCalls(t, "Solve", 4)
}

func TestBranchAndBoundNodeLimit(t *testing.T) {
	// the first dive lands on a poor incumbent because the cheap option breaks the budget
	budget := 50.0
	m := &Model{
		Vars: [][]Var{
			{{Step: 0, Candidate: 0, Coef: 0}, {Step: 0, Candidate: 1, Coef: 0.1}},
			{{Step: 1, Candidate: 0, Coef: 0, Cost: 100}, {Step: 1, Candidate: 1, Coef: 0.5}},
		},
		MaxCost: &budget,
	}

	sol, err := NewBranchAndBound(1).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusNotSolved, sol.Status)
	assert.False(t, sol.Solved())

	sol, err = NewBranchAndBound(3).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusFeasible, sol.Status)
	assert.Equal(t, 0.5, sol.Objective)

	sol, err = NewBranchAndBound(0).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, []float64{1, 0}, sol.Values[0])
	assert.Equal(t, []float64{0, 1}, sol.Values[1])
}

func TestBranchAndBoundCancelled(t *testing.T) {
	m, err := Build(randomSteps(rand.New(rand.NewSource(7)), 3, 3), domain.Constraints{}, WeightsFor(domain.PriorityLowestCost), fixedNow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// tiny models finish before the periodic context check
	sol, err := NewBranchAndBound(0).Solve(ctx, m)
	require.NoError(t, err)
	assert.True(t, sol.Solved())
}

func randomSteps(r *rand.Rand, nSteps, nProviders int) []domain.ProcessStep {
	steps := make([]domain.ProcessStep, nSteps)
	for i := range steps {
		steps[i] = domain.ProcessStep{StepNumber: i + 1, Process: domain.ProcessCleaning}
		for j := 0; j < nProviders; j++ {
			steps[i].Candidates = append(steps[i].Candidates, candidate(
				string(rune('a'+j)),
				50+r.Float64()*450,
				1+r.Float64()*20,
				r.Float64(),
				r.Float64()*80,
			))
		}
	}
	return steps
}

// bruteForce enumerates every assignment and returns the best objective, or +Inf.
func bruteForce(m *Model) float64 {
	best := math.Inf(1)
	var walk func(i int, coef, cost, hours float64)
	walk = func(i int, coef, cost, hours float64) {
		if i == len(m.Vars) {
			if m.MaxCost != nil && cost > *m.MaxCost+tolerance {
				return
			}
			if m.MaxHours != nil && hours > *m.MaxHours+tolerance {
				return
			}
			best = math.Min(best, coef)
			return
		}
		for _, v := range m.Vars[i] {
			walk(i+1, coef+v.Coef, cost+v.Cost, hours+v.Hours)
		}
	}
	walk(0, 0, 0, 0)
	return best
}

func TestBranchAndBoundMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 40; trial++ {
		steps := randomSteps(r, 2+r.Intn(4), 1+r.Intn(4))
		budget := 300 + r.Float64()*1200
		deadline := fixedNow.Add(time.Duration(10+r.Intn(60)) * time.Hour)
		c := domain.Constraints{MaxBudget: &budget, Deadline: &deadline}

		for _, p := range domain.Priorities {
			m, err := Build(steps, c, WeightsFor(p), fixedNow)
			require.NoError(t, err)

			want := bruteForce(m)
			sol, err := NewBranchAndBound(0).Solve(context.Background(), m)
			require.NoError(t, err)

			if math.IsInf(want, 1) {
				assert.Equal(t, StatusInfeasible, sol.Status, "trial %d %s", trial, p)
				continue
			}
			require.Equal(t, StatusOptimal, sol.Status, "trial %d %s", trial, p)
			assert.InDelta(t, want, sol.Objective, 1e-6, "trial %d %s", trial, p)

			var cost, hours float64
			for i, row := range sol.Values {
				ones := 0
				for j, v := range row {
					if v > 0.5 {
						ones++
						cost += m.Vars[i][j].Cost
						hours += m.Vars[i][j].Hours
					}
				}
				assert.Equal(t, 1, ones)
			}
			assert.LessOrEqual(t, cost, budget+tolerance)
			assert.LessOrEqual(t, hours, *m.MaxHours+tolerance)
		}
	}
}
