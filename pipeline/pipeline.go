package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"remanflow/config"
	"remanflow/domain"
	"remanflow/messaging"
	"remanflow/optimizer"
	"remanflow/store"
)

// ProviderDirectory lists providers available for matching.
type ProviderDirectory interface {
	EnabledProviders() ([]domain.Provider, error)
}

// Store is the persistence the pipeline writes through.
type Store interface {
	CreateRequest(req domain.Request) error
	UpdateRequestStatus(id, status, workflow, errMsg string) error
	SaveStrategies(requestID string, strategies []domain.Strategy) error
	CreatePlan(p *domain.Plan) error
}

// Messenger is the slice of messaging.Client the pipeline uses.
type Messenger interface {
	Request(ctx context.Context, exchange, routingKey, msgType string, body any, timeout time.Duration) (*messaging.Envelope, error)
	Send(exchange, routingKey, msgType string, body any) error
	OpenInbox(exchange, routingKey string) (*messaging.Inbox, error)
}

type Config struct {
	Pipeline  config.PipelineConfig
	Workflows config.WorkflowsConfig
	Providers ProviderDirectory
	Store     Store
	Client    Messenger
	// Solver defaults to branch and bound with Pipeline.SolverNodeLimit.
	Solver  optimizer.Solver
	Emitter Emitter
	// OnBreakerChange, when set, observes provider breaker transitions.
	OnBreakerChange BreakerObserver
	LogFunc         LogFunc
	Now             func() time.Time
}

// Pipeline turns a customer request into a confirmed plan.
type Pipeline struct {
	cfg       config.PipelineConfig
	workflows map[domain.WorkflowType][]domain.ProcessType
	providers ProviderDirectory
	store     Store
	client    Messenger
	optimizer *optimizer.Optimizer
	breakers  *breakerSet
	emitter   Emitter
	runner    *Runner
	now       func() time.Time
	logFn     LogFunc
}

func New(c Config) (*Pipeline, error) {
	upgrade, err := domain.ParseProcessTypes(c.Workflows.Upgrade)
	if err != nil {
		return nil, fmt.Errorf("upgrade workflow: %w", err)
	}
	refurbish, err := domain.ParseProcessTypes(c.Workflows.Refurbish)
	if err != nil {
		return nil, fmt.Errorf("refurbish workflow: %w", err)
	}

	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	solver := c.Solver
	if solver == nil {
		solver = optimizer.NewBranchAndBound(c.Pipeline.SolverNodeLimit)
	}
	emitter := c.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}

	p := &Pipeline{
		cfg: c.Pipeline,
		workflows: map[domain.WorkflowType][]domain.ProcessType{
			domain.WorkflowUpgrade:   upgrade,
			domain.WorkflowRefurbish: refurbish,
		},
		providers: c.Providers,
		store:     c.Store,
		client:    c.Client,
		optimizer: optimizer.New(solver, optimizer.LogFunc(logFn)).WithClock(now),
		breakers:  newBreakerSet(logFn, c.OnBreakerChange),
		emitter:   emitter,
		now:       now,
		logFn:     logFn,
	}
	p.runner = NewRunner(logFn, p.Steps()...)
	return p, nil
}

// Steps returns the pipeline stages in execution order.
func (p *Pipeline) Steps() []Step {
	return []Step{
		{Name: "workflow", Run: p.matchWorkflow},
		{Name: "matching", Run: p.matchProviders},
		{Name: "estimation", Run: p.estimate},
		{Name: "optimization", Run: p.optimize},
		{Name: "selection", Run: p.selectStrategy},
		{Name: "confirmation", Run: p.confirm},
	}
}

func (p *Pipeline) Runner() *Runner { return p.runner }

// BreakerStates maps each provider contacted so far to its circuit state.
func (p *Pipeline) BreakerStates() map[string]string {
	out := make(map[string]string)
	for id, st := range p.breakers.States() {
		out[id] = st.String()
	}
	return out
}

// Process runs the full pipeline for one request. A request id that was
// already accepted is rejected so a redelivered message does not start a
// second run.
func (p *Pipeline) Process(ctx context.Context, req domain.Request) (State, error) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = p.now()
	}
	if err := p.store.CreateRequest(req); err != nil {
		return State{Request: req}, fmt.Errorf("accept request %s: %w", req.ID, err)
	}
	p.emitter.EmitRequestReceived(req.ID, req.CustomerID)

	st, err := p.runner.Run(ctx, State{Request: req})
	if err != nil {
		if uerr := p.store.UpdateRequestStatus(req.ID, store.RequestFailed, workflowName(st.Workflow), err.Error()); uerr != nil {
			p.logFn("pipeline: request %s status: %v", req.ID, uerr)
		}
		p.emitter.EmitPipelineFailed(req.ID, req.CustomerID, err)
		return st, err
	}
	if uerr := p.store.UpdateRequestStatus(req.ID, store.RequestPlanned, workflowName(st.Workflow), ""); uerr != nil {
		p.logFn("pipeline: request %s status: %v", req.ID, uerr)
	}
	return st, nil
}

func workflowName(w domain.WorkflowType) string {
	if w == 0 {
		return ""
	}
	return w.String()
}
