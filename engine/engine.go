package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"remanflow/capacity"
	"remanflow/config"
	"remanflow/dispatch"
	"remanflow/domain"
	"remanflow/messaging"
	"remanflow/metrics"
	"remanflow/pipeline"
	"remanflow/store"
)

// ErrNotAwaitingSelection is returned when a selection arrives for a request
// that is not waiting for one.
var ErrNotAwaitingSelection = errors.New("request is not awaiting selection")

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Capacity   *capacity.Manager
	MsgClient  *messaging.Client
	Metrics    *metrics.Metrics
	LogFunc    LogFunc
}

type Engine struct {
	cfg         *config.Config
	configPath  string
	db          *store.DB
	capacity    *capacity.Manager
	msgClient   *messaging.Client
	metrics     *metrics.Metrics
	pipeline    *pipeline.Pipeline
	coordinator *dispatch.Coordinator
	drainer     *messaging.OutboxDrainer
	Events      *EventBus
	logFn       LogFunc

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}

	connMu       sync.Mutex
	msgConnected bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	m := c.Metrics
	if m == nil {
		m = metrics.New(c.AppConfig.ServiceID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		capacity:   c.Capacity,
		msgClient:  c.MsgClient,
		metrics:    m,
		Events:     NewEventBus(),
		logFn:      logFn,
		ctx:        ctx,
		cancel:     cancel,
		stopChan:   make(chan struct{}),
	}
}

// Start builds the pipeline and coordinator, wires events and subscribes to
// the broker. Plans whose ready event was lost are resumed.
func (e *Engine) Start() error {
	pl, err := pipeline.New(pipeline.Config{
		Pipeline:        e.cfg.Pipeline,
		Workflows:       e.cfg.Workflows,
		Providers:       e.db,
		Store:           e.db,
		Client:          e.msgClient,
		Emitter:         &pipelineEmitter{bus: e.Events},
		OnBreakerChange: e.metrics.ObserveBreaker,
		LogFunc:         pipeline.LogFunc(e.logFn),
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	pl.Runner().Observe(e.metrics.ObserveStep)
	e.pipeline = pl

	e.coordinator = dispatch.NewCoordinator(e.db, e.msgClient, &dispatchEmitter{bus: e.Events}, dispatch.LogFunc(e.logFn))

	e.wireEventHandlers()
	e.subscribe()

	e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval)
	e.drainer.OnPublished = func(*store.OutboxMessage) { e.metrics.RecordOutboxPublished() }
	e.drainer.Start()

	if n, err := e.coordinator.Resume(); err != nil {
		e.logFn("engine: resume plans: %v", err)
	} else if n > 0 {
		e.logFn("engine: resumed %d confirmed plans", n)
	}

	e.checkConnectionStatus()
	e.wg.Add(1)
	go e.healthLoop()

	e.logFn("engine: started")
	return nil
}

// Stop cancels in-flight pipelines and waits for them to unwind.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		e.cancel()
		e.unsubscribe()
		if e.drainer != nil {
			e.drainer.Stop()
		}
		e.wg.Wait()
		e.logFn("engine: stopped")
	})
}

// Accessors
func (e *Engine) DB() *store.DB                      { return e.db }
func (e *Engine) AppConfig() *config.Config          { return e.cfg }
func (e *Engine) ConfigPath() string                 { return e.configPath }
func (e *Engine) MsgClient() *messaging.Client       { return e.msgClient }
func (e *Engine) Metrics() *metrics.Metrics          { return e.metrics }
func (e *Engine) Pipeline() *pipeline.Pipeline       { return e.pipeline }
func (e *Engine) Coordinator() *dispatch.Coordinator { return e.coordinator }
func (e *Engine) Capacity() *capacity.Manager        { return e.capacity }
func (e *Engine) Drainer() *messaging.OutboxDrainer  { return e.drainer }
func (e *Engine) MessagingConnected() bool           { return e.msgClient.IsConnected() }

// SubmitRequest validates a request, assigns its id and publishes it on the
// request topic, where the engine's own subscription picks it up.
func (e *Engine) SubmitRequest(req domain.Request) (domain.Request, error) {
	if err := req.Validate(); err != nil {
		return req, err
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	err := e.msgClient.Send(messaging.ExchangeOptimization, messaging.KeyOptimizationRequest,
		messaging.TypeRequestOptimizationPlan, messaging.RequestOptimizationPlan{Request: req})
	if err != nil {
		return req, err
	}
	return req, nil
}

// SelectStrategy forwards a customer's choice to the waiting pipeline.
func (e *Engine) SelectStrategy(requestID, strategyID string) error {
	rec, err := e.db.GetRequest(requestID)
	if err != nil {
		return err
	}
	if rec.Status != store.RequestAwaitingSelection {
		return fmt.Errorf("%w: request %s is %s", ErrNotAwaitingSelection, requestID, rec.Status)
	}
	s, err := e.db.GetStrategy(strategyID)
	if err != nil {
		return err
	}
	if s.RequestID != requestID {
		return fmt.Errorf("%w: %s does not belong to request %s", pipeline.ErrUnknownStrategy, strategyID, requestID)
	}
	return e.msgClient.Send(messaging.ExchangeOptimization, messaging.SelectKey(requestID),
		messaging.TypeSelectStrategy, messaging.SelectStrategy{RequestID: requestID, SelectedStrategyID: strategyID})
}

func (e *Engine) CancelPlan(planID, reason string) (*domain.Plan, error) {
	return e.coordinator.Cancel(planID, reason)
}

// RegisterProvider adds or updates a provider in the registry.
func (e *Engine) RegisterProvider(p domain.Provider, actor string) error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if err := e.db.UpsertProvider(p); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventProviderUpdated, Payload: ProviderUpdatedEvent{ProviderID: p.ID, Action: "registered", Actor: actor}})
	return nil
}

func (e *Engine) SetProviderEnabled(id string, enabled bool, actor string) error {
	if err := e.db.SetProviderEnabled(id, enabled); err != nil {
		return err
	}
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	e.Events.Emit(Event{Type: EventProviderUpdated, Payload: ProviderUpdatedEvent{ProviderID: id, Action: action, Actor: actor}})
	return nil
}

func (e *Engine) DeleteProvider(id, actor string) error {
	if err := e.db.DeleteProvider(id); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventProviderUpdated, Payload: ProviderUpdatedEvent{ProviderID: id, Action: "deleted", Actor: actor}})
	return nil
}

// ReloadMessaging rereads the messaging section of the config file and
// reconnects with it. The running config is left alone if the file is bad
// or the new backend cannot connect.
func (e *Engine) ReloadMessaging() error {
	if e.configPath == "" {
		return errors.New("no config file to reload")
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	return e.ReconfigureMessaging(cfg.Messaging)
}

// ReconfigureMessaging reconnects messaging with mc and adopts it as the
// running messaging config. Live subscriptions move to the new backend.
func (e *Engine) ReconfigureMessaging(mc config.MessagingConfig) error {
	defer e.checkConnectionStatus()
	if err := e.msgClient.Reconfigure(&mc); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
		return err
	}
	e.cfg.Messaging = mc
	e.logFn("engine: messaging reconfigured (%s)", mc.Backend)
	return nil
}

func (e *Engine) checkConnectionStatus() {
	connected := e.msgClient.IsConnected()
	e.connMu.Lock()
	changed := connected != e.msgConnected
	e.msgConnected = connected
	e.connMu.Unlock()
	if !changed {
		return
	}
	if connected {
		e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
	} else {
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) healthLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
			if n, err := e.db.PendingOutboxCount(); err == nil {
				e.metrics.SetOutboxPending(n)
			}
		}
	}
}
