package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/OldStager01/vm-autoscaler/internal/decision"
	"github.com/OldStager01/vm-autoscaler/internal/events"
	"github.com/OldStager01/vm-autoscaler/internal/features"
	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/internal/metrics"
	"github.com/OldStager01/vm-autoscaler/internal/predictor"
	"github.com/OldStager01/vm-autoscaler/internal/resilience"
	"github.com/OldStager01/vm-autoscaler/internal/scaler"
	"github.com/OldStager01/vm-autoscaler/internal/simulator"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type RunState string

const (
	StateIdle     RunState = "idle"
	StateRunning  RunState = "running"
	StateFinished RunState = "finished"
	StateFailed   RunState = "failed"
)

type Deps struct {
	// Store persists evaluations and events. Nil disables persistence.
	Store events.Store
	// Metrics defaults to the process-wide set.
	Metrics *metrics.Metrics
	// Model defaults to the HTTP model behind retry and a circuit breaker.
	Model predictor.Model
}

type Status struct {
	State      RunState          `json:"state"`
	SimTime    float64           `json:"sim_time"`
	RosterSize int               `json:"roster_size"`
	Pattern    string            `json:"pattern"`
	Model      string            `json:"model"`
	Circuit    string            `json:"circuit,omitempty"`
	Result     *simulator.Result `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Orchestrator wires the simulation, the decision engine and the event
// pipeline for one run.
type Orchestrator struct {
	config      *config.Config
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	publisher   *events.Publisher
	sim         *simulator.Simulation
	pattern     simulator.Pattern
	engine      *decision.Engine
	client      *predictor.Client
	model       predictor.Model
	metrics     *metrics.Metrics
	history     *history

	mu     sync.RWMutex
	state  RunState
	result *simulator.Result
	runErr error
}

func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	m := deps.Metrics
	if m == nil {
		m = metrics.Get()
	}

	eventBus := events.NewEventBus(cfg.Events.BufferSize)
	eventLogger := events.NewEventLogger(deps.Store, eventBus.SubscribeAll())
	publisher := events.NewPublisher(eventBus)

	model := deps.Model
	if model == nil {
		model = NewModel(cfg.Predictor, m)
	}
	client := predictor.NewClient(predictor.ClientConfig{
		Model:    model,
		Timeout:  cfg.Predictor.Timeout,
		Observer: m,
	})

	pattern := simulator.ParsePattern(cfg.Simulation.Pattern, cfg.Simulation.Seed)
	sim := simulator.New(SimulationConfig(cfg.Simulation, pattern))

	engineCfg, err := EngineConfig(cfg.Decision, cfg.Simulation)
	if err != nil {
		return nil, err
	}

	hist := newHistory(cfg.API.MaxLimit)
	engine := decision.NewEngine(engineCfg, sim.Datacenter(), client,
		decision.WithPublisher(publisher),
		decision.WithRecorder(&recorder{metrics: m, history: hist}),
		decision.WithFeatureBuilder(features.NewBuilder(features.Config{AvgTaskSizeMB: cfg.Predictor.AvgTaskSizeMB})),
	)

	clock := sim.Clock()
	sim.Datacenter().OnPlaced(func(vm models.VM) {
		publisher.VMPlaced(clock.Now(), &vm)
	})
	sim.AddListener(engine)

	return &Orchestrator{
		config:      cfg,
		eventBus:    eventBus,
		eventLogger: eventLogger,
		publisher:   publisher,
		sim:         sim,
		pattern:     pattern,
		engine:      engine,
		client:      client,
		model:       model,
		metrics:     m,
		history:     hist,
		state:       StateIdle,
	}, nil
}

// NewModel builds the HTTP predictor with retry and, when enabled, a
// circuit breaker whose state is exported as a metric.
func NewModel(cfg config.PredictorConfig, m *metrics.Metrics) predictor.Model {
	httpModel := predictor.NewHTTPModel(predictor.HTTPModelConfig{
		Endpoint:               cfg.Endpoint,
		Timeout:                cfg.Timeout,
		BandwidthNormalization: cfg.BandwidthNormalization,
	})
	return predictor.NewResilientModel(predictor.ResilientModelConfig{
		Model:            httpModel,
		MaxAttempts:      cfg.Retry.MaxAttempts,
		InitialInterval:  cfg.Retry.InitialInterval,
		MaxInterval:      cfg.Retry.MaxInterval,
		BreakerEnabled:   cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.CircuitBreaker.RecoveryTimeout,
		HalfOpenRequests: cfg.CircuitBreaker.HalfOpenRequests,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithComponent("predictor").Warnf("Circuit %s: %s -> %s", name, from, to)
			m.SetCircuitBreakerState(name, int(to))
		},
	})
}

func SimulationConfig(cfg config.SimulationConfig, pattern simulator.Pattern) simulator.Config {
	return simulator.Config{
		Hosts: cfg.Hosts,
		Host: simulator.HostSpec{
			PEs:     cfg.HostPEs,
			MIPS:    cfg.HostMIPS,
			RAM:     cfg.HostRAM,
			BW:      cfg.HostBW,
			Storage: cfg.HostStorage,
		},
		InitialVMs:         cfg.InitialVMs,
		VMTemplate:         templateFrom(cfg),
		Cloudlets:          cfg.Cloudlets,
		CloudletLength:     cfg.CloudletLength,
		CloudletPEs:        cfg.CloudletPEs,
		SubmissionSpacing:  cfg.SubmissionSpacing,
		SchedulingInterval: cfg.SchedulingInterval,
		TickStep:           cfg.TickStep,
		MaxTime:            cfg.MaxTime,
		TickDelay:          cfg.TickDelay,
		Pattern:            pattern,
	}
}

func templateFrom(cfg config.SimulationConfig) models.VM {
	return models.VM{
		PEs:  cfg.VMPEs,
		MIPS: cfg.VMMIPS,
		RAM:  cfg.VMRAM,
		BW:   cfg.VMBW,
		Size: cfg.VMSize,
	}
}

func EngineConfig(cfg config.DecisionConfig, sim config.SimulationConfig) (decision.Config, error) {
	cpuScaling, err := scaler.Parse(cfg.CPUScaling, float64(cfg.PEDelta), 0)
	if err != nil {
		return decision.Config{}, fmt.Errorf("cpu scaling: %w", err)
	}
	ramScaling, err := scaler.Parse(cfg.RAMScaling, cfg.RAMDelta, cfg.RAMScalingFactor)
	if err != nil {
		return decision.Config{}, fmt.Errorf("ram scaling: %w", err)
	}

	template := templateFrom(sim)
	return decision.Config{
		Interval:      cfg.Interval,
		Epsilon:       cfg.Epsilon,
		HorizontalCPU: cfg.HorizontalCPU,
		VerticalCPU:   cfg.VerticalCPU,
		VerticalRAM:   cfg.VerticalRAM,
		PEDelta:       cfg.PEDelta,
		RAMDelta:      cfg.RAMDelta,
		CPUScaling:    cpuScaling,
		RAMScaling:    ramScaling,
		Template:      &template,
	}, nil
}

// Run executes one simulation to completion. It can only be called once.
func (o *Orchestrator) Run(ctx context.Context) (*simulator.Result, error) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator already %s", o.state)
	}
	o.state = StateRunning
	o.mu.Unlock()

	logger.Infof("Orchestrator starting (model=%s, pattern=%s)", o.client.ModelName(), o.pattern.Name())
	o.eventLogger.Start()
	defer o.shutdownEvents()

	vms, err := o.sim.Setup()
	if err != nil {
		return nil, o.fail(err)
	}
	for _, vm := range vms {
		if err := o.engine.Register(vm); err != nil {
			return nil, o.fail(err)
		}
	}

	result, err := o.sim.Run(ctx)
	if err != nil {
		o.publisher.Error(o.sim.Clock().Now(), "Simulation aborted", err)
		o.mu.Lock()
		o.result = result
		o.mu.Unlock()
		return result, o.fail(err)
	}

	o.publisher.SimulationFinished(result.EndTime, result.Summary)

	o.mu.Lock()
	o.state = StateFinished
	o.result = result
	o.mu.Unlock()

	logger.Infof("Run complete: %d VMs, %d workloads finished, %d evaluations",
		result.Summary.TotalVMs, result.Summary.FinishedWorkloads, result.Evaluations)
	return result, nil
}

func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.state = StateFailed
	o.runErr = err
	o.mu.Unlock()
	logger.Errorf("Run failed: %v", err)
	return err
}

// shutdownEvents drains the event logger once the run is over. Subscribers
// such as websocket bridges see their channels closed.
func (o *Orchestrator) shutdownEvents() {
	o.eventBus.Close()
	<-o.eventLogger.Done()
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	st := Status{
		State:      o.state,
		SimTime:    o.sim.Clock().Now(),
		RosterSize: o.engine.RosterSize(),
		Pattern:    o.pattern.Name(),
		Model:      o.client.ModelName(),
		Result:     o.result,
	}
	if rm, ok := o.model.(*predictor.ResilientModel); ok {
		st.Circuit = rm.CircuitState().String()
	}
	if o.runErr != nil {
		st.Error = o.runErr.Error()
	}
	return st
}

// VMs returns the roster in order.
func (o *Orchestrator) VMs() []models.VM {
	roster := o.engine.Roster()
	out := make([]models.VM, 0, len(roster))
	for _, vm := range roster {
		out = append(out, *vm)
	}
	return out
}

func (o *Orchestrator) Hosts() []models.Host {
	return o.sim.Datacenter().Hosts()
}

func (o *Orchestrator) LastEvaluation() *models.Evaluation {
	return o.engine.LastEvaluation()
}

func (o *Orchestrator) RecentEvaluations(limit int) []*models.Evaluation {
	return o.history.recent(limit)
}

func (o *Orchestrator) RecentActions(limit int) []ActionRecord {
	return o.history.actions(limit)
}

func (o *Orchestrator) SubscribeEvents(eventTypes ...models.EventType) <-chan *models.Event {
	return o.eventBus.Subscribe(eventTypes...)
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}
