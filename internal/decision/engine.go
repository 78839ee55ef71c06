package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/events"
	"github.com/OldStager01/vm-autoscaler/internal/features"
	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/internal/scaler"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

var (
	ErrDuplicateVM = errors.New("vm id already in roster")
	ErrUnknownVM   = errors.New("vm in roster is unknown to the datacenter")
)

// Datacenter is the simulation-side bookkeeping the engine acts on.
type Datacenter interface {
	// SubmitVM hands a new VM to placement. The VM stays tracked even when
	// an error reports that it could not be placed.
	SubmitVM(vm *models.VM) error
	GrowPEs(vmID int, delta int) error
	GrowRAM(vmID int, delta float64) error
	Host(id int) (*models.Host, bool)
	VM(id int) (*models.VM, bool)
	FinishedWorkloads() int
}

// Predictor never fails on model trouble; an error is a contract violation.
type Predictor interface {
	Predict(ctx context.Context, vmID int, simTime float64, features models.FeatureVector) (models.Prediction, error)
}

// Recorder receives tick and evaluation figures, usually the metrics set.
type Recorder interface {
	IncTick(accepted bool)
	RecordEvaluation(eval *models.Evaluation, took time.Duration)
}

// Config holds the decision interval and thresholds. Zero values take defaults in NewEngine.
type Config struct {
	Interval      float64
	Epsilon       float64
	HorizontalCPU float64
	VerticalCPU   float64
	VerticalRAM   float64
	PEDelta       int
	RAMDelta      float64
	// CPUScaling and RAMScaling default to fixed PEDelta and RAMDelta.
	CPUScaling scaler.ResourceScaling
	RAMScaling scaler.ResourceScaling
	// Template is cloned for every horizontally added VM.
	Template *models.VM
}

// DefaultTemplate is the VM shape used for horizontal clones.
func DefaultTemplate() *models.VM {
	return &models.VM{
		PEs:  2,
		MIPS: 1000,
		RAM:  2048,
		BW:   2000,
		Size: 10000,
	}
}

// Engine runs the per-tick predict and scale loop over a roster of VMs.
type Engine struct {
	config     Config
	datacenter Datacenter
	predictor  Predictor
	features   *features.Builder
	cpuScaler  scaler.ResourceScaling
	ramScaler  scaler.ResourceScaling
	publisher  *events.Publisher
	recorder   Recorder

	lastDecisionTime float64
	roster           []int
	inRoster         map[int]bool
	nextID           int
	lastEval         *models.Evaluation
	mu               sync.RWMutex
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithPublisher emits scaling and evaluation events through p.
func WithPublisher(p *events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRecorder reports ticks and evaluations to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithFeatureBuilder replaces the default feature builder.
func WithFeatureBuilder(b *features.Builder) Option {
	return func(e *Engine) { e.features = b }
}

// NewEngine creates an engine with defaults applied to cfg.
func NewEngine(cfg Config, dc Datacenter, predictor Predictor, opts ...Option) *Engine {
	if cfg.Interval == 0 {
		cfg.Interval = 5.0
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-3
	}
	if cfg.HorizontalCPU == 0 {
		cfg.HorizontalCPU = 0.80
	}
	if cfg.VerticalCPU == 0 {
		cfg.VerticalCPU = 0.75
	}
	if cfg.VerticalRAM == 0 {
		cfg.VerticalRAM = 0.75
	}
	if cfg.PEDelta == 0 {
		cfg.PEDelta = 1
	}
	if cfg.RAMDelta == 0 {
		cfg.RAMDelta = 512
	}
	if cfg.CPUScaling == nil {
		cfg.CPUScaling = scaler.Fixed(float64(cfg.PEDelta))
	}
	if cfg.RAMScaling == nil {
		cfg.RAMScaling = scaler.Fixed(cfg.RAMDelta)
	}
	if cfg.Template == nil {
		cfg.Template = DefaultTemplate()
	}

	e := &Engine{
		config:           cfg,
		datacenter:       dc,
		predictor:        predictor,
		features:         features.NewBuilder(features.Config{}),
		cpuScaler:        scaler.NewCapped(cfg.CPUScaling),
		ramScaler:        scaler.NewCapped(cfg.RAMScaling),
		lastDecisionTime: math.Inf(-1),
		inRoster:         make(map[int]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends a VM that was already submitted to the datacenter.
func (e *Engine) Register(vm *models.VM) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerLocked(vm.ID)
}

func (e *Engine) registerLocked(id int) error {
	if e.inRoster[id] {
		return fmt.Errorf("%w: %d", ErrDuplicateVM, id)
	}
	e.inRoster[id] = true
	e.roster = append(e.roster, id)
	if id >= e.nextID {
		e.nextID = id + 1
	}
	return nil
}

// Accept applies the interval guard and, when the tick qualifies, records
// it as the last decision time.
func (e *Engine) Accept(t float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acceptLocked(t)
}

func (e *Engine) acceptLocked(t float64) bool {
	if t-e.lastDecisionTime < e.config.Interval-e.config.Epsilon {
		return false
	}
	e.lastDecisionTime = t
	return true
}

func (e *Engine) LastDecisionTime() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDecisionTime
}

// OnTick evaluates the fleet when t passes the interval guard. Rejected
// ticks return a nil evaluation. VMs are evaluated in roster order; VMs
// added during the tick are evaluated from the next tick on.
func (e *Engine) OnTick(ctx context.Context, t float64) (*models.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.acceptLocked(t) {
		e.incTick(false)
		return nil, nil
	}
	e.incTick(true)
	start := time.Now()

	eval := models.NewEvaluation(t)
	ctx = logger.WithTraceID(ctx, eval.ID)
	publisher := e.publisher
	if publisher != nil {
		publisher = publisher.WithTraceID(eval.ID)
	}

	vms, err := e.snapshotLocked()
	if err != nil {
		return nil, err
	}

	eval.Summary = e.summarize(vms)
	logger.WithContext(ctx).WithField("sim_time", t).Infof(
		"Fleet: finished=%d total=%d allocated=%d",
		eval.Summary.FinishedWorkloads, eval.Summary.TotalVMs, eval.Summary.AllocatedVMs,
	)

	for _, vm := range vms {
		obs := models.VMObservation{VMID: vm.ID, CPUUtil: vm.CPUUtil, RAMUtil: vm.RAMUtil, HostID: vm.HostID}
		eval.Observations = append(eval.Observations, obs)

		host := "none"
		if vm.HostID != nil {
			host = fmt.Sprintf("%d", *vm.HostID)
		}
		logger.WithVM(vm.ID).WithField("sim_time", t).Infof(
			"Observed cpu=%.2f ram=%.2f host=%s", vm.CPUUtil, vm.RAMUtil, host,
		)
	}

	fleet := features.FleetState{CompletedWorkloads: eval.Summary.FinishedWorkloads}
	for _, vm := range vms {
		fv := e.features.Build(vm, t, fleet)
		prediction, err := e.predictor.Predict(ctx, vm.ID, t, fv)
		if err != nil {
			return nil, fmt.Errorf("predict vm %d: %w", vm.ID, err)
		}
		eval.Predictions = append(eval.Predictions, prediction)
		if prediction.IsFallback() {
			publisher.PredictionFallback(prediction)
		}

		actions, err := e.applyPolicyLocked(vm, prediction)
		if err != nil {
			return nil, err
		}
		for _, action := range actions {
			publisher.ScalingAction(t, action)
		}
		eval.Actions = append(eval.Actions, actions...)
	}

	e.lastEval = eval
	if e.recorder != nil {
		e.recorder.RecordEvaluation(eval, time.Since(start))
	}
	publisher.TickEvaluated(eval)
	return eval, nil
}

func (e *Engine) incTick(accepted bool) {
	if e.recorder != nil {
		e.recorder.IncTick(accepted)
	}
}

func (e *Engine) snapshotLocked() ([]*models.VM, error) {
	vms := make([]*models.VM, 0, len(e.roster))
	for _, id := range e.roster {
		vm, ok := e.datacenter.VM(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownVM, id)
		}
		vms = append(vms, vm)
	}
	return vms, nil
}

func (e *Engine) summarize(vms []*models.VM) models.FleetSummary {
	summary := models.FleetSummary{
		FinishedWorkloads: e.datacenter.FinishedWorkloads(),
		TotalVMs:          len(vms),
	}
	for _, vm := range vms {
		if vm.Allocated() {
			summary.AllocatedVMs++
		}
	}
	return summary
}

// applyPolicyLocked runs the three threshold checks for one VM. They are
// independent of each other and evaluated in a fixed order.
func (e *Engine) applyPolicyLocked(vm *models.VM, p models.Prediction) ([]models.ScalingAction, error) {
	var actions []models.ScalingAction

	if p.CPU > e.config.HorizontalCPU {
		action, err := e.addVMLocked(vm, p)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if p.CPU > e.config.VerticalCPU {
		actions = append(actions, e.growCPU(vm, p))
	}
	if p.RAM > e.config.VerticalRAM {
		actions = append(actions, e.growRAM(vm, p))
	}
	return actions, nil
}

func (e *Engine) addVMLocked(vm *models.VM, p models.Prediction) (models.ScalingAction, error) {
	clone := e.config.Template.Clone(e.nextID)
	if err := e.registerLocked(clone.ID); err != nil {
		return models.ScalingAction{}, err
	}

	newID := clone.ID
	action := models.ScalingAction{
		Kind:      models.ActionAddVM,
		VMID:      vm.ID,
		NewVMID:   &newID,
		Predicted: p.CPU,
		Threshold: e.config.HorizontalCPU,
		Requested: 1,
		Applied:   1,
	}

	if err := e.datacenter.SubmitVM(clone); err != nil {
		action.Applied = 0
		action.Error = err.Error()
		logger.WithVM(vm.ID).Warnf("VM %d submitted but not placed: %v", newID, err)
		return action, nil
	}

	logger.WithVM(vm.ID).Infof("Horizontal scaling: predicted cpu %.2f > %.2f, added VM %d",
		p.CPU, e.config.HorizontalCPU, newID)
	return action, nil
}

func (e *Engine) hostOf(vm *models.VM) *models.Host {
	if vm.HostID == nil {
		return nil
	}
	host, ok := e.datacenter.Host(*vm.HostID)
	if !ok {
		return nil
	}
	return host
}

func (e *Engine) growCPU(vm *models.VM, p models.Prediction) models.ScalingAction {
	req := scaler.Request{
		VM:             vm,
		Host:           e.hostOf(vm),
		Kind:           models.ResourceCPU,
		Capacity:       float64(vm.PEs),
		Utilization:    p.CPU,
		UpperThreshold: e.config.VerticalCPU,
	}
	requested := e.config.CPUScaling.AmountToScale(req)
	pes := int(math.Floor(e.cpuScaler.AmountToScale(req)))

	action := models.ScalingAction{
		Kind:      models.ActionGrowCPU,
		VMID:      vm.ID,
		Predicted: p.CPU,
		Threshold: e.config.VerticalCPU,
		Requested: requested,
		Applied:   float64(pes),
	}
	if pes <= 0 {
		action.Applied = 0
		logger.WithVM(vm.ID).Infof("Vertical CPU scaling clamped to 0 (requested %.0f PE)", requested)
		return action
	}

	if err := e.datacenter.GrowPEs(vm.ID, pes); err != nil {
		action.Applied = 0
		action.Error = err.Error()
		logger.WithVM(vm.ID).Warnf("Vertical CPU scaling failed: %v", err)
		return action
	}
	logger.WithVM(vm.ID).Infof("Vertical CPU scaling: +%d PE", pes)
	return action
}

func (e *Engine) growRAM(vm *models.VM, p models.Prediction) models.ScalingAction {
	req := scaler.Request{
		VM:             vm,
		Host:           e.hostOf(vm),
		Kind:           models.ResourceRAM,
		Capacity:       vm.RAM,
		Utilization:    p.RAM,
		UpperThreshold: e.config.VerticalRAM,
	}
	requested := e.config.RAMScaling.AmountToScale(req)
	amount := e.ramScaler.AmountToScale(req)

	action := models.ScalingAction{
		Kind:      models.ActionGrowRAM,
		VMID:      vm.ID,
		Predicted: p.RAM,
		Threshold: e.config.VerticalRAM,
		Requested: requested,
		Applied:   amount,
	}
	if amount <= 0 {
		return action
	}

	if err := e.datacenter.GrowRAM(vm.ID, amount); err != nil {
		action.Applied = 0
		action.Error = err.Error()
		logger.WithVM(vm.ID).Warnf("Vertical RAM scaling failed: %v", err)
		return action
	}
	logger.WithVM(vm.ID).Infof("Vertical RAM scaling: +%.0f", amount)
	return action
}

// Roster returns the current VMs in roster order.
func (e *Engine) Roster() []*models.VM {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vms := make([]*models.VM, 0, len(e.roster))
	for _, id := range e.roster {
		if vm, ok := e.datacenter.VM(id); ok {
			vms = append(vms, vm)
		}
	}
	return vms
}

func (e *Engine) RosterSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.roster)
}

func (e *Engine) LastEvaluation() *models.Evaluation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastEval
}

func (e *Engine) Config() Config {
	return e.config
}
