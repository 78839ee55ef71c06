package decision_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/internal/decision"
	"github.com/OldStager01/vm-autoscaler/internal/events"
	"github.com/OldStager01/vm-autoscaler/internal/predictor"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type fakeDatacenter struct {
	vms       map[int]*models.VM
	hosts     map[int]*models.Host
	finished  int
	submitErr error
	submitted []int
	peGrowth  map[int]int
}

func newFakeDatacenter() *fakeDatacenter {
	return &fakeDatacenter{
		vms:      make(map[int]*models.VM),
		hosts:    make(map[int]*models.Host),
		peGrowth: make(map[int]int),
	}
}

func (d *fakeDatacenter) addHost(id, freePEs int) {
	d.hosts[id] = &models.Host{ID: id, TotalPEs: 16, FreePEs: freePEs, RAM: 32000, FreeRAM: 32000}
}

func (d *fakeDatacenter) addVM(id int, hostID *int) *models.VM {
	vm := decision.DefaultTemplate().Clone(id)
	vm.HostID = hostID
	d.vms[id] = vm
	return vm
}

func (d *fakeDatacenter) SubmitVM(vm *models.VM) error {
	d.vms[vm.ID] = vm
	d.submitted = append(d.submitted, vm.ID)
	return d.submitErr
}

func (d *fakeDatacenter) GrowPEs(vmID int, delta int) error {
	d.vms[vmID].PEs += delta
	d.peGrowth[vmID] += delta
	return nil
}

func (d *fakeDatacenter) GrowRAM(vmID int, delta float64) error {
	d.vms[vmID].RAM += delta
	return nil
}

func (d *fakeDatacenter) Host(id int) (*models.Host, bool) {
	h, ok := d.hosts[id]
	if !ok {
		return nil, false
	}
	cp := *h
	return &cp, true
}

func (d *fakeDatacenter) VM(id int) (*models.VM, bool) {
	vm, ok := d.vms[id]
	if !ok {
		return nil, false
	}
	cp := *vm
	return &cp, true
}

func (d *fakeDatacenter) FinishedWorkloads() int {
	return d.finished
}

type scriptedPredictor struct {
	byVM  map[int]models.Prediction
	calls []int
}

func (p *scriptedPredictor) Predict(_ context.Context, vmID int, simTime float64, fv models.FeatureVector) (models.Prediction, error) {
	if err := fv.Validate(); err != nil {
		return models.Prediction{}, err
	}
	p.calls = append(p.calls, vmID)
	pred, ok := p.byVM[vmID]
	if !ok {
		pred = models.Prediction{CPU: 0.1, RAM: 0.1, BW: 0.1, Source: models.SourceModel}
	}
	pred.VMID = vmID
	pred.Time = simTime
	return pred, nil
}

type recorder struct {
	mu       sync.Mutex
	accepted int
	rejected int
	evals    int
}

func (r *recorder) IncTick(accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if accepted {
		r.accepted++
	} else {
		r.rejected++
	}
}

func (r *recorder) RecordEvaluation(*models.Evaluation, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evals++
}

func intPtr(v int) *int { return &v }

func newEngine(t *testing.T, dc *fakeDatacenter, p decision.Predictor, opts ...decision.Option) *decision.Engine {
	t.Helper()
	e := decision.NewEngine(decision.Config{Interval: 5}, dc, p, opts...)
	for i := 0; i < len(dc.vms); i++ {
		require.NoError(t, e.Register(dc.vms[i]))
	}
	return e
}

func TestEngine_Accept(t *testing.T) {
	tests := []struct {
		name  string
		ticks []float64
		want  []bool
	}{
		{
			name:  "first tick always qualifies",
			ticks: []float64{0},
			want:  []bool{true},
		},
		{
			name:  "duplicate tick rejected",
			ticks: []float64{5, 5, 5.0001},
			want:  []bool{true, false, false},
		},
		{
			name:  "measured from last accepted tick",
			ticks: []float64{0, 3, 4.9995, 6, 9.9, 10.2},
			want:  []bool{true, false, true, false, false, true},
		},
		{
			name:  "jitter below epsilon tolerated",
			ticks: []float64{0, 4.9991, 9.9985},
			want:  []bool{true, true, true},
		},
		{
			name:  "jitter above epsilon rejected",
			ticks: []float64{0, 4.998},
			want:  []bool{true, false},
		},
		{
			name:  "sub interval clock granularity",
			ticks: []float64{0.1, 0.2, 0.3, 5.1, 5.2, 10.1},
			want:  []bool{true, false, false, true, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decision.NewEngine(decision.Config{Interval: 5, Epsilon: 1e-3}, newFakeDatacenter(), &scriptedPredictor{})
			got := make([]bool, 0, len(tt.ticks))
			for _, tick := range tt.ticks {
				got = append(got, e.Accept(tick))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_LastDecisionTimeStartsAtNegativeInfinity(t *testing.T) {
	e := decision.NewEngine(decision.Config{}, newFakeDatacenter(), &scriptedPredictor{})
	assert.True(t, math.IsInf(e.LastDecisionTime(), -1))

	require.True(t, e.Accept(-1e9))
	assert.Equal(t, -1e9, e.LastDecisionTime())
}

func TestEngine_RejectedTickDoesNotEvaluate(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addVM(0, nil)
	p := &scriptedPredictor{}
	rec := &recorder{}
	e := newEngine(t, dc, p, decision.WithRecorder(rec))

	eval, err := e.OnTick(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, eval)

	eval, err = e.OnTick(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, eval)

	assert.Equal(t, []int{0}, p.calls)
	assert.Equal(t, 1, rec.accepted)
	assert.Equal(t, 1, rec.rejected)
	assert.Equal(t, 1, rec.evals)
}

func TestEngine_HorizontalThresholdIsStrict(t *testing.T) {
	tests := []struct {
		cpu       float64
		wantAdded bool
	}{
		{cpu: 0.80, wantAdded: false},
		{cpu: 0.8000001, wantAdded: true},
	}

	for _, tt := range tests {
		dc := newFakeDatacenter()
		dc.addHost(0, 8)
		dc.addVM(0, intPtr(0))
		p := &scriptedPredictor{byVM: map[int]models.Prediction{
			0: {CPU: tt.cpu, RAM: 0.1, Source: models.SourceModel},
		}}
		e := newEngine(t, dc, p)

		eval, err := e.OnTick(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, tt.wantAdded, len(eval.ActionsOf(models.ActionAddVM)) == 1, "cpu=%v", tt.cpu)
		// both values exceed the vertical threshold
		assert.Len(t, eval.ActionsOf(models.ActionGrowCPU), 1)
	}
}

func TestEngine_FallbackForEveryVMWhenPredictorDown(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 10)
	dc.addVM(0, intPtr(0))
	dc.addVM(1, intPtr(0))

	stub := predictor.NewStubModel()
	stub.SetShouldFail(true, errors.New("connection refused"))
	client := predictor.NewClient(predictor.ClientConfig{Model: stub, Timeout: time.Second})

	bus := events.NewEventBus(10)
	defer bus.Close()
	fallbacks := bus.Subscribe(models.EventTypePredictionFallback)

	e := newEngine(t, dc, client, decision.WithPublisher(events.NewPublisher(bus)))

	var eval *models.Evaluation
	var err error
	require.NotPanics(t, func() {
		eval, err = e.OnTick(context.Background(), 5.0)
	})
	require.NoError(t, err)
	require.Len(t, eval.Predictions, 2)

	for i, p := range eval.Predictions {
		assert.Equal(t, i, p.VMID)
		assert.True(t, p.IsFallback())
		assert.Equal(t, predictor.Fallback(i, 5.0).CPU, p.CPU)
		for _, v := range []float64{p.CPU, p.RAM, p.BW} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, 2, eval.FallbackCount())
	assert.Len(t, fallbacks, 2)
}

func TestEngine_HorizontalScalingWithNoFreePEs(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 0)
	dc.addVM(0, intPtr(0))
	dc.addVM(1, intPtr(0))
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.85, RAM: 0.2, Source: models.SourceModel},
	}}
	e := newEngine(t, dc, p)

	eval, err := e.OnTick(context.Background(), 10)
	require.NoError(t, err)

	added := eval.ActionsOf(models.ActionAddVM)
	require.Len(t, added, 1)
	require.NotNil(t, added[0].NewVMID)
	assert.Equal(t, 2, *added[0].NewVMID)
	assert.Equal(t, []int{2}, dc.submitted)
	assert.Equal(t, 3, e.RosterSize())

	grown := eval.ActionsOf(models.ActionGrowCPU)
	require.Len(t, grown, 1)
	assert.Equal(t, 1.0, grown[0].Requested)
	assert.Equal(t, 0.0, grown[0].Applied)
	assert.Empty(t, dc.peGrowth)
	assert.Equal(t, 2, dc.vms[0].PEs)

	clone := dc.vms[2]
	want := decision.DefaultTemplate().Clone(2)
	if diff := cmp.Diff(want, clone); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_VerticalRAMIndependentOfCPU(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 4)
	dc.addVM(0, intPtr(0))
	dc.addVM(1, intPtr(0))
	dc.addVM(2, intPtr(0))
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		2: {CPU: 0.1, RAM: 0.76, Source: models.SourceModel},
	}}
	e := decision.NewEngine(decision.Config{Interval: 5, RAMDelta: 512}, dc, p)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Register(dc.vms[i]))
	}
	before := dc.vms[2].RAM

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, before+512, dc.vms[2].RAM)
	assert.Equal(t, 2048.0, dc.vms[0].RAM)
	require.Len(t, eval.Actions, 1)
	assert.Equal(t, models.ActionGrowRAM, eval.Actions[0].Kind)
	assert.Equal(t, 512.0, eval.Actions[0].Applied)
}

func TestEngine_ChecksAreNonExclusive(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 4)
	dc.addVM(0, intPtr(0))
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.95, RAM: 0.9, Source: models.SourceModel},
	}}
	e := newEngine(t, dc, p)

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)

	kinds := make([]models.ActionKind, 0, len(eval.Actions))
	for _, a := range eval.Actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []models.ActionKind{models.ActionAddVM, models.ActionGrowCPU, models.ActionGrowRAM}, kinds)
	assert.Equal(t, 3, dc.vms[0].PEs)
	assert.Equal(t, 2560.0, dc.vms[0].RAM)
}

func TestEngine_UnplacedVMGetsNoCPU(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addVM(0, nil)
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.78, RAM: 0.1, Source: models.SourceModel},
	}}
	e := newEngine(t, dc, p)

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, eval.Actions, 1)
	assert.Equal(t, 0.0, eval.Actions[0].Applied)
	assert.Equal(t, 2, dc.vms[0].PEs)
	assert.Equal(t, 0, eval.Summary.AllocatedVMs)
}

func TestEngine_SummaryCountsAllocatedVMs(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 4)
	dc.addVM(0, intPtr(0))
	dc.addVM(1, intPtr(0)).Finished = true
	dc.addVM(2, nil)
	dc.finished = 7
	e := newEngine(t, dc, &scriptedPredictor{})

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)

	want := models.FleetSummary{FinishedWorkloads: 7, TotalVMs: 3, AllocatedVMs: 1}
	if diff := cmp.Diff(want, eval.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, eval.Observations, 3)
	assert.Nil(t, eval.Observations[2].HostID)
	assert.Same(t, eval, e.LastEvaluation())
}

func TestEngine_NewVMsEvaluatedFromNextTick(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 4)
	dc.addVM(0, intPtr(0))
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.9, RAM: 0.1, Source: models.SourceModel},
	}}
	e := newEngine(t, dc, p)

	_, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, p.calls)

	_, err = e.OnTick(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, p.calls)
	assert.Equal(t, 3, e.RosterSize())
}

func TestEngine_PlacementFailureRecordedNotRetried(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 4)
	dc.addVM(0, intPtr(0))
	dc.submitErr = errors.New("no host can fit the vm")
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.9, RAM: 0.1, Source: models.SourceModel},
	}}
	e := newEngine(t, dc, p)

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)

	added := eval.ActionsOf(models.ActionAddVM)
	require.Len(t, added, 1)
	assert.True(t, added[0].Failed())
	assert.Equal(t, []int{1}, dc.submitted)
	assert.Equal(t, 2, e.RosterSize())
}

func TestEngine_ContractViolations(t *testing.T) {
	t.Run("duplicate register", func(t *testing.T) {
		dc := newFakeDatacenter()
		vm := dc.addVM(0, nil)
		e := decision.NewEngine(decision.Config{}, dc, &scriptedPredictor{})
		require.NoError(t, e.Register(vm))
		assert.ErrorIs(t, e.Register(vm), decision.ErrDuplicateVM)
	})

	t.Run("roster vm missing from datacenter", func(t *testing.T) {
		dc := newFakeDatacenter()
		e := decision.NewEngine(decision.Config{}, dc, &scriptedPredictor{})
		require.NoError(t, e.Register(&models.VM{ID: 0}))
		_, err := e.OnTick(context.Background(), 0)
		assert.ErrorIs(t, err, decision.ErrUnknownVM)
	})
}

func TestEngine_CloneIDsSkipRegisteredIDs(t *testing.T) {
	dc := newFakeDatacenter()
	dc.addHost(0, 8)
	dc.addVM(0, intPtr(0))
	dc.addVM(2, intPtr(0))
	p := &scriptedPredictor{byVM: map[int]models.Prediction{
		0: {CPU: 0.85, RAM: 0.1, Source: models.SourceModel},
		2: {CPU: 0.9, RAM: 0.1, Source: models.SourceModel},
	}}
	e := decision.NewEngine(decision.Config{Interval: 5}, dc, p)
	require.NoError(t, e.Register(dc.vms[0]))
	require.NoError(t, e.Register(dc.vms[2]))

	eval, err := e.OnTick(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, eval)

	assert.Equal(t, []int{0, 2}, p.calls)
	assert.Equal(t, []int{3, 4}, dc.submitted)
	assert.Equal(t, 4, e.RosterSize())

	added := eval.ActionsOf(models.ActionAddVM)
	require.Len(t, added, 2)
	assert.Equal(t, 3, *added[0].NewVMID)
	assert.Equal(t, 4, *added[1].NewVMID)
}
