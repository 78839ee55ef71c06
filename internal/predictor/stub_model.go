package predictor

import (
	"context"
	"sync"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// StubModel answers with configured predictions. It keys per-VM answers on
// the VM type and user-count features, which identify the VM.
type StubModel struct {
	mu           sync.Mutex
	defaultValue *models.Prediction
	byVM         map[int]models.Prediction
	shouldFail   bool
	failureError error
	calls        int
}

func NewStubModel() *StubModel {
	return &StubModel{byVM: make(map[int]models.Prediction)}
}

func (m *StubModel) Name() string {
	return "stub"
}

// SetDefault sets the answer for VMs without a dedicated prediction.
func (m *StubModel) SetDefault(cpu, ram, bw float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultValue = &models.Prediction{CPU: cpu, RAM: ram, BW: bw, Source: models.SourceModel}
}

func (m *StubModel) SetForVM(vmID int, cpu, ram, bw float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byVM[vmID] = models.Prediction{CPU: cpu, RAM: ram, BW: bw, Source: models.SourceModel}
}

func (m *StubModel) SetShouldFail(shouldFail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
	m.failureError = err
}

func (m *StubModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *StubModel) Predict(ctx context.Context, features models.FeatureVector) (*models.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.shouldFail {
		if m.failureError != nil {
			return nil, m.failureError
		}
		return nil, ErrPredictionFailed
	}

	if vmID, ok := VMIDFromFeatures(features); ok {
		if p, ok := m.byVM[vmID]; ok {
			return &p, nil
		}
	}
	if m.defaultValue == nil {
		return nil, ErrPredictionFailed
	}
	p := *m.defaultValue
	return &p, nil
}

// VMIDFromFeatures recovers the VM id from the user-count feature, which is
// 50 * (id + 1).
func VMIDFromFeatures(features models.FeatureVector) (int, bool) {
	if len(features) != models.FeatureCount {
		return 0, false
	}
	users := features[models.FeatureNumUsers]
	if users < 50 {
		return 0, false
	}
	return int(users/50) - 1, true
}
