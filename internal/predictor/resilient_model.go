package predictor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/internal/resilience"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// ResilientModel retries transient model failures with exponential backoff
// and stops calling the model while its circuit is open.
type ResilientModel struct {
	model           Model
	circuitBreaker  *resilience.CircuitBreaker
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
}

type ResilientModelConfig struct {
	Model            Model
	MaxAttempts      int
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	BreakerEnabled   bool
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenRequests int
	OnStateChange    func(name string, from, to resilience.State)
}

func NewResilientModel(cfg ResilientModelConfig) *ResilientModel {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Second
	}

	m := &ResilientModel{
		model:           cfg.Model,
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}

	if cfg.BreakerEnabled {
		m.circuitBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "predictor",
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  cfg.RecoveryTimeout,
			HalfOpenRequests: cfg.HalfOpenRequests,
			IsFailure: func(err error) bool {
				return err != nil && !errors.Is(err, context.Canceled)
			},
			OnStateChange: cfg.OnStateChange,
		})
	}

	return m
}

func (m *ResilientModel) Name() string {
	return "resilient-" + m.model.Name()
}

func (m *ResilientModel) Predict(ctx context.Context, features models.FeatureVector) (*models.Prediction, error) {
	if m.circuitBreaker == nil {
		return m.predictWithRetry(ctx, features)
	}

	var prediction *models.Prediction
	err := m.circuitBreaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		prediction, err = m.predictWithRetry(ctx, features)
		return err
	})
	if err != nil {
		return nil, err
	}
	return prediction, nil
}

func (m *ResilientModel) predictWithRetry(ctx context.Context, features models.FeatureVector) (*models.Prediction, error) {
	var prediction *models.Prediction
	attempt := 0

	operation := func() error {
		attempt++
		p, err := m.model.Predict(ctx, features)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		prediction = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"max":     m.maxAttempts,
			"wait":    wait.String(),
		}).Debugf("Prediction attempt failed: %v", err)
	}

	if err := backoff.RetryNotify(operation, m.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return prediction, nil
}

func (m *ResilientModel) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialInterval
	b.MaxInterval = m.maxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.maxAttempts-1)), ctx)
}

func (m *ResilientModel) CircuitState() resilience.State {
	if m.circuitBreaker == nil {
		return resilience.StateClosed
	}
	return m.circuitBreaker.State()
}

func (m *ResilientModel) ResetCircuit() {
	if m.circuitBreaker != nil {
		m.circuitBreaker.Reset()
	}
}
