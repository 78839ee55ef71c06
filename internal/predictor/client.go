package predictor

import (
	"context"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Observer is notified of every prediction the client hands out.
type Observer interface {
	ObservePrediction(source models.PredictionSource, latency time.Duration)
}

// Client wraps a Model so that callers always receive a prediction. Model
// failures of any kind are logged and replaced by Fallback.
type Client struct {
	model    Model
	timeout  time.Duration
	observer Observer
}

type ClientConfig struct {
	Model    Model
	Timeout  time.Duration
	Observer Observer
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Client{
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		observer: cfg.Observer,
	}
}

// Predict returns the model prediction for the VM at simTime, or the
// fallback when the model is unavailable. The only error it returns is a
// feature vector of the wrong arity.
func (c *Client) Predict(ctx context.Context, vmID int, simTime float64, features models.FeatureVector) (models.Prediction, error) {
	if err := features.Validate(); err != nil {
		return models.Prediction{}, err
	}

	start := time.Now()
	prediction, err := c.callModel(ctx, features)
	latency := time.Since(start)

	if err != nil {
		logger.WithVM(vmID).WithField("sim_time", simTime).
			Warnf("Model prediction failed, using fallback: %v", err)
		fallback := Fallback(vmID, simTime)
		fallback.Cause = err.Error()
		c.observe(models.SourceFallback, latency)
		return fallback, nil
	}

	prediction.VMID = vmID
	prediction.Time = simTime
	prediction.CPU = models.Clamp01(prediction.CPU)
	prediction.RAM = models.Clamp01(prediction.RAM)
	prediction.BW = models.Clamp01(prediction.BW)
	if prediction.Source == "" {
		prediction.Source = models.SourceModel
	}
	c.observe(prediction.Source, latency)
	return prediction, nil
}

func (c *Client) callModel(ctx context.Context, features models.FeatureVector) (models.Prediction, error) {
	if c.model == nil {
		return models.Prediction{}, ErrPredictionFailed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.model.Predict(ctx, features)
	if err != nil {
		return models.Prediction{}, err
	}
	if p == nil {
		return models.Prediction{}, ErrMalformedResponse
	}
	return *p, nil
}

func (c *Client) observe(source models.PredictionSource, latency time.Duration) {
	if c.observer != nil {
		c.observer.ObservePrediction(source, latency)
	}
}

func (c *Client) ModelName() string {
	if c.model == nil {
		return "none"
	}
	return c.model.Name()
}
