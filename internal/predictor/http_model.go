package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// StatusError is returned for non-200 answers.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// Temporary reports whether the status suggests a retry could succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type HTTPModel struct {
	client         *http.Client
	endpoint       string
	bandwidthScale float64
}

type HTTPModelConfig struct {
	Endpoint               string
	Timeout                time.Duration
	BandwidthNormalization float64
	Client                 *http.Client
}

func NewHTTPModel(cfg HTTPModelConfig) *HTTPModel {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.BandwidthNormalization <= 0 {
		cfg.BandwidthNormalization = DefaultBandwidthNormalization
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTPModel{
		client:         client,
		endpoint:       cfg.Endpoint,
		bandwidthScale: cfg.BandwidthNormalization,
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

func (m *HTTPModel) Name() string {
	return "http"
}

func (m *HTTPModel) Predict(ctx context.Context, features models.FeatureVector) (*models.Prediction, error) {
	payload, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode features: %v", ErrPredictionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrPredictionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logger.WithField("endpoint", m.endpoint).Debugf("Requesting prediction for features %v", []float64(features))

	resp, err := m.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrPredictionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %w", ErrPredictionFailed, &StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrPredictionFailed, err)
	}

	prediction, err := Parse(body, m.bandwidthScale)
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
