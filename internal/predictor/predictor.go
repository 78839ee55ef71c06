// Package predictor obtains utilization predictions for VMs from an external
// model and degrades to a deterministic heuristic when the model is unavailable.
package predictor

import (
	"context"
	"errors"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

var (
	ErrPredictionFailed  = errors.New("prediction failed")
	ErrTimeout           = errors.New("prediction timeout")
	ErrMalformedResponse = errors.New("malformed prediction response")
)

// Model is a prediction backend. Implementations return normalized
// fractions; any error sends the caller to the fallback.
type Model interface {
	Predict(ctx context.Context, features models.FeatureVector) (*models.Prediction, error)
	Name() string
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return errors.Is(err, ErrPredictionFailed) || errors.Is(err, ErrTimeout)
}
