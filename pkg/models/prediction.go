package models

import (
	"errors"
	"fmt"
)

// FeatureCount is the arity the prediction model was trained on.
const FeatureCount = 6

// Positions within a FeatureVector.
const (
	FeatureNumTasks = iota
	FeatureAvgTaskSizeMB
	FeatureVMType
	FeatureNumUsers
	FeatureTimeOfDay
	FeaturePriority
)

var ErrFeatureArity = errors.New("feature vector has wrong arity")

// FeatureVector is ordered as the Feature* positions.
type FeatureVector []float64

func (f FeatureVector) Validate() error {
	if len(f) != FeatureCount {
		return fmt.Errorf("%w: got %d, want %d", ErrFeatureArity, len(f), FeatureCount)
	}
	return nil
}

type PredictionSource string

const (
	SourceModel    PredictionSource = "model"
	SourceFallback PredictionSource = "fallback"
)

// Prediction holds predicted utilization fractions in [0, 1].
type Prediction struct {
	VMID   int              `json:"vm_id"`
	Time   float64          `json:"time"`
	CPU    float64          `json:"cpu"`
	RAM    float64          `json:"ram"`
	BW     float64          `json:"bw"`
	Source PredictionSource `json:"source"`
	Cause  string           `json:"cause,omitempty"`
}

func (p *Prediction) IsFallback() bool {
	return p.Source == SourceFallback
}
