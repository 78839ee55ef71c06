// Package features derives the model input vector for a VM.
package features

import (
	"math"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// DefaultAvgTaskSizeMB stands in for the mean workload file size.
const DefaultAvgTaskSizeMB = 100.0

// FleetState is the fleet-wide input to feature derivation.
type FleetState struct {
	CompletedWorkloads int
}

// Builder derives features from VM identity, simulated time and fleet
// state only. The derivations are proxies for real telemetry and are
// stable for a given (vm id, time, fleet state).
type Builder struct {
	avgTaskSizeMB float64
}

type Config struct {
	AvgTaskSizeMB float64
}

func NewBuilder(cfg Config) *Builder {
	if cfg.AvgTaskSizeMB <= 0 {
		cfg.AvgTaskSizeMB = DefaultAvgTaskSizeMB
	}
	return &Builder{avgTaskSizeMB: cfg.AvgTaskSizeMB}
}

func (b *Builder) Build(vm *models.VM, simTime float64, fleet FleetState) models.FeatureVector {
	f := make(models.FeatureVector, models.FeatureCount)
	f[models.FeatureNumTasks] = float64(fleet.CompletedWorkloads)
	f[models.FeatureAvgTaskSizeMB] = b.avgTaskSizeMB
	f[models.FeatureVMType] = float64(vm.ID%3 + 1)
	f[models.FeatureNumUsers] = float64(50 * (vm.ID + 1))
	f[models.FeatureTimeOfDay] = TimeOfDay(simTime)
	f[models.FeaturePriority] = float64(1 + vm.ID%5)
	return f
}

// TimeOfDay buckets simulated seconds into 0..23.
func TimeOfDay(simTime float64) float64 {
	bucket := math.Mod(math.Floor(simTime), 24)
	if bucket < 0 {
		bucket += 24
	}
	return bucket
}
