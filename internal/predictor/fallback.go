package predictor

import (
	"math"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Fallback is the closed-form prediction used when the model cannot answer.
// It depends only on simTime+vmID plus a per-VM noise of -0.01, 0 or +0.01,
// so repeated calls return identical values.
func Fallback(vmID int, simTime float64) models.Prediction {
	base := simTime + float64(vmID)
	noise := float64(vmID%3-1) * 0.01

	cpu := 0.3 + 0.25*math.Sin(base/2.0)
	ram := 0.4 + 0.2*math.Sin(base/3.0+1.0)
	bw := 0.2 + 0.15*math.Cos(base/2.5+2.0)

	return models.Prediction{
		VMID:   vmID,
		Time:   simTime,
		CPU:    models.Clamp01(cpu + noise),
		RAM:    models.Clamp01(ram + noise/2),
		BW:     models.Clamp01(bw - noise/3),
		Source: models.SourceFallback,
	}
}
