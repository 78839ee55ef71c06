package predictor_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OldStager01/vm-autoscaler/internal/predictor"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

func TestFallback_Deterministic(t *testing.T) {
	for vmID := 0; vmID < 10; vmID++ {
		for _, simTime := range []float64{0, 5, 5.1, 17.25, 3600} {
			first := predictor.Fallback(vmID, simTime)
			second := predictor.Fallback(vmID, simTime)

			assert.Equal(t, first, second)
			assert.Equal(t, models.SourceFallback, first.Source)
			for _, v := range []float64{first.CPU, first.RAM, first.BW} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}

func TestFallback_ClosedForm(t *testing.T) {
	// vm 0 carries noise -0.01
	p := predictor.Fallback(0, 5)

	base := 5.0
	assert.InDelta(t, 0.3+0.25*math.Sin(base/2)-0.01, p.CPU, 1e-12)
	assert.InDelta(t, 0.4+0.2*math.Sin(base/3+1)-0.005, p.RAM, 1e-12)
	assert.InDelta(t, 0.2+0.15*math.Cos(base/2.5+2)+0.01/3, p.BW, 1e-12)
	assert.Equal(t, 0, p.VMID)
	assert.Equal(t, 5.0, p.Time)
}

func TestFallback_NoiseByVM(t *testing.T) {
	// Same base (time+id), different noise classes.
	a := predictor.Fallback(1, 5) // noise 0
	b := predictor.Fallback(2, 4) // noise +0.01

	assert.InDelta(t, 0.01, b.CPU-a.CPU, 1e-12)
	assert.InDelta(t, 0.005, b.RAM-a.RAM, 1e-12)
	assert.InDelta(t, -0.01/3, b.BW-a.BW, 1e-12)
}
