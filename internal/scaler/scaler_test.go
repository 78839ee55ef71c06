package scaler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/internal/scaler"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

func TestCapped_CPU(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
		host      *models.Host
		want      float64
	}{
		{name: "unplaced vm", requested: 1, host: nil, want: 0},
		{name: "host has room", requested: 1, host: &models.Host{FreePEs: 4}, want: 1},
		{name: "host full", requested: 1, host: &models.Host{FreePEs: 0}, want: 0},
		{name: "request above free", requested: 6, host: &models.Host{FreePEs: 2}, want: 2},
		{name: "negative free treated as zero", requested: 1, host: &models.Host{FreePEs: -3}, want: 0},
		{name: "negative request", requested: -2, host: &models.Host{FreePEs: 4}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capped := scaler.NewCapped(scaler.Fixed(tt.requested))

			got := capped.AmountToScale(scaler.Request{
				VM:   &models.VM{ID: 0},
				Host: tt.host,
				Kind: models.ResourceCPU,
			})

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapped_InvariantHoldsAcrossInputs(t *testing.T) {
	for requested := -2.0; requested <= 20; requested++ {
		for free := 0; free <= 16; free++ {
			host := &models.Host{FreePEs: free}
			got := scaler.NewCapped(scaler.Fixed(requested)).AmountToScale(scaler.Request{Host: host, Kind: models.ResourceCPU})

			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, float64(free))
		}
	}
}

func TestCapped_OtherResourcesPassThrough(t *testing.T) {
	capped := scaler.NewCapped(scaler.Fixed(512))

	for _, kind := range []models.ResourceKind{models.ResourceRAM, models.ResourceBW} {
		assert.Equal(t, 512.0, capped.AmountToScale(scaler.Request{Kind: kind}))
		assert.Equal(t, 512.0, capped.AmountToScale(scaler.Request{Kind: kind, Host: &models.Host{FreePEs: 0}}))
	}
}

func TestCapped_DoesNotMutate(t *testing.T) {
	host := &models.Host{ID: 1, TotalPEs: 16, FreePEs: 3}
	vm := &models.VM{ID: 0, PEs: 2}

	scaler.NewCapped(scaler.Fixed(1)).AmountToScale(scaler.Request{VM: vm, Host: host, Kind: models.ResourceCPU})

	assert.Equal(t, 3, host.FreePEs)
	assert.Equal(t, 2, vm.PEs)
}

func TestInstantaneous(t *testing.T) {
	inst := scaler.Instantaneous()

	assert.Equal(t, 0.0, inst.AmountToScale(scaler.Request{Capacity: 2, Utilization: 0.5, UpperThreshold: 0.75}))
	// 2 PEs at 0.9 against 0.75 needs 2.4 PEs, rounded up to one extra.
	assert.Equal(t, 1.0, inst.AmountToScale(scaler.Request{Capacity: 2, Utilization: 0.9, UpperThreshold: 0.75}))
	assert.Equal(t, 2.0, inst.AmountToScale(scaler.Request{Capacity: 4, Utilization: 1.0, UpperThreshold: 0.75}))
}

func TestGradual(t *testing.T) {
	assert.Equal(t, 512.0, scaler.Gradual(0.25).AmountToScale(scaler.Request{Capacity: 2048}))
}

func TestParse(t *testing.T) {
	fixed, err := scaler.Parse("fixed", 512, 0)
	require.NoError(t, err)
	assert.Equal(t, 512.0, fixed.AmountToScale(scaler.Request{}))

	gradual, err := scaler.Parse("gradual", 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1024.0, gradual.AmountToScale(scaler.Request{Capacity: 2048}))

	_, err = scaler.Parse("instantaneous", 0, 0)
	assert.NoError(t, err)

	_, err = scaler.Parse("shrink", 0, 0)
	assert.Error(t, err)
}
