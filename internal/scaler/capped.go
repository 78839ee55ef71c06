package scaler

import (
	"math"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Capped clips CPU requests to the free processing elements of the VM's
// host. An unplaced VM gets 0. Other resource kinds pass through. The
// result is never negative.
type Capped struct {
	delegate ResourceScaling
}

func NewCapped(delegate ResourceScaling) *Capped {
	return &Capped{delegate: delegate}
}

func (c *Capped) AmountToScale(req Request) float64 {
	amount := c.delegate.AmountToScale(req)
	if math.IsNaN(amount) || amount < 0 {
		amount = 0
	}

	if req.Kind != models.ResourceCPU {
		return amount
	}
	if req.Host == nil {
		return 0
	}

	free := float64(req.Host.FreePEs)
	if free < 0 {
		free = 0
	}
	return math.Min(amount, free)
}
