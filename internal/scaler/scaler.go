// Package scaler computes how much of a resource a vertical scaling
// request should add. It never mutates VMs or hosts.
package scaler

import (
	"fmt"
	"math"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Request describes one vertical scaling request. Host is nil when the VM
// has not been placed.
type Request struct {
	VM             *models.VM
	Host           *models.Host
	Kind           models.ResourceKind
	Capacity       float64
	Utilization    float64
	UpperThreshold float64
}

// ResourceScaling computes the amount of a resource to add for a request.
type ResourceScaling interface {
	AmountToScale(req Request) float64
}

// Func adapts a plain function to ResourceScaling.
type Func func(req Request) float64

func (f Func) AmountToScale(req Request) float64 {
	return f(req)
}

// Fixed always asks for the same absolute amount.
func Fixed(amount float64) ResourceScaling {
	return Func(func(Request) float64 { return amount })
}

// Instantaneous asks for enough capacity to bring utilization back down to
// the upper threshold in one step, rounded up to whole units.
func Instantaneous() ResourceScaling {
	return Func(func(req Request) float64 {
		if req.UpperThreshold <= 0 || req.Utilization <= req.UpperThreshold {
			return 0
		}
		target := req.Capacity * req.Utilization / req.UpperThreshold
		return math.Ceil(target - req.Capacity)
	})
}

// Gradual asks for a fraction of the current capacity.
func Gradual(factor float64) ResourceScaling {
	return Func(func(req Request) float64 {
		return req.Capacity * factor
	})
}

// Parse maps a policy name from configuration to a ResourceScaling.
func Parse(name string, amount, factor float64) (ResourceScaling, error) {
	switch name {
	case "", "fixed":
		return Fixed(amount), nil
	case "instantaneous":
		return Instantaneous(), nil
	case "gradual":
		return Gradual(factor), nil
	default:
		return nil, fmt.Errorf("unknown scaling policy %q", name)
	}
}
