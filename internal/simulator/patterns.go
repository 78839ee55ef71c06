package simulator

import (
	"math"
	"math/rand"

	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// Pattern is the background load a VM sees at a simulated time, in [0, 1].
type Pattern interface {
	Level(simTime float64, vmID int) float64
	Name() string
}

func ParsePattern(name string, seed int64) Pattern {
	switch name {
	case "sine":
		return &SinePattern{Base: 0.5, Amplitude: 0.35, Period: 60}
	case "gradual_rise":
		return &GradualRisePattern{Start: 0.2, RatePerSecond: 0.005, Max: 0.95}
	case "spike":
		return &SpikePattern{Base: 0.3, Peak: 0.95, At: 30, Duration: 40, RampUp: 10}
	case "random":
		return NewRandomPattern(0.5, 0.3, seed)
	default:
		return &SteadyPattern{Value: 0.4}
	}
}

type SteadyPattern struct {
	Value float64
}

func (p *SteadyPattern) Level(float64, int) float64 {
	return models.Clamp01(p.Value)
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// SinePattern oscillates around Base. Each VM is phase shifted by its id.
type SinePattern struct {
	Base      float64
	Amplitude float64
	Period    float64
}

func (p *SinePattern) Level(simTime float64, vmID int) float64 {
	period := p.Period
	if period <= 0 {
		period = 60
	}
	phase := 2*math.Pi*simTime/period + float64(vmID)
	return models.Clamp01(p.Base + p.Amplitude*math.Sin(phase))
}

func (p *SinePattern) Name() string {
	return "sine"
}

type GradualRisePattern struct {
	Start         float64
	RatePerSecond float64
	Max           float64
}

func (p *GradualRisePattern) Level(simTime float64, _ int) float64 {
	return models.Clamp01(math.Min(p.Start+p.RatePerSecond*simTime, p.Max))
}

func (p *GradualRisePattern) Name() string {
	return "gradual_rise"
}

// SpikePattern ramps from Base to Peak at At, holds it, then drops back.
type SpikePattern struct {
	Base     float64
	Peak     float64
	At       float64
	Duration float64
	RampUp   float64
}

func (p *SpikePattern) Level(simTime float64, _ int) float64 {
	elapsed := simTime - p.At
	switch {
	case elapsed < 0 || elapsed > p.Duration:
		return models.Clamp01(p.Base)
	case p.RampUp > 0 && elapsed < p.RampUp:
		progress := elapsed / p.RampUp
		return models.Clamp01(p.Base + (p.Peak-p.Base)*progress)
	default:
		return models.Clamp01(p.Peak)
	}
}

func (p *SpikePattern) Name() string {
	return "spike"
}

// RandomPattern draws one jitter value per (second, vm) from a seeded
// source, so a run is reproducible.
type RandomPattern struct {
	base     float64
	variance float64
	seed     int64
}

func NewRandomPattern(base, variance float64, seed int64) *RandomPattern {
	return &RandomPattern{base: base, variance: variance, seed: seed}
}

func (p *RandomPattern) Level(simTime float64, vmID int) float64 {
	key := p.seed ^ int64(math.Floor(simTime))*7919 ^ int64(vmID)*104729
	r := rand.New(rand.NewSource(key))
	return models.Clamp01(p.base + (r.Float64()*2-1)*p.variance)
}

func (p *RandomPattern) Name() string {
	return "random"
}
