package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

type Config struct {
	Hosts          int
	Host           HostSpec
	InitialVMs     int
	VMTemplate     models.VM
	Cloudlets      int
	CloudletLength float64
	CloudletPEs    int
	// SubmissionSpacing delays cloudlet i by i*SubmissionSpacing seconds.
	SubmissionSpacing float64
	// SchedulingInterval is how often pending VMs are offered to placement.
	SchedulingInterval float64
	TickStep           float64
	MaxTime            float64
	// TickDelay paces the loop in wall-clock time.
	TickDelay time.Duration
	Pattern   Pattern
}

// TickListener is notified on every clock tick.
type TickListener interface {
	OnTick(ctx context.Context, t float64) (*models.Evaluation, error)
}

type Result struct {
	EndTime     float64             `json:"end_time"`
	Ticks       int                 `json:"ticks"`
	Evaluations int                 `json:"evaluations"`
	Completed   bool                `json:"completed"`
	Summary     models.FleetSummary `json:"summary"`
}

type Simulation struct {
	config     Config
	clock      *Clock
	datacenter *Datacenter
	listeners  []TickListener
	lastRetry  float64
}

func New(cfg Config) *Simulation {
	if cfg.Hosts == 0 {
		cfg.Hosts = 3
	}
	if cfg.Host.PEs == 0 {
		cfg.Host = HostSpec{PEs: 16, MIPS: 1000, RAM: 32000, BW: 10000, Storage: 1000000}
	}
	if cfg.VMTemplate.PEs == 0 {
		cfg.VMTemplate = models.VM{PEs: 2, MIPS: 1000, RAM: 2048, BW: 2000, Size: 10000}
	}
	if cfg.CloudletPEs == 0 {
		cfg.CloudletPEs = 2
	}
	if cfg.CloudletLength == 0 {
		cfg.CloudletLength = 5000
	}
	if cfg.SchedulingInterval == 0 {
		cfg.SchedulingInterval = 5
	}
	if cfg.MaxTime == 0 {
		cfg.MaxTime = 3600
	}

	return &Simulation{
		config:     cfg,
		clock:      NewClock(cfg.TickStep),
		datacenter: NewDatacenter(cfg.Hosts, cfg.Host, cfg.Pattern),
	}
}

func (s *Simulation) Datacenter() *Datacenter {
	return s.datacenter
}

func (s *Simulation) Clock() *Clock {
	return s.clock
}

func (s *Simulation) AddListener(l TickListener) {
	s.listeners = append(s.listeners, l)
}

// Setup submits the initial VMs and the cloudlets and returns the VMs in
// id order. Initial VMs that do not fit stay pending.
func (s *Simulation) Setup() ([]*models.VM, error) {
	vms := make([]*models.VM, 0, s.config.InitialVMs)
	for i := 0; i < s.config.InitialVMs; i++ {
		vm := s.config.VMTemplate.Clone(i)
		if err := s.datacenter.SubmitVM(vm); err != nil {
			logger.WithVM(i).Warnf("Initial VM not placed: %v", err)
		}
		placed, ok := s.datacenter.VM(i)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrVMNotFound, i)
		}
		vms = append(vms, placed)
	}

	for i := 0; i < s.config.Cloudlets; i++ {
		s.datacenter.SubmitCloudlet(Cloudlet{
			ID:       i,
			Length:   s.config.CloudletLength,
			PEs:      s.config.CloudletPEs,
			SubmitAt: float64(i) * s.config.SubmissionSpacing,
		})
	}

	logger.Infof("Simulation set up: %d hosts, %d VMs, %d cloudlets",
		s.config.Hosts, len(vms), s.config.Cloudlets)
	return vms, nil
}

// Run drives the clock until every cloudlet finishes, MaxTime is reached or
// ctx is cancelled. A listener error stops the run.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	var ticker *time.Ticker
	if s.config.TickDelay > 0 {
		ticker = time.NewTicker(s.config.TickDelay)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			s.finish(result)
			return result, err
		}

		now := s.clock.Now()
		if now-s.lastRetry >= s.config.SchedulingInterval {
			s.datacenter.RetryPending()
			s.lastRetry = now
		}
		s.datacenter.Step(now, s.clock.Step())
		result.Ticks++

		for _, l := range s.listeners {
			eval, err := l.OnTick(ctx, now)
			if err != nil {
				s.finish(result)
				return result, fmt.Errorf("tick %.2f: %w", now, err)
			}
			if eval != nil {
				result.Evaluations++
			}
		}

		if s.datacenter.AllFinished() {
			result.Completed = true
			break
		}
		if now >= s.config.MaxTime {
			logger.Warnf("Simulation stopped at max time %.0f with %d/%d cloudlets finished",
				s.config.MaxTime, s.datacenter.FinishedWorkloads(), s.config.Cloudlets)
			break
		}

		s.clock.Advance()
		if ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}

	s.finish(result)
	logger.Infof("Simulation finished at t=%.2f after %d ticks, %d evaluations",
		result.EndTime, result.Ticks, result.Evaluations)
	return result, nil
}

func (s *Simulation) finish(result *Result) {
	result.EndTime = s.clock.Now()
	vms := s.datacenter.VMs()
	result.Summary = models.FleetSummary{
		FinishedWorkloads: s.datacenter.FinishedWorkloads(),
		TotalVMs:          len(vms),
	}
	for i := range vms {
		if vms[i].Allocated() {
			result.Summary.AllocatedVMs++
		}
	}
}
