package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/internal/metrics"
	"github.com/OldStager01/vm-autoscaler/internal/orchestrator"
	"github.com/OldStager01/vm-autoscaler/pkg/config"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

// report is printed as YAML once the batch run completes.
type report struct {
	EndTime     float64             `yaml:"end_time"`
	Completed   bool                `yaml:"completed"`
	Evaluations int                 `yaml:"evaluations"`
	Fleet       models.FleetSummary `yaml:"fleet"`
	Actions     map[string]int      `yaml:"actions"`
	Fallbacks   int                 `yaml:"prediction_fallbacks"`
	VMs         []vmLine            `yaml:"vms"`
}

type vmLine struct {
	ID       int     `yaml:"id"`
	PEs      int     `yaml:"pes"`
	RAM      float64 `yaml:"ram"`
	HostID   *int    `yaml:"host_id,omitempty"`
	Finished bool    `yaml:"finished"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	pattern := flag.String("pattern", "", "override the workload pattern")
	endpoint := flag.String("predictor", "", "override the prediction endpoint")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *pattern != "" {
		cfg.Simulation.Pattern = *pattern
	}
	if *endpoint != "" {
		cfg.Predictor.Endpoint = *endpoint
	}
	cfg.Simulation.TickDelay = 0
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(*logLevel, "development")

	orch, err := orchestrator.New(cfg, orchestrator.Deps{Metrics: metrics.New()})
	if err != nil {
		return err
	}

	actions := make(map[string]int)
	fallbacks := 0
	stream := orch.SubscribeAllEvents()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range stream {
			switch ev.Type {
			case models.EventTypeVMAdded, models.EventTypeCPUGrown, models.EventTypeRAMGrown, models.EventTypeScalingFailed:
				actions[string(ev.Type)]++
			case models.EventTypePredictionFallback:
				fallbacks++
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := orch.Run(ctx)
	<-done
	if result == nil {
		return runErr
	}

	vms := orch.VMs()
	sort.Slice(vms, func(i, j int) bool { return vms[i].ID < vms[j].ID })

	out := report{
		EndTime:     result.EndTime,
		Completed:   result.Completed,
		Evaluations: result.Evaluations,
		Fleet:       result.Summary,
		Actions:     actions,
		Fallbacks:   fallbacks,
	}
	for _, vm := range vms {
		out.VMs = append(out.VMs, vmLine{ID: vm.ID, PEs: vm.PEs, RAM: vm.RAM, HostID: vm.HostID, Finished: vm.Finished})
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return runErr
}
