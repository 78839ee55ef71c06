package config

import (
	"errors"
	"fmt"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Simulation validation
	if c.Simulation.Hosts <= 0 {
		errs = append(errs, errors.New("simulation.hosts must be positive"))
	}
	if c.Simulation.HostPEs <= 0 {
		errs = append(errs, errors.New("simulation.host_pes must be positive"))
	}
	if c.Simulation.VMPEs <= 0 || c.Simulation.VMPEs > c.Simulation.HostPEs {
		errs = append(errs, errors.New("simulation.vm_pes must be between 1 and host_pes"))
	}
	if c.Simulation.InitialVMs < 0 {
		errs = append(errs, errors.New("simulation.initial_vms must not be negative"))
	}
	if c.Simulation.TickStep <= 0 {
		errs = append(errs, errors.New("simulation.tick_step must be positive"))
	}
	if c.Simulation.MaxTime <= 0 {
		errs = append(errs, errors.New("simulation.max_time must be positive"))
	}

	// Predictor validation
	if c.Predictor.Endpoint == "" {
		errs = append(errs, errors.New("predictor.endpoint is required"))
	}
	if c.Predictor.Timeout <= 0 {
		errs = append(errs, errors.New("predictor.timeout must be positive"))
	}
	if c.Predictor.BandwidthNormalization <= 0 {
		errs = append(errs, errors.New("predictor.bandwidth_normalization must be positive"))
	}
	if c.Predictor.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("predictor.retry.max_attempts must be at least 1"))
	}

	// Decision validation
	if c.Decision.Interval <= 0 {
		errs = append(errs, errors.New("decision.interval must be positive"))
	}
	if c.Decision.Epsilon < 0 || c.Decision.Epsilon >= c.Decision.Interval {
		errs = append(errs, errors.New("decision.epsilon must be in [0, interval)"))
	}
	for name, v := range map[string]float64{
		"decision.horizontal_cpu": c.Decision.HorizontalCPU,
		"decision.vertical_cpu":   c.Decision.VerticalCPU,
		"decision.vertical_ram":   c.Decision.VerticalRAM,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1]", name))
		}
	}
	if c.Decision.PEDelta < 0 {
		errs = append(errs, errors.New("decision.pe_delta must not be negative"))
	}
	if c.Decision.RAMDelta < 0 {
		errs = append(errs, errors.New("decision.ram_delta must not be negative"))
	}

	if c.Decision.CPUScaling != "fixed" && c.Decision.CPUScaling != "instantaneous" {
		errs = append(errs, errors.New("decision.cpu_scaling must be one of: fixed, instantaneous"))
	}
	if c.Decision.RAMScaling != "fixed" && c.Decision.RAMScaling != "gradual" {
		errs = append(errs, errors.New("decision.ram_scaling must be one of: fixed, gradual"))
	}
	if c.Decision.RAMScaling == "gradual" && c.Decision.RAMScalingFactor <= 0 {
		errs = append(errs, errors.New("decision.ram_scaling_factor must be positive"))
	}

	// Database validation
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			errs = append(errs, errors.New("api.port must be between 1 and 65535"))
		}
		if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
			errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
		}
	}

	if c.Prometheus.Enabled && (c.Prometheus.Port <= 0 || c.Prometheus.Port > 65535) {
		errs = append(errs, errors.New("prometheus.port must be between 1 and 65535"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
