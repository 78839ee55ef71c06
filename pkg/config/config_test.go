package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "vm-autoscaler", cfg.App.Name)
	assert.Equal(t, 5.0, cfg.Decision.Interval)
	assert.Equal(t, 1e-3, cfg.Decision.Epsilon)
	assert.Equal(t, 0.80, cfg.Decision.HorizontalCPU)
	assert.Equal(t, 0.75, cfg.Decision.VerticalCPU)
	assert.Equal(t, 0.75, cfg.Decision.VerticalRAM)
	assert.Equal(t, 512.0, cfg.Decision.RAMDelta)
	assert.Equal(t, 1, cfg.Decision.PEDelta)
	assert.Equal(t, 100.0, cfg.Predictor.BandwidthNormalization)
	assert.Equal(t, 2*time.Second, cfg.Predictor.Timeout)
	assert.Equal(t, 3, cfg.Simulation.Hosts)
	assert.Equal(t, 16, cfg.Simulation.HostPEs)
	assert.Equal(t, 30, cfg.Simulation.Cloudlets)
	assert.False(t, cfg.Database.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
decision:
  ram_delta: 1024
  horizontal_cpu: 0.9
predictor:
  bandwidth_normalization: 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("AUTOSCALER_DECISION_INTERVAL", "10")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1024.0, cfg.Decision.RAMDelta)
	assert.Equal(t, 0.9, cfg.Decision.HorizontalCPU)
	assert.Equal(t, 250.0, cfg.Predictor.BandwidthNormalization)
	assert.Equal(t, 10.0, cfg.Decision.Interval)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decision: [unclosed"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOSCALER_DECISION_RAM_DELTA=2048\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AUTOSCALER_DECISION_RAM_DELTA") })

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2048.0, cfg.Decision.RAMDelta)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr bool
	}{
		{
			name:   "valid defaults",
			modify: func(c *config.Config) {},
		},
		{
			name:    "threshold above one",
			modify:  func(c *config.Config) { c.Decision.HorizontalCPU = 1.5 },
			wantErr: true,
		},
		{
			name:    "zero interval",
			modify:  func(c *config.Config) { c.Decision.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "epsilon not below interval",
			modify:  func(c *config.Config) { c.Decision.Epsilon = 5 },
			wantErr: true,
		},
		{
			name:    "negative ram delta",
			modify:  func(c *config.Config) { c.Decision.RAMDelta = -1 },
			wantErr: true,
		},
		{
			name:    "zero bandwidth normalization",
			modify:  func(c *config.Config) { c.Predictor.BandwidthNormalization = 0 },
			wantErr: true,
		},
		{
			name:    "vm larger than host",
			modify:  func(c *config.Config) { c.Simulation.VMPEs = 32 },
			wantErr: true,
		},
		{
			name:    "unknown cpu scaling policy",
			modify:  func(c *config.Config) { c.Decision.CPUScaling = "gradual" },
			wantErr: true,
		},
		{
			name:   "gradual ram scaling",
			modify: func(c *config.Config) { c.Decision.RAMScaling = "gradual" },
		},
		{
			name:    "invalid mode",
			modify:  func(c *config.Config) { c.App.Mode = "staging" },
			wantErr: true,
		},
		{
			name: "default jwt secret in production",
			modify: func(c *config.Config) {
				c.App.Mode = "production"
			},
			wantErr: true,
		},
		{
			name: "database checks only when enabled",
			modify: func(c *config.Config) {
				c.Database.Host = ""
			},
		},
		{
			name: "enabled database needs host",
			modify: func(c *config.Config) {
				c.Database.Enabled = true
				c.Database.Host = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
