package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadDotEnv loads environment overrides from .env files. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vm-autoscaler")
	}

	v.SetEnvPrefix("AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vm-autoscaler")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "10s")

	// Datacenter, VM template and workload
	v.SetDefault("simulation.hosts", 3)
	v.SetDefault("simulation.host_pes", 16)
	v.SetDefault("simulation.host_mips", 1000.0)
	v.SetDefault("simulation.host_ram", 32000.0)
	v.SetDefault("simulation.host_bw", 10000.0)
	v.SetDefault("simulation.host_storage", 1000000.0)
	v.SetDefault("simulation.initial_vms", 2)
	v.SetDefault("simulation.vm_pes", 2)
	v.SetDefault("simulation.vm_mips", 1000.0)
	v.SetDefault("simulation.vm_ram", 2048.0)
	v.SetDefault("simulation.vm_bw", 2000.0)
	v.SetDefault("simulation.vm_size", 10000.0)
	v.SetDefault("simulation.cloudlets", 30)
	v.SetDefault("simulation.cloudlet_length", 5000.0)
	v.SetDefault("simulation.cloudlet_pes", 2)
	v.SetDefault("simulation.submission_spacing", 0.5)
	v.SetDefault("simulation.scheduling_interval", 5.0)
	v.SetDefault("simulation.tick_step", 1.0)
	v.SetDefault("simulation.max_time", 3600.0)
	v.SetDefault("simulation.pattern", "sine")
	v.SetDefault("simulation.seed", 42)
	v.SetDefault("simulation.tick_delay", "0s")

	// Predictor
	v.SetDefault("predictor.endpoint", "http://127.0.0.1:5000/predict")
	v.SetDefault("predictor.timeout", "2s")
	v.SetDefault("predictor.bandwidth_normalization", 100.0)
	v.SetDefault("predictor.avg_task_size_mb", 100.0)
	v.SetDefault("predictor.retry.max_attempts", 2)
	v.SetDefault("predictor.retry.initial_interval", "100ms")
	v.SetDefault("predictor.retry.max_interval", "1s")
	v.SetDefault("predictor.circuit_breaker.enabled", true)
	v.SetDefault("predictor.circuit_breaker.failure_threshold", 5)
	v.SetDefault("predictor.circuit_breaker.recovery_timeout", "30s")
	v.SetDefault("predictor.circuit_breaker.half_open_requests", 1)

	// Decision policy
	v.SetDefault("decision.interval", 5.0)
	v.SetDefault("decision.epsilon", 1e-3)
	v.SetDefault("decision.horizontal_cpu", 0.80)
	v.SetDefault("decision.vertical_cpu", 0.75)
	v.SetDefault("decision.vertical_ram", 0.75)
	v.SetDefault("decision.pe_delta", 1)
	v.SetDefault("decision.ram_delta", 512.0)
	v.SetDefault("decision.cpu_scaling", "fixed")
	v.SetDefault("decision.ram_scaling", "fixed")
	v.SetDefault("decision.ram_scaling_factor", 0.25)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "autoscaler")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.ping_timeout", "5s")
	v.SetDefault("database.migration_timeout", "30s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.admin_username", "admin")
	v.SetDefault("api.admin_password_hash", "")
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)

	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)
	v.SetDefault("prometheus.path", "/metrics")

	v.SetDefault("events.buffer_size", 100)
}
