package config

import (
	"fmt"
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Predictor  PredictorConfig  `mapstructure:"predictor"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Database   DatabaseConfig   `mapstructure:"database"`
	API        APIConfig        `mapstructure:"api"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SimulationConfig describes the simulated datacenter, the VM template and
// the workload submitted to it.
type SimulationConfig struct {
	Hosts              int     `mapstructure:"hosts"`
	HostPEs            int     `mapstructure:"host_pes"`
	HostMIPS           float64 `mapstructure:"host_mips"`
	HostRAM            float64 `mapstructure:"host_ram"`
	HostBW             float64 `mapstructure:"host_bw"`
	HostStorage        float64 `mapstructure:"host_storage"`
	InitialVMs         int     `mapstructure:"initial_vms"`
	VMPEs              int     `mapstructure:"vm_pes"`
	VMMIPS             float64 `mapstructure:"vm_mips"`
	VMRAM              float64 `mapstructure:"vm_ram"`
	VMBW               float64 `mapstructure:"vm_bw"`
	VMSize             float64 `mapstructure:"vm_size"`
	Cloudlets          int     `mapstructure:"cloudlets"`
	CloudletLength     float64 `mapstructure:"cloudlet_length"`
	CloudletPEs        int     `mapstructure:"cloudlet_pes"`
	SubmissionSpacing  float64 `mapstructure:"submission_spacing"`
	SchedulingInterval float64 `mapstructure:"scheduling_interval"`
	TickStep           float64 `mapstructure:"tick_step"`
	MaxTime            float64 `mapstructure:"max_time"`
	Pattern            string  `mapstructure:"pattern"`
	Seed               int64   `mapstructure:"seed"`
	// TickDelay slows the simulation down to wall-clock pace for dashboards.
	TickDelay time.Duration `mapstructure:"tick_delay"`
}

type PredictorConfig struct {
	Endpoint               string               `mapstructure:"endpoint"`
	Timeout                time.Duration        `mapstructure:"timeout"`
	BandwidthNormalization float64              `mapstructure:"bandwidth_normalization"`
	AvgTaskSizeMB          float64              `mapstructure:"avg_task_size_mb"`
	Retry                  RetryConfig          `mapstructure:"retry"`
	CircuitBreaker         CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenRequests int           `mapstructure:"half_open_requests"`
}

// DecisionConfig holds the threshold policy. Thresholds are fractions.
type DecisionConfig struct {
	Interval      float64 `mapstructure:"interval"`
	Epsilon       float64 `mapstructure:"epsilon"`
	HorizontalCPU float64 `mapstructure:"horizontal_cpu"`
	VerticalCPU   float64 `mapstructure:"vertical_cpu"`
	VerticalRAM   float64 `mapstructure:"vertical_ram"`
	PEDelta       int     `mapstructure:"pe_delta"`
	RAMDelta      float64 `mapstructure:"ram_delta"`
	// CPUScaling is fixed or instantaneous; RAMScaling is fixed or gradual.
	CPUScaling       string  `mapstructure:"cpu_scaling"`
	RAMScaling       string  `mapstructure:"ram_scaling"`
	RAMScalingFactor float64 `mapstructure:"ram_scaling_factor"`
}

type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

type APIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	RateLimit         int           `mapstructure:"rate_limit"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTDuration       time.Duration `mapstructure:"jwt_duration"`
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	DefaultLimit      int           `mapstructure:"default_limit"`
	MaxLimit          int           `mapstructure:"max_limit"`
}

type WebSocketConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
