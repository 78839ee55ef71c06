package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

const namespace = "autoscaler"

type Metrics struct {
	registry *prometheus.Registry

	ticksTotal        *prometheus.CounterVec
	predictionsTotal  *prometheus.CounterVec
	predictionLatency *prometheus.HistogramVec
	actionsTotal      *prometheus.CounterVec
	decisionLatency   prometheus.Histogram

	fleetVMs          prometheus.Gauge
	allocatedVMs      prometheus.Gauge
	finishedWorkloads prometheus.Gauge
	simTime           prometheus.Gauge

	circuitBreakerState *prometheus.GaugeVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics set.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New builds a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Decision ticks by outcome (accepted or rejected)",
		}, []string{"outcome"}),
		predictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by source (model or fallback)",
		}, []string{"source"}),
		predictionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent obtaining a prediction",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"source"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scaling_actions_total",
			Help:      "Scaling actions by kind and status",
		}, []string{"kind", "status"}),
		decisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Wall time spent evaluating an accepted tick",
			Buckets:   prometheus.DefBuckets,
		}),
		fleetVMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_vms",
			Help:      "VMs in the roster",
		}),
		allocatedVMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fleet_allocated_vms",
			Help:      "VMs placed on a host and not finished",
		}),
		finishedWorkloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "finished_workloads",
			Help:      "Workloads completed so far",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time_seconds",
			Help:      "Simulated time of the last accepted tick",
		}),
		circuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		m.ticksTotal,
		m.predictionsTotal,
		m.predictionLatency,
		m.actionsTotal,
		m.decisionLatency,
		m.fleetVMs,
		m.allocatedVMs,
		m.finishedWorkloads,
		m.simTime,
		m.circuitBreakerState,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncTick(accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.ticksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePrediction(source models.PredictionSource, latency time.Duration) {
	m.predictionsTotal.WithLabelValues(string(source)).Inc()
	m.predictionLatency.WithLabelValues(string(source)).Observe(latency.Seconds())
}

func (m *Metrics) IncScalingAction(kind models.ActionKind, status models.ScalingEventStatus) {
	m.actionsTotal.WithLabelValues(string(kind), string(status)).Inc()
}

// RecordEvaluation updates fleet gauges and action counters from one tick.
func (m *Metrics) RecordEvaluation(eval *models.Evaluation, took time.Duration) {
	m.decisionLatency.Observe(took.Seconds())
	m.simTime.Set(eval.Time)
	m.fleetVMs.Set(float64(eval.Summary.TotalVMs))
	m.allocatedVMs.Set(float64(eval.Summary.AllocatedVMs))
	m.finishedWorkloads.Set(float64(eval.Summary.FinishedWorkloads))
	for _, action := range eval.Actions {
		m.IncScalingAction(action.Kind, models.ActionStatus(action))
	}
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the registry until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	addr := ":" + strconv.Itoa(port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Prometheus metrics server listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Errorf("Prometheus server error: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
