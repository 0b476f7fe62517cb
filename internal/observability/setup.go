package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_decisions_total",
			Help: "Total number of moderation decisions by outcome",
		},
		[]string{"decision"},
	)

	signalFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_signal_fires_total",
			Help: "Total number of triggered signals by name",
		},
		[]string{"signal"},
	)

	evaluateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_evaluate_duration_seconds",
			Help:    "Time spent evaluating messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(signalFiresTotal)
	prometheus.MustRegister(evaluateDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return nil
}

// RecordDecision counts one enforcement outcome.
func RecordDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

// RecordSignalFire counts one triggered signal.
func RecordSignalFire(signal string) {
	signalFiresTotal.WithLabelValues(signal).Inc()
}

// StartEvaluation returns a function to observe the evaluation duration.
func StartEvaluation() func(status string) {
	start := time.Now()
	return func(status string) {
		evaluateDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer exposes /metrics as a lifecycle component.
type MetricsServer struct {
	addr string

	mu      sync.Mutex
	started bool
	srv     *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{addr: addr}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.srv = &http.Server{Addr: m.addr, Handler: mux}
	m.started = true
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	return m.srv.Shutdown(ctx)
}
