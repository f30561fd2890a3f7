// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "uls_ingress"

var (
	// DownloadBytesTotal tracks archive bytes received
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquire",
			Name:      "download_bytes_total",
			Help:      "Total number of archive bytes downloaded",
		},
	)

	// RecordsParsedTotal tracks parsed records by record type
	RecordsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parse",
			Name:      "records_total",
			Help:      "Total number of records parsed by record type",
		},
		[]string{"schema"},
	)

	// LicensesReconciledTotal tracks reconciliation outcomes
	LicensesReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "licenses_total",
			Help:      "Total number of header call signs by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	// LoadRecordsTotal tracks loader record outcomes
	LoadRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "records_total",
			Help:      "Total number of licenses offered to the store by result",
		},
		[]string{"result"},
	)

	// LoadBatchesTotal tracks loader batch outcomes
	LoadBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "batches_total",
			Help:      "Total number of batches written by result",
		},
		[]string{"result"},
	)

	// LoadBatchDuration tracks the time of a single batch write
	LoadBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch writes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// RunsTotal tracks pipeline runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)

	// RunDuration tracks end-to-end run duration
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	// JobRunsTotal tracks scheduled job invocations
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job invocations by job and status",
		},
		[]string{"job", "status"},
	)
)

// Outcome and result label values
const (
	ResultInserted = "inserted"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultSuccess  = "success"

	OutcomeEmitted   = "emitted"
	OutcomeExcluded  = "excluded"
	OutcomeUnmatched = "unmatched"

	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Server exposes the default registry over HTTP
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("metrics"),
	}
}

// Start serves in the background until Shutdown is called
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
