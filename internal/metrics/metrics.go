// Package metrics provides Prometheus metrics for script execution.
package metrics

import (
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ScriptsTotal counts scripts run, labeled by backend ("memory",
	// "redis" or "mock").
	ScriptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptkv_scripts_total",
			Help: "Total number of scripts executed, by backend",
		},
		[]string{"backend"},
	)

	// ScriptDuration measures end-to-end script execution time.
	ScriptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptkv_script_duration_seconds",
			Help:    "Duration of script execution in seconds, by backend",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3.3s
		},
		[]string{"backend"},
	)

	// ScriptErrors counts failed executions, by backend. It does not
	// distinguish BuildError/CompileError/RuntimeError/PipelineError/
	// ServerError — the typed error still propagates to the caller, this
	// is success/failure bookkeeping only.
	ScriptErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptkv_script_errors_total",
			Help: "Total number of script execution errors, by backend",
		},
		[]string{"backend"},
	)

	// PipelineSize tracks how many statements are queued per committed
	// pipeline.
	PipelineSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scriptkv_pipeline_size",
			Help:    "Number of commands queued per pipeline commit",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
	)
)

// RecordScript records metrics for one script execution on the named
// backend.
func RecordScript(backend string, duration time.Duration, err error) {
	ScriptsTotal.WithLabelValues(backend).Inc()
	ScriptDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		ScriptErrors.WithLabelValues(backend).Inc()
	}
}

// Server represents a metrics HTTP server
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// CPU profile: curl http://host:port/debug/pprof/profile?seconds=30 > cpu.prof
	// Heap profile: curl http://host:port/debug/pprof/heap > heap.prof
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			println("Metrics server error:", err.Error())
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop() error {
	return s.server.Close()
}
