package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/storage/diskmanager"
	"go.uber.org/zap"
)

// OpsServer is the operational HTTP surface: Prometheus metrics, liveness,
// readiness gated on disk headroom, and a JSON stats snapshot. It serves
// operators only; there is no data-path API here.
type OpsServer struct {
	srv     *http.Server
	disk    *diskmanager.DiskManager
	metrics *metrics.Metrics
	stats   func() any
	logger  *zap.Logger
	done    chan struct{}
}

// OpsConfig configures the operational endpoint.
type OpsConfig struct {
	Port        int
	MetricsPath string
}

// NewOpsServer builds the server. stats may be nil, in which case /stats
// returns an empty object.
func NewOpsServer(cfg *OpsConfig, gatherer prometheus.Gatherer, disk *diskmanager.DiskManager, m *metrics.Metrics, stats func() any, logger *zap.Logger) *OpsServer {
	s := &OpsServer{
		disk:    disk,
		metrics: m,
		stats:   stats,
		logger:  logger,
		done:    make(chan struct{}),
	}

	path := cfg.MetricsPath
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving and kicks off the system-gauge refresh loop.
func (s *OpsServer) Start() {
	s.logger.Info("Ops server listening", zap.String("addr", s.srv.Addr))

	go s.refreshLoop()
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Ops server failed", zap.Error(err))
		}
	}()
}

// Stop drains in-flight requests and stops the gauge refresh loop.
func (s *OpsServer) Stop() error {
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	s.logger.Info("Ops server stopped")
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readyResponse struct {
	Status           string  `json:"status"`
	Reason           string  `json:"reason,omitempty"`
	DiskUsagePercent float64 `json:"disk_usage_percent"`
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports not-ready while the disk manager considers the data
// filesystem full, so orchestrators route writes away before they fail.
func (s *OpsServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	usage := s.disk.GetUsage()
	if usage.IsFull {
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{
			Status:           "not_ready",
			Reason:           "disk_full",
			DiskUsagePercent: usage.UsagePercent,
		})
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{
		Status:           "ready",
		DiskUsagePercent: usage.UsagePercent,
	})
}

func (s *OpsServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *OpsServer) refreshLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshGauges()
		case <-s.done:
			return
		}
	}
}

func (s *OpsServer) refreshGauges() {
	usage := s.disk.GetUsage()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.metrics.UpdateSystemStats(usage.UsagePercent, usage.AvailableBytes, mem.Alloc, runtime.NumGoroutine())
}
