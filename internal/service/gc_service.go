package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/util/workerpool"
	"go.uber.org/zap"
)

// GCService runs retention enforcement in the background: on every tick it
// schedules a purge pass that retires expired dropped tables and prunes
// chain history past each table's window. Purge work never runs on the
// read or write path.
type GCService struct {
	config   *GCConfig
	catalog  *CatalogService
	pool     *workerpool.Pool
	logger   *zap.Logger
	metrics  *metrics.Metrics
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	runSeq   int64
}

// GCConfig holds garbage collection configuration
type GCConfig struct {
	Interval   time.Duration
	MaxWorkers int
	QueueSize  int
}

// NewGCService creates a new garbage collection service
func NewGCService(cfg *GCConfig, catalog *CatalogService, logger *zap.Logger, m *metrics.Metrics) *GCService {
	pool := workerpool.New("gc", cfg.MaxWorkers, cfg.QueueSize, logger)
	return &GCService{
		config:   cfg,
		catalog:  catalog,
		pool:     pool,
		logger:   logger,
		metrics:  m,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic purge scheduler
func (s *GCService) Start() {
	s.wg.Add(1)
	go s.scheduler()
	s.logger.Info("GC service started",
		zap.Duration("interval", s.config.Interval))
}

func (s *GCService) scheduler() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.schedulePurge()
		case <-s.stopChan:
			return
		}
	}
}

func (s *GCService) schedulePurge() {
	s.runSeq++
	job := workerpool.Job{
		Name: fmt.Sprintf("purge-%d", s.runSeq),
		Run:  s.runPurge,
	}
	if !s.pool.TrySubmit(job) {
		// A previous purge is still running; skip this tick.
		s.logger.Debug("Purge tick skipped, queue full")
	}
}

func (s *GCService) runPurge(ctx context.Context) error {
	purged, pruned, err := s.catalog.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Retention purge failed", zap.Error(err))
		return err
	}

	if s.metrics != nil {
		s.metrics.PurgeRunsTotal.Inc()
		s.metrics.PurgedTablesTotal.Add(float64(purged))
		s.metrics.PrunedStatesTotal.Add(float64(pruned))
	}
	return nil
}

// RunOnce triggers a purge pass synchronously
func (s *GCService) RunOnce(ctx context.Context) error {
	return s.runPurge(ctx)
}

// Stop shuts down the scheduler and waits for in-flight purges
func (s *GCService) Stop(timeout time.Duration) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		err = s.pool.Shutdown(timeout)
		s.logger.Info("GC service stopped")
	})
	return err
}
