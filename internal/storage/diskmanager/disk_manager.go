package diskmanager

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"go.uber.org/zap"
)

// DiskManager monitors disk space under the segment directory and rejects
// writes before the store touches disk. Usage is sampled lazily and cached
// for CheckInterval.
type DiskManager struct {
	dataDir              string
	logger               *zap.Logger
	mu                   sync.RWMutex
	lastCheck            time.Time
	cachedUsagePercent   float64
	cachedAvailableBytes uint64
	checkInterval        time.Duration

	warningThreshold  float64
	throttleThreshold float64
	fullThreshold     float64

	isThrottled bool
	isFull      bool
}

// Config holds configuration for disk manager
type Config struct {
	DataDir           string
	CheckInterval     time.Duration
	WarningThreshold  float64
	ThrottleThreshold float64
	FullThreshold     float64
}

// DefaultConfig returns default disk manager configuration
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:           dataDir,
		CheckInterval:     10 * time.Second,
		WarningThreshold:  80.0,
		ThrottleThreshold: 90.0,
		FullThreshold:     95.0,
	}
}

// NewDiskManager creates a new disk manager with the given thresholds
func NewDiskManager(cfg *Config, logger *zap.Logger) (*DiskManager, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}

	dm := &DiskManager{
		dataDir:           cfg.DataDir,
		logger:            logger,
		checkInterval:     cfg.CheckInterval,
		warningThreshold:  cfg.WarningThreshold,
		throttleThreshold: cfg.ThrottleThreshold,
		fullThreshold:     cfg.FullThreshold,
	}

	if err := dm.ForceCheck(); err != nil {
		logger.Warn("Initial disk space check failed", zap.Error(err))
	}

	return dm, nil
}

// CheckBeforeWrite checks if a write of the given size can proceed
// Returns an error if the write should be rejected
func (dm *DiskManager) CheckBeforeWrite(estimatedBytes uint64) error {
	dm.maybeRefresh()

	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if dm.isFull {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes)
	}

	if dm.isThrottled {
		// Allow small writes during throttling, reject large ones
		if estimatedBytes > dm.cachedAvailableBytes/10 {
			return errors.DiskThrottled(dm.cachedUsagePercent)
		}
	}

	if estimatedBytes > dm.cachedAvailableBytes {
		return errors.DiskFull(dm.cachedUsagePercent, dm.cachedAvailableBytes)
	}

	return nil
}

// maybeRefresh re-samples disk usage when the cached sample is stale
func (dm *DiskManager) maybeRefresh() {
	dm.mu.RLock()
	stale := time.Since(dm.lastCheck) > dm.checkInterval
	dm.mu.RUnlock()

	if !stale {
		return
	}
	if err := dm.ForceCheck(); err != nil {
		dm.logger.Warn("Disk space check failed", zap.Error(err))
	}
}

// ForceCheck forces an immediate disk space check
func (dm *DiskManager) ForceCheck() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.checkDiskSpace()
}

// checkDiskSpace samples current disk usage and updates state
// Must be called with write lock held
func (dm *DiskManager) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dm.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	totalBytes := stat.Blocks * uint64(stat.Bsize)
	availableBytes := stat.Bavail * uint64(stat.Bsize)
	usedBytes := totalBytes - availableBytes
	usagePercent := (float64(usedBytes) / float64(totalBytes)) * 100.0

	dm.cachedUsagePercent = usagePercent
	dm.cachedAvailableBytes = availableBytes
	dm.lastCheck = time.Now()

	previouslyThrottled := dm.isThrottled
	previouslyFull := dm.isFull

	dm.isFull = usagePercent >= dm.fullThreshold
	dm.isThrottled = usagePercent >= dm.throttleThreshold && !dm.isFull

	if dm.isFull && !previouslyFull {
		dm.logger.Error("Disk full, segment writes rejected",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("threshold", dm.fullThreshold))
	} else if !dm.isFull && previouslyFull {
		dm.logger.Info("Disk no longer full",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes))
	}

	if dm.isThrottled && !previouslyThrottled {
		dm.logger.Warn("Disk write throttling enabled",
			zap.Float64("usage_percent", usagePercent),
			zap.Float64("threshold", dm.throttleThreshold))
	} else if !dm.isThrottled && previouslyThrottled {
		dm.logger.Info("Disk write throttling disabled",
			zap.Float64("usage_percent", usagePercent))
	}

	if usagePercent >= dm.warningThreshold && !dm.isThrottled && !dm.isFull {
		dm.logger.Warn("Disk usage warning",
			zap.Float64("usage_percent", usagePercent),
			zap.Uint64("available_bytes", availableBytes),
			zap.Float64("warning_threshold", dm.warningThreshold))
	}

	return nil
}

// UsageStats contains disk usage statistics
type UsageStats struct {
	UsagePercent   float64
	AvailableBytes uint64
	IsThrottled    bool
	IsFull         bool
	LastCheck      time.Time
}

// GetUsage returns current disk usage statistics
func (dm *DiskManager) GetUsage() UsageStats {
	dm.maybeRefresh()

	dm.mu.RLock()
	defer dm.mu.RUnlock()

	return UsageStats{
		UsagePercent:   dm.cachedUsagePercent,
		AvailableBytes: dm.cachedAvailableBytes,
		IsThrottled:    dm.isThrottled,
		IsFull:         dm.isFull,
		LastCheck:      dm.lastCheck,
	}
}
