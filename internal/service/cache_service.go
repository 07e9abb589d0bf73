package service

import (
	"sync"
	"time"

	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/model"
	"go.uber.org/zap"
)

// CacheService caches materialized read results keyed by state id with an
// adaptive LRU/LFU eviction score. States are immutable, so a cached result
// never goes stale; entries only leave under memory pressure or when their
// state is pruned.
type CacheService struct {
	config          *CacheConfig
	cache           map[model.StateID]*cacheEntry
	logger          *zap.Logger
	metrics         *metrics.Metrics
	mu              sync.Mutex
	currentSize     int64
	frequencyWeight float64
	recencyWeight   float64
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxSize         int64
	FrequencyWeight float64
	RecencyWeight   float64
	AdaptiveWindow  time.Duration
}

type cacheEntry struct {
	stateID     model.StateID
	rows        []model.Row
	size        int64
	accessCount int64
	lastAccess  time.Time
	score       float64
}

// NewCacheService creates a new cache service
func NewCacheService(cfg *CacheConfig, logger *zap.Logger, m *metrics.Metrics) *CacheService {
	return &CacheService{
		config:          cfg,
		cache:           make(map[model.StateID]*cacheEntry),
		logger:          logger,
		metrics:         m,
		frequencyWeight: cfg.FrequencyWeight,
		recencyWeight:   cfg.RecencyWeight,
	}
}

// Get retrieves a materialized result from cache. The returned slice is the
// caller's own copy; the row maps inside it are shared with the cache and
// must be treated as immutable.
func (s *CacheService) Get(stateID model.StateID) ([]model.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.cache[stateID]
	if !found {
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}

	entry.accessCount++
	entry.lastAccess = time.Now()
	entry.score = s.calculateScore(entry)

	if s.metrics != nil {
		s.metrics.CacheHitsTotal.Inc()
	}
	rows := make([]model.Row, len(entry.rows))
	copy(rows, entry.rows)
	return rows, true
}

// Put caches a materialized result. sizeHint is the approximate byte size
// of the rows as stored.
func (s *CacheService) Put(stateID model.StateID, rows []model.Row, sizeHint int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sizeHint <= 0 {
		sizeHint = int64(len(rows)) * 64
	}
	if sizeHint > s.config.MaxSize {
		return // result larger than the whole cache
	}

	if existing, found := s.cache[stateID]; found {
		existing.accessCount++
		existing.lastAccess = time.Now()
		existing.score = s.calculateScore(existing)
		return
	}

	for s.currentSize+sizeHint > s.config.MaxSize {
		s.evictLowestScore()
	}

	entry := &cacheEntry{
		stateID:     stateID,
		rows:        rows,
		size:        sizeHint,
		accessCount: 1,
		lastAccess:  time.Now(),
	}
	entry.score = s.calculateScore(entry)

	s.cache[stateID] = entry
	s.currentSize += sizeHint
}

// Remove drops a state's cached result, if present
func (s *CacheService) Remove(stateID model.StateID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, found := s.cache[stateID]; found {
		delete(s.cache, stateID)
		s.currentSize -= entry.size
	}
}

// calculateScore computes the adaptive eviction score (higher survives)
func (s *CacheService) calculateScore(entry *cacheEntry) float64 {
	frequencyScore := float64(entry.accessCount)
	recencyScore := time.Since(entry.lastAccess).Seconds()
	return s.frequencyWeight*frequencyScore - s.recencyWeight*recencyScore
}

// evictLowestScore evicts the entry with the lowest score
func (s *CacheService) evictLowestScore() {
	var lowestKey model.StateID
	lowest := &cacheEntry{score: 1e18}

	for key, entry := range s.cache {
		if entry.score < lowest.score {
			lowest = entry
			lowestKey = key
		}
	}
	if lowestKey == 0 {
		return
	}

	delete(s.cache, lowestKey)
	s.currentSize -= lowest.size

	if s.metrics != nil {
		s.metrics.CacheEvictionsTotal.Inc()
	}
	s.logger.Debug("Evicted cached result",
		zap.Uint64("state_id", uint64(lowestKey)),
		zap.Float64("score", lowest.score))
}

// AdjustWeights rebalances frequency and recency weights from the observed
// access pattern: hot working sets favor LRU, skewed ones favor LFU.
func (s *CacheService) AdjustWeights() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cache) == 0 {
		return
	}

	var recentAccesses int
	recentThreshold := time.Now().Add(-s.config.AdaptiveWindow)
	for _, entry := range s.cache {
		if entry.lastAccess.After(recentThreshold) {
			recentAccesses++
		}
	}

	hotnessRatio := float64(recentAccesses) / float64(len(s.cache))
	switch {
	case hotnessRatio > 0.7:
		s.recencyWeight = 0.7
		s.frequencyWeight = 0.3
	case hotnessRatio < 0.3:
		s.recencyWeight = 0.3
		s.frequencyWeight = 0.7
	default:
		s.recencyWeight = 0.5
		s.frequencyWeight = 0.5
	}
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size         int64
	MaxSize      int64
	EntryCount   int
	UsagePercent float64
}

// Stats returns cache statistics
func (s *CacheService) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CacheStats{
		Size:         s.currentSize,
		MaxSize:      s.config.MaxSize,
		EntryCount:   len(s.cache),
		UsagePercent: float64(s.currentSize) / float64(s.config.MaxSize) * 100,
	}
}
