package service

import (
	"testing"
	"time"

	"github.com/strata-db/strata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(maxSize int64) *CacheService {
	return NewCacheService(&CacheConfig{
		MaxSize:         maxSize,
		FrequencyWeight: 0.5,
		RecencyWeight:   0.5,
		AdaptiveWindow:  time.Minute,
	}, zap.NewNop(), nil)
}

func TestCachePutGet(t *testing.T) {
	cache := newTestCache(1 << 20)

	rows := numberRows(1, 2, 3)
	cache.Put(model.StateID(7), rows, 100)

	got, ok := cache.Get(model.StateID(7))
	require.True(t, ok)
	assert.Equal(t, rowNumbers(rows), rowNumbers(got))

	_, ok = cache.Get(model.StateID(8))
	assert.False(t, ok)
}

func TestCacheGetSliceIsDetached(t *testing.T) {
	cache := newTestCache(1 << 20)
	cache.Put(model.StateID(7), numberRows(1, 2, 3), 100)

	got, ok := cache.Get(model.StateID(7))
	require.True(t, ok)
	got[0] = numberRows(99)[0]

	again, ok := cache.Get(model.StateID(7))
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, rowNumbers(again),
		"overwriting a returned slice element must not reach the cached entry")
}

func TestCacheEvictsUnderPressure(t *testing.T) {
	cache := newTestCache(250)

	cache.Put(model.StateID(1), numberRows(1), 100)
	cache.Put(model.StateID(2), numberRows(2), 100)

	// Keep state 2 warm so state 1 is the eviction candidate.
	cache.Get(model.StateID(2))
	cache.Get(model.StateID(2))

	cache.Put(model.StateID(3), numberRows(3), 100)

	_, ok := cache.Get(model.StateID(1))
	assert.False(t, ok, "coldest entry evicted")
	_, ok = cache.Get(model.StateID(2))
	assert.True(t, ok)
	_, ok = cache.Get(model.StateID(3))
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.EntryCount)
	assert.LessOrEqual(t, stats.Size, stats.MaxSize)
}

func TestCacheRejectsOversizedResult(t *testing.T) {
	cache := newTestCache(100)

	cache.Put(model.StateID(1), numberRows(1), 500)
	_, ok := cache.Get(model.StateID(1))
	assert.False(t, ok)
}

func TestCacheRemove(t *testing.T) {
	cache := newTestCache(1 << 20)

	cache.Put(model.StateID(1), numberRows(1), 100)
	cache.Remove(model.StateID(1))

	_, ok := cache.Get(model.StateID(1))
	assert.False(t, ok)
	assert.Zero(t, cache.Stats().Size)
}
