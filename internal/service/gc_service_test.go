package service

import (
	"context"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGCRunOncePurgesExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.catalog.CreateTable(ctx, "orders", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, h.catalog.Drop(ctx, entry.TableID))
	h.clock.Advance(2 * time.Hour)

	gc := NewGCService(
		&GCConfig{Interval: time.Hour, MaxWorkers: 1, QueueSize: 1},
		h.catalog,
		zap.NewNop(),
		metrics.NewMetrics(prometheus.NewRegistry(), "test"),
	)
	t.Cleanup(func() { gc.Stop(time.Second) })

	require.NoError(t, gc.RunOnce(ctx))
	assert.Equal(t, 0, h.catalog.TableCount())
}

func TestGCStartStop(t *testing.T) {
	h := newHarness(t)

	gc := NewGCService(
		&GCConfig{Interval: 10 * time.Millisecond, MaxWorkers: 1, QueueSize: 1},
		h.catalog,
		zap.NewNop(),
		metrics.NewMetrics(prometheus.NewRegistry(), "test"),
	)
	gc.Start()
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, gc.Stop(time.Second))
}
