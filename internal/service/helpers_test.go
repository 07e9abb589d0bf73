package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/diskmanager"
	"github.com/strata-db/strata/internal/storage/journal"
	"github.com/strata-db/strata/internal/storage/segment"
	"github.com/strata-db/strata/internal/validation"
	"github.com/strata-db/strata/internal/variant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock is a controllable wall clock for retention arithmetic
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires a full store against a temp directory
type harness struct {
	dir      string
	clock    *fakeClock
	segments *segment.Store
	journal  *journal.Journal
	catalog  *CatalogService
	resolver *ResolverService
	cloner   *CloneService
	access   *AccessService
	cache    *CacheService
	store    *StoreService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, t.TempDir())
}

// newHarnessAt builds the stack over an existing directory, so tests can
// simulate a restart by building a second harness over the same data.
func newHarnessAt(t *testing.T, dir string) *harness {
	t.Helper()

	logger := zap.NewNop()
	clock := newFakeClock()

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(dir), logger)
	require.NoError(t, err)

	segments, err := segment.NewStore(dir+"/segments", disk, logger)
	require.NoError(t, err)
	require.NoError(t, segments.Open(context.Background()))

	jnl, err := journal.NewJournal(&journal.Config{SegmentSize: 1 << 20}, dir+"/journal", logger)
	require.NoError(t, err)
	t.Cleanup(func() { jnl.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")

	catalog := NewCatalogService(
		&CatalogConfig{DefaultRetention: time.Hour, Clock: clock.Now},
		jnl, segments, logger,
	)
	resolver := NewResolverService(catalog, logger, m)
	validator := validation.NewValidator()
	cloner := NewCloneService(catalog, resolver, validator, logger, m)
	access := NewAccessService(jnl, logger, m)
	cache := NewCacheService(&CacheConfig{
		MaxSize:         1 << 20,
		FrequencyWeight: 0.5,
		RecencyWeight:   0.5,
		AdaptiveWindow:  time.Minute,
	}, logger, m)
	store := NewStoreService(catalog, resolver, cloner, access, cache, segments, validator, logger, m)

	return &harness{
		dir:      dir,
		clock:    clock,
		segments: segments,
		journal:  jnl,
		catalog:  catalog,
		resolver: resolver,
		cloner:   cloner,
		access:   access,
		cache:    cache,
		store:    store,
	}
}

// adminSession creates a role holding every privilege used by the tests
func (h *harness) adminSession(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()

	admin, err := h.access.CreateRole(ctx, "admin")
	require.NoError(t, err)
	require.NoError(t, h.access.Grant(ctx, admin.RoleID, model.PrivilegeOwnership, RefTables))
	require.NoError(t, h.access.Grant(ctx, admin.RoleID, model.PrivilegeCreateTable, RefTables))
	return Session{Role: admin.RoleID}
}

func numberRows(values ...float64) []model.Row {
	rows := make([]model.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, model.Row{"n": variant.Number(v)})
	}
	return rows
}

func rowNumbers(rows []model.Row) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row["n"].NumberValue())
	}
	return out
}
