package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the store
type Metrics struct {
	// Version chain metrics
	AppendsTotal         *prometheus.CounterVec
	AppendConflictsTotal prometheus.Counter
	AppendDuration       prometheus.Histogram

	// Segment store metrics
	SegmentsTotal         prometheus.Gauge
	SegmentBytesTotal     prometheus.Gauge
	SegmentDedupHitsTotal prometheus.Gauge
	SegmentsReclaimed     prometheus.Gauge

	// Time travel metrics
	ResolvesTotal        *prometheus.CounterVec
	ResolveFailuresTotal *prometheus.CounterVec

	// Clone metrics
	ClonesTotal prometheus.Counter

	// Catalog metrics
	TablesTotal  prometheus.Gauge
	DropsTotal   prometheus.Counter
	UndropsTotal prometheus.Counter

	// Retention / GC metrics
	PurgeRunsTotal    prometheus.Counter
	PurgedTablesTotal prometheus.Counter
	PrunedStatesTotal prometheus.Counter

	// Result cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter

	// Access control metrics
	ChecksTotal       prometheus.Counter
	ChecksDeniedTotal prometheus.Counter

	// Read path metrics
	ReadsTotal   prometheus.Counter
	ReadDuration prometheus.Histogram

	// System metrics
	DiskUsagePercent   prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	MemoryAllocBytes   prometheus.Gauge
	Goroutines         prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer
func NewMetrics(reg prometheus.Registerer, instance string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"instance": instance}

	return &Metrics{
		AppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "chain",
			Name:        "appends_total",
			Help:        "Total number of table states appended, by operation kind",
			ConstLabels: labels,
		}, []string{"op"}),
		AppendConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "chain",
			Name:        "append_conflicts_total",
			Help:        "Total number of appends rejected against a stale head",
			ConstLabels: labels,
		}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "strata",
			Subsystem:   "chain",
			Name:        "append_duration_seconds",
			Help:        "Duration of state appends",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		SegmentsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "segments",
			Name:        "total",
			Help:        "Number of distinct segments currently stored",
			ConstLabels: labels,
		}),
		SegmentBytesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "segments",
			Name:        "bytes_total",
			Help:        "Total on-disk bytes of stored segments",
			ConstLabels: labels,
		}),
		SegmentDedupHitsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "segments",
			Name:        "dedup_hits_total",
			Help:        "Total puts answered by an existing content-identical segment",
			ConstLabels: labels,
		}),
		SegmentsReclaimed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "segments",
			Name:        "reclaimed_total",
			Help:        "Total segments physically deleted after their last reference",
			ConstLabels: labels,
		}),
		ResolvesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "resolver",
			Name:        "resolves_total",
			Help:        "Total time-travel resolutions, by locator kind",
			ConstLabels: labels,
		}, []string{"locator"}),
		ResolveFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "resolver",
			Name:        "resolve_failures_total",
			Help:        "Total failed time-travel resolutions, by locator kind",
			ConstLabels: labels,
		}, []string{"locator"}),
		ClonesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "catalog",
			Name:        "clones_total",
			Help:        "Total zero-copy clones created",
			ConstLabels: labels,
		}),
		TablesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "catalog",
			Name:        "tables_total",
			Help:        "Number of tables known to the catalog, including dropped",
			ConstLabels: labels,
		}),
		DropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "catalog",
			Name:        "drops_total",
			Help:        "Total table drops",
			ConstLabels: labels,
		}),
		UndropsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "catalog",
			Name:        "undrops_total",
			Help:        "Total table undrops",
			ConstLabels: labels,
		}),
		PurgeRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "gc",
			Name:        "purge_runs_total",
			Help:        "Total retention purge runs",
			ConstLabels: labels,
		}),
		PurgedTablesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "gc",
			Name:        "purged_tables_total",
			Help:        "Total dropped tables permanently purged",
			ConstLabels: labels,
		}),
		PrunedStatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "gc",
			Name:        "pruned_states_total",
			Help:        "Total table states pruned outside retention",
			ConstLabels: labels,
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Total result cache hits",
			ConstLabels: labels,
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Total result cache misses",
			ConstLabels: labels,
		}),
		CacheEvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Total result cache evictions",
			ConstLabels: labels,
		}),
		ChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "access",
			Name:        "checks_total",
			Help:        "Total privilege checks",
			ConstLabels: labels,
		}),
		ChecksDeniedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "access",
			Name:        "checks_denied_total",
			Help:        "Total privilege checks denied",
			ConstLabels: labels,
		}),
		ReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "reads",
			Name:        "total",
			Help:        "Total resolved reads",
			ConstLabels: labels,
		}),
		ReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "strata",
			Subsystem:   "reads",
			Name:        "duration_seconds",
			Help:        "Duration of resolved reads including materialization",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		DiskUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Percentage of the data filesystem in use",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Disk bytes available on the data filesystem",
			ConstLabels: labels,
		}),
		MemoryAllocBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "memory_alloc_bytes",
			Help:        "Heap bytes currently allocated",
			ConstLabels: labels,
		}),
		Goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "goroutines",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// UpdateSystemStats refreshes the system-level gauges
func (m *Metrics) UpdateSystemStats(diskUsagePercent float64, diskAvailable uint64, memoryAlloc uint64, goroutines int) {
	m.DiskUsagePercent.Set(diskUsagePercent)
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	m.MemoryAllocBytes.Set(float64(memoryAlloc))
	m.Goroutines.Set(float64(goroutines))
}
