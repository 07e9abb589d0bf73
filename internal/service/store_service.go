package service

import (
	"context"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/segment"
	"github.com/strata-db/strata/internal/validation"
	"github.com/strata-db/strata/internal/variant"
	"go.uber.org/zap"
)

// RefTables is the object ref under which every table is secured. A table
// named "orders" is the ref "tables.orders".
const RefTables model.ObjectRef = "tables"

// Session carries the caller's identity through an operation
type Session struct {
	Role model.RoleID
}

// StoreService is the operation surface of the store. Every operation
// checks the session's privilege before taking any other step, so a denied
// call has zero side effects: no segment written, no state appended, no
// journal record.
type StoreService struct {
	catalog   *CatalogService
	resolver  *ResolverService
	cloner    *CloneService
	access    *AccessService
	cache     *CacheService
	segments  *segment.Store
	validator *validation.Validator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewStoreService creates a new store service
func NewStoreService(
	catalog *CatalogService,
	resolver *ResolverService,
	cloner *CloneService,
	access *AccessService,
	cache *CacheService,
	segments *segment.Store,
	validator *validation.Validator,
	logger *zap.Logger,
	m *metrics.Metrics,
) *StoreService {
	return &StoreService{
		catalog:   catalog,
		resolver:  resolver,
		cloner:    cloner,
		access:    access,
		cache:     cache,
		segments:  segments,
		validator: validator,
		logger:    logger,
		metrics:   m,
	}
}

func tableRef(name string) model.ObjectRef {
	return RefTables.Child(name)
}

// CreateTable creates a new table
func (s *StoreService) CreateTable(ctx context.Context, sess Session, name string, schemaID uint64, retention time.Duration) (*model.TableEntry, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeCreateTable, RefTables); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTableName(name); err != nil {
		return nil, err
	}
	if retention != 0 {
		if err := s.validator.ValidateRetention(retention); err != nil {
			return nil, err
		}
	}

	entry, err := s.catalog.CreateTable(ctx, name, schemaID, retention)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TablesTotal.Inc()
	}
	return entry, nil
}

// Insert appends a batch of rows as a new state. The batch becomes one
// content-addressed segment; inserting an identical batch twice stores its
// bytes once.
func (s *StoreService) Insert(ctx context.Context, sess Session, tableName string, rows []model.Row, statementRef string) (*model.TableState, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeInsert, tableRef(tableName)); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateBatch(rows); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStatementRef(statementRef); err != nil {
		return nil, err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return nil, err
	}

	segID, err := s.segments.Put(rows)
	if err != nil {
		return nil, err
	}

	return s.append(ctx, entry, []model.SegmentID{segID}, nil, model.OpInsert, statementRef)
}

// Delete tombstones every visible row matching the predicate. Rows are
// never rewritten: the new state carries the same segments plus a deletion
// delta. A predicate matching nothing leaves the head unchanged.
func (s *StoreService) Delete(ctx context.Context, sess Session, tableName string, predicate func(model.Row) bool, statementRef string) (*model.TableState, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeDelete, tableRef(tableName)); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStatementRef(statementRef); err != nil {
		return nil, err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return nil, err
	}
	head, err := s.resolver.Resolve(ctx, entry.TableID, Current())
	if err != nil {
		return nil, err
	}

	tombstones := model.NewTombstoneSet()
	err = s.visitVisible(head, func(seg model.SegmentID, pos uint32, row model.Row) {
		if predicate(row) {
			tombstones.Add(seg, pos)
		}
	})
	if err != nil {
		return nil, err
	}
	if tombstones.IsEmpty() {
		return head, nil
	}

	return s.append(ctx, entry, nil, tombstones, model.OpDelete, statementRef)
}

// Update tombstones matching rows and appends their transformed versions as
// a new segment, all in one state.
func (s *StoreService) Update(ctx context.Context, sess Session, tableName string, predicate func(model.Row) bool, transform func(model.Row) model.Row, statementRef string) (*model.TableState, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeUpdate, tableRef(tableName)); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStatementRef(statementRef); err != nil {
		return nil, err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return nil, err
	}
	head, err := s.resolver.Resolve(ctx, entry.TableID, Current())
	if err != nil {
		return nil, err
	}

	tombstones := model.NewTombstoneSet()
	var rewritten []model.Row
	err = s.visitVisible(head, func(seg model.SegmentID, pos uint32, row model.Row) {
		if predicate(row) {
			tombstones.Add(seg, pos)
			rewritten = append(rewritten, transform(row))
		}
	})
	if err != nil {
		return nil, err
	}
	if tombstones.IsEmpty() {
		return head, nil
	}

	segID, err := s.segments.Put(rewritten)
	if err != nil {
		return nil, err
	}

	return s.append(ctx, entry, []model.SegmentID{segID}, tombstones, model.OpUpdate, statementRef)
}

// append journals and installs a new state against the current head,
// recording metrics. A stale head surfaces as a conflict for the caller to
// retry against the fresh head.
func (s *StoreService) append(ctx context.Context, entry *model.TableEntry, newSegments []model.SegmentID, tombstones model.TombstoneSet, opKind model.OpKind, statementRef string) (*model.TableState, error) {
	start := time.Now()
	state, err := s.catalog.AppendState(ctx, entry.TableID, entry.HeadStateID, newSegments, tombstones, opKind, statementRef)

	if s.metrics != nil {
		s.metrics.AppendDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			s.metrics.AppendsTotal.WithLabelValues(string(opKind)).Inc()
		} else if errors.HasCode(err, errors.ErrCodeConflict) {
			s.metrics.AppendConflictsTotal.Inc()
		}
		s.publishSegmentStats()
	}
	return state, err
}

// Read materializes the rows visible at the located state. Results are
// cached by state id; a state's content never changes, so hits are always
// current.
func (s *StoreService) Read(ctx context.Context, sess Session, tableName string, loc Locator) ([]model.Row, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeSelect, tableRef(tableName)); err != nil {
		return nil, err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ReadsTotal.Inc()
			s.metrics.ReadDuration.Observe(time.Since(start).Seconds())
		}
	}()

	state, err := s.resolver.Resolve(ctx, entry.TableID, loc)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(state.StateID); ok {
		return cached, nil
	}

	rows, size, err := s.materialize(state)
	if err != nil {
		return nil, err
	}
	s.cache.Put(state.StateID, rows, size)
	return rows, nil
}

// ReadProjection reads the located state and projects one column through a
// path, optionally casting each value (target KindNull means no cast).
// Extraction is total: a missing field or index projects as null. A failing
// cast aborts the whole projection.
func (s *StoreService) ReadProjection(ctx context.Context, sess Session, tableName string, loc Locator, column string, path []variant.PathStep, target variant.Kind) ([]variant.Value, error) {
	rows, err := s.Read(ctx, sess, tableName, loc)
	if err != nil {
		return nil, err
	}

	out := make([]variant.Value, 0, len(rows))
	for _, row := range rows {
		value, ok := row[column]
		if !ok {
			value = variant.Null()
		}
		value = variant.Extract(value, path)
		if target != variant.KindNull {
			value, err = variant.Cast(value, target)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, value)
	}
	return out, nil
}

// Clone forks a table at a point in its history into a new, independent
// table without copying rows.
func (s *StoreService) Clone(ctx context.Context, sess Session, sourceName, newName string, loc Locator, statementRef string) (*model.TableEntry, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeSelect, tableRef(sourceName)); err != nil {
		return nil, err
	}
	if err := s.access.Check(sess.Role, model.PrivilegeCreateTable, RefTables); err != nil {
		return nil, err
	}

	source, err := s.catalog.EntryByName(sourceName)
	if err != nil {
		return nil, err
	}

	entry, err := s.cloner.Clone(ctx, source.TableID, loc, newName, statementRef)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TablesTotal.Inc()
	}
	return entry, nil
}

// Drop hides a table. Its history stays intact for the retention window.
func (s *StoreService) Drop(ctx context.Context, sess Session, tableName string) error {
	if err := s.access.Check(sess.Role, model.PrivilegeOwnership, tableRef(tableName)); err != nil {
		return err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return err
	}
	if err := s.catalog.Drop(ctx, entry.TableID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.DropsTotal.Inc()
		s.metrics.TablesTotal.Dec()
	}
	return nil
}

// Undrop restores the most recently dropped table with the given name, if
// it is still inside its retention window.
func (s *StoreService) Undrop(ctx context.Context, sess Session, tableName string) (*model.TableEntry, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeOwnership, tableRef(tableName)); err != nil {
		return nil, err
	}

	entry, err := s.catalog.DroppedEntryByName(tableName)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Undrop(ctx, entry.TableID); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.UndropsTotal.Inc()
		s.metrics.TablesTotal.Inc()
	}
	return s.catalog.Entry(entry.TableID)
}

// RestoreBefore rewinds a table to just before the named statement by
// appending a matching new head. It discards the table's visible content,
// so it requires ownership like Drop does.
func (s *StoreService) RestoreBefore(ctx context.Context, sess Session, tableName, statementRef, restoreRef string) (*model.TableState, error) {
	if err := s.access.Check(sess.Role, model.PrivilegeOwnership, tableRef(tableName)); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStatementRef(restoreRef); err != nil {
		return nil, err
	}

	entry, err := s.catalog.EntryByName(tableName)
	if err != nil {
		return nil, err
	}
	state, err := s.cloner.RestoreBefore(ctx, entry.TableID, statementRef, restoreRef)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AppendsTotal.WithLabelValues(string(model.OpDDL)).Inc()
	}
	return state, nil
}

// materialize loads the rows visible at a state: every segment's rows in
// segment-set order, minus the cumulative deleted positions. Also returns
// the approximate on-disk byte size as a cache hint.
func (s *StoreService) materialize(state *model.TableState) ([]model.Row, int64, error) {
	var rows []model.Row
	var size int64

	for _, seg := range state.SegmentSet {
		meta, err := s.segments.Meta(seg)
		if err != nil {
			return nil, 0, err
		}
		size += meta.Bytes

		segRows, err := s.segments.Get(seg)
		if err != nil {
			return nil, 0, err
		}
		for pos, row := range segRows {
			if state.Deleted.Contains(seg, uint32(pos)) {
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, size, nil
}

// visitVisible walks every visible row of a state with its physical
// position, for predicate evaluation.
func (s *StoreService) visitVisible(state *model.TableState, fn func(seg model.SegmentID, pos uint32, row model.Row)) error {
	for _, seg := range state.SegmentSet {
		segRows, err := s.segments.Get(seg)
		if err != nil {
			return err
		}
		for pos, row := range segRows {
			if state.Deleted.Contains(seg, uint32(pos)) {
				continue
			}
			fn(seg, uint32(pos), row)
		}
	}
	return nil
}

// PublishStats refreshes the catalog and segment gauges, for callers that
// want them current outside the append path (startup, periodic scrapes).
func (s *StoreService) PublishStats() {
	if s.metrics == nil {
		return
	}
	s.metrics.TablesTotal.Set(float64(s.catalog.TableCount()))
	s.publishSegmentStats()
}

// Snapshot is a point-in-time view of store counters, served on the ops
// endpoint.
type Snapshot struct {
	Tables   int           `json:"tables"`
	Segments segment.Stats `json:"segments"`
	Cache    CacheStats    `json:"cache"`
}

func (s *StoreService) Snapshot() Snapshot {
	return Snapshot{
		Tables:   s.catalog.TableCount(),
		Segments: s.segments.GetStats(),
		Cache:    s.cache.Stats(),
	}
}

// publishSegmentStats mirrors segment store counters into gauges
func (s *StoreService) publishSegmentStats() {
	stats := s.segments.GetStats()
	s.metrics.SegmentsTotal.Set(float64(stats.Segments))
	s.metrics.SegmentBytesTotal.Set(float64(stats.TotalBytes))
	s.metrics.SegmentDedupHitsTotal.Set(float64(stats.DedupHits))
	s.metrics.SegmentsReclaimed.Set(float64(stats.Reclaimed))
}
