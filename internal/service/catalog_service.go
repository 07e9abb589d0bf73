package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/journal"
	"github.com/strata-db/strata/internal/storage/segment"
	"go.uber.org/zap"
)

// CatalogService owns the table catalog and every version chain. All
// mutations are journaled before they become visible, and states are
// immutable once appended: a write only ever adds a state and moves a head.
type CatalogService struct {
	config   *CatalogConfig
	journal  *journal.Journal
	segments *segment.Store
	logger   *zap.Logger

	mu          sync.Mutex
	nextTableID model.TableID
	nextStateID model.StateID
	entries     map[model.TableID]*model.TableEntry
	byName      map[string]model.TableID // live tables only
	states      map[model.TableID]map[model.StateID]*model.TableState
	clones      []model.CloneRecord
	nowFn       func() time.Time
}

// CatalogConfig holds catalog configuration
type CatalogConfig struct {
	DefaultRetention time.Duration
	// Clock overrides the wall clock; nil means time.Now. Used by tests to
	// pin retention arithmetic.
	Clock func() time.Time
}

// NewCatalogService creates a new catalog service
func NewCatalogService(cfg *CatalogConfig, jnl *journal.Journal, segments *segment.Store, logger *zap.Logger) *CatalogService {
	nowFn := cfg.Clock
	if nowFn == nil {
		nowFn = time.Now
	}
	return &CatalogService{
		config:      cfg,
		journal:     jnl,
		segments:    segments,
		logger:      logger,
		nextTableID: 1,
		nextStateID: 1,
		entries:     make(map[model.TableID]*model.TableEntry),
		byName:      make(map[string]model.TableID),
		states:      make(map[model.TableID]map[model.StateID]*model.TableState),
		nowFn:       nowFn,
	}
}

// Recover replays the journal and rebuilds the catalog, chains, and segment
// reference counts
func (s *CatalogService) Recover(ctx context.Context) error {
	err := s.journal.Replay(ctx, func(rec *journal.Record) error {
		return s.apply(rec)
	})
	if err != nil {
		return errors.JournalFailed("catalog recovery failed", err)
	}

	s.mu.Lock()
	tables := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("Catalog recovered", zap.Int("tables", tables))
	return nil
}

// apply applies one journal record to the in-memory catalog. Records owned
// by other services (roles, grants) are ignored here.
func (s *CatalogService) apply(rec *journal.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch rec.Kind {
	case journal.RecordCreateTable:
		s.commitEntry(rec.Table)
	case journal.RecordAppendState:
		s.commitState(rec.TableID, rec.State)
	case journal.RecordClone:
		s.commitEntry(rec.Table)
		s.commitState(rec.Table.TableID, rec.State)
		s.clones = append(s.clones, *rec.Clone)
	case journal.RecordDropTable:
		if entry, ok := s.entries[rec.TableID]; ok {
			entry.DroppedAt = rec.DroppedAt
			delete(s.byName, entry.Name)
		}
	case journal.RecordUndropTable:
		if entry, ok := s.entries[rec.TableID]; ok {
			entry.DroppedAt = nil
			s.byName[entry.Name] = entry.TableID
		}
	case journal.RecordPurgeTable:
		s.purgeLocked(rec.TableID)
	case journal.RecordPruneStates:
		s.pruneLocked(rec.TableID, rec.UpToState)
	}
	return nil
}

// commitEntry installs an entry and advances the id clocks. Segment
// references of the entry's states are re-established by commitState.
func (s *CatalogService) commitEntry(entry *model.TableEntry) {
	copied := *entry
	s.entries[copied.TableID] = &copied
	if copied.DroppedAt == nil {
		s.byName[copied.Name] = copied.TableID
	}
	s.states[copied.TableID] = make(map[model.StateID]*model.TableState)
	if copied.TableID >= s.nextTableID {
		s.nextTableID = copied.TableID + 1
	}
}

// commitState installs a state, advances the head, and retains its segments
func (s *CatalogService) commitState(tableID model.TableID, state *model.TableState) {
	chain, ok := s.states[tableID]
	if !ok {
		chain = make(map[model.StateID]*model.TableState)
		s.states[tableID] = chain
	}
	chain[state.StateID] = state
	if entry, ok := s.entries[tableID]; ok {
		entry.HeadStateID = state.StateID
	}
	if state.StateID >= s.nextStateID {
		s.nextStateID = state.StateID + 1
	}
	for _, seg := range state.SegmentSet {
		if err := s.segments.Retain(seg); err != nil {
			s.logger.Warn("Recovered state references missing segment",
				zap.Uint64("state_id", uint64(state.StateID)),
				zap.String("segment_id", string(seg)),
				zap.Error(err))
		}
	}
}

// CreateTable registers a new table with no states yet
func (s *CatalogService) CreateTable(ctx context.Context, name string, schemaID uint64, retention time.Duration) (*model.TableEntry, error) {
	if retention <= 0 {
		retention = s.config.DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[name]; taken {
		return nil, errors.InvalidArgument(fmt.Sprintf("table name already in use: %s", name), nil).
			WithDetail("name", name)
	}

	entry := &model.TableEntry{
		TableID:         s.nextTableID,
		Name:            name,
		SchemaID:        schemaID,
		RetentionWindow: retention,
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordCreateTable,
		Timestamp: s.nowFn(),
		Table:     entry,
	}); err != nil {
		return nil, errors.JournalFailed("failed to journal table create", err)
	}

	s.commitEntry(entry)
	s.logger.Info("Table created",
		zap.String("name", name),
		zap.Uint64("table_id", uint64(entry.TableID)))

	result := *entry
	return &result, nil
}

// AppendState appends a new state to a table's version chain. The parent
// must be the current head; a stale parent fails with ConflictError and
// leaves every structure unchanged. On success the head advances atomically.
func (s *CatalogService) AppendState(
	ctx context.Context,
	tableID model.TableID,
	parentStateID model.StateID,
	newSegments []model.SegmentID,
	tombstones model.TombstoneSet,
	opKind model.OpKind,
	statementRef string,
) (*model.TableState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.writableEntryLocked(tableID)
	if err != nil {
		return nil, err
	}
	if entry.HeadStateID != parentStateID {
		return nil, errors.StaleHead(uint64(tableID), uint64(parentStateID), uint64(entry.HeadStateID))
	}

	var parent *model.TableState
	if parentStateID != 0 {
		parent = s.states[tableID][parentStateID]
		if parent == nil {
			return nil, errors.StateNotFound(uint64(tableID), uint64(parentStateID))
		}
	}

	if tombstones == nil {
		tombstones = model.NewTombstoneSet()
	}

	deleted := tombstones.Clone()
	if parent != nil {
		deleted = parent.Deleted.Union(tombstones)
	}
	// Segment ids are content-derived, so a batch whose content matches a
	// previously deleted segment reuses its id. Inserting a segment makes
	// all of its rows visible again: inherited tombstones for it must not
	// mask the new write.
	for _, seg := range newSegments {
		deleted.Drop(seg)
	}

	segmentSet, err := s.buildSegmentSetLocked(parent, newSegments, deleted)
	if err != nil {
		return nil, err
	}

	state := &model.TableState{
		StateID:       s.nextStateID,
		ParentStateID: parentStateID,
		SegmentSet:    segmentSet,
		Tombstones:    tombstones,
		Deleted:       deleted,
		OpKind:        opKind,
		CreatedAt:     s.nowFn(),
		StatementRef:  statementRef,
	}

	return s.installStateLocked(ctx, entry, state)
}

// AppendStateFrom appends a state whose visible content is exactly that of
// source: same segment set, empty deletion delta, source's cumulative
// deleted view. Clones (parent 0) and restores (parent = current head) are
// both this one chain primitive.
func (s *CatalogService) AppendStateFrom(
	ctx context.Context,
	tableID model.TableID,
	parentStateID model.StateID,
	source *model.TableState,
	opKind model.OpKind,
	statementRef string,
) (*model.TableState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.writableEntryLocked(tableID)
	if err != nil {
		return nil, err
	}
	if entry.HeadStateID != parentStateID {
		return nil, errors.StaleHead(uint64(tableID), uint64(parentStateID), uint64(entry.HeadStateID))
	}

	segmentSet := make([]model.SegmentID, len(source.SegmentSet))
	copy(segmentSet, source.SegmentSet)

	var deleted model.TombstoneSet
	if source.Deleted != nil {
		deleted = source.Deleted.Clone()
	} else {
		deleted = model.NewTombstoneSet()
	}

	state := &model.TableState{
		StateID:       s.nextStateID,
		ParentStateID: parentStateID,
		SegmentSet:    segmentSet,
		Tombstones:    model.NewTombstoneSet(),
		Deleted:       deleted,
		OpKind:        opKind,
		CreatedAt:     s.nowFn(),
		StatementRef:  statementRef,
	}

	return s.installStateLocked(ctx, entry, state)
}

// writableEntryLocked returns a live (not dropped) entry by id
func (s *CatalogService) writableEntryLocked(tableID model.TableID) (*model.TableEntry, error) {
	entry, ok := s.entries[tableID]
	if !ok || entry.IsDropped() {
		return nil, errors.TableNotFound(fmt.Sprintf("id=%d", tableID))
	}
	return entry, nil
}

// buildSegmentSetLocked computes a child state's segment set: the parent's
// set minus segments every row of which is deleted, plus the new segments.
func (s *CatalogService) buildSegmentSetLocked(
	parent *model.TableState,
	newSegments []model.SegmentID,
	deleted model.TombstoneSet,
) ([]model.SegmentID, error) {
	var segmentSet []model.SegmentID

	if parent != nil {
		for _, seg := range parent.SegmentSet {
			rowCount, err := s.segments.RowCount(seg)
			if err != nil {
				return nil, err
			}
			if deleted.CountFor(seg) >= uint64(rowCount) {
				continue // fully tombstoned, falls out of the set
			}
			segmentSet = append(segmentSet, seg)
		}
	}

	for _, seg := range newSegments {
		if !s.segments.Contains(seg) {
			return nil, errors.SegmentNotFound(string(seg))
		}
		duplicate := false
		for _, existing := range segmentSet {
			if existing == seg {
				duplicate = true
				break
			}
		}
		if !duplicate {
			segmentSet = append(segmentSet, seg)
		}
	}

	return segmentSet, nil
}

// installStateLocked retains the state's segments, journals it, and then
// commits it. A journal failure rolls the retains back so nothing changes.
func (s *CatalogService) installStateLocked(ctx context.Context, entry *model.TableEntry, state *model.TableState) (*model.TableState, error) {
	for i, seg := range state.SegmentSet {
		if err := s.segments.Retain(seg); err != nil {
			for _, held := range state.SegmentSet[:i] {
				s.segments.Release(held)
			}
			return nil, err
		}
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordAppendState,
		Timestamp: state.CreatedAt,
		TableID:   entry.TableID,
		State:     state,
	}); err != nil {
		for _, held := range state.SegmentSet {
			s.segments.Release(held)
		}
		return nil, errors.JournalFailed("failed to journal state append", err)
	}

	s.nextStateID = state.StateID + 1
	s.states[entry.TableID][state.StateID] = state
	entry.HeadStateID = state.StateID

	s.logger.Debug("State appended",
		zap.Uint64("table_id", uint64(entry.TableID)),
		zap.Uint64("state_id", uint64(state.StateID)),
		zap.String("op", string(state.OpKind)),
		zap.String("statement_ref", state.StatementRef),
		zap.Int("segments", len(state.SegmentSet)))

	result := *state
	return &result, nil
}

// Clone forks source at sourceState into a brand-new table named newName.
// No row bytes are copied: the clone's head shares every segment by
// reference and each shared segment is retained.
func (s *CatalogService) Clone(ctx context.Context, source *model.TableEntry, sourceState *model.TableState, newName, statementRef string) (*model.TableEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[newName]; taken {
		return nil, errors.InvalidArgument(fmt.Sprintf("table name already in use: %s", newName), nil).
			WithDetail("name", newName)
	}

	now := s.nowFn()
	entry := &model.TableEntry{
		TableID:         s.nextTableID,
		Name:            newName,
		SchemaID:        source.SchemaID,
		RetentionWindow: source.RetentionWindow,
	}

	segmentSet := make([]model.SegmentID, len(sourceState.SegmentSet))
	copy(segmentSet, sourceState.SegmentSet)

	var deleted model.TombstoneSet
	if sourceState.Deleted != nil {
		deleted = sourceState.Deleted.Clone()
	} else {
		deleted = model.NewTombstoneSet()
	}

	state := &model.TableState{
		StateID:      s.nextStateID,
		SegmentSet:   segmentSet,
		Tombstones:   model.NewTombstoneSet(),
		Deleted:      deleted,
		OpKind:       model.OpClone,
		CreatedAt:    now,
		StatementRef: statementRef,
	}
	entry.HeadStateID = state.StateID

	clone := &model.CloneRecord{
		NewTableID:    entry.TableID,
		SourceTableID: source.TableID,
		SourceStateID: sourceState.StateID,
		CreatedAt:     now,
	}

	for i, seg := range segmentSet {
		if err := s.segments.Retain(seg); err != nil {
			for _, held := range segmentSet[:i] {
				s.segments.Release(held)
			}
			return nil, err
		}
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordClone,
		Timestamp: now,
		Table:     entry,
		State:     state,
		Clone:     clone,
	}); err != nil {
		for _, held := range segmentSet {
			s.segments.Release(held)
		}
		return nil, errors.JournalFailed("failed to journal clone", err)
	}

	s.nextTableID = entry.TableID + 1
	s.nextStateID = state.StateID + 1
	copied := *entry
	s.entries[entry.TableID] = &copied
	s.byName[newName] = entry.TableID
	s.states[entry.TableID] = map[model.StateID]*model.TableState{state.StateID: state}
	s.clones = append(s.clones, *clone)

	s.logger.Info("Table cloned",
		zap.String("source", source.Name),
		zap.String("clone", newName),
		zap.Uint64("source_state", uint64(sourceState.StateID)),
		zap.Int("shared_segments", len(segmentSet)))

	result := *entry
	return &result, nil
}

// Drop marks a table dropped without touching its state chain. Within the
// retention window the table stays resolvable by id and can be undropped.
func (s *CatalogService) Drop(ctx context.Context, tableID model.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.writableEntryLocked(tableID)
	if err != nil {
		return err
	}

	now := s.nowFn()
	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordDropTable,
		Timestamp: now,
		TableID:   tableID,
		DroppedAt: &now,
	}); err != nil {
		return errors.JournalFailed("failed to journal drop", err)
	}

	entry.DroppedAt = &now
	delete(s.byName, entry.Name)

	s.logger.Info("Table dropped",
		zap.String("name", entry.Name),
		zap.Uint64("table_id", uint64(tableID)))
	return nil
}

// Undrop restores a dropped table inside its retention window. The head is
// exactly the pre-drop head; only name visibility changes.
func (s *CatalogService) Undrop(ctx context.Context, tableID model.TableID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tableID]
	if !ok || !entry.IsDropped() {
		return errors.TableNotFound(fmt.Sprintf("id=%d", tableID))
	}
	if s.nowFn().Sub(*entry.DroppedAt) > entry.RetentionWindow {
		return errors.TableNotFound(fmt.Sprintf("id=%d", tableID)).
			WithDetail("reason", "dropped outside retention window")
	}
	if _, taken := s.byName[entry.Name]; taken {
		return errors.InvalidArgument(fmt.Sprintf("table name already in use: %s", entry.Name), nil).
			WithDetail("name", entry.Name)
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordUndropTable,
		Timestamp: s.nowFn(),
		TableID:   tableID,
	}); err != nil {
		return errors.JournalFailed("failed to journal undrop", err)
	}

	entry.DroppedAt = nil
	s.byName[entry.Name] = tableID

	s.logger.Info("Table undropped",
		zap.String("name", entry.Name),
		zap.Uint64("table_id", uint64(tableID)))
	return nil
}

// PurgeExpired permanently removes dropped tables outside retention and
// prunes chain history older than each table's window. It runs out-of-band
// (never on the read path) and releases segments only together with the
// retiring of the states that referenced them.
func (s *CatalogService) PurgeExpired(ctx context.Context) (purgedTables, prunedStates int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()

	for tableID, entry := range s.entries {
		if entry.IsDropped() && now.Sub(*entry.DroppedAt) > entry.RetentionWindow {
			if err := s.journal.Append(ctx, &journal.Record{
				Kind:      journal.RecordPurgeTable,
				Timestamp: now,
				TableID:   tableID,
			}); err != nil {
				return purgedTables, prunedStates, errors.JournalFailed("failed to journal purge", err)
			}
			prunedStates += s.purgeLocked(tableID)
			purgedTables++
			continue
		}

		anchor := s.pruneAnchorLocked(entry, now)
		if anchor == 0 {
			continue
		}
		if err := s.journal.Append(ctx, &journal.Record{
			Kind:      journal.RecordPruneStates,
			Timestamp: now,
			TableID:   tableID,
			UpToState: anchor,
		}); err != nil {
			return purgedTables, prunedStates, errors.JournalFailed("failed to journal prune", err)
		}
		prunedStates += s.pruneLocked(tableID, anchor)
	}

	if purgedTables > 0 || prunedStates > 0 {
		s.logger.Info("Retention purge completed",
			zap.Int("purged_tables", purgedTables),
			zap.Int("pruned_states", prunedStates))
	}
	return purgedTables, prunedStates, nil
}

// pruneAnchorLocked finds the oldest state that must remain so every
// locator inside the retention window still resolves: the first state at or
// beyond the boundary walking head to root keeps its position as anchor,
// and everything strictly older is prunable. Returns 0 when there is
// nothing to prune.
func (s *CatalogService) pruneAnchorLocked(entry *model.TableEntry, now time.Time) model.StateID {
	boundary := now.Add(-entry.RetentionWindow)
	chain := s.states[entry.TableID]

	state := chain[entry.HeadStateID]
	for state != nil {
		if state.CreatedAt.Before(boundary) {
			// This state anchors AtTime locators at the boundary; its
			// ancestors are unreachable within the window.
			if state.ParentStateID != 0 {
				if _, exists := chain[state.ParentStateID]; exists {
					return state.StateID
				}
			}
			return 0
		}
		state = chain[state.ParentStateID]
	}
	return 0
}

// purgeLocked removes a table entirely, releasing every state's segments.
// Returns the number of states removed.
func (s *CatalogService) purgeLocked(tableID model.TableID) int {
	chain := s.states[tableID]
	for _, state := range chain {
		for _, seg := range state.SegmentSet {
			if err := s.segments.Release(seg); err != nil {
				s.logger.Warn("Failed to release segment during purge",
					zap.String("segment_id", string(seg)),
					zap.Error(err))
			}
		}
	}

	removed := len(chain)
	if entry, ok := s.entries[tableID]; ok {
		delete(s.byName, entry.Name)
	}
	delete(s.states, tableID)
	delete(s.entries, tableID)
	return removed
}

// pruneLocked removes states strictly older than anchorID from a table's
// chain, releasing their segments. Returns the number of states removed.
func (s *CatalogService) pruneLocked(tableID model.TableID, anchorID model.StateID) int {
	chain := s.states[tableID]
	removed := 0
	for stateID, state := range chain {
		if stateID >= anchorID {
			continue
		}
		for _, seg := range state.SegmentSet {
			if err := s.segments.Release(seg); err != nil {
				s.logger.Warn("Failed to release segment during prune",
					zap.String("segment_id", string(seg)),
					zap.Error(err))
			}
		}
		delete(chain, stateID)
		removed++
	}
	return removed
}

// Entry returns the catalog entry by id, including dropped entries
func (s *CatalogService) Entry(tableID model.TableID) (*model.TableEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tableID]
	if !ok {
		return nil, errors.TableNotFound(fmt.Sprintf("id=%d", tableID))
	}
	result := *entry
	return &result, nil
}

// EntryByName resolves a live table by name in O(1); dropped tables are
// invisible here by design.
func (s *CatalogService) EntryByName(name string) (*model.TableEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tableID, ok := s.byName[name]
	if !ok {
		return nil, errors.TableNotFound(name)
	}
	result := *s.entries[tableID]
	return &result, nil
}

// DroppedEntryByName finds the most recently dropped table with the given
// name, for undrop-by-name.
func (s *CatalogService) DroppedEntryByName(name string) (*model.TableEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *model.TableEntry
	for _, entry := range s.entries {
		if entry.Name != name || !entry.IsDropped() {
			continue
		}
		if newest == nil || entry.DroppedAt.After(*newest.DroppedAt) {
			newest = entry
		}
	}
	if newest == nil {
		return nil, errors.TableNotFound(name)
	}
	result := *newest
	return &result, nil
}

// State returns one state of a table's chain
func (s *CatalogService) State(tableID model.TableID, stateID model.StateID) (*model.TableState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[tableID][stateID]
	if !ok {
		return nil, errors.StateNotFound(uint64(tableID), uint64(stateID))
	}
	return state, nil
}

// Chain snapshots a table's version chain ordered head to root. The
// returned states are immutable, so callers walk them without holding any
// catalog lock.
func (s *CatalogService) Chain(tableID model.TableID) ([]*model.TableState, *model.TableEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tableID]
	if !ok {
		return nil, nil, errors.TableNotFound(fmt.Sprintf("id=%d", tableID))
	}

	chain := s.states[tableID]
	var walk []*model.TableState
	state := chain[entry.HeadStateID]
	for state != nil {
		walk = append(walk, state)
		state = chain[state.ParentStateID]
	}

	result := *entry
	return walk, &result, nil
}

// CloneRecords returns the lineage of every clone created
func (s *CatalogService) CloneRecords() []model.CloneRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CloneRecord, len(s.clones))
	copy(out, s.clones)
	return out
}

// TableCount returns the number of catalog entries, dropped included
func (s *CatalogService) TableCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// now exposes the catalog clock to sibling services in this package
func (s *CatalogService) now() time.Time {
	return s.nowFn()
}
