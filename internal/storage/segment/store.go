// Package segment implements the content-addressed store of immutable row
// blocks. A segment is written once, shared by reference between table
// states and clones, and physically deleted only when its reference count
// reaches zero.
package segment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/diskmanager"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const segmentFileSuffix = ".seg"

// Store is the content-addressed segment store. Segments are kept as one
// zstd-compressed file per content hash plus an in-memory row cache.
type Store struct {
	dir     string
	disk    *diskmanager.DiskManager
	logger  *zap.Logger
	mu      sync.RWMutex
	entries map[model.SegmentID]*entry

	dedupHits uint64
	reclaimed uint64
}

type entry struct {
	meta model.SegmentMeta
	refs int64
	rows []model.Row // nil until loaded
}

// NewStore creates a segment store rooted at dir. The disk manager is
// optional; when present every Put is gated by a disk space check.
func NewStore(dir string, disk *diskmanager.DiskManager, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}
	return &Store{
		dir:     dir,
		disk:    disk,
		logger:  logger,
		entries: make(map[model.SegmentID]*entry),
	}, nil
}

// Open scans the segment directory and registers every persisted segment.
// Files are read concurrently; reference counts start at zero and are
// re-established by catalog recovery.
func (s *Store) Open(ctx context.Context) error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*"+segmentFileSuffix))
	if err != nil {
		return errors.SegmentFailed("failed to list segment files", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	var mu sync.Mutex
	for _, path := range files {
		path := path
		g.Go(func() error {
			meta, err := readSegmentMeta(path)
			if err != nil {
				return fmt.Errorf("segment file %s: %w", path, err)
			}
			mu.Lock()
			s.entries[meta.ID] = &entry{meta: meta}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.SegmentFailed("segment directory scan failed", err)
	}

	s.logger.Info("Segment store opened",
		zap.String("dir", s.dir),
		zap.Int("segments", len(files)))
	return nil
}

// Put stores an immutable block of rows and returns its content-derived id.
// Storing identical content twice returns the same id without growing the
// store.
func (s *Store) Put(rows []model.Row) (model.SegmentID, error) {
	if len(rows) == 0 {
		return "", errors.InvalidArgument("segment must contain at least one row", nil)
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return "", errors.SegmentFailed("failed to encode rows", err)
	}

	sum := sha256.Sum256(encoded)
	id := model.SegmentID(hex.EncodeToString(sum[:]))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		s.dedupHits++
		s.logger.Debug("Segment dedup hit", zap.String("segment_id", string(id)))
		return id, nil
	}

	if s.disk != nil {
		if err := s.disk.CheckBeforeWrite(uint64(len(encoded))); err != nil {
			return "", err
		}
	}

	path := s.pathFor(id)
	size, err := writeSegmentFile(path, encoded, uint32(len(rows)))
	if err != nil {
		return "", errors.SegmentFailed("failed to write segment file", err)
	}

	cached := make([]model.Row, len(rows))
	copy(cached, rows)

	s.entries[id] = &entry{
		meta: model.SegmentMeta{ID: id, RowCount: uint32(len(rows)), Bytes: size},
		rows: cached,
	}

	s.logger.Debug("Segment stored",
		zap.String("segment_id", string(id)),
		zap.Uint32("rows", uint32(len(rows))),
		zap.Int64("bytes", size))
	return id, nil
}

// Get returns the rows of a segment, loading from disk on a cold cache.
// Unknown or purged segments fail with NotFound. The returned slice is the
// caller's own; the row maps inside it are shared with the store's cache
// and must be treated as immutable.
func (s *Store) Get(id model.SegmentID) ([]model.Row, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	if ok && e.rows != nil {
		rows := copyRows(e.rows)
		s.mu.RUnlock()
		return rows, nil
	}
	s.mu.RUnlock()

	if !ok {
		return nil, errors.SegmentNotFound(string(id))
	}

	encoded, err := readSegmentFile(s.pathFor(id))
	if err != nil {
		return nil, err
	}

	var rows []model.Row
	if err := json.Unmarshal(encoded, &rows); err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("segment %s has undecodable rows", id), err)
	}

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.rows = rows
	}
	s.mu.Unlock()

	return copyRows(rows), nil
}

// copyRows detaches the slice header so callers appending to or reordering
// the result cannot reach the cached copy.
func copyRows(rows []model.Row) []model.Row {
	out := make([]model.Row, len(rows))
	copy(out, rows)
	return out
}

// Meta returns the stored metadata for a segment
func (s *Store) Meta(id model.SegmentID) (model.SegmentMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return model.SegmentMeta{}, errors.SegmentNotFound(string(id))
	}
	return e.meta, nil
}

// RowCount returns the number of rows in a segment
func (s *Store) RowCount(id model.SegmentID) (uint32, error) {
	meta, err := s.Meta(id)
	if err != nil {
		return 0, err
	}
	return meta.RowCount, nil
}

// Contains reports whether a segment is currently stored
func (s *Store) Contains(id model.SegmentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Retain increments the reference count of a segment. Every table state
// holds one reference per segment in its set.
func (s *Store) Retain(id model.SegmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return errors.SegmentNotFound(string(id))
	}
	e.refs++
	return nil
}

// Release decrements the reference count. When the count reaches zero the
// segment file is deleted and later Gets fail with NotFound.
func (s *Store) Release(id model.SegmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return errors.SegmentNotFound(string(id))
	}
	if e.refs <= 0 {
		return errors.InternalError(fmt.Sprintf("segment %s released below zero references", id), nil)
	}

	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(s.entries, id)
	s.reclaimed++
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return errors.SegmentFailed("failed to remove segment file", err)
	}

	s.logger.Debug("Segment reclaimed", zap.String("segment_id", string(id)))
	return nil
}

// Refs returns the current reference count of a segment
func (s *Store) Refs(id model.SegmentID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return 0, errors.SegmentNotFound(string(id))
	}
	return e.refs, nil
}

// Stats describes the store for metrics and health reporting
type Stats struct {
	Segments   int
	TotalBytes int64
	DedupHits  uint64
	Reclaimed  uint64
}

// GetStats returns current store statistics
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Segments:  len(s.entries),
		DedupHits: s.dedupHits,
		Reclaimed: s.reclaimed,
	}
	for _, e := range s.entries {
		stats.TotalBytes += e.meta.Bytes
	}
	return stats
}

// pathFor returns the file path of a segment id
func (s *Store) pathFor(id model.SegmentID) string {
	name := strings.ReplaceAll(string(id), string(filepath.Separator), "_")
	return filepath.Join(s.dir, name+segmentFileSuffix)
}
