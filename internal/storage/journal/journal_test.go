package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	jnl, err := NewJournal(&Config{SegmentSize: 1 << 20, SyncWrites: true}, dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { jnl.Close() })
	return jnl
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	jnl := newTestJournal(t, dir)
	ctx := context.Background()

	entry := &model.TableEntry{TableID: 1, Name: "orders", RetentionWindow: time.Hour}
	state := &model.TableState{
		StateID:      1,
		SegmentSet:   []model.SegmentID{"abc123"},
		Tombstones:   model.NewTombstoneSet(),
		Deleted:      model.NewTombstoneSet(),
		OpKind:       model.OpInsert,
		CreatedAt:    time.Now().UTC(),
		StatementRef: "stmt-1",
	}

	require.NoError(t, jnl.Append(ctx, &Record{Kind: RecordCreateTable, Timestamp: time.Now(), Table: entry}))
	require.NoError(t, jnl.Append(ctx, &Record{Kind: RecordAppendState, Timestamp: time.Now(), TableID: 1, State: state}))
	require.NoError(t, jnl.Close())

	replayed := newTestJournal(t, dir)
	var records []*Record
	require.NoError(t, replayed.Replay(ctx, func(rec *Record) error {
		records = append(records, rec)
		return nil
	}))

	require.Len(t, records, 2)
	assert.Equal(t, RecordCreateTable, records[0].Kind)
	assert.Equal(t, "orders", records[0].Table.Name)
	assert.Equal(t, RecordAppendState, records[1].Kind)
	assert.Equal(t, model.StateID(1), records[1].State.StateID)
	assert.Equal(t, []model.SegmentID{"abc123"}, records[1].State.SegmentSet)
	assert.Equal(t, "stmt-1", records[1].State.StatementRef)
}

func TestReplaySkipsTornTail(t *testing.T) {
	dir := t.TempDir()
	jnl := newTestJournal(t, dir)
	ctx := context.Background()

	entry := &model.TableEntry{TableID: 1, Name: "orders"}
	require.NoError(t, jnl.Append(ctx, &Record{Kind: RecordCreateTable, Timestamp: time.Now(), Table: entry}))
	require.NoError(t, jnl.Close())

	// Simulate a crash mid-write: a torn, non-JSON trailing line.
	files, err := filepath.Glob(filepath.Join(dir, "catalog-*.log"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	f, err := os.OpenFile(files[len(files)-1], os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"APPEND_ST`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	replayed := newTestJournal(t, dir)
	var kinds []RecordKind
	require.NoError(t, replayed.Replay(ctx, func(rec *Record) error {
		kinds = append(kinds, rec.Kind)
		return nil
	}))
	assert.Equal(t, []RecordKind{RecordCreateTable}, kinds)
}

func TestReplayAcrossRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Two journal generations, as after a rotation.
	first := newTestJournal(t, dir)
	require.NoError(t, first.Append(ctx, &Record{Kind: RecordCreateTable, Timestamp: time.Now(), Table: &model.TableEntry{TableID: 1, Name: "a"}}))
	require.NoError(t, first.Close())

	second := newTestJournal(t, dir)
	require.NoError(t, second.Append(ctx, &Record{Kind: RecordCreateTable, Timestamp: time.Now(), Table: &model.TableEntry{TableID: 2, Name: "b"}}))
	require.NoError(t, second.Close())

	replayed := newTestJournal(t, dir)
	var names []string
	require.NoError(t, replayed.Replay(ctx, func(rec *Record) error {
		names = append(names, rec.Table.Name)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, names)
}
