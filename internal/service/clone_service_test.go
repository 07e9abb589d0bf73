package service

import (
	"context"
	"testing"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneSharesSegmentsWithoutCopying(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source, err := h.catalog.CreateTable(ctx, "orders", 1, time.Hour)
	require.NoError(t, err)
	seg, err := h.segments.Put(numberRows(1, 2, 3))
	require.NoError(t, err)
	s1, err := h.catalog.AppendState(ctx, source.TableID, 0, []model.SegmentID{seg}, nil, model.OpInsert, "stmt-1")
	require.NoError(t, err)

	before := h.segments.GetStats()

	clone, err := h.cloner.Clone(ctx, source.TableID, Current(), "orders_dev", "stmt-clone")
	require.NoError(t, err)
	assert.NotEqual(t, source.TableID, clone.TableID)

	after := h.segments.GetStats()
	assert.Equal(t, before.Segments, after.Segments, "clone writes no segments")
	assert.Equal(t, before.TotalBytes, after.TotalBytes)

	head, err := h.catalog.State(clone.TableID, clone.HeadStateID)
	require.NoError(t, err)
	assert.Equal(t, s1.SegmentSet, head.SegmentSet)
	assert.Equal(t, model.OpClone, head.OpKind)
	assert.True(t, head.Tombstones.IsEmpty())

	refs, err := h.segments.Refs(seg)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refs, "source state and clone state each hold one")

	records := h.catalog.CloneRecords()
	require.Len(t, records, 1)
	assert.Equal(t, clone.TableID, records[0].NewTableID)
	assert.Equal(t, source.TableID, records[0].SourceTableID)
	assert.Equal(t, s1.StateID, records[0].SourceStateID)
}

func TestCloneAndSourceDivergeIndependently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source, err := h.catalog.CreateTable(ctx, "orders", 1, time.Hour)
	require.NoError(t, err)
	seg, err := h.segments.Put(numberRows(1, 2))
	require.NoError(t, err)
	s1, err := h.catalog.AppendState(ctx, source.TableID, 0, []model.SegmentID{seg}, nil, model.OpInsert, "stmt-1")
	require.NoError(t, err)

	clone, err := h.cloner.Clone(ctx, source.TableID, Current(), "orders_dev", "stmt-clone")
	require.NoError(t, err)

	// Delete a row in the source only.
	tombstones := model.NewTombstoneSet()
	tombstones.Add(seg, 0)
	_, err = h.catalog.AppendState(ctx, source.TableID, s1.StateID, nil, tombstones, model.OpDelete, "stmt-2")
	require.NoError(t, err)

	// Insert into the clone only.
	seg2, err := h.segments.Put(numberRows(9))
	require.NoError(t, err)
	_, err = h.catalog.AppendState(ctx, clone.TableID, clone.HeadStateID, []model.SegmentID{seg2}, nil, model.OpInsert, "stmt-3")
	require.NoError(t, err)

	sourceHead, err := h.resolver.Resolve(ctx, source.TableID, Current())
	require.NoError(t, err)
	cloneHead, err := h.resolver.Resolve(ctx, clone.TableID, Current())
	require.NoError(t, err)

	assert.True(t, sourceHead.Deleted.Contains(seg, 0))
	assert.False(t, cloneHead.Deleted.Contains(seg, 0), "source delete invisible to clone")
	assert.True(t, cloneHead.HasSegment(seg2))
	assert.False(t, sourceHead.HasSegment(seg2), "clone insert invisible to source")
}

func TestCloneAtPastLocator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source, err := h.catalog.CreateTable(ctx, "orders", 1, 24*time.Hour)
	require.NoError(t, err)
	seg1, err := h.segments.Put(numberRows(1))
	require.NoError(t, err)
	s1, err := h.catalog.AppendState(ctx, source.TableID, 0, []model.SegmentID{seg1}, nil, model.OpInsert, "stmt-1")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	seg2, err := h.segments.Put(numberRows(2))
	require.NoError(t, err)
	_, err = h.catalog.AppendState(ctx, source.TableID, s1.StateID, []model.SegmentID{seg2}, nil, model.OpInsert, "stmt-2")
	require.NoError(t, err)

	clone, err := h.cloner.Clone(ctx, source.TableID, AtStatement("stmt-1"), "orders_asof", "stmt-clone")
	require.NoError(t, err)

	head, err := h.catalog.State(clone.TableID, clone.HeadStateID)
	require.NoError(t, err)
	assert.Equal(t, []model.SegmentID{seg1}, head.SegmentSet, "clone reflects the located state, not the head")
}

func TestCloneRejectsTakenName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source, err := h.catalog.CreateTable(ctx, "orders", 1, time.Hour)
	require.NoError(t, err)
	_, err = h.catalog.AppendState(ctx, source.TableID, 0, nil, nil, model.OpDDL, "stmt-1")
	require.NoError(t, err)

	_, err = h.cloner.Clone(ctx, source.TableID, Current(), "orders", "stmt-clone")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))
}

func TestRestoreBeforeAppendsMatchingHead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry, err := h.catalog.CreateTable(ctx, "orders", 1, time.Hour)
	require.NoError(t, err)
	seg1, err := h.segments.Put(numberRows(1, 2))
	require.NoError(t, err)
	s1, err := h.catalog.AppendState(ctx, entry.TableID, 0, []model.SegmentID{seg1}, nil, model.OpInsert, "stmt-1")
	require.NoError(t, err)

	// A bad delete we will rewind past.
	tombstones := model.NewTombstoneSet()
	tombstones.Add(seg1, 0)
	s2, err := h.catalog.AppendState(ctx, entry.TableID, s1.StateID, nil, tombstones, model.OpDelete, "stmt-bad")
	require.NoError(t, err)

	restored, err := h.cloner.RestoreBefore(ctx, entry.TableID, "stmt-bad", "stmt-restore")
	require.NoError(t, err)

	assert.Equal(t, s2.StateID, restored.ParentStateID, "restore extends the chain, never rewrites it")
	assert.Equal(t, s1.SegmentSet, restored.SegmentSet)
	assert.False(t, restored.Deleted.Contains(seg1, 0), "the bad delete is no longer visible")

	head, err := h.resolver.Resolve(ctx, entry.TableID, Current())
	require.NoError(t, err)
	assert.Equal(t, restored.StateID, head.StateID)

	// The bad statement's state is still addressable for audit.
	audit, err := h.resolver.Resolve(ctx, entry.TableID, AtStatement("stmt-bad"))
	require.NoError(t, err)
	assert.True(t, audit.Deleted.Contains(seg1, 0))
}
