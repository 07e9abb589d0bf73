package segment

import (
	"context"
	"testing"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/diskmanager"
	"github.com/strata-db/strata/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(dir), zap.NewNop())
	require.NoError(t, err)
	store, err := NewStore(dir, disk, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Open(context.Background()))
	return store
}

func testRows(values ...float64) []model.Row {
	rows := make([]model.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, model.Row{"value": variant.Number(v)})
	}
	return rows
}

func TestPutDeduplicatesIdenticalBatches(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	id1, err := store.Put(testRows(1, 2, 3))
	require.NoError(t, err)
	id2, err := store.Put(testRows(1, 2, 3))
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "identical content must share one segment")
	assert.Equal(t, 1, store.GetStats().Segments)
	assert.Equal(t, uint64(1), store.GetStats().DedupHits)

	id3, err := store.Put(testRows(4, 5))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, 2, store.GetStats().Segments)
}

func TestGetReturnsStoredRows(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	want := testRows(10, 20, 30)
	id, err := store.Put(want)
	require.NoError(t, err)

	got, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.True(t, want[i]["value"].Equal(got[i]["value"]))
	}

	count, err := store.RowCount(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
}

func TestGetSliceIsDetachedFromCache(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	id, err := store.Put(testRows(10, 20))
	require.NoError(t, err)

	got, err := store.Get(id)
	require.NoError(t, err)
	got[0] = model.Row{"value": variant.Number(99)}

	again, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, again[0]["value"].Equal(variant.Number(10)),
		"overwriting a returned slice element must not reach the cached copy")
}

func TestReleaseDeletesAtZeroRefs(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	id, err := store.Put(testRows(1))
	require.NoError(t, err)

	require.NoError(t, store.Retain(id))
	require.NoError(t, store.Retain(id))

	refs, err := store.Refs(id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refs)

	require.NoError(t, store.Release(id))
	assert.True(t, store.Contains(id), "still referenced once")

	require.NoError(t, store.Release(id))
	assert.False(t, store.Contains(id), "last release deletes the segment")
	assert.Equal(t, uint64(1), store.GetStats().Reclaimed)

	_, err = store.Get(id)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestOpenRecoversSegmentsFromDisk(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)

	id, err := store.Put(testRows(7, 8, 9))
	require.NoError(t, err)

	reopened := newTestStore(t, dir)
	assert.True(t, reopened.Contains(id))

	rows, err := reopened.Get(id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, float64(8), rows[1]["value"].NumberValue())
}
