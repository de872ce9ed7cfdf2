package mask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func snapshotWith(t *testing.T, v float32) *Raster {
	t.Helper()

	r, err := NewRaster(2, 2)
	require.NoError(t, err)
	r.Set(0, 0, v)

	return r
}

func TestHistoryUndoRedo(t *testing.T) {
	h := NewHistory(10)

	h.Record(snapshotWith(t, 0))
	h.Record(snapshotWith(t, 0.25))
	h.Record(snapshotWith(t, 0.5))

	require.True(t, h.CanUndo())
	require.False(t, h.CanRedo())

	s, ok := h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0.25), s.At(0, 0))

	s, ok = h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0), s.At(0, 0))

	_, ok = h.Undo()
	require.False(t, ok)

	s, ok = h.Redo()
	require.True(t, ok)
	require.Equal(t, float32(0.25), s.At(0, 0))

	s, ok = h.Redo()
	require.True(t, ok)
	require.Equal(t, float32(0.5), s.At(0, 0))

	_, ok = h.Redo()
	require.False(t, ok)
}

func TestHistoryRecordDiscardsRedoBranch(t *testing.T) {
	h := NewHistory(10)

	h.Record(snapshotWith(t, 0))
	h.Record(snapshotWith(t, 0.25))
	h.Record(snapshotWith(t, 0.5))

	_, ok := h.Undo()
	require.True(t, ok)
	require.True(t, h.CanRedo())

	h.Record(snapshotWith(t, 1))

	require.False(t, h.CanRedo())
	_, ok = h.Redo()
	require.False(t, ok)

	s, ok := h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0.25), s.At(0, 0))
}

func TestHistoryCapacityEvictsOldest(t *testing.T) {
	h := NewHistory(3)

	for i := 0; i < 5; i++ {
		h.Record(snapshotWith(t, float32(i)/10))
	}

	require.Equal(t, 3, h.Depth())

	// Only two undo steps remain; the two oldest snapshots were evicted.
	s, ok := h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0.3), s.At(0, 0))

	s, ok = h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0.2), s.At(0, 0))

	_, ok = h.Undo()
	require.False(t, ok)
}

func TestHistoryReturnsCopies(t *testing.T) {
	h := NewHistory(10)

	h.Record(snapshotWith(t, 0.5))
	h.Record(snapshotWith(t, 1))

	s, ok := h.Undo()
	require.True(t, ok)
	s.Set(0, 0, 0)

	h.Record(snapshotWith(t, 0.75))
	s2, ok := h.Undo()
	require.True(t, ok)
	require.Equal(t, float32(0.5), s2.At(0, 0))
}
