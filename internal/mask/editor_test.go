package mask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func loadedEditor(t *testing.T) *Editor {
	t.Helper()

	e := NewEditor(nil)
	require.NoError(t, e.Load(64, 64, 64))

	return e
}

func TestOperationsBeforeLoadAreSilentlyIgnored(t *testing.T) {
	e := NewEditor(nil)

	// None of these may panic or surface an error: no raster exists yet.
	e.BeginStroke(Point{X: 10, Y: 10})
	e.ExtendStroke(Point{X: 20, Y: 20})
	e.EndStroke()
	e.ApplyRectangle(Point{X: 0, Y: 0}, Point{X: 10, Y: 10})
	e.ApplyLasso([]Point{{0, 0}, {10, 0}, {5, 10}})
	e.Grow(2)
	e.Shrink(2)
	e.Feather(2)
	e.Invert()
	e.FillAll()
	e.Clear()

	require.False(t, e.Loaded())
	require.Nil(t, e.Raster())
	require.False(t, e.Undo())
	require.False(t, e.Redo())
}

func TestFillAllAndClear(t *testing.T) {
	e := loadedEditor(t)

	e.FillAll()
	require.Equal(t, 1.0, e.Raster().Coverage())

	e.Clear()
	require.Equal(t, 0.0, e.Raster().Coverage())
}

func TestBrushStrokeStampsDabs(t *testing.T) {
	e := loadedEditor(t)
	e.SetTool(ToolBrush)
	e.SetBrushSize(10)
	e.SetHardness(100)

	e.BeginStroke(Point{X: 32, Y: 32})
	e.EndStroke()

	require.Equal(t, float32(1), e.Raster().At(32, 32))
	require.Equal(t, float32(1), e.Raster().At(34, 32)) // inside the hard core
	require.Equal(t, float32(0), e.Raster().At(40, 32)) // beyond the radius
}

func TestStrokeInterpolatesBetweenSampledPoints(t *testing.T) {
	e := loadedEditor(t)
	e.SetBrushSize(8)

	// Fast pointer motion: two samples 40px apart must leave no gap.
	e.BeginStroke(Point{X: 10, Y: 32})
	e.ExtendStroke(Point{X: 50, Y: 32})
	e.EndStroke()

	for x := 10; x <= 50; x++ {
		require.Greater(t, e.Raster().At(x, 32), float32(0), "gap at x=%d", x)
	}
}

func TestSoftBrushFallsOffRadially(t *testing.T) {
	e := loadedEditor(t)
	e.SetBrushSize(20)
	e.SetHardness(50)

	e.BeginStroke(Point{X: 32, Y: 32})
	e.EndStroke()

	center := e.Raster().At(32, 32)
	nearEdge := e.Raster().At(41, 32)

	require.Equal(t, float32(1), center)
	require.Greater(t, nearEdge, float32(0))
	require.Less(t, nearEdge, center)
}

func TestEraserRemovesOpacity(t *testing.T) {
	e := loadedEditor(t)
	e.FillAll()

	e.SetTool(ToolEraser)
	e.SetBrushSize(10)
	e.SetHardness(100)
	e.BeginStroke(Point{X: 32, Y: 32})
	e.EndStroke()

	require.Equal(t, float32(0), e.Raster().At(32, 32))
	require.Equal(t, float32(1), e.Raster().At(0, 0))
}

func TestApplyRectangle(t *testing.T) {
	e := loadedEditor(t)

	e.ApplyRectangle(Point{X: 10, Y: 10}, Point{X: 20, Y: 20})

	require.Equal(t, float32(1), e.Raster().At(15, 15))
	require.Equal(t, float32(0), e.Raster().At(25, 25))
}

func TestApplyLassoFillsClosedPath(t *testing.T) {
	e := loadedEditor(t)

	e.ApplyLasso([]Point{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 30, Y: 50}})

	require.Greater(t, e.Raster().At(30, 20), float32(0.9)) // interior
	require.Equal(t, float32(0), e.Raster().At(5, 5))       // exterior
}

func TestLassoWithFewerThanThreePointsIsANoop(t *testing.T) {
	e := loadedEditor(t)

	e.ApplyLasso([]Point{{X: 10, Y: 10}, {X: 50, Y: 10}})

	require.True(t, e.Raster().Empty())
	require.False(t, e.CanUndo())
}

func TestDisplayCoordinatesScaleToImageSpace(t *testing.T) {
	e := NewEditor(nil)
	// 128px image shown in a 64px container: display points double.
	require.NoError(t, e.Load(128, 128, 64))

	e.ApplyRectangle(Point{X: 10, Y: 10}, Point{X: 20, Y: 20})

	require.Equal(t, float32(1), e.Raster().At(30, 30))
	require.Equal(t, float32(0), e.Raster().At(15, 15))
}

func TestUndoReturnsToPreSequenceState(t *testing.T) {
	e := loadedEditor(t)
	before := e.Raster().Clone()

	// A mixed sequence of N mutating operations...
	e.FillAll()
	e.ApplyRectangle(Point{X: 5, Y: 5}, Point{X: 30, Y: 30})
	e.Invert()
	e.BeginStroke(Point{X: 40, Y: 40})
	e.ExtendStroke(Point{X: 50, Y: 50})
	e.EndStroke()
	e.Feather(2)
	e.Shrink(1)
	e.Grow(1)
	e.Clear()

	// ...followed by N undos restores the raster exactly.
	for i := 0; i < 8; i++ {
		require.True(t, e.Undo(), "undo %d", i)
	}
	require.False(t, e.CanUndo())
	require.True(t, rastersEqual(before, e.Raster()))
}

func TestRedoRestoresUndoneOperation(t *testing.T) {
	e := loadedEditor(t)

	e.FillAll()
	afterFill := e.Raster().Clone()

	e.Clear()
	require.True(t, e.Undo())
	require.True(t, rastersEqual(afterFill, e.Raster()))

	require.True(t, e.Redo())
	require.True(t, e.Raster().Empty())
}

func TestNewMutationDiscardsRedoBranch(t *testing.T) {
	e := loadedEditor(t)

	e.FillAll()
	e.Clear()
	require.True(t, e.Undo())
	require.True(t, e.CanRedo())

	e.ApplyRectangle(Point{X: 0, Y: 0}, Point{X: 5, Y: 5})

	require.False(t, e.CanRedo())
	require.False(t, e.Redo())
}

func TestUndoRedoNeverRecordHistory(t *testing.T) {
	e := loadedEditor(t)

	e.FillAll()
	e.Clear()

	depth := e.history.Depth()
	e.Undo()
	e.Redo()
	require.Equal(t, depth, e.history.Depth())
}

func TestCommitExportsMaskToOwner(t *testing.T) {
	var exports int
	var last *Raster

	e := NewEditor(func(r *Raster) {
		exports++
		last = r
	})
	require.NoError(t, e.Load(32, 32, 32))

	e.FillAll()
	require.Equal(t, 1, exports)
	require.Equal(t, 1.0, last.Coverage())

	// Undo re-exports the restored state.
	require.True(t, e.Undo())
	require.Equal(t, 2, exports)
	require.True(t, last.Empty())
}

func TestPreviewNeverTouchesRasterOrHistory(t *testing.T) {
	e := loadedEditor(t)

	e.SetPreview([]Point{{X: 1, Y: 1}, {X: 10, Y: 10}})
	require.Len(t, e.Preview(), 2)
	require.True(t, e.Raster().Empty())
	require.False(t, e.CanUndo())

	// Committing the shape clears the transient overlay.
	e.ApplyRectangle(Point{X: 1, Y: 1}, Point{X: 10, Y: 10})
	require.Empty(t, e.Preview())
}
