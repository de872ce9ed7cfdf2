package mask

import (
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// Tool identifies the active region-selection tool.
type Tool int

const (
	ToolBrush Tool = iota
	ToolEraser
	ToolRectangle
	ToolLasso
)

// Point is a position in display coordinates.
type Point struct {
	X float64
	Y float64
}

// hardEdgeFraction is the share of the brush radius painted at full opacity
// when hardness is 100; lower hardness moves the falloff start inward.
const hardEdgeFraction = 0.9

// Editor maintains the region-of-interest raster for one loaded image and
// exposes the drawing, refinement and history operations. It is an explicit
// handle owned by the caller; there is no package-level editor state. All
// methods must be called from a single goroutine (the UI loop).
//
// Every operation issued before Load is a silent no-op: no raster exists
// yet, and this is intentional rather than an error.
type Editor struct {
	raster  *Raster
	history *History
	scale   float64 // display -> image coordinate factor, fixed per load

	tool      Tool
	brushSize int // brush diameter in image pixels
	hardness  int // 0..100

	stroke  []Point // in-progress freehand points, image space
	preview []Point // transient shape overlay points, display space

	onCommit func(*Raster)
}

// NewEditor creates an editor with default tool state. The onCommit callback
// receives the raster after every committed mutation so the owning request
// builder can refresh its pending mask; it may be nil.
func NewEditor(onCommit func(*Raster)) *Editor {
	return &Editor{
		history:   NewHistory(DefaultHistoryDepth),
		scale:     1,
		tool:      ToolBrush,
		brushSize: 40,
		hardness:  100,
		onCommit:  onCommit,
	}
}

// Load attaches the editor to a freshly loaded source image. The display
// width fixes the display-to-image scale factor for the lifetime of the
// load; the raster starts fully transparent.
func (e *Editor) Load(imageWidth, imageHeight int, displayWidth float64) error {
	r, err := NewRaster(imageWidth, imageHeight)
	if err != nil {
		return err
	}

	e.raster = r
	e.history = NewHistory(DefaultHistoryDepth)
	e.history.Record(r.Clone())
	e.stroke = nil
	e.preview = nil

	e.scale = 1
	if displayWidth > 0 {
		e.scale = float64(imageWidth) / displayWidth
	}

	return nil
}

// Loaded reports whether a raster exists to edit.
func (e *Editor) Loaded() bool { return e.raster != nil }

// Raster returns the live raster, or nil before Load. Callers that keep the
// value across operations should Clone it.
func (e *Editor) Raster() *Raster { return e.raster }

// SetTool selects the active tool.
func (e *Editor) SetTool(t Tool) { e.tool = t }

// SetBrushSize sets the brush diameter in image pixels (minimum 1).
func (e *Editor) SetBrushSize(size int) {
	if size < 1 {
		size = 1
	}
	e.brushSize = size
}

// SetHardness sets the brush hardness, clamped to 0..100.
func (e *Editor) SetHardness(h int) {
	if h < 0 {
		h = 0
	}
	if h > 100 {
		h = 100
	}
	e.hardness = h
}

// toImage maps a display-space point into image-space pixel coordinates.
func (e *Editor) toImage(p Point) Point {
	return Point{X: p.X * e.scale, Y: p.Y * e.scale}
}

// BeginStroke starts a freehand brush or eraser stroke at the given display
// point. The pre-stroke state is already in history; the stroke is recorded
// as a single undoable step on EndStroke.
func (e *Editor) BeginStroke(p Point) {
	if e.raster == nil {
		return
	}

	ip := e.toImage(p)
	e.stroke = []Point{ip}
	e.dab(ip)
}

// ExtendStroke continues the stroke. Dabs are interpolated along the path at
// a spacing of brushSize/4 so fast pointer motion leaves no gaps.
func (e *Editor) ExtendStroke(p Point) {
	if e.raster == nil || len(e.stroke) == 0 {
		return
	}

	from := e.stroke[len(e.stroke)-1]
	to := e.toImage(p)
	e.stroke = append(e.stroke, to)

	spacing := float64(e.brushSize) / 4
	if spacing < 1 {
		spacing = 1
	}

	dist := math.Hypot(to.X-from.X, to.Y-from.Y)
	steps := int(dist / spacing)

	for i := 1; i <= steps; i++ {
		t := float64(i) * spacing / dist
		e.dab(Point{X: from.X + (to.X-from.X)*t, Y: from.Y + (to.Y-from.Y)*t})
	}
	e.dab(to)
}

// EndStroke commits the stroke as one history step.
func (e *Editor) EndStroke() {
	if e.raster == nil || len(e.stroke) == 0 {
		return
	}

	e.stroke = nil
	e.commit()
}

// dab stamps one filled disc at the image-space point. With hardness 100 the
// disc has a hard edge; below that, opacity falls off radially from full at
// radius*(hardness/100*0.9) to zero at the brush radius. The eraser runs the
// identical disc but removes opacity instead of adding it.
func (e *Editor) dab(center Point) {
	radius := float64(e.brushSize) / 2
	inner := radius * float64(e.hardness) / 100 * hardEdgeFraction

	minX := int(math.Floor(center.X - radius))
	maxX := int(math.Ceil(center.X + radius))
	minY := int(math.Floor(center.Y - radius))
	maxY := int(math.Ceil(center.Y + radius))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			d := math.Hypot(float64(x)-center.X, float64(y)-center.Y)
			if d > radius {
				continue
			}

			c := float32(1)
			if d > inner && radius > inner {
				c = float32(1 - (d-inner)/(radius-inner))
			}

			// Overlapping dabs composite with max/min rather than summing;
			// the brushSize/4 spacing would otherwise saturate soft edges.
			if e.tool == ToolEraser {
				if cur := e.raster.At(x, y); cur > 1-c {
					e.raster.Set(x, y, 1-c)
				}
			} else {
				if cur := e.raster.At(x, y); cur < c {
					e.raster.Set(x, y, c)
				}
			}
		}
	}
}

// SetPreview replaces the transient shape overlay shown while the user drags
// a rectangle or lasso. Preview points never touch the raster or history.
func (e *Editor) SetPreview(points []Point) {
	if e.raster == nil {
		return
	}
	e.preview = points
}

// Preview returns the current transient overlay points.
func (e *Editor) Preview() []Point { return e.preview }

// ApplyRectangle fills the rectangle spanned by two display-space corners
// into the mask at full opacity.
func (e *Editor) ApplyRectangle(p0, p1 Point) {
	if e.raster == nil {
		return
	}

	a := e.toImage(p0)
	b := e.toImage(p1)

	minX := int(math.Floor(math.Min(a.X, b.X)))
	maxX := int(math.Ceil(math.Max(a.X, b.X)))
	minY := int(math.Floor(math.Min(a.Y, b.Y)))
	maxY := int(math.Ceil(math.Max(a.Y, b.Y)))

	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			e.raster.Set(x, y, 1)
		}
	}

	e.preview = nil
	e.commit()
}

// ApplyLasso closes the freehand path and fills its interior into the mask.
// Fewer than three points is a no-op. The path is rasterized with
// antialiased polygon fill, so boundary pixels keep partial opacity.
func (e *Editor) ApplyLasso(points []Point) {
	if e.raster == nil || len(points) < 3 {
		return
	}

	dc := gg.NewContext(e.raster.width, e.raster.height)
	dc.SetColor(color.White)

	first := e.toImage(points[0])
	dc.MoveTo(first.X, first.Y)
	for _, p := range points[1:] {
		ip := e.toImage(p)
		dc.LineTo(ip.X, ip.Y)
	}
	dc.ClosePath()
	dc.Fill()

	filled := dc.Image()
	for y := 0; y < e.raster.height; y++ {
		for x := 0; x < e.raster.width; x++ {
			r, _, _, _ := filled.At(x, y).RGBA()
			if c := float32(r) / 0xffff; c > e.raster.At(x, y) {
				e.raster.Set(x, y, c)
			}
		}
	}

	e.preview = nil
	e.commit()
}

// Grow dilates the mask by a disc of the given pixel radius.
func (e *Editor) Grow(radius int) {
	if e.raster == nil || radius <= 0 {
		return
	}

	e.raster.Dilate(radius)
	e.commit()
}

// Shrink erodes the mask by a disc of the given pixel radius.
func (e *Editor) Shrink(radius int) {
	if e.raster == nil || radius <= 0 {
		return
	}

	e.raster.Erode(radius)
	e.commit()
}

// Feather blurs the mask edges by the given radius.
func (e *Editor) Feather(radius float64) {
	if e.raster == nil || radius <= 0 {
		return
	}

	e.raster.Feather(radius)
	e.commit()
}

// Invert complements the mask continuously (v' = 1 - v), preserving
// feathered values; applying it twice restores the original mask.
func (e *Editor) Invert() {
	if e.raster == nil {
		return
	}

	e.raster.Invert()
	e.commit()
}

// FillAll sets every pixel to full opacity.
func (e *Editor) FillAll() {
	if e.raster == nil {
		return
	}

	e.raster.Fill()
	e.commit()
}

// Clear sets every pixel to zero opacity.
func (e *Editor) Clear() {
	if e.raster == nil {
		return
	}

	e.raster.Clear()
	e.commit()
}

// Undo restores the previous snapshot. It never records history itself.
func (e *Editor) Undo() bool {
	if e.raster == nil {
		return false
	}

	snap, ok := e.history.Undo()
	if !ok {
		return false
	}

	e.raster = snap
	e.export()

	return true
}

// Redo restores the next snapshot if one exists.
func (e *Editor) Redo() bool {
	if e.raster == nil {
		return false
	}

	snap, ok := e.history.Redo()
	if !ok {
		return false
	}

	e.raster = snap
	e.export()

	return true
}

// CanUndo reports whether an undo step is available.
func (e *Editor) CanUndo() bool { return e.raster != nil && e.history.CanUndo() }

// CanRedo reports whether a redo step is available.
func (e *Editor) CanRedo() bool { return e.raster != nil && e.history.CanRedo() }

// commit records the mutated raster in history and exports it.
func (e *Editor) commit() {
	e.history.Record(e.raster.Clone())
	e.export()
}

// export hands the current raster to the owner after every committed change.
func (e *Editor) export() {
	if e.onCommit != nil {
		e.onCommit(e.raster)
	}
}
