package widget

import "math"

// DefaultGridCells is the number of cells the range selector snaps to.
const DefaultGridCells = 16

// RangeSelector edits a [min, max] window on a vertical grid. The visual top is
// the highest logical value. A drag commits only on release.
type RangeSelector struct {
	shape    Shape
	width    float64
	height   float64
	grid     int
	dragging bool
	anchorY  float64
	rectY    float64
	rectH    float64
	min, max int
	onChange func(min, max int)
}

// NewRangeSelector draws a selector showing [min, max] on a grid of cells. A
// grid <= 0 uses DefaultGridCells. onChange receives the committed range.
func NewRangeSelector(s Surface, grid, min, max int, onChange func(min, max int)) *RangeSelector {
	if grid <= 0 {
		grid = DefaultGridCells
	}
	w, h := s.Size()
	r := &RangeSelector{
		shape:    s.AddShape(),
		width:    w,
		height:   h,
		grid:     grid,
		onChange: onChange,
	}
	r.Update(min, max)
	return r
}

// Update resynchronises the selector with an externally set range.
func (r *RangeSelector) Update(min, max int) {
	if min > max {
		min, max = max, min
	}
	r.min = clampCell(min, r.grid)
	r.max = clampCell(max, r.grid)
	r.renderLogical()
}

// Range returns the last committed range.
func (r *RangeSelector) Range() (min, max int) { return r.min, r.max }

func (r *RangeSelector) Dragging() bool { return r.dragging }

func (r *RangeSelector) Grid() int { return r.grid }

func (r *RangeSelector) HandlePointer(ev PointerEvent) {
	switch ev.Kind {
	case PointerDown:
		r.dragging = true
		r.anchorY = r.snap(ev.Y)
		r.drag(ev.Y)
	case PointerMove:
		if r.dragging {
			r.drag(ev.Y)
		}
	case PointerUp:
		if r.dragging {
			r.dragging = false
			r.commit()
		}
	}
}

// snap rounds a pointer position to the nearest grid line inside the widget.
func (r *RangeSelector) snap(y float64) float64 {
	if r.height <= 0 {
		return 0
	}
	y = clampFloat(y, 0, r.height)
	return math.Round(y/r.height*float64(r.grid)) / float64(r.grid) * r.height
}

func (r *RangeSelector) drag(y float64) {
	far := r.snap(y)
	r.rectY = math.Min(r.anchorY, far)
	r.rectH = math.Abs(far - r.anchorY)
	r.shape.SetRect(r.rect())
}

func (r *RangeSelector) commit() {
	minCell, maxCell := r.cell(r.rectY), r.cell(r.rectY+r.rectH)
	if minCell == maxCell {
		// A click without a drag would leave a silent zero-length window.
		minCell, maxCell = 0, r.grid
	}
	r.min = r.grid - maxCell
	r.max = r.grid - minCell
	r.renderLogical()
	if r.onChange != nil {
		r.onChange(r.min, r.max)
	}
}

func (r *RangeSelector) cell(y float64) int {
	if r.height <= 0 {
		return 0
	}
	return clampCell(int(math.Round(y/r.height*float64(r.grid))), r.grid)
}

func (r *RangeSelector) renderLogical() {
	g := float64(r.grid)
	r.rectY = (1 - float64(r.max)/g) * r.height
	r.rectH = float64(r.max-r.min) / g * r.height
	r.shape.SetRect(r.rect())
}

func (r *RangeSelector) rect() Rect {
	return Rect{X: 0, Y: r.rectY, Width: r.width, Height: r.rectH, Fill: Black}
}

func clampCell(v, grid int) int {
	if v < 0 {
		return 0
	}
	if v > grid {
		return grid
	}
	return v
}
