package widget

import "math"

// Mode selects how a multi-slider cell is drawn.
type Mode int

const (
	ModeBar  Mode = iota // filled from zero up to the value
	ModeLine             // thin line at the value's height
)

const (
	maxValue      = 127
	lineThickness = 2
)

// ValueStore is the sequence the multi-slider edits in place.
type ValueStore interface {
	Len() int
	Value(i int) int
	SetValue(i, v int)
	Sequence() []int
}

// MultiSlider edits one value per column. Every change is written through to
// the store and reported immediately, while the pointer is still down.
type MultiSlider struct {
	store    ValueStore
	cells    []Shape
	mode     Mode
	width    float64
	height   float64
	dragging bool
	onChange func(seq []int)
}

func NewMultiSlider(s Surface, store ValueStore, mode Mode, onChange func(seq []int)) *MultiSlider {
	w, h := s.Size()
	m := &MultiSlider{
		store:    store,
		cells:    make([]Shape, store.Len()),
		mode:     mode,
		width:    w,
		height:   h,
		onChange: onChange,
	}
	for i := range m.cells {
		m.cells[i] = s.AddShape()
		m.render(i, store.Value(i))
	}
	return m
}

func (m *MultiSlider) cellWidth() float64 {
	if len(m.cells) == 0 {
		return 0
	}
	return m.width / float64(len(m.cells))
}

func (m *MultiSlider) Dragging() bool { return m.dragging }

func (m *MultiSlider) HandlePointer(ev PointerEvent) {
	switch ev.Kind {
	case PointerDown:
		m.dragging = true
		m.set(ev.X, ev.Y)
	case PointerMove:
		if m.dragging {
			m.set(ev.X, ev.Y)
		}
	case PointerUp:
		m.dragging = false
	}
}

func (m *MultiSlider) set(x, y float64) {
	cw := m.cellWidth()
	if cw <= 0 || m.height <= 0 {
		return
	}
	idx := int(math.Floor(x / cw))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.cells) {
		idx = len(m.cells) - 1
	}
	norm := clampFloat((m.height-y)/m.height, 0, 1)
	v := int(math.Floor(norm * maxValue))

	m.store.SetValue(idx, v)
	m.render(idx, v)
	if m.onChange != nil {
		m.onChange(m.store.Sequence())
	}
}

// Update redraws every cell from seq.
func (m *MultiSlider) Update(seq []int) {
	for i := 0; i < len(seq) && i < len(m.cells); i++ {
		m.render(i, seq[i])
	}
}

func (m *MultiSlider) render(i, v int) {
	cw := m.cellWidth()
	h := float64(v) / maxValue * m.height
	r := Rect{X: float64(i) * cw, Width: cw - 1, Fill: Black}
	if m.mode == ModeLine {
		r.Y = m.height - h - lineThickness/2.0
		r.Height = lineThickness
	} else {
		r.Y = m.height - h
		r.Height = h
	}
	m.cells[i].SetRect(r)
}
