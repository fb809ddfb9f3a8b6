package widget

import (
	"image/color"

	"github.com/cbegin/polyseq-go/internal/engine"
)

// IndexCounter highlights the step a track is currently reading. It is pure
// feedback and never writes to the sequencer state.
type IndexCounter struct {
	cells   []Shape
	rects   []Rect
	current int
}

const counterGap = 2

func NewIndexCounter(s Surface, steps int) *IndexCounter {
	w, h := s.Size()
	c := &IndexCounter{
		cells:   make([]Shape, steps),
		rects:   make([]Rect, steps),
		current: -1,
	}
	cw := 0.0
	if steps > 0 {
		cw = w / float64(steps)
	}
	for i := range c.cells {
		c.cells[i] = s.AddShape()
		c.rects[i] = Rect{X: float64(i) * cw, Width: cw - counterGap, Height: h, Fill: Grey}
		c.cells[i].SetRect(c.rects[i])
	}
	return c
}

// Highlight marks index as sounding: white when gain is audible, black when the
// step is silent. Every other cell returns to grey.
func (c *IndexCounter) Highlight(index int, gain float64) {
	if c.current >= 0 && c.current < len(c.cells) && c.current != index {
		c.paint(c.current, Grey)
	}
	if index < 0 || index >= len(c.cells) {
		c.current = -1
		return
	}
	fill := Black
	if gain > 0 {
		fill = White
	}
	c.paint(index, fill)
	c.current = index
}

// Observe highlights the step a track just read. Muted tracks are coloured by
// their value like any other, so the pattern stays visible while silenced.
func (c *IndexCounter) Observe(ev engine.StepEvent) {
	c.Highlight(ev.Index, ev.Gain)
}

// Current returns the highlighted index, or -1.
func (c *IndexCounter) Current() int { return c.current }

func (c *IndexCounter) paint(i int, fill color.Color) {
	c.rects[i].Fill = fill
	c.cells[i].SetRect(c.rects[i])
}
