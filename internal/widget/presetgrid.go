package widget

import (
	"image/color"
	"math"
)

const presetMargin = 4

// PresetGrid is the slot picker. A plain click selects a saved slot, a save
// click stores into any slot. Empty slots are grey, saved ones black and the
// selected one orange.
type PresetGrid struct {
	cells    []Shape
	rects    []Rect
	saved    []bool
	selected int
	perRow   int
	onSelect func(slot int)
	onSave   func(slot int)
}

func NewPresetGrid(s Surface, slots, perRow int, onSelect, onSave func(slot int)) *PresetGrid {
	if perRow <= 0 {
		perRow = slots
	}
	w, h := s.Size()
	rows := 1
	if perRow > 0 {
		rows = int(math.Ceil(float64(slots) / float64(perRow)))
	}
	bw, bh := w-presetMargin, h-presetMargin
	g := &PresetGrid{
		cells:    make([]Shape, slots),
		rects:    make([]Rect, slots),
		saved:    make([]bool, slots),
		selected: -1,
		perRow:   perRow,
		onSelect: onSelect,
		onSave:   onSave,
	}
	for i := range g.cells {
		g.cells[i] = s.AddShape()
		g.rects[i] = Rect{
			X:      float64(i%perRow)*bw/float64(perRow) + presetMargin,
			Y:      float64(i/perRow)*bh/float64(rows) + presetMargin,
			Width:  bw/float64(perRow) - presetMargin,
			Height: bh/float64(rows) - presetMargin,
			Fill:   Grey,
		}
		g.cells[i].SetRect(g.rects[i])
	}
	return g
}

// CellAt returns the slot under (x, y), or -1.
func (g *PresetGrid) CellAt(x, y float64) int {
	for i, r := range g.rects {
		if x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height {
			return i
		}
	}
	return -1
}

func (g *PresetGrid) Click(slot int, save bool) {
	if slot < 0 || slot >= len(g.cells) {
		return
	}
	if save {
		g.MarkSaved(slot)
		if g.onSave != nil {
			g.onSave(slot)
		}
		return
	}
	if !g.saved[slot] {
		return
	}
	if g.selected >= 0 && g.selected != slot {
		g.paint(g.selected, Black)
	}
	g.selected = slot
	g.paint(slot, Orange)
	if g.onSelect != nil {
		g.onSelect(slot)
	}
}

// MarkSaved shows slot as occupied without firing the save callback.
func (g *PresetGrid) MarkSaved(slot int) {
	if slot < 0 || slot >= len(g.cells) {
		return
	}
	g.saved[slot] = true
	if slot != g.selected {
		g.paint(slot, Black)
	}
}

func (g *PresetGrid) Selected() int { return g.selected }

func (g *PresetGrid) Saved(slot int) bool {
	return slot >= 0 && slot < len(g.saved) && g.saved[slot]
}

func (g *PresetGrid) paint(i int, fill color.Color) {
	g.rects[i].Fill = fill
	g.cells[i].SetRect(g.rects[i])
}
