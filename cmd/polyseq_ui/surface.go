package main

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/cbegin/polyseq-go/internal/widget"
)

// panel is a widget.Surface backed by a screen rectangle. Shapes keep their
// last attributes and are repainted every frame.
type panel struct {
	rect   image.Rectangle
	shapes []*shape
}

type shape struct {
	r   widget.Rect
	set bool
}

func (s *shape) SetRect(r widget.Rect) {
	s.r = r
	s.set = true
}

func newPanel(rect image.Rectangle) *panel { return &panel{rect: rect} }

func (p *panel) Size() (float64, float64) {
	return float64(p.rect.Dx()), float64(p.rect.Dy())
}

func (p *panel) AddShape() widget.Shape {
	s := &shape{}
	p.shapes = append(p.shapes, s)
	return s
}

func (p *panel) contains(x, y int) bool { return pointInRect(x, y, p.rect) }

// local converts screen coordinates to the panel's own.
func (p *panel) local(kind widget.PointerKind, x, y int) widget.PointerEvent {
	return widget.PointerEvent{
		Kind: kind,
		X:    float64(x - p.rect.Min.X),
		Y:    float64(y - p.rect.Min.Y),
	}
}

func (p *panel) draw(screen *ebiten.Image) {
	sub, ok := screen.SubImage(p.rect).(*ebiten.Image)
	if !ok {
		return
	}
	ox, oy := float64(p.rect.Min.X), float64(p.rect.Min.Y)
	for _, s := range p.shapes {
		if !s.set || s.r.Fill == nil || s.r.Width <= 0 || s.r.Height <= 0 {
			continue
		}
		ebitenutil.DrawRect(sub, ox+s.r.X, oy+s.r.Y, s.r.Width, s.r.Height, s.r.Fill)
	}
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}
