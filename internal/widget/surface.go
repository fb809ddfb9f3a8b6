// Package widget holds the direct-manipulation editors for the sequencer state.
// Widgets draw through a Surface and consume pointer events in surface-local
// coordinates; they know nothing about how shapes reach the screen.
package widget

import (
	"image/color"
	"math"
)

// Rect is the attribute set of one rectangle shape.
type Rect struct {
	X, Y          float64
	Width, Height float64
	Fill          color.Color
}

// Shape is a drawable owned by a surface.
type Shape interface {
	SetRect(r Rect)
}

// Surface is the 2D vector-graphics collaborator.
type Surface interface {
	Size() (width, height float64)
	AddShape() Shape
}

type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
)

func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	default:
		return "unknown"
	}
}

// PointerEvent carries a pointer transition relative to the widget's surface.
type PointerEvent struct {
	Kind PointerKind
	X, Y float64
}

var (
	Black  = color.RGBA{0, 0, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
	Grey   = color.RGBA{0x88, 0x88, 0x88, 255}
	Orange = color.RGBA{0xff, 0xa5, 0x00, 255}
)

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
