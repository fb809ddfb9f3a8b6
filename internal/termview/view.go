// Package termview draws the step display of the headless player.
package termview

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/polyseq-go/internal/engine"
)

var levels = []rune(" ▁▂▃▄▅▆▇█")

const outside = '·'

type playhead struct {
	index int
	gain  float64
}

// View renders one row per track. The highlighted cell is white when the step
// sounded and black when it was silent, like the on-screen index counter.
type View struct {
	mu     sync.Mutex
	names  []string
	heads  []playhead
	step   uint64
	styles styles
}

type styles struct {
	label   lipgloss.Style
	muted   lipgloss.Style
	inside  lipgloss.Style
	outside lipgloss.Style
	hit     lipgloss.Style
	silent  lipgloss.Style
	footer  lipgloss.Style
}

// New builds a view for the named tracks, styled for the terminal behind w.
func New(w io.Writer, names []string) *View {
	r := lipgloss.NewRenderer(w)
	v := &View{
		names: append([]string(nil), names...),
		heads: make([]playhead, len(names)),
		styles: styles{
			label:   r.NewStyle().Width(8).Bold(true),
			muted:   r.NewStyle().Width(8).Faint(true),
			inside:  r.NewStyle().Foreground(lipgloss.Color("#888888")),
			outside: r.NewStyle().Foreground(lipgloss.Color("#444444")),
			hit:     r.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#FFFFFF")),
			silent:  r.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#000000")),
			footer:  r.NewStyle().Faint(true),
		},
	}
	for i := range v.heads {
		v.heads[i].index = -1
	}
	return v
}

// Observe is a step observer. It only records the playhead.
func (v *View) Observe(ev engine.StepEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if ev.Track < 0 || ev.Track >= len(v.heads) {
		return
	}
	v.heads[ev.Track] = playhead{index: ev.Index, gain: ev.Gain}
	v.step = ev.Step
}

func (v *View) Render(snap engine.Snapshot) string {
	v.mu.Lock()
	heads := append([]playhead(nil), v.heads...)
	step := v.step
	v.mu.Unlock()

	var b strings.Builder
	for t, name := range v.names {
		label := v.styles.label
		if t < len(snap.Muted) && snap.Muted[t] {
			label = v.styles.muted
			name += "*"
		}
		b.WriteString(label.Render(name))
		offset, length := 0, len(snap.Sequence)
		if t < len(snap.Offsets) && t < len(snap.Lengths) {
			offset, length = snap.Offsets[t], snap.Lengths[t]
		}
		for i, val := range snap.Sequence {
			in := i >= offset && i < offset+length
			glyph := string(level(val))
			style := v.styles.inside
			if !in {
				style = v.styles.outside
				if val == 0 {
					glyph = string(outside)
				}
			}
			if t < len(heads) && heads[t].index == i {
				style = v.styles.silent
				if heads[t].gain > 0 {
					style = v.styles.hit
				}
			}
			b.WriteString(style.Render(glyph))
		}
		b.WriteByte('\n')
	}
	b.WriteString(v.styles.footer.Render(fmt.Sprintf("step %d", step)))
	return b.String()
}

// level picks a block glyph for a 0..127 value.
func level(v int) rune {
	if v <= 0 {
		return levels[0]
	}
	if v >= engine.MaxVelocity {
		return levels[len(levels)-1]
	}
	return levels[1+v*(len(levels)-2)/engine.MaxVelocity]
}
