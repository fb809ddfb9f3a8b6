package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/polyseq-go"
	"github.com/cbegin/polyseq-go/internal/audio"
	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/kit"
	"github.com/cbegin/polyseq-go/internal/mixer"
	"github.com/cbegin/polyseq-go/internal/preset"
	"github.com/cbegin/polyseq-go/internal/widget"
)

const (
	windowW = 980
	windowH = 660

	pad         = 20
	sliderW     = 640
	sliderH     = 260
	selectorW   = 44
	counterH    = 18
	rowGap      = 10
	buttonW     = 90
	buttonH     = 28
	presetW     = 280
	presetH     = 90
	presetSlots = 16
	presetCols  = 8
	toneW       = 120
	toneH       = 90

	audioBuffer = 60 * time.Millisecond
)

var (
	bgColor         = color.RGBA{192, 192, 192, 255}
	panelColor      = color.RGBA{220, 220, 220, 255}
	borderColor     = color.RGBA{128, 128, 128, 255}
	bevelLight      = color.RGBA{255, 255, 255, 255}
	bevelDarker     = color.RGBA{64, 64, 64, 255}
	sliderFillColor = color.RGBA{0, 0, 128, 255}
	mutedColor      = color.RGBA{160, 64, 64, 255}
)

var toneLabels = [3]string{"Lo", "Mid", "Hi"}

type trackRow struct {
	counter  *widget.IndexCounter
	counterP *panel
	selector *widget.RangeSelector
	rangeP   *panel
	mute     image.Rectangle
	sound    image.Rectangle
}

type game struct {
	cfg    config.Config
	seq    *polyseq.Sequencer
	mixer  *mixer.Mixer
	out    *audio.Output
	ids    []polyseq.SampleID
	events <-chan polyseq.Event
	logger *log.Logger

	slider  *widget.MultiSlider
	sliderP *panel
	rows    []trackRow
	presets *widget.PresetGrid
	presetP *panel

	// Pointer events go to the widget that saw the press.
	active  func(widget.PointerEvent, int, int)
	lastX   int
	lastY   int
	playing bool

	play   image.Rectangle
	volume image.Rectangle
	tone   image.Rectangle
	status image.Rectangle

	masterGain   float64
	toneGains    [3]float64
	draggingVol  bool
	draggingTone int

	statusMsg string
	statusErr bool
}

func newGame(cfg config.Config, logger *log.Logger) (*game, error) {
	m := mixer.New(cfg.SampleRate, mixer.Options{BPM: cfg.BPM, PulsesPerBeat: cfg.PulsesPerBeat})
	ids, loadErr := kit.Load(m, cfg.Samples, cfg.SampleRate, uint64(cfg.Seed), logger)
	if loadErr != nil {
		logger.Warn("some samples failed to load and will be silent", "err", loadErr)
	}
	seq, err := polyseq.NewFromConfig(cfg, ids,
		polyseq.WithBackend(m),
		polyseq.WithLogger(logger),
		polyseq.WithPresetSlots(presetSlots))
	if err != nil {
		return nil, err
	}
	if cfg.PresetsFile != "" {
		if bank, err := preset.ReadFile(cfg.PresetsFile); err != nil {
			logger.Warn("presets not loaded", "path", cfg.PresetsFile, "err", err)
		} else {
			seq.SetPresets(bank)
		}
	}
	m.OnPulse(seq.OnPulse)

	out, err := audio.Open(cfg.SampleRate, m, audioBuffer)
	if err != nil {
		_ = seq.Close()
		return nil, err
	}

	g := &game{
		cfg:          cfg,
		seq:          seq,
		mixer:        m,
		out:          out,
		ids:          ids,
		events:       seq.Watch(),
		logger:       logger,
		masterGain:   1,
		toneGains:    [3]float64{1, 1, 1},
		draggingTone: -1,
		statusMsg:    "Ready",
	}
	g.build()
	seq.OnPresetRestore(g.resync)
	return g, nil
}

// build lays out the editors. The sequence editor sits on top, one row per
// track below it with the index counter, mute and sound buttons, and a range
// selector per track to the right of the sequence editor.
func (g *game) build() {
	state := g.seq.State()
	g.sliderP = newPanel(image.Rect(pad, pad, pad+sliderW, pad+sliderH))
	g.slider = widget.NewMultiSlider(g.sliderP, state, widget.ModeBar, g.seq.SetValueSequence)

	tracks := state.Tracks()
	g.rows = make([]trackRow, tracks)
	rangeX := pad + sliderW + rowGap
	for i := range g.rows {
		row := &g.rows[i]
		track := i

		x := rangeX + i*(selectorW+rowGap)
		row.rangeP = newPanel(image.Rect(x, pad, x+selectorW, pad+sliderH))
		w := state.Window(i)
		row.selector = widget.NewRangeSelector(row.rangeP, g.seq.Grid(), w.Offset, w.Offset+w.Length,
			func(min, max int) {
				got := g.seq.SetTrackRange(track, min, max)
				g.setStatus(fmt.Sprintf("%s window: offset %d length %d", g.trackName(track), got.Offset, got.Length))
			})

		y := pad + sliderH + rowGap + i*(buttonH+rowGap)
		row.counterP = newPanel(image.Rect(pad, y+(buttonH-counterH)/2, pad+sliderW, y+(buttonH+counterH)/2))
		row.counter = widget.NewIndexCounter(row.counterP, state.Len())
		row.mute = image.Rect(rangeX, y, rangeX+buttonW, y+buttonH)
		row.sound = image.Rect(rangeX+buttonW+rowGap, y, rangeX+2*buttonW+rowGap, y+buttonH)
	}

	bottom := pad + sliderH + rowGap + tracks*(buttonH+rowGap) + rowGap
	g.presetP = newPanel(image.Rect(pad, bottom, pad+presetW, bottom+presetH))
	g.presets = widget.NewPresetGrid(g.presetP, g.seq.Presets().Size(), presetCols,
		func(slot int) { g.seq.SelectPreset(slot) },
		g.savePreset)
	for _, slot := range g.seq.Presets().SavedSlots() {
		g.presets.MarkSaved(slot)
	}

	g.tone = image.Rect(pad+presetW+rowGap, bottom, pad+presetW+rowGap+toneW, bottom+toneH)
	g.play = image.Rect(g.tone.Max.X+rowGap, bottom, g.tone.Max.X+rowGap+buttonW, bottom+buttonH)
	g.volume = image.Rect(g.tone.Max.X+rowGap, bottom+buttonH+rowGap, windowW-pad, bottom+2*buttonH+rowGap)
	g.status = image.Rect(pad, windowH-pad-buttonH, windowW-pad, windowH-pad)
}

func (g *game) trackName(track int) string {
	if track < 0 || track >= len(g.cfg.Tracks) {
		return fmt.Sprintf("track %d", track)
	}
	idx := g.sampleIndex(g.seq.TrackSound(track))
	if idx < 0 {
		return g.cfg.Tracks[track].Sample
	}
	return g.cfg.Samples[idx].Name
}

func (g *game) sampleIndex(id polyseq.SampleID) int {
	for i, v := range g.ids {
		if v == id {
			return i
		}
	}
	return -1
}

func (g *game) savePreset(slot int) {
	if !g.seq.SavePreset(slot) {
		g.setError(fmt.Sprintf("cannot save preset %d", slot))
		return
	}
	if g.cfg.PresetsFile != "" {
		if err := g.seq.Presets().WriteFile(g.cfg.PresetsFile); err != nil {
			g.setError(err.Error())
			return
		}
	}
	g.setStatus(fmt.Sprintf("Saved preset %d", slot+1))
}

// resync redraws every editor after a preset restore.
func (g *game) resync(snap polyseq.Snapshot) {
	g.slider.Update(snap.Sequence)
	for i := range g.rows {
		if i < len(snap.Offsets) && i < len(snap.Lengths) {
			g.rows[i].selector.Update(snap.Offsets[i], snap.Offsets[i]+snap.Lengths[i])
		}
	}
}

func (g *game) Update() error {
	g.pollEvents()
	g.handleMouse()
	return nil
}

func (g *game) pollEvents() {
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case polyseq.EventStep:
				if ev.Step.Track >= 0 && ev.Step.Track < len(g.rows) {
					g.rows[ev.Step.Track].counter.Observe(ev.Step)
				}
			case polyseq.EventPresetRestored:
				g.setStatus(fmt.Sprintf("Preset %d", ev.Preset+1))
			case polyseq.EventSoundChanged:
				g.setStatus(fmt.Sprintf("Track %d plays %s", ev.Track+1, g.trackName(ev.Track)))
			}
		default:
			return
		}
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		g.press(mx, my)
	} else if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) && (mx != g.lastX || my != g.lastY) {
		if g.active != nil {
			g.active(widget.PointerEvent{Kind: widget.PointerMove}, mx, my)
		}
		if g.draggingVol {
			g.updateVolumeFromMouse(mx)
		}
		if g.draggingTone >= 0 {
			g.dragTone(my)
		}
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		if g.active != nil {
			g.active(widget.PointerEvent{Kind: widget.PointerUp}, mx, my)
			g.active = nil
		}
		g.draggingVol = false
		g.draggingTone = -1
	}
	g.lastX, g.lastY = mx, my
}

// route builds the pointer handler for one widget on its panel.
func route(p *panel, h interface{ HandlePointer(widget.PointerEvent) }) func(widget.PointerEvent, int, int) {
	return func(ev widget.PointerEvent, x, y int) {
		h.HandlePointer(p.local(ev.Kind, x, y))
	}
}

func (g *game) press(mx, my int) {
	switch {
	case g.sliderP.contains(mx, my):
		g.active = route(g.sliderP, g.slider)
	case g.presetP.contains(mx, my):
		local := g.presetP.local(widget.PointerDown, mx, my)
		if slot := g.presets.CellAt(local.X, local.Y); slot >= 0 {
			g.presets.Click(slot, ebiten.IsKeyPressed(ebiten.KeyShift))
		}
		return
	case pointInRect(mx, my, g.play):
		g.togglePlay()
		return
	case pointInRect(mx, my, g.volume):
		g.draggingVol = true
		g.updateVolumeFromMouse(mx)
		return
	case pointInRect(mx, my, g.tone):
		g.clickTone(mx, my)
		return
	default:
		for i := range g.rows {
			row := &g.rows[i]
			switch {
			case row.rangeP.contains(mx, my):
				g.active = route(row.rangeP, row.selector)
			case pointInRect(mx, my, row.mute):
				g.toggleMute(i)
				return
			case pointInRect(mx, my, row.sound):
				g.cycleSound(i)
				return
			}
			if g.active != nil {
				break
			}
		}
	}
	if g.active != nil {
		g.active(widget.PointerEvent{Kind: widget.PointerDown}, mx, my)
	}
}

func (g *game) toggleMute(track int) {
	muted := !g.seq.State().Muted(track)
	g.seq.SetMuted(track, muted)
	if muted {
		g.setStatus(fmt.Sprintf("%s muted", g.trackName(track)))
	} else {
		g.setStatus(fmt.Sprintf("%s unmuted", g.trackName(track)))
	}
}

func (g *game) cycleSound(track int) {
	if len(g.ids) == 0 {
		return
	}
	next := (g.sampleIndex(g.seq.TrackSound(track)) + 1) % len(g.ids)
	if err := g.seq.SetTrackSound(track, g.ids[next]); err != nil {
		g.setError(err.Error())
	}
}

func (g *game) togglePlay() {
	if g.playing {
		g.out.Pause()
		g.playing = false
		g.setStatus("Paused")
		return
	}
	g.out.Start()
	g.playing = true
	g.setStatus("Playing")
}

func (g *game) updateVolumeFromMouse(mx int) {
	trackX := g.volume.Min.X + 110
	trackW := g.volume.Dx() - 126
	if trackW <= 0 {
		return
	}
	g.masterGain = clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	g.mixer.SetMasterGain(g.masterGain)
}

func (g *game) toneBandFromMouse(mx int) int {
	bandW := (g.tone.Dx() - 16) / len(g.toneGains)
	if bandW <= 0 {
		return -1
	}
	idx := (mx - g.tone.Min.X - 8) / bandW
	if idx < 0 || idx >= len(g.toneGains) {
		return -1
	}
	return idx
}

func (g *game) clickTone(mx, my int) {
	band := g.toneBandFromMouse(mx)
	if band < 0 {
		return
	}
	g.draggingTone = band
	g.dragTone(my)
}

func (g *game) dragTone(my int) {
	band := g.draggingTone
	innerY := g.tone.Min.Y + 16
	innerH := g.tone.Dy() - 24
	if band < 0 || innerH <= 0 {
		return
	}
	// Top is +6 dB, bottom is silence.
	gain := (1 - clamp(float64(my-innerY)/float64(innerH), 0, 1)) * 2
	g.toneGains[band] = gain
	g.mixer.Tone().SetGain(band, float32(gain))
	g.setStatus(fmt.Sprintf("Tone %s: %.1f", toneLabels[band], gain))
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)

	drawPanel(screen, g.sliderP.rect, panelColor)
	g.sliderP.draw(screen)

	state := g.seq.State()
	for i := range g.rows {
		row := &g.rows[i]
		drawPanel(screen, row.rangeP.rect, panelColor)
		row.rangeP.draw(screen)
		row.counterP.draw(screen)

		fill := color.Color(panelColor)
		label := "Mute"
		if state.Muted(i) {
			fill = mutedColor
			label = "Muted"
		}
		drawButton(screen, row.mute, label, fill)
		drawButton(screen, row.sound, g.trackName(i), panelColor)
	}

	drawPanel(screen, g.presetP.rect, bgColor)
	g.presetP.draw(screen)
	ebitenutil.DebugPrintAt(screen, "Presets (shift-click saves)", g.presetP.rect.Min.X, g.presetP.rect.Max.Y+2)

	g.drawTone(screen)
	label := "Play"
	if g.playing {
		label = "Pause"
	}
	drawButton(screen, g.play, label, panelColor)
	g.drawVolume(screen)

	msg := "Status: " + g.statusMsg
	if g.statusErr {
		msg = "Status: ERROR - " + g.statusMsg
	}
	drawPanel(screen, g.status, panelColor)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("%s   step %d   voices %d", msg, g.seq.Step(), g.mixer.ActiveVoices()),
		g.status.Min.X+8, g.status.Min.Y+6)
}

func (g *game) drawVolume(screen *ebiten.Image) {
	rect := g.volume
	drawPanel(screen, rect, panelColor)
	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Vol %d%%", int(g.masterGain*100+0.5)), rect.Min.X+8, rect.Min.Y+6)

	trackX := rect.Min.X + 110
	trackW := rect.Dx() - 126
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	fillW := int(float64(trackW) * g.masterGain)
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFillColor)
	}
}

func (g *game) drawTone(screen *ebiten.Image) {
	rect := g.tone
	drawPanel(screen, rect, panelColor)
	bandW := (rect.Dx() - 16) / len(g.toneGains)
	innerY := rect.Min.Y + 16
	innerH := rect.Dy() - 24
	for i, gain := range g.toneGains {
		bx := rect.Min.X + 8 + i*bandW
		bw := bandW - 4
		ebitenutil.DebugPrintAt(screen, toneLabels[i], bx, rect.Min.Y+1)
		ebitenutil.DrawRect(screen, float64(bx+bw/2-2), float64(innerY), 4, float64(innerH), bevelDarker)
		ebitenutil.DrawRect(screen, float64(bx), float64(innerY+innerH/2), float64(bw), 1, borderColor)
		knobY := innerY + innerH - int(clamp(gain/2, 0, 1)*float64(innerH)) - 4
		knob := image.Rect(bx+2, knobY, bx+bw-2, knobY+8)
		ebitenutil.DrawRect(screen, float64(knob.Min.X), float64(knob.Min.Y), float64(knob.Dx()), float64(knob.Dy()), bgColor)
		drawBorder(screen, knob)
	}
}

func (g *game) Layout(int, int) (int, int) { return windowW, windowH }

func (g *game) Close() {
	_ = g.out.Close()
	_ = g.seq.Close()
}

func (g *game) setError(msg string) {
	g.statusMsg = msg
	g.statusErr = true
	g.logger.Error(msg)
}

func (g *game) setStatus(msg string) {
	g.statusMsg = msg
	g.statusErr = false
}

func drawPanel(screen *ebiten.Image, rect image.Rectangle, fill color.Color) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	drawBorder(screen, rect)
}

func drawButton(screen *ebiten.Image, rect image.Rectangle, label string, fill color.Color) {
	drawPanel(screen, rect, fill)
	x := rect.Min.X + (rect.Dx()-len(label)*6)/2
	y := rect.Min.Y + (rect.Dy()-16)/2
	ebitenutil.DebugPrintAt(screen, label, x, y)
}

// drawBorder draws a raised bevel: highlight top and left, shadow bottom and
// right.
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "polyseq"})
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	logger.Info("pattern", "seed", cfg.EnsureSeed(time.Now()))

	g, err := newGame(cfg, logger)
	if err != nil {
		logger.Fatal("start", "err", err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle("polyseq")
	if err := ebiten.RunGame(g); err != nil {
		logger.Fatal("run", "err", err)
	}
}
