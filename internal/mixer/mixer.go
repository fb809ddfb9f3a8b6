// Package mixer renders scheduled sample triggers into an interleaved stereo
// float32 stream and drives the pulse clock from the rendered frame count.
package mixer

import (
	"fmt"
	"sync"

	"github.com/cbegin/polyseq-go/internal/engine"
)

type Options struct {
	BPM           float64
	PulsesPerBeat int
	// DisableLimiter leaves the master bus unprocessed.
	DisableLimiter bool
}

// Sample is a mono clip at the mixer's rate.
type Sample struct {
	Name string
	Data []float32
}

// Mixer implements engine.Backend. Timestamps handed to triggers are frame
// indices of the rendered stream.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	samples    []Sample
	voices     []*Voice
	clock      Clock
	bpm        float64
	ppb        int
	frame      int64
	onPulse    func(engine.Timestamp)
	limiter    *Limiter
	tone       *Tone
	master     float32

	ready     chan struct{}
	readyOnce sync.Once
}

func New(sampleRate int, opts Options) *Mixer {
	if opts.BPM <= 0 {
		opts.BPM = 120
	}
	if opts.PulsesPerBeat <= 0 {
		opts.PulsesPerBeat = 4
	}
	m := &Mixer{
		sampleRate: sampleRate,
		clock:      NewClock(sampleRate, opts.BPM, opts.PulsesPerBeat),
		bpm:        opts.BPM,
		ppb:        opts.PulsesPerBeat,
		tone:       NewTone(sampleRate),
		master:     1,
		ready:      make(chan struct{}),
	}
	if !opts.DisableLimiter {
		m.limiter = DefaultLimiter(sampleRate)
	}
	return m
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// AddSample registers a clip and returns its id. Clips must be added before
// MarkReady for triggers to find them.
func (m *Mixer) AddSample(name string, data []float32) engine.SampleID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, Sample{Name: name, Data: data})
	return engine.SampleID(len(m.samples) - 1)
}

// SampleID looks a clip up by name.
func (m *Mixer) SampleID(name string) (engine.SampleID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.samples {
		if s.Name == name {
			return engine.SampleID(i), true
		}
	}
	return 0, false
}

func (m *Mixer) Samples() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.samples))
	for i, s := range m.samples {
		names[i] = s.Name
	}
	return names
}

// MarkReady signals that every referenced clip is decoded.
func (m *Mixer) MarkReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

func (m *Mixer) Ready() <-chan struct{} { return m.ready }

func (m *Mixer) NewTrigger(id engine.SampleID) (engine.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || int(id) >= len(m.samples) {
		return nil, fmt.Errorf("unknown sample %d", id)
	}
	v := &Voice{mixer: m, data: m.samples[id].Data, toGain: 1}
	m.voices = append(m.voices, v)
	return v, nil
}

func (m *Mixer) removeVoice(v *Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.voices {
		if cur == v {
			m.voices = append(m.voices[:i], m.voices[i+1:]...)
			return
		}
	}
}

// OnPulse installs the handler called at every pulse boundary with the frame
// index of that boundary. It runs on the rendering goroutine without the mixer
// lock held.
func (m *Mixer) OnPulse(fn func(engine.Timestamp)) {
	m.mu.Lock()
	m.onPulse = fn
	m.mu.Unlock()
}

func (m *Mixer) SetTempo(bpm float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bpm = bpm
	m.clock.SetTempo(m.sampleRate, bpm, m.ppb)
}

func (m *Mixer) Tempo() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

// FramesPerPulse returns the current pulse length in frames.
func (m *Mixer) FramesPerPulse() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.FramesPerPulse()
}

// Tone returns the master equaliser. Its gains may be changed from any
// goroutine.
func (m *Mixer) Tone() *Tone { return m.tone }

func (m *Mixer) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	m.mu.Lock()
	m.master = float32(gain)
	m.mu.Unlock()
}

// Frame returns the index of the next frame to be rendered.
func (m *Mixer) Frame() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// ActiveVoices counts triggers that are currently producing sound.
func (m *Mixer) ActiveVoices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.voices {
		if v.playing {
			n++
		}
	}
	return n
}

// Process renders len(dst)/2 stereo frames.
func (m *Mixer) Process(dst []float32) {
	frames := len(dst) / 2
	m.mu.Lock()
	for f := 0; f < frames; f++ {
		if n := m.clock.Tick(m.frame); n > 0 && m.onPulse != nil {
			fn, at := m.onPulse, engine.Timestamp(m.frame)
			m.mu.Unlock()
			for ; n > 0; n-- {
				fn(at)
			}
			m.mu.Lock()
		}
		var sum float32
		for _, v := range m.voices {
			sum += v.render(m.frame)
		}
		l, r := m.tone.Process(sum*m.master, sum*m.master)
		if m.limiter != nil {
			l, r = m.limiter.Process(l, r)
		}
		dst[f*2] = l
		dst[f*2+1] = r
		m.frame++
	}
	m.mu.Unlock()
}
