// Package midiout plays sequencer triggers as MIDI notes, either on a live
// port or into a Standard MIDI File.
package midiout

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/polyseq-go/internal/engine"
)

// Sink receives every message with the timestamp of the pulse that caused it.
type Sink interface {
	Send(at engine.Timestamp, msg midi.Message) error
}

// SendFunc adapts a live port sender, as returned by midi.SendTo, to a Sink.
// Live ports play immediately, so the timestamp is dropped.
type SendFunc func(midi.Message) error

func (f SendFunc) Send(_ engine.Timestamp, msg midi.Message) error { return f(msg) }

// Tee fans messages out to several sinks and reports the first error.
type Tee []Sink

func (t Tee) Send(at engine.Timestamp, msg midi.Message) error {
	var first error
	for _, s := range t {
		if err := s.Send(at, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Backend implements engine.Backend with one MIDI note per sample.
type Backend struct {
	mu      sync.Mutex
	sink    Sink
	channel uint8
	notes   []uint8
	held    map[uint8]*trigger // note -> trigger that last sounded it
	ready   chan struct{}
	logger  *log.Logger
}

// NewBackend maps sample id i to notes[i] on channel. MIDI needs no decoding,
// so the backend is ready at once.
func NewBackend(sink Sink, channel uint8, notes []uint8, logger *log.Logger) *Backend {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	ready := make(chan struct{})
	close(ready)
	return &Backend{
		sink:    sink,
		channel: channel & 0x0f,
		notes:   append([]uint8(nil), notes...),
		held:    make(map[uint8]*trigger),
		ready:   ready,
		logger:  logger,
	}
}

func (b *Backend) Ready() <-chan struct{} { return b.ready }

func (b *Backend) NewTrigger(id engine.SampleID) (engine.Trigger, error) {
	if id < 0 || int(id) >= len(b.notes) {
		return nil, fmt.Errorf("no note mapped for sample %d", id)
	}
	return &trigger{backend: b, note: b.notes[id] & 0x7f, velocity: 127}, nil
}

// send must be called with b.mu held.
func (b *Backend) send(at engine.Timestamp, msg midi.Message) {
	if err := b.sink.Send(at, msg); err != nil {
		b.logger.Warn("midi send failed", "msg", msg.String(), "err", err)
	}
}

// trigger sends a note-on on Start at the velocity of the last ramp. Every
// voice slot has its own trigger for a note, so the backend tracks which one
// holds each key: a new hit releases the key first, whichever slot started it,
// and a zero velocity hit only releases.
type trigger struct {
	backend  *Backend
	note     uint8
	velocity uint8
	last     engine.Timestamp
}

func (t *trigger) RampGainTo(db float64, _ engine.Timestamp) {
	t.velocity = Velocity(engine.DecibelsToGain(db))
}

func (t *trigger) Start(at engine.Timestamp) {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.held[t.note]; ok {
		b.send(at, midi.NoteOff(b.channel, t.note))
		delete(b.held, t.note)
	}
	t.last = at
	if t.velocity == 0 {
		return
	}
	b.send(at, midi.NoteOn(b.channel, t.note, t.velocity))
	b.held[t.note] = t
}

// Close releases the key only if this trigger still holds it.
func (t *trigger) Close() error {
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held[t.note] == t {
		b.send(t.last, midi.NoteOff(b.channel, t.note))
		delete(b.held, t.note)
	}
	return nil
}

// Velocity maps a linear gain in [0,1] to a MIDI velocity.
func Velocity(gain float64) uint8 {
	if !(gain > 0) {
		return 0
	}
	if gain >= 1 {
		return 127
	}
	return uint8(math.Round(gain * 127))
}
