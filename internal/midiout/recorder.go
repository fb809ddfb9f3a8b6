package midiout

import (
	"fmt"
	"sort"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/polyseq-go/internal/engine"
)

// Resolution is the SMF tick resolution used for exports.
const Resolution = smf.MetricTicks(960)

type recorded struct {
	at  engine.Timestamp
	seq int
	msg midi.Message
}

// Recorder is a Sink that collects messages for a Standard MIDI File. Timestamps
// are pulse indices, as produced by the ticker clock.
type Recorder struct {
	mu            sync.Mutex
	bpm           float64
	ticksPerPulse uint32
	events        []recorded
}

func NewRecorder(bpm float64, pulsesPerBeat int) *Recorder {
	if pulsesPerBeat <= 0 {
		pulsesPerBeat = 4
	}
	return &Recorder{
		bpm:           bpm,
		ticksPerPulse: uint32(Resolution) / uint32(pulsesPerBeat),
	}
}

func (r *Recorder) Send(at engine.Timestamp, msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{at: at, seq: len(r.events), msg: append(midi.Message(nil), msg...)})
	return nil
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// SMF builds a single-track file. Notes still held at the end are released one
// pulse after the last event.
func (r *Recorder) SMF() (*smf.SMF, error) {
	r.mu.Lock()
	events := append([]recorded(nil), r.events...)
	r.mu.Unlock()
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].seq < events[j].seq
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(r.bpm))
	held := map[[2]uint8]bool{}
	var prev uint64
	for _, ev := range events {
		if ev.at < 0 {
			return nil, fmt.Errorf("negative timestamp %d", ev.at)
		}
		tick := uint64(ev.at) * uint64(r.ticksPerPulse)
		tr.Add(uint32(tick-prev), ev.msg)
		prev = tick

		var ch, key, vel uint8
		switch {
		case ev.msg.GetNoteOn(&ch, &key, &vel):
			held[[2]uint8{ch, key}] = true
		case ev.msg.GetNoteOff(&ch, &key, &vel):
			delete(held, [2]uint8{ch, key})
		}
	}
	open := make([][2]uint8, 0, len(held))
	for k := range held {
		open = append(open, k)
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i][0] != open[j][0] {
			return open[i][0] < open[j][0]
		}
		return open[i][1] < open[j][1]
	})
	delta := r.ticksPerPulse
	for _, k := range open {
		tr.Add(delta, midi.NoteOff(k[0], k[1]))
		delta = 0
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = Resolution
	if err := s.Add(tr); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Recorder) WriteFile(path string) error {
	s, err := r.SMF()
	if err != nil {
		return err
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}
