package engine

import (
	"errors"
	"fmt"
)

// Timestamp is an opaque, orderable point in time handed to the scheduler by
// its clock. The mixer uses output frame indices.
type Timestamp int64

// SampleID names a sample asset in the backend's pool.
type SampleID int

// Trigger is one independent sound-trigger handle.
type Trigger interface {
	// RampGainTo ramps the handle's gain to db (dBFS) so it is reached at at.
	RampGainTo(db float64, at Timestamp)
	// Start plays the handle's sample from the beginning at at.
	Start(at Timestamp)
	Close() error
}

// Backend is the audio-rendering collaborator.
type Backend interface {
	NewTrigger(sample SampleID) (Trigger, error)
	// Ready is closed once every referenced sample has been decoded. No trigger
	// may be issued before that.
	Ready() <-chan struct{}
}

// VoicePool holds voices slots, each with one trigger handle per track. Pulses
// rotate through the slots so a long sound started on one pulse keeps ringing
// while the next pulse uses a different slot.
type VoicePool struct {
	backend Backend
	sounds  []SampleID
	slots   [][]Trigger // [slot][track]
}

func NewVoicePool(backend Backend, sounds []SampleID, voices int) (*VoicePool, error) {
	if backend == nil {
		return nil, errors.New("voice pool needs a backend")
	}
	if len(sounds) == 0 {
		return nil, errors.New("voice pool needs at least one track")
	}
	if voices <= 0 {
		return nil, errors.New("voice count must be positive")
	}
	p := &VoicePool{
		backend: backend,
		sounds:  append([]SampleID(nil), sounds...),
		slots:   make([][]Trigger, voices),
	}
	for slot := range p.slots {
		p.slots[slot] = make([]Trigger, len(sounds))
		for track, sample := range sounds {
			trig, err := backend.NewTrigger(sample)
			if err != nil {
				_ = p.Close()
				return nil, fmt.Errorf("voice %d track %d: %w", slot, track, err)
			}
			p.slots[slot][track] = trig
		}
	}
	return p, nil
}

func (p *VoicePool) Voices() int { return len(p.slots) }

func (p *VoicePool) Tracks() int { return len(p.sounds) }

// Sound returns the sample currently assigned to track.
func (p *VoicePool) Sound(track int) SampleID {
	if track < 0 || track >= len(p.sounds) {
		return 0
	}
	return p.sounds[track]
}

// Handle returns the trigger for track in slot, or nil when either index is out
// of range or the handle is missing.
func (p *VoicePool) Handle(slot, track int) Trigger {
	if p == nil || slot < 0 || slot >= len(p.slots) {
		return nil
	}
	row := p.slots[slot]
	if track < 0 || track >= len(row) {
		return nil
	}
	return row[track]
}

// ReplaceTrackSound swaps the sample used by track in every slot. Only that
// track's previous handles are closed.
func (p *VoicePool) ReplaceTrackSound(track int, sample SampleID) error {
	if track < 0 || track >= len(p.sounds) {
		return fmt.Errorf("track %d out of range", track)
	}
	fresh := make([]Trigger, len(p.slots))
	for slot := range fresh {
		trig, err := p.backend.NewTrigger(sample)
		if err != nil {
			for _, t := range fresh[:slot] {
				_ = t.Close()
			}
			return fmt.Errorf("replace track %d sound: %w", track, err)
		}
		fresh[slot] = trig
	}
	var errs error
	for slot := range p.slots {
		if old := p.slots[slot][track]; old != nil {
			errs = errors.Join(errs, old.Close())
		}
		p.slots[slot][track] = fresh[slot]
	}
	p.sounds[track] = sample
	return errs
}

func (p *VoicePool) Close() error {
	var errs error
	for _, row := range p.slots {
		for i, t := range row {
			if t != nil {
				errs = errors.Join(errs, t.Close())
				row[i] = nil
			}
		}
	}
	return errs
}
