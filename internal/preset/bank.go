// Package preset stores deep snapshots of the sequencer state in numbered slots.
package preset

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/polyseq-go/internal/engine"
)

// DefaultSlots is the size of the preset grid.
const DefaultSlots = 16

type Bank struct {
	mu    sync.Mutex
	slots []engine.Snapshot
	saved []bool
}

func NewBank(size int) *Bank {
	if size <= 0 {
		size = DefaultSlots
	}
	return &Bank{
		slots: make([]engine.Snapshot, size),
		saved: make([]bool, size),
	}
}

func (b *Bank) Size() int { return len(b.slots) }

// Save stores an independent copy of snap, replacing whatever the slot held.
// It reports false when slot is outside the bank.
func (b *Bank) Save(slot int, snap engine.Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot < 0 || slot >= len(b.slots) {
		return false
	}
	b.slots[slot] = snap.Clone()
	b.saved[slot] = true
	return true
}

// Select returns a copy of a saved slot. Unsaved slots report false.
func (b *Bank) Select(slot int) (engine.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slot < 0 || slot >= len(b.slots) || !b.saved[slot] {
		return engine.Snapshot{}, false
	}
	return b.slots[slot].Clone(), true
}

func (b *Bank) Saved(slot int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slot >= 0 && slot < len(b.saved) && b.saved[slot]
}

// SavedSlots lists the occupied slots in ascending order.
func (b *Bank) SavedSlots() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for i, ok := range b.saved {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

type fileSlot struct {
	Slot     int    `yaml:"slot"`
	Sequence []int  `yaml:"sequence,flow"`
	Offsets  []int  `yaml:"offsets,flow"`
	Lengths  []int  `yaml:"lengths,flow"`
	Muted    []bool `yaml:"muted,flow"`
}

type bankFile struct {
	Size  int        `yaml:"size"`
	Slots []fileSlot `yaml:"slots"`
}

// MarshalYAML writes only the saved slots.
func (b *Bank) MarshalYAML() (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := bankFile{Size: len(b.slots)}
	for i, snap := range b.slots {
		if !b.saved[i] {
			continue
		}
		f.Slots = append(f.Slots, fileSlot{
			Slot:     i,
			Sequence: snap.Sequence,
			Offsets:  snap.Offsets,
			Lengths:  snap.Lengths,
			Muted:    snap.Muted,
		})
	}
	return f, nil
}

func (b *Bank) UnmarshalYAML(node *yaml.Node) error {
	var f bankFile
	if err := node.Decode(&f); err != nil {
		return err
	}
	size := f.Size
	for _, s := range f.Slots {
		if s.Slot < 0 {
			return fmt.Errorf("preset slot %d out of range", s.Slot)
		}
		if s.Slot >= size {
			size = s.Slot + 1
		}
	}
	if size <= 0 {
		size = DefaultSlots
	}
	sort.Slice(f.Slots, func(i, j int) bool { return f.Slots[i].Slot < f.Slots[j].Slot })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = make([]engine.Snapshot, size)
	b.saved = make([]bool, size)
	for _, s := range f.Slots {
		b.slots[s.Slot] = engine.Snapshot{
			Sequence: s.Sequence,
			Offsets:  s.Offsets,
			Lengths:  s.Lengths,
			Muted:    s.Muted,
		}.Clone()
		b.saved[s.Slot] = true
	}
	return nil
}

func (b *Bank) WriteFile(path string) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	return nil
}

// ReadFile loads a bank written by WriteFile. A missing file yields an empty
// bank of DefaultSlots slots.
func ReadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewBank(DefaultSlots), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	b := NewBank(DefaultSlots)
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("decode presets %s: %w", path, err)
	}
	return b, nil
}
