package modulate

import (
	"fmt"
	"math/rand"
	"sync"
)

// FSKMode selects how the slow FSK side channel chooses its bits.
type FSKMode int

const (
	FSKFixed0 FSKMode = iota
	FSKFixed1
	FSKAlternating
	FSKRandom
)

// ParseFSKMode maps a configuration string to a mode.
func ParseFSKMode(s string) (FSKMode, error) {
	switch s {
	case "fixed-0", "fixed0", "":
		return FSKFixed0, nil
	case "fixed-1", "fixed1":
		return FSKFixed1, nil
	case "alternating":
		return FSKAlternating, nil
	case "random":
		return FSKRandom, nil
	}
	return 0, fmt.Errorf("fsk: unknown mode %q", s)
}

func (m FSKMode) String() string {
	switch m {
	case FSKFixed0:
		return "fixed-0"
	case FSKFixed1:
		return "fixed-1"
	case FSKAlternating:
		return "alternating"
	case FSKRandom:
		return "random"
	}
	return "unknown"
}

// FSKSource yields one bit per FSK bit period. The mode is settable at
// runtime without restarting the pipeline; the synthesizer picks the change
// up at the next FSK bit boundary.
type FSKSource struct {
	mu    sync.Mutex
	mode  FSKMode
	seed  int64
	rng   *rand.Rand
	count uint64
}

// NewFSKSource creates a source; seed only matters for FSKRandom.
func NewFSKSource(mode FSKMode, seed int64) *FSKSource {
	return &FSKSource{
		mode: mode,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// SetMode switches the bit pattern at the next bit boundary.
func (s *FSKSource) SetMode(mode FSKMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// Mode returns the current mode.
func (s *FSKSource) Mode() FSKMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// NextBit produces the next side-channel bit.
func (s *FSKSource) NextBit() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.count++ }()
	switch s.mode {
	case FSKFixed1:
		return 1
	case FSKAlternating:
		return uint8(s.count & 1)
	case FSKRandom:
		return uint8(s.rng.Intn(2))
	default:
		return 0
	}
}

// Reset restores the deterministic starting state.
func (s *FSKSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.rng = rand.New(rand.NewSource(s.seed))
}
