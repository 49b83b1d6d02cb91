package framesync

import (
	"github.com/ArrEssJay/chimera/modem/frame"
	"github.com/ArrEssJay/chimera/modem/modulate"
)

/*
 * Frame Synchronizer
 * Locates the frame boundary in a continuous demodulated bit stream by
 * correlating against the fixed 32-bit sync pattern. A frame can span several
 * processing chunks, so the searcher keeps a sliding bit history and
 * re-evaluates as new bits arrive.
 *
 * QPSK carrier recovery is ambiguous modulo a quarter turn: after a cycle
 * slip every demodulated bit pair comes out rotated and a correlator that
 * only knows the nominal pattern goes deaf for the rest of the stream. The
 * searcher therefore correlates against the pattern under all four
 * constellation rotations and reports the winning rotation, so the caller
 * can de-rotate the frame that follows.
 */

// DefaultThreshold accepts up to three bit errors in the 32-bit pattern.
const DefaultThreshold = 0.78

// DefaultHistoryBits sizes the sliding buffer at four frame lengths: one full
// frame can always complete inside the history with room for a late start.
const DefaultHistoryBits = 4 * frame.TotalBits

// Result is the outcome of one correlation search. Offset and Rotation are
// only meaningful when Found is true; Confidence is the best normalized
// correlation in [-1, 1] regardless. Rotation counts the quarter turns the
// received constellation is rotated by relative to the transmitter.
type Result struct {
	Found      bool
	Offset     int
	Rotation   int
	Confidence float64
}

// Searcher accumulates demodulated bits and hunts for the sync pattern. It
// never fails: when no candidate clears the threshold it reports Found=false
// and the caller keeps feeding bits and retrying.
type Searcher struct {
	patterns  [4][]uint8
	threshold float64
	limit     int
	history   []uint8
}

// NewSearcher builds a searcher for the protocol sync pattern. A zero
// threshold or historyBits selects the defaults.
func NewSearcher(threshold float64, historyBits int) *Searcher {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if historyBits <= 0 {
		historyBits = DefaultHistoryBits
	}
	if historyBits < frame.TotalBits {
		historyBits = frame.TotalBits
	}
	return &Searcher{
		patterns:  rotatedPatterns(frame.BitsFromUint32(frame.SyncPattern).Bits()),
		threshold: threshold,
		limit:     historyBits,
	}
}

// rotatedPatterns expands the wire pattern into the four bit sequences a
// receiver can observe, one per constellation rotation.
func rotatedPatterns(base []uint8) [4][]uint8 {
	var pats [4][]uint8
	for r := range pats {
		pat := make([]uint8, len(base))
		for i := 0; i < len(base); i += 2 {
			b1, b0 := modulate.SymbolBits(modulate.RotateGray(base[i]<<1|base[i+1], r))
			pat[i], pat[i+1] = b1, b0
		}
		pats[r] = pat
	}
	return pats
}

// Push appends demodulated bits to the history, dropping the oldest bits once
// the buffer exceeds its limit.
func (s *Searcher) Push(bits *frame.BitVector) {
	s.history = append(s.history, bits.Bits()...)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = s.history[over:]
	}
}

// Len reports the buffered bit count.
func (s *Searcher) Len() int { return len(s.history) }

// Bits returns the buffered bits starting at offset, at most n. The slice
// aliases the history; callers must not retain it across Push or Consume.
func (s *Searcher) Bits(offset, n int) []uint8 {
	if offset >= len(s.history) {
		return nil
	}
	end := offset + n
	if end > len(s.history) {
		end = len(s.history)
	}
	return s.history[offset:end]
}

// SetThreshold replaces the acceptance threshold. Zero restores the default.
// The history is untouched, so a lowered threshold can immediately accept a
// candidate already buffered.
func (s *Searcher) SetThreshold(threshold float64) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	s.threshold = threshold
}

// Consume drops the first n buffered bits.
func (s *Searcher) Consume(n int) {
	if n >= len(s.history) {
		s.history = s.history[:0]
		return
	}
	s.history = s.history[n:]
}

// Search correlates the history against the sync pattern under all four
// rotations and reports the best-scoring position. The score at a position
// is the normalized agreement count: +1 for a matching bit, -1 for a
// mismatch, divided by the pattern length, so a perfect hit scores 1.0.
// Ties keep the earliest position, so a later echo of the periodic pattern
// cannot displace the true boundary.
func (s *Searcher) Search() Result {
	n := len(s.patterns[0])
	best := Result{Offset: -1, Confidence: -1}
	for pos := 0; pos+n <= len(s.history); pos++ {
		for r, pattern := range s.patterns {
			score := 0
			for i, p := range pattern {
				if s.history[pos+i] == p {
					score++
				} else {
					score--
				}
			}
			conf := float64(score) / float64(n)
			if conf > best.Confidence {
				best.Confidence = conf
				best.Offset = pos
				best.Rotation = r
			}
		}
	}
	if best.Offset >= 0 && best.Confidence >= s.threshold {
		best.Found = true
	}
	return best
}

// Reset clears the history. Restarting a stopped stream must begin from an
// empty buffer so no stale bits leak across runs.
func (s *Searcher) Reset() {
	s.history = s.history[:0]
}
