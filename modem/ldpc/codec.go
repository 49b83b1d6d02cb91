package ldpc

import (
	"fmt"

	"github.com/ArrEssJay/chimera/modem/frame"
)

// DefaultMaxIterations bounds the decode loop when the caller passes zero.
const DefaultMaxIterations = 50

// Encode produces the systematic codeword for a K-bit message: the message
// bits followed by M parity bits.
func (c *Code) Encode(message *frame.BitVector) (*frame.BitVector, error) {
	if message.Len() != c.K {
		return nil, fmt.Errorf("ldpc: message must be %d bits, got %d", c.K, message.Len())
	}

	cw := frame.NewBitVector(c.N)
	cw.CopyFrom(0, message)
	msgWords := message.Words()
	for m := 0; m < c.M; m++ {
		cw.Set(c.K+m, parityDot(c.encoder[m], msgWords))
	}
	return cw, nil
}

// Decode runs hard-decision bit-flipping on a received codeword, bounded by
// maxIters. It always terminates and always returns a best-effort codeword:
// ok reports whether the syndrome reached zero, and residual is the number of
// parity checks still unsatisfied by the returned bits. Non-convergence is an
// outcome, not an error.
func (c *Code) Decode(received *frame.BitVector, maxIters int) (decoded *frame.BitVector, ok bool, residual int, err error) {
	if received.Len() != c.N {
		return nil, false, 0, fmt.Errorf("ldpc: received word must be %d bits, got %d", c.N, received.Len())
	}
	if maxIters <= 0 {
		maxIters = DefaultMaxIterations
	}

	work := received.Clone()
	checkState := make([]uint8, c.M) // 1 = unsatisfied
	votes := make([]int, c.N)

	best := work.Clone()
	bestResidual := c.M + 1

	for iter := 0; iter < maxIters; iter++ {
		unsat := 0
		for m := 0; m < c.M; m++ {
			var x uint8
			for _, v := range c.checkVars[m] {
				x ^= work.Get(v)
			}
			checkState[m] = x
			if x != 0 {
				unsat++
			}
		}

		if unsat < bestResidual {
			bestResidual = unsat
			best = work.Clone()
			if unsat == 0 {
				break
			}
		}

		// Each variable votes by the number of unsatisfied checks it sits in.
		maxVotes := 0
		for v := 0; v < c.N; v++ {
			n := 0
			for _, m := range c.varChecks[v] {
				if checkState[m] != 0 {
					n++
				}
			}
			votes[v] = n
			if n > maxVotes {
				maxVotes = n
			}
		}
		if maxVotes == 0 {
			break
		}

		// Flip every variable carrying the maximum vote. Flipping the whole
		// tier at once converges faster than one bit per pass and cannot run
		// unbounded thanks to the iteration cap.
		for v := 0; v < c.N; v++ {
			if votes[v] == maxVotes {
				work.Flip(v)
			}
		}
	}

	// The loop may exit with a worse state than an earlier iteration; report
	// the best snapshot seen.
	if bestResidual > c.M {
		bestResidual = c.M
	}
	return best, bestResidual == 0, bestResidual, nil
}

// Message extracts the K message bits from a systematic codeword.
func (c *Code) Message(cw *frame.BitVector) (*frame.BitVector, error) {
	if cw.Len() != c.N {
		return nil, fmt.Errorf("ldpc: codeword must be %d bits, got %d", c.N, cw.Len())
	}
	return cw.Slice(0, c.K), nil
}
