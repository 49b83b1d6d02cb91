package modulate

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ArrEssJay/chimera/modem/frame"
)

/*
 * QPSK Symbol Mapper
 *
 * Two bits map to one of four Gray-coded carrier phases. Adjacent
 * constellation points differ in exactly one bit, so the most likely symbol
 * decision error costs a single bit.
 */

// grayPhase maps the 2-bit Gray value (b1<<1 | b0) to its carrier phase.
// Walking the circle 45 -> 135 -> 225 -> 315 degrees visits 00, 01, 11, 10.
var grayPhase = [4]float64{
	0b00: 1 * math.Pi / 4,
	0b01: 3 * math.Pi / 4,
	0b11: 5 * math.Pi / 4,
	0b10: 7 * math.Pi / 4,
}

// Constellation returns the four ideal QPSK points in Gray-value order.
func Constellation() [4]complex128 {
	var pts [4]complex128
	for g, ph := range grayPhase {
		pts[g] = cmplx.Exp(complex(0, ph))
	}
	return pts
}

var constellation = Constellation()

// grayCycle walks the constellation counterclockwise by carrier phase;
// rotating the received constellation a quarter turn shifts every Gray value
// one step along this cycle.
var grayCycle = [4]uint8{0b00, 0b01, 0b11, 0b10}

var grayIndex = [4]int{0b00: 0, 0b01: 1, 0b11: 2, 0b10: 3}

// RotateGray returns the Gray value a receiver observes when the carrier
// phase is advanced by quarterTurns times 90 degrees. Negative turns
// de-rotate, so RotateGray(RotateGray(g, r), -r) == g.
func RotateGray(gray uint8, quarterTurns int) uint8 {
	idx := (grayIndex[gray&3] + quarterTurns) % 4
	if idx < 0 {
		idx += 4
	}
	return grayCycle[idx]
}

// MapPair maps a bit pair (first bit on the wire is b1) to a unit symbol.
func MapPair(b1, b0 uint8) complex128 {
	return constellation[b1<<1|b0]
}

// MapBits maps an even-length bit vector to QPSK symbols, two bits per
// symbol, first bit first.
func MapBits(bits *frame.BitVector) ([]complex128, error) {
	if bits.Len()%2 != 0 {
		return nil, fmt.Errorf("qpsk: bit count must be even, got %d", bits.Len())
	}
	symbols := make([]complex128, bits.Len()/2)
	for i := range symbols {
		symbols[i] = MapPair(bits.Get(2*i), bits.Get(2*i+1))
	}
	return symbols, nil
}

// Decide snaps a received point to the nearest constellation point by
// minimum Euclidean distance and returns the ideal point, its Gray value and
// the distance (the error vector magnitude contribution).
func Decide(received complex128) (ideal complex128, gray uint8, distance float64) {
	best := math.Inf(1)
	for g, pt := range constellation {
		d := cmplx.Abs(received - pt)
		if d < best {
			best = d
			ideal = pt
			gray = uint8(g)
		}
	}
	return ideal, gray, best
}

// SymbolBits splits a Gray value back into its wire-order bit pair.
func SymbolBits(gray uint8) (b1, b0 uint8) {
	return (gray >> 1) & 1, gray & 1
}

// UnmapSymbols hard-decides a symbol stream back into bits.
func UnmapSymbols(symbols []complex128) *frame.BitVector {
	bits := frame.NewBitVector(len(symbols) * 2)
	for i, s := range symbols {
		_, gray, _ := Decide(s)
		b1, b0 := SymbolBits(gray)
		bits.Set(2*i, b1)
		bits.Set(2*i+1, b0)
	}
	return bits
}
