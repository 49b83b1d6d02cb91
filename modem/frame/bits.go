package frame

import (
	"fmt"
	"math/bits"
)

// BitVector is a fixed-length ordered bit sequence packed into 64-bit words.
// Bit 0 is the first bit on the wire. The word packing is what lets the LDPC
// Gaussian elimination run as whole-word XORs instead of per-bit loops.
type BitVector struct {
	words  []uint64
	length int
}

// NewBitVector returns an all-zero vector of the given bit length.
func NewBitVector(length int) *BitVector {
	return &BitVector{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

// Len returns the bit length.
func (v *BitVector) Len() int { return v.length }

// Get returns bit i as 0 or 1.
func (v *BitVector) Get(i int) uint8 {
	return uint8((v.words[i/64] >> (uint(i) % 64)) & 1)
}

// Set sets bit i to b (0 or 1).
func (v *BitVector) Set(i int, b uint8) {
	if b != 0 {
		v.words[i/64] |= 1 << (uint(i) % 64)
	} else {
		v.words[i/64] &^= 1 << (uint(i) % 64)
	}
}

// Flip inverts bit i.
func (v *BitVector) Flip(i int) {
	v.words[i/64] ^= 1 << (uint(i) % 64)
}

// XOR adds other into v over GF(2). Length mismatches are tolerated: only
// the overlapping span is affected, so bits of v beyond a shorter operand
// stay untouched.
func (v *BitVector) XOR(other *BitVector) {
	n := len(v.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		v.words[i] ^= other.words[i]
	}
}

// Weight returns the number of set bits.
func (v *BitVector) Weight() int {
	w := 0
	for _, word := range v.words {
		w += bits.OnesCount64(word)
	}
	return w
}

// Words exposes the packed 64-bit words backing the vector. Bits beyond Len
// are zero. Callers must not resize the slice.
func (v *BitVector) Words() []uint64 { return v.words }

// Clone returns an independent copy.
func (v *BitVector) Clone() *BitVector {
	c := NewBitVector(v.length)
	copy(c.words, v.words)
	return c
}

// Slice copies bits [from, to) into a new vector.
func (v *BitVector) Slice(from, to int) *BitVector {
	s := NewBitVector(to - from)
	for i := from; i < to; i++ {
		s.Set(i-from, v.Get(i))
	}
	return s
}

// CopyFrom overwrites bits starting at offset with the contents of src.
func (v *BitVector) CopyFrom(offset int, src *BitVector) {
	for i := 0; i < src.Len(); i++ {
		v.Set(offset+i, src.Get(i))
	}
}

// HammingDistance counts positions where v and other differ.
func (v *BitVector) HammingDistance(other *BitVector) (int, error) {
	if v.length != other.length {
		return 0, fmt.Errorf("bit vector length mismatch: %d vs %d", v.length, other.length)
	}
	d := v.Clone()
	d.XOR(other)
	return d.Weight(), nil
}

// Bits expands the vector into a 0/1 byte slice, first bit first.
func (v *BitVector) Bits() []uint8 {
	out := make([]uint8, v.length)
	for i := range out {
		out[i] = v.Get(i)
	}
	return out
}

// BitsFromBytes unpacks byte data into a bit vector, MSB of each byte first,
// matching the wire order used throughout the frame.
func BitsFromBytes(data []byte) *BitVector {
	v := NewBitVector(len(data) * 8)
	for i := 0; i < v.length; i++ {
		if data[i/8]&(1<<(7-uint(i)%8)) != 0 {
			v.Set(i, 1)
		}
	}
	return v
}

// BytesFromBits packs a bit vector back into bytes, MSB first. The final
// partial byte, if any, is zero padded.
func BytesFromBits(v *BitVector) []byte {
	out := make([]byte, (v.length+7)/8)
	for i := 0; i < v.length; i++ {
		if v.Get(i) != 0 {
			out[i/8] |= 1 << (7 - uint(i)%8)
		}
	}
	return out
}

// BitsFromUint32 unpacks a 32-bit word into a bit vector, MSB first.
func BitsFromUint32(word uint32) *BitVector {
	v := NewBitVector(32)
	for i := 0; i < 32; i++ {
		if word&(1<<(31-uint(i))) != 0 {
			v.Set(i, 1)
		}
	}
	return v
}

// Uint32FromBits packs the first 32 bits of v into a word, MSB first.
func Uint32FromBits(v *BitVector) uint32 {
	var word uint32
	for i := 0; i < 32; i++ {
		if v.Get(i) != 0 {
			word |= 1 << (31 - uint(i))
		}
	}
	return word
}
