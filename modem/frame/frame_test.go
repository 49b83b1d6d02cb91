package frame

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DefaultLayout_Valid(t *testing.T) {
	require.NoError(t, DefaultLayout().Validate())
	assert.Equal(t, 128, TotalSymbols)
	assert.Equal(t, 256, TotalBits)
	assert.Equal(t, 160, CodewordBits)
	assert.Equal(t, 16, PayloadBytes)
}

func Test_Layout_RejectsBadGeometry(t *testing.T) {
	l := DefaultLayout()
	l.PayloadSymbols = 0
	assert.Error(t, l.Validate())

	l = DefaultLayout()
	l.TotalSymbols = 100
	assert.Error(t, l.Validate())
}

func Test_Frame_PackUnpack_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	f := NewFrame(0xDEADBEEF, 0x000000C0)
	for i := 0; i < PayloadBits; i++ {
		f.Payload.Set(i, uint8(rng.Intn(2)))
	}
	for i := 0; i < ECCBits; i++ {
		f.ECC.Set(i, uint8(rng.Intn(2)))
	}

	wire, err := f.Pack()
	require.NoError(t, err)
	require.Equal(t, TotalBits, wire.Len())

	// The sync field always leads.
	assert.Equal(t, SyncPattern, Uint32FromBits(wire.Slice(0, SyncBits)))

	got, syncErrors, err := Unpack(wire)
	require.NoError(t, err)
	assert.Zero(t, syncErrors)
	assert.Equal(t, f.TargetID, got.TargetID)
	assert.Equal(t, f.Command, got.Command)

	d, err := got.Payload.HammingDistance(f.Payload)
	require.NoError(t, err)
	assert.Zero(t, d)
	d, err = got.ECC.HammingDistance(f.ECC)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func Test_Unpack_CountsSyncErrors(t *testing.T) {
	f := NewFrame(1, 2)
	wire, err := f.Pack()
	require.NoError(t, err)

	wire.Flip(0)
	wire.Flip(5)
	wire.Flip(31)

	_, syncErrors, err := Unpack(wire)
	require.NoError(t, err)
	assert.Equal(t, 3, syncErrors)
}

func Test_Unpack_RejectsWrongLength(t *testing.T) {
	_, _, err := Unpack(NewBitVector(100))
	assert.Error(t, err)
}

func Test_Frame_Codeword_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cw := NewBitVector(CodewordBits)
	for i := 0; i < cw.Len(); i++ {
		cw.Set(i, uint8(rng.Intn(2)))
	}

	f := NewFrame(1, 2)
	require.NoError(t, f.SetCodeword(cw))

	back := f.Codeword()
	d, err := back.HammingDistance(cw)
	require.NoError(t, err)
	assert.Zero(t, d)

	assert.Error(t, f.SetCodeword(NewBitVector(10)))
}

func Test_Bits_ByteConversion_RoundTrip(t *testing.T) {
	data := []byte{0xA5, 0x00, 0xFF, 0x3C}
	v := BitsFromBytes(data)
	require.Equal(t, 32, v.Len())

	// MSB of the first byte is the first bit on the wire.
	assert.Equal(t, uint8(1), v.Get(0))
	assert.Equal(t, uint8(0), v.Get(1))
	assert.Equal(t, data, BytesFromBits(v))
}

func Test_Bits_Uint32_RoundTrip(t *testing.T) {
	for _, word := range []uint32{0, 1, 0xA5A5A5A5, 0xFFFFFFFF, 0x80000001} {
		assert.Equal(t, word, Uint32FromBits(BitsFromUint32(word)))
	}
}

func Test_BitVector_Ops(t *testing.T) {
	v := NewBitVector(100)
	v.Set(0, 1)
	v.Set(64, 1)
	v.Set(99, 1)
	assert.Equal(t, 3, v.Weight())

	v.Flip(0)
	assert.Equal(t, uint8(0), v.Get(0))
	assert.Equal(t, 2, v.Weight())

	c := v.Clone()
	c.XOR(v)
	assert.Zero(t, c.Weight())

	s := v.Slice(60, 70)
	assert.Equal(t, 10, s.Len())
	assert.Equal(t, uint8(1), s.Get(4))

	d, err := v.HammingDistance(NewBitVector(100))
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	_, err = v.HammingDistance(NewBitVector(10))
	assert.Error(t, err)
}

func Test_XOR_ShorterOperandLeavesTail(t *testing.T) {
	v := NewBitVector(128)
	v.Set(0, 1)
	v.Set(100, 1)

	w := NewBitVector(64)
	w.Set(0, 1)
	w.Set(63, 1)

	v.XOR(w)
	assert.Zero(t, v.Get(0))
	assert.Equal(t, uint8(1), v.Get(63))
	assert.Equal(t, uint8(1), v.Get(100), "bits beyond the operand stay put")
}
