package frame

import "fmt"

// Frame is one instance of the protocol unit: 256 bits across five fields.
// The sync field is implicit; Pack always emits the fixed pattern and Unpack
// reports how many sync bits actually matched so the caller can judge lock
// quality.
type Frame struct {
	TargetID uint32
	Command  uint32
	Payload  *BitVector // PayloadBits long (message bits)
	ECC      *BitVector // ECCBits long (LDPC parity)
}

// NewFrame returns a frame with zeroed payload and parity fields.
func NewFrame(targetID, command uint32) *Frame {
	return &Frame{
		TargetID: targetID,
		Command:  command,
		Payload:  NewBitVector(PayloadBits),
		ECC:      NewBitVector(ECCBits),
	}
}

// Pack serializes the frame into its 256-bit wire form, sync pattern first.
func (f *Frame) Pack() (*BitVector, error) {
	if f.Payload == nil || f.Payload.Len() != PayloadBits {
		return nil, fmt.Errorf("frame payload must be %d bits", PayloadBits)
	}
	if f.ECC == nil || f.ECC.Len() != ECCBits {
		return nil, fmt.Errorf("frame ecc must be %d bits", ECCBits)
	}

	v := NewBitVector(TotalBits)
	off := 0
	v.CopyFrom(off, BitsFromUint32(SyncPattern))
	off += SyncBits
	v.CopyFrom(off, BitsFromUint32(f.TargetID))
	off += TargetIDBits
	v.CopyFrom(off, BitsFromUint32(f.Command))
	off += CommandBits
	v.CopyFrom(off, f.Payload)
	off += PayloadBits
	v.CopyFrom(off, f.ECC)
	return v, nil
}

// Unpack deserializes 256 received bits into a frame. syncErrors reports the
// Hamming distance between the received sync field and the fixed pattern;
// the other fields are taken as-is (payload and parity correction is the LDPC
// decoder's job, not Unpack's).
func Unpack(v *BitVector) (f *Frame, syncErrors int, err error) {
	if v.Len() != TotalBits {
		return nil, 0, fmt.Errorf("frame must be %d bits, got %d", TotalBits, v.Len())
	}

	off := 0
	syncField := v.Slice(off, off+SyncBits)
	syncErrors, _ = syncField.HammingDistance(BitsFromUint32(SyncPattern))
	off += SyncBits

	f = &Frame{}
	f.TargetID = Uint32FromBits(v.Slice(off, off+TargetIDBits))
	off += TargetIDBits
	f.Command = Uint32FromBits(v.Slice(off, off+CommandBits))
	off += CommandBits
	f.Payload = v.Slice(off, off+PayloadBits)
	off += PayloadBits
	f.ECC = v.Slice(off, off+ECCBits)
	return f, syncErrors, nil
}

// Codeword concatenates payload and parity into the LDPC codeword span.
func (f *Frame) Codeword() *BitVector {
	cw := NewBitVector(CodewordBits)
	cw.CopyFrom(0, f.Payload)
	cw.CopyFrom(PayloadBits, f.ECC)
	return cw
}

// SetCodeword splits an LDPC codeword back into payload and parity fields.
func (f *Frame) SetCodeword(cw *BitVector) error {
	if cw.Len() != CodewordBits {
		return fmt.Errorf("codeword must be %d bits, got %d", CodewordBits, cw.Len())
	}
	f.Payload = cw.Slice(0, PayloadBits)
	f.ECC = cw.Slice(PayloadBits, CodewordBits)
	return nil
}
