package main

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Binary PCM packet format for streaming transmit audio to clients.
//
// The format is hybrid: a full self-describing header goes out on the first
// packet and whenever the stream parameters change, a minimal header on every
// packet in between.
//
// FULL HEADER (24 bytes, little-endian):
//   0   uint16  magic 0x4D43 ("CM")
//   2   uint8   version (1)
//   3   uint8   format: 0=PCM, 2=PCM-zstd
//   4   uint64  sample counter (running count of the first sample in packet)
//   12  uint32  sample rate in Hz
//   16  uint8   channels (always 1)
//   17  uint8   bits per sample (always 16)
//   18  uint16  reserved
//   20  uint32  reserved
//   24  []byte  PCM data, little-endian int16
//
// MINIMAL HEADER (12 bytes, little-endian):
//   0   uint16  magic 0x4D4D ("MM")
//   2   uint8   version (1)
//   3   uint8   reserved
//   4   uint64  sample counter
//   12  []byte  PCM data, little-endian int16
//
// When the format byte is 2 the whole packet, header included, is zstd
// compressed; clients decompress first, then parse.

const (
	PCMBinaryMagicFull    uint16 = 0x4D43 // "CM" - full header packet
	PCMBinaryMagicMinimal uint16 = 0x4D4D // "MM" - minimal header packet

	PCMBinaryVersion uint8 = 1

	PCMFormatUncompressed uint8 = 0
	PCMFormatZstd         uint8 = 2

	PCMFullHeaderSize    = 24
	PCMMinimalHeaderSize = 12
)

// PCMBinaryEncoder converts float64 modem audio into binary PCM packets with
// optional zstd compression.
type PCMBinaryEncoder struct {
	useCompression bool
	zstdEncoder    *zstd.Encoder
	mu             sync.Mutex

	lastSampleRate int
	sampleCounter  uint64
	packetCount    uint64
}

// zstdEncoderPool provides reusable zstd encoders
var zstdEncoderPool = sync.Pool{
	New: func() interface{} {
		encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return encoder
	},
}

// NewPCMBinaryEncoder creates a PCM binary encoder
func NewPCMBinaryEncoder(useCompression bool) *PCMBinaryEncoder {
	encoder := &PCMBinaryEncoder{
		useCompression: useCompression,
		lastSampleRate: -1, // force full header on first packet
	}
	if useCompression {
		encoder.zstdEncoder = zstdEncoderPool.Get().(*zstd.Encoder)
	}
	return encoder
}

// EncodePacket converts one chunk of modem audio (float64 in [-1, 1]) into a
// wire packet. Samples outside [-1, 1] are clipped. The running sample
// counter gives clients drift-free alignment across packets.
func (e *PCMBinaryEncoder) EncodePacket(audio []float64, sampleRate int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.packetCount++
	needFullHeader := e.lastSampleRate != sampleRate

	var packet []byte
	if needFullHeader {
		packet = e.buildFullHeaderPacket(audio, sampleRate)
		e.lastSampleRate = sampleRate
	} else {
		packet = e.buildMinimalHeaderPacket(audio)
	}
	e.sampleCounter += uint64(len(audio))

	if e.useCompression && e.zstdEncoder != nil {
		return e.zstdEncoder.EncodeAll(packet, make([]byte, 0, len(packet))), nil
	}
	return packet, nil
}

func (e *PCMBinaryEncoder) buildFullHeaderPacket(audio []float64, sampleRate int) []byte {
	packet := make([]byte, PCMFullHeaderSize+2*len(audio))

	binary.LittleEndian.PutUint16(packet[0:], PCMBinaryMagicFull)
	packet[2] = PCMBinaryVersion
	if e.useCompression {
		packet[3] = PCMFormatZstd
	} else {
		packet[3] = PCMFormatUncompressed
	}
	binary.LittleEndian.PutUint64(packet[4:], e.sampleCounter)
	binary.LittleEndian.PutUint32(packet[12:], uint32(sampleRate))
	packet[16] = 1  // channels
	packet[17] = 16 // bits per sample

	writePCM16(packet[PCMFullHeaderSize:], audio)
	return packet
}

func (e *PCMBinaryEncoder) buildMinimalHeaderPacket(audio []float64) []byte {
	packet := make([]byte, PCMMinimalHeaderSize+2*len(audio))

	binary.LittleEndian.PutUint16(packet[0:], PCMBinaryMagicMinimal)
	packet[2] = PCMBinaryVersion
	binary.LittleEndian.PutUint64(packet[4:], e.sampleCounter)

	writePCM16(packet[PCMMinimalHeaderSize:], audio)
	return packet
}

// writePCM16 converts float64 samples to clipped little-endian int16.
func writePCM16(dst []byte, audio []float64) {
	for i, s := range audio {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(v))
	}
}

// Close releases the encoder's resources
func (e *PCMBinaryEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.zstdEncoder != nil {
		zstdEncoderPool.Put(e.zstdEncoder)
		e.zstdEncoder = nil
	}
}

// Stats returns counters describing the encoder's operation
func (e *PCMBinaryEncoder) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]interface{}{
		"packetCount":    e.packetCount,
		"sampleCounter":  e.sampleCounter,
		"useCompression": e.useCompression,
		"lastSampleRate": e.lastSampleRate,
	}
}
