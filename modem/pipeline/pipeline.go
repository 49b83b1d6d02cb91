package pipeline

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/ArrEssJay/chimera/modem/channel"
	"github.com/ArrEssJay/chimera/modem/demod"
	"github.com/ArrEssJay/chimera/modem/frame"
	"github.com/ArrEssJay/chimera/modem/framesync"
	"github.com/ArrEssJay/chimera/modem/ldpc"
	"github.com/ArrEssJay/chimera/modem/modulate"
	"github.com/ArrEssJay/chimera/modem/spectrum"
)

// State is the receive-side position in the frame recovery cycle.
type State int

const (
	// SearchingSync means the synchronizer is still hunting for a frame
	// boundary in the bit history.
	SearchingSync State = iota
	// Synchronized means a boundary was found and frame bits are
	// accumulating until a full frame can be decoded.
	Synchronized
)

func (s State) String() string {
	if s == Synchronized {
		return "synchronized"
	}
	return "searching_sync"
}

// constellationKeep caps how many recent points ride on one diagnostics
// snapshot.
const constellationKeep = 256

// maxSyncFieldErrors bounds the de-rotated sync field errors of an accepted
// frame. The periodic sync word can correlate above threshold at a shifted
// offset or wrong rotation; such a false lock leaves the de-rotated sync
// field near 50% wrong and is rejected here before any accounting.
const maxSyncFieldErrors = 5

// Pipeline is the stateful streaming orchestrator. One instance owns all of
// its mutable state exclusively: the transmit synthesizer, the receive
// demodulator and synchronizer, partial-frame buffers and the running error
// counters. Chunks of any size pass through; nothing is aligned to symbol or
// frame boundaries.
//
// The transmit and receive directions are independent: a transmit-only user
// calls QueueMessage/GenerateAudio (or Transmit), a receive-only user calls
// Receive, and Loopback chains the two through a channel model for
// simulation.
type Pipeline struct {
	cfg  Config
	code *ldpc.Code

	synth    *modulate.Synthesizer
	dem      *demod.Demodulator
	searcher *framesync.Searcher
	analyzer *spectrum.Analyzer

	state      State
	lastSync   framesync.Result
	rxFrameIdx uint64 // frames completed, success or not; aligns the reference
	frameCount uint64 // successfully decoded frames
	decodeFail uint64

	preFECErrors  uint64
	preFECBits    uint64
	postFECErrors uint64
	postFECBits   uint64

	evmSumSq float64
	evmCount uint64

	message   []byte
	reference []byte

	txConstellation []PointIQ

	pendingMu  sync.Mutex
	pendingCfg *Config
}

// New builds a pipeline from a validated configuration. All configuration
// errors surface here, before any processing begins; the per-chunk path
// cannot fail.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := frame.DefaultLayout().Validate(); err != nil {
		return nil, err
	}

	code, err := ldpc.New(cfg.LDPCDv, cfg.LDPCDc, cfg.LDPCSeed)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, code: code}
	if err := p.buildDSP(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildDSP constructs the stateful DSP components from the current config.
func (p *Pipeline) buildDSP() error {
	fsk := modulate.NewFSKSource(p.cfg.FSKMode, p.cfg.FSKSeed)
	synth, err := modulate.NewSynthesizer(modulate.SynthConfig{
		SampleRate:     p.cfg.SampleRate,
		CarrierHz:      p.cfg.CarrierHz,
		SymbolRate:     p.cfg.SymbolRate,
		FSKDeviationHz: p.cfg.FSKDeviationHz,
		FSKRateHz:      p.cfg.FSKRateHz,
		Amplitude:      p.cfg.Amplitude,
	}, fsk)
	if err != nil {
		return err
	}
	dem, err := demod.New(demod.Config{
		SampleRate: p.cfg.SampleRate,
		CarrierHz:  p.cfg.CarrierHz,
		SymbolRate: p.cfg.SymbolRate,
	})
	if err != nil {
		return err
	}
	p.synth = synth
	p.dem = dem
	p.searcher = framesync.NewSearcher(p.cfg.SyncThreshold, 0)
	p.analyzer = spectrum.New(int(p.cfg.SampleRate), 0)
	return nil
}

// Config returns the active configuration snapshot.
func (p *Pipeline) Config() Config { return p.cfg }

// Code returns the LDPC code instance, for diagnostics and tests.
func (p *Pipeline) Code() *ldpc.Code { return p.code }

// SetReference installs the known transmitted message so pre- and post-FEC
// bit errors are measured against the truth. Simulation only; production
// receivers leave it unset and the counters fall back to what the decoder
// can observe.
func (p *Pipeline) SetReference(message []byte) {
	p.reference = append([]byte(nil), message...)
}

// QueueMessage frames and encodes a message and queues its symbols on the
// synthesizer. The audio is pulled out with GenerateAudio so a host audio
// callback can drain it at its own buffer cadence.
func (p *Pipeline) QueueMessage(message []byte) error {
	p.applyPending()

	frames := (len(message) + frame.PayloadBytes - 1) / frame.PayloadBytes
	if frames == 0 {
		frames = 1
	}
	if p.cfg.MaxFrames > 0 && frames > p.cfg.MaxFrames {
		frames = p.cfg.MaxFrames
	}

	for i := 0; i < frames; i++ {
		payload := make([]byte, frame.PayloadBytes)
		copy(payload, message[min(i*frame.PayloadBytes, len(message)):])

		cw, err := p.code.Encode(frame.BitsFromBytes(payload))
		if err != nil {
			return err
		}
		f := frame.NewFrame(p.cfg.TargetID, p.cfg.Command)
		if err := f.SetCodeword(cw); err != nil {
			return err
		}
		wire, err := f.Pack()
		if err != nil {
			return err
		}
		symbols, err := modulate.MapBits(wire)
		if err != nil {
			return err
		}
		for _, s := range symbols {
			if len(p.txConstellation) < constellationKeep {
				p.txConstellation = append(p.txConstellation, PointIQ{I: real(s), Q: imag(s)})
			}
		}
		p.synth.QueueSymbols(symbols...)
	}
	return nil
}

// GenerateAudio fills dst with transmit samples, returning the count
// produced. Phase state carries across calls, so the host can pull
// arbitrary-size buffers.
func (p *Pipeline) GenerateAudio(dst []float64) int {
	return p.synth.Generate(dst)
}

// PendingAudio reports how many transmit samples remain queued.
func (p *Pipeline) PendingAudio() int { return p.synth.Pending() }

// Transmit is the one-shot convenience: queue the message and drain the
// whole waveform.
func (p *Pipeline) Transmit(message []byte) ([]float64, error) {
	if err := p.QueueMessage(message); err != nil {
		return nil, err
	}
	return p.synth.GenerateAll(), nil
}

// Receive processes one received audio chunk of any size and returns the
// diagnostics snapshot for it. Soft failures (no sync, failed decode) are
// folded into the counters; Receive itself only fails on programming errors.
func (p *Pipeline) Receive(chunk []float64) (*Diagnostics, error) {
	p.applyPending()

	symbols := p.dem.Process(chunk)
	p.analyzer.Process(chunk)

	bits := demod.Bits(symbols)
	p.searcher.Push(bits)

	var chunkPre uint64
	for done := false; !done; {
		switch p.state {
		case SearchingSync:
			res := p.searcher.Search()
			if !res.Found {
				done = true
				break
			}
			// lastSync keeps the most recent lock; a failed search after
			// a consumed frame does not erase it.
			p.lastSync = res
			p.searcher.Consume(res.Offset)
			p.state = Synchronized

		case Synchronized:
			if p.searcher.Len() < frame.TotalBits {
				done = true
				break
			}
			raw := p.searcher.Bits(0, frame.TotalBits)
			bv := frame.NewBitVector(frame.TotalBits)
			for i := 0; i < frame.TotalBits; i += 2 {
				g := raw[i]<<1 | raw[i+1]
				if p.lastSync.Rotation != 0 {
					g = modulate.RotateGray(g, -p.lastSync.Rotation)
				}
				b1, b0 := modulate.SymbolBits(g)
				bv.Set(i, b1)
				bv.Set(i+1, b0)
			}
			if pre, accepted := p.processFrame(bv); accepted {
				p.searcher.Consume(frame.TotalBits)
				chunkPre += pre
			} else {
				// False lock: skip one symbol and rescan so the real
				// frame still buffered behind it is not swallowed.
				p.searcher.Consume(2)
			}
			p.state = SearchingSync
		}
	}

	for _, s := range symbols {
		p.evmSumSq += s.Distance * s.Distance
		p.evmCount++
	}

	return p.snapshot(symbols, chunkPre), nil
}

// processFrame decodes one complete frame's worth of bits and updates the
// message buffer and error counters. Returns the pre-FEC error count charged
// for this frame and whether the frame was accepted; a frame whose sync
// field disagrees beyond maxSyncFieldErrors is a false lock and charges
// nothing.
func (p *Pipeline) processFrame(bv *frame.BitVector) (uint64, bool) {
	f, syncErrors, err := frame.Unpack(bv)
	if err != nil || syncErrors > maxSyncFieldErrors {
		return 0, false
	}
	received := f.Codeword()
	decoded, ok, _, err := p.code.Decode(received, p.cfg.LDPCMaxIterations)
	if err != nil {
		return 0, false
	}
	payload, _ := p.code.Message(decoded)
	payloadBytes := frame.BytesFromBits(payload)

	var preErr int
	if p.reference == nil {
		// Without the reference the only observable measure of channel
		// errors is the corrections the decoder applied.
		preErr, _ = received.HammingDistance(decoded)
	} else {
		refIdx := int(p.rxFrameIdx)
		if ok {
			if j := p.findReferenceFrame(payloadBytes, refIdx); j >= 0 {
				refIdx = j
			}
		}
		truth := frame.BitsFromBytes(p.referencePayload(refIdx))
		if truthCW, encErr := p.code.Encode(truth); encErr == nil {
			preErr, _ = received.HammingDistance(truthCW)
		}
		// Post-FEC errors cover delivered payloads only: a failed decode
		// delivers nothing, it counts as a frame loss instead.
		if ok {
			d, _ := payload.HammingDistance(truth)
			p.postFECErrors += uint64(d)
			p.postFECBits += frame.PayloadBits
		}
		p.rxFrameIdx = uint64(refIdx) + 1
	}
	p.preFECErrors += uint64(preErr)
	p.preFECBits += frame.CodewordBits

	if ok {
		p.message = append(p.message, payloadBytes...)
		p.frameCount++
	} else {
		p.decodeFail++
	}
	return uint64(preErr), true
}

// referencePayload returns the reference frame at idx, zero-padded to a full
// payload.
func (p *Pipeline) referencePayload(idx int) []byte {
	truth := make([]byte, frame.PayloadBytes)
	if off := idx * frame.PayloadBytes; off >= 0 && off < len(p.reference) {
		copy(truth, p.reference[off:])
	}
	return truth
}

// findReferenceFrame locates the reference frame whose payload matches
// exactly, scanning forward from the expected index first. A frame the
// synchronizer missed entirely would otherwise shift every later comparison
// by one; an exact match re-aligns the accounting instead.
func (p *Pipeline) findReferenceFrame(payload []byte, from int) int {
	n := (len(p.reference) + frame.PayloadBytes - 1) / frame.PayloadBytes
	if n == 0 {
		n = 1
	}
	if from < 0 || from >= n {
		from = 0
	}
	for k := 0; k < n; k++ {
		j := (from + k) % n
		if bytes.Equal(payload, p.referencePayload(j)) {
			return j
		}
	}
	return -1
}

// snapshot assembles the per-chunk diagnostics.
func (p *Pipeline) snapshot(symbols []demod.SymbolDiag, chunkPre uint64) *Diagnostics {
	d := &Diagnostics{
		State:             p.state.String(),
		FrameCount:        p.frameCount,
		DecodeFailures:    p.decodeFail,
		SyncFound:         p.lastSync.Found,
		SyncConfidence:    p.lastSync.Confidence,
		SyncRotation:      p.lastSync.Rotation,
		PreFECErrors:      p.preFECErrors,
		PostFECErrors:     p.postFECErrors,
		ChunkPreFECErrors: chunkPre,
		ChunkEVMPercent:   demod.EVMPercent(symbols),
		FreqOffsetHz:      p.dem.FrequencyOffsetHz(),
		PhaseOffsetRad:    p.dem.PhaseOffset(),
		FSKMode:           p.synth.FSK().Mode().String(),
		DecodedText:       p.MessageText(),
		DecodedBytes:      len(p.message),
	}
	if p.dem.FrequencyOffsetHz() > 0 {
		d.FSKBitEstimate = 1
	}
	if p.preFECBits > 0 {
		d.PreFECBER = float64(p.preFECErrors) / float64(p.preFECBits)
	}
	if p.postFECBits > 0 {
		d.PostFECBER = float64(p.postFECErrors) / float64(p.postFECBits)
	}
	if p.evmCount > 0 {
		d.EVMPercent = 100 * math.Sqrt(p.evmSumSq/float64(p.evmCount))
	}
	if p.analyzer.Ready() {
		d.SpectrumDB = p.analyzer.MagnitudesDB()
	}
	for i, s := range symbols {
		if i >= constellationKeep {
			break
		}
		d.RXConstellation = append(d.RXConstellation, PointIQ{I: real(s.Received), Q: imag(s.Received)})
		d.TimingErrorRad = append(d.TimingErrorRad, s.PhaseError)
	}
	d.TXConstellation = append(d.TXConstellation, p.txConstellation...)
	return d
}

// Message returns the decoded bytes accumulated so far.
func (p *Pipeline) Message() []byte {
	return append([]byte(nil), p.message...)
}

// MessageText returns the decoded bytes as text with trailing frame padding
// stripped.
func (p *Pipeline) MessageText() string {
	end := len(p.message)
	for end > 0 && p.message[end-1] == 0 {
		end--
	}
	return string(p.message[:end])
}

// FrameCount reports successfully decoded frames.
func (p *Pipeline) FrameCount() uint64 { return p.frameCount }

// Loopback chains transmit -> channel -> receive in chunkSize pieces,
// installing the message as the post-FEC reference. It returns the final
// diagnostics snapshot. Each stage stays independently usable; this is the
// simulation convenience path.
func (p *Pipeline) Loopback(message []byte, ch *channel.Channel, chunkSize int) (*Diagnostics, error) {
	if chunkSize <= 0 {
		chunkSize = 4800
	}
	p.SetReference(message)

	audio, err := p.Transmit(message)
	if err != nil {
		return nil, err
	}
	impaired := audio
	if ch != nil {
		impaired = ch.Apply(audio)
	}

	var last *Diagnostics
	for start := 0; start < len(impaired); start += chunkSize {
		end := start + chunkSize
		if end > len(impaired) {
			end = len(impaired)
		}
		last, err = p.Receive(impaired[start:end])
		if err != nil {
			return nil, err
		}
	}
	if last == nil {
		return nil, fmt.Errorf("pipeline: loopback produced no audio")
	}
	return last, nil
}

// Reconfigure stages a new configuration snapshot. It is applied at the next
// chunk boundary, never mid-chunk, so oscillator and decoder state cannot
// tear. A change to structural parameters (rates, carrier, code geometry)
// rebuilds the DSP chain, which resets stream state; parameter-only changes
// (FSK mode, thresholds, iteration caps, IDs) swap in place.
func (p *Pipeline) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.pendingMu.Lock()
	p.pendingCfg = &cfg
	p.pendingMu.Unlock()
	return nil
}

// applyPending swaps in a staged configuration, if any. Called only at chunk
// boundaries by the owning goroutine.
func (p *Pipeline) applyPending() {
	p.pendingMu.Lock()
	next := p.pendingCfg
	p.pendingCfg = nil
	p.pendingMu.Unlock()
	if next == nil {
		return
	}

	if p.cfg.structuralChange(*next) {
		code, err := ldpc.New(next.LDPCDv, next.LDPCDc, next.LDPCSeed)
		if err != nil {
			// Validated at Reconfigure time for everything except code
			// geometry; an invalid geometry keeps the old snapshot.
			return
		}
		p.cfg = *next
		p.code = code
		if err := p.buildDSP(); err == nil {
			p.Reset()
		}
		return
	}

	p.cfg = *next
	p.synth.FSK().SetMode(next.FSKMode)
	p.synth.SetAmplitude(next.Amplitude)
	p.searcher.SetThreshold(next.SyncThreshold)
}

// Reset clears all mutable stream state in one step: oscillators,
// synchronizer history, partial buffers, counters and the accumulated
// message. The configuration and the parity-check matrix survive.
func (p *Pipeline) Reset() {
	p.synth.Reset()
	p.dem.Reset()
	p.searcher.Reset()
	p.analyzer.Reset()
	p.state = SearchingSync
	p.lastSync = framesync.Result{}
	p.rxFrameIdx = 0
	p.frameCount = 0
	p.decodeFail = 0
	p.preFECErrors = 0
	p.preFECBits = 0
	p.postFECErrors = 0
	p.postFECBits = 0
	p.evmSumSq = 0
	p.evmCount = 0
	p.message = nil
	p.txConstellation = nil
}
