package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ArrEssJay/chimera/modem/channel"
	"github.com/ArrEssJay/chimera/modem/pipeline"
)

// Simulator drives the modem through its own synthetic channel: transmit the
// configured message, impair it, then stream the audio back through the
// receiver in chunks while publishing diagnostics. This is the same loopback
// path the library exposes, wrapped with the host's reporting surfaces.
type Simulator struct {
	cfg     *Config
	pipe    *pipeline.Pipeline
	ch      *channel.Channel
	hub     *DiagnosticsHub
	metrics *PrometheusMetrics
	pcm     *PCMBinaryEncoder
}

// NewSimulator wires a simulator. hub, metrics and pcm are each optional.
func NewSimulator(cfg *Config, pipe *pipeline.Pipeline, hub *DiagnosticsHub, metrics *PrometheusMetrics) (*Simulator, error) {
	ch, err := channel.New(cfg.ChannelConfig())
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:     cfg,
		pipe:    pipe,
		ch:      ch,
		hub:     hub,
		metrics: metrics,
	}
	if cfg.Diagnostics.PCMEnabled {
		s.pcm = NewPCMBinaryEncoder(cfg.Diagnostics.PCMCompress)
	}
	return s, nil
}

// Run executes the simulation until the context is cancelled or, without
// repeat configured, until one pass completes.
func (s *Simulator) Run(ctx context.Context) error {
	for {
		if err := s.runOnce(ctx); err != nil {
			return err
		}
		if !s.cfg.Simulation.Repeat {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(s.cfg.Simulation.IntervalMs) * time.Millisecond):
		}
	}
}

// runOnce performs one transmit-impair-receive pass over the configured
// message.
func (s *Simulator) runOnce(ctx context.Context) error {
	message := []byte(s.cfg.Simulation.Message)
	chunkSize := s.cfg.Simulation.ChunkSize

	s.pipe.Reset()
	s.ch.Reset()
	if s.metrics != nil {
		s.metrics.ResetCounters()
	}
	s.pipe.SetReference(message)

	audio, err := s.pipe.Transmit(message)
	if err != nil {
		return fmt.Errorf("simulation transmit: %w", err)
	}
	log.Printf("[Simulation] Transmitting %d bytes as %d samples (%.1fs of audio)",
		len(message), len(audio), float64(len(audio))/s.cfg.Protocol.SampleRate)

	impaired := s.ch.Apply(audio)

	var last *pipeline.Diagnostics
	for start := 0; start < len(impaired); start += chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := start + chunkSize
		if end > len(impaired) {
			end = len(impaired)
		}
		chunk := impaired[start:end]

		began := time.Now()
		diag, err := s.pipe.Receive(chunk)
		if err != nil {
			return fmt.Errorf("simulation receive: %w", err)
		}
		elapsed := time.Since(began)

		if s.metrics != nil {
			s.metrics.UpdateFromDiagnostics(diag, elapsed)
		}
		if s.hub != nil {
			s.hub.Publish(diag)
			if s.pcm != nil {
				packet, err := s.pcm.EncodePacket(audio[start:end], int(s.cfg.Protocol.SampleRate))
				if err == nil {
					s.hub.PublishBinary(packet)
				}
			}
		}
		last = diag
	}

	if last != nil {
		log.Printf("[Simulation] Done: %d frames decoded, %d failures, pre-FEC BER %.4g, post-FEC BER %.4g, EVM %.1f%%",
			last.FrameCount, last.DecodeFailures, last.PreFECBER, last.PostFECBER, last.EVMPercent)
		log.Printf("[Simulation] Decoded text: %q", last.DecodedText)
	}
	return nil
}

// Close releases simulator resources.
func (s *Simulator) Close() {
	if s.pcm != nil {
		s.pcm.Close()
	}
}
