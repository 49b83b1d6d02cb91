package pipeline

// PointIQ is one constellation point on the diagnostics surface.
type PointIQ struct {
	I float64 `json:"i"`
	Q float64 `json:"q"`
}

// Diagnostics is the read-only per-chunk reporting contract for external
// consumers (dashboards, loggers). The pipeline fills it after every
// processed chunk and never depends on anyone reading it.
type Diagnostics struct {
	State          string `json:"state"`
	FrameCount     uint64 `json:"frame_count"`
	DecodeFailures uint64 `json:"decode_failures"`

	SyncFound      bool    `json:"sync_found"`
	SyncConfidence float64 `json:"sync_confidence"`
	SyncRotation   int     `json:"sync_rotation"`

	// With a reference message installed, pre-FEC errors compare each
	// received codeword against the re-encoded true codeword and post-FEC
	// errors cover delivered payloads only. Without one, pre-FEC errors
	// fall back to the corrections the decoder applied and post-FEC stays
	// empty.
	PreFECErrors  uint64  `json:"pre_fec_errors"`
	PostFECErrors uint64  `json:"post_fec_errors"`
	PreFECBER     float64 `json:"pre_fec_ber"`
	PostFECBER    float64 `json:"post_fec_ber"`

	// Instantaneous values for the chunk just processed.
	ChunkPreFECErrors uint64  `json:"chunk_pre_fec_errors"`
	ChunkEVMPercent   float64 `json:"chunk_evm_percent"`

	EVMPercent      float64   `json:"evm_percent"`
	FreqOffsetHz    float64   `json:"freq_offset_hz"`
	PhaseOffsetRad  float64   `json:"phase_offset_rad"`
	FSKBitEstimate  uint8     `json:"fsk_bit_estimate"`
	FSKMode         string    `json:"fsk_mode"`
	TimingErrorRad  []float64 `json:"timing_error_rad,omitempty"`
	SpectrumDB      []float64 `json:"spectrum_db,omitempty"`
	RXConstellation []PointIQ `json:"rx_constellation,omitempty"`
	TXConstellation []PointIQ `json:"tx_constellation,omitempty"`

	DecodedText  string `json:"decoded_text"`
	DecodedBytes int    `json:"decoded_bytes"`
}
