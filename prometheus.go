package main

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ArrEssJay/chimera/modem/pipeline"
)

// PrometheusMetrics holds all Prometheus metric collectors for modem and system metrics
type PrometheusMetrics struct {
	// Frame metrics
	framesDecoded  prometheus.Counter // Successfully decoded frames
	decodeFailures prometheus.Counter // Frames where bit flipping did not converge
	syncFound      prometheus.Gauge   // Whether the last search locked (1) or not (0)
	syncConfidence prometheus.Gauge   // Best normalized correlation in [-1, 1]

	// Bit error metrics
	preFECErrors  prometheus.Counter // Raw channel bit errors before correction
	postFECErrors prometheus.Counter // Residual bit errors after correction
	preFECBER     prometheus.Gauge   // Cumulative pre-FEC bit error rate
	postFECBER    prometheus.Gauge   // Cumulative post-FEC bit error rate

	// Signal quality metrics
	evmPercent   prometheus.Gauge // RMS error vector magnitude in percent
	freqOffsetHz prometheus.Gauge // Tracked carrier frequency offset (FSK estimate)
	decodedBytes prometheus.Gauge // Message bytes recovered so far

	// Processing metrics
	chunkDuration prometheus.Histogram // Wall time per processed receive chunk
	chunksTotal   prometheus.Counter   // Receive chunks processed

	// WebSocket metrics
	wsConnectionsTotal prometheus.Counter // Diagnostics WebSocket connections established
	wsDisconnectsTotal prometheus.Counter // Diagnostics WebSocket disconnections
	wsActiveClients    prometheus.Gauge   // Currently connected diagnostics clients
	wsMessagesSent     prometheus.Counter // Diagnostics messages broadcast

	// Resource metrics
	goroutineCount   prometheus.Gauge // Current number of goroutines
	memoryAllocBytes prometheus.Gauge // Current memory allocated in bytes
	memoryHeapBytes  prometheus.Gauge // Current heap memory in bytes
	gcPauseSeconds   prometheus.Gauge // Last GC pause duration in seconds

	// Counter snapshots so cumulative pipeline totals map onto counters
	lastFrames     uint64
	lastFailures   uint64
	lastPreErrors  uint64
	lastPostErrors uint64

	mu sync.Mutex // Protects snapshot state
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		framesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_frames_decoded_total",
			Help: "Total frames successfully decoded",
		}),
		decodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_decode_failures_total",
			Help: "Total frames where LDPC decoding failed to converge",
		}),
		syncFound: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_sync_found",
			Help: "Whether the last frame sync search locked (1=yes, 0=no)",
		}),
		syncConfidence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_sync_confidence",
			Help: "Best normalized sync correlation in [-1, 1]",
		}),
		preFECErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_pre_fec_bit_errors_total",
			Help: "Total channel bit errors before error correction",
		}),
		postFECErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_post_fec_bit_errors_total",
			Help: "Total residual bit errors after error correction",
		}),
		preFECBER: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_pre_fec_ber",
			Help: "Cumulative pre-FEC bit error rate",
		}),
		postFECBER: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_post_fec_ber",
			Help: "Cumulative post-FEC bit error rate",
		}),
		evmPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_evm_percent",
			Help: "RMS error vector magnitude in percent",
		}),
		freqOffsetHz: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_freq_offset_hz",
			Help: "Tracked carrier frequency offset in Hz",
		}),
		decodedBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_decoded_bytes",
			Help: "Message bytes recovered so far",
		}),
		chunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "modem_chunk_processing_seconds",
			Help:    "Wall time spent processing one receive chunk",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		chunksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_chunks_processed_total",
			Help: "Total receive chunks processed",
		}),
		wsConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_ws_connections_total",
			Help: "Total diagnostics WebSocket connections established",
		}),
		wsDisconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_ws_disconnects_total",
			Help: "Total diagnostics WebSocket disconnections",
		}),
		wsActiveClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_ws_active_clients",
			Help: "Currently connected diagnostics WebSocket clients",
		}),
		wsMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "modem_ws_messages_sent_total",
			Help: "Total diagnostics messages broadcast to clients",
		}),
		goroutineCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAllocBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_memory_alloc_bytes",
			Help: "Current memory allocated in bytes",
		}),
		memoryHeapBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_memory_heap_bytes",
			Help: "Current heap memory in bytes",
		}),
		gcPauseSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "modem_gc_pause_seconds",
			Help: "Last GC pause duration in seconds",
		}),
	}
}

// UpdateFromDiagnostics maps a per-chunk diagnostics snapshot onto the
// metric set. Pipeline totals are cumulative, so counters advance by the
// delta against the previous snapshot.
func (pm *PrometheusMetrics) UpdateFromDiagnostics(d *pipeline.Diagnostics, elapsed time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.framesDecoded.Add(float64(counterDelta(d.FrameCount, pm.lastFrames)))
	pm.decodeFailures.Add(float64(counterDelta(d.DecodeFailures, pm.lastFailures)))
	pm.preFECErrors.Add(float64(counterDelta(d.PreFECErrors, pm.lastPreErrors)))
	pm.postFECErrors.Add(float64(counterDelta(d.PostFECErrors, pm.lastPostErrors)))
	pm.lastFrames = d.FrameCount
	pm.lastFailures = d.DecodeFailures
	pm.lastPreErrors = d.PreFECErrors
	pm.lastPostErrors = d.PostFECErrors

	if d.SyncFound {
		pm.syncFound.Set(1)
	} else {
		pm.syncFound.Set(0)
	}
	pm.syncConfidence.Set(d.SyncConfidence)
	pm.preFECBER.Set(d.PreFECBER)
	pm.postFECBER.Set(d.PostFECBER)
	pm.evmPercent.Set(d.EVMPercent)
	pm.freqOffsetHz.Set(d.FreqOffsetHz)
	pm.decodedBytes.Set(float64(d.DecodedBytes))

	pm.chunkDuration.Observe(elapsed.Seconds())
	pm.chunksTotal.Inc()
}

// counterDelta advances a counter snapshot. A cumulative value below the
// previous one means the pipeline was reset underneath us; the delta
// restarts from zero instead of underflowing.
func counterDelta(cur, last uint64) uint64 {
	if cur < last {
		return cur
	}
	return cur - last
}

// ResetCounters rewinds the snapshot state after a pipeline reset so the
// next diagnostics update is not interpreted as a negative delta.
func (pm *PrometheusMetrics) ResetCounters() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.lastFrames = 0
	pm.lastFailures = 0
	pm.lastPreErrors = 0
	pm.lastPostErrors = 0
}

// ClientConnected records a new diagnostics WebSocket client
func (pm *PrometheusMetrics) ClientConnected() {
	pm.wsConnectionsTotal.Inc()
	pm.wsActiveClients.Inc()
}

// ClientDisconnected records a departed diagnostics WebSocket client
func (pm *PrometheusMetrics) ClientDisconnected() {
	pm.wsDisconnectsTotal.Inc()
	pm.wsActiveClients.Dec()
}

// MessageSent records one broadcast diagnostics message
func (pm *PrometheusMetrics) MessageSent() {
	pm.wsMessagesSent.Inc()
}

// StartResourceMonitor starts a background goroutine that updates resource
// metrics every 15 seconds until done is closed
func (pm *PrometheusMetrics) StartResourceMonitor(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				pm.goroutineCount.Set(float64(runtime.NumGoroutine()))
				pm.memoryAllocBytes.Set(float64(m.Alloc))
				pm.memoryHeapBytes.Set(float64(m.HeapAlloc))
				pm.gcPauseSeconds.Set(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e9)
			}
		}
	}()
}
