package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ArrEssJay/chimera/modem/pipeline"
)

// Collectors register against the default registry, so the whole test
// binary shares a single metric set.
var testMetrics = NewPrometheusMetrics()

func Test_UpdateFromDiagnostics_ClampsCounterResets(t *testing.T) {
	testMetrics.UpdateFromDiagnostics(&pipeline.Diagnostics{
		FrameCount:     5,
		DecodeFailures: 1,
		PreFECErrors:   10,
		PostFECErrors:  2,
	}, 3*time.Millisecond)

	assert.Equal(t, 5.0, testutil.ToFloat64(testMetrics.framesDecoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.decodeFailures))
	assert.Equal(t, 10.0, testutil.ToFloat64(testMetrics.preFECErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.postFECErrors))

	// A pipeline reset hands back smaller totals. Counters must absorb
	// the restarted values instead of underflowing the delta.
	testMetrics.UpdateFromDiagnostics(&pipeline.Diagnostics{
		FrameCount:   2,
		PreFECErrors: 3,
	}, 3*time.Millisecond)

	assert.Equal(t, 7.0, testutil.ToFloat64(testMetrics.framesDecoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.decodeFailures))
	assert.Equal(t, 13.0, testutil.ToFloat64(testMetrics.preFECErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.postFECErrors))
}

func Test_CounterDelta(t *testing.T) {
	assert.Equal(t, uint64(4), counterDelta(9, 5))
	assert.Equal(t, uint64(0), counterDelta(5, 5))
	assert.Equal(t, uint64(3), counterDelta(3, 5), "reset restarts from the new total")
}
