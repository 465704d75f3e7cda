package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exploitprobe/exploitprobe/pkg/fingerprint"
)

func baselineFP() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		StatusCode:      200,
		BodyLength:      500,
		ResponseTimesMs: []float64{100},
		Headers:         map[string]string{"content-type": "text/html", "server": "nginx"},
		RawBodySample:   "<html>welcome</html>",
	}
}

func TestCompareScenario(t *testing.T) {
	baseline := baselineFP()
	candidate := fingerprint.Fingerprint{
		StatusCode:      500,
		BodyLength:      520,
		ResponseTimesMs: []float64{110},
		Headers:         map[string]string{"content-type": "text/html", "server": "nginx"},
		ErrorClass:      fingerprint.ErrorClassSQL,
	}
	stats := fingerprint.TimingStats{MeanResponseTimeMs: 100, StdDevResponseTimeMs: 10}

	d := Compare(candidate, baseline, stats, "")

	assert.True(t, d.StatusChanged)
	assert.True(t, d.ErrorClassChanged)
	assert.InDelta(t, 0.04, d.BodyLengthDelta, 1e-9)
	assert.InDelta(t, 1.0, d.TimingDeltaStd, 1e-9)
	assert.Empty(t, d.HeadersAdded)
	assert.Empty(t, d.HeadersRemoved)
}

func TestCompareIdentical(t *testing.T) {
	baseline := baselineFP()
	stats := fingerprint.ComputeTimingStats([]fingerprint.Fingerprint{baseline})

	d := Compare(baseline, baseline, stats, "")

	assert.False(t, d.StatusChanged)
	assert.False(t, d.ErrorClassChanged)
	assert.False(t, d.BodyContainsTarget)
	assert.Zero(t, d.TimingDeltaStd)
	assert.Zero(t, d.BodyLengthDelta)
	assert.False(t, d.HeadersChanged())
}

func TestCompareErrorClassNullTransition(t *testing.T) {
	baseline := baselineFP()
	candidate := baselineFP()
	candidate.ErrorClass = fingerprint.ErrorClassWAFBlock

	d := Compare(candidate, baseline, fingerprint.TimingStats{}, "")
	assert.True(t, d.ErrorClassChanged, "none-to-some counts as a change")
}

func TestCompareBodyContainsTarget(t *testing.T) {
	baseline := baselineFP()
	candidate := baselineFP()
	candidate.RawBodySample = `<html>query failed near "'--"</html>`

	d := Compare(candidate, baseline, fingerprint.TimingStats{}, "'--")
	assert.True(t, d.BodyContainsTarget)

	// Marker already present in the baseline does not count.
	baseline.RawBodySample = candidate.RawBodySample
	d = Compare(candidate, baseline, fingerprint.TimingStats{}, "'--")
	assert.False(t, d.BodyContainsTarget)

	// Empty marker never matches.
	d = Compare(candidate, baselineFP(), fingerprint.TimingStats{}, "")
	assert.False(t, d.BodyContainsTarget)
}

func TestCompareTimingFlooredAtZero(t *testing.T) {
	baseline := baselineFP()
	candidate := baselineFP()
	candidate.ResponseTimesMs = []float64{40}

	stats := fingerprint.TimingStats{MeanResponseTimeMs: 100, StdDevResponseTimeMs: 10}
	d := Compare(candidate, baseline, stats, "")
	assert.Zero(t, d.TimingDeltaStd, "faster responses score no timing delta")
}

func TestCompareTimingEpsilon(t *testing.T) {
	baseline := baselineFP()
	candidate := baselineFP()
	candidate.ResponseTimesMs = []float64{5100}

	// Perfectly stable baseline: epsilon keeps the ratio finite.
	stats := fingerprint.TimingStats{MeanResponseTimeMs: 100, StdDevResponseTimeMs: 0}
	d := Compare(candidate, baseline, stats, "")
	assert.InDelta(t, 5000.0, d.TimingDeltaStd, 1e-9)
}

func TestCompareBodyLengthEmptyBaseline(t *testing.T) {
	baseline := baselineFP()
	baseline.BodyLength = 0
	candidate := baselineFP()
	candidate.BodyLength = 42

	d := Compare(candidate, baseline, fingerprint.TimingStats{}, "")
	assert.InDelta(t, 42.0, d.BodyLengthDelta, 1e-9, "empty baseline divides by one, not zero")
}

func TestCompareHeaderSets(t *testing.T) {
	baseline := baselineFP()
	candidate := baselineFP()
	candidate.Headers = map[string]string{
		"content-type":      "text/html",
		"x-waf-action":      "challenge",
		"x-request-blocked": "1",
	}

	d := Compare(candidate, baseline, fingerprint.TimingStats{}, "")
	assert.Equal(t, []string{"x-request-blocked", "x-waf-action"}, d.HeadersAdded)
	assert.Equal(t, []string{"server"}, d.HeadersRemoved)
	assert.True(t, d.HeadersChanged())
}

func TestCompareToBaseline(t *testing.T) {
	baseline := &fingerprint.Baseline{
		Fingerprints: []fingerprint.Fingerprint{
			{StatusCode: 200, BodyLength: 100, ResponseTimesMs: []float64{90}, Headers: map[string]string{}},
			{StatusCode: 200, BodyLength: 100, ResponseTimesMs: []float64{110}, Headers: map[string]string{}},
		},
	}
	baseline.Stats = fingerprint.ComputeTimingStats(baseline.Fingerprints)

	candidate := fingerprint.Fingerprint{
		StatusCode: 500, BodyLength: 100,
		ResponseTimesMs: []float64{100},
		Headers:         map[string]string{},
	}
	d := CompareToBaseline(candidate, baseline, "")
	assert.True(t, d.StatusChanged)
	assert.Zero(t, d.TimingDeltaStd)
}
