// Package delta diffs a candidate response fingerprint against a
// baseline, producing the structured signal set the scorer consumes.
// Comparison is a pure function of its inputs: no retained state, safe
// to call concurrently from any number of probes.
package delta

import (
	"sort"
	"strings"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
	"github.com/exploitprobe/exploitprobe/pkg/fingerprint"
)

// Delta is the structured difference between a candidate fingerprint
// and a baseline. Transient: computed per probe, never persisted.
type Delta struct {
	// StatusChanged is set when the candidate status differs from the
	// baseline status.
	StatusChanged bool `json:"status_changed"`

	// ErrorClassChanged is set when the error classification differs,
	// including none-to-some transitions.
	ErrorClassChanged bool `json:"error_class_changed"`

	// BodyContainsTarget is set when the candidate body sample contains
	// the caller-supplied marker and the baseline sample does not.
	BodyContainsTarget bool `json:"body_contains_target"`

	// TimingDeltaStd is how many baseline standard deviations the
	// candidate's mean response time lies above the baseline mean.
	// Zero when the candidate is not slower.
	TimingDeltaStd float64 `json:"timing_delta_std"`

	// BodyLengthDelta is the normalized fractional change in body
	// length relative to the baseline.
	BodyLengthDelta float64 `json:"body_length_delta"`

	// HeadersAdded lists header names present in the candidate but not
	// the baseline, sorted.
	HeadersAdded []string `json:"headers_added,omitempty"`

	// HeadersRemoved lists header names present in the baseline but not
	// the candidate, sorted.
	HeadersRemoved []string `json:"headers_removed,omitempty"`
}

// HeadersChanged reports whether any header appeared or disappeared.
func (d *Delta) HeadersChanged() bool {
	return len(d.HeadersAdded) > 0 || len(d.HeadersRemoved) > 0
}

// Compare diffs candidate against a baseline fingerprint using the
// given baseline timing stats. marker is the injected payload (or a
// derivative) used for reflection detection; pass "" to skip it.
func Compare(candidate, baseline fingerprint.Fingerprint, stats fingerprint.TimingStats, marker string) Delta {
	d := Delta{
		StatusChanged:     candidate.StatusCode != baseline.StatusCode,
		ErrorClassChanged: candidate.ErrorClass != baseline.ErrorClass,
	}

	if marker != "" &&
		strings.Contains(candidate.RawBodySample, marker) &&
		!strings.Contains(baseline.RawBodySample, marker) {
		d.BodyContainsTarget = true
	}

	// Epsilon keeps a perfectly stable baseline from blowing the ratio
	// up to infinity.
	stdDev := stats.StdDevResponseTimeMs
	if stdDev < defaults.TimingEpsilonMs {
		stdDev = defaults.TimingEpsilonMs
	}
	if slower := candidate.MeanResponseTimeMs() - stats.MeanResponseTimeMs; slower > 0 {
		d.TimingDeltaStd = slower / stdDev
	}

	baseLen := baseline.BodyLength
	if baseLen < 1 {
		baseLen = 1
	}
	diff := candidate.BodyLength - baseline.BodyLength
	if diff < 0 {
		diff = -diff
	}
	d.BodyLengthDelta = float64(diff) / float64(baseLen)

	d.HeadersAdded = nameDifference(candidate.Headers, baseline.Headers)
	d.HeadersRemoved = nameDifference(baseline.Headers, candidate.Headers)

	return d
}

// CompareToBaseline diffs candidate against a captured baseline,
// deriving timing stats from the baseline's own samples.
func CompareToBaseline(candidate fingerprint.Fingerprint, baseline *fingerprint.Baseline, marker string) Delta {
	return Compare(candidate, baseline.BaselineFingerprint(), baseline.Stats, marker)
}

// nameDifference returns the sorted header names present in a but not b.
func nameDifference(a, b map[string]string) []string {
	var names []string
	for name := range a {
		if _, ok := b[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
