// Package fingerprint executes probe requests and reduces responses to
// compact, comparable fingerprints. It is the only package in the
// engine that touches the network.
//
// The load-bearing contract here is "never throw, always fingerprint":
// a timed-out or refused probe comes back as a Fingerprint with a
// sentinel status and error class, so the scoring path treats transport
// failures exactly like any other response.
package fingerprint

import (
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Fingerprint is the normalized, comparable snapshot of one HTTP
// response. Fingerprints are transient: computed per probe and never
// persisted by the engine.
type Fingerprint struct {
	// StatusCode is the HTTP status. 0 signals a connection failure,
	// 408 a client-side timeout.
	StatusCode int `json:"status_code"`

	// BodyHash is a stable digest of the full body bytes
	// (murmur3, "mmh3:" prefixed). Empty when no body was received.
	BodyHash string `json:"body_hash"`

	// BodyLength is the true byte length of the body that produced
	// BodyHash, even when RawBodySample is truncated.
	BodyLength int `json:"body_length"`

	// ResponseTimesMs holds one or more timing samples in milliseconds.
	// A single probe yields one sample; baseline capture yields N.
	ResponseTimesMs []float64 `json:"response_times_ms"`

	// Headers maps lower-cased header names to their first value.
	Headers map[string]string `json:"headers"`

	// ErrorClass is the normalized response classification.
	ErrorClass ErrorClass `json:"error_class,omitempty"`

	// RawBodySample is the leading slice of the body retained for
	// reflection/error detection and audit, never the full body.
	RawBodySample string `json:"raw_body_sample,omitempty"`
}

// MeanResponseTimeMs averages the fingerprint's timing samples.
func (f *Fingerprint) MeanResponseTimeMs() float64 {
	if len(f.ResponseTimesMs) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.ResponseTimesMs {
		sum += t
	}
	return sum / float64(len(f.ResponseTimesMs))
}

// TimingStats is the derived timing aggregate over one or more
// fingerprints. Computed fresh on request, never persisted.
type TimingStats struct {
	MeanResponseTimeMs   float64 `json:"mean_response_time_ms"`
	StdDevResponseTimeMs float64 `json:"std_dev_response_time_ms"`
}

// ComputeTimingStats flattens the timing samples of all fingerprints
// and returns their mean and population standard deviation.
// Empty input yields zeros, never a division by zero.
func ComputeTimingStats(fps []Fingerprint) TimingStats {
	var samples []float64
	for _, fp := range fps {
		samples = append(samples, fp.ResponseTimesMs...)
	}
	if len(samples) == 0 {
		return TimingStats{}
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return TimingStats{
		MeanResponseTimeMs:   mean,
		StdDevResponseTimeMs: math.Sqrt(variance),
	}
}

// HashBody digests body bytes into the stable fingerprint form.
func HashBody(body []byte) string {
	return fmt.Sprintf("mmh3:%016x", murmur3.Sum64(body))
}
