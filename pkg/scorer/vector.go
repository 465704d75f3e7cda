package scorer

import "github.com/exploitprobe/exploitprobe/pkg/rules"

// Vector is the weighted score produced by one delta evaluation: one
// contribution per built-in signal plus the running total. Vectors are
// transient and never mutated after construction.
type Vector struct {
	StatusChanged      float64 `json:"status_changed"`
	ErrorClassChanged  float64 `json:"error_class_changed"`
	BodyContainsTarget float64 `json:"body_contains_target"`
	PayloadReflected   float64 `json:"payload_reflected"`
	TimingDelta        float64 `json:"timing_delta"`
	BodyLengthDelta    float64 `json:"body_length_delta"`
	HeadersChanged     float64 `json:"headers_changed"`

	// Custom holds contributions from registered extension signals,
	// keyed by signal name. Nil when no custom rule fired.
	Custom map[string]float64 `json:"custom,omitempty"`

	// WeightedTotal is the sum of every contribution above.
	WeightedTotal float64 `json:"weighted_total"`
}

// set assigns a built-in signal's contribution into its vector field.
func (v *Vector) set(sig rules.Signal, contribution float64) {
	switch sig {
	case rules.SignalStatusChanged:
		v.StatusChanged = contribution
	case rules.SignalErrorClassChanged:
		v.ErrorClassChanged = contribution
	case rules.SignalBodyContainsTarget:
		v.BodyContainsTarget = contribution
	case rules.SignalPayloadReflected:
		v.PayloadReflected = contribution
	case rules.SignalTimingDelta:
		v.TimingDelta = contribution
	case rules.SignalBodyLengthDelta:
		v.BodyLengthDelta = contribution
	case rules.SignalHeadersChanged:
		v.HeadersChanged = contribution
	}
}
