package rules

import "strings"

// Signal identifies one of the built-in scoring signals. The set is
// closed: rules naming anything else go through the scorer's custom
// signal extension path instead of stringly-typed branching.
type Signal int

const (
	// SignalStatusChanged fires when the candidate status code differs
	// from the baseline.
	SignalStatusChanged Signal = iota
	// SignalErrorClassChanged fires when the error classification
	// differs from the baseline.
	SignalErrorClassChanged
	// SignalBodyContainsTarget fires when the injected marker shows up
	// in the candidate body but not the baseline.
	SignalBodyContainsTarget
	// SignalPayloadReflected fires on payload reflection. Scored from
	// the same delta field as SignalBodyContainsTarget; the two are
	// conceptually distinct but deliberately weighted alike.
	SignalPayloadReflected
	// SignalTimingDelta carries the candidate's slowdown in baseline
	// standard deviations.
	SignalTimingDelta
	// SignalBodyLengthDelta carries the normalized body length change.
	SignalBodyLengthDelta
	// SignalHeadersChanged fires when headers appeared or disappeared.
	SignalHeadersChanged

	numSignals // sentinel, keep last
)

// BuiltinSignals lists every built-in signal in canonical order.
var BuiltinSignals = []Signal{
	SignalStatusChanged,
	SignalErrorClassChanged,
	SignalBodyContainsTarget,
	SignalPayloadReflected,
	SignalTimingDelta,
	SignalBodyLengthDelta,
	SignalHeadersChanged,
}

var signalNames = [...]string{
	"status_changed",
	"error_class_changed",
	"body_contains_target",
	"payload_reflected",
	"timing_delta",
	"body_length_delta",
	"headers_changed",
}

// String returns the canonical rule-file name of the signal.
func (s Signal) String() string {
	if s >= 0 && int(s) < len(signalNames) {
		return signalNames[s]
	}
	return "unknown"
}

// ParseSignal maps a rule-file name to its built-in Signal.
// ok is false for names outside the closed set.
func ParseSignal(name string) (Signal, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range signalNames {
		if n == name {
			return Signal(i), true
		}
	}
	return 0, false
}
