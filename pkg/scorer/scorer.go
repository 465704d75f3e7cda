// Package scorer is the stateful decision function of the engine: it
// turns response deltas into weighted score vectors against the rule
// registry and tracks per-family confidence decay and per-obstacle
// attempt counts across calls.
//
// State is keyed by string identifiers and held as independently locked
// entries in sync.Map arenas, so evaluations for different obstacles or
// families never block each other. Evaluations for the same obstacle
// are serialized per entry; the calling orchestrator only has to avoid
// interleaving calls for one obstacle if it cares about ordering.
package scorer

import (
	"log/slog"
	"sync"

	"github.com/exploitprobe/exploitprobe/pkg/delta"
	"github.com/exploitprobe/exploitprobe/pkg/rules"
)

// CustomEvaluator extracts a numeric value from a delta for a signal
// outside the built-in set. The value is then put through the rule's
// binary/threshold semantics like any built-in signal.
type CustomEvaluator func(delta.Delta) float64

// Scorer evaluates deltas against the injected rule registry.
type Scorer struct {
	registry *rules.Registry
	logger   *slog.Logger

	customMu sync.RWMutex
	custom   map[string]CustomEvaluator

	families sync.Map // map[string]*familyTracker
	attempts sync.Map // map[string]*attemptCounter
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scorer) { s.logger = l }
}

// New creates a Scorer bound to the given registry. The registry is an
// explicit dependency, not a global: tests inject fake rule sets.
func New(registry *rules.Registry, opts ...Option) *Scorer {
	s := &Scorer{
		registry: registry,
		logger:   slog.Default(),
		custom:   make(map[string]CustomEvaluator),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterCustomSignal installs an evaluator for a signal name outside
// the built-in set. Rules naming it will score through the evaluator;
// last registration wins.
func (s *Scorer) RegisterCustomSignal(name string, eval CustomEvaluator) {
	s.customMu.Lock()
	defer s.customMu.Unlock()
	s.custom[name] = eval
}

// UnregisterCustomSignal removes a custom evaluator.
func (s *Scorer) UnregisterCustomSignal(name string) {
	s.customMu.Lock()
	defer s.customMu.Unlock()
	delete(s.custom, name)
}

// EvaluateDelta scores a delta against every rule in the registry,
// updates the mutation family's decay window when family is non-empty,
// and counts the attempt against obstacleID unconditionally — every
// evaluation is one attempt, success or failure.
//
// For fixed rules and a fixed delta the returned vector is always the
// same: there is no hidden randomness anywhere in the scoring path.
func (s *Scorer) EvaluateDelta(d delta.Delta, obstacleID, family string) Vector {
	var vec Vector

	for _, rule := range s.registry.Rules() {
		raw, known := s.signalValue(rule.Signal, d)
		if !known {
			s.logger.Warn("rule references unknown signal, scoring 0",
				slog.String("signal", rule.Signal))
			continue
		}

		fired := 0.0
		switch rule.Type {
		case rules.TypeBinary:
			if raw != 0 {
				fired = 1
			}
		case rules.TypeThreshold:
			if raw >= rule.ThresholdValue() {
				fired = 1
			}
		}
		contribution := fired * rule.Weight

		if sig, ok := rules.ParseSignal(rule.Signal); ok {
			vec.set(sig, contribution)
		} else if contribution != 0 {
			if vec.Custom == nil {
				vec.Custom = make(map[string]float64)
			}
			vec.Custom[rule.Signal] = contribution
		}
		vec.WeightedTotal += contribution
	}

	if family != "" {
		s.recordFamilyScore(family, vec.WeightedTotal)
	}
	s.countAttempt(obstacleID)

	return vec
}

// signalValue resolves a signal name to its numeric reading of the
// delta. Boolean signals read as 0/1. known is false only when the name
// is neither built-in nor a registered custom signal.
func (s *Scorer) signalValue(name string, d delta.Delta) (value float64, known bool) {
	if sig, ok := rules.ParseSignal(name); ok {
		return builtinValue(sig, d), true
	}
	s.customMu.RLock()
	eval, ok := s.custom[name]
	s.customMu.RUnlock()
	if !ok {
		return 0, false
	}
	return eval(d), true
}

func builtinValue(sig rules.Signal, d delta.Delta) float64 {
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	switch sig {
	case rules.SignalStatusChanged:
		return b2f(d.StatusChanged)
	case rules.SignalErrorClassChanged:
		return b2f(d.ErrorClassChanged)
	case rules.SignalBodyContainsTarget:
		return b2f(d.BodyContainsTarget)
	case rules.SignalPayloadReflected:
		// Reflection and target presence read the same delta field;
		// they are weighted separately on purpose.
		return b2f(d.BodyContainsTarget)
	case rules.SignalTimingDelta:
		return d.TimingDeltaStd
	case rules.SignalBodyLengthDelta:
		return d.BodyLengthDelta
	case rules.SignalHeadersChanged:
		return b2f(d.HeadersChanged())
	}
	return 0
}

// IsMakingProgress reports whether a score clears the progress threshold.
func (s *Scorer) IsMakingProgress(score float64) bool {
	return score >= s.registry.ProgressThreshold()
}

// IsExploitConfirmed reports whether a score clears the confirmation
// threshold. Confirmation is not terminal here; the orchestrator
// decides whether to stop.
func (s *Scorer) IsExploitConfirmed(score float64) bool {
	return score >= s.registry.ExploitConfirmThreshold()
}

// ShouldAbandon reports whether the obstacle's attempt count has
// reached the abandon threshold. Abandonment is driven purely by
// attempts, never by score, so the request bound holds no matter how
// the rules are configured.
func (s *Scorer) ShouldAbandon(obstacleID string) bool {
	return s.AttemptCount(obstacleID) >= s.registry.AbandonThreshold()
}
