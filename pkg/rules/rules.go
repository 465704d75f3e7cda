// Package rules owns the configurable weighting of scoring signals and
// the global decision thresholds. A Registry is loaded from a
// declarative YAML file and falls back to a built-in default set when
// the file is missing or malformed — the scorer must always have some
// usable configuration, so construction never fails.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
)

// ErrNoRuleFile is returned by Reload when the registry was built
// without a backing file.
var ErrNoRuleFile = errors.New("registry has no backing rule file")

// RuleType distinguishes how a rule reads its delta field.
type RuleType string

const (
	// TypeBinary rules score 1 when their boolean delta field is set.
	TypeBinary RuleType = "binary"
	// TypeThreshold rules score 1 when their numeric delta field meets
	// the rule's threshold.
	TypeThreshold RuleType = "threshold"
)

// Rule weights one signal. Rules are owned exclusively by the Registry
// and replaced whole on update, last write wins.
type Rule struct {
	Signal    string   `yaml:"signal" json:"signal"`
	Weight    float64  `yaml:"weight" json:"weight"`
	Type      RuleType `yaml:"type" json:"type"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// ThresholdValue returns the rule threshold, zero when unset.
func (r Rule) ThresholdValue() float64 {
	if r.Threshold == nil {
		return 0
	}
	return *r.Threshold
}

// ValidationResult reports every violation found in a rule at once,
// rather than failing on the first.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks a rule's shape. It never panics or errors; callers
// get the full violation list for reporting.
func Validate(r Rule) ValidationResult {
	var errs []string
	if r.Signal == "" {
		errs = append(errs, "signal name must not be empty")
	}
	if r.Weight < 0 {
		errs = append(errs, fmt.Sprintf("weight must be >= 0, got %g", r.Weight))
	}
	switch r.Type {
	case TypeBinary:
		// no threshold required
	case TypeThreshold:
		if r.Threshold == nil {
			errs = append(errs, "threshold rules require a threshold")
		} else if *r.Threshold < 0 {
			errs = append(errs, fmt.Sprintf("threshold must be >= 0, got %g", *r.Threshold))
		}
	default:
		errs = append(errs, fmt.Sprintf("type must be %q or %q, got %q", TypeBinary, TypeThreshold, r.Type))
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Thresholds are the global decision boundaries.
type Thresholds struct {
	// Progress is the weighted score at which a probe counts as progress.
	Progress float64 `yaml:"progress" json:"progress"`
	// ExploitConfirm is the weighted score at which an exploit is
	// considered confirmed.
	ExploitConfirm float64 `yaml:"exploit_confirm" json:"exploit_confirm"`
	// Abandon is the attempt count at which an obstacle is abandoned.
	Abandon int `yaml:"abandon" json:"abandon"`
}

// DecayConfig parameterizes confidence decay detection.
type DecayConfig struct {
	WindowSize     int     `yaml:"window_size" json:"window_size"`
	DecayThreshold float64 `yaml:"decay_threshold" json:"decay_threshold"`
}

// BreakerConfig parameterizes the per-obstacle circuit breaker.
type BreakerConfig struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	CooldownMs  int `yaml:"cooldown_ms" json:"cooldown_ms"`
}

// Cooldown returns the breaker cooldown as a duration.
func (b BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownMs) * time.Millisecond
}

// ruleFile is the on-disk schema.
type ruleFile struct {
	Rules           []Rule        `yaml:"rules"`
	Thresholds      Thresholds    `yaml:"thresholds"`
	ConfidenceDecay DecayConfig   `yaml:"confidence_decay"`
	CircuitBreaker  BreakerConfig `yaml:"circuit_breaker"`
}

// DefaultRules returns the built-in rule set: seven hand-tuned signals
// used whenever no rule file is available.
func DefaultRules() []Rule {
	threshold := func(v float64) *float64 { return &v }
	return []Rule{
		{Signal: SignalStatusChanged.String(), Weight: 2.0, Type: TypeBinary},
		{Signal: SignalErrorClassChanged.String(), Weight: 1.5, Type: TypeBinary},
		{Signal: SignalBodyContainsTarget.String(), Weight: 3.0, Type: TypeBinary},
		{Signal: SignalPayloadReflected.String(), Weight: 3.0, Type: TypeBinary},
		{Signal: SignalTimingDelta.String(), Weight: 2.5, Type: TypeThreshold, Threshold: threshold(2.0)},
		{Signal: SignalBodyLengthDelta.String(), Weight: 1.0, Type: TypeThreshold, Threshold: threshold(0.2)},
		{Signal: SignalHeadersChanged.String(), Weight: 0.5, Type: TypeBinary},
	}
}

// DefaultThresholds returns the built-in decision thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Progress:       defaults.ProgressThreshold,
		ExploitConfirm: defaults.ExploitConfirmThreshold,
		Abandon:        defaults.AbandonAttempts,
	}
}

// DefaultDecayConfig returns the built-in decay parameters.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		WindowSize:     defaults.DecayWindowSize,
		DecayThreshold: defaults.DecayThreshold,
	}
}

// DefaultBreakerConfig returns the built-in circuit breaker parameters.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxAttempts: defaults.CircuitBreakerMaxAttempts,
		CooldownMs:  int(defaults.CircuitBreakerCooldown / time.Millisecond),
	}
}

// Registry serves scoring rules and thresholds. Reads are concurrent;
// the infrequent writers (AddRule, RemoveRule, Reload) swap state
// atomically under the write lock so in-flight readers see either the
// old or the new rule set, never a partial one.
type Registry struct {
	mu sync.RWMutex

	path    string
	rules   map[string]Rule
	order   []string // insertion order, for stable listing/export
	thresh  Thresholds
	decay   DecayConfig
	breaker BreakerConfig

	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry builds a registry backed by the rule file at path. When
// the file is missing or malformed the built-in defaults are installed
// and a warning is logged: a broken config must never leave the scorer
// without a usable rule set.
func NewRegistry(path string, opts ...RegistryOption) *Registry {
	r := &Registry{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.installDefaults()

	if path == "" {
		return r
	}
	if err := r.Reload(); err != nil {
		r.logger.Warn("rule file unusable, falling back to built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return r
}

// NewDefaultRegistry builds a registry with the built-in rule set and
// no backing file.
func NewDefaultRegistry(opts ...RegistryOption) *Registry {
	return NewRegistry("", opts...)
}

// installDefaults resets to the built-in configuration.
func (r *Registry) installDefaults() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setRulesLocked(DefaultRules())
	r.thresh = DefaultThresholds()
	r.decay = DefaultDecayConfig()
	r.breaker = DefaultBreakerConfig()
}

// setRulesLocked replaces the rule map; callers hold the write lock.
func (r *Registry) setRulesLocked(list []Rule) {
	r.rules = make(map[string]Rule, len(list))
	r.order = r.order[:0]
	for _, rule := range list {
		if _, exists := r.rules[rule.Signal]; !exists {
			r.order = append(r.order, rule.Signal)
		}
		r.rules[rule.Signal] = rule
	}
}

// Reload re-reads the backing file. On any failure the previously
// loaded configuration stays intact — reload never partially
// overwrites. Individual invalid rules are skipped with a warning so
// one bad rule cannot take down the rest of the file.
func (r *Registry) Reload() error {
	if r.path == "" {
		return ErrNoRuleFile
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse rule file: %w", err)
	}

	valid := make([]Rule, 0, len(file.Rules))
	for _, rule := range file.Rules {
		if res := Validate(rule); !res.Valid {
			r.logger.Warn("skipping invalid rule",
				slog.String("signal", rule.Signal),
				slog.Any("errors", res.Errors))
			continue
		}
		valid = append(valid, rule)
	}
	if len(valid) == 0 {
		return fmt.Errorf("rule file %s contains no valid rules", r.path)
	}

	// Zero-valued sections mean "not set": merge defaults.
	thresh := file.Thresholds
	if thresh.Progress == 0 {
		thresh.Progress = defaults.ProgressThreshold
	}
	if thresh.ExploitConfirm == 0 {
		thresh.ExploitConfirm = defaults.ExploitConfirmThreshold
	}
	if thresh.Abandon == 0 {
		thresh.Abandon = defaults.AbandonAttempts
	}
	decay := file.ConfidenceDecay
	if decay.WindowSize == 0 {
		decay.WindowSize = defaults.DecayWindowSize
	}
	if decay.DecayThreshold == 0 {
		decay.DecayThreshold = defaults.DecayThreshold
	}
	breaker := file.CircuitBreaker
	if breaker.MaxAttempts == 0 {
		breaker.MaxAttempts = defaults.CircuitBreakerMaxAttempts
	}
	if breaker.CooldownMs == 0 {
		breaker.CooldownMs = int(defaults.CircuitBreakerCooldown / time.Millisecond)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.setRulesLocked(valid)
	r.thresh = thresh
	r.decay = decay
	r.breaker = breaker
	return nil
}

// Rules returns all rules in stable order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.rules[name])
	}
	return out
}

// Rule looks up a rule by signal name.
func (r *Registry) Rule(signal string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[signal]
	return rule, ok
}

// HasRule reports whether a rule exists for the signal.
func (r *Registry) HasRule(signal string) bool {
	_, ok := r.Rule(signal)
	return ok
}

// Weight returns the rule weight for a signal, zero when absent.
func (r *Registry) Weight(signal string) float64 {
	rule, ok := r.Rule(signal)
	if !ok {
		return 0
	}
	return rule.Weight
}

// AddRule validates and upserts a rule by signal name, last write wins.
func (r *Registry) AddRule(rule Rule) error {
	if res := Validate(rule); !res.Valid {
		return fmt.Errorf("invalid rule %q: %v", rule.Signal, res.Errors)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.Signal]; !exists {
		r.order = append(r.order, rule.Signal)
	}
	r.rules[rule.Signal] = rule
	return nil
}

// RemoveRule deletes a rule by signal name, reporting whether it existed.
func (r *Registry) RemoveRule(signal string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[signal]; !ok {
		return false
	}
	delete(r.rules, signal)
	for i, name := range r.order {
		if name == signal {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// BinaryRules returns only the binary-typed rules, in stable order.
func (r *Registry) BinaryRules() []Rule {
	return r.rulesOfType(TypeBinary)
}

// ThresholdRules returns only the threshold-typed rules, in stable order.
func (r *Registry) ThresholdRules() []Rule {
	return r.rulesOfType(TypeThreshold)
}

func (r *Registry) rulesOfType(t RuleType) []Rule {
	var out []Rule
	for _, rule := range r.Rules() {
		if rule.Type == t {
			out = append(out, rule)
		}
	}
	return out
}

// ProgressThreshold returns the score bound for progress.
func (r *Registry) ProgressThreshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresh.Progress
}

// ExploitConfirmThreshold returns the score bound for confirmation.
func (r *Registry) ExploitConfirmThreshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresh.ExploitConfirm
}

// AbandonThreshold returns the attempt bound for abandoning an obstacle.
func (r *Registry) AbandonThreshold() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresh.Abandon
}

// ConfidenceDecayConfig returns the decay detection parameters.
func (r *Registry) ConfidenceDecayConfig() DecayConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decay
}

// CircuitBreakerConfig returns the circuit breaker parameters.
func (r *Registry) CircuitBreakerConfig() BreakerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breaker
}

// ExportYAML renders the current configuration in the rule file schema.
// Re-loading the output reproduces an equivalent registry.
func (r *Registry) ExportYAML() ([]byte, error) {
	r.mu.RLock()
	file := ruleFile{
		Rules:           make([]Rule, 0, len(r.order)),
		Thresholds:      r.thresh,
		ConfidenceDecay: r.decay,
		CircuitBreaker:  r.breaker,
	}
	for _, name := range r.order {
		file.Rules = append(file.Rules, r.rules[name])
	}
	r.mu.RUnlock()

	out, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	return out, nil
}
