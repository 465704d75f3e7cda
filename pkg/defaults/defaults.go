// Package defaults provides canonical default values for the engine.
// This is the single source of truth for runtime tuning constants.
//
// Usage:
//
//	cfg.Timeout = defaults.ProbeTimeout
//	samples := defaults.BaselineSamples
//
// Do not hardcode values like `Timeout: 10 * time.Second` elsewhere;
// reference the appropriate constant from this package.
package defaults

import "time"

// Version is the current engine version.
const Version = "1.2.0"

// ToolName identifies the engine in logs, user agents, and telemetry.
const ToolName = "exploitprobe"

// ============================================================================
// PROBE EXECUTION
// ============================================================================

const (
	// ProbeTimeout is the default client-side timeout for a single probe (10s).
	ProbeTimeout = 10 * time.Second

	// DialTimeout is the timeout for establishing connections (10s).
	DialTimeout = 10 * time.Second

	// TLSHandshakeTimeout is the timeout for TLS handshakes (10s).
	TLSHandshakeTimeout = 10 * time.Second

	// IdleConnTimeout is how long idle connections stay pooled (90s).
	IdleConnTimeout = 90 * time.Second

	// MaxIdleConns is the connection pool ceiling across all hosts (100).
	MaxIdleConns = 100

	// MaxConnsPerHost bounds concurrent connections to one target (25).
	MaxConnsPerHost = 25

	// ProbeRateLimit is the default probes-per-second ceiling for one
	// engine instance (50).
	ProbeRateLimit = 50
)

// ============================================================================
// BASELINE SAMPLING
// ============================================================================

const (
	// BaselineSamples is the number of sequential requests used to
	// establish a timing baseline (5).
	BaselineSamples = 5

	// JitterMin is the minimum inter-sample delay during baseline capture.
	JitterMin = 100 * time.Millisecond

	// JitterMax is the maximum inter-sample delay during baseline capture.
	JitterMax = 200 * time.Millisecond
)

// ============================================================================
// FINGERPRINTING
// ============================================================================

const (
	// BodySampleSize is how many leading body bytes a fingerprint retains
	// for reflection/error detection (4KB). Hash and length always cover
	// the full body.
	BodySampleSize = 4 * 1024

	// MaxBodyRead caps how much of a response body is read at all (1MB).
	// Targets that stream unbounded bodies must not exhaust the prober.
	MaxBodyRead = 1 * 1024 * 1024

	// TimingEpsilonMs floors the baseline standard deviation when
	// normalizing timing deltas, so a perfectly stable baseline does not
	// divide the delta to infinity.
	TimingEpsilonMs = 1.0
)

// ============================================================================
// SCORING THRESHOLDS
// ============================================================================
//
// These are the built-in fallbacks used when no rule file is loaded.
// ============================================================================

const (
	// ProgressThreshold is the weighted score at which a probe counts as
	// progress (1.5).
	ProgressThreshold = 1.5

	// ExploitConfirmThreshold is the weighted score at which an exploit
	// is considered confirmed (5.0).
	ExploitConfirmThreshold = 5.0

	// AbandonAttempts is the per-obstacle attempt count after which the
	// line of attack is abandoned (8).
	AbandonAttempts = 8

	// DecayWindowSize is the sliding-window length for confidence decay
	// detection (3).
	DecayWindowSize = 3

	// DecayThreshold is the relative first-to-last drop across the decay
	// window that flags decay (0.3 = 30%).
	DecayThreshold = 0.3

	// DecayPairRatio is the fraction of consecutive score pairs in the
	// window that must be strictly decreasing to flag decay (0.7).
	DecayPairRatio = 0.7

	// CircuitBreakerMaxAttempts is the hard per-obstacle request bound
	// enforced independently of rule configuration (12).
	CircuitBreakerMaxAttempts = 12

	// CircuitBreakerCooldown is how long a tripped obstacle stays closed
	// to new probes (5s).
	CircuitBreakerCooldown = 5000 * time.Millisecond
)
