// Package engine wires the capturer, comparator, rule registry, and
// scorer into one probe loop with rate limiting and observability.
// It is a reference driver for orchestrators: the underlying packages
// stay fully usable on their own.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
	"github.com/exploitprobe/exploitprobe/pkg/delta"
	"github.com/exploitprobe/exploitprobe/pkg/fingerprint"
	"github.com/exploitprobe/exploitprobe/pkg/httpclient"
	"github.com/exploitprobe/exploitprobe/pkg/metrics"
	"github.com/exploitprobe/exploitprobe/pkg/rules"
	"github.com/exploitprobe/exploitprobe/pkg/scorer"
)

// ErrNoBaseline is returned by Probe when the obstacle has no captured
// baseline to compare against.
var ErrNoBaseline = errors.New("no baseline captured for obstacle")

// ErrCircuitOpen is returned by Probe when the obstacle's circuit
// breaker has tripped and its cooldown has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker open for obstacle")

// Obstacle is one injection point under attack: a target URL, where the
// payload goes, and the base request shape.
type Obstacle struct {
	ID      string
	URL     string
	Point   fingerprint.InjectionPoint
	Param   string
	Options fingerprint.RequestOptions
}

// Verdict is the full outcome of one scored probe.
type Verdict struct {
	ProbeID    string                       `json:"probe_id"`
	ObstacleID string                       `json:"obstacle_id"`
	Family     string                       `json:"family,omitempty"`
	Payload    string                       `json:"payload"`
	Result     *fingerprint.ExecutionResult `json:"result"`
	Delta      delta.Delta                  `json:"delta"`
	Score      scorer.Vector                `json:"score"`

	Progress  bool                `json:"progress"`
	Confirmed bool                `json:"confirmed"`
	Abandon   bool                `json:"abandon"`
	State     scorer.ObstacleState `json:"-"`
	StateName string              `json:"state"`
}

// Engine drives baseline capture and scored probing for any number of
// obstacles concurrently. Per-obstacle ordering is the caller's
// concern; everything else is safe for concurrent use.
type Engine struct {
	capturer *fingerprint.Capturer
	registry *rules.Registry
	scorer   *scorer.Scorer
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger

	baselines sync.Map // map[string]*fingerprint.Baseline
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer for probe spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCapturer replaces the default capturer.
func WithCapturer(c *fingerprint.Capturer) Option {
	return func(e *Engine) { e.capturer = c }
}

// WithRateLimit caps probes per second across all obstacles.
func WithRateLimit(perSecond int) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// New builds an Engine around the given rule registry.
func New(registry *rules.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(defaults.ProbeRateLimit), defaults.ProbeRateLimit),
		tracer:   noop.NewTracerProvider().Tracer(defaults.ToolName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.capturer == nil {
		e.capturer = fingerprint.NewCapturer(httpclient.DefaultConfig(),
			fingerprint.WithLogger(e.logger))
	}
	e.scorer = scorer.New(registry, scorer.WithLogger(e.logger))
	return e
}

// Scorer exposes the underlying scorer for introspection calls
// (decay status, attempt counts, custom signal registration).
func (e *Engine) Scorer() *scorer.Scorer { return e.scorer }

// Registry exposes the injected rule registry.
func (e *Engine) Registry() *rules.Registry { return e.registry }

// CaptureBaseline samples the obstacle's unmodified request and retains
// the result for comparison. Recapturing replaces the old baseline.
func (e *Engine) CaptureBaseline(ctx context.Context, obs Obstacle) (*fingerprint.Baseline, error) {
	ctx, span := e.tracer.Start(ctx, "engine.capture_baseline",
		trace.WithAttributes(
			attribute.String("obstacle.id", obs.ID),
			attribute.String("obstacle.url", obs.URL),
		))
	defer span.End()

	baseline, err := e.capturer.CaptureBaseline(ctx, obs.URL, obs.Options, defaults.BaselineSamples)
	if err != nil {
		return baseline, fmt.Errorf("capture baseline for %s: %w", obs.ID, err)
	}
	e.baselines.Store(obs.ID, baseline)
	e.metrics.ObserveBaselineCapture()

	e.logger.Info("baseline captured",
		slog.String("obstacle", obs.ID),
		slog.Int("samples", len(baseline.Fingerprints)),
		slog.Float64("mean_ms", baseline.Stats.MeanResponseTimeMs),
		slog.Float64("stddev_ms", baseline.Stats.StdDevResponseTimeMs))
	return baseline, nil
}

// Baseline returns the retained baseline for an obstacle, if any.
func (e *Engine) Baseline(obstacleID string) (*fingerprint.Baseline, bool) {
	v, ok := e.baselines.Load(obstacleID)
	if !ok {
		return nil, false
	}
	return v.(*fingerprint.Baseline), true
}

// Probe fires one payload at the obstacle, diffs the response against
// the retained baseline, scores the delta, and returns the verdict.
//
// The circuit breaker enforces a hard request bound independent of rule
// configuration: once the obstacle's attempts reach the configured
// maximum, further probes are refused until the cooldown has elapsed
// since the last attempt.
func (e *Engine) Probe(ctx context.Context, obs Obstacle, payload, family string) (*Verdict, error) {
	v, ok := e.baselines.Load(obs.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBaseline, obs.ID)
	}
	baseline := v.(*fingerprint.Baseline)

	breaker := e.registry.CircuitBreakerConfig()
	if e.scorer.AttemptCount(obs.ID) >= breaker.MaxAttempts {
		if since := time.Since(e.scorer.LastAttempt(obs.ID)); since < breaker.Cooldown() {
			return nil, fmt.Errorf("%w: %s (retry in %s)",
				ErrCircuitOpen, obs.ID, breaker.Cooldown()-since)
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "engine.probe",
		trace.WithAttributes(
			attribute.String("obstacle.id", obs.ID),
			attribute.String("injection.point", obs.Point.String()),
			attribute.String("mutation.family", family),
		))
	defer span.End()

	result := e.capturer.ExecuteWithPayload(ctx, obs.URL, payload, obs.Point, obs.Param, obs.Options)
	fp := result.Fingerprint
	e.metrics.ObserveProbe(fp.ErrorClass.String(), fp.MeanResponseTimeMs()/1000)

	d := delta.CompareToBaseline(fp, baseline, payload)
	score := e.scorer.EvaluateDelta(d, obs.ID, family)
	state := e.scorer.StateOf(obs.ID, score.WeightedTotal)
	e.metrics.ObserveVerdict(state.String())

	verdict := &Verdict{
		ProbeID:    uuid.NewString(),
		ObstacleID: obs.ID,
		Family:     family,
		Payload:    payload,
		Result:     result,
		Delta:      d,
		Score:      score,
		Progress:   e.scorer.IsMakingProgress(score.WeightedTotal),
		Confirmed:  e.scorer.IsExploitConfirmed(score.WeightedTotal),
		Abandon:    e.scorer.ShouldAbandon(obs.ID),
		State:      state,
		StateName:  state.String(),
	}

	e.logger.Debug("probe scored",
		slog.String("obstacle", obs.ID),
		slog.String("probe_id", verdict.ProbeID),
		slog.Int("status", fp.StatusCode),
		slog.String("error_class", fp.ErrorClass.String()),
		slog.Float64("score", score.WeightedTotal),
		slog.String("state", state.String()))
	return verdict, nil
}

// ResetObstacle drops the obstacle's baseline and attempt state, e.g.
// when the orchestrator re-targets a parameter.
func (e *Engine) ResetObstacle(obstacleID string) {
	e.baselines.Delete(obstacleID)
	e.scorer.ResetAttemptCount(obstacleID)
}

// FamilyStatus reports decay tracking for every observed mutation
// family, for orchestrator telemetry.
func (e *Engine) FamilyStatus() []scorer.DecayStatus {
	return e.scorer.AllMutationFamilyStatus()
}
