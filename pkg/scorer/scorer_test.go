package scorer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploitprobe/exploitprobe/pkg/delta"
	"github.com/exploitprobe/exploitprobe/pkg/rules"
)

func registryFromYAML(t *testing.T, content string) *rules.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return rules.NewRegistry(path)
}

func TestEvaluateDeltaScenario(t *testing.T) {
	// Baseline 200/500B/no class vs candidate 500/520B/SQL_ERROR:
	// with default weights only status_changed and error_class_changed
	// fire, for a total of 3.5 — progress, but not confirmation.
	s := New(rules.NewDefaultRegistry())
	d := delta.Delta{
		StatusChanged:     true,
		ErrorClassChanged: true,
		BodyLengthDelta:   0.04,
	}

	vec := s.EvaluateDelta(d, "obstacle-1", "")

	assert.Equal(t, 2.0, vec.StatusChanged)
	assert.Equal(t, 1.5, vec.ErrorClassChanged)
	assert.Zero(t, vec.BodyLengthDelta, "0.04 is under the 0.2 threshold")
	assert.Zero(t, vec.BodyContainsTarget)
	assert.InDelta(t, 3.5, vec.WeightedTotal, 1e-9)

	assert.True(t, s.IsMakingProgress(vec.WeightedTotal))
	assert.False(t, s.IsExploitConfirmed(vec.WeightedTotal))
}

func TestEvaluateDeltaDeterminism(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	d := delta.Delta{
		StatusChanged:      true,
		BodyContainsTarget: true,
		TimingDeltaStd:     3.2,
		BodyLengthDelta:    0.5,
		HeadersAdded:       []string{"x-waf"},
	}

	first := s.EvaluateDelta(d, "obstacle-1", "")
	for i := 0; i < 50; i++ {
		got := s.EvaluateDelta(d, "obstacle-1", "")
		assert.Equal(t, first, got, "fixed rules and a fixed delta must always score the same")
	}
}

func TestEvaluateDeltaThresholdRules(t *testing.T) {
	s := New(rules.NewDefaultRegistry())

	vec := s.EvaluateDelta(delta.Delta{TimingDeltaStd: 2.0}, "o", "")
	assert.Equal(t, 2.5, vec.TimingDelta, "exactly meeting the threshold fires the rule")

	vec = s.EvaluateDelta(delta.Delta{TimingDeltaStd: 1.99}, "o", "")
	assert.Zero(t, vec.TimingDelta)

	vec = s.EvaluateDelta(delta.Delta{BodyLengthDelta: 0.3}, "o", "")
	assert.Equal(t, 1.0, vec.BodyLengthDelta)
}

func TestEvaluateDeltaReflectionScoresBothSignals(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	vec := s.EvaluateDelta(delta.Delta{BodyContainsTarget: true}, "o", "")

	// body_contains_target and payload_reflected read the same delta
	// field and are deliberately weighted alike.
	assert.Equal(t, 3.0, vec.BodyContainsTarget)
	assert.Equal(t, 3.0, vec.PayloadReflected)
	assert.InDelta(t, 6.0, vec.WeightedTotal, 1e-9)
	assert.True(t, s.IsExploitConfirmed(vec.WeightedTotal))
}

func TestEvaluateDeltaUnknownSignalIsNotFatal(t *testing.T) {
	r := rules.NewDefaultRegistry()
	require.NoError(t, r.AddRule(rules.Rule{Signal: "made_up", Weight: 99, Type: rules.TypeBinary}))

	s := New(r)
	vec := s.EvaluateDelta(delta.Delta{StatusChanged: true}, "o", "")

	assert.InDelta(t, 2.0, vec.WeightedTotal, 1e-9, "unknown signal contributes 0, the rest still score")
	assert.Nil(t, vec.Custom)
}

func TestCustomSignalExtension(t *testing.T) {
	r := rules.NewDefaultRegistry()
	require.NoError(t, r.AddRule(rules.Rule{Signal: "header_count_spike", Weight: 2.0, Type: rules.TypeBinary}))

	s := New(r)
	s.RegisterCustomSignal("header_count_spike", func(d delta.Delta) float64 {
		return float64(len(d.HeadersAdded))
	})

	vec := s.EvaluateDelta(delta.Delta{HeadersAdded: []string{"x-a", "x-b"}}, "o", "")
	require.NotNil(t, vec.Custom)
	assert.Equal(t, 2.0, vec.Custom["header_count_spike"])
	// headers_changed (0.5) fires too.
	assert.InDelta(t, 2.5, vec.WeightedTotal, 1e-9)

	s.UnregisterCustomSignal("header_count_spike")
	vec = s.EvaluateDelta(delta.Delta{HeadersAdded: []string{"x-a"}}, "o", "")
	assert.Nil(t, vec.Custom)
}

func TestAbandonIsAttemptDrivenNotScoreDriven(t *testing.T) {
	r := registryFromYAML(t, `
rules:
  - signal: status_changed
    weight: 2.0
    type: binary
thresholds:
  abandon: 3
`)
	s := New(r)

	// Three evaluations, scores irrelevant (all zero here).
	for i := 0; i < 3; i++ {
		assert.False(t, s.ShouldAbandon("obstacle-a"), "not abandoned before the threshold")
		s.EvaluateDelta(delta.Delta{}, "obstacle-a", "")
	}
	assert.True(t, s.ShouldAbandon("obstacle-a"))

	// A different obstacle is unaffected.
	s.EvaluateDelta(delta.Delta{}, "obstacle-b", "")
	assert.False(t, s.ShouldAbandon("obstacle-b"))

	s.ResetAttemptCount("obstacle-a")
	assert.False(t, s.ShouldAbandon("obstacle-a"))
	assert.Zero(t, s.AttemptCount("obstacle-a"))
}

func TestAttemptsCountFailuresToo(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	s.EvaluateDelta(delta.Delta{}, "o", "")
	s.EvaluateDelta(delta.Delta{StatusChanged: true}, "o", "")
	assert.Equal(t, 2, s.AttemptCount("o"), "every evaluation counts, success or failure")
	assert.False(t, s.LastAttempt("o").IsZero())
}

func TestDecayWindowSequence(t *testing.T) {
	s := New(rules.NewDefaultRegistry())

	// [10, 8, 6, 4]: strictly decreasing, 40%+ drops per window.
	for _, score := range []float64{10, 8, 6, 4} {
		s.recordFamilyScore("sqli-time", score)
	}
	status, ok := s.ConfidenceDecayStatus("sqli-time")
	require.True(t, ok)
	assert.True(t, status.DecayDetected)
	assert.Equal(t, 4.0, status.LastScore)

	// [5, 5, 5, 5]: flat, never decays.
	for _, score := range []float64{5, 5, 5, 5} {
		s.recordFamilyScore("xss-basic", score)
	}
	status, ok = s.ConfidenceDecayStatus("xss-basic")
	require.True(t, ok)
	assert.False(t, status.DecayDetected)
}

func TestDecayFlagClears(t *testing.T) {
	s := New(rules.NewDefaultRegistry())

	for _, score := range []float64{10, 6, 4} {
		s.recordFamilyScore("fam", score)
	}
	status, _ := s.ConfidenceDecayStatus("fam")
	require.True(t, status.DecayDetected)

	// Recovery: a later window that rises again clears the flag.
	for _, score := range []float64{8, 9, 10} {
		s.recordFamilyScore("fam", score)
	}
	status, _ = s.ConfidenceDecayStatus("fam")
	assert.False(t, status.DecayDetected)
}

func TestDecayShortWindowNeverFlags(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	s.recordFamilyScore("fam", 10)
	s.recordFamilyScore("fam", 1)

	status, ok := s.ConfidenceDecayStatus("fam")
	require.True(t, ok)
	assert.False(t, status.DecayDetected, "window below size never flags")
}

func TestDecayWindowBounded(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	for i := 0; i < 20; i++ {
		s.recordFamilyScore("fam", float64(i))
	}
	status, _ := s.ConfidenceDecayStatus("fam")
	assert.LessOrEqual(t, len(status.RecentScores), 6, "window is bounded to twice its size")
}

func TestResetConfidenceDecayTracking(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	for _, score := range []float64{10, 6, 4} {
		s.recordFamilyScore("fam", score)
	}
	s.ResetConfidenceDecayTracking("fam")
	_, ok := s.ConfidenceDecayStatus("fam")
	assert.False(t, ok)
}

func TestEvaluateDeltaTracksFamilyViaPublicPath(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	d := delta.Delta{StatusChanged: true}

	s.EvaluateDelta(d, "o", "familia")
	status, ok := s.ConfidenceDecayStatus("familia")
	require.True(t, ok)
	assert.Equal(t, 2.0, status.LastScore)

	s.EvaluateDelta(d, "o", "")
	all := s.AllMutationFamilyStatus()
	require.Len(t, all, 1, "empty family name is not tracked")
	assert.Equal(t, "familia", all[0].Family)
}

func TestAllMutationFamilyStatusSorted(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	for _, fam := range []string{"zeta", "alpha", "mid"} {
		s.EvaluateDelta(delta.Delta{}, "o", fam)
	}
	all := s.AllMutationFamilyStatus()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"},
		[]string{all[0].Family, all[1].Family, all[2].Family})
}

func TestConcurrentEvaluation(t *testing.T) {
	s := New(rules.NewDefaultRegistry())
	d := delta.Delta{StatusChanged: true}

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			obstacle := fmt.Sprintf("obstacle-%d", id)
			family := fmt.Sprintf("family-%d", id%4)
			for i := 0; i < perWorker; i++ {
				s.EvaluateDelta(d, obstacle, family)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		assert.Equal(t, perWorker, s.AttemptCount(fmt.Sprintf("obstacle-%d", w)),
			"per-obstacle counts must not cross-contaminate")
	}
	assert.Len(t, s.AllMutationFamilyStatus(), 4)
}
