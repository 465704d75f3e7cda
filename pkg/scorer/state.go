package scorer

import (
	"sort"
	"sync"
	"time"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
)

// DecayStatus is a point-in-time view of one mutation family's
// confidence tracking.
type DecayStatus struct {
	Family        string    `json:"family"`
	RecentScores  []float64 `json:"recent_scores"`
	LastScore     float64   `json:"last_score"`
	DecayDetected bool      `json:"decay_detected"`
}

// familyTracker owns one family's bounded score window. Created lazily
// on first observation, lives for the scorer's lifetime, independently
// locked so families never contend with each other.
type familyTracker struct {
	mu            sync.Mutex
	scores        []float64
	lastScore     float64
	decayDetected bool
}

// attemptCounter tracks one obstacle's monotonically increasing attempt
// count and the wall time of the most recent attempt.
type attemptCounter struct {
	mu          sync.Mutex
	count       int
	lastAttempt time.Time
}

func (s *Scorer) familyFor(family string) *familyTracker {
	if v, ok := s.families.Load(family); ok {
		return v.(*familyTracker)
	}
	v, _ := s.families.LoadOrStore(family, &familyTracker{})
	return v.(*familyTracker)
}

func (s *Scorer) counterFor(obstacleID string) *attemptCounter {
	if v, ok := s.attempts.Load(obstacleID); ok {
		return v.(*attemptCounter)
	}
	v, _ := s.attempts.LoadOrStore(obstacleID, &attemptCounter{})
	return v.(*attemptCounter)
}

// recordFamilyScore appends a weighted total to the family's sliding
// window and recomputes the decay flag.
//
// The window is allowed to grow to twice the configured size before
// being trimmed back, so trimming cost amortizes. Decay is judged over
// the most recent windowSize scores only, and requires both a dominant
// downward trend (>= 70% of consecutive pairs strictly decreasing) and
// a relative first-to-last drop of at least the configured threshold.
// The flag clears again when a later window fails either condition.
func (s *Scorer) recordFamilyScore(family string, score float64) {
	cfg := s.registry.ConfidenceDecayConfig()
	window := cfg.WindowSize
	if window < 2 {
		window = defaults.DecayWindowSize
	}

	t := s.familyFor(family)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.scores = append(t.scores, score)
	t.lastScore = score
	if len(t.scores) > 2*window {
		t.scores = t.scores[len(t.scores)-window:]
	}

	if len(t.scores) < window {
		return
	}
	recent := t.scores[len(t.scores)-window:]

	decreasing := 0
	for i := 1; i < len(recent); i++ {
		if recent[i] < recent[i-1] {
			decreasing++
		}
	}
	pairRatio := float64(decreasing) / float64(len(recent)-1)

	relativeDrop := 0.0
	if first := recent[0]; first > 0 {
		relativeDrop = (first - recent[len(recent)-1]) / first
	}

	t.decayDetected = pairRatio >= defaults.DecayPairRatio &&
		relativeDrop >= cfg.DecayThreshold
}

// countAttempt bumps the obstacle's attempt counter.
func (s *Scorer) countAttempt(obstacleID string) {
	c := s.counterFor(obstacleID)
	c.mu.Lock()
	c.count++
	c.lastAttempt = time.Now()
	c.mu.Unlock()
}

// AttemptCount returns the obstacle's current attempt count.
func (s *Scorer) AttemptCount(obstacleID string) int {
	v, ok := s.attempts.Load(obstacleID)
	if !ok {
		return 0
	}
	c := v.(*attemptCounter)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// LastAttempt returns when the obstacle was last evaluated, zero time
// if never.
func (s *Scorer) LastAttempt(obstacleID string) time.Time {
	v, ok := s.attempts.Load(obstacleID)
	if !ok {
		return time.Time{}
	}
	c := v.(*attemptCounter)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAttempt
}

// ResetAttemptCount clears the obstacle's attempt state.
func (s *Scorer) ResetAttemptCount(obstacleID string) {
	s.attempts.Delete(obstacleID)
}

// ConfidenceDecayStatus returns the family's tracking snapshot.
// ok is false when the family has never been observed.
func (s *Scorer) ConfidenceDecayStatus(family string) (DecayStatus, bool) {
	v, ok := s.families.Load(family)
	if !ok {
		return DecayStatus{Family: family}, false
	}
	t := v.(*familyTracker)
	t.mu.Lock()
	defer t.mu.Unlock()
	return DecayStatus{
		Family:        family,
		RecentScores:  append([]float64(nil), t.scores...),
		LastScore:     t.lastScore,
		DecayDetected: t.decayDetected,
	}, true
}

// ResetConfidenceDecayTracking clears the family's window and flag.
func (s *Scorer) ResetConfidenceDecayTracking(family string) {
	s.families.Delete(family)
}

// AllMutationFamilyStatus snapshots every tracked family, sorted by
// family name for stable reporting.
func (s *Scorer) AllMutationFamilyStatus() []DecayStatus {
	var out []DecayStatus
	s.families.Range(func(key, _ any) bool {
		if status, ok := s.ConfidenceDecayStatus(key.(string)); ok {
			out = append(out, status)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out
}
