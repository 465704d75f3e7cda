package scorer

// ObstacleState is the per-obstacle view of the decision state machine.
type ObstacleState int

const (
	// StateProbing means no evaluation has landed yet.
	StateProbing ObstacleState = iota
	// StateProgressing means the latest score cleared the progress
	// threshold.
	StateProgressing
	// StateStagnant means probes are landing without clearing the
	// progress threshold.
	StateStagnant
	// StateConfirmed means the latest score cleared the confirmation
	// threshold. Not terminal at the engine level.
	StateConfirmed
	// StateAbandoned means the attempt count reached the abandon
	// threshold. Terminal, and driven solely by attempts so the request
	// bound holds regardless of rule configuration.
	StateAbandoned
)

// String returns a human-readable state name.
func (s ObstacleState) String() string {
	names := [...]string{"probing", "progressing", "stagnant", "confirmed", "abandoned"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// StateOf classifies an obstacle given its latest weighted score.
// Abandonment wins over everything else.
func (s *Scorer) StateOf(obstacleID string, lastScore float64) ObstacleState {
	attempts := s.AttemptCount(obstacleID)
	switch {
	case attempts >= s.registry.AbandonThreshold():
		return StateAbandoned
	case attempts == 0:
		return StateProbing
	case s.IsExploitConfirmed(lastScore):
		return StateConfirmed
	case s.IsMakingProgress(lastScore):
		return StateProgressing
	default:
		return StateStagnant
	}
}
