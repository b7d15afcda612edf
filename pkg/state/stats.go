package state

import "github.com/jwebster45206/mission-console/pkg/scenario"

// Outcome is the terminal classification of a run. Empty while active.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
)

// GameStats are the live mission numbers.
type GameStats struct {
	Morale    int     `json:"morale"`
	Intel     int     `json:"intel"`
	TurnsLeft int     `json:"turns_left"`
	Outcome   Outcome `json:"outcome,omitempty"`
}

// IsTerminal reports whether the run has ended.
func (s GameStats) IsTerminal() bool {
	return s.Outcome != OutcomeNone
}

// Objective is a live objective. Only Completed changes during a run, and
// only from false to true.
type Objective struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampStats(s GameStats) GameStats {
	s.Morale = clamp(s.Morale, scenario.MoraleMin, scenario.MoraleMax)
	s.Intel = clamp(s.Intel, scenario.IntelMin, scenario.IntelMax)
	s.TurnsLeft = clamp(s.TurnsLeft, scenario.TurnsMin, scenario.TurnsMax)
	return s
}
