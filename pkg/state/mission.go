package state

import (
	"strings"

	"github.com/jwebster45206/mission-console/pkg/payload"
	"github.com/jwebster45206/mission-console/pkg/scenario"
)

// Fixed summaries used when the model does not supply one.
const (
	SummaryTurnsExhausted = "Dawn breaks before the job is done. Security sweeps the tower and the operation is scrubbed."
	SummaryMoraleBroken   = "The operative's nerve gives out. The team pulls the plug and goes dark."
	SummaryVictory        = "Every objective is complete. The operative slips into the night with the prize."
	SummaryDefeat         = "The operation has failed."
)

// Listener receives mission events. Nil callbacks are skipped.
type Listener struct {
	OnStatsChanged      func(stats GameStats)
	OnObjectivesChanged func(objectives []Objective)
	OnGameOver          func(outcome Outcome, summary string)
	OnHint              func(hint string)
}

// Mission is the game state machine for one run. It is not safe for
// concurrent use; the orchestrator owns it.
type Mission struct {
	scenario   *scenario.Scenario
	stats      GameStats
	objectives []Objective
	summary    string
	listener   Listener
}

// NewMission creates an active mission from a scenario template. A nil
// scenario uses the built-in default.
func NewMission(s *scenario.Scenario, l Listener) *Mission {
	if s == nil {
		s = scenario.Default()
	}
	m := &Mission{scenario: s, listener: l}
	m.reset()
	return m
}

// SetListener replaces the event listener.
func (m *Mission) SetListener(l Listener) {
	m.listener = l
}

// Scenario returns the mission template.
func (m *Mission) Scenario() *scenario.Scenario {
	return m.scenario
}

// Stats returns the current stats.
func (m *Mission) Stats() GameStats {
	return m.stats
}

// Objectives returns a copy of the objective set in declaration order.
func (m *Mission) Objectives() []Objective {
	out := make([]Objective, len(m.objectives))
	copy(out, m.objectives)
	return out
}

// IsTerminal reports whether the run has ended.
func (m *Mission) IsTerminal() bool {
	return m.stats.IsTerminal()
}

// Summary returns the game-over summary, empty while active.
func (m *Mission) Summary() string {
	return m.summary
}

// Reset returns to the initial stats with a fresh objective set.
func (m *Mission) Reset() {
	m.reset()
	m.emitStats()
	m.emitObjectives()
}

func (m *Mission) reset() {
	m.stats = clampStats(GameStats{
		Morale:    m.scenario.Morale,
		Intel:     m.scenario.Intel,
		TurnsLeft: m.scenario.Turns,
	})
	m.summary = ""
	m.objectives = make([]Objective, len(m.scenario.Objectives))
	for i, o := range m.scenario.Objectives {
		m.objectives[i] = Objective{ID: o.ID, Title: o.Title, Description: o.Description}
	}
}

// Restore replaces the live state with a saved one. Objectives are matched
// by id against the scenario; unknown ids are ignored.
func (m *Mission) Restore(stats GameStats, objectives []Objective, summary string) {
	m.reset()
	m.stats = clampStats(stats)
	done := make(map[string]bool, len(objectives))
	for _, o := range objectives {
		if o.Completed {
			done[o.ID] = true
		}
	}
	for i := range m.objectives {
		m.objectives[i].Completed = done[m.objectives[i].ID]
	}
	if m.stats.IsTerminal() {
		m.summary = summary
	}
}

// AdvanceTurn spends one turn. Running out of turns with objectives still
// open ends the run in defeat.
func (m *Mission) AdvanceTurn() {
	if m.IsTerminal() {
		return
	}

	m.stats.TurnsLeft = clamp(m.stats.TurnsLeft-1, scenario.TurnsMin, scenario.TurnsMax)
	if m.stats.TurnsLeft == 0 && !m.allCompleted() {
		m.end(OutcomeDefeat, SummaryTurnsExhausted)
		return
	}
	m.emitStats()
}

// ApplyPayload applies the model's effects, objective progress and flags.
func (m *Mission) ApplyPayload(p *payload.AIPayload) {
	if m.IsTerminal() || p == nil {
		return
	}

	if e := p.Effects; e != nil {
		if e.Morale != nil {
			m.stats.Morale += *e.Morale
		}
		if e.Intel != nil {
			m.stats.Intel += *e.Intel
		}
		if e.Turns != nil {
			m.stats.TurnsLeft += *e.Turns
		}
		m.stats = clampStats(m.stats)
		if m.stats.Morale <= 0 {
			m.end(OutcomeDefeat, SummaryMoraleBroken)
			return
		}
	}

	objectivesChanged := m.markCompleted(p.ObjectiveProgress)

	if f := p.Flags; f != nil {
		if f.Hint != "" && m.listener.OnHint != nil {
			m.listener.OnHint(f.Hint)
		}
		if outcome := parseEndState(f.EndState); outcome != OutcomeNone {
			if objectivesChanged {
				m.emitObjectives()
			}
			summary := f.Summary
			if summary == "" {
				summary = defaultSummary(outcome)
			}
			m.end(outcome, summary)
			return
		}
	}

	if m.allCompleted() {
		if objectivesChanged {
			m.emitObjectives()
		}
		m.end(OutcomeVictory, SummaryVictory)
		return
	}

	m.emitStats()
	m.emitObjectives()
}

func (m *Mission) markCompleted(ids []string) bool {
	changed := false
	for _, id := range ids {
		for i := range m.objectives {
			if m.objectives[i].ID == id && !m.objectives[i].Completed {
				m.objectives[i].Completed = true
				changed = true
			}
		}
	}
	return changed
}

func (m *Mission) allCompleted() bool {
	for _, o := range m.objectives {
		if !o.Completed {
			return false
		}
	}
	return len(m.objectives) > 0
}

func (m *Mission) end(outcome Outcome, summary string) {
	m.stats.Outcome = outcome
	m.summary = summary
	m.emitStats()
	if m.listener.OnGameOver != nil {
		m.listener.OnGameOver(outcome, summary)
	}
}

func (m *Mission) emitStats() {
	if m.listener.OnStatsChanged != nil {
		m.listener.OnStatsChanged(m.stats)
	}
}

func (m *Mission) emitObjectives() {
	if m.listener.OnObjectivesChanged != nil {
		m.listener.OnObjectivesChanged(m.Objectives())
	}
}

func parseEndState(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(OutcomeVictory):
		return OutcomeVictory
	case string(OutcomeDefeat):
		return OutcomeDefeat
	default:
		return OutcomeNone
	}
}

func defaultSummary(o Outcome) string {
	if o == OutcomeVictory {
		return SummaryVictory
	}
	return SummaryDefeat
}
