package scenario

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stat ranges. Values outside a range are clamped on every change.
const (
	MoraleMin = 0
	MoraleMax = 100
	IntelMin  = 0
	IntelMax  = 10
	TurnsMin  = 0
	TurnsMax  = 20
)

// Objective is a sub-goal template. Its ID is what the model reports in
// objective_progress.
type Objective struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Scenario is the template for one mission run.
type Scenario struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	FileName      string      `json:"file_name,omitempty" yaml:"-"`
	Story         string      `json:"story" yaml:"story"`                   // briefing shown to the model
	OpeningPrompt string      `json:"opening_prompt" yaml:"opening_prompt"` // shown to the player at start
	Morale        int         `json:"morale" yaml:"morale"`
	Intel         int         `json:"intel" yaml:"intel"`
	Turns         int         `json:"turns" yaml:"turns"`
	Objectives    []Objective `json:"objectives" yaml:"objectives"`
}

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Default returns the built-in infiltration mission.
func Default() *Scenario {
	return &Scenario{
		ID:   "nightglass",
		Name: "Operation Nightglass",
		Story: "The operative must infiltrate the Halvorsen Tower, copy the Nightglass ledger " +
			"from the 40th floor archive, and get out before the corporate security sweep at dawn.",
		OpeningPrompt: "Rain on the glass. Your handler is waiting on the secure line. What is your first move?",
		Morale:        60,
		Intel:         2,
		Turns:         12,
		Objectives: []Objective{
			{
				ID:          "briefing",
				Title:       "Complete the briefing",
				Description: "Meet the handler and learn the tower layout, guard rotation, and the ledger's location.",
			},
			{
				ID:          "access_plan",
				Title:       "Secure an access plan",
				Description: "Obtain credentials, a disguise, or a route that gets the operative onto the 40th floor.",
			},
			{
				ID:          "extraction",
				Title:       "Extract with the ledger",
				Description: "Copy the ledger and leave the tower without being captured.",
			},
		},
	}
}

// Validate checks ids and stat ranges. It returns every problem found,
// joined and wrapped in ErrInvalidScenario.
func (s *Scenario) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", ErrInvalidScenario)
	}

	var problems []string
	if s.Name == "" {
		problems = append(problems, "name is required")
	}
	if s.ID != "" && !idPattern.MatchString(s.ID) {
		problems = append(problems, fmt.Sprintf("id %q must be lowercase snake_case", s.ID))
	}
	if s.Morale <= MoraleMin || s.Morale > MoraleMax {
		problems = append(problems, fmt.Sprintf("morale %d must be in (%d, %d]", s.Morale, MoraleMin, MoraleMax))
	}
	if s.Intel < IntelMin || s.Intel > IntelMax {
		problems = append(problems, fmt.Sprintf("intel %d must be in [%d, %d]", s.Intel, IntelMin, IntelMax))
	}
	if s.Turns <= TurnsMin || s.Turns > TurnsMax {
		problems = append(problems, fmt.Sprintf("turns %d must be in (%d, %d]", s.Turns, TurnsMin, TurnsMax))
	}
	if len(s.Objectives) == 0 {
		problems = append(problems, "at least one objective is required")
	}

	seen := make(map[string]bool, len(s.Objectives))
	for i, o := range s.Objectives {
		switch {
		case o.ID == "":
			problems = append(problems, fmt.Sprintf("objectives[%d]: id is required", i))
		case !idPattern.MatchString(o.ID):
			problems = append(problems, fmt.Sprintf("objectives[%d]: id %q must be lowercase snake_case", i, o.ID))
		case seen[o.ID]:
			problems = append(problems, fmt.Sprintf("objectives[%d]: duplicate id %q", i, o.ID))
		}
		seen[o.ID] = true
		if strings.TrimSpace(o.Title) == "" {
			problems = append(problems, fmt.Sprintf("objectives[%d]: title is required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, strings.Join(problems, "; "))
	}
	return nil
}

// ObjectiveIDs returns the objective ids in declaration order.
func (s *Scenario) ObjectiveIDs() []string {
	ids := make([]string, len(s.Objectives))
	for i, o := range s.Objectives {
		ids[i] = o.ID
	}
	return ids
}
