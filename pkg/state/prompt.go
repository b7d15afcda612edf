package state

import (
	"fmt"
	"strings"
)

// BaseSystemPrompt frames the model as mission control. The single %s is
// the scenario story.
const BaseSystemPrompt = `You are Mission Control, the handler guiding an operative through a covert infiltration. You narrate what the operative sees and how the world reacts. You never discuss things outside of the mission and you never speak for the operative.

### Mission
%s

### Writing rules
- Keep the narrative to 1-3 short paragraphs.
- Reward careful planning with intel and morale; punish recklessness.
- Do not invent objectives. Only the objectives listed below exist.
`

// OutputFormatPrompt is the strict output contract the extractor depends on.
const OutputFormatPrompt = "### Output format (strict)\n" +
	"End EVERY reply with exactly one fenced JSON block:\n" +
	"```json\n" +
	`{
  "narrative": "what happens, in prose",
  "effects": {"morale": 0, "intel": 0, "turns": 0},
  "objective_progress": ["objective_id"],
  "flags": {"end_state": null, "summary": "", "hint": ""}
}` + "\n```\n" +
	`- "effects" values are integer changes (negative to reduce). Omit or use 0 when nothing changes.
- "objective_progress" lists ids of objectives completed THIS turn. Use only valid objective ids.
- "flags.end_state" is "victory" or "defeat" only when the mission ends this turn, otherwise null.
- "flags.summary" is a one-sentence epilogue when end_state is set.
- "flags.hint" is an optional short tip for the operative.
`

// SystemPrompt renders the full system prompt for the current state. It
// embeds live stats and objectives, so it must be re-sent before every
// model call.
func (m *Mission) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(BaseSystemPrompt, m.scenario.Story))

	sb.WriteString("\n### Current status\n")
	sb.WriteString(fmt.Sprintf("- Morale: %d/100 (the operation fails at 0)\n", m.stats.Morale))
	sb.WriteString(fmt.Sprintf("- Intel: %d/10\n", m.stats.Intel))
	sb.WriteString(fmt.Sprintf("- Turns left: %d\n", m.stats.TurnsLeft))
	if m.IsTerminal() {
		sb.WriteString(fmt.Sprintf("- The mission has ended in %s. Wrap up the story; do not continue play.\n", m.stats.Outcome))
	}

	sb.WriteString("\n### Objectives\n")
	ids := make([]string, 0, len(m.objectives))
	for _, o := range m.objectives {
		status := "pending"
		if o.Completed {
			status = "completed"
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s (%s): %s\n", o.ID, o.Title, status, o.Description))
		ids = append(ids, o.ID)
	}
	sb.WriteString("\nValid objective ids: " + strings.Join(ids, ", ") + "\n\n")

	sb.WriteString(OutputFormatPrompt)
	return sb.String()
}
