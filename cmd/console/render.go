package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/mission-console/internal/session"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/scenario"
	"github.com/jwebster45206/mission-console/pkg/state"
)

const (
	AgentName       = "Control"
	PlaceHolderText = "What does the operative do?"
)

type entryKind int

const (
	entryUser entryKind = iota
	entryAgent
	entryThinking
	entrySystem
	entryHint
	entryError
	entryBanner
)

// entry is one block in the transcript.
type entry struct {
	kind entryKind
	text string
}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	victoryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("86")).
			Bold(true).
			Padding(0, 1)

	defeatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("160")).
			Bold(true).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

var titleCaser = cases.Title(language.English)

const helpText = `Commands:
• /help - Show this help
• /status - Show mission status
• /copy - Copy Control's last reply
• /reset - Restart the mission
• /resume [run id] - List saved runs, or resume one
• Ctrl+C - Quit

How to play:
• Describe what the operative does and press Enter
• Control narrates the result and updates morale, intel and objectives
• Complete every objective before the turns run out`

func renderEntry(e entry, width int) string {
	if width < 10 {
		width = 10
	}
	switch e.kind {
	case entryUser:
		return userStyle.Render("You: ") + wordwrap.String(e.text, width-5)
	case entryAgent:
		return agentStyle.Render(AgentName+": ") + wordwrap.String(e.text, width-len(AgentName)-2)
	case entryThinking:
		return thinkingStyle.Render(wordwrap.String(e.text, width))
	case entryHint:
		return hintStyle.Render("Hint: ") + wordwrap.String(e.text, width-6)
	case entryError:
		return errorStyle.Render("Error: " + wordwrap.String(e.text, width-7))
	case entryBanner:
		return e.text
	default:
		return promptStyle.Render(wordwrap.String(e.text, width))
	}
}

// outcomeBanner renders the end-of-mission line, e.g. "VICTORY" styled
// with the summary beneath.
func outcomeBanner(outcome state.Outcome, summary string, width int) string {
	label := "Mission " + titleCaser.String(string(outcome))
	style := defeatStyle
	if outcome == state.OutcomeVictory {
		style = victoryStyle
	}
	return style.Render(label) + "\n" + wordwrap.String(summary, width) +
		"\n" + promptStyle.Render("Type /reset to play again.")
}

// meter draws a fixed-width gauge for value within [0, limit].
func meter(value, limit, width int) string {
	if limit <= 0 {
		return ""
	}
	filled := value * width / limit
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatStats(stats state.GameStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Morale: %d/%d\n%s\n", stats.Morale, scenario.MoraleMax, meter(stats.Morale, scenario.MoraleMax, 10)))
	sb.WriteString(fmt.Sprintf("Intel:  %d/%d\n%s\n", stats.Intel, scenario.IntelMax, meter(stats.Intel, scenario.IntelMax, 10)))
	sb.WriteString(fmt.Sprintf("Turns:  %d left\n", stats.TurnsLeft))
	if stats.IsTerminal() {
		sb.WriteString("Outcome: " + titleCaser.String(string(stats.Outcome)) + "\n")
	}
	return sb.String()
}

func formatObjectives(objectives []state.Objective) string {
	var sb strings.Builder
	for _, o := range objectives {
		mark := "[ ]"
		if o.Completed {
			mark = "[x]"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", mark, o.Title))
	}
	return sb.String()
}

func formatUsage(totals chat.UsageTotals) string {
	return fmt.Sprintf("Prompt: %d\nCompletion: %d\nTotal: %d\n",
		totals.PromptTokens, totals.CompletionTokens, totals.Total())
}

// formatStatus is the /status report.
func formatStatus(stats state.GameStats, objectives []state.Objective, totals chat.UsageTotals) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Morale %d/%d · Intel %d/%d · %d turns left\n",
		stats.Morale, scenario.MoraleMax, stats.Intel, scenario.IntelMax, stats.TurnsLeft))
	for _, o := range objectives {
		status := "pending"
		if o.Completed {
			status = "completed"
		}
		sb.WriteString(fmt.Sprintf("• %s (%s)\n", o.Title, status))
	}
	sb.WriteString(fmt.Sprintf("Tokens used: %d", totals.Total()))
	return sb.String()
}

func statusLabel(status session.Status) string {
	switch status {
	case session.StatusConnecting:
		return "Connecting..."
	case session.StatusStreaming:
		return "Receiving..."
	case session.StatusError:
		return "Error"
	default:
		return "Ready"
	}
}
