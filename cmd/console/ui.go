package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/jwebster45206/mission-console/internal/game"
	"github.com/jwebster45206/mission-console/internal/session"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/payload"
	"github.com/jwebster45206/mission-console/pkg/state"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
//
// While busy, a goroutine owns the game; Update only touches it again once
// the matching *DoneMsg arrives.
type ConsoleUI struct {
	game      *game.Game
	hasAPIKey bool

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int

	missionName string
	runID       string
	turn        int
	entries     []entry
	pending     []entry // hints and banners held until the turn's reply is shown
	thinking    string  // live reasoning for the turn in flight
	answer      string  // live answer for the turn in flight
	lastReply   string
	errShown    bool

	busy       bool
	status     session.Status
	stats      state.GameStats
	objectives []state.Objective
	usage      chat.UsageTotals
	summary    string

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type progressTickMsg struct{}

func NewConsoleUI(g *game.Game, hasAPIKey bool) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	m := ConsoleUI{
		game:         g,
		hasAPIKey:    hasAPIKey,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
	m.syncFromGame()
	m.entries = m.openingEntries()
	return m
}

// syncFromGame copies game state into the model. Only call while idle.
func (m *ConsoleUI) syncFromGame() {
	m.missionName = m.game.Scenario().Name
	m.runID = m.game.RunID().String()
	m.turn = m.game.Turn()
	m.stats = m.game.Stats()
	m.objectives = m.game.Objectives()
	m.usage = m.game.Session().Totals()
	m.summary = m.game.Mission().Summary()
}

func (m *ConsoleUI) openingEntries() []entry {
	entries := []entry{{kind: entrySystem, text: "Type /help for commands."}}
	if !m.hasAPIKey {
		entries = append(entries, entry{kind: entryError, text: "LLM_API_KEY is not set. Messages will fail until it is."})
	}
	if opening := m.game.Scenario().OpeningPrompt; opening != "" {
		entries = append(entries, entry{kind: entryAgent, text: opening})
	}
	return entries
}

func (m *ConsoleUI) chatWidth() int {
	return m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
}

// writeChatContent re-renders the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	width := m.chatWidth()

	var content strings.Builder
	content.WriteString(titleStyle.Render("MISSION CONSOLE") + "  " + promptStyle.Render(m.missionName) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(width-6, 1))) + "\n\n")

	for _, e := range m.entries {
		content.WriteString(renderEntry(e, width) + "\n\n")
	}

	if m.busy {
		if m.thinking != "" {
			content.WriteString(renderEntry(entry{kind: entryThinking, text: m.thinking}, width) + "\n\n")
		}
		if m.answer != "" {
			content.WriteString(renderEntry(entry{kind: entryAgent, text: m.answer}, width) + "\n\n")
		} else {
			content.WriteString(m.renderProgressBar())
		}
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() {
	var content strings.Builder
	content.WriteString(titleStyle.Render("MISSION") + "\n\n")
	content.WriteString(m.missionName + "\n\n")

	content.WriteString("Run:\n")
	content.WriteString(shortID(m.runID) + "\n\n")

	content.WriteString(fmt.Sprintf("Turn: %d\n", m.turn))
	content.WriteString("Status: " + statusLabel(m.status) + "\n\n")

	content.WriteString(titleStyle.Render("STATS") + "\n")
	content.WriteString(formatStats(m.stats) + "\n")

	content.WriteString(titleStyle.Render("OBJECTIVES") + "\n")
	content.WriteString(formatObjectives(m.objectives) + "\n")

	content.WriteString(titleStyle.Render("TOKENS") + "\n")
	content.WriteString(formatUsage(m.usage) + "\n")

	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• Ctrl+C: Quit\n")

	m.metaViewport.SetContent(content.String())
}

func (m *ConsoleUI) refresh() {
	if !m.ready {
		return
	}
	m.writeChatContent()
	m.writeMetadata()
}

func (m *ConsoleUI) appendEntry(kind entryKind, text string) {
	m.entries = append(m.entries, entry{kind: kind, text: text})
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.72) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			if m.stats.IsTerminal() {
				m.appendEntry(entrySystem, "The mission is over. Type /reset to play again.")
				m.refresh()
				return m, nil
			}

			m.appendEntry(entryUser, input)
			m.busy = true
			m.errShown = false
			m.thinking, m.answer = "", ""
			m.progressTick = 0
			m.refresh()

			return m, tea.Batch(m.sendTurn(input), progressTick())
		}

	case thinkingDeltaMsg:
		m.thinking += msg.text
		m.writeChatContent()
		return m, nil

	case answerDeltaMsg:
		m.answer += msg.text
		m.writeChatContent()
		return m, nil

	case sessionStatusMsg:
		m.status = msg.status
		m.writeMetadata()
		return m, nil

	case sessionErrorMsg:
		m.errShown = true
		m.appendEntry(entryError, msg.message)
		m.refresh()
		return m, nil

	case usageMsg:
		m.usage = msg.totals
		m.writeMetadata()
		return m, nil

	case statsMsg:
		m.stats = msg.stats
		m.writeMetadata()
		return m, nil

	case objectivesMsg:
		m.objectives = msg.objectives
		m.writeMetadata()
		return m, nil

	case hintMsg:
		m.queue(entry{kind: entryHint, text: msg.hint})
		return m, nil

	case gameOverMsg:
		m.summary = msg.summary
		m.queue(entry{kind: entryBanner, text: outcomeBanner(msg.outcome, msg.summary, m.chatWidth())})
		return m, nil

	case turnDoneMsg:
		m.finishTurn(msg)
		m.refresh()
		return m, nil

	case resetDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.appendEntry(entryError, msg.err.Error())
		} else {
			m.syncFromGame()
			m.pending = nil
			m.lastReply = ""
			m.entries = m.openingEntries()
		}
		m.refresh()
		return m, nil

	case resumeDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.appendEntry(entryError, msg.err.Error())
		} else {
			m.syncFromGame()
			m.pending = nil
			m.rebuildTranscript()
		}
		m.refresh()
		return m, nil

	case runsListedMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.appendEntry(entryError, msg.err.Error())
		case len(msg.ids) == 0:
			m.appendEntry(entrySystem, "No saved runs.")
		default:
			m.appendEntry(entrySystem, "Saved runs (newest first):\n"+strings.Join(msg.ids, "\n")+"\nUse /resume <run id>.")
		}
		m.refresh()
		return m, nil

	case progressTickMsg:
		if m.busy && m.answer == "" {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
		return m, nil
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// queue holds an entry until the reply it belongs to is on screen.
func (m *ConsoleUI) queue(e entry) {
	if m.busy {
		m.pending = append(m.pending, e)
		return
	}
	m.entries = append(m.entries, e)
	m.refresh()
}

func (m *ConsoleUI) finishTurn(msg turnDoneMsg) {
	m.busy = false
	thinking := m.thinking
	m.thinking, m.answer = "", ""

	if msg.err != nil {
		if r := msg.result; r != nil && r.Interrupted {
			m.turn = r.Turn
			if thinking != "" {
				m.appendEntry(entryThinking, thinking)
			}
			m.lastReply = r.Answer
			m.appendEntry(entryAgent, r.Answer)
		}
		if !m.errShown {
			m.appendEntry(entryError, msg.err.Error())
		}
		m.entries = append(m.entries, m.pending...)
		m.pending = nil
		return
	}

	result := msg.result
	m.turn = result.Turn
	if thinking != "" {
		m.appendEntry(entryThinking, thinking)
	}

	reply := result.Narrative
	if reply == "" {
		reply = result.Answer
	}
	m.lastReply = reply
	m.appendEntry(entryAgent, reply)
	if result.Payload == nil {
		m.appendEntry(entrySystem, "(No mission update this turn.)")
	}

	m.entries = append(m.entries, m.pending...)
	m.pending = nil
}

// rebuildTranscript renders a resumed run's history.
func (m *ConsoleUI) rebuildTranscript() {
	m.entries = []entry{{kind: entrySystem, text: "Resumed run " + shortID(m.runID) + "."}}
	for _, msg := range m.game.Session().History() {
		switch msg.Role {
		case chat.ChatRoleUser:
			m.appendEntry(entryUser, msg.Content)
		case chat.ChatRoleAgent:
			p, _ := payload.Extract(msg.Content)
			reply := payload.Narrative(msg.Content, p)
			if reply == "" {
				reply = msg.Content
			}
			m.lastReply = reply
			m.appendEntry(entryAgent, reply)
		}
	}
	if m.stats.IsTerminal() {
		m.appendEntry(entryBanner, outcomeBanner(m.stats.Outcome, m.summary, m.chatWidth()))
	}
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/help":
		m.appendEntry(entrySystem, helpText)

	case "/status":
		m.appendEntry(entrySystem, formatStatus(m.stats, m.objectives, m.usage))

	case "/copy":
		if m.lastReply == "" {
			m.appendEntry(entrySystem, "Nothing to copy yet.")
			break
		}
		if err := clipboard.WriteAll(m.lastReply); err != nil {
			m.appendEntry(entryError, "Copy failed: "+err.Error())
			break
		}
		m.appendEntry(entrySystem, "Copied Control's last reply to the clipboard.")

	case "/reset":
		m.busy = true
		m.refresh()
		return m, m.resetRun()

	case "/resume":
		if len(args) == 0 {
			m.busy = true
			return m, m.listRuns()
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			m.appendEntry(entryError, fmt.Sprintf("Invalid run id %q.", args[0]))
			break
		}
		m.busy = true
		m.refresh()
		return m, m.resumeRun(id)

	default:
		m.appendEntry(entryError, fmt.Sprintf("Unknown command %s. Type /help.", cmd))
	}

	m.refresh()
	return m, nil
}

func (m ConsoleUI) sendTurn(input string) tea.Cmd {
	g := m.game
	return func() tea.Msg {
		result, err := g.Send(context.Background(), input)
		if errors.Is(err, game.ErrGameOver) {
			err = errors.New("the mission is over; type /reset to play again")
		}
		return turnDoneMsg{result: result, err: err}
	}
}

func (m ConsoleUI) resetRun() tea.Cmd {
	g := m.game
	return func() tea.Msg {
		return resetDoneMsg{err: g.Reset()}
	}
}

func (m ConsoleUI) resumeRun(id uuid.UUID) tea.Cmd {
	g := m.game
	return func() tea.Msg {
		return resumeDoneMsg{err: g.Resume(context.Background(), id)}
	}
}

func (m ConsoleUI) listRuns() tea.Cmd {
	g := m.game
	return func() tea.Msg {
		ids, err := g.RecentRuns(context.Background(), 5)
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = id.String()
		}
		return runsListedMsg{ids: out, err: err}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Abort Mission?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to quit?")
	if m.busy {
		content.WriteString("\nA reply is still streaming and will be lost.")
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.72) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar while waiting for the
// first answer text.
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatWidth()
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
