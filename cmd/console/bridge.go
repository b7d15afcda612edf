package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/mission-console/internal/game"
	"github.com/jwebster45206/mission-console/internal/session"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/state"
)

// Messages delivered from the game goroutine into the bubbletea loop.
type (
	thinkingDeltaMsg struct{ text string }
	answerDeltaMsg   struct{ text string }
	usageMsg         struct{ totals chat.UsageTotals }
	sessionErrorMsg  struct{ message string }
	sessionStatusMsg struct{ status session.Status }
	statsMsg         struct{ stats state.GameStats }
	objectivesMsg    struct{ objectives []state.Objective }
	gameOverMsg      struct {
		outcome state.Outcome
		summary string
	}
	hintMsg struct{ hint string }

	turnDoneMsg struct {
		result *game.TurnResult
		err    error
	}
	resetDoneMsg struct {
		err error
	}
	resumeDoneMsg struct {
		err error
	}
	runsListedMsg struct {
		ids []string
		err error
	}
)

// sessionCallbacks forwards stream progress to the program. Callbacks fire
// on the goroutine running game.Send, never inside Update.
func sessionCallbacks(send func(tea.Msg)) session.Callbacks {
	return session.Callbacks{
		OnThinkingDelta: func(text string) { send(thinkingDeltaMsg{text}) },
		OnAnswerDelta:   func(text string) { send(answerDeltaMsg{text}) },
		OnError:         func(message string) { send(sessionErrorMsg{message}) },
		OnUsageUpdate:   func(totals chat.UsageTotals) { send(usageMsg{totals}) },
		OnStatusChanged: func(status session.Status) { send(sessionStatusMsg{status}) },
	}
}

func missionListener(send func(tea.Msg)) state.Listener {
	return state.Listener{
		OnStatsChanged:      func(stats state.GameStats) { send(statsMsg{stats}) },
		OnObjectivesChanged: func(objectives []state.Objective) { send(objectivesMsg{objectives}) },
		OnGameOver: func(outcome state.Outcome, summary string) {
			send(gameOverMsg{outcome: outcome, summary: summary})
		},
		OnHint: func(hint string) { send(hintMsg{hint}) },
	}
}
