package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/mission-console/internal/config"
	"github.com/jwebster45206/mission-console/internal/logger"
	"github.com/jwebster45206/mission-console/internal/services"
	"github.com/jwebster45206/mission-console/internal/services/events"
	"github.com/jwebster45206/mission-console/internal/session"
	"github.com/jwebster45206/mission-console/internal/storage"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/payload"
	"github.com/jwebster45206/mission-console/pkg/scenario"
	"github.com/jwebster45206/mission-console/pkg/state"
)

// publishTimeout bounds each event publish.
const publishTimeout = 2 * time.Second

var (
	ErrGameOver    = errors.New("the mission is over; reset to play again")
	ErrRunNotFound = errors.New("run not found")
	ErrNoRunStore  = errors.New("run persistence is not configured")
)

// Options wires a Game. Runs, Missions and Events are optional.
type Options struct {
	LLM      services.LLMService
	Settings config.Settings
	Scenario *scenario.Scenario // nil for the built-in mission
	Runs     storage.RunStore
	Missions storage.MissionStore
	Events   *events.Broadcaster
	Session  session.Callbacks
	Mission  state.Listener
	Logger   *slog.Logger
}

// TurnResult describes one finalized exchange.
type TurnResult struct {
	Turn      int
	Answer    string
	Narrative string
	Payload   *payload.AIPayload // nil when the answer carried no payload
	Stats     state.GameStats
	Summary   string

	// Interrupted is set when the stream failed after part of the answer
	// arrived. The partial answer is kept in history but not applied.
	Interrupted bool
}

// Game runs one mission at a time: it owns the chat session and the
// mission state machine and keeps the system prompt in step with the
// state. It is not safe for concurrent use.
type Game struct {
	session  *session.Session
	mission  *state.Mission
	runs     storage.RunStore
	missions storage.MissionStore
	events   *events.Broadcaster
	logger   *slog.Logger

	listener  state.Listener
	runID     uuid.UUID
	turn      int
	createdAt time.Time
}

// New creates a game on a fresh run.
func New(opts Options) *Game {
	g := &Game{
		runs:      opts.Runs,
		missions:  opts.Missions,
		events:    opts.Events,
		logger:    opts.Logger,
		listener:  opts.Mission,
		runID:     uuid.New(),
		createdAt: time.Now(),
	}

	callbacks := opts.Session
	uiAnswer := callbacks.OnAnswerDelta
	callbacks.OnAnswerDelta = func(text string) {
		if uiAnswer != nil {
			uiAnswer(text)
		}
		g.publish(func(ctx context.Context) error {
			return g.events.PublishChatChunk(ctx, g.runID, g.turn+1, text)
		})
	}

	g.session = session.New(opts.LLM, opts.Settings, callbacks, opts.Logger)
	g.mission = state.NewMission(opts.Scenario, g.missionListener())
	g.session.SetSystemPrompt(g.mission.SystemPrompt())

	g.runLog().Info("Mission started",
		"mission", g.mission.Scenario().ID,
		"turns", g.mission.Stats().TurnsLeft)
	return g
}

// missionListener forwards mission events to the UI and the broadcaster.
func (g *Game) missionListener() state.Listener {
	ui := g.listener
	return state.Listener{
		OnStatsChanged: func(stats state.GameStats) {
			if ui.OnStatsChanged != nil {
				ui.OnStatsChanged(stats)
			}
			g.publish(func(ctx context.Context) error {
				return g.events.PublishStatsChanged(ctx, g.runID, stats.Morale, stats.Intel, stats.TurnsLeft)
			})
		},
		OnObjectivesChanged: func(objectives []state.Objective) {
			if ui.OnObjectivesChanged != nil {
				ui.OnObjectivesChanged(objectives)
			}
			var completed []string
			for _, o := range objectives {
				if o.Completed {
					completed = append(completed, o.ID)
				}
			}
			g.publish(func(ctx context.Context) error {
				return g.events.PublishObjectivesChanged(ctx, g.runID, completed, len(objectives))
			})
		},
		OnGameOver: func(outcome state.Outcome, summary string) {
			g.runLog().Info("Mission over", "outcome", outcome, "turn", g.turn)
			if ui.OnGameOver != nil {
				ui.OnGameOver(outcome, summary)
			}
			g.publish(func(ctx context.Context) error {
				return g.events.PublishGameOver(ctx, g.runID, string(outcome), summary)
			})
		},
		OnHint: func(hint string) {
			if ui.OnHint != nil {
				ui.OnHint(hint)
			}
			g.publish(func(ctx context.Context) error {
				return g.events.PublishHint(ctx, g.runID, hint)
			})
		},
	}
}

// Send plays one turn. The model's answer is streamed through the session
// callbacks; when it completes, its payload (if any) is applied, a turn is
// spent and the system prompt is re-rendered. An answer without a payload
// leaves the mission untouched. When the stream fails part way, the partial
// answer is returned as an Interrupted result together with the error.
func (g *Game) Send(ctx context.Context, text string) (*TurnResult, error) {
	if g.mission.IsTerminal() {
		return nil, ErrGameOver
	}
	if strings.TrimSpace(text) == "" {
		return nil, session.ErrEmptyMessage
	}
	if g.session.Status() != session.StatusIdle {
		return nil, session.ErrBusy
	}

	turn := g.turn + 1
	g.publish(func(ctx context.Context) error {
		return g.events.PublishTurnStarted(ctx, g.runID, turn, text)
	})

	answer, err := g.session.Send(ctx, text)
	if err != nil {
		if errors.Is(err, session.ErrEmptyMessage) || errors.Is(err, session.ErrBusy) {
			return nil, err
		}
		g.publish(func(ctx context.Context) error {
			return g.events.PublishTurnFailed(ctx, g.runID, turn, err.Error())
		})
		if answer == "" {
			return nil, err
		}
		return g.interrupted(ctx, turn, answer), err
	}

	g.turn = turn
	result := &TurnResult{Turn: turn, Answer: answer}

	p, err := payload.Extract(answer)
	switch {
	case errors.Is(err, payload.ErrNoPayload):
		g.runLog().Warn("Answer carried no payload; mission state unchanged",
			"turn", turn,
			"answer_length", len(answer))
	case err != nil:
		logger.WithError(g.runLog(), err).Error("Failed to extract payload")
	default:
		result.Payload = p
		g.mission.ApplyPayload(p)
		g.mission.AdvanceTurn()
	}

	result.Narrative = payload.Narrative(answer, result.Payload)
	result.Stats = g.mission.Stats()
	result.Summary = g.mission.Summary()

	g.session.SetSystemPrompt(g.mission.SystemPrompt())

	g.publish(func(ctx context.Context) error {
		return g.events.PublishTurnFinalized(ctx, g.runID, turn, result.Narrative, result.Payload != nil)
	})
	g.save(ctx)

	return result, nil
}

// interrupted records a partial answer as a spent exchange without touching
// the mission, so the turn count stays in step with the assistant messages
// in history.
func (g *Game) interrupted(ctx context.Context, turn int, answer string) *TurnResult {
	g.turn = turn
	g.runLog().Warn("Turn interrupted; partial answer kept, mission state unchanged",
		"turn", turn,
		"answer_length", len(answer))
	g.save(ctx)
	return &TurnResult{
		Turn:        turn,
		Answer:      answer,
		Narrative:   payload.Narrative(answer, nil),
		Stats:       g.mission.Stats(),
		Summary:     g.mission.Summary(),
		Interrupted: true,
	}
}

// Reset starts a new run of the same mission: fresh stats, objectives,
// history and usage totals under a new run id.
func (g *Game) Reset() error {
	if err := g.session.Reset(); err != nil {
		return err
	}
	g.runID = uuid.New()
	g.turn = 0
	g.createdAt = time.Now()
	g.mission.Reset()
	g.session.SetSystemPrompt(g.mission.SystemPrompt())
	g.runLog().Info("Mission reset")
	return nil
}

// Resume replaces the current run with a saved one.
func (g *Game) Resume(ctx context.Context, id uuid.UUID) error {
	if g.runs == nil {
		return ErrNoRunStore
	}

	snap, err := g.runs.LoadRun(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	s, err := ResolveMission(ctx, g.missions, snap.MissionFile)
	if err != nil {
		return err
	}

	err = g.session.Restore(session.Snapshot{Messages: snap.Messages, Usage: snap.Usage})
	if err != nil {
		return err
	}

	g.mission = state.NewMission(s, g.missionListener())
	g.mission.Restore(snap.Stats, snap.Objectives, snap.Summary)
	g.session.SetSystemPrompt(g.mission.SystemPrompt())

	g.runID = snap.ID
	g.createdAt = snap.CreatedAt
	g.turn = 0
	for _, m := range snap.Messages {
		if m.Role == chat.ChatRoleAgent {
			g.turn++
		}
	}

	g.runLog().Info("Run resumed", "turn", g.turn, "outcome", g.mission.Stats().Outcome)
	return nil
}

// RecentRuns lists saved run ids, newest first.
func (g *Game) RecentRuns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if g.runs == nil {
		return nil, ErrNoRunStore
	}
	return g.runs.ListRuns(ctx, limit)
}

// Snapshot captures the current run.
func (g *Game) Snapshot() *storage.RunSnapshot {
	sess := g.session.Snapshot()
	s := g.mission.Scenario()
	return &storage.RunSnapshot{
		ID:          g.runID,
		MissionID:   s.ID,
		MissionFile: s.FileName,
		Stats:       g.mission.Stats(),
		Objectives:  g.mission.Objectives(),
		Summary:     g.mission.Summary(),
		Messages:    sess.Messages,
		Usage:       sess.Usage,
		CreatedAt:   g.createdAt,
	}
}

func (g *Game) runLog() *slog.Logger {
	return logger.WithRunID(g.logger, g.runID.String())
}

func (g *Game) save(ctx context.Context) {
	if g.runs == nil {
		return
	}
	if err := g.runs.SaveRun(ctx, g.Snapshot()); err != nil {
		logger.WithError(g.runLog(), err).Warn("Failed to save run")
	}
}

// publish sends an event if a broadcaster is configured. Failures are
// logged and otherwise ignored.
func (g *Game) publish(fn func(ctx context.Context) error) {
	if g.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.WithError(g.runLog(), err).Warn("Failed to publish event")
	}
}

// Accessors

func (g *Game) RunID() uuid.UUID { return g.runID }
func (g *Game) Turn() int { return g.turn }
func (g *Game) Session() *session.Session { return g.session }
func (g *Game) Mission() *state.Mission { return g.mission }
func (g *Game) Scenario() *scenario.Scenario { return g.mission.Scenario() }
func (g *Game) Stats() state.GameStats { return g.mission.Stats() }
func (g *Game) Objectives() []state.Objective { return g.mission.Objectives() }

// ResolveMission loads filename from store, or returns the built-in
// mission when filename is empty or no store is configured.
func ResolveMission(ctx context.Context, store storage.MissionStore, filename string) (*scenario.Scenario, error) {
	if filename == "" || store == nil {
		return scenario.Default(), nil
	}
	s, err := store.GetMission(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load mission %s: %w", filename, err)
	}
	return s, nil
}
