package game

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/mission-console/internal/config"
	"github.com/jwebster45206/mission-console/internal/services"
	"github.com/jwebster45206/mission-console/internal/services/events"
	"github.com/jwebster45206/mission-console/internal/session"
	"github.com/jwebster45206/mission-console/internal/storage"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/scenario"
	"github.com/jwebster45206/mission-console/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() config.Settings {
	return config.Settings{APIKey: "sk-test", Model: "test-model", MaxTokens: 512}
}

// answerStream renders answer as a two-frame SSE body with usage.
func answerStream(t *testing.T, answer string) string {
	t.Helper()
	half := len(answer) / 2
	frame := func(content string, withUsage bool) string {
		f := map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
		}
		if withUsage {
			f["usage"] = map[string]any{"prompt_tokens": 40, "completion_tokens": 10}
		}
		data, err := json.Marshal(f)
		require.NoError(t, err)
		return string(data)
	}
	return services.SSEBody(frame(answer[:half], false), frame(answer[half:], true))
}

const briefingAnswer = "The handler slides a folder across the table.\n```json\n" +
	`{"narrative":"You learn the rotation.","effects":{"morale":5,"intel":2},"objective_progress":"briefing","flags":{"hint":"Watch the loading dock."}}` +
	"\n```"

type harness struct {
	game     *Game
	llm      *services.MockLLMAPI
	store    *storage.MockStorage
	stats    []state.GameStats
	outcomes []state.Outcome
	hints    []string
	answers  []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		llm:   services.NewMockLLMAPI(),
		store: storage.NewMockStorage(),
	}
	h.game = New(Options{
		LLM:      h.llm,
		Settings: testSettings(),
		Runs:     h.store,
		Missions: h.store,
		Session: sessionCallbacks(func(s string) {
			h.answers = append(h.answers, s)
		}),
		Mission: state.Listener{
			OnStatsChanged: func(s state.GameStats) { h.stats = append(h.stats, s) },
			OnGameOver: func(o state.Outcome, summary string) {
				h.outcomes = append(h.outcomes, o)
			},
			OnHint: func(hint string) { h.hints = append(h.hints, hint) },
		},
		Logger: testLogger(),
	})
	return h
}

func TestGame_TurnAppliesPayload(t *testing.T) {
	h := newHarness(t)
	h.llm.SetStreamResponse(answerStream(t, briefingAnswer))

	result, err := h.game.Send(context.Background(), "I meet the handler.")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Turn)
	require.NotNil(t, result.Payload)
	assert.Equal(t, "You learn the rotation.", result.Narrative)
	assert.Equal(t, state.GameStats{Morale: 65, Intel: 4, TurnsLeft: 11}, result.Stats)
	assert.Equal(t, []string{"Watch the loading dock."}, h.hints)
	assert.Equal(t, briefingAnswer, strings.Join(h.answers, ""))

	objectives := h.game.Objectives()
	assert.True(t, objectives[0].Completed)
	assert.False(t, objectives[1].Completed)

	// The next request carries the re-rendered prompt.
	history := h.game.Session().History()
	require.Len(t, history, 3)
	assert.Contains(t, history[0].Content, "[briefing] Complete the briefing (completed)")
	assert.Contains(t, history[0].Content, "Turns left: 11")

	// The turn was persisted.
	saved, err := h.store.LoadRun(context.Background(), h.game.RunID())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, result.Stats, saved.Stats)
	assert.Len(t, saved.Messages, 3)
	assert.Equal(t, chat.UsageTotals{PromptTokens: 40, CompletionTokens: 10}, saved.Usage)
}

func TestGame_AnswerWithoutPayloadLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	h.llm.SetStreamResponse(answerStream(t, "Static on the line. Say again?"))
	before := h.game.Stats()

	result, err := h.game.Send(context.Background(), "hello?")
	require.NoError(t, err)

	assert.Nil(t, result.Payload)
	assert.Equal(t, "Static on the line. Say again?", result.Narrative)
	assert.Equal(t, before, h.game.Stats())
	assert.Empty(t, h.stats)
}

func TestGame_VictoryEndsRun(t *testing.T) {
	h := newHarness(t)
	h.llm.SetStreamResponse(answerStream(t,
		"```json\n{\"objective_progress\":[\"briefing\",\"access_plan\",\"extraction\"]}\n```"))

	result, err := h.game.Send(context.Background(), "I do everything at once.")
	require.NoError(t, err)

	assert.Equal(t, state.OutcomeVictory, result.Stats.Outcome)
	assert.Equal(t, state.SummaryVictory, result.Summary)
	assert.Equal(t, []state.Outcome{state.OutcomeVictory}, h.outcomes)
	// Victory stops the clock.
	assert.Equal(t, 12, result.Stats.TurnsLeft)

	_, err = h.game.Send(context.Background(), "again")
	assert.ErrorIs(t, err, ErrGameOver)
	assert.Len(t, h.llm.GetCalls(), 1)
}

func TestGame_TransportFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.SetChatStreamError(&services.TransportError{Op: "connect", Err: errors.New("no route to host")})

	_, err := h.game.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 0, h.game.Turn())

	ids, err := h.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "failed turns are not saved")
}

// cutOffBody delivers data and then fails as a dropped connection would.
type cutOffBody struct {
	data string
	sent bool
}

func (b *cutOffBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestGame_InterruptedTurnKeepsPartialAnswer(t *testing.T) {
	h := newHarness(t)
	frame, err := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": briefingAnswer}}},
	})
	require.NoError(t, err)
	h.llm.ChatStreamFunc = func(ctx context.Context, apiKey string, req *services.ChatCompletionRequest) (io.ReadCloser, error) {
		return io.NopCloser(&cutOffBody{data: "data: " + string(frame) + "\n"}), nil
	}

	result, err := h.game.Send(context.Background(), "I meet the handler.")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, result.Turn)
	assert.Equal(t, briefingAnswer, result.Answer)
	assert.Nil(t, result.Payload)

	// The truncated turn is kept in history but never applied.
	assert.Equal(t, state.GameStats{Morale: 60, Intel: 2, TurnsLeft: 12}, h.game.Stats())
	assert.False(t, h.game.Objectives()[0].Completed)
	assert.Empty(t, h.hints)

	history := h.game.Session().History()
	require.Len(t, history, 3)
	assert.Equal(t, chat.ChatRoleAgent, history[2].Role)
	assert.Equal(t, chat.UsageTotals{}, h.game.Session().Totals())

	saved, err := h.store.LoadRun(context.Background(), h.game.RunID())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Len(t, saved.Messages, 3)
}

func TestGame_Reset(t *testing.T) {
	h := newHarness(t)
	h.llm.SetStreamResponse(answerStream(t, briefingAnswer))
	_, err := h.game.Send(context.Background(), "go")
	require.NoError(t, err)

	oldID := h.game.RunID()
	require.NoError(t, h.game.Reset())

	assert.NotEqual(t, oldID, h.game.RunID())
	assert.Equal(t, 0, h.game.Turn())
	assert.Equal(t, state.GameStats{Morale: 60, Intel: 2, TurnsLeft: 12}, h.game.Stats())
	history := h.game.Session().History()
	require.Len(t, history, 1)
	assert.Equal(t, chat.ChatRoleSystem, history[0].Role)
	assert.Equal(t, 0, h.game.Session().Totals().Total())
}

func TestGame_Resume(t *testing.T) {
	h := newHarness(t)
	h.llm.SetStreamResponse(answerStream(t, briefingAnswer))
	_, err := h.game.Send(context.Background(), "go")
	require.NoError(t, err)
	runID := h.game.RunID()

	fresh := New(Options{
		LLM:      h.llm,
		Settings: testSettings(),
		Runs:     h.store,
		Missions: h.store,
		Logger:   testLogger(),
	})
	require.NoError(t, fresh.Resume(context.Background(), runID))

	assert.Equal(t, runID, fresh.RunID())
	assert.Equal(t, 1, fresh.Turn())
	assert.Equal(t, h.game.Stats(), fresh.Stats())
	assert.Equal(t, h.game.Objectives(), fresh.Objectives())
	assert.Equal(t, h.game.Session().History(), fresh.Session().History())
	assert.Equal(t, h.game.Session().Totals(), fresh.Session().Totals())
}

func TestGame_ResumeErrors(t *testing.T) {
	g := New(Options{LLM: services.NewMockLLMAPI(), Settings: testSettings(), Logger: testLogger()})
	assert.ErrorIs(t, g.Resume(context.Background(), uuid.New()), ErrNoRunStore)

	h := newHarness(t)
	assert.ErrorIs(t, h.game.Resume(context.Background(), uuid.New()), ErrRunNotFound)
}

func TestGame_CustomMission(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddMission("short.json", &scenario.Scenario{
		ID:         "short",
		Name:       "Short Job",
		Story:      "Grab the keycard.",
		Morale:     40,
		Intel:      0,
		Turns:      1,
		Objectives: []scenario.Objective{{ID: "keycard", Title: "Take the keycard"}},
	})

	s, err := ResolveMission(context.Background(), store, "short.json")
	require.NoError(t, err)

	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(answerStream(t, `{"narrative":"You hesitate too long."}`))
	var outcome state.Outcome
	g := New(Options{
		LLM:      llm,
		Settings: testSettings(),
		Scenario: s,
		Mission: state.Listener{
			OnGameOver: func(o state.Outcome, summary string) { outcome = o },
		},
		Logger: testLogger(),
	})

	result, err := g.Send(context.Background(), "wait")
	require.NoError(t, err)
	assert.Equal(t, state.OutcomeDefeat, outcome)
	assert.Equal(t, state.SummaryTurnsExhausted, result.Summary)

	_, err = ResolveMission(context.Background(), store, "missing.json")
	assert.ErrorIs(t, err, storage.ErrMissionNotFound)

	def, err := ResolveMission(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "nightglass", def.ID)
}

func TestGame_PublishesEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	broadcaster := events.NewBroadcaster(client, testLogger())

	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(answerStream(t, briefingAnswer))
	g := New(Options{
		LLM:      llm,
		Settings: testSettings(),
		Events:   broadcaster,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broadcaster.Subscribe(ctx, g.RunID())
	require.NoError(t, err)

	_, err = g.Send(context.Background(), "go")
	require.NoError(t, err)

	var seen []events.EventType
	timeout := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != events.EventTypeTurnFinalized {
		select {
		case e := <-ch:
			seen = append(seen, e.Type)
		case <-timeout:
			t.Fatalf("timed out; saw %v", seen)
		}
	}

	assert.Equal(t, events.EventTypeTurnStarted, seen[0])
	assert.Contains(t, seen, events.EventTypeChatChunk)
	assert.Contains(t, seen, events.EventTypeStatsChanged)
	assert.Contains(t, seen, events.EventTypeObjectivesChanged)
	assert.Contains(t, seen, events.EventTypeHint)
}

func TestGame_RejectedSendPublishesNothing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	broadcaster := events.NewBroadcaster(client, testLogger())

	llm := services.NewMockLLMAPI()
	llm.SetStreamResponse(answerStream(t, briefingAnswer))
	g := New(Options{
		LLM:      llm,
		Settings: testSettings(),
		Events:   broadcaster,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broadcaster.Subscribe(ctx, g.RunID())
	require.NoError(t, err)

	_, err = g.Send(context.Background(), "   ")
	require.ErrorIs(t, err, session.ErrEmptyMessage)
	assert.Empty(t, llm.GetCalls())

	_, err = g.Send(context.Background(), "go")
	require.NoError(t, err)

	select {
	case e := <-ch:
		assert.Equal(t, events.EventTypeTurnStarted, e.Type)
		assert.Equal(t, "go", e.Data["user_message"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn.started")
	}
}

func sessionCallbacks(onAnswer func(string)) session.Callbacks {
	return session.Callbacks{OnAnswerDelta: onAnswer}
}
