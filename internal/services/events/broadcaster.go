package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnStarted       EventType = "turn.started"
	EventTypeChatChunk         EventType = "chat.chunk"
	EventTypeTurnFinalized     EventType = "turn.finalized"
	EventTypeTurnFailed        EventType = "turn.failed"
	EventTypeStatsChanged      EventType = "mission.stats_changed"
	EventTypeObjectivesChanged EventType = "mission.objectives_changed"
	EventTypeHint              EventType = "mission.hint"
	EventTypeGameOver          EventType = "mission.game_over"
)

// Event represents a generic event structure
type Event struct {
	Type  EventType      `json:"type"`
	RunID string         `json:"run_id"`
	Turn  int            `json:"turn,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a run.
func Channel(runID uuid.UUID) string {
	return fmt.Sprintf("run:%s:events", runID.String())
}

// Broadcaster publishes run events to Redis Pub/Sub so other processes can
// follow a game live.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishTurnStarted publishes a turn.started event
func (b *Broadcaster) PublishTurnStarted(ctx context.Context, runID uuid.UUID, turn int, userMessage string) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeTurnStarted,
		Turn: turn,
		Data: map[string]any{
			"user_message": userMessage,
		},
	})
}

// PublishChatChunk publishes a chat.chunk event for one answer delta.
func (b *Broadcaster) PublishChatChunk(ctx context.Context, runID uuid.UUID, turn int, content string) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeChatChunk,
		Turn: turn,
		Data: map[string]any{
			"content": content,
		},
	})
}

// PublishTurnFinalized publishes a turn.finalized event
func (b *Broadcaster) PublishTurnFinalized(ctx context.Context, runID uuid.UUID, turn int, narrative string, hasPayload bool) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeTurnFinalized,
		Turn: turn,
		Data: map[string]any{
			"narrative":   narrative,
			"has_payload": hasPayload,
		},
	})
}

// PublishTurnFailed publishes a turn.failed event
func (b *Broadcaster) PublishTurnFailed(ctx context.Context, runID uuid.UUID, turn int, errorMsg string) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeTurnFailed,
		Turn: turn,
		Data: map[string]any{
			"error": errorMsg,
		},
	})
}

// PublishStatsChanged publishes a mission.stats_changed event
func (b *Broadcaster) PublishStatsChanged(ctx context.Context, runID uuid.UUID, morale, intel, turnsLeft int) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeStatsChanged,
		Data: map[string]any{
			"morale":     morale,
			"intel":      intel,
			"turns_left": turnsLeft,
		},
	})
}

// PublishObjectivesChanged publishes the ids of completed objectives.
func (b *Broadcaster) PublishObjectivesChanged(ctx context.Context, runID uuid.UUID, completed []string, total int) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeObjectivesChanged,
		Data: map[string]any{
			"completed": completed,
			"total":     total,
		},
	})
}

// PublishHint publishes a mission.hint event
func (b *Broadcaster) PublishHint(ctx context.Context, runID uuid.UUID, hint string) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeHint,
		Data: map[string]any{
			"hint": hint,
		},
	})
}

// PublishGameOver publishes a mission.game_over event
func (b *Broadcaster) PublishGameOver(ctx context.Context, runID uuid.UUID, outcome, summary string) error {
	return b.publishToRun(ctx, runID, Event{
		Type: EventTypeGameOver,
		Data: map[string]any{
			"outcome": outcome,
			"summary": summary,
		},
	})
}

// Subscribe follows a run's events until ctx is done. Undecodable messages
// are skipped.
func (b *Broadcaster) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan Event, error) {
	pubsub := b.redisClient.Subscribe(ctx, Channel(runID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Dropping undecodable event", "error", err, "channel", msg.Channel)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// publishToRun publishes an event to the run-specific channel
func (b *Broadcaster) publishToRun(ctx context.Context, runID uuid.UUID, event Event) error {
	channel := Channel(runID)
	event.RunID = runID.String()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"turn", event.Turn,
	)

	return nil
}
