package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/mission-console/pkg/chat"
	"github.com/jwebster45206/mission-console/pkg/scenario"
	"github.com/jwebster45206/mission-console/pkg/state"
)

// RunSnapshot is everything needed to resume a run: mission state plus the
// conversation that produced it.
type RunSnapshot struct {
	ID          uuid.UUID          `json:"id"`
	MissionID   string             `json:"mission_id"`
	MissionFile string             `json:"mission_file,omitempty"` // empty for the built-in mission
	Stats       state.GameStats    `json:"stats"`
	Objectives  []state.Objective  `json:"objectives"`
	Summary     string             `json:"summary,omitempty"`
	Messages    []chat.ChatMessage `json:"messages"`
	Usage       chat.UsageTotals   `json:"usage"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// MissionStore loads mission definitions.
type MissionStore interface {
	// ListMissions maps mission name to file name.
	ListMissions(ctx context.Context) (map[string]string, error)
	GetMission(ctx context.Context, filename string) (*scenario.Scenario, error)
}

// RunStore persists run snapshots. LoadRun returns nil, nil when the run
// does not exist.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunSnapshot) error
	LoadRun(ctx context.Context, id uuid.UUID) (*RunSnapshot, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	// ListRuns returns run ids, most recently updated first.
	ListRuns(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Storage defines a unified interface for all storage operations.
// Runs live in Redis; mission definitions are read from the filesystem.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	RunStore
	MissionStore
}
