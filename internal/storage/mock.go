package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/mission-console/pkg/scenario"
)

// MockStorage is an in-memory Storage for tests and for running without
// Redis.
type MockStorage struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID][]byte
	missions  map[string]*scenario.Scenario
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		runs:     make(map[uuid.UUID][]byte),
		missions: make(map[string]*scenario.Scenario),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail on SaveRun
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveRun stores a JSON copy so later changes to run are not visible.
func (m *MockStorage) SaveRun(ctx context.Context, run *RunSnapshot) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	m.runs[run.ID] = data
	return nil
}

// LoadRun returns nil for not found
func (m *MockStorage) LoadRun(ctx context.Context, id uuid.UUID) (*RunSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, exists := m.runs[id]
	if !exists {
		return nil, nil
	}
	var run RunSnapshot
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

func (m *MockStorage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	return nil
}

func (m *MockStorage) ListRuns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		id      uuid.UUID
		updated time.Time
	}
	entries := make([]entry, 0, len(m.runs))
	for id, data := range m.runs {
		var run RunSnapshot
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		entries = append(entries, entry{id: id, updated: run.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updated.After(entries[j].updated)
	})

	if limit <= 0 {
		limit = 10
	}
	ids := make([]uuid.UUID, 0, limit)
	for i := 0; i < len(entries) && i < limit; i++ {
		ids = append(ids, entries[i].id)
	}
	return ids, nil
}

// AddMission adds a mission to the mock storage
func (m *MockStorage) AddMission(filename string, s *scenario.Scenario) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.FileName = filename
	m.missions[filename] = s
}

func (m *MockStorage) ListMissions(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.missions))
	for filename, s := range m.missions {
		result[s.Name] = filename
	}
	return result, nil
}

func (m *MockStorage) GetMission(ctx context.Context, filename string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, exists := m.missions[filename]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMissionNotFound, filename)
	}
	return s, nil
}
