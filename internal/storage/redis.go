package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	runKeyPrefix = "run:"
	runIndexKey  = "runs:by_updated"

	// RunTTL is how long an idle run is kept.
	RunTTL = 7 * 24 * time.Hour
)

// RedisStorage implements the Storage interface using Redis for run
// snapshots and the filesystem for mission definitions.
type RedisStorage struct {
	*FileMissions

	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance from a redis:// URL.
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return NewRedisStorageWithClient(redis.NewClient(opt), dataDir, logger), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, dataDir string, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		FileMissions: NewFileMissions(dataDir, logger),
		client:       client,
		logger:       logger,
	}
}

// Client returns the underlying Redis client so the event broadcaster can
// share the connection pool.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Run operations

func runKey(id uuid.UUID) string {
	return runKeyPrefix + id.String()
}

func (r *RedisStorage) SaveRun(ctx context.Context, run *RunSnapshot) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		r.logger.Error("Failed to marshal run", "run_id", run.ID, "error", err)
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, RunTTL)
	pipe.ZAdd(ctx, runIndexKey, redis.Z{Score: float64(now.UnixMilli()), Member: run.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save run", "run_id", run.ID, "error", err)
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

func (r *RedisStorage) LoadRun(ctx context.Context, id uuid.UUID) (*RunSnapshot, error) {
	data, err := r.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Warn("Run not found", "run_id", id)
			return nil, nil
		}
		r.logger.Error("Failed to load run", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var run RunSnapshot
	if err := json.Unmarshal(data, &run); err != nil {
		r.logger.Error("Failed to unmarshal run", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

func (r *RedisStorage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, runKey(id))
	pipe.ZRem(ctx, runIndexKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete run", "run_id", id, "error", err)
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit run ids, newest first. Index entries whose
// snapshot has expired are skipped and removed, and further index windows are
// read until the page is full or the index is exhausted.
func (r *RedisStorage) ListRuns(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 10
	}

	ids := make([]uuid.UUID, 0, limit)
	var stale []any
	for start := int64(0); len(ids) < limit; {
		members, err := r.client.ZRevRange(ctx, runIndexKey, start, start+int64(limit)-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(members) == 0 {
			break
		}
		start += int64(len(members))

		for _, m := range members {
			id, err := uuid.Parse(m)
			if err != nil {
				r.logger.Warn("Invalid run id in index", "member", m)
				continue
			}
			exists, err := r.client.Exists(ctx, runKey(id)).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to check run: %w", err)
			}
			if exists == 0 {
				stale = append(stale, m)
				continue
			}
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}

	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, runIndexKey, stale...).Err(); err != nil {
			r.logger.Warn("Failed to prune expired runs from index", "count", len(stale), "error", err)
		}
	}

	return ids, nil
}
