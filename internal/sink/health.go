package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStore persists each sink's degraded status in Redis so a second
// correlator process (or the same process after a restart) can see a
// sink's recent health without waiting for its own failed delivery,
// generalizing the per-rule SuppressionState keying pattern to a
// per-sink health record.
type HealthStore struct {
	redis   *redis.Client
	enabled bool
	ttl     time.Duration
}

// SinkHealth is the record stored per sink name.
type SinkHealth struct {
	Degraded     bool      `json:"degraded"`
	LastFailure  time.Time `json:"last_failure"`
	FailureCount int64     `json:"failure_count"`
}

// NewHealthStore returns a HealthStore. enabled mirrors the §6 redis.enabled
// config flag — when false every method is a no-op, matching the
// StateManager.IsEnabled gate.
func NewHealthStore(client *redis.Client, enabled bool, ttl time.Duration) *HealthStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HealthStore{redis: client, enabled: enabled, ttl: ttl}
}

func (h *HealthStore) isEnabled() bool {
	return h.enabled && h.redis != nil
}

func (h *HealthStore) key(sinkName string) string {
	return fmt.Sprintf("logiccorrelator:sink:%s:health", sinkName)
}

// RecordFailure marks sinkName degraded and bumps its failure count.
func (h *HealthStore) RecordFailure(ctx context.Context, sinkName string) error {
	if !h.isEnabled() {
		return nil
	}

	state, err := h.Get(ctx, sinkName)
	if err != nil {
		return err
	}
	state.Degraded = true
	state.LastFailure = time.Now()
	state.FailureCount++

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal sink health: %w", err)
	}
	return h.redis.Set(ctx, h.key(sinkName), data, h.ttl).Err()
}

// RecordSuccess clears sinkName's degraded flag without losing its
// historical failure count.
func (h *HealthStore) RecordSuccess(ctx context.Context, sinkName string) error {
	if !h.isEnabled() {
		return nil
	}

	state, err := h.Get(ctx, sinkName)
	if err != nil {
		return err
	}
	state.Degraded = false

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal sink health: %w", err)
	}
	return h.redis.Set(ctx, h.key(sinkName), data, h.ttl).Err()
}

// Get returns sinkName's current health, or a fresh zero-value record if
// none is stored yet.
func (h *HealthStore) Get(ctx context.Context, sinkName string) (SinkHealth, error) {
	if !h.isEnabled() {
		return SinkHealth{}, nil
	}

	data, err := h.redis.Get(ctx, h.key(sinkName)).Result()
	if errors.Is(err, redis.Nil) {
		return SinkHealth{}, nil
	}
	if err != nil {
		return SinkHealth{}, fmt.Errorf("get sink health: %w", err)
	}

	var state SinkHealth
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return SinkHealth{}, fmt.Errorf("unmarshal sink health: %w", err)
	}
	return state, nil
}
