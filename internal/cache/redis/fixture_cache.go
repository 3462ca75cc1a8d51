package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bitredict/backend/internal/domain"
)

// liveTTL keeps snapshots around a little longer than two live polls so a
// single missed tick does not force a full rewrite.
const liveTTL = 3 * time.Minute

// FixtureSnapshot is the compact state the ingestor compares between live
// polls. Unchanged fixtures skip the database write.
type FixtureSnapshot struct {
	Status string            `json:"status"`
	Scores *domain.RawScores `json:"scores,omitempty"`
}

// FixtureCache caches live fixture snapshots.
//
// Key schema:
//
//	fx:live:{fixture_id} - JSON FixtureSnapshot
type FixtureCache struct {
	rdb *redis.Client
}

// NewFixtureCache creates a FixtureCache backed by the given Client.
func NewFixtureCache(c *Client) *FixtureCache {
	return &FixtureCache{rdb: c.Underlying()}
}

func liveKey(id string) string { return "fx:live:" + id }

// Set stores a snapshot with the live TTL.
func (c *FixtureCache) Set(ctx context.Context, fixtureID string, snap FixtureSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal fixture snapshot %s: %w", fixtureID, err)
	}
	if err := c.rdb.Set(ctx, liveKey(fixtureID), data, liveTTL).Err(); err != nil {
		return fmt.Errorf("redis: set fixture snapshot %s: %w", fixtureID, err)
	}
	return nil
}

// Get returns the cached snapshot, or domain.ErrNotFound when absent.
func (c *FixtureCache) Get(ctx context.Context, fixtureID string) (FixtureSnapshot, error) {
	data, err := c.rdb.Get(ctx, liveKey(fixtureID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return FixtureSnapshot{}, domain.ErrNotFound
		}
		return FixtureSnapshot{}, fmt.Errorf("redis: get fixture snapshot %s: %w", fixtureID, err)
	}
	var snap FixtureSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return FixtureSnapshot{}, fmt.Errorf("redis: unmarshal fixture snapshot %s: %w", fixtureID, err)
	}
	return snap, nil
}

// Invalidate drops a snapshot, forcing the next poll to write through.
func (c *FixtureCache) Invalidate(ctx context.Context, fixtureID string) error {
	if err := c.rdb.Del(ctx, liveKey(fixtureID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate fixture snapshot %s: %w", fixtureID, err)
	}
	return nil
}
