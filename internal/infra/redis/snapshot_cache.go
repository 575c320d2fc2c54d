// Package redis caches the last broadcast state and rankings so catch-up
// reads (GET /api/state, fresh websocket connections) avoid hitting the
// store. Strictly best-effort: every redis failure falls through to the
// service and never affects a mutation.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"quizbee/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	stateKey    = "quizbee:state"
	rankingsKey = "quizbee:rankings"
)

// Source is the authoritative fallback on cache miss. *app.GameService
// satisfies it.
type Source interface {
	State(ctx context.Context) (domain.StatePayload, error)
	Rankings(ctx context.Context) ([]domain.RankingEntry, error)
}

// SnapshotCache implements app.Broadcaster on the write side (storing each
// committed snapshot) and Source on the read side (serving cached snapshots,
// falling through on miss).
type SnapshotCache struct {
	client   *redis.Client
	ttl      time.Duration
	fallback Source
	sf       singleflight.Group
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

// SetFallback wires the authoritative source. Set after the service is
// constructed; the service's broadcaster references this cache, so the two
// cannot be built in one shot.
func (c *SnapshotCache) SetFallback(src Source) {
	c.fallback = src
}

func (c *SnapshotCache) set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.client.Set(context.Background(), key, raw, c.ttl).Err()
}

func (c *SnapshotCache) BroadcastState(state domain.StatePayload) {
	c.set(stateKey, state)
}

func (c *SnapshotCache) BroadcastRankings(rankings []domain.RankingEntry) {
	c.set(rankingsKey, rankings)
}

func (c *SnapshotCache) BroadcastSubmission(domain.Submission) {}
func (c *SnapshotCache) BroadcastQuestionReset(int64)          {}

// State returns the cached snapshot, or loads from the fallback and refills.
// Concurrent misses are coalesced into a single fallback load.
func (c *SnapshotCache) State(ctx context.Context) (domain.StatePayload, error) {
	raw, err := c.client.Get(ctx, stateKey).Bytes()
	if err == nil {
		var state domain.StatePayload
		if json.Unmarshal(raw, &state) == nil {
			return state, nil
		}
	}
	result, err, _ := c.sf.Do(stateKey, func() (interface{}, error) {
		state, err := c.fallback.State(ctx)
		if err != nil {
			return domain.StatePayload{}, err
		}
		c.set(stateKey, state)
		return state, nil
	})
	if err != nil {
		return domain.StatePayload{}, err
	}
	return result.(domain.StatePayload), nil
}

// Rankings mirrors State for the standings list.
func (c *SnapshotCache) Rankings(ctx context.Context) ([]domain.RankingEntry, error) {
	raw, err := c.client.Get(ctx, rankingsKey).Bytes()
	if err == nil {
		var rankings []domain.RankingEntry
		if json.Unmarshal(raw, &rankings) == nil {
			return rankings, nil
		}
	}
	result, err, _ := c.sf.Do(rankingsKey, func() (interface{}, error) {
		rankings, err := c.fallback.Rankings(ctx)
		if err != nil {
			return nil, err
		}
		c.set(rankingsKey, rankings)
		return rankings, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RankingEntry), nil
}
