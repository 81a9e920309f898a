package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// GroupStats is the cached read model for one group's rollup columns.
type GroupStats struct {
	GroupID      uuid.UUID `json:"group_id"`
	MembersCount int64     `json:"members_count"`
	PointsSum    int64     `json:"points_sum"`
	PostsCount   int64     `json:"posts_count"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// StatsCache is a read-through cache in front of the tracked columns. It is
// advisory only: every miss or transport error falls back to storage, and
// writers invalidate instead of updating in place.
type StatsCache interface {
	GetGroup(ctx context.Context, groupID uuid.UUID) (*GroupStats, error)
	SetGroup(ctx context.Context, stats *GroupStats) error
	InvalidateGroup(ctx context.Context, groupID uuid.UUID) error
	Close() error
}

type statsCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewStatsCache connects to REDIS_ADDR. Callers treat a nil cache as
// disabled, so a missing address is an error here and a skip at wire time.
func NewStatsCache(baseLog *logger.Logger) (StatsCache, error) {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttl := envutil.Duration("STATS_CACHE_TTL", 30*time.Second)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &statsCache{
		log: baseLog.With("component", "StatsCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func groupKey(groupID uuid.UUID) string {
	return "rollup:group_stats:" + groupID.String()
}

func (c *statsCache) GetGroup(ctx context.Context, groupID uuid.UUID) (*GroupStats, error) {
	raw, err := c.rdb.Get(ctx, groupKey(groupID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats GroupStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		// A corrupted entry behaves like a miss; the next Set replaces it.
		c.log.Warn("dropping undecodable cache entry", "group_id", groupID, "error", err)
		_ = c.rdb.Del(ctx, groupKey(groupID)).Err()
		return nil, nil
	}
	return &stats, nil
}

func (c *statsCache) SetGroup(ctx context.Context, stats *GroupStats) error {
	if stats == nil || stats.GroupID == uuid.Nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, groupKey(stats.GroupID), raw, c.ttl).Err()
}

func (c *statsCache) InvalidateGroup(ctx context.Context, groupID uuid.UUID) error {
	return c.rdb.Del(ctx, groupKey(groupID)).Err()
}

func (c *statsCache) Close() error {
	return c.rdb.Close()
}
