package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/cache"
	"github.com/yungbote/rollup-backend/internal/data/repos"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// StatsService serves the rollup columns as a read model. Because the
// tracked values live on the parent row itself, a stats read is one row
// lookup; the cache only shaves that lookup off hot groups.
type StatsService interface {
	GroupStats(ctx context.Context, groupID uuid.UUID) (*cache.GroupStats, error)
}

type statsService struct {
	db        *gorm.DB
	log       *logger.Logger
	groupRepo repos.GroupRepo
	stats     cache.StatsCache
}

func NewStatsService(db *gorm.DB, baseLog *logger.Logger, groupRepo repos.GroupRepo, stats cache.StatsCache) StatsService {
	return &statsService{
		db:        db,
		log:       baseLog.With("service", "StatsService"),
		groupRepo: groupRepo,
		stats:     stats,
	}
}

func (s *statsService) GroupStats(ctx context.Context, groupID uuid.UUID) (*cache.GroupStats, error) {
	if s.stats != nil {
		cached, err := s.stats.GetGroup(ctx, groupID)
		if err != nil {
			s.log.Warn("stats cache read failed", "group_id", groupID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	group, err := s.groupRepo.GetByID(dbctx.New(ctx), groupID)
	if err != nil {
		return nil, err
	}
	fresh := &cache.GroupStats{
		GroupID:      group.ID,
		MembersCount: group.MembersCount,
		PointsSum:    group.PointsSum,
		PostsCount:   group.PostsCount,
		FetchedAt:    time.Now(),
	}
	if s.stats != nil {
		if err := s.stats.SetGroup(ctx, fresh); err != nil {
			s.log.Warn("stats cache write failed", "group_id", groupID, "error", err)
		}
	}
	return fresh, nil
}
