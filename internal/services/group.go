package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/cache"
	"github.com/yungbote/rollup-backend/internal/data/repos"
	"github.com/yungbote/rollup-backend/internal/denorm"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type GroupService interface {
	Create(ctx context.Context, ownerUserID uuid.UUID, name string, metadata map[string]any) (*types.Group, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Group, error)
	List(ctx context.Context, ownerUserID *uuid.UUID, limit, offset int) ([]*types.Group, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
	Recompute(ctx context.Context, id uuid.UUID) (map[string]int64, error)
	EnqueueRecompute(ctx context.Context, ownerUserID, id uuid.UUID) (*types.JobRun, error)
}

type groupService struct {
	db         *gorm.DB
	log        *logger.Logger
	groupRepo  repos.GroupRepo
	jobRepo    repos.JobRunRepo
	recomputer *denorm.Recomputer
	stats      cache.StatsCache
	metrics    *observability.Metrics
}

func NewGroupService(
	db *gorm.DB,
	baseLog *logger.Logger,
	groupRepo repos.GroupRepo,
	jobRepo repos.JobRunRepo,
	recomputer *denorm.Recomputer,
	stats cache.StatsCache,
	metrics *observability.Metrics,
) GroupService {
	return &groupService{
		db:         db,
		log:        baseLog.With("service", "GroupService"),
		groupRepo:  groupRepo,
		jobRepo:    jobRepo,
		recomputer: recomputer,
		stats:      stats,
		metrics:    metrics,
	}
}

func (s *groupService) Create(ctx context.Context, ownerUserID uuid.UUID, name string, metadata map[string]any) (*types.Group, error) {
	const op = "GroupService.Create"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.NewError(types.CodeValidation, op, "group name required", nil)
	}
	group := &types.Group{Name: name}
	if ownerUserID != uuid.Nil {
		group.OwnerUserID = &ownerUserID
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, types.WrapError(types.CodeValidation, op, err)
		}
		group.Metadata = datatypes.JSON(raw)
	}
	created, err := s.groupRepo.Create(dbctx.New(ctx), []*types.Group{group})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *groupService) GetByID(ctx context.Context, id uuid.UUID) (*types.Group, error) {
	return s.groupRepo.GetByID(dbctx.New(ctx), id)
}

func (s *groupService) List(ctx context.Context, ownerUserID *uuid.UUID, limit, offset int) ([]*types.Group, error) {
	return s.groupRepo.List(dbctx.New(ctx), ownerUserID, limit, offset)
}

func (s *groupService) Rename(ctx context.Context, id uuid.UUID, name string) error {
	const op = "GroupService.Rename"
	name = strings.TrimSpace(name)
	if name == "" {
		return types.NewError(types.CodeValidation, op, "group name required", nil)
	}
	return s.groupRepo.UpdateFields(dbctx.New(ctx), id, map[string]interface{}{"name": name})
}

func (s *groupService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.groupRepo.Delete(dbctx.New(ctx), id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Purge removes the group physically; the schema cascades its members and
// posts, and the engine keeps surviving parents consistent on the way down.
func (s *groupService) Purge(ctx context.Context, id uuid.UUID) error {
	if err := s.groupRepo.Purge(dbctx.New(ctx), id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Recompute rebuilds the group's tracked columns from its current children
// and returns the fresh values. It is the synchronous repair path; bulk
// repair goes through the job queue.
func (s *groupService) Recompute(ctx context.Context, id uuid.UUID) (map[string]int64, error) {
	const op = "GroupService.Recompute"
	start := time.Now()
	values, err := s.recomputer.RecomputeParent(ctx, s.db, &types.Group{}, id)
	if s.metrics != nil {
		s.metrics.ObserveRecompute(types.Group{}.TableName(), err, time.Since(start))
	}
	if err != nil {
		return nil, types.WrapError(types.CodeInternal, op, err)
	}
	s.invalidate(ctx, id)
	return values, nil
}

// EnqueueRecompute queues an asynchronous recompute unless one is already
// pending for the same group.
func (s *groupService) EnqueueRecompute(ctx context.Context, ownerUserID, id uuid.UUID) (*types.JobRun, error) {
	const op = "GroupService.EnqueueRecompute"
	if _, err := s.groupRepo.GetByID(dbctx.New(ctx), id); err != nil {
		return nil, err
	}
	pending, err := s.jobRepo.HasRunnableForEntity(dbctx.New(ctx), types.JobTypeGroupRecompute, types.Group{}.TableName(), id)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, types.NewError(types.CodeConflict, op, "recompute already queued", nil)
	}
	entityID := id
	job := &types.JobRun{
		OwnerUserID: ownerUserID,
		JobType:     types.JobTypeGroupRecompute,
		EntityType:  types.Group{}.TableName(),
		EntityID:    &entityID,
		Status:      types.JobStatusQueued,
	}
	created, err := s.jobRepo.Create(dbctx.New(ctx), []*types.JobRun{job})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *groupService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.stats == nil {
		return
	}
	if err := s.stats.InvalidateGroup(ctx, id); err != nil {
		s.log.Warn("stats cache invalidation failed", "group_id", id, "error", err)
	}
}
