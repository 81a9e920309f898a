package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/cache"
	"github.com/yungbote/rollup-backend/internal/data/repos"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type MemberService interface {
	Add(ctx context.Context, groupID *uuid.UUID, displayName string, active bool, points int64) (*types.Member, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Member, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*types.Member, error)
	Rename(ctx context.Context, id uuid.UUID, displayName string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	AddPoints(ctx context.Context, id uuid.UUID, delta int64) error
	MoveToGroup(ctx context.Context, id uuid.UUID, groupID *uuid.UUID) error
	Remove(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
}

type memberService struct {
	db         *gorm.DB
	log        *logger.Logger
	memberRepo repos.MemberRepo
	groupRepo  repos.GroupRepo
	stats      cache.StatsCache
}

func NewMemberService(db *gorm.DB, baseLog *logger.Logger, memberRepo repos.MemberRepo, groupRepo repos.GroupRepo, stats cache.StatsCache) MemberService {
	return &memberService{
		db:         db,
		log:        baseLog.With("service", "MemberService"),
		memberRepo: memberRepo,
		groupRepo:  groupRepo,
		stats:      stats,
	}
}

func (s *memberService) Add(ctx context.Context, groupID *uuid.UUID, displayName string, active bool, points int64) (*types.Member, error) {
	const op = "MemberService.Add"
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, types.NewError(types.CodeValidation, op, "display name required", nil)
	}
	if groupID != nil {
		if _, err := s.groupRepo.GetByID(dbctx.New(ctx), *groupID); err != nil {
			return nil, err
		}
	}
	member := &types.Member{
		GroupID:     groupID,
		DisplayName: displayName,
		Active:      active,
		Points:      points,
	}
	created, err := s.memberRepo.Create(dbctx.New(ctx), []*types.Member{member})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, groupID)
	return created[0], nil
}

func (s *memberService) GetByID(ctx context.Context, id uuid.UUID) (*types.Member, error) {
	return s.memberRepo.GetByID(dbctx.New(ctx), id)
}

func (s *memberService) ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*types.Member, error) {
	return s.memberRepo.ListByGroup(dbctx.New(ctx), groupID, limit, offset)
}

func (s *memberService) Rename(ctx context.Context, id uuid.UUID, displayName string) error {
	const op = "MemberService.Rename"
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return types.NewError(types.CodeValidation, op, "display name required", nil)
	}
	return s.memberRepo.UpdateFields(dbctx.New(ctx), id, map[string]interface{}{"display_name": displayName})
}

func (s *memberService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if err := s.memberRepo.UpdateFields(dbctx.New(ctx), id, map[string]interface{}{"active": active}); err != nil {
		return err
	}
	s.invalidate(ctx, member.GroupID)
	return nil
}

// AddPoints applies a storage-evaluated increment; the engine re-reads the
// stored result when adjusting points_sum, so racing increments all land.
func (s *memberService) AddPoints(ctx context.Context, id uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if err := s.memberRepo.AddPoints(dbctx.New(ctx), id, delta); err != nil {
		return err
	}
	s.invalidate(ctx, member.GroupID)
	return nil
}

func (s *memberService) MoveToGroup(ctx context.Context, id uuid.UUID, groupID *uuid.UUID) error {
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if groupID != nil {
		if _, err := s.groupRepo.GetByID(dbctx.New(ctx), *groupID); err != nil {
			return err
		}
	}
	if err := s.memberRepo.SetGroup(dbctx.New(ctx), id, groupID); err != nil {
		return err
	}
	s.invalidate(ctx, member.GroupID)
	s.invalidate(ctx, groupID)
	return nil
}

func (s *memberService) Remove(ctx context.Context, id uuid.UUID) error {
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if err := s.memberRepo.Delete(dbctx.New(ctx), id); err != nil {
		return err
	}
	s.invalidate(ctx, member.GroupID)
	return nil
}

func (s *memberService) Restore(ctx context.Context, id uuid.UUID) error {
	if err := s.memberRepo.Restore(dbctx.New(ctx), id); err != nil {
		return err
	}
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, member.GroupID)
	return nil
}

func (s *memberService) Purge(ctx context.Context, id uuid.UUID) error {
	member, err := s.memberRepo.GetByID(dbctx.New(ctx), id)
	if err != nil && !types.IsCode(err, types.CodeNotFound) {
		return err
	}
	if err := s.memberRepo.Purge(dbctx.New(ctx), id); err != nil {
		return err
	}
	if member != nil {
		s.invalidate(ctx, member.GroupID)
	}
	return nil
}

func (s *memberService) invalidate(ctx context.Context, groupID *uuid.UUID) {
	if s.stats == nil || groupID == nil {
		return
	}
	if err := s.stats.InvalidateGroup(ctx, *groupID); err != nil {
		s.log.Warn("stats cache invalidation failed", "group_id", *groupID, "error", err)
	}
}
