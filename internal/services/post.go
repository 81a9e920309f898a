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

type PostService interface {
	Create(ctx context.Context, groupID, authorID *uuid.UUID, title, body string, visible bool) (*types.Post, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Post, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*types.Post, error)
	SetVisible(ctx context.Context, id uuid.UUID, visible bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
}

type postService struct {
	db         *gorm.DB
	log        *logger.Logger
	postRepo   repos.PostRepo
	groupRepo  repos.GroupRepo
	memberRepo repos.MemberRepo
	stats      cache.StatsCache
}

func NewPostService(db *gorm.DB, baseLog *logger.Logger, postRepo repos.PostRepo, groupRepo repos.GroupRepo, memberRepo repos.MemberRepo, stats cache.StatsCache) PostService {
	return &postService{
		db:         db,
		log:        baseLog.With("service", "PostService"),
		postRepo:   postRepo,
		groupRepo:  groupRepo,
		memberRepo: memberRepo,
		stats:      stats,
	}
}

func (s *postService) Create(ctx context.Context, groupID, authorID *uuid.UUID, title, body string, visible bool) (*types.Post, error) {
	const op = "PostService.Create"
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, types.NewError(types.CodeValidation, op, "post title required", nil)
	}
	if groupID != nil {
		if _, err := s.groupRepo.GetByID(dbctx.New(ctx), *groupID); err != nil {
			return nil, err
		}
	}
	if authorID != nil {
		if _, err := s.memberRepo.GetByID(dbctx.New(ctx), *authorID); err != nil {
			return nil, err
		}
	}
	post := &types.Post{
		GroupID:  groupID,
		AuthorID: authorID,
		Title:    title,
		Body:     body,
		Visible:  visible,
	}
	created, err := s.postRepo.Create(dbctx.New(ctx), []*types.Post{post})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, groupID)
	return created[0], nil
}

func (s *postService) GetByID(ctx context.Context, id uuid.UUID) (*types.Post, error) {
	return s.postRepo.GetByID(dbctx.New(ctx), id)
}

func (s *postService) ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*types.Post, error) {
	return s.postRepo.ListByGroup(dbctx.New(ctx), groupID, limit, offset)
}

func (s *postService) SetVisible(ctx context.Context, id uuid.UUID, visible bool) error {
	post, err := s.postRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if err := s.postRepo.UpdateFields(dbctx.New(ctx), id, map[string]interface{}{"visible": visible}); err != nil {
		return err
	}
	s.invalidate(ctx, post.GroupID)
	return nil
}

func (s *postService) Delete(ctx context.Context, id uuid.UUID) error {
	post, err := s.postRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return err
	}
	if err := s.postRepo.Delete(dbctx.New(ctx), id); err != nil {
		return err
	}
	s.invalidate(ctx, post.GroupID)
	return nil
}

func (s *postService) Purge(ctx context.Context, id uuid.UUID) error {
	post, err := s.postRepo.GetByID(dbctx.New(ctx), id)
	if err != nil && !types.IsCode(err, types.CodeNotFound) {
		return err
	}
	if err := s.postRepo.Purge(dbctx.New(ctx), id); err != nil {
		return err
	}
	if post != nil {
		s.invalidate(ctx, post.GroupID)
	}
	return nil
}

func (s *postService) invalidate(ctx context.Context, groupID *uuid.UUID) {
	if s.stats == nil || groupID == nil {
		return
	}
	if err := s.stats.InvalidateGroup(ctx, *groupID); err != nil {
		s.log.Warn("stats cache invalidation failed", "group_id", *groupID, "error", err)
	}
}
