package rollup

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/dberr"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type PostRepo interface {
	Create(dbc dbctx.Context, posts []*types.Post) ([]*types.Post, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Post, error)
	ListByGroup(dbc dbctx.Context, groupID uuid.UUID, limit, offset int) ([]*types.Post, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Purge(dbc dbctx.Context, id uuid.UUID) error
}

type postRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return &postRepo{
		db:  db,
		log: baseLog.With("repo", "PostRepo"),
	}
}

func (r *postRepo) Create(dbc dbctx.Context, posts []*types.Post) ([]*types.Post, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(posts) == 0 {
		return []*types.Post{}, nil
	}
	for _, p := range posts {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&posts).Error; err != nil {
		return nil, dberr.MapError("PostRepo.Create", err)
	}
	return posts, nil
}

func (r *postRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Post, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var post types.Post
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&post).Error; err != nil {
		return nil, dberr.MapError("PostRepo.GetByID", err)
	}
	return &post, nil
}

func (r *postRepo) ListByGroup(dbc dbctx.Context, groupID uuid.UUID, limit, offset int) ([]*types.Post, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Post
	err := transaction.WithContext(dbc.Ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, dberr.MapError("PostRepo.ListByGroup", err)
	}
	return out, nil
}

func (r *postRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Post{}).
		Where("id = ?", id).
		Updates(updates).Error
	return dberr.MapError("PostRepo.UpdateFields", err)
}

func (r *postRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Post{}).Error
	return dberr.MapError("PostRepo.Delete", err)
}

func (r *postRepo) Purge(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&types.Post{}).Error
	return dberr.MapError("PostRepo.Purge", err)
}
