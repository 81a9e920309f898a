package rollup

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/dberr"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type GroupRepo interface {
	Create(dbc dbctx.Context, groups []*types.Group) ([]*types.Group, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Group, error)
	List(dbc dbctx.Context, ownerUserID *uuid.UUID, limit, offset int) ([]*types.Group, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Purge(dbc dbctx.Context, id uuid.UUID) error
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{
		db:  db,
		log: baseLog.With("repo", "GroupRepo"),
	}
}

func (r *groupRepo) Create(dbc dbctx.Context, groups []*types.Group) ([]*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(groups) == 0 {
		return []*types.Group{}, nil
	}
	for _, g := range groups {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&groups).Error; err != nil {
		return nil, dberr.MapError("GroupRepo.Create", err)
	}
	return groups, nil
}

func (r *groupRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var group types.Group
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&group).Error; err != nil {
		return nil, dberr.MapError("GroupRepo.GetByID", err)
	}
	return &group, nil
}

func (r *groupRepo) List(dbc dbctx.Context, ownerUserID *uuid.UUID, limit, offset int) ([]*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if ownerUserID != nil {
		q = q.Where("owner_user_id = ?", *ownerUserID)
	}
	var out []*types.Group
	if err := q.Find(&out).Error; err != nil {
		return nil, dberr.MapError("GroupRepo.List", err)
	}
	return out, nil
}

func (r *groupRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Group{}).
		Where("id = ?", id).
		Updates(updates).Error
	return dberr.MapError("GroupRepo.UpdateFields", err)
}

func (r *groupRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Group{}).Error
	return dberr.MapError("GroupRepo.Delete", err)
}

// Purge removes the row physically; the schema cascades to members and
// posts, and the denorm engine settles surviving aggregates before the
// DELETE executes.
func (r *groupRepo) Purge(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&types.Group{}).Error
	return dberr.MapError("GroupRepo.Purge", err)
}
