package rollup

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/dberr"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type MemberRepo interface {
	Create(dbc dbctx.Context, members []*types.Member) ([]*types.Member, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Member, error)
	ListByGroup(dbc dbctx.Context, groupID uuid.UUID, limit, offset int) ([]*types.Member, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AddPoints(dbc dbctx.Context, id uuid.UUID, delta int64) error
	SetGroup(dbc dbctx.Context, id uuid.UUID, groupID *uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	Restore(dbc dbctx.Context, id uuid.UUID) error
	Purge(dbc dbctx.Context, id uuid.UUID) error
}

type memberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemberRepo(db *gorm.DB, baseLog *logger.Logger) MemberRepo {
	return &memberRepo{
		db:  db,
		log: baseLog.With("repo", "MemberRepo"),
	}
}

func (r *memberRepo) Create(dbc dbctx.Context, members []*types.Member) ([]*types.Member, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(members) == 0 {
		return []*types.Member{}, nil
	}
	for _, m := range members {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&members).Error; err != nil {
		return nil, dberr.MapError("MemberRepo.Create", err)
	}
	return members, nil
}

func (r *memberRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Member, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var member types.Member
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&member).Error; err != nil {
		return nil, dberr.MapError("MemberRepo.GetByID", err)
	}
	return &member, nil
}

func (r *memberRepo) ListByGroup(dbc dbctx.Context, groupID uuid.UUID, limit, offset int) ([]*types.Member, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Member
	err := transaction.WithContext(dbc.Ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, dberr.MapError("MemberRepo.ListByGroup", err)
	}
	return out, nil
}

// UpdateFields writes through the single-row instance path so the denorm
// callbacks see exactly one previous state.
func (r *memberRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Member{}).
		Where("id = ?", id).
		Updates(updates).Error
	return dberr.MapError("MemberRepo.UpdateFields", err)
}

// AddPoints applies a storage-evaluated increment to the member's points so
// concurrent awards compose; the rollup engine reloads the concrete value
// before adjusting the group sum.
func (r *memberRepo) AddPoints(dbc dbctx.Context, id uuid.UUID, delta int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Member{}).
		Where("id = ?", id).
		Update("points", gorm.Expr("points + ?", delta)).Error
	return dberr.MapError("MemberRepo.AddPoints", err)
}

func (r *memberRepo) SetGroup(dbc dbctx.Context, id uuid.UUID, groupID *uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Member{}).
		Where("id = ?", id).
		Update("group_id", groupID).Error
	return dberr.MapError("MemberRepo.SetGroup", err)
}

func (r *memberRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Member{}).Error
	return dberr.MapError("MemberRepo.Delete", err)
}

// Restore lifts a soft delete; the engine sees it as an eligibility flip
// and re-increments the aggregates the member feeds.
func (r *memberRepo) Restore(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Model(&types.Member{}).
		Where("id = ?", id).
		Update("deleted_at", nil).Error
	return dberr.MapError("MemberRepo.Restore", err)
}

func (r *memberRepo) Purge(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id = ?", id).
		Delete(&types.Member{}).Error
	return dberr.MapError("MemberRepo.Purge", err)
}
