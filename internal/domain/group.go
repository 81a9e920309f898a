package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Group is a parent entity carrying denormalized rollup columns. At rest
// each tracked column equals the aggregate over its live, eligible children:
// members_count counts active members, points_sum totals member points,
// posts_count counts visible posts. The denorm engine maintains them
// incrementally; Recompute rebuilds them from scratch.
type Group struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID *uuid.UUID `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id,omitempty"`
	Name        string     `gorm:"not null;column:name" json:"name"`

	MembersCount int64 `gorm:"column:members_count;not null;default:0" json:"members_count"`
	PointsSum    int64 `gorm:"column:points_sum;not null;default:0" json:"points_sum"`
	PostsCount   int64 `gorm:"column:posts_count;not null;default:0" json:"posts_count"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Group) TableName() string { return "group" }
