package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a child of Group through group_id (nullable, members can be
// detached) and itself a parent of Post through author_id. Only active
// members feed group.members_count; points feed group.points_sum
// unconditionally.
type Member struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID     *uuid.UUID `gorm:"type:uuid;column:group_id;index" json:"group_id,omitempty"`
	DisplayName string     `gorm:"not null;column:display_name" json:"display_name"`
	Active      bool       `gorm:"column:active;not null;default:true" json:"active"`
	Points      int64      `gorm:"column:points;not null;default:0" json:"points"`

	PostsCount int64 `gorm:"column:posts_count;not null;default:0" json:"posts_count"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Member) TableName() string { return "member" }
