package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a child of both Group (group_id) and Member (author_id). Visible
// posts feed group.posts_count and member.posts_count.
type Post struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GroupID  *uuid.UUID `gorm:"type:uuid;column:group_id;index" json:"group_id,omitempty"`
	AuthorID *uuid.UUID `gorm:"type:uuid;column:author_id;index" json:"author_id,omitempty"`
	Title    string     `gorm:"not null;column:title" json:"title"`
	Body     string     `gorm:"column:body" json:"body"`
	Visible  bool       `gorm:"column:visible;not null;default:true" json:"visible"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Post) TableName() string { return "post" }
