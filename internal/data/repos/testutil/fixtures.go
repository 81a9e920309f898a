package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: "pw",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Group {
	tb.Helper()
	g := &types.Group{
		ID:   uuid.New(),
		Name: name,
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

func SeedMember(tb testing.TB, ctx context.Context, tx *gorm.DB, groupID *uuid.UUID, active bool, points int64) *types.Member {
	tb.Helper()
	m := &types.Member{
		ID:          uuid.New(),
		GroupID:     groupID,
		DisplayName: "member",
		Active:      active,
		Points:      points,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
	return m
}

func SeedPost(tb testing.TB, ctx context.Context, tx *gorm.DB, groupID, authorID *uuid.UUID, visible bool) *types.Post {
	tb.Helper()
	p := &types.Post{
		ID:       uuid.New(),
		GroupID:  groupID,
		AuthorID: authorID,
		Title:    "post",
		Visible:  visible,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed post: %v", err)
	}
	return p
}

// ReloadGroup fetches the group's current aggregate columns.
func ReloadGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, id uuid.UUID) *types.Group {
	tb.Helper()
	var g types.Group
	if err := tx.WithContext(ctx).Unscoped().Where("id = ?", id).First(&g).Error; err != nil {
		tb.Fatalf("reload group: %v", err)
	}
	return &g
}

// ReloadMember fetches the member's current state, soft-deleted included.
func ReloadMember(tb testing.TB, ctx context.Context, tx *gorm.DB, id uuid.UUID) *types.Member {
	tb.Helper()
	var m types.Member
	if err := tx.WithContext(ctx).Unscoped().Where("id = ?", id).First(&m).Error; err != nil {
		tb.Fatalf("reload member: %v", err)
	}
	return &m
}
