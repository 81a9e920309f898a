package denorm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// openHookDB opens an isolated in-memory database with foreign keys on, the
// tracked tables created, and the plugin installed. Constraints are written
// by hand so the cascade behavior matches the real schema.
func openHookDB(t *testing.T) (*gorm.DB, *Registry) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: glogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ddl := []string{
		`CREATE TABLE test_group (
			id text PRIMARY KEY,
			members_count integer NOT NULL DEFAULT 0,
			points_sum integer NOT NULL DEFAULT 0,
			deleted_at datetime
		)`,
		`CREATE TABLE test_member (
			id text PRIMARY KEY,
			group_id text REFERENCES test_group(id) ON DELETE CASCADE,
			active boolean NOT NULL DEFAULT true,
			points integer NOT NULL DEFAULT 0,
			deleted_at datetime
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	reg := NewRegistry()
	reg.MustRegister(&testMember{},
		&Tracker{
			Parent:    &testGroup{},
			Field:     "members_count",
			Aggregate: Count(),
			Relation:  "group_id",
			Filter:    Filter{Cond: "active = ?", Args: []any{true}},
			Suitable:  func(s State) bool { return s.Bool("active") },
		},
		&Tracker{
			Parent:    &testGroup{},
			Field:     "points_sum",
			Aggregate: Sum("points"),
			Relation:  "group_id",
		},
	)
	if err := db.Use(New(reg)); err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	return db, reg
}

func seedHookGroup(t *testing.T, db *gorm.DB) *testGroup {
	t.Helper()
	g := &testGroup{ID: uuid.New()}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return g
}

func seedHookMember(t *testing.T, db *gorm.DB, group *testGroup, active bool, points int64) *testMember {
	t.Helper()
	m := &testMember{ID: uuid.New(), Active: active, Points: points}
	if group != nil {
		m.GroupID = &group.ID
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func groupTotals(t *testing.T, db *gorm.DB, id uuid.UUID) (members, points int64) {
	t.Helper()
	var g testGroup
	if err := db.Unscoped().First(&g, "id = ?", id).Error; err != nil {
		t.Fatalf("reload group: %v", err)
	}
	return g.MembersCount, g.PointsSum
}

func wantTotals(t *testing.T, db *gorm.DB, id uuid.UUID, members, points int64) {
	t.Helper()
	m, p := groupTotals(t, db, id)
	if m != members || p != points {
		t.Fatalf("group %s: members=%d points=%d, want members=%d points=%d", id, m, p, members, points)
	}
}

func TestPluginCreate(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)

	seedHookMember(t, db, g, true, 10)
	wantTotals(t, db, g.ID, 1, 10)

	// Inactive members stay out of the count but still feed the sum,
	// which carries no suitability callback.
	seedHookMember(t, db, g, false, 4)
	wantTotals(t, db, g.ID, 1, 14)

	seedHookMember(t, db, nil, true, 99)
	wantTotals(t, db, g.ID, 1, 14)
}

func TestPluginBatchCreate(t *testing.T) {
	db, _ := openHookDB(t)
	a := seedHookGroup(t, db)
	b := seedHookGroup(t, db)

	batch := []*testMember{
		{ID: uuid.New(), GroupID: &a.ID, Active: true, Points: 1},
		{ID: uuid.New(), GroupID: &a.ID, Active: true, Points: 2},
		{ID: uuid.New(), GroupID: &b.ID, Active: true, Points: 3},
	}
	if err := db.Create(&batch).Error; err != nil {
		t.Fatalf("batch create: %v", err)
	}
	wantTotals(t, db, a.ID, 2, 3)
	wantTotals(t, db, b.ID, 1, 3)
}

func TestPluginUpdateEligibilityFlip(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 5)

	if err := db.Model(m).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 5)

	if err := db.Model(m).Update("active", true).Error; err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	wantTotals(t, db, g.ID, 1, 5)
}

func TestPluginUpdateSumValue(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 5)

	if err := db.Model(m).Update("points", 12).Error; err != nil {
		t.Fatalf("update points: %v", err)
	}
	wantTotals(t, db, g.ID, 1, 12)
}

func TestPluginUpdateSumExpression(t *testing.T) {
	// An expression assignment is opaque until the row is re-read; the
	// tracked sum must still land on the stored result exactly once.
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 10)

	err := db.Model(m).Update("points", gorm.Expr("points + ?", 7)).Error
	if err != nil {
		t.Fatalf("update points: %v", err)
	}
	wantTotals(t, db, g.ID, 1, 17)

	var fresh testMember
	if err := db.First(&fresh, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("reload member: %v", err)
	}
	if fresh.Points != 17 {
		t.Fatalf("member points = %d, want 17", fresh.Points)
	}
}

func TestPluginUpdatesMultipleColumns(t *testing.T) {
	// One statement moving both an eligibility column and a sum source
	// must settle both trackers from the stored post-update row.
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 5)

	err := db.Model(m).Updates(map[string]interface{}{"active": false, "points": 9}).Error
	if err != nil {
		t.Fatalf("deactivate and bump: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 9)

	err = db.Model(m).Updates(map[string]interface{}{"active": true, "points": 2}).Error
	if err != nil {
		t.Fatalf("reactivate and drop: %v", err)
	}
	wantTotals(t, db, g.ID, 1, 2)
}

func TestPluginSaveStruct(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 5)

	var fresh testMember
	if err := db.First(&fresh, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("reload member: %v", err)
	}
	fresh.Active = false
	fresh.Points = 11
	if err := db.Save(&fresh).Error; err != nil {
		t.Fatalf("save: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 11)
}

func TestPluginReparent(t *testing.T) {
	db, _ := openHookDB(t)
	a := seedHookGroup(t, db)
	b := seedHookGroup(t, db)
	m := seedHookMember(t, db, a, true, 6)

	if err := db.Model(m).Update("group_id", b.ID).Error; err != nil {
		t.Fatalf("reparent: %v", err)
	}
	wantTotals(t, db, a.ID, 0, 0)
	wantTotals(t, db, b.ID, 1, 6)

	if err := db.Model(m).Update("group_id", nil).Error; err != nil {
		t.Fatalf("detach: %v", err)
	}
	wantTotals(t, db, b.ID, 0, 0)
}

func TestPluginSoftDeleteAndRestore(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 8)

	if err := db.Delete(m).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 0)

	// The row is hidden, not gone.
	var n int64
	if err := db.Unscoped().Model(&testMember{}).Where("id = ?", m.ID).Count(&n).Error; err != nil {
		t.Fatalf("count member: %v", err)
	}
	if n != 1 {
		t.Fatalf("soft-deleted member missing from table")
	}

	err := db.Unscoped().Model(&testMember{}).Where("id = ?", m.ID).Update("deleted_at", nil).Error
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	wantTotals(t, db, g.ID, 1, 8)
}

func TestPluginSoftDeleteTwiceIsIdempotent(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 8)

	if err := db.Delete(m).Error; err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := db.Delete(&testMember{}, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("second delete: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 0)
}

func TestPluginHardDeleteMember(t *testing.T) {
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 8)

	if err := db.Unscoped().Delete(m).Error; err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 0)
}

func TestPluginHardDeleteSoftDeletedMember(t *testing.T) {
	// Purging an already-hidden row must not decrement a second time.
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 8)

	if err := db.Delete(m).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := db.Unscoped().Delete(&testMember{}, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("purge: %v", err)
	}
	wantTotals(t, db, g.ID, 0, 0)
}

func TestPluginHardDeleteParentCascades(t *testing.T) {
	db, _ := openHookDB(t)
	doomed := seedHookGroup(t, db)
	other := seedHookGroup(t, db)
	seedHookMember(t, db, doomed, true, 3)
	seedHookMember(t, db, doomed, true, 4)
	keep := seedHookMember(t, db, other, true, 5)

	if err := db.Unscoped().Delete(doomed).Error; err != nil {
		t.Fatalf("hard delete group: %v", err)
	}

	var members int64
	if err := db.Unscoped().Model(&testMember{}).Count(&members).Error; err != nil {
		t.Fatalf("count members: %v", err)
	}
	if members != 1 {
		t.Fatalf("cascade left %d members, want 1", members)
	}
	wantTotals(t, db, other.ID, 1, keep.Points)
}

func TestPluginBulkUpdateLeftUntracked(t *testing.T) {
	// Multi-row writes are deliberately out of the incremental path; the
	// tracked values go stale until a recompute repairs them.
	db, _ := openHookDB(t)
	g := seedHookGroup(t, db)
	seedHookMember(t, db, g, true, 1)
	seedHookMember(t, db, g, true, 2)

	err := db.Model(&testMember{}).Where("group_id = ?", g.ID).Update("active", false).Error
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	wantTotals(t, db, g.ID, 2, 3)
}
