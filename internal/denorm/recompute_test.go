package denorm

import (
	"context"
	"testing"
)

func TestRecomputeParentRepairsDrift(t *testing.T) {
	db, reg := openHookDB(t)
	g := seedHookGroup(t, db)
	seedHookMember(t, db, g, true, 10)
	seedHookMember(t, db, g, true, 5)
	seedHookMember(t, db, g, false, 3)

	// Overwrite the tracked columns directly, the way a missed write or a
	// bad migration would.
	err := db.Set(settingInternal, true).
		Table("test_group").
		Where("id = ?", g.ID).
		UpdateColumns(map[string]any{"members_count": 99, "points_sum": -7}).Error
	if err != nil {
		t.Fatalf("corrupt group: %v", err)
	}

	rec := NewRecomputer(reg, nil)
	values, err := rec.RecomputeParent(context.Background(), db, &testGroup{}, g.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if values["members_count"] != 2 || values["points_sum"] != 18 {
		t.Fatalf("recomputed values %+v, want members_count=2 points_sum=18", values)
	}
	wantTotals(t, db, g.ID, 2, 18)
}

func TestRecomputeParentIsIdempotent(t *testing.T) {
	db, reg := openHookDB(t)
	g := seedHookGroup(t, db)
	seedHookMember(t, db, g, true, 4)

	rec := NewRecomputer(reg, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := rec.RecomputeParent(ctx, db, &testGroup{}, g.ID); err != nil {
			t.Fatalf("recompute %d: %v", i, err)
		}
	}
	wantTotals(t, db, g.ID, 1, 4)
}

func TestRecomputeParentIgnoresSoftDeletedChildren(t *testing.T) {
	db, reg := openHookDB(t)
	g := seedHookGroup(t, db)
	m := seedHookMember(t, db, g, true, 9)
	if err := db.Delete(m).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	rec := NewRecomputer(reg, nil)
	values, err := rec.RecomputeParent(context.Background(), db, &testGroup{}, g.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if values["members_count"] != 0 || values["points_sum"] != 0 {
		t.Fatalf("recomputed values %+v, want zeros", values)
	}
}

func TestRecomputeAllWalksEveryParent(t *testing.T) {
	db, reg := openHookDB(t)
	a := seedHookGroup(t, db)
	b := seedHookGroup(t, db)
	seedHookMember(t, db, a, true, 2)
	seedHookMember(t, db, b, true, 3)
	seedHookMember(t, db, b, false, 1)

	err := db.Set(settingInternal, true).
		Table("test_group").
		Where("1 = 1").
		UpdateColumns(map[string]any{"members_count": 0, "points_sum": 0}).Error
	if err != nil {
		t.Fatalf("corrupt groups: %v", err)
	}

	rec := NewRecomputer(reg, nil)
	if err := rec.RecomputeAll(context.Background(), db, &testGroup{}, 1); err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	wantTotals(t, db, a.ID, 1, 2)
	wantTotals(t, db, b.ID, 1, 4)
}

func TestRecomputeParentUnknownModel(t *testing.T) {
	db, reg := openHookDB(t)
	rec := NewRecomputer(reg, nil)
	if _, err := rec.RecomputeParent(context.Background(), db, &testMember{}, "x"); err == nil {
		t.Fatal("expected error for model with no trackers")
	}
}
