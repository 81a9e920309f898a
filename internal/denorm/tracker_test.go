package denorm

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testGroup struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	MembersCount int64     `gorm:"column:members_count"`
	PointsSum    int64     `gorm:"column:points_sum"`
	DeletedAt    gorm.DeletedAt
}

func (testGroup) TableName() string { return "test_group" }

type testMember struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	GroupID   *uuid.UUID `gorm:"column:group_id"`
	Active    bool       `gorm:"column:active"`
	Points    int64      `gorm:"column:points"`
	DeletedAt gorm.DeletedAt
}

func (testMember) TableName() string { return "test_member" }

// fakeEnv resolves every parent as present unless listed missing, and
// serves reloads from a canned table.
type fakeEnv struct {
	missing map[string]bool
	reload  map[string]int64
	reloads int
}

func (e *fakeEnv) ResolveParent(_ context.Context, table, _ string, key any) error {
	k, ok := keyOf(key)
	if !ok {
		return ErrParentMissing
	}
	if e.missing[table+"/"+k] {
		return ErrParentMissing
	}
	return nil
}

func (e *fakeEnv) ReloadColumn(_ context.Context, table, _ string, key any, column string) (int64, error) {
	e.reloads++
	k, _ := keyOf(key)
	return e.reload[table+"/"+k+"/"+column], nil
}

func newTestTrackers(t *testing.T) (count *Tracker, sum *Tracker) {
	t.Helper()
	reg := NewRegistry()
	count = &Tracker{
		Parent:    &testGroup{},
		Field:     "members_count",
		Aggregate: Count(),
		Relation:  "group_id",
		Filter:    Filter{Cond: "active = ?", Args: []any{true}},
		Suitable:  func(s State) bool { return s.Bool("active") },
	}
	sum = &Tracker{
		Parent:    &testGroup{},
		Field:     "points_sum",
		Aggregate: Sum("points"),
		Relation:  "group_id",
	}
	if err := reg.Register(&testMember{}, count, sum); err != nil {
		t.Fatalf("register trackers: %v", err)
	}
	return count, sum
}

func memberState(id uuid.UUID, group *uuid.UUID, active bool, points int64) State {
	s := State{
		"id":         id,
		"active":     active,
		"points":     points,
		"deleted_at": nil,
	}
	if group != nil {
		s["group_id"] = *group
	} else {
		s["group_id"] = nil
	}
	return s
}

func singleDelta(t *testing.T, adjs []Adjustment, field string) (string, int64) {
	t.Helper()
	if len(adjs) != 1 {
		t.Fatalf("expected one adjustment, got %d: %+v", len(adjs), adjs)
	}
	d, ok := adjs[0].Deltas[field]
	if !ok {
		t.Fatalf("expected delta on %q, got %+v", field, adjs[0].Deltas)
	}
	k, _ := keyOf(adjs[0].Parent.Key)
	return k, d
}

func TestTrackChangesCreate(t *testing.T) {
	count, _ := newTestTrackers(t)
	env := &fakeEnv{}
	group := uuid.New()
	ctx := context.Background()

	adjs, err := count.TrackChanges(ctx, env, Change{
		Current: memberState(uuid.New(), &group, true, 0),
		Created: true,
	})
	if err != nil {
		t.Fatalf("track create: %v", err)
	}
	key, d := singleDelta(t, adjs, "members_count")
	if key != group.String() || d != 1 {
		t.Fatalf("expected +1 on %s, got %+d on %s", group, d, key)
	}
}

func TestTrackChangesCreateIneligible(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), &group, false, 0),
		Created: true,
	})
	if err != nil {
		t.Fatalf("track create: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("ineligible create should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesCreateWithoutParent(t *testing.T) {
	count, _ := newTestTrackers(t)

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), nil, true, 0),
		Created: true,
	})
	if err != nil {
		t.Fatalf("track create: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("parentless create should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesCreateParentGone(t *testing.T) {
	// Cascade deletion races resolve to "no parent", never an error.
	count, _ := newTestTrackers(t)
	group := uuid.New()
	env := &fakeEnv{missing: map[string]bool{"test_group/" + group.String(): true}}

	adjs, err := count.TrackChanges(context.Background(), env, Change{
		Current: memberState(uuid.New(), &group, true, 0),
		Created: true,
	})
	if err != nil {
		t.Fatalf("track create: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("missing parent should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesDelete(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), &group, true, 0),
		Deleted: true,
	})
	if err != nil {
		t.Fatalf("track delete: %v", err)
	}
	key, d := singleDelta(t, adjs, "members_count")
	if key != group.String() || d != -1 {
		t.Fatalf("expected -1 on %s, got %+d on %s", group, d, key)
	}
}

func TestTrackChangesDeleteIneligible(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), &group, false, 0),
		Deleted: true,
	})
	if err != nil {
		t.Fatalf("track delete: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("ineligible delete should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesEligibilityFlip(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()
	ctx := context.Background()

	on, err := count.TrackChanges(ctx, &fakeEnv{}, Change{
		Current:  memberState(id, &group, true, 0),
		Previous: memberState(id, &group, false, 0),
	})
	if err != nil {
		t.Fatalf("flip on: %v", err)
	}
	_, d := singleDelta(t, on, "members_count")
	if d != 1 {
		t.Fatalf("flip on should emit +1, got %+d", d)
	}

	off, err := count.TrackChanges(ctx, &fakeEnv{}, Change{
		Current:  memberState(id, &group, false, 0),
		Previous: memberState(id, &group, true, 0),
	})
	if err != nil {
		t.Fatalf("flip off: %v", err)
	}
	_, d = singleDelta(t, off, "members_count")
	if d != -1 {
		t.Fatalf("flip off should emit -1, got %+d", d)
	}
}

func TestTrackChangesCountNoFlipEmitsNothing(t *testing.T) {
	// The no-flip branch can only move sum trackers; a count's per-state
	// delta is constant so the difference is always zero.
	count, _ := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, &group, true, 10),
		Previous: memberState(id, &group, true, 5),
	})
	if err != nil {
		t.Fatalf("track update: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("count no-flip update should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesSumValueChange(t *testing.T) {
	_, sum := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()

	adjs, err := sum.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, &group, true, 10),
		Previous: memberState(id, &group, true, 4),
	})
	if err != nil {
		t.Fatalf("track update: %v", err)
	}
	_, d := singleDelta(t, adjs, "points_sum")
	if d != 6 {
		t.Fatalf("expected +6, got %+d", d)
	}
}

func TestTrackChangesSumUnchangedEmitsNothing(t *testing.T) {
	_, sum := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()

	adjs, err := sum.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, &group, true, 7),
		Previous: memberState(id, &group, true, 7),
	})
	if err != nil {
		t.Fatalf("track update: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("zero net delta should emit nothing, got %+v", adjs)
	}
}

func TestTrackChangesReparent(t *testing.T) {
	count, _ := newTestTrackers(t)
	oldGroup := uuid.New()
	newGroup := uuid.New()
	id := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, &newGroup, true, 0),
		Previous: memberState(id, &oldGroup, true, 0),
	})
	if err != nil {
		t.Fatalf("track reparent: %v", err)
	}
	if len(adjs) != 2 {
		t.Fatalf("expected two adjustments, got %+v", adjs)
	}
	byKey := map[string]int64{}
	for _, adj := range adjs {
		k, _ := keyOf(adj.Parent.Key)
		byKey[k] = adj.Deltas["members_count"]
	}
	if byKey[oldGroup.String()] != -1 || byKey[newGroup.String()] != 1 {
		t.Fatalf("expected -1 old / +1 new, got %+v", byKey)
	}
}

func TestTrackChangesReparentIneligibleSides(t *testing.T) {
	count, _ := newTestTrackers(t)
	oldGroup := uuid.New()
	newGroup := uuid.New()
	id := uuid.New()
	ctx := context.Background()

	// Previous ineligible: only the new side increments.
	adjs, err := count.TrackChanges(ctx, &fakeEnv{}, Change{
		Current:  memberState(id, &newGroup, true, 0),
		Previous: memberState(id, &oldGroup, false, 0),
	})
	if err != nil {
		t.Fatalf("track reparent: %v", err)
	}
	key, d := singleDelta(t, adjs, "members_count")
	if key != newGroup.String() || d != 1 {
		t.Fatalf("expected +1 on new group only, got %+d on %s", d, key)
	}

	// Current ineligible: only the old side decrements.
	adjs, err = count.TrackChanges(ctx, &fakeEnv{}, Change{
		Current:  memberState(id, &newGroup, false, 0),
		Previous: memberState(id, &oldGroup, true, 0),
	})
	if err != nil {
		t.Fatalf("track reparent: %v", err)
	}
	key, d = singleDelta(t, adjs, "members_count")
	if key != oldGroup.String() || d != -1 {
		t.Fatalf("expected -1 on old group only, got %+d on %s", d, key)
	}
}

func TestTrackChangesDetachFromGroup(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()

	adjs, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, nil, true, 0),
		Previous: memberState(id, &group, true, 0),
	})
	if err != nil {
		t.Fatalf("track detach: %v", err)
	}
	key, d := singleDelta(t, adjs, "members_count")
	if key != group.String() || d != -1 {
		t.Fatalf("expected -1 on old group, got %+d on %s", d, key)
	}
}

func TestTrackChangesSumReparentMovesValue(t *testing.T) {
	_, sum := newTestTrackers(t)
	oldGroup := uuid.New()
	newGroup := uuid.New()
	id := uuid.New()

	adjs, err := sum.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current:  memberState(id, &newGroup, true, 12),
		Previous: memberState(id, &oldGroup, true, 9),
	})
	if err != nil {
		t.Fatalf("track reparent: %v", err)
	}
	byKey := map[string]int64{}
	for _, adj := range adjs {
		k, _ := keyOf(adj.Parent.Key)
		byKey[k] = adj.Deltas["points_sum"]
	}
	if byKey[oldGroup.String()] != -9 || byKey[newGroup.String()] != 12 {
		t.Fatalf("expected -9 old / +12 new, got %+v", byKey)
	}
}

func TestTrackChangesSumReloadsExpression(t *testing.T) {
	// A source column assigned via gorm.Expr is reloaded so the pending
	// expression is never applied twice.
	_, sum := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()

	cur := memberState(id, &group, true, 0)
	cur["points"] = gorm.Expr("points + ?", 5)
	env := &fakeEnv{reload: map[string]int64{
		"test_member/" + id.String() + "/points": 15,
	}}

	adjs, err := sum.TrackChanges(context.Background(), env, Change{
		Current:  cur,
		Previous: memberState(id, &group, true, 10),
	})
	if err != nil {
		t.Fatalf("track update: %v", err)
	}
	if env.reloads != 1 {
		t.Fatalf("expected one reload, got %d", env.reloads)
	}
	_, d := singleDelta(t, adjs, "points_sum")
	if d != 5 {
		t.Fatalf("expected +5 from reloaded value, got %+d", d)
	}
}

func TestTrackChangesSoftDeletedStatesStayOut(t *testing.T) {
	count, sum := newTestTrackers(t)
	group := uuid.New()
	id := uuid.New()
	ctx := context.Background()

	buried := memberState(id, &group, true, 8)
	buried["deleted_at"] = "2026-01-02T15:04:05Z"

	// A dead row contributes nothing on delete.
	adjs, err := count.TrackChanges(ctx, &fakeEnv{}, Change{Current: buried, Deleted: true})
	if err != nil {
		t.Fatalf("track delete: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("soft-deleted delete should emit nothing, got %+v", adjs)
	}

	// Updating a dead row's source moves nothing.
	buried2 := buried.clone()
	buried2["points"] = int64(20)
	adjs, err = sum.TrackChanges(ctx, &fakeEnv{}, Change{Current: buried2, Previous: buried})
	if err != nil {
		t.Fatalf("track update: %v", err)
	}
	if len(adjs) != 0 {
		t.Fatalf("dead-row update should emit nothing, got %+v", adjs)
	}

	// Restoring flows through as an eligibility flip.
	restored := buried.clone()
	restored["deleted_at"] = nil
	adjs, err = count.TrackChanges(ctx, &fakeEnv{}, Change{Current: restored, Previous: buried})
	if err != nil {
		t.Fatalf("track restore: %v", err)
	}
	_, d := singleDelta(t, adjs, "members_count")
	if d != 1 {
		t.Fatalf("restore should emit +1, got %+d", d)
	}
}

func TestTrackChangesRejectsConflictingFlags(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()

	_, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), &group, true, 0),
		Created: true,
		Deleted: true,
	})
	if err == nil {
		t.Fatal("created+deleted change should error")
	}
}

func TestTrackChangesRequiresPreviousOnUpdate(t *testing.T) {
	count, _ := newTestTrackers(t)
	group := uuid.New()

	_, err := count.TrackChanges(context.Background(), &fakeEnv{}, Change{
		Current: memberState(uuid.New(), &group, true, 0),
	})
	if err == nil {
		t.Fatal("update without previous state should error")
	}
}
