package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/rollup-backend/internal/data/repos/jobs"
	"github.com/yungbote/rollup-backend/internal/data/repos/rollup"
	"github.com/yungbote/rollup-backend/internal/data/repos/testutil"
	types "github.com/yungbote/rollup-backend/internal/domain"
	"github.com/yungbote/rollup-backend/internal/pkg/dbctx"
)

func wantGroupTotals(t *testing.T, ctx context.Context, tx *gorm.DB, id uuid.UUID, members, points, posts int64) {
	t.Helper()
	g := testutil.ReloadGroup(t, ctx, tx, id)
	if g.MembersCount != members || g.PointsSum != points || g.PostsCount != posts {
		t.Fatalf("group %s totals = (%d, %d, %d), want (%d, %d, %d)",
			id, g.MembersCount, g.PointsSum, g.PostsCount, members, points, posts)
	}
}

func wantAuthorPosts(t *testing.T, ctx context.Context, tx *gorm.DB, id uuid.UUID, posts int64) {
	t.Helper()
	m := testutil.ReloadMember(t, ctx, tx, id)
	if m.PostsCount != posts {
		t.Fatalf("member %s posts_count = %d, want %d", id, m.PostsCount, posts)
	}
}

func TestMemberLifecycleRollsUp(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := rollup.NewMemberRepo(db, testutil.Logger(t))

	group := testutil.SeedGroup(t, ctx, tx, "lifecycle")
	members, err := repo.Create(dbc, []*types.Member{{
		GroupID:     &group.ID,
		DisplayName: "ada",
		Active:      true,
		Points:      5,
	}})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	member := members[0]
	wantGroupTotals(t, ctx, tx, group.ID, 1, 5, 0)

	if err := repo.AddPoints(dbc, member.ID, 3); err != nil {
		t.Fatalf("add points: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 8, 0)
	if got := testutil.ReloadMember(t, ctx, tx, member.ID); got.Points != 8 {
		t.Fatalf("member points = %d, want 8", got.Points)
	}

	// Deactivating leaves the count but points still belong to the group.
	if err := repo.UpdateFields(dbc, member.ID, map[string]interface{}{"active": false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 0, 8, 0)

	if err := repo.UpdateFields(dbc, member.ID, map[string]interface{}{"active": true}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 8, 0)

	if err := repo.Delete(dbc, member.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 0, 0, 0)

	if err := repo.Restore(dbc, member.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 8, 0)

	if err := repo.Purge(dbc, member.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 0, 0, 0)
}

func TestMemberMoveBetweenGroups(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := rollup.NewMemberRepo(db, testutil.Logger(t))

	from := testutil.SeedGroup(t, ctx, tx, "from")
	to := testutil.SeedGroup(t, ctx, tx, "to")
	member := testutil.SeedMember(t, ctx, tx, &from.ID, true, 4)
	wantGroupTotals(t, ctx, tx, from.ID, 1, 4, 0)
	wantGroupTotals(t, ctx, tx, to.ID, 0, 0, 0)

	if err := repo.SetGroup(dbc, member.ID, &to.ID); err != nil {
		t.Fatalf("move: %v", err)
	}
	wantGroupTotals(t, ctx, tx, from.ID, 0, 0, 0)
	wantGroupTotals(t, ctx, tx, to.ID, 1, 4, 0)

	if err := repo.SetGroup(dbc, member.ID, nil); err != nil {
		t.Fatalf("detach: %v", err)
	}
	wantGroupTotals(t, ctx, tx, to.ID, 0, 0, 0)
}

func TestPostRollsUpBothParents(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := rollup.NewPostRepo(db, testutil.Logger(t))

	group := testutil.SeedGroup(t, ctx, tx, "board")
	author := testutil.SeedMember(t, ctx, tx, &group.ID, true, 0)

	posts, err := repo.Create(dbc, []*types.Post{{
		GroupID:  &group.ID,
		AuthorID: &author.ID,
		Title:    "hello",
		Visible:  true,
	}})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	post := posts[0]
	wantGroupTotals(t, ctx, tx, group.ID, 1, 0, 1)
	wantAuthorPosts(t, ctx, tx, author.ID, 1)

	if err := repo.UpdateFields(dbc, post.ID, map[string]interface{}{"visible": false}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 0, 0)
	wantAuthorPosts(t, ctx, tx, author.ID, 0)

	if err := repo.UpdateFields(dbc, post.ID, map[string]interface{}{"visible": true}); err != nil {
		t.Fatalf("show: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 0, 1)
	wantAuthorPosts(t, ctx, tx, author.ID, 1)

	if err := repo.Delete(dbc, post.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 0, 0)
	wantAuthorPosts(t, ctx, tx, author.ID, 0)

	// Purging an already soft-deleted post must not decrement twice.
	if err := repo.Purge(dbc, post.ID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	wantGroupTotals(t, ctx, tx, group.ID, 1, 0, 0)
	wantAuthorPosts(t, ctx, tx, author.ID, 0)
}

// A group purge cascades through the schema to its posts; an author living
// in a different group survives and must lose the posts_count those dying
// posts were feeding it.
func TestGroupPurgeSettlesSurvivingAuthor(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	groupRepo := rollup.NewGroupRepo(db, testutil.Logger(t))

	doomed := testutil.SeedGroup(t, ctx, tx, "doomed")
	home := testutil.SeedGroup(t, ctx, tx, "home")
	author := testutil.SeedMember(t, ctx, tx, &home.ID, true, 0)
	post := testutil.SeedPost(t, ctx, tx, &doomed.ID, &author.ID, true)

	wantGroupTotals(t, ctx, tx, doomed.ID, 0, 0, 1)
	wantGroupTotals(t, ctx, tx, home.ID, 1, 0, 0)
	wantAuthorPosts(t, ctx, tx, author.ID, 1)

	if err := groupRepo.Purge(dbc, doomed.ID); err != nil {
		t.Fatalf("purge group: %v", err)
	}

	var postRows int64
	if err := tx.WithContext(ctx).Unscoped().Model(&types.Post{}).
		Where("id = ?", post.ID).Count(&postRows).Error; err != nil {
		t.Fatalf("count posts: %v", err)
	}
	if postRows != 0 {
		t.Fatalf("post survived its group's purge")
	}
	wantAuthorPosts(t, ctx, tx, author.ID, 0)
	wantGroupTotals(t, ctx, tx, home.ID, 1, 0, 0)
}

func TestJobClaimTransitionsToRunning(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := jobs.NewJobRunRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, tx, "worker@example.com")
	group := testutil.SeedGroup(t, ctx, tx, "queued-work")
	created, err := repo.Create(dbc, []*types.JobRun{{
		OwnerUserID: owner.ID,
		JobType:     types.JobTypeGroupRecompute,
		EntityType:  types.Group{}.TableName(),
		EntityID:    &group.ID,
		Status:      types.JobStatusQueued,
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := created[0]

	claimed, err := repo.ClaimNextRunnable(dbc, 5, time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed = %+v, want job %s", claimed, job.ID)
	}

	fresh, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if fresh.Status != types.JobStatusRunning {
		t.Fatalf("status = %q, want running", fresh.Status)
	}
	if fresh.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", fresh.Attempts)
	}
	if fresh.LockedAt == nil || fresh.HeartbeatAt == nil {
		t.Fatalf("claim left lock columns empty")
	}

	// A running job with a fresh heartbeat is not runnable again.
	again, err := repo.ClaimNextRunnable(dbc, 5, time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("second claim returned %s, want nothing", again.ID)
	}
}

func TestHasRunnableForEntityDedupes(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := jobs.NewJobRunRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, tx, "dedupe@example.com")
	group := testutil.SeedGroup(t, ctx, tx, "dedupe")

	has, err := repo.HasRunnableForEntity(dbc, types.JobTypeGroupRecompute, types.Group{}.TableName(), group.ID)
	if err != nil {
		t.Fatalf("check empty: %v", err)
	}
	if has {
		t.Fatal("reported runnable job before any was enqueued")
	}

	if _, err := repo.Create(dbc, []*types.JobRun{{
		OwnerUserID: owner.ID,
		JobType:     types.JobTypeGroupRecompute,
		EntityType:  types.Group{}.TableName(),
		EntityID:    &group.ID,
		Status:      types.JobStatusQueued,
	}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	has, err = repo.HasRunnableForEntity(dbc, types.JobTypeGroupRecompute, types.Group{}.TableName(), group.ID)
	if err != nil {
		t.Fatalf("check queued: %v", err)
	}
	if !has {
		t.Fatal("queued job not reported as runnable")
	}
}
