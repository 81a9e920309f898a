package denorm

import (
	"strings"
	"testing"
)

func validTracker() *Tracker {
	return &Tracker{
		Parent:    &testGroup{},
		Field:     "members_count",
		Aggregate: Count(),
		Relation:  "group_id",
	}
}

func TestRegisterRejectsUnknownRelation(t *testing.T) {
	tr := validTracker()
	tr.Relation = "no_such_column"
	err := NewRegistry().Register(&testMember{}, tr)
	if err == nil || !strings.Contains(err.Error(), "no_such_column") {
		t.Fatalf("expected relation column error, got %v", err)
	}
}

func TestRegisterRejectsUnknownTrackedColumn(t *testing.T) {
	tr := validTracker()
	tr.Field = "no_such_column"
	err := NewRegistry().Register(&testMember{}, tr)
	if err == nil || !strings.Contains(err.Error(), "no_such_column") {
		t.Fatalf("expected tracked column error, got %v", err)
	}
}

func TestRegisterRejectsUnknownSumSource(t *testing.T) {
	tr := validTracker()
	tr.Field = "points_sum"
	tr.Aggregate = Sum("no_such_column")
	err := NewRegistry().Register(&testMember{}, tr)
	if err == nil || !strings.Contains(err.Error(), "no_such_column") {
		t.Fatalf("expected sum source error, got %v", err)
	}
}

func TestRegisterRejectsBadAggregate(t *testing.T) {
	tr := validTracker()
	tr.Aggregate = Aggregate{Kind: AggregateKind(99)}
	if err := NewRegistry().Register(&testMember{}, tr); err == nil {
		t.Fatal("expected aggregate kind error")
	}

	tr = validTracker()
	tr.Aggregate = Sum("")
	if err := NewRegistry().Register(&testMember{}, tr); err == nil {
		t.Fatal("expected empty sum source error")
	}
}

func TestRegisterRejectsDuplicateTrackedColumn(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&testMember{}, validTracker()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// The same parent column cannot be fed twice, even by another child.
	err := reg.Register(&testGroup{}, &Tracker{
		Parent:    &testGroup{},
		Field:     "members_count",
		Aggregate: Count(),
		Relation:  "id",
	})
	if err == nil || !strings.Contains(err.Error(), "already bound") {
		t.Fatalf("expected duplicate column error, got %v", err)
	}
}

func TestRegisterRejectsDuplicateChild(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&testMember{}, validTracker()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	tr := validTracker()
	tr.Field = "points_sum"
	if err := reg.Register(&testMember{}, tr); err == nil {
		t.Fatal("expected duplicate child registration error")
	}
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	reg := NewRegistry()
	reg.freeze()
	if err := reg.Register(&testMember{}, validTracker()); err == nil {
		t.Fatal("expected frozen registry error")
	}
}

func TestRegisterBindsSchemaIdentity(t *testing.T) {
	reg := NewRegistry()
	tr := validTracker()
	if err := reg.Register(&testMember{}, tr); err != nil {
		t.Fatalf("register: %v", err)
	}
	if tr.child.table != "test_member" || tr.child.keyColumn != "id" {
		t.Fatalf("child ref not bound: %+v", tr.child)
	}
	if tr.child.softDelete != "deleted_at" {
		t.Fatalf("soft delete column not detected: %+v", tr.child)
	}
	if tr.parent.table != "test_group" || tr.parent.keyColumn != "id" {
		t.Fatalf("parent ref not bound: %+v", tr.parent)
	}
	if got := reg.lookup("test_member"); got == nil || len(got.trackers) != 1 {
		t.Fatalf("lookup after register: %+v", got)
	}
	if links := reg.childLinks("test_group"); len(links) != 1 || links[0].relation != "group_id" {
		t.Fatalf("cascade link not recorded: %+v", links)
	}
	if trackers := reg.trackersFor("test_group"); len(trackers) != 1 {
		t.Fatalf("parent index not recorded: %+v", trackers)
	}
}
