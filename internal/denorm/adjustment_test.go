package denorm

import (
	"testing"

	"github.com/google/uuid"
)

func ref(table string, key uuid.UUID) ParentRef {
	return ParentRef{Table: table, KeyColumn: "id", Key: key}
}

func TestMergeFoldsSameParent(t *testing.T) {
	g := uuid.New()
	merged := Merge([]Adjustment{
		{Parent: ref("test_group", g), Deltas: map[string]int64{"members_count": 1}},
		{Parent: ref("test_group", g), Deltas: map[string]int64{"members_count": 1, "points_sum": 5}},
		{Parent: ref("test_group", g), Deltas: map[string]int64{"points_sum": -2}},
	})
	if len(merged) != 1 {
		t.Fatalf("expected one folded adjustment, got %+v", merged)
	}
	d := merged[0].Deltas
	if d["members_count"] != 2 || d["points_sum"] != 3 {
		t.Fatalf("unexpected folded deltas %+v", d)
	}
}

func TestMergeKeepsDistinctParentsApart(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	merged := Merge([]Adjustment{
		{Parent: ref("test_group", a), Deltas: map[string]int64{"members_count": -1}},
		{Parent: ref("test_group", b), Deltas: map[string]int64{"members_count": 1}},
	})
	if len(merged) != 2 {
		t.Fatalf("expected two adjustments, got %+v", merged)
	}
	if merged[0].Deltas["members_count"] != -1 || merged[1].Deltas["members_count"] != 1 {
		t.Fatalf("deltas crossed parents: %+v", merged)
	}
}

func TestMergeDropsCancelledColumns(t *testing.T) {
	g := uuid.New()
	merged := Merge([]Adjustment{
		{Parent: ref("test_group", g), Deltas: map[string]int64{"members_count": 1, "points_sum": 4}},
		{Parent: ref("test_group", g), Deltas: map[string]int64{"members_count": -1}},
	})
	if len(merged) != 1 {
		t.Fatalf("expected one adjustment, got %+v", merged)
	}
	if _, live := merged[0].Deltas["members_count"]; live {
		t.Fatalf("cancelled column survived: %+v", merged[0].Deltas)
	}
	if merged[0].Deltas["points_sum"] != 4 {
		t.Fatalf("surviving delta wrong: %+v", merged[0].Deltas)
	}
}

func TestMergeDropsFullyCancelledParent(t *testing.T) {
	g := uuid.New()
	merged := Merge([]Adjustment{
		{Parent: ref("test_group", g), Deltas: map[string]int64{"points_sum": 4}},
		{Parent: ref("test_group", g), Deltas: map[string]int64{"points_sum": -4}},
	})
	if len(merged) != 0 {
		t.Fatalf("expected nothing after full cancellation, got %+v", merged)
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	adjs := []Adjustment{
		{Parent: ref("test_group", a), Deltas: map[string]int64{"points_sum": 3}},
		{Parent: ref("test_group", b), Deltas: map[string]int64{"points_sum": 7}},
		{Parent: ref("test_group", a), Deltas: map[string]int64{"points_sum": -1}},
	}
	reversed := []Adjustment{adjs[2], adjs[1], adjs[0]}

	sum := func(in []Adjustment) map[string]int64 {
		out := map[string]int64{}
		for _, adj := range Merge(in) {
			k, _ := keyOf(adj.Parent.Key)
			out[k] = adj.Deltas["points_sum"]
		}
		return out
	}
	fwd, bwd := sum(adjs), sum(reversed)
	if len(fwd) != 2 || fwd[a.String()] != bwd[a.String()] || fwd[b.String()] != bwd[b.String()] {
		t.Fatalf("merge not order independent: %+v vs %+v", fwd, bwd)
	}
}
