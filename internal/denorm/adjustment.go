package denorm

import (
	"context"
	"sort"

	"gorm.io/gorm"
)

// ParentRef identifies one parent row by table, key column and key value.
type ParentRef struct {
	Table     string
	KeyColumn string
	Key       any
}

// Adjustment is a set of signed additive deltas targeting one parent row.
// It is always relative to the stored value, never a replacement.
type Adjustment struct {
	Parent ParentRef
	Deltas map[string]int64
}

// Merge folds adjustments targeting the same parent row into one, dropping
// columns whose folded delta is zero. Order of the input does not affect the
// folded result; addition commutes.
func Merge(adjs []Adjustment) []Adjustment {
	if len(adjs) <= 1 {
		return adjs
	}
	type slot struct {
		ref    ParentRef
		deltas map[string]int64
	}
	index := map[string]*slot{}
	var order []string
	for _, adj := range adjs {
		k, ok := keyOf(adj.Parent.Key)
		if !ok {
			continue
		}
		id := adj.Parent.Table + "\x00" + k
		s, seen := index[id]
		if !seen {
			s = &slot{ref: adj.Parent, deltas: map[string]int64{}}
			index[id] = s
			order = append(order, id)
		}
		for col, d := range adj.Deltas {
			s.deltas[col] += d
		}
	}
	out := make([]Adjustment, 0, len(order))
	for _, id := range order {
		s := index[id]
		deltas := map[string]int64{}
		for col, d := range s.deltas {
			if d != 0 {
				deltas[col] = d
			}
		}
		if len(deltas) == 0 {
			continue
		}
		out = append(out, Adjustment{Parent: s.ref, Deltas: deltas})
	}
	return out
}

// ApplyAdjustments issues one additive UPDATE per distinct parent row, with
// the addition evaluated by the storage engine (SET col = col + ?) so
// concurrent writers compose regardless of interleaving. tx must be the
// transaction of the triggering mutation; statements skip model hooks and do
// not touch bookkeeping columns.
func ApplyAdjustments(ctx context.Context, tx *gorm.DB, adjs []Adjustment) error {
	for _, adj := range Merge(adjs) {
		sets := make(map[string]any, len(adj.Deltas))
		cols := make([]string, 0, len(adj.Deltas))
		for col := range adj.Deltas {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			sets[col] = gorm.Expr(col+" + ?", adj.Deltas[col])
		}
		err := internalSession(tx, ctx).
			Table(adj.Parent.Table).
			Where(adj.Parent.KeyColumn+" = ?", adj.Parent.Key).
			UpdateColumns(sets).Error
		if err != nil {
			return err
		}
	}
	return nil
}
