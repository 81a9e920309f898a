package denorm

import (
	"context"
	"errors"
	"fmt"
)

// ErrParentMissing is the distinguished resolution outcome for a relation
// that points at a row which no longer exists, or is queued for deletion in
// the cascade currently being collected. Change tracking recovers from it
// locally by emitting nothing for that side.
var ErrParentMissing = errors.New("denorm: parent row does not exist")

// Env supplies the storage lookups change tracking may need. Implementations
// must run against the same transaction as the triggering mutation.
type Env interface {
	// ResolveParent reports whether the referenced parent row exists,
	// returning ErrParentMissing when it does not.
	ResolveParent(ctx context.Context, table, keyColumn string, key any) error
	// ReloadColumn re-reads a single column's concrete value for a row,
	// used when the in-memory value is an unresolved SQL expression.
	ReloadColumn(ctx context.Context, table, keyColumn string, key any, column string) (int64, error)
}

// Filter is a declarative SQL condition restricting which child rows feed an
// aggregate. It is consulted only by recompute scans; incremental decisions
// go through the Suitable callback.
type Filter struct {
	Cond string
	Args []any
}

// Tracker binds one parent aggregate column to a reducible function over
// child rows. Trackers are declared once, registered against the child model
// and immutable afterwards.
type Tracker struct {
	// Parent is the model owning the tracked column.
	Parent any
	// Field is the parent column receiving the aggregate, by DB name.
	Field string
	// Aggregate selects count or sum semantics.
	Aggregate Aggregate
	// Filter scopes recompute scans. Leave zero to scan every live row.
	Filter Filter
	// Suitable decides per child state whether the row feeds the
	// aggregate. Nil means every live row counts. Rows carrying a
	// non-null soft-delete marker are never suitable regardless.
	Suitable func(State) bool
	// Relation is the child column holding the parent key, by DB name.
	Relation string

	// Bound at registration.
	parent tableRef
	child  tableRef
}

// tableRef is the schema identity a tracker needs for SQL targeting.
type tableRef struct {
	table      string
	keyColumn  string
	softDelete string
}

// Change describes one child mutation. Previous is nil exactly when Created
// is set; Created and Deleted are mutually exclusive with each other and
// with the plain-update case (both false).
type Change struct {
	Current  State
	Previous State
	Created  bool
	Deleted  bool
}

// TrackChanges computes the signed adjustments this tracker owes for one
// child mutation: at most two, one per potentially distinct parent row.
// Zero deltas and absent parents are filtered out here and never reach the
// apply step. It is a pure function of its inputs plus the Env lookups.
func (t *Tracker) TrackChanges(ctx context.Context, env Env, ch Change) ([]Adjustment, error) {
	if ch.Created && ch.Deleted {
		return nil, fmt.Errorf("denorm: change on %s flags both created and deleted", t.child.table)
	}

	curOK := t.eligible(ch.Current)
	if ch.Created || ch.Deleted {
		if !curOK {
			return nil, nil
		}
		delta, err := t.delta(ctx, env, ch.Current)
		if err != nil {
			return nil, err
		}
		if ch.Deleted {
			delta = -delta
		}
		return t.collect(ctx, env, nil, ch.Current, delta)
	}

	if ch.Previous == nil {
		return nil, fmt.Errorf("denorm: update on %s is missing its previous state", t.child.table)
	}

	prevOK := t.eligible(ch.Previous)
	curKey, curHas := keyOf(ch.Current[t.Relation])
	prevKey, prevHas := keyOf(ch.Previous[t.Relation])

	if curKey == prevKey && curHas == prevHas {
		// Same parent: an eligibility flip moves the current delta in or
		// out; otherwise only a source-value change can move the column.
		sign := btoi(curOK) - btoi(prevOK)
		if sign != 0 {
			delta, err := t.delta(ctx, env, ch.Current)
			if err != nil {
				return nil, err
			}
			return t.collect(ctx, env, nil, ch.Current, int64(sign)*delta)
		}
		if dead(ch.Current, t.child.softDelete) && dead(ch.Previous, t.child.softDelete) {
			return nil, nil
		}
		delta, err := t.delta(ctx, env, ch.Current)
		if err != nil {
			return nil, err
		}
		prevDelta, err := t.delta(ctx, env, ch.Previous)
		if err != nil {
			return nil, err
		}
		return t.collect(ctx, env, nil, ch.Current, delta-prevDelta)
	}

	// Parent changed: each side is its own create/delete, suppressed when
	// its own state was ineligible.
	var out []Adjustment
	if prevOK {
		prevDelta, err := t.delta(ctx, env, ch.Previous)
		if err != nil {
			return nil, err
		}
		out, err = t.collect(ctx, env, out, ch.Previous, -prevDelta)
		if err != nil {
			return nil, err
		}
	}
	if curOK {
		delta, err := t.delta(ctx, env, ch.Current)
		if err != nil {
			return nil, err
		}
		out, err = t.collect(ctx, env, out, ch.Current, delta)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collect appends one adjustment against the parent referenced by s, unless
// the delta is zero or the parent is absent or already gone.
func (t *Tracker) collect(ctx context.Context, env Env, out []Adjustment, s State, delta int64) ([]Adjustment, error) {
	if delta == 0 {
		return out, nil
	}
	key, ok := keyOf(s[t.Relation])
	if !ok {
		return out, nil
	}
	err := env.ResolveParent(ctx, t.parent.table, t.parent.keyColumn, key)
	if errors.Is(err, ErrParentMissing) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	return append(out, Adjustment{
		Parent: ParentRef{Table: t.parent.table, KeyColumn: t.parent.keyColumn, Key: key},
		Deltas: map[string]int64{t.Field: delta},
	}), nil
}

func (t *Tracker) eligible(s State) bool {
	if s == nil {
		return false
	}
	if dead(s, t.child.softDelete) {
		return false
	}
	if t.Suitable == nil {
		return true
	}
	return t.Suitable(s)
}

func dead(s State, softDelete string) bool {
	if softDelete == "" {
		return false
	}
	v, ok := s[softDelete]
	if !ok {
		return false
	}
	return !isNullValue(v)
}

// delta is the contribution of a single state: 1 for counts, the source
// column's value for sums. A source holding an unresolved expression is
// reloaded from storage first so the expression is never applied twice.
func (t *Tracker) delta(ctx context.Context, env Env, s State) (int64, error) {
	switch t.Aggregate.Kind {
	case AggregateCount:
		return 1, nil
	case AggregateSum:
		v := s[t.Aggregate.Source]
		if isExprValue(v) {
			pk := s[t.child.keyColumn]
			if pk == nil {
				return 0, fmt.Errorf("denorm: cannot reload %s.%s without a primary key", t.child.table, t.Aggregate.Source)
			}
			loaded, err := env.ReloadColumn(ctx, t.child.table, t.child.keyColumn, pk, t.Aggregate.Source)
			if err != nil {
				return 0, err
			}
			s[t.Aggregate.Source] = loaded
			return loaded, nil
		}
		n, ok := toInt64(v)
		if !ok {
			return 0, fmt.Errorf("denorm: %s.%s value %T is not numeric", t.child.table, t.Aggregate.Source, v)
		}
		return n, nil
	default:
		// Registration validates the aggregate kind; reaching this is a
		// wiring bug, not a data condition.
		panic(fmt.Sprintf("denorm: unsupported aggregate %s on %s.%s", t.Aggregate, t.parent.table, t.Field))
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
