package denorm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

// Recomputer rebuilds tracked columns from full scans of the current child
// rows. It is the authoritative overwrite path, used for initialization,
// manual repair and whenever no incremental baseline exists, and the only
// writer allowed to replace a tracked value instead of adding to it.
type Recomputer struct {
	reg *Registry
	log *logger.Logger
}

func NewRecomputer(reg *Registry, baseLog *logger.Logger) *Recomputer {
	r := &Recomputer{reg: reg}
	if baseLog != nil {
		r.log = baseLog.With("component", "denorm.Recomputer")
	}
	return r
}

// RecomputeParent recalculates every tracked column on one parent row and
// overwrites the stored values, returning the fresh values by column. The
// read-aggregate-write sequence runs in its own transaction under a parent
// row lock so concurrent additive writers cannot slip between the scan and
// the overwrite.
func (r *Recomputer) RecomputeParent(ctx context.Context, db *gorm.DB, parent any, key any) (map[string]int64, error) {
	ref, err := r.reg.parentRef(parent)
	if err != nil {
		return nil, err
	}
	trackers := r.reg.trackersFor(ref.table)
	if len(trackers) == 0 {
		return nil, fmt.Errorf("denorm: no trackers registered against %q", ref.table)
	}

	values := map[string]int64{}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.lockParent(ctx, tx, ref, key); err != nil {
			return err
		}
		sets := map[string]any{}
		for _, t := range trackers {
			v, err := r.scan(ctx, tx, t, key)
			if err != nil {
				return err
			}
			values[t.Field] = v
			sets[t.Field] = v
		}
		return tx.Session(&gorm.Session{NewDB: true, SkipHooks: true}).
			WithContext(ctx).
			Set(settingInternal, true).
			Table(ref.table).
			Where(ref.keyColumn+" = ?", key).
			UpdateColumns(sets).Error
	})
	if err != nil {
		return nil, err
	}
	if r.log != nil {
		r.log.Debug("recomputed parent", "table", ref.table, "key", key, "values", values)
	}
	return values, nil
}

// RecomputeAll walks every parent row, soft-deleted ones included, and
// recomputes each in its own transaction, fanning out over a bounded group.
func (r *Recomputer) RecomputeAll(ctx context.Context, db *gorm.DB, parent any, batchSize int) error {
	ref, err := r.reg.parentRef(parent)
	if err != nil {
		return err
	}
	if len(r.reg.trackersFor(ref.table)) == 0 {
		return fmt.Errorf("denorm: no trackers registered against %q", ref.table)
	}
	if batchSize < 1 {
		batchSize = 200
	}

	var last any
	for {
		var rows []map[string]any
		q := db.Session(&gorm.Session{NewDB: true}).
			WithContext(ctx).
			Set(settingInternal, true).
			Table(ref.table).
			Select(ref.keyColumn).
			Order(ref.keyColumn).
			Limit(batchSize)
		if last != nil {
			q = q.Where(ref.keyColumn+" > ?", last)
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, row := range rows {
			key := row[ref.keyColumn]
			g.Go(func() error {
				_, err := r.RecomputeParent(gctx, db, parent, key)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		last = rows[len(rows)-1][ref.keyColumn]
		if len(rows) < batchSize {
			return nil
		}
	}
}

func (r *Recomputer) lockParent(ctx context.Context, tx *gorm.DB, ref tableRef, key any) error {
	q := tx.Session(&gorm.Session{NewDB: true}).
		WithContext(ctx).
		Set(settingInternal, true).
		Table(ref.table).
		Select(ref.keyColumn).
		Where(ref.keyColumn+" = ?", key)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	row := map[string]any{}
	return q.Take(&row).Error
}

// scan runs the tracker's declarative filter against the live child rows of
// one parent. The filter, not the in-process callback, scopes bulk scans.
func (r *Recomputer) scan(ctx context.Context, tx *gorm.DB, t *Tracker, key any) (int64, error) {
	q := tx.Session(&gorm.Session{NewDB: true}).
		WithContext(ctx).
		Set(settingInternal, true).
		Table(t.child.table).
		Where(t.Relation+" = ?", key)
	if t.child.softDelete != "" {
		q = q.Where(t.child.softDelete + " IS NULL")
	}
	if t.Filter.Cond != "" {
		q = q.Where(t.Filter.Cond, t.Filter.Args...)
	}
	switch t.Aggregate.Kind {
	case AggregateCount:
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, err
		}
		return n, nil
	case AggregateSum:
		var n int64
		err := q.Select("COALESCE(SUM(" + t.Aggregate.Source + "), 0)").Scan(&n).Error
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		panic(fmt.Sprintf("denorm: unsupported aggregate %s on %s.%s", t.Aggregate, t.parent.table, t.Field))
	}
}
