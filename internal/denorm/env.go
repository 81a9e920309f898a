package denorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingInternal marks statements issued by the engine itself so the
// registered callbacks ignore them instead of recursing.
const settingInternal = "denorm:internal"

// internalSession returns a clause-free handle on the same connection, and
// therefore the same transaction, as db's current statement. Inside a
// callback the statement is mid-execution with its SQL already built;
// deriving a session from it clones those clauses along, so internal
// statements must start from a fresh one instead.
func internalSession(db *gorm.DB, ctx context.Context) *gorm.DB {
	src := db.Statement
	tx := &gorm.DB{Config: db.Config}
	tx.Statement = &gorm.Statement{
		DB:        tx,
		ConnPool:  src.ConnPool,
		Context:   ctx,
		Clauses:   map[string]clause.Clause{},
		Vars:      make([]interface{}, 0, 8),
		SkipHooks: true,
	}
	return tx.Set(settingInternal, true)
}

// dbEnv implements Env over the transaction of the statement being handled.
// dying carries the rows already collected for deletion in the current
// cascade; parents found there resolve as missing so no adjustment is ever
// targeted at a doomed row.
type dbEnv struct {
	db    *gorm.DB
	dying map[string]map[string]struct{}
}

func (e *dbEnv) ResolveParent(ctx context.Context, table, keyColumn string, key any) error {
	k, ok := keyOf(key)
	if !ok {
		return ErrParentMissing
	}
	if _, doomed := e.dying[table][k]; doomed {
		return ErrParentMissing
	}
	// Soft-deleted parents still resolve: a hidden row keeps absorbing its
	// children's deltas so its aggregates are already correct on restore.
	var n int64
	err := internalSession(e.db, ctx).
		Table(table).
		Where(keyColumn+" = ?", k).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrParentMissing
	}
	return nil
}

func (e *dbEnv) ReloadColumn(ctx context.Context, table, keyColumn string, key any, column string) (int64, error) {
	row := map[string]any{}
	err := internalSession(e.db, ctx).
		Table(table).
		Select(column).
		Where(keyColumn+" = ?", key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, _ := toInt64(row[column])
	return v, nil
}
