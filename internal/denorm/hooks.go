package denorm

import (
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

const instancePrevious = "denorm:previous"

// Plugin wires change tracking into a *gorm.DB callback chain. Install it
// once, after every tracker is registered:
//
//	db.Use(denorm.New(registry, denorm.WithLogger(log)))
type Plugin struct {
	reg      *Registry
	log      *logger.Logger
	observer func(table string, adjs []Adjustment)
}

type Option func(*Plugin)

func WithLogger(log *logger.Logger) Option {
	return func(p *Plugin) {
		if log != nil {
			p.log = log.With("component", "denorm")
		}
	}
}

// WithObserver registers a callback invoked once per applied adjustment
// batch. The engine itself stays metrics-free; hosts hang counters here.
func WithObserver(fn func(table string, adjs []Adjustment)) Option {
	return func(p *Plugin) { p.observer = fn }
}

func New(reg *Registry, opts ...Option) *Plugin {
	p := &Plugin{reg: reg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string { return "denorm" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	p.reg.freeze()
	if err := db.Callback().Create().After("gorm:create").Register("denorm:after_create", p.afterCreate); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("denorm:before_update", p.beforeUpdate); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("denorm:after_update", p.afterUpdate); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("denorm:before_delete", p.beforeDelete)
}

// registration returns the tracked-child registration for the statement, or
// nil when the statement is not one the engine should handle.
func (p *Plugin) registration(db *gorm.DB) *registration {
	if db.Error != nil || db.Statement == nil || db.Statement.Schema == nil {
		return nil
	}
	if _, internal := db.Get(settingInternal); internal {
		return nil
	}
	return p.reg.lookup(db.Statement.Table)
}

func (p *Plugin) afterCreate(db *gorm.DB) {
	reg := p.registration(db)
	if reg == nil {
		return
	}
	stmt := db.Statement
	if db.RowsAffected == 0 {
		return
	}
	if _, ok := stmt.Clauses["ON CONFLICT"]; ok {
		// Which rows were inserted versus merged is unknowable here;
		// never guess. Recompute is the repair path.
		p.warn("upsert on tracked table left untracked", "table", reg.ref.table)
		return
	}
	states := statesFromModel(stmt)
	if int64(len(states)) != db.RowsAffected {
		p.warn("partial insert on tracked table left untracked",
			"table", reg.ref.table, "rows", db.RowsAffected, "values", len(states))
		return
	}
	env := &dbEnv{db: db}
	var all []Adjustment
	for _, st := range states {
		for _, t := range reg.trackers {
			adjs, err := t.TrackChanges(stmt.Context, env, Change{Current: st, Created: true})
			if err != nil {
				_ = db.AddError(err)
				return
			}
			all = append(all, adjs...)
		}
	}
	p.apply(db, all)
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	reg := p.registration(db)
	if reg == nil {
		return
	}
	rows, err := p.matchingRows(db, reg.ref, !db.Statement.Unscoped)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	switch len(rows) {
	case 0:
	case 1:
		db.InstanceSet(instancePrevious, rows[0])
	default:
		// Bulk updates are untracked, like queryset-level writes were in
		// the systems this replaces. Recompute is the repair path.
		p.warn("bulk update on tracked table left untracked",
			"table", reg.ref.table, "rows", len(rows))
	}
}

// afterUpdate pairs the beforeUpdate snapshot with the row's stored state
// once the UPDATE has run. Re-reading beats replaying the SET clause: the
// update callback discards that clause before after-hooks fire, and storage
// already holds the result of any expression assignment.
func (p *Plugin) afterUpdate(db *gorm.DB) {
	reg := p.registration(db)
	if reg == nil {
		return
	}
	v, ok := db.InstanceGet(instancePrevious)
	if !ok {
		return
	}
	prev, ok := v.(State)
	if !ok || db.RowsAffected == 0 {
		return
	}
	key, ok := keyOf(prev[reg.ref.keyColumn])
	if !ok {
		return
	}
	cur, err := p.rowByKey(db, reg.ref, key)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	if cur == nil {
		return
	}
	env := &dbEnv{db: db}
	var all []Adjustment
	for _, t := range reg.trackers {
		adjs, err := t.TrackChanges(db.Statement.Context, env, Change{Current: cur, Previous: prev})
		if err != nil {
			_ = db.AddError(err)
			return
		}
		all = append(all, adjs...)
	}
	p.apply(db, all)
}

func (p *Plugin) beforeDelete(db *gorm.DB) {
	if db.Error != nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	if _, internal := db.Get(settingInternal); internal {
		return
	}
	stmt := db.Statement
	reg := p.reg.lookup(stmt.Table)
	links := p.reg.childLinks(stmt.Table)
	if reg == nil && len(links) == 0 {
		return
	}

	ref := refFromSchema(stmt.Schema)
	soft := ref.softDelete != "" && !stmt.Unscoped

	victims, err := p.matchingRows(db, ref, soft)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	if len(victims) == 0 {
		return
	}

	env := &dbEnv{db: db}
	var all []Adjustment

	if soft {
		// Rows are hidden, not destroyed: each live victim leaves its
		// aggregates, children stay in place.
		if reg != nil {
			all, err = p.trackDeletes(db, env, reg, victims, all)
			if err != nil {
				_ = db.AddError(err)
				return
			}
		}
		p.apply(db, all)
		return
	}

	// Hard delete: the victims die physically and the schema's ON DELETE
	// CASCADE takes their tracked children with them. Collect the whole
	// dying set first so no adjustment targets a doomed row, then emit
	// delete events for every dying tracked row that was still live.
	dying := map[string]map[string]struct{}{}
	markDying(dying, ref, victims)

	type level struct {
		reg  *registration
		ref  tableRef
		rows []State
	}
	levels := []level{{reg: reg, ref: ref, rows: victims}}
	for i := 0; i < len(levels); i++ {
		cur := levels[i]
		keys := rowKeys(cur.ref, cur.rows)
		if len(keys) == 0 {
			continue
		}
		for _, link := range p.reg.childLinks(cur.ref.table) {
			rows, err := p.cascadeRows(db, link, keys, dying)
			if err != nil {
				_ = db.AddError(err)
				return
			}
			if len(rows) == 0 {
				continue
			}
			markDying(dying, link.child.ref, rows)
			levels = append(levels, level{reg: link.child, ref: link.child.ref, rows: rows})
		}
	}
	env.dying = dying

	for _, lv := range levels {
		if lv.reg == nil {
			continue
		}
		all, err = p.trackDeletes(db, env, lv.reg, lv.rows, all)
		if err != nil {
			_ = db.AddError(err)
			return
		}
	}
	p.apply(db, all)
}

func (p *Plugin) trackDeletes(db *gorm.DB, env *dbEnv, reg *registration, rows []State, all []Adjustment) ([]Adjustment, error) {
	for _, st := range rows {
		for _, t := range reg.trackers {
			adjs, err := t.TrackChanges(db.Statement.Context, env, Change{Current: st, Deleted: true})
			if err != nil {
				return nil, err
			}
			all = append(all, adjs...)
		}
	}
	return all, nil
}

// matchingRows selects the rows the current statement targets, replicating
// its WHERE conditions plus any primary key carried on the model value.
func (p *Plugin) matchingRows(db *gorm.DB, ref tableRef, liveOnly bool) ([]State, error) {
	stmt := db.Statement
	q := internalSession(db, stmt.Context).Table(ref.table)
	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 0 {
			q = q.Clauses(clause.Where{Exprs: where.Exprs})
		}
	}
	if keys := modelKeys(stmt); len(keys) == 1 {
		q = q.Where(ref.keyColumn+" = ?", keys[0])
	} else if len(keys) > 1 {
		q = q.Where(ref.keyColumn+" IN ?", keys)
	}
	if liveOnly && ref.softDelete != "" {
		q = q.Where(ref.softDelete + " IS NULL")
	}
	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]State, len(rows))
	for i, r := range rows {
		out[i] = State(r)
	}
	return out, nil
}

// cascadeRows loads the not-yet-collected children of dying parent rows,
// soft-deleted ones included since the cascade removes them physically.
func (p *Plugin) cascadeRows(db *gorm.DB, link relLink, parentKeys []any, dying map[string]map[string]struct{}) ([]State, error) {
	var rows []map[string]any
	err := internalSession(db, db.Statement.Context).
		Table(link.child.ref.table).
		Where(link.relation+" IN ?", parentKeys).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(rows))
	for _, r := range rows {
		st := State(r)
		if k, ok := keyOf(st[link.child.ref.keyColumn]); ok {
			if _, seen := dying[link.child.ref.table][k]; seen {
				continue
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *Plugin) apply(db *gorm.DB, adjs []Adjustment) {
	adjs = Merge(adjs)
	if len(adjs) == 0 {
		return
	}
	if err := ApplyAdjustments(db.Statement.Context, db, adjs); err != nil {
		_ = db.AddError(err)
		return
	}
	if p.observer != nil {
		p.observer(db.Statement.Table, adjs)
	}
}

func (p *Plugin) warn(msg string, keysAndValues ...interface{}) {
	if p.log != nil {
		p.log.Warn(msg, keysAndValues...)
	}
}

// statesFromModel snapshots the statement's model value(s) column by column.
func statesFromModel(stmt *gorm.Statement) []State {
	rv := stmt.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]State, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, stateFromValue(stmt, rv.Index(i)))
		}
		return out
	case reflect.Struct:
		return []State{stateFromValue(stmt, rv)}
	default:
		return nil
	}
}

func stateFromValue(stmt *gorm.Statement, rv reflect.Value) State {
	rv = reflect.Indirect(rv)
	s := State{}
	for _, f := range stmt.Schema.Fields {
		if f.DBName == "" {
			continue
		}
		v, _ := f.ValueOf(stmt.Context, rv)
		s[f.DBName] = v
	}
	return s
}

// rowByKey reads one row by primary key, soft-deleted included, inside the
// statement's transaction.
func (p *Plugin) rowByKey(db *gorm.DB, ref tableRef, key any) (State, error) {
	var rows []map[string]any
	err := internalSession(db, db.Statement.Context).
		Table(ref.table).
		Where(ref.keyColumn+" = ?", key).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return State(rows[0]), nil
}

// modelKeys extracts primary key values carried on the statement's model.
func modelKeys(stmt *gorm.Statement) []any {
	if stmt.Schema == nil {
		return nil
	}
	pf := stmt.Schema.PrioritizedPrimaryField
	if pf == nil {
		return nil
	}
	var keys []any
	collect := func(rv reflect.Value) {
		rv = reflect.Indirect(rv)
		if rv.Kind() != reflect.Struct {
			return
		}
		if v, zero := pf.ValueOf(stmt.Context, rv); !zero {
			keys = append(keys, v)
		}
	}
	switch stmt.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < stmt.ReflectValue.Len(); i++ {
			collect(stmt.ReflectValue.Index(i))
		}
	case reflect.Struct:
		collect(stmt.ReflectValue)
	}
	return keys
}

func refFromSchema(sch *schema.Schema) tableRef {
	ref := tableRef{table: sch.Table}
	if pf := sch.PrioritizedPrimaryField; pf != nil {
		ref.keyColumn = pf.DBName
	}
	for _, f := range sch.Fields {
		if f.FieldType == reflect.TypeOf(gorm.DeletedAt{}) {
			ref.softDelete = f.DBName
			break
		}
	}
	return ref
}

func rowKeys(ref tableRef, rows []State) []any {
	keys := make([]any, 0, len(rows))
	for _, r := range rows {
		if k, ok := keyOf(r[ref.keyColumn]); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func markDying(dying map[string]map[string]struct{}, ref tableRef, rows []State) {
	set := dying[ref.table]
	if set == nil {
		set = map[string]struct{}{}
		dying[ref.table] = set
	}
	for _, r := range rows {
		if k, ok := keyOf(r[ref.keyColumn]); ok {
			set[k] = struct{}{}
		}
	}
}
