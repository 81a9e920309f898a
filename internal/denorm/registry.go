package denorm

import (
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// registration is one child model with every tracker declared against it.
type registration struct {
	model    any
	ref      tableRef
	trackers []*Tracker
}

// relLink is a child table referencing a parent table through one relation
// column. Hard-deleting parent rows cascades through these links.
type relLink struct {
	child    *registration
	relation string
}

// Registry holds the tracker definitions for every tracked child model.
// It is populated once at startup and frozen when the plugin initializes;
// registration after that point is an error.
type Registry struct {
	mu       sync.Mutex
	cache    *sync.Map
	namer    schema.Namer
	byChild  map[string]*registration
	byParent map[string][]*Tracker
	links    map[string][]relLink
	fields   map[string]struct{}
	frozen   bool
}

func NewRegistry() *Registry {
	return &Registry{
		cache:    &sync.Map{},
		namer:    schema.NamingStrategy{},
		byChild:  map[string]*registration{},
		byParent: map[string][]*Tracker{},
		links:    map[string][]relLink{},
		fields:   map[string]struct{}{},
	}
}

// Register declares the trackers maintained for one child model. Malformed
// definitions are configuration errors and fail here, before any mutation
// can be mis-tracked.
func (r *Registry) Register(child any, trackers ...*Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("denorm: registry is frozen, register trackers before installing the plugin")
	}
	if child == nil || len(trackers) == 0 {
		return fmt.Errorf("denorm: registration requires a child model and at least one tracker")
	}

	childSch, childRef, err := r.parse(child)
	if err != nil {
		return err
	}
	if _, dup := r.byChild[childRef.table]; dup {
		return fmt.Errorf("denorm: trackers for %q already registered", childRef.table)
	}

	reg := &registration{model: child, ref: childRef}
	for _, t := range trackers {
		if err := r.bind(reg, childSch, t); err != nil {
			return err
		}
	}
	r.byChild[childRef.table] = reg
	return nil
}

// MustRegister is Register for static startup declarations.
func (r *Registry) MustRegister(child any, trackers ...*Tracker) {
	if err := r.Register(child, trackers...); err != nil {
		panic(err)
	}
}

func (r *Registry) bind(reg *registration, childSch *schema.Schema, t *Tracker) error {
	if t == nil {
		return fmt.Errorf("denorm: nil tracker registered for %q", reg.ref.table)
	}
	if err := t.Aggregate.validate(); err != nil {
		return err
	}
	if t.Field == "" || t.Relation == "" || t.Parent == nil {
		return fmt.Errorf("denorm: tracker on %q needs Parent, Field and Relation", reg.ref.table)
	}
	if _, ok := childSch.FieldsByDBName[t.Relation]; !ok {
		return fmt.Errorf("denorm: %q has no relation column %q", reg.ref.table, t.Relation)
	}
	if t.Aggregate.Kind == AggregateSum {
		if _, ok := childSch.FieldsByDBName[t.Aggregate.Source]; !ok {
			return fmt.Errorf("denorm: %q has no sum source column %q", reg.ref.table, t.Aggregate.Source)
		}
	}

	parentSch, parentRef, err := r.parse(t.Parent)
	if err != nil {
		return err
	}
	if _, ok := parentSch.FieldsByDBName[t.Field]; !ok {
		return fmt.Errorf("denorm: %q has no tracked column %q", parentRef.table, t.Field)
	}
	fieldKey := parentRef.table + "." + t.Field
	if _, dup := r.fields[fieldKey]; dup {
		return fmt.Errorf("denorm: tracked column %s already bound", fieldKey)
	}

	t.parent = parentRef
	t.child = reg.ref
	r.fields[fieldKey] = struct{}{}
	reg.trackers = append(reg.trackers, t)
	r.byParent[parentRef.table] = append(r.byParent[parentRef.table], t)

	for _, l := range r.links[parentRef.table] {
		if l.child == reg && l.relation == t.Relation {
			return nil
		}
	}
	r.links[parentRef.table] = append(r.links[parentRef.table], relLink{child: reg, relation: t.Relation})
	return nil
}

func (r *Registry) parse(model any) (*schema.Schema, tableRef, error) {
	sch, err := schema.Parse(model, r.cache, r.namer)
	if err != nil {
		return nil, tableRef{}, fmt.Errorf("denorm: parse model %T: %w", model, err)
	}
	if len(sch.PrimaryFields) != 1 {
		return nil, tableRef{}, fmt.Errorf("denorm: %q needs exactly one primary key column", sch.Table)
	}
	ref := tableRef{table: sch.Table, keyColumn: sch.PrioritizedPrimaryField.DBName}
	for _, f := range sch.Fields {
		if f.FieldType == reflect.TypeOf(gorm.DeletedAt{}) {
			ref.softDelete = f.DBName
			break
		}
	}
	return sch, ref, nil
}

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// lookup returns the registration whose child table matches, if any.
func (r *Registry) lookup(table string) *registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byChild[table]
}

// childLinks returns the tracked relations referencing a parent table.
func (r *Registry) childLinks(table string) []relLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[table]
}

// trackersFor returns every tracker feeding columns on a parent table.
func (r *Registry) trackersFor(table string) []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byParent[table]
}

// parentRef resolves the schema identity of a parent model for recompute.
func (r *Registry) parentRef(model any) (tableRef, error) {
	_, ref, err := r.parse(model)
	return ref, err
}
