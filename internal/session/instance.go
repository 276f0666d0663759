package session

import (
	"bulkload/internal/loader"
)

// Instance is one entity row tracked by a Session.
type Instance struct {
	entity    string
	identity  string
	isNew     bool
	committed map[string]any
	pending   map[string]any
	resolved  map[string]any
}

func newInstance(entity, identity string, values map[string]any, isNew bool) *Instance {
	committed := make(map[string]any, len(values))
	for k, v := range values {
		committed[k] = v
	}
	return &Instance{
		entity:    entity,
		identity:  identity,
		isNew:     isNew,
		committed: committed,
		pending:   make(map[string]any),
		resolved:  make(map[string]any),
	}
}

// Entity returns the mapped entity name.
func (i *Instance) Entity() string { return i.entity }

// Identity returns the identity-map key.
func (i *Instance) Identity() string { return i.identity }

// IsNew reports an instance created with Add.
func (i *Instance) IsNew() bool { return i.isNew }

// Get returns a column value, preferring a pending change over the loaded value.
func (i *Instance) Get(column string) any {
	v, _ := i.JoinKey(column)
	return v
}

// Set records a pending column change.
func (i *Instance) Set(column string, value any) {
	i.pending[column] = value
}

// Resolved returns a relationship value without loading it.
func (i *Instance) Resolved(name string) (any, bool) {
	v, ok := i.resolved[name]
	return v, ok
}

// HasResolved reports whether the relationship holds a value.
func (i *Instance) HasResolved(name string) bool {
	_, ok := i.resolved[name]
	return ok
}

// JoinKey reads a column, preferring pending changes.
func (i *Instance) JoinKey(column string) (any, bool) {
	if v, ok := i.pending[column]; ok {
		return v, true
	}
	v, ok := i.committed[column]
	return v, ok
}

// WriteResolved stores a relationship value as loaded. Loader values are
// converted to instances; the write never triggers a load.
func (i *Instance) WriteResolved(name string, value any) {
	i.resolved[name] = toInstanceValue(value)
}

func toInstanceValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case *Instance:
		return v
	case []*Instance:
		return append(make([]*Instance, 0, len(v)), v...)
	case []loader.Owner:
		list := make([]*Instance, 0, len(v))
		for _, o := range v {
			if inst, ok := o.(*Instance); ok {
				list = append(list, inst)
			}
		}
		return list
	default:
		return value
	}
}
