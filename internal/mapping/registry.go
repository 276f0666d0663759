package mapping

import (
	"fmt"
	"sync"

	"github.com/jinzhu/inflection"
)

// Registry collects entity mappings and association tables until Configure
// finalizes them.
type Registry struct {
	mu         sync.Mutex
	entities   map[string]*Entity
	order      []string
	tables     map[string]Table
	configured bool
	specs      []RelationshipSpec
	err        error
}

// NewRegistry creates an empty mapping registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		tables:   make(map[string]Table),
	}
}

// AddTable registers an association table usable as a relationship's Secondary.
func (r *Registry) AddTable(table Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configured {
		return ErrAlreadyConfigured
	}
	if table.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if _, ok := r.tables[table.Name]; ok {
		return fmt.Errorf("%w: table %s", ErrDuplicateMapping, table.Name)
	}
	r.tables[table.Name] = copyTable(table)
	return nil
}

// Map registers an entity. The table name defaults to the pluralized
// snake_case entity name ("UserInfo" maps to "user_infos").
func (r *Registry) Map(entity Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configured {
		return ErrAlreadyConfigured
	}
	if entity.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if _, ok := r.entities[entity.Name]; ok {
		return fmt.Errorf("%w: entity %s", ErrDuplicateMapping, entity.Name)
	}

	mapped := Entity{
		Name:          entity.Name,
		Table:         copyTable(entity.Table),
		Relationships: append([]Relationship(nil), entity.Relationships...),
	}
	if mapped.Table.Name == "" {
		mapped.Table.Name = inflection.Plural(snakeCase(entity.Name))
	}
	if len(mapped.Table.PrimaryKeyColumns()) == 0 {
		return fmt.Errorf("entity %s: table %s has no primary key", entity.Name, mapped.Table.Name)
	}
	if existing, ok := r.tables[mapped.Table.Name]; ok && !sameColumns(existing, mapped.Table) {
		return fmt.Errorf("%w: table %s", ErrDuplicateMapping, mapped.Table.Name)
	}

	r.entities[mapped.Name] = &mapped
	r.order = append(r.order, mapped.Name)
	r.tables[mapped.Table.Name] = mapped.Table
	return nil
}

// Entity returns a copy of the named entity mapping.
func (r *Registry) Entity(name string) (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[name]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Entities returns entity names in registration order.
func (r *Registry) Entities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...)
}

// Configure resolves every relationship declaration (and the inverse of each
// backref) into a RelationshipSpec. It runs once: later calls return the same
// specs or the same error, and the registry rejects further changes.
func (r *Registry) Configure() ([]RelationshipSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.configured {
		if r.err != nil {
			return nil, r.err
		}
		return append([]RelationshipSpec(nil), r.specs...), nil
	}
	r.configured = true
	r.specs, r.err = r.configureLocked()
	if r.err != nil {
		r.specs = nil
		return nil, r.err
	}
	return append([]RelationshipSpec(nil), r.specs...), nil
}

func copyTable(t Table) Table {
	out := Table{
		Name:    t.Name,
		Columns: append([]Column(nil), t.Columns...),
	}
	for _, fk := range t.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, ForeignKey{
			Name:              fk.Name,
			Columns:           append([]string(nil), fk.Columns...),
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: append([]string(nil), fk.ReferencedColumns...),
		})
	}
	return out
}

func sameColumns(a, b Table) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}
