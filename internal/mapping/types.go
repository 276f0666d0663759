// Package mapping describes how entities map onto tables and how their
// relationships join. Configure turns relationship declarations into
// immutable RelationshipSpecs that loading strategies consume.
package mapping

import (
	"errors"
	"strings"

	"bulkload/internal/sqlexpr"
)

var (
	// ErrUnknownEntity indicates a relationship names an entity that was never mapped.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnknownTable indicates a secondary table that was never registered.
	ErrUnknownTable = errors.New("unknown table")
	// ErrNoForeignKey indicates no foreign key links the two sides of a relationship.
	ErrNoForeignKey = errors.New("no foreign key links relationship tables")
	// ErrAmbiguousForeignKey indicates more than one foreign key could join a relationship.
	ErrAmbiguousForeignKey = errors.New("ambiguous foreign key for relationship")
	// ErrDuplicateMapping indicates an entity, table or relationship name is reused.
	ErrDuplicateMapping = errors.New("duplicate mapping")
	// ErrAlreadyConfigured indicates the registry was modified after Configure.
	ErrAlreadyConfigured = errors.New("mappings already configured")
)

// Column represents a table column.
type Column struct {
	Name         string
	IsPrimaryKey bool
	IsNullable   bool
}

// ForeignKey represents a (possibly composite) foreign key constraint.
// Columns[i] references ReferencedColumns[i].
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// Table represents a mapped or association table.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// PrimaryKeyColumns returns all primary key columns in column order.
func (t Table) PrimaryKeyColumns() []Column {
	var cols []Column
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether the table declares the named column.
func (t Table) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// ForeignKeysTo returns the foreign keys of t that reference the named table.
func (t Table) ForeignKeysTo(table string) []ForeignKey {
	var fks []ForeignKey
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable == table {
			fks = append(fks, fk)
		}
	}
	return fks
}

// Direction is the structural direction of a relationship.
type Direction int

const (
	// OneToMany: the target table holds the foreign key.
	OneToMany Direction = iota + 1
	// ManyToOne: the owner table holds the foreign key.
	ManyToOne
	// ManyToMany: an association table holds both foreign keys.
	ManyToMany
)

func (d Direction) String() string {
	switch d {
	case OneToMany:
		return "ONE_TO_MANY"
	case ManyToOne:
		return "MANY_TO_ONE"
	case ManyToMany:
		return "MANY_TO_MANY"
	default:
		return "UNKNOWN"
	}
}

// Cardinality is the relationship's cardinality seen from the owner.
type Cardinality int

const (
	ToOne Cardinality = iota + 1
	ToMany
)

func (c Cardinality) String() string {
	switch c {
	case ToOne:
		return "TO_ONE"
	case ToMany:
		return "TO_MANY"
	default:
		return "UNKNOWN"
	}
}

// OrderTerm is one ORDER BY column.
type OrderTerm struct {
	Column sqlexpr.ColumnRef
	Desc   bool
}

// Asc orders by col ascending.
func Asc(col sqlexpr.ColumnRef) OrderTerm { return OrderTerm{Column: col} }

// Desc orders by col descending.
func Desc(col sqlexpr.ColumnRef) OrderTerm { return OrderTerm{Column: col, Desc: true} }

// Backref declares the inverse relationship created on the target entity.
type Backref struct {
	Name    string
	Lazy    string
	UseList *bool
}

// Relationship declares a relationship from its owning entity to Target.
type Relationship struct {
	Name   string
	Target string
	// Secondary names an association table registered with AddTable.
	Secondary string
	// PrimaryJoin overrides the owner-side join derived from foreign keys.
	PrimaryJoin sqlexpr.Expr
	// SecondaryJoin overrides the target-side join of a secondary table.
	SecondaryJoin sqlexpr.Expr
	// RemoteSide marks owner-table columns as the remote side of a
	// self-referential relationship, turning it into many-to-one.
	RemoteSide []string
	OrderBy    []OrderTerm
	// UseList overrides the cardinality implied by the direction.
	UseList *bool
	Backref *Backref
	// Lazy names the loading strategy. Empty selects the registry default.
	Lazy string
}

// Entity maps an entity name onto a table.
type Entity struct {
	Name string
	// Table.Name defaults to the snake_case plural of Name.
	Table         Table
	Relationships []Relationship
}

// Bool returns a pointer to b, for UseList.
func Bool(b bool) *bool {
	return &b
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
