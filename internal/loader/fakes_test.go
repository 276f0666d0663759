package loader

import (
	"context"
	"testing"

	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"

	"github.com/stretchr/testify/require"
)

type fakeOwner struct {
	entity   string
	id       int
	isNew    bool
	columns  map[string]any
	resolved map[string]any
	writes   []string
}

func newOwner(entity string, id int, columns map[string]any) *fakeOwner {
	return &fakeOwner{entity: entity, id: id, columns: columns, resolved: make(map[string]any)}
}

func (o *fakeOwner) Entity() string { return o.entity }
func (o *fakeOwner) IsNew() bool    { return o.isNew }

func (o *fakeOwner) HasResolved(name string) bool {
	_, ok := o.resolved[name]
	return ok
}

func (o *fakeOwner) JoinKey(column string) (any, bool) {
	v, ok := o.columns[column]
	return v, ok
}

func (o *fakeOwner) WriteResolved(name string, value any) {
	o.resolved[name] = value
	o.writes = append(o.writes, name)
}

// fakeUnitOfWork answers FetchByKeys from a fixed row set, filtered by key.
type fakeUnitOfWork struct {
	owners   map[string][]Owner
	rows     []ResultRow
	err      error
	requests []FetchRequest
}

func (u *fakeUnitOfWork) Enumerate(entity string) []Owner {
	return u.owners[entity]
}

func (u *fakeUnitOfWork) FetchByKeys(_ context.Context, req FetchRequest) ([]ResultRow, error) {
	u.requests = append(u.requests, req)
	if u.err != nil {
		return nil, u.err
	}
	wanted := make(map[string]struct{}, len(req.Keys))
	for _, k := range req.Keys {
		wanted[normalizeKey(k)] = struct{}{}
	}
	var rows []ResultRow
	for _, row := range u.rows {
		if _, ok := wanted[normalizeKey(row.Key)]; ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func pk(name string) mapping.Column  { return mapping.Column{Name: name, IsPrimaryKey: true} }
func col(name string) mapping.Column { return mapping.Column{Name: name, IsNullable: true} }

func fk(column, table string) mapping.ForeignKey {
	return mapping.ForeignKey{Columns: []string{column}, ReferencedTable: table, ReferencedColumns: []string{"id"}}
}

// userMappings maps users with addresses, a single user_info, self-referential
// children and things through an association table.
func userMappings(t *testing.T, strategy string) *mapping.Registry {
	t.Helper()
	r := mapping.NewRegistry()
	require.NoError(t, r.AddTable(mapping.Table{
		Name:        "user_to_things",
		Columns:     []mapping.Column{col("user_id"), col("thing_id")},
		ForeignKeys: []mapping.ForeignKey{fk("user_id", "users"), fk("thing_id", "things")},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name: "User",
		Table: mapping.Table{
			Columns:     []mapping.Column{pk("id"), col("name"), col("parent_id")},
			ForeignKeys: []mapping.ForeignKey{fk("parent_id", "users")},
		},
		Relationships: []mapping.Relationship{
			{
				Name:    "addresses",
				Target:  "Address",
				OrderBy: []mapping.OrderTerm{mapping.Desc(sqlexpr.Col("addresses", "email_address"))},
				Backref: &mapping.Backref{Name: "user", Lazy: strategy},
				Lazy:    strategy,
			},
			{
				Name:    "user_info",
				Target:  "UserInfo",
				UseList: mapping.Bool(false),
				Backref: &mapping.Backref{Name: "user", Lazy: strategy},
				Lazy:    strategy,
			},
			{
				Name:    "children",
				Target:  "User",
				Backref: &mapping.Backref{Name: "parent", Lazy: strategy},
				Lazy:    strategy,
			},
			{Name: "things", Target: "Thing", Secondary: "user_to_things", Lazy: strategy},
		},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name: "Address",
		Table: mapping.Table{
			Columns:     []mapping.Column{pk("id"), col("user_id"), col("email_address")},
			ForeignKeys: []mapping.ForeignKey{fk("user_id", "users")},
		},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name: "UserInfo",
		Table: mapping.Table{
			Columns:     []mapping.Column{pk("id"), col("user_id"), col("details")},
			ForeignKeys: []mapping.ForeignKey{fk("user_id", "users")},
		},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name:  "Thing",
		Table: mapping.Table{Columns: []mapping.Column{pk("id"), col("name")}},
	}))
	return r
}

func configureLoaders(t *testing.T, strategy string) *Loaders {
	t.Helper()
	registry, err := DefaultRegistry()
	require.NoError(t, err)
	loaders, err := registry.Configure(userMappings(t, strategy))
	require.NoError(t, err)
	return loaders
}

func relationLoader(t *testing.T, loaders *Loaders, entity, name string) (RelationLoader, mapping.RelationshipSpec) {
	t.Helper()
	rl, spec, err := loaders.Loader(entity, name)
	require.NoError(t, err)
	return rl, spec
}
