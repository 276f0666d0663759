// Package fixtures holds the users / addresses / things schema, its mappings
// and seed rows. The demo and the end-to-end tests both run against it.
package fixtures

import (
	"context"
	"fmt"

	"bulkload/internal/dbexec"
	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"
	"bulkload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Schema creates the fixture tables. The statements run on SQLite and MySQL.
var Schema = []string{
	"CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(64) NOT NULL, parent_id INTEGER NULL REFERENCES users(id))",
	"CREATE TABLE user_infos (id INTEGER PRIMARY KEY, user_id INTEGER NULL REFERENCES users(id), details VARCHAR(255) NULL)",
	"CREATE TABLE addresses (id INTEGER PRIMARY KEY, user_id INTEGER NULL REFERENCES users(id), email_address VARCHAR(64) NOT NULL)",
	"CREATE TABLE things (id INTEGER PRIMARY KEY, name VARCHAR(64) NULL)",
	"CREATE TABLE user_to_things (user_id INTEGER NULL REFERENCES users(id), thing_id INTEGER NULL REFERENCES things(id))",
}

type seedTable struct {
	name    string
	columns []string
	rows    [][]interface{}
}

// seed lists rows in insert order. user_to_things carries a duplicate
// (8, 1) association on purpose.
var seed = []seedTable{
	{"users", []string{"id", "name", "parent_id"}, [][]interface{}{
		{7, "jack", nil},
		{8, "jack jr", 7},
		{9, "fred", 7},
		{10, "jack jr jr", 8},
	}},
	{"user_infos", []string{"id", "user_id", "details"}, [][]interface{}{
		{1, 7, "is cool"},
		{2, 8, "is not cool"},
		{3, 10, "is moderately cool"},
	}},
	{"addresses", []string{"id", "user_id", "email_address"}, [][]interface{}{
		{1, 7, "jack@bean.com"},
		{2, 8, "jackjr@wood.com"},
		{3, 8, "jackjr@bettyboop.com"},
		{4, 8, "jackjr@lala.com"},
		{5, 9, "fred@fred.com"},
	}},
	{"things", []string{"id", "name"}, [][]interface{}{
		{1, "dog"},
		{2, "lamp"},
		{3, "chair"},
	}},
	{"user_to_things", []string{"user_id", "thing_id"}, [][]interface{}{
		{7, 1},
		{8, 1},
		{8, 1},
		{10, 2},
		{9, 2},
		{10, 3},
	}},
}

// Create runs the schema statements.
func Create(ctx context.Context, exec dbexec.QueryExecutor) error {
	for _, stmt := range Schema {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create fixture schema: %w", err)
		}
	}
	return nil
}

// Seed inserts the fixture rows, one statement per table.
func Seed(ctx context.Context, exec dbexec.QueryExecutor) error {
	for _, table := range seed {
		quoted := make([]string, len(table.columns))
		for i, col := range table.columns {
			quoted[i] = sqlutil.QuoteIdentifier(col)
		}
		builder := sq.Insert(sqlutil.QuoteIdentifier(table.name)).Columns(quoted...)
		for _, row := range table.rows {
			builder = builder.Values(row...)
		}
		query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
		if err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed %s: %w", table.name, err)
		}
	}
	return nil
}

func pk(name string) mapping.Column  { return mapping.Column{Name: name, IsPrimaryKey: true} }
func col(name string) mapping.Column { return mapping.Column{Name: name, IsNullable: true} }

func fk(column, table string) mapping.ForeignKey {
	return mapping.ForeignKey{
		Name:              fmt.Sprintf("fk_%s", column),
		Columns:           []string{column},
		ReferencedTable:   table,
		ReferencedColumns: []string{"id"},
	}
}

// Tables returns the fixture tables keyed by name.
func Tables() map[string]mapping.Table {
	return map[string]mapping.Table{
		"users": {
			Name:        "users",
			Columns:     []mapping.Column{pk("id"), {Name: "name"}, col("parent_id")},
			ForeignKeys: []mapping.ForeignKey{fk("parent_id", "users")},
		},
		"user_infos": {
			Name:        "user_infos",
			Columns:     []mapping.Column{pk("id"), col("user_id"), col("details")},
			ForeignKeys: []mapping.ForeignKey{fk("user_id", "users")},
		},
		"addresses": {
			Name:        "addresses",
			Columns:     []mapping.Column{pk("id"), col("user_id"), {Name: "email_address"}},
			ForeignKeys: []mapping.ForeignKey{fk("user_id", "users")},
		},
		"things": {
			Name:    "things",
			Columns: []mapping.Column{pk("id"), col("name")},
		},
		"user_to_things": {
			Name:        "user_to_things",
			Columns:     []mapping.Column{col("user_id"), col("thing_id")},
			ForeignKeys: []mapping.ForeignKey{fk("user_id", "users"), fk("thing_id", "things")},
		},
	}
}

// Mappings maps User, UserInfo, Address and Thing with every relationship
// using the given strategy. An empty strategy leaves the choice to the
// loader registry default.
//
//	User.addresses  one-to-many, email descending, backref Address.user
//	User.user_info  one-to-one, backref UserInfo.user
//	User.children   self-referential, backref User.parent
//	User.things     many-to-many through user_to_things
//	User.lamp       to-one through user_to_things, only things named lamp
//	Thing.users     many-to-many through user_to_things
func Mappings(strategy string) (*mapping.Registry, error) {
	tables := Tables()
	r := mapping.NewRegistry()
	if err := r.AddTable(tables["user_to_things"]); err != nil {
		return nil, err
	}

	entities := []mapping.Entity{
		{
			Name:  "User",
			Table: tables["users"],
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
					OrderBy: []mapping.OrderTerm{mapping.Asc(sqlexpr.Col("users", "id"))},
					Backref: &mapping.Backref{Name: "parent", Lazy: strategy},
					Lazy:    strategy,
				},
				{
					Name:      "things",
					Target:    "Thing",
					Secondary: "user_to_things",
					OrderBy:   []mapping.OrderTerm{mapping.Asc(sqlexpr.Col("things", "id"))},
					Lazy:      strategy,
				},
				{
					Name:      "lamp",
					Target:    "Thing",
					Secondary: "user_to_things",
					SecondaryJoin: sqlexpr.AndOf(
						sqlexpr.Eq(sqlexpr.Col("things", "id"), sqlexpr.Col("user_to_things", "thing_id")),
						sqlexpr.Eq(sqlexpr.Col("things", "name"), sqlexpr.LitString("lamp")),
					),
					UseList: mapping.Bool(false),
					Lazy:    strategy,
				},
			},
		},
		{Name: "UserInfo", Table: tables["user_infos"]},
		{Name: "Address", Table: tables["addresses"]},
		{
			Name:  "Thing",
			Table: tables["things"],
			Relationships: []mapping.Relationship{
				{
					Name:      "users",
					Target:    "User",
					Secondary: "user_to_things",
					OrderBy:   []mapping.OrderTerm{mapping.Asc(sqlexpr.Col("users", "id"))},
					Lazy:      strategy,
				},
			},
		},
	}
	for _, e := range entities {
		if err := r.Map(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}
