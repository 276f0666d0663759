package loader

import (
	"errors"
	"testing"

	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configuredSpec(t *testing.T, r *mapping.Registry, owner, name string) mapping.RelationshipSpec {
	t.Helper()
	specs, err := r.Configure()
	require.NoError(t, err)
	for _, s := range specs {
		if s.Owner == owner && s.Name == name {
			return s
		}
	}
	require.Failf(t, "missing relationship", "%s.%s", owner, name)
	return mapping.RelationshipSpec{}
}

func TestValidate_SimpleShapes(t *testing.T) {
	r := userMappings(t, StrategyBulk)

	tests := []struct {
		owner, name string
		joinColumn  sqlexpr.ColumnRef
		ident       sqlexpr.ColumnRef
		filters     int
	}{
		{"User", "addresses", sqlexpr.Col("addresses", "user_id"), sqlexpr.Col("users", "id"), 0},
		{"Address", "user", sqlexpr.Col("users", "id"), sqlexpr.Col("addresses", "user_id"), 0},
		{"User", "user_info", sqlexpr.Col("user_infos", "user_id"), sqlexpr.Col("users", "id"), 0},
		{"User", "children", sqlexpr.Col("users", "parent_id"), sqlexpr.Col("users", "id"), 0},
		{"User", "parent", sqlexpr.Col("users", "id"), sqlexpr.Col("users", "parent_id"), 0},
		{"User", "things", sqlexpr.Col("user_to_things", "user_id"), sqlexpr.Col("users", "id"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.owner+"."+tt.name, func(t *testing.T) {
			validated, err := Validate(configuredSpec(t, r, tt.owner, tt.name))
			require.NoError(t, err)
			assert.Equal(t, tt.joinColumn, validated.JoinColumn)
			assert.Equal(t, tt.ident, validated.Ident)
			assert.Len(t, validated.StaticFilters, tt.filters)
		})
	}
}

func TestValidate_SecondaryStaticFilterKept(t *testing.T) {
	validated, err := Validate(configuredSpec(t, userMappings(t, StrategyBulk), "User", "things"))
	require.NoError(t, err)

	sql, args, err := validated.StaticFilters[0].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "`things`.`id` = `user_to_things`.`thing_id`", sql)
	assert.Empty(t, args)
}

func TestValidate_CompositeForeignKeyRejected(t *testing.T) {
	r := mapping.NewRegistry()
	require.NoError(t, r.Map(mapping.Entity{
		Name:          "MultiPk",
		Table:         mapping.Table{Name: "multi_pks", Columns: []mapping.Column{pk("id1"), pk("id2")}},
		Relationships: []mapping.Relationship{{Name: "multi_fks", Target: "MultiFk", Lazy: StrategyBulk}},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name: "MultiFk",
		Table: mapping.Table{
			Name:    "multi_fks",
			Columns: []mapping.Column{pk("id"), col("multi_pk_id1"), col("multi_pk_id2")},
			ForeignKeys: []mapping.ForeignKey{{
				Columns:           []string{"multi_pk_id1", "multi_pk_id2"},
				ReferencedTable:   "multi_pks",
				ReferencedColumns: []string{"id1", "id2"},
			}},
		},
	}))

	_, err := Validate(configuredSpec(t, r, "MultiPk", "multi_fks"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedRelationShape))

	var shapeErr *UnsupportedRelationShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "MultiPk", shapeErr.Owner)
	assert.Equal(t, "multi_fks", shapeErr.Relationship)
	assert.Contains(t, err.Error(),
		"bulk loader MultiPk.multi_fks: only simple relations on 1 primary key and without custom joins are supported")
}

func associationMappings(t *testing.T, rel mapping.Relationship) *mapping.Registry {
	t.Helper()
	r := mapping.NewRegistry()
	require.NoError(t, r.AddTable(mapping.Table{
		Name:    "a_to_b",
		Columns: []mapping.Column{col("a_id"), col("b_id")},
		ForeignKeys: []mapping.ForeignKey{
			fk("a_id", "as"),
			fk("b_id", "bs"),
		},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name:  "A",
		Table: mapping.Table{Name: "as", Columns: []mapping.Column{pk("id")}},
	}))
	require.NoError(t, r.Map(mapping.Entity{
		Name:          "B",
		Table:         mapping.Table{Name: "bs", Columns: []mapping.Column{pk("id")}},
		Relationships: []mapping.Relationship{rel},
	}))
	return r
}

func TestValidate_CustomPrimaryJoinRejected(t *testing.T) {
	r := associationMappings(t, mapping.Relationship{
		Name:      "a",
		Target:    "A",
		Secondary: "a_to_b",
		PrimaryJoin: sqlexpr.AndOf(
			sqlexpr.Eq(sqlexpr.Col("bs", "id"), sqlexpr.Col("a_to_b", "b_id")),
			sqlexpr.Gt(sqlexpr.Col("bs", "id"), sqlexpr.Value(10)),
		),
		UseList: mapping.Bool(false),
		Lazy:    StrategyBulk,
	})

	_, err := Validate(configuredSpec(t, r, "B", "a"))
	require.ErrorIs(t, err, ErrUnsupportedRelationShape)
}

func TestValidate_CustomSecondaryJoinRejected(t *testing.T) {
	r := associationMappings(t, mapping.Relationship{
		Name:      "a",
		Target:    "A",
		Secondary: "a_to_b",
		SecondaryJoin: sqlexpr.AndOf(
			sqlexpr.Eq(sqlexpr.Col("as", "id"), sqlexpr.Col("a_to_b", "a_id")),
			sqlexpr.Gt(sqlexpr.Col("as", "id"), sqlexpr.Value(10)),
		),
		UseList: mapping.Bool(false),
		Lazy:    StrategyBulk,
	})

	_, err := Validate(configuredSpec(t, r, "B", "a"))
	require.ErrorIs(t, err, ErrUnsupportedRelationShape)
}

func TestValidate_CustomSecondaryJoinWithLiteralAccepted(t *testing.T) {
	r := associationMappings(t, mapping.Relationship{
		Name:      "a",
		Target:    "A",
		Secondary: "a_to_b",
		SecondaryJoin: sqlexpr.AndOf(
			sqlexpr.Eq(sqlexpr.Col("as", "id"), sqlexpr.Col("a_to_b", "a_id")),
			sqlexpr.Ne(sqlexpr.Col("as", "id"), sqlexpr.Lit("0")),
		),
		UseList: mapping.Bool(false),
		Lazy:    StrategyBulk,
	})

	validated, err := Validate(configuredSpec(t, r, "B", "a"))
	require.NoError(t, err)
	require.Len(t, validated.StaticFilters, 2)
	sql, _, err := validated.StaticFilters[1].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "`as`.`id` <> 0", sql)
	assert.Equal(t, sqlexpr.Col("a_to_b", "b_id"), validated.JoinColumn)
}

func TestValidate_HandBuiltShapes(t *testing.T) {
	owner := mapping.Table{Name: "users"}
	target := mapping.Table{Name: "addresses"}
	param := sqlexpr.Param(sqlexpr.Col("users", "id"))

	base := func(clause sqlexpr.Expr) mapping.RelationshipSpec {
		return mapping.RelationshipSpec{
			Owner: "User", Name: "addresses",
			OwnerTable: owner, TargetTable: target,
			LazyClause: clause,
		}
	}

	tests := []struct {
		name   string
		clause sqlexpr.Expr
	}{
		{"missing clause", nil},
		{"no parameter", sqlexpr.Eq(sqlexpr.Col("users", "id"), sqlexpr.Col("addresses", "user_id"))},
		{"literal parameter only", sqlexpr.Eq(sqlexpr.Col("addresses", "user_id"), sqlexpr.Value(7))},
		{"non-equality", sqlexpr.Gt(sqlexpr.Col("addresses", "user_id"), param)},
		{"conjunction without secondary", sqlexpr.AndOf(
			sqlexpr.Eq(sqlexpr.Col("addresses", "user_id"), param),
			sqlexpr.Ne(sqlexpr.Col("addresses", "email_address"), sqlexpr.Lit("''")),
		)},
		{"parameter compared to owner column", sqlexpr.Eq(sqlexpr.Col("users", "name"), param)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(base(tt.clause))
			require.ErrorIs(t, err, ErrUnsupportedRelationShape)
		})
	}

	validated, err := Validate(base(sqlexpr.Eq(param, sqlexpr.Col("addresses", "user_id"))))
	require.NoError(t, err)
	assert.Equal(t, sqlexpr.Col("addresses", "user_id"), validated.JoinColumn)
}
