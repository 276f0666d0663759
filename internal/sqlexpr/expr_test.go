package sqlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryToSql(t *testing.T) {
	t.Run("column equality", func(t *testing.T) {
		sql, args, err := Eq(Col("things", "id"), Col("user_to_things", "thing_id")).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "`things`.`id` = `user_to_things`.`thing_id`", sql)
		assert.Empty(t, args)
	})

	t.Run("bound value", func(t *testing.T) {
		sql, args, err := Gt(Col("b", "id"), Value(10)).ToSql()
		require.NoError(t, err)
		assert.Equal(t, "`b`.`id` > ?", sql)
		assert.Equal(t, []interface{}{10}, args)
	})

	t.Run("unset parameter cannot render", func(t *testing.T) {
		_, _, err := Eq(Param(Col("users", "id")), Col("addresses", "user_id")).ToSql()
		require.Error(t, err)
	})

	t.Run("missing operand", func(t *testing.T) {
		_, _, err := (&Binary{Left: Col("a", "id"), Op: OpEq}).ToSql()
		require.Error(t, err)
	})
}

func TestAndOf(t *testing.T) {
	a := Eq(Col("a", "id"), Col("a_to_b", "a_id"))
	b := Eq(Col("a_to_b", "kind"), Lit("'primary'"))

	t.Run("single clause is returned unchanged", func(t *testing.T) {
		assert.Same(t, a, AndOf(a))
	})

	t.Run("nested conjunctions flatten", func(t *testing.T) {
		c := Eq(Col("b", "id"), Col("a_to_b", "b_id"))
		expr := AndOf(AndOf(a, b), c)
		list, ok := expr.(*List)
		require.True(t, ok)
		assert.Len(t, list.Clauses, 3)
	})

	t.Run("nil clauses are dropped", func(t *testing.T) {
		assert.Same(t, a, AndOf(nil, a))
	})

	t.Run("renders with nested disjunction parenthesized", func(t *testing.T) {
		expr := AndOf(a, OrOf(b, Eq(Col("a_to_b", "kind"), Lit("'backup'"))))
		sql, args, err := expr.ToSql()
		require.NoError(t, err)
		assert.Equal(t,
			"`a`.`id` = `a_to_b`.`a_id` AND (`a_to_b`.`kind` = 'primary' OR `a_to_b`.`kind` = 'backup')",
			sql)
		assert.Empty(t, args)
	})
}

func TestParams(t *testing.T) {
	owner := Param(Col("b", "id"))
	expr := AndOf(
		Eq(Col("a", "id"), Col("a_to_b", "a_id")),
		Eq(Col("a_to_b", "b_id"), owner),
		Gt(owner, Value(10)),
	)

	params := Params(expr)
	require.Len(t, params, 2)
	assert.Same(t, owner, params[0])
	assert.True(t, params[1].HasValue)
	assert.True(t, HasParams(expr))
	assert.False(t, HasParams(Eq(Col("a", "id"), Lit("1"))))
}

func TestReplaceColumns(t *testing.T) {
	original := Eq(Col("users", "id"), Col("addresses", "user_id"))
	param := Param(Col("users", "id"))

	replaced := ReplaceColumns(original, func(c ColumnRef) (Expr, bool) {
		if c == Col("users", "id") {
			return param, true
		}
		return nil, false
	})

	bin, ok := replaced.(*Binary)
	require.True(t, ok)
	assert.Same(t, param, bin.Left)
	assert.Equal(t, Col("addresses", "user_id"), bin.Right)

	// the input tree is untouched
	assert.Equal(t, Col("users", "id"), original.Left)
	assert.Equal(t, []ColumnRef{Col("users", "id"), Col("addresses", "user_id")}, Columns(original))
}
