// Package sqlexpr models relationship join conditions as a small expression tree.
//
// Every node renders itself through squirrel's Sqlizer interface, so static
// join clauses can be handed to the query builder unchanged. The tree is also
// inspectable: the loader walks it to prove a join can be rewritten from
// "col = :param" into "col IN (:keys)".
package sqlexpr

import (
	"fmt"
	"strings"

	"bulkload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Expr is a node of a join condition.
type Expr interface {
	sq.Sqlizer
	isExpr()
}

// ColumnRef is a table-qualified column.
type ColumnRef struct {
	Table string
	Name  string
}

// Col builds a table-qualified column reference.
func Col(table, name string) ColumnRef {
	return ColumnRef{Table: table, Name: name}
}

func (ColumnRef) isExpr() {}

// ToSql renders the quoted, qualified column.
func (c ColumnRef) ToSql() (string, []interface{}, error) {
	if c.Name == "" {
		return "", nil, fmt.Errorf("column reference without a name")
	}
	return sqlutil.QuoteQualified(c.Table, c.Name), nil, nil
}

func (c ColumnRef) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// BindParam is a bound parameter slot. Parameters created by Param are fed
// from an owner column at load time and carry no value; parameters created by
// Value carry a literal bound at configuration time.
type BindParam struct {
	Key      string
	Column   *ColumnRef
	Value    interface{}
	HasValue bool
}

// Param creates an unset parameter fed from the given owner column.
func Param(col ColumnRef) *BindParam {
	c := col
	return &BindParam{Key: col.String(), Column: &c}
}

// Value creates a parameter bound to a literal value.
func Value(v interface{}) *BindParam {
	return &BindParam{Key: fmt.Sprintf("%v", v), Value: v, HasValue: true}
}

func (*BindParam) isExpr() {}

// ToSql renders a placeholder. Unset parameters cannot be rendered.
func (p *BindParam) ToSql() (string, []interface{}, error) {
	if !p.HasValue {
		return "", nil, fmt.Errorf("parameter %s has no value", p.Key)
	}
	return "?", []interface{}{p.Value}, nil
}

// Literal is raw SQL text with no parameters, e.g. TRUE or 'active'.
type Literal struct {
	SQL string
}

// Lit builds a raw SQL literal.
func Lit(sql string) Literal {
	return Literal{SQL: sql}
}

func (Literal) isExpr() {}

// ToSql returns the literal text verbatim.
func (l Literal) ToSql() (string, []interface{}, error) {
	return l.SQL, nil, nil
}

// Operator is a binary comparison operator.
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "<>"
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
)

// Binary is a comparison between two operands.
type Binary struct {
	Left  Expr
	Op    Operator
	Right Expr
}

// Eq builds left = right.
func Eq(left, right Expr) *Binary { return &Binary{Left: left, Op: OpEq, Right: right} }

// Ne builds left <> right.
func Ne(left, right Expr) *Binary { return &Binary{Left: left, Op: OpNe, Right: right} }

// Gt builds left > right.
func Gt(left, right Expr) *Binary { return &Binary{Left: left, Op: OpGt, Right: right} }

// Lt builds left < right.
func Lt(left, right Expr) *Binary { return &Binary{Left: left, Op: OpLt, Right: right} }

func (*Binary) isExpr() {}

// ToSql renders "left op right".
func (b *Binary) ToSql() (string, []interface{}, error) {
	if b.Left == nil || b.Right == nil {
		return "", nil, fmt.Errorf("binary %q is missing an operand", b.Op)
	}
	left, leftArgs, err := b.Left.ToSql()
	if err != nil {
		return "", nil, err
	}
	right, rightArgs, err := b.Right.ToSql()
	if err != nil {
		return "", nil, err
	}
	args := append(append([]interface{}{}, leftArgs...), rightArgs...)
	return fmt.Sprintf("%s %s %s", left, b.Op, right), args, nil
}

// BoolOp joins the clauses of a List.
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
)

// List is a conjunction or disjunction of clauses.
type List struct {
	Op      BoolOp
	Clauses []Expr
}

// AndOf conjoins clauses, flattening nested conjunctions. A single clause is
// returned as is.
func AndOf(clauses ...Expr) Expr {
	return listOf(And, clauses)
}

// OrOf disjoins clauses, flattening nested disjunctions.
func OrOf(clauses ...Expr) Expr {
	return listOf(Or, clauses)
}

func listOf(op BoolOp, clauses []Expr) Expr {
	flat := make([]Expr, 0, len(clauses))
	for _, clause := range clauses {
		if clause == nil {
			continue
		}
		if nested, ok := clause.(*List); ok && nested.Op == op {
			flat = append(flat, nested.Clauses...)
			continue
		}
		flat = append(flat, clause)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &List{Op: op, Clauses: flat}
}

func (*List) isExpr() {}

// ToSql renders the clauses joined by the operator. Nested lists are
// parenthesized.
func (l *List) ToSql() (string, []interface{}, error) {
	if len(l.Clauses) == 0 {
		return "", nil, fmt.Errorf("empty %s list", l.Op)
	}
	parts := make([]string, 0, len(l.Clauses))
	var args []interface{}
	for _, clause := range l.Clauses {
		sql, clauseArgs, err := clause.ToSql()
		if err != nil {
			return "", nil, err
		}
		if _, nested := clause.(*List); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		args = append(args, clauseArgs...)
	}
	return strings.Join(parts, " "+string(l.Op)+" "), args, nil
}

// LitString builds a quoted string literal that is rendered inline rather
// than bound.
func LitString(s string) Literal {
	return Literal{SQL: sqlutil.QuoteString(s)}
}
