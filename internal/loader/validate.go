package loader

import (
	"fmt"

	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"
)

// ValidatedSpec is a relationship whose lazy clause was proven to be a single
// column-equals-parameter comparison, optionally alongside static filters.
type ValidatedSpec struct {
	Spec mapping.RelationshipSpec
	// JoinColumn is the column the parameter is compared with.
	JoinColumn sqlexpr.ColumnRef
	// Ident is the owner column feeding the parameter.
	Ident sqlexpr.ColumnRef
	// StaticFilters are the parameter-free clauses of a secondary join.
	StaticFilters []sqlexpr.Expr
}

// Validate checks that spec can be loaded with one IN query.
func Validate(spec mapping.RelationshipSpec) (ValidatedSpec, error) {
	reject := func(format string, args ...any) (ValidatedSpec, error) {
		return ValidatedSpec{}, &UnsupportedRelationShapeError{
			Owner:        spec.Owner,
			Relationship: spec.Name,
			Reason:       fmt.Sprintf(format, args...),
		}
	}

	if spec.LazyClause == nil {
		return reject("no join condition")
	}
	params := sqlexpr.Params(spec.LazyClause)
	if len(params) != 1 {
		return reject("expected 1 bound parameter, found %d", len(params))
	}
	param := params[0]
	if param.HasValue || param.Column == nil {
		return reject("parameter %s is a literal value", param.Key)
	}
	if param.Column.Table != spec.OwnerTable.Name {
		return reject("parameter %s is not an owner column", param.Key)
	}

	validated := ValidatedSpec{Spec: spec, Ident: *param.Column}

	if !spec.HasSecondary() {
		col, ok := keyComparison(spec.LazyClause, param)
		if !ok {
			return reject("join is not a single column = parameter comparison")
		}
		if col.Table != spec.TargetTable.Name {
			return reject("join column %s is not on %s", col, spec.TargetTable.Name)
		}
		validated.JoinColumn = col
		return validated, nil
	}

	list, ok := spec.LazyClause.(*sqlexpr.List)
	if !ok || list.Op != sqlexpr.And {
		return reject("secondary join is not a conjunction")
	}
	found := false
	for _, clause := range list.Clauses {
		if _, ok := clause.(*sqlexpr.Binary); !ok {
			return reject("secondary join clause %T is not a comparison", clause)
		}
		if !sqlexpr.HasParams(clause) {
			validated.StaticFilters = append(validated.StaticFilters, clause)
			continue
		}
		col, ok := keyComparison(clause, param)
		if !ok || found {
			return reject("parameter is not compared by a single column = parameter clause")
		}
		if col.Table != spec.Secondary.Table.Name {
			return reject("join column %s is not on %s", col, spec.Secondary.Table.Name)
		}
		validated.JoinColumn = col
		found = true
	}
	if !found {
		return reject("no column = parameter clause")
	}
	return validated, nil
}

// keyComparison matches "column = param" in either operand order.
func keyComparison(e sqlexpr.Expr, param *sqlexpr.BindParam) (sqlexpr.ColumnRef, bool) {
	bin, ok := e.(*sqlexpr.Binary)
	if !ok || bin.Op != sqlexpr.OpEq {
		return sqlexpr.ColumnRef{}, false
	}
	if col, ok := bin.Left.(sqlexpr.ColumnRef); ok && bin.Right == sqlexpr.Expr(param) {
		return col, true
	}
	if col, ok := bin.Right.(sqlexpr.ColumnRef); ok && bin.Left == sqlexpr.Expr(param) {
		return col, true
	}
	return sqlexpr.ColumnRef{}, false
}
