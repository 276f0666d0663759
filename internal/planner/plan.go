// Package planner builds the SQL statements the session runs: plain owner
// selects and the batched "join column IN (keys)" relationship fetch.
package planner

import (
	"fmt"
	"strings"

	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"
	"bulkload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// BatchParentAlias is the column alias used to return the matched key in batch queries.
const BatchParentAlias = "__batch_parent_id"

// SQLQuery is a planned statement with its positional arguments.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// KeyFetch describes one batched relationship fetch.
type KeyFetch struct {
	Target     mapping.Table
	JoinColumn sqlexpr.ColumnRef
	Keys       []interface{}
	// Filters are parameter-free clauses. With a secondary table they form
	// its join condition; otherwise they are added to WHERE.
	Filters   []sqlexpr.Expr
	OrderBy   []mapping.OrderTerm
	Secondary *mapping.Table
}

// PlanFetchByKeys builds
//
//	SELECT <target cols>, <join col> AS __batch_parent_id
//	FROM <target> [INNER JOIN <secondary> ON <filters>]
//	WHERE <join col> IN (?, ...) [ORDER BY ...]
func PlanFetchByKeys(f KeyFetch) (SQLQuery, error) {
	if len(f.Keys) == 0 {
		return SQLQuery{}, fmt.Errorf("batch fetch on %s requires at least one key", f.Target.Name)
	}
	if len(f.Target.Columns) == 0 {
		return SQLQuery{}, fmt.Errorf("batch fetch on %s has no columns", f.Target.Name)
	}
	joinColumn, _, err := f.JoinColumn.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}

	builder := sq.Select(qualifiedColumns(f.Target)...).
		Column(fmt.Sprintf("%s AS %s", joinColumn, BatchParentAlias)).
		From(sqlutil.QuoteIdentifier(f.Target.Name))

	if f.Secondary != nil {
		if len(f.Filters) == 0 {
			return SQLQuery{}, fmt.Errorf("batch fetch through %s requires a join condition", f.Secondary.Name)
		}
		onSQL, onArgs, err := sqlexpr.AndOf(f.Filters...).ToSql()
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.JoinClause(
			fmt.Sprintf("INNER JOIN %s ON %s", sqlutil.QuoteIdentifier(f.Secondary.Name), onSQL),
			onArgs...,
		)
	} else {
		for _, filter := range f.Filters {
			builder = builder.Where(filter)
		}
	}

	builder = builder.Where(sq.Eq{joinColumn: f.Keys})
	if clauses := orderByClauses(f.OrderBy); len(clauses) > 0 {
		builder = builder.OrderBy(clauses...)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanSelect builds a select over every column of table. Without an explicit
// ordering rows come back in primary key order.
func PlanSelect(table mapping.Table, where sq.Sqlizer, orderBy []mapping.OrderTerm) (SQLQuery, error) {
	if len(table.Columns) == 0 {
		return SQLQuery{}, fmt.Errorf("select on %s has no columns", table.Name)
	}
	builder := sq.Select(qualifiedColumns(table)...).
		From(sqlutil.QuoteIdentifier(table.Name))
	if where != nil {
		builder = builder.Where(where)
	}

	if len(orderBy) == 0 {
		for _, col := range table.PrimaryKeyColumns() {
			orderBy = append(orderBy, mapping.Asc(sqlexpr.Col(table.Name, col.Name)))
		}
	}
	if clauses := orderByClauses(orderBy); len(clauses) > 0 {
		builder = builder.OrderBy(clauses...)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func qualifiedColumns(table mapping.Table) []string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = sqlutil.QuoteQualified(table.Name, col.Name)
	}
	return cols
}

func orderByClauses(terms []mapping.OrderTerm) []string {
	clauses := make([]string, 0, len(terms))
	for _, term := range terms {
		direction := "ASC"
		if term.Desc {
			direction = "DESC"
		}
		clauses = append(clauses, strings.Join([]string{
			sqlutil.QuoteQualified(term.Column.Table, term.Column.Name),
			direction,
		}, " "))
	}
	return clauses
}
