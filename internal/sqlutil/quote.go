// Package sqlutil provides SQL quoting helpers shared by the planner and the
// join-condition expressions. Backtick quoting is understood by both MySQL
// and SQLite.
package sqlutil

import "strings"

// QuoteIdentifier quotes a table or column name with backticks, doubling any
// embedded backtick.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteQualified quotes "table"."column". An empty table yields just the
// quoted column.
func QuoteQualified(table, column string) string {
	if table == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}

// QuoteString quotes a SQL string literal, doubling embedded single quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
