package mapping

import (
	"fmt"

	"bulkload/internal/sqlexpr"
)

// SecondaryJoin describes the association table of a many-to-many relationship.
type SecondaryJoin struct {
	Table Table
	// OwnerColumns are association columns compared with the owner's local columns.
	OwnerColumns []string
	// TargetColumns are association columns compared with target columns.
	TargetColumns []string
}

// RelationshipSpec is the configured, immutable description of one
// relationship. It is produced by Registry.Configure and never modified.
type RelationshipSpec struct {
	Owner       string
	Name        string
	Target      string
	OwnerTable  Table
	TargetTable Table
	Direction   Direction
	Cardinality Cardinality
	// LocalColumns are owner columns feeding the join.
	LocalColumns []string
	// RemoteColumns are the target (or association) columns they are compared with.
	RemoteColumns []string
	Secondary     *SecondaryJoin
	// JoinCondition is the full join between owner and target (through the
	// association table when there is one).
	JoinCondition sqlexpr.Expr
	// LazyClause is JoinCondition with every owner-local column replaced by an
	// unset bind parameter: the per-owner lazy load criterion.
	LazyClause sqlexpr.Expr
	OrderBy    []OrderTerm
	// Backref names the inverse relationship on the target, if any.
	Backref            string
	BackrefCardinality Cardinality
	Strategy           string
}

// Key identifies the relationship as "Owner.name".
func (s RelationshipSpec) Key() string {
	return RelationshipKey(s.Owner, s.Name)
}

// RelationshipKey builds the "Owner.name" key used to look up relationships.
func RelationshipKey(owner, name string) string {
	return fmt.Sprintf("%s.%s", owner, name)
}

// HasSecondary reports whether the relationship joins through an association table.
func (s RelationshipSpec) HasSecondary() bool {
	return s.Secondary != nil
}

// OrderByTerms returns a copy of the configured ordering.
func (s RelationshipSpec) OrderByTerms() []OrderTerm {
	return append([]OrderTerm(nil), s.OrderBy...)
}
