// Package loader resolves lazy relationships. The bulk strategy answers the
// first access to a relationship by loading it for every sibling owner in the
// unit of work with one "join_col IN (keys)" query.
//
// The package sees the unit of work only through the Owner and UnitOfWork
// interfaces; the session implements both.
package loader

import (
	"context"

	"bulkload/internal/mapping"
	"bulkload/internal/sqlexpr"
)

// Owner is an entity instance as seen by a loader.
type Owner interface {
	Entity() string
	// IsNew reports a pending instance that has never been persisted.
	IsNew() bool
	// HasResolved reports whether the named relationship already holds a value
	// (possibly nil).
	HasResolved(name string) bool
	// JoinKey reads a column value, preferring uncommitted changes.
	JoinKey(column string) (any, bool)
	// WriteResolved stores a relationship value without triggering a load.
	WriteResolved(name string, value any)
}

// UnitOfWork is the session contract consumed by loaders.
type UnitOfWork interface {
	// Enumerate lists the identity map's instances of entity in insertion order.
	Enumerate(entity string) []Owner
	// FetchByKeys runs exactly one query and reports, for every row, which key produced it.
	FetchByKeys(ctx context.Context, req FetchRequest) ([]ResultRow, error)
}

// FetchRequest describes the single batched query for one relationship.
type FetchRequest struct {
	Relationship string
	TargetEntity string
	Target       mapping.Table
	// JoinColumn is compared against Keys: a target column, or an
	// association-table column when Secondary is set.
	JoinColumn    sqlexpr.ColumnRef
	Keys          []any
	StaticFilters []sqlexpr.Expr
	OrderBy       []mapping.OrderTerm
	Secondary     *mapping.Table
}

// ResultRow is one fetched target together with the key value that matched it.
type ResultRow struct {
	Target Owner
	Key    any
}

// RelationLoader resolves one configured relationship.
type RelationLoader interface {
	// Load resolves the relationship for owner and returns owner's value: nil
	// or an Owner for to-one relationships, []Owner for to-many.
	Load(ctx context.Context, uow UnitOfWork, owner Owner) (any, error)
}

// Strategy prepares loaders for relationships that select it by name.
type Strategy interface {
	Name() string
	Prepare(spec mapping.RelationshipSpec) (RelationLoader, error)
}
