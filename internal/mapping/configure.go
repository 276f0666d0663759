package mapping

import (
	"fmt"

	"bulkload/internal/sqlexpr"
)

// joinShape is the resolved structure of one relationship direction.
type joinShape struct {
	direction Direction
	// local are owner columns; remote are what they are compared with.
	local  []sqlexpr.ColumnRef
	remote []sqlexpr.ColumnRef
	// primary joins the owner to the target or association table.
	primary sqlexpr.Expr

	// Association-table relationships only.
	secondary     *Table
	secondaryJoin sqlexpr.Expr
	// targetCols are target-table columns appearing in secondaryJoin.
	targetCols []sqlexpr.ColumnRef
	// assocOwner / assocTarget are association columns in each join.
	assocOwner  []string
	assocTarget []string
}

func (r *Registry) configureLocked() ([]RelationshipSpec, error) {
	var specs []RelationshipSpec
	names := make(map[string]struct{})

	add := func(spec RelationshipSpec) error {
		key := spec.Key()
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: relationship %s", ErrDuplicateMapping, key)
		}
		names[key] = struct{}{}
		specs = append(specs, spec)
		return nil
	}

	for _, entityName := range r.order {
		owner := r.entities[entityName]
		for _, rel := range owner.Relationships {
			target, ok := r.entities[rel.Target]
			if !ok {
				return nil, fmt.Errorf("relationship %s.%s: %w %q", owner.Name, rel.Name, ErrUnknownEntity, rel.Target)
			}
			if rel.Name == "" {
				return nil, fmt.Errorf("entity %s: relationship name is required", owner.Name)
			}

			shape, err := r.resolveShape(owner, target, rel)
			if err != nil {
				return nil, fmt.Errorf("relationship %s.%s: %w", owner.Name, rel.Name, err)
			}

			spec := buildSpec(owner, target, rel.Name, shape, rel.UseList, rel.OrderBy, rel.Lazy)
			if rel.Backref != nil {
				inverseShape := invert(shape, owner.Table, target.Table)
				inverse := buildSpec(target, owner, rel.Backref.Name, inverseShape, rel.Backref.UseList, nil, rel.Backref.Lazy)
				inverse.Backref = spec.Name
				inverse.BackrefCardinality = spec.Cardinality
				spec.Backref = inverse.Name
				spec.BackrefCardinality = inverse.Cardinality
				if err := add(spec); err != nil {
					return nil, err
				}
				if err := add(inverse); err != nil {
					return nil, err
				}
				continue
			}
			if err := add(spec); err != nil {
				return nil, err
			}
		}
	}
	return specs, nil
}

func (r *Registry) resolveShape(owner, target *Entity, rel Relationship) (joinShape, error) {
	if rel.Secondary != "" {
		return r.resolveSecondaryShape(owner, target, rel)
	}

	ot, tt := owner.Table, target.Table
	shape, fkErr := foreignKeyShape(ot, tt, rel.RemoteSide)
	if rel.PrimaryJoin == nil {
		if fkErr != nil {
			return joinShape{}, fkErr
		}
		shape.primary = pairwiseJoin(shape.local, shape.remote)
		return shape, nil
	}

	// Custom join: owner-table columns not marked remote are local.
	direction := OneToMany
	if fkErr == nil {
		direction = shape.direction
	}
	local, remote := splitColumns(rel.PrimaryJoin, ot.Name, rel.RemoteSide)
	if len(local) == 0 {
		return joinShape{}, fmt.Errorf("primary join does not reference table %s", ot.Name)
	}
	return joinShape{
		direction: direction,
		local:     local,
		remote:    remote,
		primary:   rel.PrimaryJoin,
	}, nil
}

func (r *Registry) resolveSecondaryShape(owner, target *Entity, rel Relationship) (joinShape, error) {
	st, ok := r.tables[rel.Secondary]
	if !ok {
		return joinShape{}, fmt.Errorf("%w %q", ErrUnknownTable, rel.Secondary)
	}
	ot, tt := owner.Table, target.Table
	if ot.Name == tt.Name && (rel.PrimaryJoin == nil || rel.SecondaryJoin == nil) {
		return joinShape{}, fmt.Errorf("%w: self-referential association %s needs explicit joins", ErrAmbiguousForeignKey, st.Name)
	}

	shape := joinShape{direction: ManyToMany, secondary: &st}

	if rel.PrimaryJoin == nil {
		fk, err := singleForeignKey(st, ot.Name)
		if err != nil {
			return joinShape{}, err
		}
		for i, col := range fk.ReferencedColumns {
			shape.local = append(shape.local, sqlexpr.Col(ot.Name, col))
			shape.remote = append(shape.remote, sqlexpr.Col(st.Name, fk.Columns[i]))
		}
		shape.assocOwner = append([]string(nil), fk.Columns...)
		shape.primary = pairwiseJoin(shape.local, shape.remote)
	} else {
		shape.primary = rel.PrimaryJoin
		shape.local, shape.remote = splitColumns(rel.PrimaryJoin, ot.Name, nil)
		if len(shape.local) == 0 {
			return joinShape{}, fmt.Errorf("primary join does not reference table %s", ot.Name)
		}
		shape.assocOwner = columnsOfTable(shape.remote, st.Name)
	}

	if rel.SecondaryJoin == nil {
		fk, err := singleForeignKey(st, tt.Name)
		if err != nil {
			return joinShape{}, err
		}
		var assoc []sqlexpr.ColumnRef
		for i, col := range fk.ReferencedColumns {
			shape.targetCols = append(shape.targetCols, sqlexpr.Col(tt.Name, col))
			assoc = append(assoc, sqlexpr.Col(st.Name, fk.Columns[i]))
		}
		shape.assocTarget = append([]string(nil), fk.Columns...)
		shape.secondaryJoin = pairwiseJoin(shape.targetCols, assoc)
	} else {
		shape.secondaryJoin = rel.SecondaryJoin
		var assoc []sqlexpr.ColumnRef
		shape.targetCols, assoc = splitColumns(rel.SecondaryJoin, tt.Name, nil)
		shape.assocTarget = columnsOfTable(assoc, st.Name)
	}
	return shape, nil
}

// foreignKeyShape derives direction and column pairs from the foreign keys
// between the owner and target tables.
func foreignKeyShape(ot, tt Table, remoteSide []string) (joinShape, error) {
	if ot.Name == tt.Name {
		fk, err := singleForeignKey(ot, ot.Name)
		if err != nil {
			return joinShape{}, err
		}
		if len(remoteSide) > 0 && containsAll(remoteSide, fk.ReferencedColumns) {
			return pairShape(ManyToOne, ot.Name, fk.Columns, tt.Name, fk.ReferencedColumns), nil
		}
		return pairShape(OneToMany, ot.Name, fk.ReferencedColumns, tt.Name, fk.Columns), nil
	}

	toOwner := tt.ForeignKeysTo(ot.Name)
	toTarget := ot.ForeignKeysTo(tt.Name)
	switch {
	case len(toOwner)+len(toTarget) == 0:
		return joinShape{}, fmt.Errorf("%w: %s and %s", ErrNoForeignKey, ot.Name, tt.Name)
	case len(toOwner)+len(toTarget) > 1:
		return joinShape{}, fmt.Errorf("%w: %s and %s", ErrAmbiguousForeignKey, ot.Name, tt.Name)
	case len(toOwner) == 1:
		fk := toOwner[0]
		return pairShape(OneToMany, ot.Name, fk.ReferencedColumns, tt.Name, fk.Columns), nil
	default:
		fk := toTarget[0]
		return pairShape(ManyToOne, ot.Name, fk.Columns, tt.Name, fk.ReferencedColumns), nil
	}
}

func pairShape(direction Direction, localTable string, local []string, remoteTable string, remote []string) joinShape {
	shape := joinShape{direction: direction}
	for i := range local {
		shape.local = append(shape.local, sqlexpr.Col(localTable, local[i]))
		shape.remote = append(shape.remote, sqlexpr.Col(remoteTable, remote[i]))
	}
	return shape
}

func singleForeignKey(t Table, referenced string) (ForeignKey, error) {
	fks := t.ForeignKeysTo(referenced)
	switch len(fks) {
	case 0:
		return ForeignKey{}, fmt.Errorf("%w: %s to %s", ErrNoForeignKey, t.Name, referenced)
	case 1:
		fk := fks[0]
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
			return ForeignKey{}, fmt.Errorf("foreign key %s on %s has mismatched columns", fk.Name, t.Name)
		}
		return fk, nil
	default:
		return ForeignKey{}, fmt.Errorf("%w: %s to %s", ErrAmbiguousForeignKey, t.Name, referenced)
	}
}

func pairwiseJoin(local, remote []sqlexpr.ColumnRef) sqlexpr.Expr {
	clauses := make([]sqlexpr.Expr, len(local))
	for i := range local {
		clauses[i] = sqlexpr.Eq(local[i], remote[i])
	}
	return sqlexpr.AndOf(clauses...)
}

// splitColumns partitions the distinct columns of e into those of table
// (minus excluded names) and all others.
func splitColumns(e sqlexpr.Expr, table string, excluded []string) (inTable, others []sqlexpr.ColumnRef) {
	seen := make(map[sqlexpr.ColumnRef]struct{})
	for _, col := range sqlexpr.Columns(e) {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		if col.Table == table && !contains(excluded, col.Name) {
			inTable = append(inTable, col)
			continue
		}
		others = append(others, col)
	}
	return inTable, others
}

func columnsOfTable(cols []sqlexpr.ColumnRef, table string) []string {
	var names []string
	for _, col := range cols {
		if col.Table == table {
			names = append(names, col.Name)
		}
	}
	return names
}

// invert returns the shape of the inverse relationship (target to owner).
func invert(shape joinShape, ot, tt Table) joinShape {
	if shape.secondary != nil {
		return joinShape{
			direction:     ManyToMany,
			local:         shape.targetCols,
			remote:        qualify(shape.secondary.Name, shape.assocTarget),
			primary:       shape.secondaryJoin,
			secondary:     shape.secondary,
			secondaryJoin: shape.primary,
			targetCols:    shape.local,
			assocOwner:    shape.assocTarget,
			assocTarget:   shape.assocOwner,
		}
	}

	direction := shape.direction
	switch shape.direction {
	case OneToMany:
		direction = ManyToOne
	case ManyToOne:
		direction = OneToMany
	}
	return joinShape{
		direction: direction,
		local:     shape.remote,
		remote:    shape.local,
		primary:   shape.primary,
	}
}

func qualify(table string, cols []string) []sqlexpr.ColumnRef {
	refs := make([]sqlexpr.ColumnRef, len(cols))
	for i, col := range cols {
		refs[i] = sqlexpr.Col(table, col)
	}
	return refs
}

// lazyClause replaces every owner-local column of the join with a bind
// parameter. The same column always maps to the same parameter.
func lazyClause(shape joinShape) sqlexpr.Expr {
	local := make(map[sqlexpr.ColumnRef]*sqlexpr.BindParam, len(shape.local))
	for _, col := range shape.local {
		local[col] = nil
	}
	substituted := sqlexpr.ReplaceColumns(shape.primary, func(col sqlexpr.ColumnRef) (sqlexpr.Expr, bool) {
		p, ok := local[col]
		if !ok {
			return nil, false
		}
		if p == nil {
			p = sqlexpr.Param(col)
			local[col] = p
		}
		return p, true
	})
	if shape.secondary != nil {
		return sqlexpr.AndOf(shape.secondaryJoin, substituted)
	}
	return substituted
}

func buildSpec(owner, target *Entity, name string, shape joinShape, useList *bool, orderBy []OrderTerm, lazy string) RelationshipSpec {
	cardinality := ToMany
	if shape.direction == ManyToOne {
		cardinality = ToOne
	}
	if useList != nil {
		if *useList {
			cardinality = ToMany
		} else {
			cardinality = ToOne
		}
	}

	spec := RelationshipSpec{
		Owner:         owner.Name,
		Name:          name,
		Target:        target.Name,
		OwnerTable:    copyTable(owner.Table),
		TargetTable:   copyTable(target.Table),
		Direction:     shape.direction,
		Cardinality:   cardinality,
		LocalColumns:  columnNames(shape.local),
		RemoteColumns: columnNames(shape.remote),
		LazyClause:    lazyClause(shape),
		OrderBy:       append([]OrderTerm(nil), orderBy...),
		Strategy:      lazy,
	}
	if shape.secondary != nil {
		spec.Secondary = &SecondaryJoin{
			Table:         copyTable(*shape.secondary),
			OwnerColumns:  append([]string(nil), shape.assocOwner...),
			TargetColumns: append([]string(nil), shape.assocTarget...),
		}
		spec.JoinCondition = sqlexpr.AndOf(shape.primary, shape.secondaryJoin)
	} else {
		spec.JoinCondition = shape.primary
	}
	return spec
}

func columnNames(cols []sqlexpr.ColumnRef) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsAll(values []string, required []string) bool {
	for _, v := range required {
		if !contains(values, v) {
			return false
		}
	}
	return true
}
