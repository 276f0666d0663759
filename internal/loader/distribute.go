package loader

import (
	"context"
	"log/slog"

	"bulkload/internal/logging"
	"bulkload/internal/mapping"
	"bulkload/internal/observability"
)

// MultiplicityDiagnostic describes a to-one key that matched several rows.
type MultiplicityDiagnostic struct {
	Relationship string
	Key          any
	Rows         int
}

func (d MultiplicityDiagnostic) report(ctx context.Context) {
	logging.ForRelationship(ctx, d.Relationship, "").Warn("multiple rows for to-one relationship, keeping the first",
		slog.Any("key", d.Key),
		slog.Int("rows", d.Rows),
	)
	observability.LoaderMetricsFromContext(ctx).RecordMultiplicityDiagnostic(ctx, d.Relationship)
}

// distribute writes every grouped owner's value and returns the trigger's.
func distribute(ctx context.Context, spec mapping.RelationshipSpec, group *pendingGroup, rows []ResultRow, trigger Owner) any {
	buckets := bucketRows(rows)
	writeBackref := spec.Backref != "" &&
		spec.BackrefCardinality == mapping.ToOne &&
		spec.Direction != mapping.ManyToMany

	var triggerValue any
	assign := func(owner Owner, value any) {
		owner.WriteResolved(spec.Name, value)
		if owner == trigger {
			triggerValue = value
		}
	}

	for i, k := range group.order {
		targets := buckets[k]
		if spec.Cardinality == mapping.ToOne && len(targets) > 1 {
			MultiplicityDiagnostic{
				Relationship: spec.Key(),
				Key:          group.keys[i],
				Rows:         len(targets),
			}.report(ctx)
		}
		for _, owner := range group.buckets[k] {
			assign(owner, resolvedValue(spec.Cardinality, targets))
			if !writeBackref {
				continue
			}
			for _, target := range targets {
				if !target.HasResolved(spec.Backref) {
					target.WriteResolved(spec.Backref, owner)
				}
			}
		}
	}
	for _, owner := range group.unkeyed {
		assign(owner, resolvedValue(spec.Cardinality, nil))
	}
	return triggerValue
}

// bucketRows groups targets by key in query order. A target repeated under
// one key (duplicate association rows) is kept once.
func bucketRows(rows []ResultRow) map[string][]Owner {
	buckets := make(map[string][]Owner)
	seen := make(map[string]map[Owner]struct{})
	for _, row := range rows {
		k := normalizeKey(row.Key)
		if seen[k] == nil {
			seen[k] = make(map[Owner]struct{})
		}
		if _, dup := seen[k][row.Target]; dup {
			continue
		}
		seen[k][row.Target] = struct{}{}
		buckets[k] = append(buckets[k], row.Target)
	}
	return buckets
}

// resolvedValue builds one owner's value. To-many values are always a fresh
// slice so owners never share a list.
func resolvedValue(cardinality mapping.Cardinality, targets []Owner) any {
	if cardinality == mapping.ToMany {
		return append(make([]Owner, 0, len(targets)), targets...)
	}
	if len(targets) == 0 {
		return nil
	}
	return targets[0]
}
