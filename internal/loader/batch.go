package loader

import (
	"context"
	"log/slog"

	"bulkload/internal/logging"
	"bulkload/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// batchLoader resolves a relationship for a group of owners with one query.
// With siblings disabled the group is just the triggering owner, which is
// the plain per-instance lazy load.
type batchLoader struct {
	spec     ValidatedSpec
	strategy string
	siblings bool
}

func (l *batchLoader) Load(ctx context.Context, uow UnitOfWork, owner Owner) (value any, err error) {
	spec := l.spec.Spec
	ctx, span := startLoaderSpan(ctx, "loader.load",
		attribute.String("bulkload.relationship", spec.Key()),
		attribute.String("bulkload.strategy", l.strategy),
		attribute.String("bulkload.cardinality", spec.Cardinality.String()),
	)
	outcome := ""
	defer func() { finishLoaderSpan(span, err, outcome) }()

	group := l.collect(uow, owner)
	span.SetAttributes(
		attribute.Int("bulkload.owner_count", group.size),
		attribute.Int("bulkload.key_count", len(group.keys)),
	)

	metrics := observability.LoaderMetricsFromContext(ctx)
	var rows []ResultRow
	if len(group.keys) == 0 {
		outcome = "no_keys"
		metrics.RecordSkipped(ctx, spec.Key(), l.strategy, outcome)
	} else {
		rows, err = uow.FetchByKeys(ctx, l.request(group.keys))
		if err != nil {
			return nil, err
		}
		metrics.RecordBatch(ctx, spec.Key(), l.strategy, group.size, len(rows))
		span.SetAttributes(attribute.Int("bulkload.result_rows", len(rows)))
	}

	logging.ForRelationship(ctx, spec.Key(), l.strategy).Debug("relationship loaded",
		slog.Int("owners", group.size),
		slog.Int("keys", len(group.keys)),
		slog.Int("rows", len(rows)),
	)
	return distribute(ctx, spec, group, rows, owner), nil
}

// collect builds the pending group: the trigger plus, when siblings are
// enabled, every persisted owner of the same entity whose relationship is
// still unresolved, in identity-map order.
func (l *batchLoader) collect(uow UnitOfWork, trigger Owner) *pendingGroup {
	group := newPendingGroup()
	ident := l.spec.Ident.Name
	add := func(o Owner) {
		key, ok := o.JoinKey(ident)
		group.add(o, key, ok)
	}

	if !l.siblings {
		add(trigger)
		return group
	}

	name := l.spec.Spec.Name
	var owners []Owner
	seenTrigger := false
	for _, o := range uow.Enumerate(l.spec.Spec.Owner) {
		if o == trigger {
			seenTrigger = true
			owners = append(owners, o)
			continue
		}
		if o.IsNew() || o.HasResolved(name) {
			continue
		}
		owners = append(owners, o)
	}
	if !seenTrigger {
		add(trigger)
	}
	for _, o := range owners {
		add(o)
	}
	return group
}

func (l *batchLoader) request(keys []any) FetchRequest {
	spec := l.spec.Spec
	req := FetchRequest{
		Relationship:  spec.Key(),
		TargetEntity:  spec.Target,
		Target:        spec.TargetTable,
		JoinColumn:    l.spec.JoinColumn,
		Keys:          append([]any(nil), keys...),
		StaticFilters: l.spec.StaticFilters,
		OrderBy:       spec.OrderByTerms(),
	}
	if spec.Secondary != nil {
		secondary := spec.Secondary.Table
		req.Secondary = &secondary
	}
	return req
}
