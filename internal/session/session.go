// Package session is the unit of work relationship loaders run against: an
// identity map of instances, owner queries, and the FetchByKeys adapter that
// executes one batched statement and materializes its rows.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"bulkload/internal/dbexec"
	"bulkload/internal/loader"
	"bulkload/internal/logging"
	"bulkload/internal/mapping"
	"bulkload/internal/observability"
	"bulkload/internal/planner"
	"bulkload/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Session owns an identity map and resolves relationships through the
// configured loaders. A Session is not meant to be shared between
// goroutines; its mutex only keeps loads atomic with respect to each other.
type Session struct {
	id      string
	exec    dbexec.QueryExecutor
	loaders *loader.Loaders
	logger  *logging.Logger
	metrics *observability.LoaderMetrics

	mu        sync.Mutex
	instances map[string]*Instance
	byEntity  map[string][]*Instance
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics records loader metrics for every load.
func WithMetrics(metrics *observability.LoaderMetrics) Option {
	return func(s *Session) {
		s.metrics = metrics
	}
}

// New creates a session executing through exec.
func New(exec dbexec.QueryExecutor, loaders *loader.Loaders, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		exec:      exec,
		loaders:   loaders,
		instances: make(map[string]*Instance),
		byEntity:  make(map[string][]*Instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.FromContext(context.Background())
	}
	s.logger = s.logger.WithSessionID(s.id)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

type queryOptions struct {
	where   sq.Sqlizer
	orderBy []mapping.OrderTerm
}

// QueryOption narrows a Query.
type QueryOption func(*queryOptions)

// Where filters owners.
func Where(pred sq.Sqlizer) QueryOption {
	return func(o *queryOptions) {
		o.where = pred
	}
}

// OrderBy orders owners.
func OrderBy(terms ...mapping.OrderTerm) QueryOption {
	return func(o *queryOptions) {
		o.orderBy = append(o.orderBy, terms...)
	}
}

// Query loads rows of entity into the identity map and returns their instances.
func (s *Session) Query(ctx context.Context, entity string, opts ...QueryOption) ([]*Instance, error) {
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	planned, err := planner.PlanSelect(e.Table, qo.where, qo.orderBy)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Instance
	err = s.scan(ctx, planned, func(values map[string]any) {
		out = append(out, s.materialize(entity, e.Table, values))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the instance with the given primary key values, querying only
// if it is not already in the identity map.
func (s *Session) Get(ctx context.Context, entity string, pk ...any) (*Instance, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	pkCols := e.Table.PrimaryKeyColumns()
	if len(pk) != len(pkCols) {
		return nil, fmt.Errorf("entity %s: expected %d primary key values, got %d", entity, len(pkCols), len(pk))
	}

	s.mu.Lock()
	inst, ok := s.instances[identityKey(entity, pk)]
	s.mu.Unlock()
	if ok {
		return inst, nil
	}

	where := sq.Eq{}
	for i, col := range pkCols {
		where[sqlutil.QuoteQualified(e.Table.Name, col.Name)] = pk[i]
	}
	found, err := s.Query(ctx, entity, Where(where))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// Add registers a new, unsaved instance.
func (s *Session) Add(entity string, values map[string]any) (*Instance, error) {
	if _, err := s.entity(entity); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := newInstance(entity, "new:"+uuid.NewString(), nil, true)
	for k, v := range values {
		inst.pending[k] = v
	}
	s.track(inst)
	return inst, nil
}

// Load returns the value of a relationship, resolving it through its
// configured strategy on first access.
func (s *Session) Load(ctx context.Context, inst *Instance, relationship string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := inst.resolved[relationship]; ok {
		return v, nil
	}
	rl, _, err := s.loaders.Loader(inst.entity, relationship)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithLogger(ctx, s.logger)
	ctx = logging.WithSessionIDContext(ctx, s.id)
	if s.metrics != nil {
		ctx = observability.ContextWithLoaderMetrics(ctx, s.metrics)
	}
	if _, err := rl.Load(ctx, s, inst); err != nil {
		return nil, err
	}
	return inst.resolved[relationship], nil
}

// LoadOne loads a to-one relationship.
func (s *Session) LoadOne(ctx context.Context, inst *Instance, relationship string) (*Instance, error) {
	v, err := s.Load(ctx, inst, relationship)
	if err != nil {
		return nil, err
	}
	switch target := v.(type) {
	case nil:
		return nil, nil
	case *Instance:
		return target, nil
	default:
		return nil, fmt.Errorf("relationship %s.%s is not to-one", inst.entity, relationship)
	}
}

// LoadMany loads a to-many relationship. The returned slice belongs to the
// instance; callers may modify it.
func (s *Session) LoadMany(ctx context.Context, inst *Instance, relationship string) ([]*Instance, error) {
	v, err := s.Load(ctx, inst, relationship)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]*Instance)
	if !ok {
		return nil, fmt.Errorf("relationship %s.%s is not to-many", inst.entity, relationship)
	}
	return list, nil
}

// SetCommitted stores a relationship value as if it had been loaded.
func (s *Session) SetCommitted(inst *Instance, relationship string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst.WriteResolved(relationship, value)
}

// Enumerate lists tracked instances of entity in insertion order.
func (s *Session) Enumerate(entity string) []loader.Owner {
	tracked := s.byEntity[entity]
	owners := make([]loader.Owner, len(tracked))
	for i, inst := range tracked {
		owners[i] = inst
	}
	return owners
}

// FetchByKeys runs the batched relationship query and materializes every
// row through the identity map. Executor errors are returned unchanged.
// Loaders call it from Load, under the session lock.
func (s *Session) FetchByKeys(ctx context.Context, req loader.FetchRequest) ([]loader.ResultRow, error) {
	planned, err := planner.PlanFetchByKeys(planner.KeyFetch{
		Target:     req.Target,
		JoinColumn: req.JoinColumn,
		Keys:       req.Keys,
		Filters:    req.StaticFilters,
		OrderBy:    req.OrderBy,
		Secondary:  req.Secondary,
	})
	if err != nil {
		return nil, err
	}

	var rows []loader.ResultRow
	err = s.scan(ctx, planned, func(values map[string]any) {
		key := values[planner.BatchParentAlias]
		delete(values, planner.BatchParentAlias)
		rows = append(rows, loader.ResultRow{
			Target: s.materialize(req.TargetEntity, req.Target, values),
			Key:    key,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("batch fetch",
		slog.String("relationship", req.Relationship),
		slog.Int("keys", len(req.Keys)),
		slog.Int("rows", len(rows)),
	)
	return rows, nil
}

func (s *Session) scan(ctx context.Context, planned planner.SQLQuery, fn func(map[string]any)) error {
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		values := make(map[string]any, len(cols))
		for i, col := range cols {
			values[col] = normalizeValue(raw[i])
		}
		fn(values)
	}
	return rows.Err()
}

// materialize returns the tracked instance for the row's identity, creating
// it if needed. Tracked instances are never overwritten.
func (s *Session) materialize(entity string, table mapping.Table, values map[string]any) *Instance {
	pkCols := table.PrimaryKeyColumns()
	pk := make([]any, len(pkCols))
	for i, col := range pkCols {
		pk[i] = values[col.Name]
	}
	key := identityKey(entity, pk)
	if inst, ok := s.instances[key]; ok {
		return inst
	}
	inst := newInstance(entity, key, values, false)
	s.track(inst)
	return inst
}

func (s *Session) track(inst *Instance) {
	s.instances[inst.identity] = inst
	s.byEntity[inst.entity] = append(s.byEntity[inst.entity], inst)
}

func (s *Session) entity(name string) (mapping.Entity, error) {
	e, ok := s.loaders.Mappings().Entity(name)
	if !ok {
		return mapping.Entity{}, fmt.Errorf("%w %q", mapping.ErrUnknownEntity, name)
	}
	return e, nil
}

func identityKey(entity string, pk []any) string {
	parts := make([]string, len(pk))
	for i, v := range pk {
		parts[i] = fmt.Sprint(normalizeValue(v))
	}
	return entity + ":" + strings.Join(parts, ",")
}

// normalizeValue turns driver byte slices into strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
