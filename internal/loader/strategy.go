package loader

import (
	"fmt"
	"sync"

	"bulkload/internal/mapping"
)

const (
	// StrategyBulk loads a relationship for every sibling owner at once.
	StrategyBulk = "bulk"
	// StrategySelect loads a relationship for one owner per query.
	StrategySelect = "select"
)

type batchStrategy struct {
	name     string
	siblings bool
}

// BulkStrategy returns the batched sibling-loading strategy.
func BulkStrategy() Strategy { return batchStrategy{name: StrategyBulk, siblings: true} }

// SelectStrategy returns the one-query-per-owner strategy.
func SelectStrategy() Strategy { return batchStrategy{name: StrategySelect} }

func (s batchStrategy) Name() string { return s.name }

func (s batchStrategy) Prepare(spec mapping.RelationshipSpec) (RelationLoader, error) {
	validated, err := Validate(spec)
	if err != nil {
		return nil, err
	}
	return &batchLoader{spec: validated, strategy: s.name, siblings: s.siblings}, nil
}

// StrategyHandle is returned by Register and names the registered strategy.
type StrategyHandle struct {
	name string
}

// Name returns the strategy name relationships use to select it.
func (h StrategyHandle) Name() string { return h.name }

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultStrategy sets the strategy used by relationships that name none.
func WithDefaultStrategy(name string) Option {
	return func(r *Registry) {
		r.defaultStrategy = name
	}
}

// Registry holds loading strategies. Strategies are registered during
// initialization; Configure then freezes the registry and prepares a loader
// for every relationship.
type Registry struct {
	mu              sync.Mutex
	strategies      map[string]Strategy
	defaultStrategy string
	frozen          bool

	once    sync.Once
	loaders *Loaders
	err     error
}

// NewRegistry creates an empty strategy registry. The default strategy is
// "select" unless overridden.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		strategies:      make(map[string]Strategy),
		defaultStrategy: StrategySelect,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry creates a registry with the select and bulk strategies registered.
func DefaultRegistry(opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	for _, s := range []Strategy{SelectStrategy(), BulkStrategy()} {
		if _, err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a strategy. It fails once Configure has run.
func (r *Registry) Register(s Strategy) (StrategyHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return StrategyHandle{}, ErrRegistryFrozen
	}
	name := s.Name()
	if name == "" {
		return StrategyHandle{}, fmt.Errorf("strategy name is required")
	}
	if _, ok := r.strategies[name]; ok {
		return StrategyHandle{}, fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return StrategyHandle{name: name}, nil
}

// Configure finalizes mappings and prepares a loader for every relationship.
// It runs once; later calls return the first result, including its error.
func (r *Registry) Configure(mappings *mapping.Registry) (*Loaders, error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.frozen = true
		r.mu.Unlock()
		r.loaders, r.err = r.configure(mappings)
	})
	return r.loaders, r.err
}

func (r *Registry) configure(mappings *mapping.Registry) (*Loaders, error) {
	specs, err := mappings.Configure()
	if err != nil {
		return nil, err
	}

	loaders := &Loaders{
		mappings: mappings,
		entries:  make(map[string]loaderEntry, len(specs)),
	}
	for _, spec := range specs {
		name := spec.Strategy
		if name == "" {
			name = r.defaultStrategy
		}
		strategy, ok := r.strategies[name]
		if !ok {
			return nil, fmt.Errorf("relationship %s: %w %q", spec.Key(), ErrUnknownStrategy, name)
		}
		spec.Strategy = name
		rl, err := strategy.Prepare(spec)
		if err != nil {
			return nil, err
		}
		loaders.entries[spec.Key()] = loaderEntry{loader: rl, spec: spec}
		loaders.order = append(loaders.order, spec.Key())
	}
	return loaders, nil
}

type loaderEntry struct {
	loader RelationLoader
	spec   mapping.RelationshipSpec
}

// Loaders is the configured set of relationship loaders.
type Loaders struct {
	mappings *mapping.Registry
	entries  map[string]loaderEntry
	order    []string
}

// Loader returns the loader and spec for entity.relationship.
func (l *Loaders) Loader(entity, relationship string) (RelationLoader, mapping.RelationshipSpec, error) {
	entry, ok := l.entries[mapping.RelationshipKey(entity, relationship)]
	if !ok {
		return nil, mapping.RelationshipSpec{}, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, entity, relationship)
	}
	return entry.loader, entry.spec, nil
}

// Specs returns every configured relationship in configuration order.
func (l *Loaders) Specs() []mapping.RelationshipSpec {
	specs := make([]mapping.RelationshipSpec, 0, len(l.order))
	for _, key := range l.order {
		specs = append(specs, l.entries[key].spec)
	}
	return specs
}

// Mappings returns the entity mappings the loaders were configured from.
func (l *Loaders) Mappings() *mapping.Registry {
	return l.mappings
}
