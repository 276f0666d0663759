package loader

import (
	"testing"

	"bulkload/internal/mapping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	handle, err := r.Register(BulkStrategy())
	require.NoError(t, err)
	assert.Equal(t, StrategyBulk, handle.Name())

	_, err = r.Register(BulkStrategy())
	require.ErrorIs(t, err, ErrDuplicateStrategy)

	_, err = r.Configure(userMappings(t, StrategyBulk))
	require.NoError(t, err)

	_, err = r.Register(SelectStrategy())
	require.ErrorIs(t, err, ErrRegistryFrozen)
}

func TestRegistry_DefaultStrategy(t *testing.T) {
	r, err := DefaultRegistry(WithDefaultStrategy(StrategyBulk))
	require.NoError(t, err)
	loaders, err := r.Configure(userMappings(t, ""))
	require.NoError(t, err)

	_, spec, err := loaders.Loader("User", "addresses")
	require.NoError(t, err)
	assert.Equal(t, StrategyBulk, spec.Strategy)

	var names []string
	for _, s := range loaders.Specs() {
		names = append(names, s.Key())
	}
	assert.Equal(t, []string{
		"User.addresses", "Address.user",
		"User.user_info", "UserInfo.user",
		"User.children", "User.parent",
		"User.things",
	}, names)
	assert.NotNil(t, loaders.Mappings())
}

func TestRegistry_UnknownStrategy(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)
	_, err = r.Configure(userMappings(t, "joined"))
	require.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRegistry_UnknownRelationship(t *testing.T) {
	loaders := configureLoaders(t, StrategyBulk)
	_, _, err := loaders.Loader("User", "nope")
	require.ErrorIs(t, err, ErrUnknownRelationship)
}

func TestRegistry_ConfigureFailureIsMemoized(t *testing.T) {
	mappings := mapping.NewRegistry()
	require.NoError(t, mappings.Map(mapping.Entity{
		Name:          "MultiPk",
		Table:         mapping.Table{Name: "multi_pks", Columns: []mapping.Column{pk("id1"), pk("id2")}},
		Relationships: []mapping.Relationship{{Name: "multi_fks", Target: "MultiFk", Lazy: StrategyBulk}},
	}))
	require.NoError(t, mappings.Map(mapping.Entity{
		Name: "MultiFk",
		Table: mapping.Table{
			Name:    "multi_fks",
			Columns: []mapping.Column{pk("id"), col("multi_pk_id1"), col("multi_pk_id2")},
			ForeignKeys: []mapping.ForeignKey{{
				Columns:           []string{"multi_pk_id1", "multi_pk_id2"},
				ReferencedTable:   "multi_pks",
				ReferencedColumns: []string{"id1", "id2"},
			}},
		},
	}))

	r, err := DefaultRegistry()
	require.NoError(t, err)
	loaders, err := r.Configure(mappings)
	require.ErrorIs(t, err, ErrUnsupportedRelationShape)
	assert.Nil(t, loaders)

	_, again := r.Configure(userMappings(t, StrategyBulk))
	assert.Same(t, err, again)
}
