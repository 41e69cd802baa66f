package facets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/logger"
)

// recordingBackend captures the filters pushed per layer.
type recordingBackend struct {
	filters map[string]filter.StyleExpression
	cleared []string
	sets    int
	clears  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{filters: make(map[string]filter.StyleExpression)}
}

func (b *recordingBackend) SetFilter(layerID string, expr filter.StyleExpression) {
	b.filters[layerID] = expr
	b.sets++
}

func (b *recordingBackend) ClearFilter(layerID string) {
	delete(b.filters, layerID)
	b.cleared = append(b.cleared, layerID)
	b.clears++
}

// recordingConsumer captures the combined filters it receives.
type recordingConsumer struct {
	received []*filter.PropertiesFilter
}

func (c *recordingConsumer) SetVisibilityFilter(f *filter.PropertiesFilter) {
	c.received = append(c.received, f)
}

func testRegistry(t *testing.T, backend StyleBackend, layerIDs ...string) *Registry {
	t.Helper()
	return NewRegistry(backend, layerIDs, logger.New("test"))
}

func TestRegistry_NoFacetsClearsLayers(t *testing.T) {
	backend := newRecordingBackend()
	registry := testRegistry(t, backend, "features", "pathways")

	combined := registry.Refresh()

	assert.True(t, combined.IsUniversal())
	assert.Equal(t, []string{"features", "pathways"}, backend.cleared)
	assert.Zero(t, backend.sets)
}

func TestRegistry_RegisterPushesCompiledFilter(t *testing.T) {
	backend := newRecordingBackend()
	registry := testRegistry(t, backend, "features", "pathways")

	facet := NewPathTypeFacet([]string{"nerve", "artery"})
	facet.SetEnabled("artery", false)
	registry.Register(facet)

	// Every filterable layer receives the same compiled expression.
	require.Contains(t, backend.filters, "features")
	require.Contains(t, backend.filters, "pathways")
	assert.Equal(t, backend.filters["features"], backend.filters["pathways"])
	assert.Equal(t, filter.StyleExpression{"==", "kind", "nerve"}, backend.filters["features"])
}

func TestRegistry_UniversalCombinationClears(t *testing.T) {
	backend := newRecordingBackend()
	registry := testRegistry(t, backend, "features")

	// A facet with everything enabled contributes the universal filter,
	// so the layer filter is cleared rather than set.
	registry.Register(NewPathTypeFacet([]string{"nerve", "artery"}))

	assert.NotContains(t, backend.filters, "features")
	assert.Zero(t, backend.sets)
	assert.NotZero(t, backend.clears)
}

func TestRegistry_RegisterReplacesSameIDInPlace(t *testing.T) {
	registry := testRegistry(t, nil)

	registry.Register(NewPathTypeFacet([]string{"nerve"}))
	registry.Register(NewSckanFacet())

	replacement := NewPathTypeFacet([]string{"nerve", "artery"})
	replacement.SetEnabled("artery", false)
	registry.Register(replacement)

	// Replacement keeps the original registration order.
	assert.Equal(t, []string{FacetPathType, FacetSckan}, registry.FacetIDs())
	assert.False(t, registry.CombinedFilter().Match(filter.Properties{"kind": "artery"}))
}

func TestRegistry_Unregister(t *testing.T) {
	backend := newRecordingBackend()
	registry := testRegistry(t, backend, "features")

	facet := NewPathTypeFacet([]string{"nerve", "artery"})
	facet.SetEnabled("artery", false)
	registry.Register(facet)
	require.Contains(t, backend.filters, "features")

	assert.True(t, registry.Unregister(FacetPathType))
	assert.Empty(t, registry.FacetIDs())
	assert.NotContains(t, backend.filters, "features")

	assert.False(t, registry.Unregister(FacetPathType))
}

func TestRegistry_CombinedFilterIsConjunction(t *testing.T) {
	registry := testRegistry(t, nil)

	pathType := NewPathTypeFacet([]string{"nerve", "artery"})
	pathType.SetEnabled("artery", false)
	registry.Register(pathType)

	sckan := NewSckanFacet()
	sckan.SetShowInvalid(false)
	registry.Register(sckan)

	combined := registry.CombinedFilter()
	assert.True(t, combined.Match(filter.Properties{"kind": "nerve", "sckan": true}))
	assert.False(t, combined.Match(filter.Properties{"kind": "artery", "sckan": true}))
	assert.False(t, combined.Match(filter.Properties{"kind": "nerve", "sckan": false}))
}

func TestRegistry_DisjointFacetsMatchNothing(t *testing.T) {
	registry := testRegistry(t, nil)

	only := func(id string, enabled string) *DiscreteFacet {
		f := NewDiscreteFacet(id, "kind", []string{"nerve", "artery"})
		for _, v := range []string{"nerve", "artery"} {
			f.SetEnabled(v, v == enabled)
		}
		return f
	}
	registry.Register(only("a", "nerve"))
	registry.Register(only("b", "artery"))

	combined := registry.CombinedFilter()
	assert.False(t, combined.Match(filter.Properties{"kind": "nerve"}))
	assert.False(t, combined.Match(filter.Properties{"kind": "artery"}))
}

func TestRegistry_RefreshPicksUpToggles(t *testing.T) {
	backend := newRecordingBackend()
	registry := testRegistry(t, backend, "features")

	facet := NewPathTypeFacet([]string{"nerve", "artery"})
	registry.Register(facet)
	assert.NotContains(t, backend.filters, "features")

	// A toggle after registration is invisible until the next refresh.
	facet.SetEnabled("artery", false)
	assert.NotContains(t, backend.filters, "features")

	combined := registry.Refresh()
	assert.False(t, combined.IsUniversal())
	assert.Contains(t, backend.filters, "features")

	// Refreshing again without changes is safe and idempotent.
	registry.Refresh()
	assert.Equal(t, filter.StyleExpression{"==", "kind", "nerve"}, backend.filters["features"])
}

func TestRegistry_ConsumersReceiveCombinedFilter(t *testing.T) {
	registry := testRegistry(t, nil)
	consumer := &recordingConsumer{}

	// The consumer is brought up to date immediately on registration.
	registry.AddConsumer(consumer)
	require.Len(t, consumer.received, 1)
	assert.True(t, consumer.received[0].IsUniversal())

	facet := NewPathTypeFacet([]string{"nerve", "artery"})
	facet.SetEnabled("nerve", false)
	registry.Register(facet)

	require.Len(t, consumer.received, 2)
	latest := consumer.received[len(consumer.received)-1]
	assert.True(t, latest.Match(filter.Properties{"kind": "artery"}))
	assert.False(t, latest.Match(filter.Properties{"kind": "nerve"}))
}
