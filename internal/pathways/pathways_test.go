package pathways

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdcourtney/flatmap/api/internal/bundle"
	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func testPaths() []bundle.Path {
	return []bundle.Path{
		{
			ID:     "ilxtr:neuron-type-1",
			Lines:  []models.FeatureID{3, 1},
			Kind:   "para-pre",
			Nerves: []string{"ILX:0101"},
			Sckan:  boolPtr(true),
		},
		{
			ID:    "ilxtr:neuron-type-2",
			Lines: []models.FeatureID{2, 3},
			Kind:  "sympathetic",
			Sckan: boolPtr(false),
		},
		{
			ID:    "ilxtr:neuron-type-3",
			Lines: []models.FeatureID{5},
			Kind:  "para-pre",
			Label: "third path",
		},
	}
}

func TestModel_PathLookup(t *testing.T) {
	m := NewModel(testPaths())

	require.Len(t, m.Paths(), 3)

	p, ok := m.Path("ILXTR:neuron-type-1")
	require.True(t, ok)
	assert.Equal(t, "ilxtr:neuron-type-1", p.ID)

	_, ok = m.Path("ilxtr:unknown")
	assert.False(t, ok)
}

func TestModel_ResolveFeatureIDs(t *testing.T) {
	m := NewModel(testPaths())

	// Member lists keep their bundle order; unknown ids contribute
	// nothing.
	ids := m.ResolveFeatureIDs([]string{"ilxtr:neuron-type-1", "ilxtr:unknown", "ilxtr:neuron-type-3"})
	assert.Equal(t, []models.FeatureID{3, 1, 5}, ids)

	empty := m.ResolveFeatureIDs([]string{"ilxtr:unknown"})
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPathProperties(t *testing.T) {
	props := PathProperties(testPaths()[0])

	assert.Equal(t, []string{"ilxtr:neuron-type-1"}, props["models"])
	assert.Equal(t, "para-pre", props["kind"])
	assert.Equal(t, []string{"ILX:0101"}, props["nerves"])
	assert.Equal(t, true, props["sckan"])
	assert.NotContains(t, props, "label")

	sparse := PathProperties(testPaths()[2])
	assert.Equal(t, "third path", sparse["label"])
	assert.NotContains(t, sparse, "sckan")
	assert.NotContains(t, sparse, "nerves")
}

func TestFlightPathOverlay_EverythingVisibleInitially(t *testing.T) {
	overlay := NewFlightPathOverlay(NewModel(testPaths()))

	assert.Len(t, overlay.VisiblePaths(), 3)
	// The union of member ids is ascending and deduplicated.
	assert.Equal(t, []models.FeatureID{1, 2, 3, 5}, overlay.VisibleFeatureIDs())
}

func TestFlightPathOverlay_SetVisibilityFilter(t *testing.T) {
	overlay := NewFlightPathOverlay(NewModel(testPaths()))

	overlay.SetVisibilityFilter(filter.New(map[string]any{"kind": "para-pre"}))

	visible := overlay.VisiblePaths()
	require.Len(t, visible, 2)
	assert.Equal(t, "ilxtr:neuron-type-1", visible[0].ID)
	assert.Equal(t, "ilxtr:neuron-type-3", visible[1].ID)
	assert.Equal(t, []models.FeatureID{1, 3, 5}, overlay.VisibleFeatureIDs())
}

func TestFlightPathOverlay_SckanFiltering(t *testing.T) {
	overlay := NewFlightPathOverlay(NewModel(testPaths()))

	// Paths without a sckan property count as valid under the permissive
	// missing-key default.
	overlay.SetVisibilityFilter(filter.New(map[string]any{"sckan": true}))

	visible := overlay.VisiblePaths()
	require.Len(t, visible, 2)
	assert.Equal(t, "ilxtr:neuron-type-1", visible[0].ID)
	assert.Equal(t, "ilxtr:neuron-type-3", visible[1].ID)
}

func TestFlightPathOverlay_NothingVisible(t *testing.T) {
	overlay := NewFlightPathOverlay(NewModel(testPaths()))

	overlay.SetVisibilityFilter(filter.False())

	assert.Empty(t, overlay.VisiblePaths())
	assert.Empty(t, overlay.VisibleFeatureIDs())
}

func TestFlightPathOverlay_FilterRestoresVisibility(t *testing.T) {
	overlay := NewFlightPathOverlay(NewModel(testPaths()))

	overlay.SetVisibilityFilter(filter.False())
	overlay.SetVisibilityFilter(filter.True())

	assert.Len(t, overlay.VisiblePaths(), 3)
}
