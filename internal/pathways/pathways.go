// Package pathways holds the connectivity model of a flatmap: which
// rendered features make up each connectivity path, and the flight-path
// overlay that subsets them for display.
package pathways

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/rdcourtney/flatmap/api/internal/annotation"
	"github.com/rdcourtney/flatmap/api/internal/bundle"
	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

// Model indexes the bundle's connectivity paths by normalized path model
// identifier. It backs the annotation store's connectivity fallback during
// identifier resolution and the flight-path overlay's membership queries.
// Read-only after construction.
type Model struct {
	paths   []bundle.Path
	byModel map[string]int
	members map[string]*roaring.Bitmap
}

// NewModel indexes the given paths, keeping their bundle order.
func NewModel(paths []bundle.Path) *Model {
	m := &Model{
		paths:   append([]bundle.Path(nil), paths...),
		byModel: make(map[string]int, len(paths)),
		members: make(map[string]*roaring.Bitmap, len(paths)),
	}
	for i, p := range m.paths {
		key := annotation.NormalizeIdentifier(p.ID)
		m.byModel[key] = i

		bitmap := roaring.New()
		for _, featureID := range p.Lines {
			bitmap.Add(uint32(featureID))
		}
		m.members[key] = bitmap
	}
	return m
}

// Paths returns the connectivity paths in bundle order.
func (m *Model) Paths() []bundle.Path {
	return m.paths
}

// Path looks up a path by model identifier.
func (m *Model) Path(modelID string) (bundle.Path, bool) {
	i, ok := m.byModel[annotation.NormalizeIdentifier(modelID)]
	if !ok {
		return bundle.Path{}, false
	}
	return m.paths[i], true
}

// ResolveFeatureIDs implements annotation.ConnectivityResolver: it resolves
// path model identifiers to the member features of those paths. Identifiers
// naming no known path contribute nothing.
func (m *Model) ResolveFeatureIDs(externalIDs []string) []models.FeatureID {
	featureIDs := make([]models.FeatureID, 0)
	for _, id := range externalIDs {
		if i, ok := m.byModel[annotation.NormalizeIdentifier(id)]; ok {
			featureIDs = append(featureIDs, m.paths[i].Lines...)
		}
	}
	return featureIDs
}

// PathProperties flattens one path into a property dictionary for filter
// evaluation, mirroring the shape the renderer sees for path features.
func PathProperties(p bundle.Path) filter.Properties {
	props := filter.Properties{
		"models": []string{p.ID},
	}
	if p.Kind != "" {
		props["kind"] = p.Kind
	}
	if p.Label != "" {
		props["label"] = p.Label
	}
	if len(p.Nerves) > 0 {
		props["nerves"] = p.Nerves
	}
	if p.Sckan != nil {
		props["sckan"] = *p.Sckan
	}
	return props
}

// FlightPathOverlay draws connectivity paths as flight arcs outside the
// renderer's declarative style pipeline, so it cannot receive a compiled
// style filter. Instead it registers with the facet registry as a filter
// consumer and subsets its own path data with Match.
type FlightPathOverlay struct {
	mu      sync.RWMutex
	model   *Model
	visible []int
}

// NewFlightPathOverlay creates an overlay with every path visible.
func NewFlightPathOverlay(model *Model) *FlightPathOverlay {
	o := &FlightPathOverlay{model: model}
	o.SetVisibilityFilter(filter.True())
	return o
}

// SetVisibilityFilter implements the facet registry's FilterConsumer: the
// overlay re-evaluates the combined filter against each path's properties
// and keeps the matching subset.
func (o *FlightPathOverlay) SetVisibilityFilter(f *filter.PropertiesFilter) {
	visible := make([]int, 0, len(o.model.paths))
	for i, p := range o.model.paths {
		if f.Match(PathProperties(p)) {
			visible = append(visible, i)
		}
	}

	o.mu.Lock()
	o.visible = visible
	o.mu.Unlock()
}

// VisiblePaths returns the paths passing the current visibility filter, in
// bundle order.
func (o *FlightPathOverlay) VisiblePaths() []bundle.Path {
	o.mu.RLock()
	defer o.mu.RUnlock()

	paths := make([]bundle.Path, 0, len(o.visible))
	for _, i := range o.visible {
		paths = append(paths, o.model.paths[i])
	}
	return paths
}

// VisibleFeatureIDs returns the union of the visible paths' member feature
// ids, ascending. The per-path member sets are roaring bitmaps, so the
// union stays cheap even for maps with thousands of paths.
func (o *FlightPathOverlay) VisibleFeatureIDs() []models.FeatureID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	union := roaring.New()
	for _, i := range o.visible {
		key := annotation.NormalizeIdentifier(o.model.paths[i].ID)
		if members, ok := o.model.members[key]; ok {
			union.Or(members)
		}
	}

	featureIDs := make([]models.FeatureID, 0, union.GetCardinality())
	it := union.Iterator()
	for it.HasNext() {
		featureIDs = append(featureIDs, models.FeatureID(it.Next()))
	}
	return featureIDs
}
