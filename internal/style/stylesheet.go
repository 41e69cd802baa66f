package style

import (
	"sync"

	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

// Stylesheet holds one map's style layers and their currently installed
// compiled filter expressions. It implements the facet registry's
// StyleBackend so combined-filter changes land here, and embedding viewers
// fetch the compiled style state from it.
//
// Unlike the annotation store this is mutated after map load (every facet
// refresh), so access is guarded.
type Stylesheet struct {
	mu      sync.RWMutex
	layers  []models.StyleLayer
	filters map[string]filter.StyleExpression
}

// NewStylesheet creates a stylesheet over the bundle's layer list.
func NewStylesheet(layers []models.StyleLayer) *Stylesheet {
	return &Stylesheet{
		layers:  append([]models.StyleLayer(nil), layers...),
		filters: make(map[string]filter.StyleExpression),
	}
}

// SetFilter installs a compiled filter expression on one layer.
func (s *Stylesheet) SetFilter(layerID string, expr filter.StyleExpression) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[layerID] = expr
}

// ClearFilter removes a layer's filter override.
func (s *Stylesheet) ClearFilter(layerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filters, layerID)
}

// LayerFilter returns the compiled filter currently installed on a layer.
func (s *Stylesheet) LayerFilter(layerID string) (filter.StyleExpression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expr, ok := s.filters[layerID]
	return expr, ok
}

// FilterableLayerIDs lists the layers that participate in visibility
// filtering, in stylesheet order. This is the layer set the facet registry
// pushes compiled filters to.
func (s *Stylesheet) FilterableLayerIDs() []string {
	ids := make([]string, 0, len(s.layers))
	for _, layer := range s.layers {
		if layer.Filterable() {
			ids = append(ids, layer.ID)
		}
	}
	return ids
}

// Layers returns the stylesheet's layer definitions.
func (s *Stylesheet) Layers() []models.StyleLayer {
	return append([]models.StyleLayer(nil), s.layers...)
}

// Compile produces the full renderer style document: every layer compiled
// with its current filter.
func (s *Stylesheet) Compile() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	compiled := make([]map[string]any, 0, len(s.layers))
	for _, layer := range s.layers {
		expr, ok := s.filters[layer.ID]
		compiled = append(compiled, CompileLayer(layer, expr, ok))
	}
	return compiled
}

// CompileLayer turns one tagged style-layer variant into a renderer layer
// spec. All kinds go through this single compiler; the kind tag picks the
// renderer layer type and default paint, and the layer's own paint
// parameters override the defaults.
func CompileLayer(layer models.StyleLayer, expr filter.StyleExpression, hasFilter bool) map[string]any {
	spec := map[string]any{
		"id":   layer.ID,
		"type": rendererType(layer.Kind),
	}

	paint := defaultPaint(layer.Kind)
	for key, value := range layer.Paint {
		paint[key] = value
	}
	if len(paint) > 0 {
		spec["paint"] = paint
	}

	if layer.MinZoom > 0 {
		spec["minzoom"] = layer.MinZoom
	}
	if layer.MaxZoom > 0 {
		spec["maxzoom"] = layer.MaxZoom
	}
	if hasFilter && layer.Filterable() {
		spec["filter"] = expr
	}
	return spec
}

func rendererType(kind models.LayerKind) string {
	switch kind {
	case models.LayerBackground:
		return "background"
	case models.LayerPathways, models.LayerCentrelines:
		return "line"
	default:
		return "fill"
	}
}

func defaultPaint(kind models.LayerKind) map[string]any {
	switch kind {
	case models.LayerBackground:
		return map[string]any{"background-color": "#ffffff"}
	case models.LayerFeatures:
		return map[string]any{"fill-opacity": 0.5}
	case models.LayerPathways:
		return map[string]any{"line-width": 1.5}
	case models.LayerCentrelines:
		return map[string]any{"line-width": 2.0, "line-dasharray": []any{2, 1}}
	default:
		return map[string]any{}
	}
}
