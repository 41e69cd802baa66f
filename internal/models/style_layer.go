package models

// LayerKind enumerates the style-layer variants a flatmap stylesheet is
// built from. Each kind carries its own paint and filter parameters in
// StyleLayer; there is no layer-class hierarchy, the style compiler
// dispatches on the kind tag.
type LayerKind string

const (
	// LayerBackground paints the map background; it never takes a filter.
	LayerBackground LayerKind = "background"
	// LayerFeatures renders annotated anatomical features.
	LayerFeatures LayerKind = "features"
	// LayerPathways renders connectivity paths.
	LayerPathways LayerKind = "pathways"
	// LayerCentrelines renders nerve centreline scaffolding.
	LayerCentrelines LayerKind = "centrelines"
)

// StyleLayer is one layer of the map's stylesheet: a layer id, its kind tag,
// and the kind-specific paint parameters, as published in the bundle's
// layers file.
type StyleLayer struct {
	ID      string         `json:"id"`
	Kind    LayerKind      `json:"kind"`
	Paint   map[string]any `json:"paint,omitempty"`
	MinZoom float64        `json:"minZoom,omitempty"`
	MaxZoom float64        `json:"maxZoom,omitempty"`
}

// Filterable reports whether the layer participates in visibility
// filtering. Background layers paint unconditionally.
func (l StyleLayer) Filterable() bool {
	return l.Kind != LayerBackground
}
