package facets

import (
	"sync"

	"github.com/rdcourtney/flatmap/api/internal/filter"
)

// Well-known facet ids.
const (
	FacetPathType    = "path-type"
	FacetSckan       = "sckan"
	FacetNerves      = "nerve-centrelines"
	FacetDetailLayer = "detail-layers"
)

// DiscreteFacet restricts one property to its currently enabled discrete
// values, with one toggle per value. All values start enabled. Toggles take
// effect at the next registry refresh, per the explicit-refresh contract.
type DiscreteFacet struct {
	mu       sync.Mutex
	id       string
	property string
	values   []string
	enabled  map[string]bool
}

// NewDiscreteFacet creates a facet over the given property values, all
// enabled.
func NewDiscreteFacet(id, property string, values []string) *DiscreteFacet {
	enabled := make(map[string]bool, len(values))
	for _, value := range values {
		enabled[value] = true
	}
	return &DiscreteFacet{
		id:       id,
		property: property,
		values:   append([]string(nil), values...),
		enabled:  enabled,
	}
}

// ID implements Facet.
func (f *DiscreteFacet) ID() string { return f.id }

// SetEnabled toggles one discrete value. Unknown values are added to the
// facet, which lets callers enable values discovered after construction.
func (f *DiscreteFacet) SetEnabled(value string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, known := f.enabled[value]; !known {
		f.values = append(f.values, value)
	}
	f.enabled[value] = enabled
}

// Enabled reports one value's toggle state.
func (f *DiscreteFacet) Enabled(value string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[value]
}

// Filter implements Facet. With every value enabled the facet contributes
// nothing (universal filter); with none enabled it matches nothing;
// otherwise it restricts the property to the enabled values.
func (f *DiscreteFacet) Filter() *filter.PropertiesFilter {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := make([]any, 0, len(f.values))
	for _, value := range f.values {
		if f.enabled[value] {
			active = append(active, value)
		}
	}

	switch len(active) {
	case len(f.values):
		return filter.True()
	case 0:
		return filter.False()
	default:
		return filter.New(map[string]any{f.property: active})
	}
}

// NewPathTypeFacet toggles connectivity paths by their kind (path type).
func NewPathTypeFacet(pathTypes []string) *DiscreteFacet {
	return NewDiscreteFacet(FacetPathType, "kind", pathTypes)
}

// NewNerveCentrelineFacet toggles features by the nerve centrelines they
// belong to.
func NewNerveCentrelineFacet(nerveIDs []string) *DiscreteFacet {
	return NewDiscreteFacet(FacetNerves, "nerves", nerveIDs)
}

// NewDetailLayerFacet scopes visibility to the enabled detail layers.
func NewDetailLayerFacet(layerIDs []string) *DiscreteFacet {
	return NewDiscreteFacet(FacetDetailLayer, "layer", layerIDs)
}

// SckanFacet toggles connectivity paths by whether SCKAN considers them
// valid. Features carrying no sckan property count as valid, which the
// filter grammar's permissive missing-key default gives without a special
// case.
type SckanFacet struct {
	mu          sync.Mutex
	showValid   bool
	showInvalid bool
}

// NewSckanFacet creates the facet with both states visible.
func NewSckanFacet() *SckanFacet {
	return &SckanFacet{showValid: true, showInvalid: true}
}

// ID implements Facet.
func (f *SckanFacet) ID() string { return FacetSckan }

// SetShowValid toggles SCKAN-valid paths.
func (f *SckanFacet) SetShowValid(show bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showValid = show
}

// SetShowInvalid toggles paths SCKAN flags as invalid.
func (f *SckanFacet) SetShowInvalid(show bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showInvalid = show
}

// Filter implements Facet.
func (f *SckanFacet) Filter() *filter.PropertiesFilter {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.showValid && f.showInvalid:
		return filter.True()
	case f.showValid:
		return filter.New(map[string]any{"sckan": true})
	case f.showInvalid:
		return filter.New(map[string]any{"NOT": map[string]any{"sckan": true}})
	default:
		return filter.False()
	}
}
