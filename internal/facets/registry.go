package facets

import (
	"sync"

	"github.com/rdcourtney/flatmap/api/internal/filter"
	"github.com/rdcourtney/flatmap/api/internal/logger"
)

// StyleBackend is the narrow interface the registry needs from the rendering
// collaborator: install or clear one style layer's compiled filter.
type StyleBackend interface {
	SetFilter(layerID string, expr filter.StyleExpression)
	ClearFilter(layerID string)
}

// FilterConsumer is an off-renderer consumer of the combined filter, such as
// the flight-path overlay, which is not drawn through the renderer's
// declarative style pipeline and must subset its own data with Match.
type FilterConsumer interface {
	SetVisibilityFilter(f *filter.PropertiesFilter)
}

// Facet is a named, independently toggleable contributor to the combined
// visibility filter. Filter is recomputed from the facet's internal toggle
// state on every call, so toggles become visible at the next refresh.
type Facet interface {
	ID() string
	Filter() *filter.PropertiesFilter
}

// Registry maintains the set of active facets for one map view and keeps the
// rendering collaborator's compiled filters in sync.
//
// Toggle changes inside a registered facet are picked up only by an explicit
// Refresh; there is no automatic reactivity, so callers can batch toggles.
// Recomputing the combined filter is a pure function of current facet state,
// which makes repeated or duplicate-triggered refreshes safe.
type Registry struct {
	mu        sync.Mutex
	log       *logger.Logger
	backend   StyleBackend
	layerIDs  []string
	facets    []Facet
	consumers []FilterConsumer
}

// NewRegistry creates a registry pushing compiled filters to the given
// backend for each of the listed style layers.
func NewRegistry(backend StyleBackend, layerIDs []string, log *logger.Logger) *Registry {
	return &Registry{
		log:      log,
		backend:  backend,
		layerIDs: append([]string(nil), layerIDs...),
	}
}

// AddConsumer registers an off-renderer consumer. It receives the combined
// filter on every refresh.
func (r *Registry) AddConsumer(c FilterConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers = append(r.consumers, c)
	r.pushLocked(r.combinedLocked())
}

// Register stores a facet and recomputes the combined filter. A facet with
// the same id replaces the existing one in place, keeping registration
// order.
func (r *Registry) Register(f Facet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	for i, existing := range r.facets {
		if existing.ID() == f.ID() {
			r.facets[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		r.facets = append(r.facets, f)
	}

	r.log.Debug("Facet registered", map[string]interface{}{
		"facet":    f.ID(),
		"replaced": replaced,
		"total":    len(r.facets),
	})
	r.pushLocked(r.combinedLocked())
}

// Unregister removes a facet by id and recomputes the combined filter.
// Returns false when no facet with that id is registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.facets {
		if existing.ID() == id {
			r.facets = append(r.facets[:i], r.facets[i+1:]...)
			r.log.Debug("Facet unregistered", map[string]interface{}{
				"facet": id,
				"total": len(r.facets),
			})
			r.pushLocked(r.combinedLocked())
			return true
		}
	}
	return false
}

// FacetIDs lists the registered facets in registration order.
func (r *Registry) FacetIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.facets))
	for i, f := range r.facets {
		ids[i] = f.ID()
	}
	return ids
}

// Refresh recomputes every registered facet's filter, re-derives the
// combined predicate, and pushes it to the backend and all consumers.
// Callers invoke it after batching facet toggles.
func (r *Registry) Refresh() *filter.PropertiesFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	combined := r.combinedLocked()
	r.pushLocked(combined)
	return combined
}

// CombinedFilter returns the conjunction of all registered facets' filters.
// With no facets registered it is the universal filter.
func (r *Registry) CombinedFilter() *filter.PropertiesFilter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.combinedLocked()
}

func (r *Registry) combinedLocked() *filter.PropertiesFilter {
	contributions := make([]*filter.PropertiesFilter, len(r.facets))
	for i, f := range r.facets {
		contributions[i] = f.Filter()
	}
	return filter.All(*r.log.GetZerolog(), contributions...)
}

// pushLocked hands the combined filter to the rendering collaborator and the
// off-renderer consumers. A universal filter clears the layer filters
// instead, which is cheaper than evaluating an always-true predicate per
// feature.
func (r *Registry) pushLocked(combined *filter.PropertiesFilter) {
	if r.backend != nil {
		if combined.IsUniversal() {
			for _, layerID := range r.layerIDs {
				r.backend.ClearFilter(layerID)
			}
		} else {
			// Compiled once, shared across layers.
			expr := combined.StyleFilter()
			for _, layerID := range r.layerIDs {
				r.backend.SetFilter(layerID, expr)
			}
		}
	}
	for _, consumer := range r.consumers {
		consumer.SetVisibilityFilter(combined)
	}
}
