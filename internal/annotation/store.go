package annotation

import (
	"fmt"
	"sort"

	"github.com/rdcourtney/flatmap/api/internal/logger"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

// ConnectivityResolver is the external collaborator consulted when an
// identifier resolves through neither the model nor the dataset/source
// indices. It may know about path-model graph membership not captured in
// the static indices.
type ConnectivityResolver interface {
	ResolveFeatureIDs(externalIDs []string) []models.FeatureID
}

// FeatureIDMap is a reverse index from normalized external identifier to
// the feature ids registered under it. Lists keep annotation traversal
// order; duplicates within a list are permitted and meaningful for
// aggregate operations.
type FeatureIDMap map[string][]models.FeatureID

// excludedFromCatalog lists structural and geometry fields that never enter
// the property-value catalog.
var excludedFromCatalog = map[string]struct{}{
	"featureId":  {},
	"geometry":   {},
	"lineString": {},
	"lineLength": {},
	"bounds":     {},
	"tile-layer": {},
}

// Store owns the canonical feature-id to annotation mapping for one loaded
// map, together with the reverse indices and the per-property value catalog
// built during a single indexing pass. It is read-only after construction,
// so queries need no locking.
type Store struct {
	style    string
	log      *logger.Logger
	resolver ConnectivityResolver

	annotations map[models.FeatureID]*models.Annotation
	nextID      models.FeatureID

	byDataset FeatureIDMap
	byModel   FeatureIDMap
	bySource  FeatureIDMap
	byTaxon   FeatureIDMap

	catalog map[string]map[string]struct{}
}

// NewStore creates an empty store for a map rendered with the given style.
// The resolver may be nil when the map has no connectivity model.
func NewStore(style string, resolver ConnectivityResolver, log *logger.Logger) *Store {
	return &Store{
		style:       style,
		log:         log,
		resolver:    resolver,
		annotations: make(map[models.FeatureID]*models.Annotation),
		byDataset:   make(FeatureIDMap),
		byModel:     make(FeatureIDMap),
		bySource:    make(FeatureIDMap),
		byTaxon:     make(FeatureIDMap),
		catalog:     make(map[string]map[string]struct{}),
	}
}

// IndexAnnotation ingests one annotation record, in annotation dictionary
// order. It assigns and stamps the feature id, registers the feature in the
// reverse indices, folds its properties into the value catalog, and
// precomputes centreline geometry where applicable. Returns the assigned id.
func (s *Store) IndexAnnotation(ann *models.Annotation) models.FeatureID {
	s.nextID++
	featureID := s.nextID
	ann.FeatureID = featureID
	s.annotations[featureID] = ann

	// Centrelines are geometry scaffolding, not user-addressable anatomy,
	// in every style except the centreline style.
	if !ann.Centreline || s.style == models.StyleCentreline {
		s.indexIdentifiers(featureID, ann)
	}

	s.updateCatalog(ann)

	if s.style == models.StyleCentreline && ann.Geometry != nil {
		ann.LineString = ann.Geometry.Clone()
		ann.LineLength = ann.LineString.Length()
	}

	return featureID
}

func (s *Store) indexIdentifiers(featureID models.FeatureID, ann *models.Annotation) {
	for _, id := range ann.Dataset {
		s.byDataset.append(id, featureID)
	}
	for _, id := range ann.Models {
		s.byModel.append(id, featureID)
	}
	for _, id := range ann.Source {
		s.bySource.append(id, featureID)
	}

	if len(ann.Taxons) > 0 {
		for _, id := range ann.Taxons {
			s.byTaxon.append(id, featureID)
		}
		return
	}

	// A connectivity feature with no recorded taxon still has to be
	// discoverable by some taxon key.
	for _, id := range ann.Models {
		if IsPathModel(id) {
			s.byTaxon.append(UnclassifiedTaxon, featureID)
			return
		}
	}
}

func (m FeatureIDMap) append(id string, featureID models.FeatureID) {
	if id == "" {
		return
	}
	key := NormalizeIdentifier(id)
	m[key] = append(m[key], featureID)
}

func (s *Store) updateCatalog(ann *models.Annotation) {
	for key, value := range ann.Properties() {
		if _, excluded := excludedFromCatalog[key]; excluded {
			continue
		}
		values, ok := s.catalog[key]
		if !ok {
			values = make(map[string]struct{})
			s.catalog[key] = values
		}
		// List-valued properties fan out one catalog entry per element.
		// JSON-decoded extras arrive as []any, the known fields as
		// []string.
		switch list := value.(type) {
		case []string:
			for _, item := range list {
				values[item] = struct{}{}
			}
		case []any:
			for _, item := range list {
				values[fmt.Sprint(item)] = struct{}{}
			}
		default:
			values[fmt.Sprint(value)] = struct{}{}
		}
	}
}

// Annotation returns the annotation for a feature id, or nil when the id is
// unknown.
func (s *Store) Annotation(featureID models.FeatureID) *models.Annotation {
	return s.annotations[featureID]
}

// Len returns the number of indexed annotations.
func (s *Store) Len() int {
	return len(s.annotations)
}

// ResolveFeatureIDs resolves external identifiers to feature ids.
//
// A single identifier may legitimately name an anatomical model, a dataset
// grouping, a data source, or a connectivity endpoint, so resolution falls
// through a fixed chain: the model index first; failing that, the dataset
// and source indices; failing those, the connectivity resolver, consulted
// exactly once. Unknown identifiers resolve to an empty list at every
// stage; that is not an error.
func (s *Store) ResolveFeatureIDs(externalIDs []string) []models.FeatureID {
	featureIDs := make([]models.FeatureID, 0)

	for _, id := range externalIDs {
		featureIDs = append(featureIDs, s.byModel[NormalizeIdentifier(id)]...)
	}

	if len(featureIDs) == 0 {
		for _, id := range externalIDs {
			key := NormalizeIdentifier(id)
			featureIDs = append(featureIDs, s.byDataset[key]...)
			featureIDs = append(featureIDs, s.bySource[key]...)
		}
	}

	if len(featureIDs) == 0 && s.resolver != nil {
		featureIDs = append(featureIDs, s.resolver.ResolveFeatureIDs(externalIDs)...)
	}

	return featureIDs
}

// DatasetFeatureIDs returns the feature ids registered under a dataset
// identifier, in annotation traversal order.
func (s *Store) DatasetFeatureIDs(id string) []models.FeatureID {
	return s.byDataset[NormalizeIdentifier(id)]
}

// ModelFeatureIDs returns the feature ids registered under an anatomical
// model identifier.
func (s *Store) ModelFeatureIDs(id string) []models.FeatureID {
	return s.byModel[NormalizeIdentifier(id)]
}

// SourceFeatureIDs returns the feature ids registered under a source
// identifier.
func (s *Store) SourceFeatureIDs(id string) []models.FeatureID {
	return s.bySource[NormalizeIdentifier(id)]
}

// TaxonFeatureIDs returns the feature ids registered under a taxon
// identifier, including the unclassified-taxon fallback key.
func (s *Store) TaxonFeatureIDs(id string) []models.FeatureID {
	return s.byTaxon[NormalizeIdentifier(id)]
}

// Taxons lists the taxon identifiers known to the map, sorted.
func (s *Store) Taxons() []string {
	taxons := make([]string, 0, len(s.byTaxon))
	for taxon := range s.byTaxon {
		taxons = append(taxons, taxon)
	}
	sort.Strings(taxons)
	return taxons
}

// PropertyValueCatalog returns the observed values per property key, sorted
// for stable API responses. The catalog drives filter-building UIs and
// doubles as a debug surface; values are never retroactively pruned.
func (s *Store) PropertyValueCatalog() map[string][]string {
	catalog := make(map[string][]string, len(s.catalog))
	for key, values := range s.catalog {
		sorted := make([]string, 0, len(values))
		for value := range values {
			sorted = append(sorted, value)
		}
		sort.Strings(sorted)
		catalog[key] = sorted
	}
	return catalog
}
