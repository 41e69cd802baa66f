package annotation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdcourtney/flatmap/api/internal/logger"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

// recordingResolver counts resolution calls and returns a fixed answer.
type recordingResolver struct {
	calls  int
	result []models.FeatureID
}

func (r *recordingResolver) ResolveFeatureIDs(externalIDs []string) []models.FeatureID {
	r.calls++
	return r.result
}

func testStore(t *testing.T, style string, resolver ConnectivityResolver) *Store {
	t.Helper()
	return NewStore(style, resolver, logger.New("test"))
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"UBERON:0001759", "UBERON:0001759"},
		{"uberon:0001759", "UBERON:0001759"},
		{"  ilxtr:neuron-type-1 ", "ILXTR:neuron-type-1"},
		{"UBERON:abcDEF", "UBERON:abcDEF"},
		{"no-prefix", "no-prefix"},
		{":leading-colon", ":leading-colon"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeIdentifier(tt.input), "input %q", tt.input)
	}
}

func TestIsPathModel(t *testing.T) {
	assert.True(t, IsPathModel("ilxtr:neuron-type-1"))
	assert.True(t, IsPathModel(" ILXTR:neuron-type-1"))
	assert.False(t, IsPathModel("UBERON:0001759"))
	assert.False(t, IsPathModel(""))
}

func TestIndexAnnotation_SequentialIDs(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	first := &models.Annotation{Label: "first"}
	second := &models.Annotation{Label: "second"}

	assert.Equal(t, models.FeatureID(1), store.IndexAnnotation(first))
	assert.Equal(t, models.FeatureID(2), store.IndexAnnotation(second))

	// The id is stamped onto the annotation itself.
	assert.Equal(t, models.FeatureID(1), first.FeatureID)
	assert.Equal(t, models.FeatureID(2), second.FeatureID)

	assert.Equal(t, 2, store.Len())
	assert.Same(t, first, store.Annotation(1))
	assert.Same(t, second, store.Annotation(2))
	assert.Nil(t, store.Annotation(3))
}

func TestIndexAnnotation_ReverseIndices(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	store.IndexAnnotation(&models.Annotation{
		Models:  models.StringList{"UBERON:0001759"},
		Dataset: models.StringList{"dataset:lung"},
		Source:  models.StringList{"source:scaffold-7"},
		Taxons:  models.StringList{"NCBITaxon:9606"},
	})
	store.IndexAnnotation(&models.Annotation{
		Models: models.StringList{"uberon:0001759", "ILX:0101"},
		Taxons: models.StringList{"NCBITaxon:9606"},
	})

	// Shared identifiers fan out in traversal order; lookups normalize
	// the CURIE prefix.
	assert.Equal(t, []models.FeatureID{1, 2}, store.ModelFeatureIDs("UBERON:0001759"))
	assert.Equal(t, []models.FeatureID{1, 2}, store.ModelFeatureIDs("uberon:0001759"))
	assert.Equal(t, []models.FeatureID{2}, store.ModelFeatureIDs("ilx:0101"))
	assert.Equal(t, []models.FeatureID{1}, store.DatasetFeatureIDs("DATASET:lung"))
	assert.Equal(t, []models.FeatureID{1}, store.SourceFeatureIDs("source:scaffold-7"))
	assert.Equal(t, []models.FeatureID{1, 2}, store.TaxonFeatureIDs("ncbitaxon:9606"))
	assert.Empty(t, store.ModelFeatureIDs("UBERON:9999"))
}

func TestIndexAnnotation_DuplicateIdentifiersKept(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	store.IndexAnnotation(&models.Annotation{
		Models: models.StringList{"UBERON:0001759", "UBERON:0001759"},
	})

	// Duplicates within one annotation's list are meaningful for
	// aggregate operations and are not collapsed.
	assert.Equal(t, []models.FeatureID{1, 1}, store.ModelFeatureIDs("UBERON:0001759"))
}

func TestIndexAnnotation_UnclassifiedTaxonFallback(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	store.IndexAnnotation(&models.Annotation{
		Models: models.StringList{"ilxtr:neuron-type-1"},
	})
	store.IndexAnnotation(&models.Annotation{
		Models: models.StringList{"UBERON:0001759"},
	})
	store.IndexAnnotation(&models.Annotation{
		Models: models.StringList{"ilxtr:neuron-type-2"},
		Taxons: models.StringList{"NCBITaxon:9606"},
	})

	// Only path-model features without a recorded taxon fall back to the
	// unclassified key; anatomical features without taxons are simply
	// absent from the taxon index.
	assert.Equal(t, []models.FeatureID{1}, store.TaxonFeatureIDs(UnclassifiedTaxon))
	assert.Equal(t, []models.FeatureID{3}, store.TaxonFeatureIDs("NCBITaxon:9606"))
	assert.Equal(t, []string{"NCBITAXON:9606", "NCBITAXON:unclassified"}, store.Taxons())
}

func TestIndexAnnotation_CentrelinesExcludedFromIndices(t *testing.T) {
	store := testStore(t, models.StyleAnatomical, nil)

	store.IndexAnnotation(&models.Annotation{
		Models:     models.StringList{"UBERON:0001759"},
		Centreline: true,
	})

	assert.Empty(t, store.ModelFeatureIDs("UBERON:0001759"))
	// The annotation itself is still addressable by feature id.
	require.NotNil(t, store.Annotation(1))
}

func TestIndexAnnotation_CentrelineStyle(t *testing.T) {
	store := testStore(t, models.StyleCentreline, nil)

	ann := &models.Annotation{
		Models:     models.StringList{"UBERON:0001759"},
		Centreline: true,
		Geometry: &models.LineString{
			Coordinates: [][2]float64{{0, 0}, {3, 4}},
		},
	}
	store.IndexAnnotation(ann)

	// In the centreline style the feature is indexed and its geometry is
	// precomputed once.
	assert.Equal(t, []models.FeatureID{1}, store.ModelFeatureIDs("UBERON:0001759"))
	require.NotNil(t, ann.LineString)
	assert.Equal(t, ann.Geometry.Coordinates, ann.LineString.Coordinates)
	assert.InDelta(t, 5.0, ann.LineLength, 1e-9)
}

func TestResolveFeatureIDs_ModelIndexFirst(t *testing.T) {
	resolver := &recordingResolver{result: []models.FeatureID{99}}
	store := testStore(t, models.StyleFlatmap, resolver)

	store.IndexAnnotation(&models.Annotation{
		Models:  models.StringList{"UBERON:0001759"},
		Dataset: models.StringList{"dataset:lung"},
	})

	// A model hit short-circuits the dataset/source and resolver stages.
	ids := store.ResolveFeatureIDs([]string{"UBERON:0001759", "dataset:lung"})
	assert.Equal(t, []models.FeatureID{1}, ids)
	assert.Zero(t, resolver.calls)
}

func TestResolveFeatureIDs_DatasetAndSourceFallback(t *testing.T) {
	resolver := &recordingResolver{result: []models.FeatureID{99}}
	store := testStore(t, models.StyleFlatmap, resolver)

	store.IndexAnnotation(&models.Annotation{
		Dataset: models.StringList{"dataset:lung"},
	})
	store.IndexAnnotation(&models.Annotation{
		Source: models.StringList{"dataset:lung"},
	})

	ids := store.ResolveFeatureIDs([]string{"dataset:lung"})
	assert.Equal(t, []models.FeatureID{1, 2}, ids)
	assert.Zero(t, resolver.calls)
}

func TestResolveFeatureIDs_ResolverConsultedOnce(t *testing.T) {
	resolver := &recordingResolver{result: []models.FeatureID{7, 8}}
	store := testStore(t, models.StyleFlatmap, resolver)

	ids := store.ResolveFeatureIDs([]string{"ilxtr:neuron-type-1", "ilxtr:neuron-type-2"})
	assert.Equal(t, []models.FeatureID{7, 8}, ids)
	assert.Equal(t, 1, resolver.calls)
}

func TestResolveFeatureIDs_UnknownIsEmptyNotError(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	ids := store.ResolveFeatureIDs([]string{"UBERON:9999"})
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestPropertyValueCatalog(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	store.IndexAnnotation(&models.Annotation{
		Kind:   "nerve",
		Label:  "vagus",
		Models: models.StringList{"UBERON:0001759", "ILX:0101"},
		Extras: map[string]any{"sckan": true},
		Geometry: &models.LineString{
			Coordinates: [][2]float64{{0, 0}, {1, 1}},
		},
	})
	store.IndexAnnotation(&models.Annotation{
		Kind: "artery",
	})

	catalog := store.PropertyValueCatalog()

	assert.Equal(t, []string{"artery", "nerve"}, catalog["kind"])
	assert.Equal(t, []string{"vagus"}, catalog["label"])
	assert.Equal(t, []string{"ILX:0101", "UBERON:0001759"}, catalog["models"])
	assert.Equal(t, []string{"true"}, catalog["sckan"])

	// Structural and geometry fields never enter the catalog.
	assert.NotContains(t, catalog, "featureId")
	assert.NotContains(t, catalog, "geometry")
	assert.NotContains(t, catalog, "lineString")
	assert.NotContains(t, catalog, "lineLength")
}

func TestPropertyValueCatalog_ListValuedExtras(t *testing.T) {
	store := testStore(t, models.StyleFlatmap, nil)

	// Extension properties come straight out of json.Unmarshal, so list
	// values arrive as []any and must fan out like the known list fields.
	var ann models.Annotation
	raw := `{"kind":"nerve","nerves":["ILX:1","ILX:2"],"zoom":[2,9]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &ann))

	store.IndexAnnotation(&ann)

	catalog := store.PropertyValueCatalog()
	assert.Equal(t, []string{"ILX:1", "ILX:2"}, catalog["nerves"])
	assert.Equal(t, []string{"2", "9"}, catalog["zoom"])
}
