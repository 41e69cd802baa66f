package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_UnmarshalScalar(t *testing.T) {
	var list StringList
	require.NoError(t, json.Unmarshal([]byte(`"UBERON:0001759"`), &list))
	assert.Equal(t, StringList{"UBERON:0001759"}, list)
}

func TestStringList_UnmarshalList(t *testing.T) {
	var list StringList
	require.NoError(t, json.Unmarshal([]byte(`["UBERON:0001759","ILX:0101"]`), &list))
	assert.Equal(t, StringList{"UBERON:0001759", "ILX:0101"}, list)
}

func TestStringList_UnmarshalNull(t *testing.T) {
	var list StringList
	require.NoError(t, json.Unmarshal([]byte(`null`), &list))
	assert.Empty(t, list)
}

func TestStringList_UnmarshalRejectsOtherTypes(t *testing.T) {
	var list StringList
	assert.Error(t, json.Unmarshal([]byte(`42`), &list))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &list))
}

func TestStringList_MarshalPreservesScalarForm(t *testing.T) {
	single, err := json.Marshal(StringList{"UBERON:0001759"})
	require.NoError(t, err)
	assert.Equal(t, `"UBERON:0001759"`, string(single))

	many, err := json.Marshal(StringList{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(many))
}

func TestAnnotation_UnmarshalCollectsExtras(t *testing.T) {
	input := `{
		"models": "UBERON:0001759",
		"kind": "nerve",
		"label": "vagus",
		"sckan": true,
		"tile-layer": "features"
	}`

	var ann Annotation
	require.NoError(t, json.Unmarshal([]byte(input), &ann))

	assert.Equal(t, StringList{"UBERON:0001759"}, ann.Models)
	assert.Equal(t, "nerve", ann.Kind)
	assert.Equal(t, "vagus", ann.Label)

	// Unknown keys land in Extras, known keys do not.
	assert.Equal(t, map[string]any{"sckan": true, "tile-layer": "features"}, ann.Extras)
}

func TestAnnotation_MarshalInlinesExtras(t *testing.T) {
	ann := Annotation{
		FeatureID: 4,
		Kind:      "nerve",
		Extras:    map[string]any{"sckan": true},
	}

	data, err := json.Marshal(ann)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(4), decoded["featureId"])
	assert.Equal(t, "nerve", decoded["kind"])
	assert.Equal(t, true, decoded["sckan"])
}

func TestAnnotation_JSONRoundTrip(t *testing.T) {
	input := `{
		"models": ["UBERON:0001759","ILX:0101"],
		"taxons": "NCBITaxon:9606",
		"centreline": true,
		"geometry": {"type":"LineString","coordinates":[[0,0],[3,4]]},
		"pathStartId": 17
	}`

	var ann Annotation
	require.NoError(t, json.Unmarshal([]byte(input), &ann))

	data, err := json.Marshal(ann)
	require.NoError(t, err)

	var again Annotation
	require.NoError(t, json.Unmarshal(data, &again))

	assert.Equal(t, ann.Models, again.Models)
	assert.Equal(t, ann.Taxons, again.Taxons)
	assert.Equal(t, ann.Centreline, again.Centreline)
	require.NotNil(t, again.Geometry)
	assert.Equal(t, ann.Geometry.Coordinates, again.Geometry.Coordinates)
	assert.Equal(t, float64(17), again.Extras["pathStartId"])
}

func TestAnnotation_Properties(t *testing.T) {
	ann := Annotation{
		FeatureID: 3,
		Kind:      "nerve",
		Label:     "vagus",
		Models:    StringList{"UBERON:0001759"},
		Taxons:    StringList{"NCBITaxon:9606"},
		Extras:    map[string]any{"sckan": true},
	}

	props := ann.Properties()

	assert.Equal(t, 3, props["featureId"])
	assert.Equal(t, "nerve", props["kind"])
	assert.Equal(t, "vagus", props["label"])
	assert.Equal(t, []string{"UBERON:0001759"}, props["models"])
	assert.Equal(t, []string{"NCBITaxon:9606"}, props["taxons"])
	assert.Equal(t, true, props["sckan"])

	// Zero-valued and absent fields stay out of the dictionary.
	assert.NotContains(t, props, "centreline")
	assert.NotContains(t, props, "dataset")
}

func TestLineString_Length(t *testing.T) {
	assert.Zero(t, LineString{}.Length())
	assert.Zero(t, LineString{Coordinates: [][2]float64{{1, 1}}}.Length())

	line := LineString{Coordinates: [][2]float64{{0, 0}, {3, 4}, {3, 10}}}
	assert.InDelta(t, 11.0, line.Length(), 1e-9)
}

func TestLineString_Clone(t *testing.T) {
	line := LineString{Coordinates: [][2]float64{{0, 0}, {1, 1}}}
	clone := line.Clone()

	clone.Coordinates[0][0] = 99
	assert.Equal(t, 0.0, line.Coordinates[0][0])
}

func TestLineString_JSON(t *testing.T) {
	var line LineString
	require.NoError(t, json.Unmarshal([]byte(`{"type":"LineString","coordinates":[[0,0],[1,2]]}`), &line))
	assert.Equal(t, [][2]float64{{0, 0}, {1, 2}}, line.Coordinates)

	data, err := json.Marshal(line)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LineString","coordinates":[[0,0],[1,2]]}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"type":"Polygon","coordinates":[]}`), &line))
}
