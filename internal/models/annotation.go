package models

import (
	"encoding/json"
	"fmt"
)

// FeatureID identifies a single renderable geometry, stable within one map
// load. IDs are assigned by the annotation store at index-build time.
type FeatureID int

// StringList holds an annotation property that the map server serializes as
// either a bare string or a list of strings. Both forms decode to a list so
// indexing code can fan out uniformly.
type StringList []string

// UnmarshalJSON accepts a string, a list of strings, or null.
func (s *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*s = StringList(many)
	return nil
}

// MarshalJSON preserves the scalar form for single-valued properties.
func (s StringList) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]string(s))
}

// Annotation is the property dictionary describing one map feature's
// semantics: anatomical identity, dataset membership, provenance, and
// styling hints. Annotations are immutable once indexed, except for the
// derived centreline fields (LineString, LineLength) computed at index time.
type Annotation struct {
	// FeatureID is stamped by the annotation store during indexing.
	FeatureID FeatureID `json:"featureId"`

	Models     StringList `json:"models,omitempty"`
	Dataset    StringList `json:"dataset,omitempty"`
	Source     StringList `json:"source,omitempty"`
	Taxons     StringList `json:"taxons,omitempty"`
	Centreline bool       `json:"centreline,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Label      string     `json:"label,omitempty"`

	// Geometry carries the raw centreline geometry when the feature is a
	// centreline; LineString and LineLength are derived from it once.
	Geometry   *LineString `json:"geometry,omitempty"`
	LineString *LineString `json:"lineString,omitempty"`
	LineLength float64     `json:"lineLength,omitempty"`

	// Extras holds free-form extension properties from the map server.
	Extras map[string]any `json:"-"`
}

// annotationAlias avoids recursing through the custom (un)marshallers.
type annotationAlias Annotation

// UnmarshalJSON decodes the known fields and collects everything else into
// Extras, since the annotation dictionary is an open contract.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	var known annotationAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range knownAnnotationKeys {
		delete(raw, key)
	}

	if len(raw) > 0 {
		known.Extras = make(map[string]any, len(raw))
		for key, value := range raw {
			var decoded any
			if err := json.Unmarshal(value, &decoded); err != nil {
				return fmt.Errorf("annotation property %q: %w", key, err)
			}
			known.Extras[key] = decoded
		}
	}

	*a = Annotation(known)
	return nil
}

// MarshalJSON re-inlines the extension properties.
func (a Annotation) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(annotationAlias(a))
	if err != nil {
		return nil, err
	}
	if len(a.Extras) == 0 {
		return data, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range a.Extras {
		merged[key] = value
	}
	return json.Marshal(merged)
}

var knownAnnotationKeys = []string{
	"featureId", "models", "dataset", "source", "taxons",
	"centreline", "kind", "label", "geometry", "lineString", "lineLength",
}

// Properties flattens the annotation into a property dictionary for filter
// evaluation. List-valued fields keep their list form so filters can use
// intersection matching.
func (a *Annotation) Properties() map[string]any {
	props := make(map[string]any, len(a.Extras)+8)
	for key, value := range a.Extras {
		props[key] = value
	}
	props["featureId"] = int(a.FeatureID)
	if a.Kind != "" {
		props["kind"] = a.Kind
	}
	if a.Label != "" {
		props["label"] = a.Label
	}
	if a.Centreline {
		props["centreline"] = true
	}
	if len(a.Models) > 0 {
		props["models"] = []string(a.Models)
	}
	if len(a.Dataset) > 0 {
		props["dataset"] = []string(a.Dataset)
	}
	if len(a.Source) > 0 {
		props["source"] = []string(a.Source)
	}
	if len(a.Taxons) > 0 {
		props["taxons"] = []string(a.Taxons)
	}
	return props
}
