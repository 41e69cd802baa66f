package services

import (
	"fmt"

	"github.com/rdcourtney/flatmap/api/internal/facets"
)

// FacetDefinition is the wire form of a facet registration. Kind selects one
// of the built-in facets; "custom" builds a discrete facet over an arbitrary
// property, which needs Property and Values set.
type FacetDefinition struct {
	Kind     string   `json:"kind" binding:"required,oneof=path-type sckan nerve-centrelines detail-layers custom"`
	ID       string   `json:"id,omitempty"`
	Property string   `json:"property,omitempty"`
	Values   []string `json:"values,omitempty"`
	Disabled []string `json:"disabled,omitempty"`
}

// buildFacet turns a definition into a live facet. Values listed in Disabled
// start toggled off; for the sckan facet the recognised values are "valid"
// and "invalid".
func buildFacet(def FacetDefinition) (facets.Facet, error) {
	switch def.Kind {
	case facets.FacetSckan:
		f := facets.NewSckanFacet()
		for _, v := range def.Disabled {
			switch v {
			case "valid":
				f.SetShowValid(false)
			case "invalid":
				f.SetShowInvalid(false)
			default:
				return nil, fmt.Errorf("%w: unknown sckan toggle %q", ErrInvalidFacet, v)
			}
		}
		return f, nil
	case facets.FacetPathType:
		return buildDiscrete(facets.NewPathTypeFacet(def.Values), def), nil
	case facets.FacetNerves:
		return buildDiscrete(facets.NewNerveCentrelineFacet(def.Values), def), nil
	case facets.FacetDetailLayer:
		return buildDiscrete(facets.NewDetailLayerFacet(def.Values), def), nil
	case "custom":
		if def.ID == "" || def.Property == "" {
			return nil, fmt.Errorf("%w: custom facets need an id and a property", ErrInvalidFacet)
		}
		return buildDiscrete(facets.NewDiscreteFacet(def.ID, def.Property, def.Values), def), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidFacet, def.Kind)
	}
}

func buildDiscrete(f *facets.DiscreteFacet, def FacetDefinition) *facets.DiscreteFacet {
	for _, v := range def.Disabled {
		f.SetEnabled(v, false)
	}
	return f
}
