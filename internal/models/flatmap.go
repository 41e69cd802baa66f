package models

import (
	"time"

	"github.com/google/uuid"
)

// Map rendering styles. Centrelines are geometry scaffolding rather than
// user-addressable anatomy in every style except StyleCentreline.
const (
	StyleFlatmap    = "flatmap"
	StyleAnatomical = "anatomical"
	StyleFunctional = "functional"
	StyleCentreline = "centreline"
)

// Flatmap is one published flatmap in the registry. The registry row points
// at the on-disk bundle holding the map's annotation dictionary, pathway
// model and style layers.
type Flatmap struct {
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Name          string    `json:"name"`
	Describes     *string   `json:"describes,omitempty"`
	Taxon         string    `json:"taxon"`
	BiologicalSex *string   `json:"biologicalSex,omitempty"`
	Style         string    `json:"style"`
	Version       string    `json:"version"`
	BundlePath    string    `json:"-"`
	UUID          uuid.UUID `json:"uuid"`
	ID            uint      `json:"id"`
}
