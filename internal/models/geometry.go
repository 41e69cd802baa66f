package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// LineString represents a GeoJSON LineString geometry in flatmap coordinates.
// Flatmaps use a planar coordinate space, so lengths are Euclidean; no
// spherical projection is involved.
type LineString struct {
	Coordinates [][2]float64
}

// UnmarshalJSON parses GeoJSON LineString input from the map server's
// annotation contract.
func (l *LineString) UnmarshalJSON(data []byte) error {
	var geom struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}

	if err := json.Unmarshal(data, &geom); err != nil {
		return fmt.Errorf("failed to unmarshal linestring: %w", err)
	}

	if geom.Type != "" && geom.Type != "LineString" {
		return fmt.Errorf("expected LineString type, got %s", geom.Type)
	}

	l.Coordinates = geom.Coordinates
	return nil
}

// MarshalJSON implements json.Marshaler for API responses.
// Returns GeoJSON-compliant format for viewer consumption.
func (l LineString) MarshalJSON() ([]byte, error) {
	geom := struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	}{
		Type:        "LineString",
		Coordinates: l.Coordinates,
	}
	return json.Marshal(geom)
}

// Length returns the planar length of the line, the sum of its segment
// lengths. Used for along-line positioning of centreline markers; computed
// once at annotation index time, not per interactive query.
func (l LineString) Length() float64 {
	var total float64
	for i := 1; i < len(l.Coordinates); i++ {
		dx := l.Coordinates[i][0] - l.Coordinates[i-1][0]
		dy := l.Coordinates[i][1] - l.Coordinates[i-1][1]
		total += math.Hypot(dx, dy)
	}
	return total
}

// Clone returns an independent copy of the geometry.
func (l LineString) Clone() *LineString {
	coords := make([][2]float64, len(l.Coordinates))
	copy(coords, l.Coordinates)
	return &LineString{Coordinates: coords}
}
