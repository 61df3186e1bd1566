package models

import (
	"fmt"

	geojson "github.com/paulmach/go.geojson"
)

// DefaultBoundaryKey is the feature property holding the county name in the
// California counties GeoJSON.
const DefaultBoundaryKey = "name"

// BoundarySet is a county boundary FeatureCollection indexed by county name.
type BoundarySet struct {
	Collection *geojson.FeatureCollection
	Key        string

	byCounty map[string]*geojson.Feature
	names    []string
	skipped  int
}

// NewBoundarySet indexes fc by the string property key. Features without a usable
// polygon geometry or without a string name are kept in the collection but left
// out of the index; the first feature wins when a name repeats.
func NewBoundarySet(fc *geojson.FeatureCollection, key string) (*BoundarySet, error) {
	if fc == nil {
		return nil, fmt.Errorf("nil feature collection")
	}
	if key == "" {
		key = DefaultBoundaryKey
	}

	set := &BoundarySet{
		Collection: fc,
		Key:        key,
		byCounty:   make(map[string]*geojson.Feature, len(fc.Features)),
	}
	for _, f := range fc.Features {
		if f == nil || !isArea(f.Geometry) {
			set.skipped++
			continue
		}
		name, err := f.PropertyString(key)
		if err != nil || name == "" {
			set.skipped++
			continue
		}
		if _, dup := set.byCounty[name]; dup {
			set.skipped++
			continue
		}
		set.byCounty[name] = f
		set.names = append(set.names, name)
	}
	return set, nil
}

func isArea(g *geojson.Geometry) bool {
	if g == nil {
		return false
	}
	return g.IsPolygon() || g.IsMultiPolygon()
}

// Has reports whether a boundary exists for the exact county name.
func (b *BoundarySet) Has(county string) bool {
	if b == nil {
		return false
	}
	_, ok := b.byCounty[county]
	return ok
}

// Feature returns the boundary feature for county.
func (b *BoundarySet) Feature(county string) (*geojson.Feature, bool) {
	if b == nil {
		return nil, false
	}
	f, ok := b.byCounty[county]
	return f, ok
}

// Names returns the indexed county names in feature order.
func (b *BoundarySet) Names() []string {
	if b == nil {
		return nil
	}
	return b.names
}

// Len is the number of indexed boundaries.
func (b *BoundarySet) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}

// Skipped counts features left out of the index.
func (b *BoundarySet) Skipped() int {
	if b == nil {
		return 0
	}
	return b.skipped
}
