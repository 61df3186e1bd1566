package views

import (
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
)

// MapView is the choropleth trace. Locations, Values, Colors and Labels are
// parallel slices in boundary feature order.
type MapView struct {
	State        LoadState          `json:"state"`
	Stale        bool               `json:"stale"`
	FeatureIDKey string             `json:"featureidkey"`
	Locations    []string           `json:"locations"`
	Values       []int              `json:"z"`
	Colors       []risk.Color       `json:"colors"`
	Labels       []string           `json:"labels"`
	Colorscale   []risk.ColorStop   `json:"colorscale"`
	ZMin         int                `json:"zmin"`
	ZMax         int                `json:"zmax"`
	TickVals     []int              `json:"tickvals"`
	TickText     []string           `json:"ticktext"`
	Legend       []risk.LegendEntry `json:"legend"`
	Active       string             `json:"active,omitempty"`

	// MissingBoundary holds records left off the map for lack of a boundary.
	MissingBoundary []string `json:"missing_boundary,omitempty"`
	// MissingRecord holds boundaries drawn in the neutral colour for lack of data.
	MissingRecord []string `json:"missing_record,omitempty"`
}

// Map colours every county boundary by its resolved danger level. Boundaries
// without a record render neutral; records without a boundary are left out.
func Map(in Input) MapView {
	v := MapView{
		State:        combine(in.fireState(), in.boundaryState()),
		Stale:        in.Fire.Failed || in.Boundaries.Failed,
		FeatureIDKey: "properties." + boundaryKey(in),
		Colorscale:   risk.Colorscale(),
		ZMin:         risk.Unknown.Ordinal(),
		ZMax:         risk.VeryHigh.Ordinal(),
		TickVals:     risk.TickVals(),
		TickText:     risk.TickText(),
		Legend:       risk.Legend(),
		Active:       in.Selection.ActiveCounty,
	}

	names := in.Boundaries.Set.Names()
	v.Locations = make([]string, 0, len(names))
	v.Values = make([]int, 0, len(names))
	v.Colors = make([]risk.Color, 0, len(names))
	v.Labels = make([]string, 0, len(names))
	for _, name := range names {
		band := risk.UnknownBand
		if rec, ok := in.Fire.Lookup(name); ok {
			band = in.band(rec)
		}
		v.Locations = append(v.Locations, name)
		v.Values = append(v.Values, band.Level.Ordinal())
		v.Colors = append(v.Colors, band.Color)
		v.Labels = append(v.Labels, band.Label)
	}

	v.MissingBoundary, v.MissingRecord = JoinMisses(in.Fire, in.Boundaries)
	return v
}

func boundaryKey(in Input) string {
	if in.Boundaries.Set != nil && in.Boundaries.Set.Key != "" {
		return in.Boundaries.Set.Key
	}
	return models.DefaultBoundaryKey
}
