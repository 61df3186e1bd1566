package risk

import (
	"encoding/json"
	"math"
)

// LegendEntry is one row of the map legend.
type LegendEntry struct {
	Label string  `json:"label"`
	Color Color   `json:"color"`
	Min   float64 `json:"min_score"`
	Max   float64 `json:"max_score"`
}

// Legend lists the five bands in ascending danger.
func Legend() []LegendEntry {
	bounds := map[Level][2]float64{
		Low:      {0, 2},
		Moderate: {2, 4},
		Elevated: {4, 6},
		High:     {6, 8},
		VeryHigh: {8, 10},
	}
	entries := make([]LegendEntry, 0, len(Levels))
	for _, l := range Levels {
		b := bounds[l]
		entries = append(entries, LegendEntry{Label: l.String(), Color: l.Color(), Min: b[0], Max: b[1]})
	}
	return entries
}

// ColorStop is a [position, colour] pair of a discrete choropleth colourscale.
type ColorStop struct {
	Position float64
	Color    Color
}

// MarshalJSON renders the stop as the two-element array map renderers expect.
func (c ColorStop) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Position, string(c.Color)})
}

// Colorscale returns a stepped colourscale over ordinals 0 (Unknown) to 5
// (Very High), so each ordinal renders as exactly its level colour when the
// renderer's range is fixed to [0, 5].
func Colorscale() []ColorStop {
	all := append([]Level{Unknown}, Levels...)
	span := float64(VeryHigh.Ordinal())
	stops := make([]ColorStop, 0, 2*len(all))
	for _, l := range all {
		lo := math.Max(0, (float64(l.Ordinal())-0.5)/span)
		hi := math.Min(1, (float64(l.Ordinal())+0.5)/span)
		stops = append(stops,
			ColorStop{Position: lo, Color: l.Color()},
			ColorStop{Position: hi, Color: l.Color()},
		)
	}
	return stops
}

// TickVals and TickText label the colourbar at each level ordinal.
func TickVals() []int {
	vals := make([]int, 0, len(Levels))
	for _, l := range Levels {
		vals = append(vals, l.Ordinal())
	}
	return vals
}

func TickText() []string {
	text := make([]string, 0, len(Levels))
	for _, l := range Levels {
		text = append(text, l.String())
	}
	return text
}
