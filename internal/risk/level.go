// Package risk classifies county fire risk signals into the five danger levels
// and owns the only colour mapping the views are allowed to use.
package risk

// Level is the ordered fire danger classification.
type Level int

const (
	// Unknown is an unrecognised qualitative level. It sorts below Low and
	// renders in the neutral colour.
	Unknown Level = iota
	Low
	Moderate
	Elevated
	High
	VeryHigh
)

// Levels lists the classified levels from least to most dangerous.
var Levels = []Level{Low, Moderate, Elevated, High, VeryHigh}

var levelNames = map[Level]string{
	Unknown:  "Unknown",
	Low:      "Low",
	Moderate: "Moderate",
	Elevated: "Elevated",
	High:     "High",
	VeryHigh: "Very High",
}

// String returns the upstream spelling of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return levelNames[Unknown]
}

// Ordinal is the value plotted on the choropleth (0 for Unknown, 1..5 otherwise).
func (l Level) Ordinal() int {
	if l < Unknown || l > VeryHigh {
		return 0
	}
	return int(l)
}

// Color returns the level's colour token.
func (l Level) Color() Color {
	switch l {
	case VeryHigh:
		return ColorRed
	case High:
		return ColorOrange
	case Elevated:
		return ColorAmber
	case Moderate:
		return ColorLightGreen
	case Low:
		return ColorGreen
	default:
		return ColorNeutral
	}
}

// CSSClass returns the class used by the server-rendered page.
func (l Level) CSSClass() string {
	switch l {
	case VeryHigh:
		return "risk-very-high"
	case High:
		return "risk-high"
	case Elevated:
		return "risk-elevated"
	case Moderate:
		return "risk-moderate"
	case Low:
		return "risk-low"
	default:
		return "risk-unknown"
	}
}

// AtLeast reports whether l is as dangerous as min. Unknown is never at least
// anything but Unknown.
func (l Level) AtLeast(min Level) bool {
	return l >= min
}

// ParseLevel matches the exact upstream spelling ("Very High", "High", ...).
func ParseLevel(s string) (Level, bool) {
	for _, l := range Levels {
		if levelNames[l] == s {
			return l, true
		}
	}
	return Unknown, false
}
