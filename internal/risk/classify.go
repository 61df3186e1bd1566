package risk

import (
	"math"

	"github.com/lox/firerisk/internal/models"
)

// Color is an opaque colour token understood by the map renderer.
type Color string

const (
	ColorGreen      Color = "#22c55e"
	ColorLightGreen Color = "#84cc16"
	ColorAmber      Color = "#f59e0b"
	ColorOrange     Color = "#f97316"
	ColorRed        Color = "#dc2626"
	ColorNeutral    Color = "#9ca3af"
)

const (
	MinScore = 0.0
	MaxScore = 10.0
)

// Band is a classified level together with its colour.
type Band struct {
	Level Level  `json:"-"`
	Label string `json:"level"`
	Color Color  `json:"color"`
}

func bandFor(l Level) Band {
	return Band{Level: l, Label: l.String(), Color: l.Color()}
}

// UnknownBand is the neutral band for unmatched qualitative levels.
var UnknownBand = bandFor(Unknown)

// Classify bands a 0-10 risk score. Out-of-range scores are clamped and NaN is
// treated as a missing score, which classifies as Low.
func Classify(score float64) Band {
	if math.IsNaN(score) {
		return bandFor(Low)
	}
	s := math.Max(MinScore, math.Min(MaxScore, score))
	switch {
	case s >= 8:
		return bandFor(VeryHigh)
	case s >= 6:
		return bandFor(High)
	case s >= 4:
		return bandFor(Elevated)
	case s >= 2:
		return bandFor(Moderate)
	default:
		return bandFor(Low)
	}
}

// ClassifyOptional bands a score that the upstream may not have computed.
func ClassifyOptional(score models.OptionalFloat) Band {
	if !score.Valid {
		return bandFor(Low)
	}
	return Classify(score.Float64)
}

// ColorForLevel maps a qualitative level string to its colour. Unmatched strings
// get the neutral colour.
func ColorForLevel(level string) Color {
	l, _ := ParseLevel(level)
	return l.Color()
}

// Policy decides which signal colours a record when both are present.
type Policy int

const (
	// PolicyLevelFirst colours by the upstream qualitative level and falls back
	// to the score only when no level was sent.
	PolicyLevelFirst Policy = iota
	// PolicyScoreFirst colours by the numeric score whenever one exists.
	PolicyScoreFirst
)

// ParsePolicy accepts "level" or "score".
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "level", "":
		return PolicyLevelFirst, true
	case "score":
		return PolicyScoreFirst, true
	default:
		return PolicyLevelFirst, false
	}
}

// Resolve produces the band every view uses for a record.
//
// An empty level with no score classifies as Low (the missing-score default);
// a non-empty level that matches nothing is Unknown unless a score can stand in.
func Resolve(level string, score models.OptionalFloat, policy Policy) Band {
	if policy == PolicyScoreFirst && score.Valid {
		return Classify(score.Float64)
	}
	if l, ok := ParseLevel(level); ok {
		return bandFor(l)
	}
	if score.Valid {
		return Classify(score.Float64)
	}
	if level != "" {
		return UnknownBand
	}
	return ClassifyOptional(score)
}

// ResolveRecord is Resolve applied to a county record.
func ResolveRecord(r models.CountyRiskRecord, policy Policy) Band {
	return Resolve(r.DangerLevel, r.RiskScore, policy)
}

// Consistent reports whether an upstream level agrees with its score under the
// classifier banding. Records missing either signal are trivially consistent.
func Consistent(level string, score models.OptionalFloat) bool {
	l, ok := ParseLevel(level)
	if !ok || !score.Valid {
		return true
	}
	return Classify(score.Float64).Level == l
}
