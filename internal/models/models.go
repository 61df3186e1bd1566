package models

import (
	"time"
)

// CountyRiskRecord is one county's weather-derived fire risk metrics as published
// by the upstream data API. County is the join key for every dataset and is matched
// exactly (case-sensitive).
type CountyRiskRecord struct {
	County               string        `json:"county"`
	ObservedAt           time.Time     `json:"observed_at"`
	TemperatureF         OptionalFloat `json:"temperature_f"`
	RelativeHumidity     OptionalFloat `json:"relative_humidity"`
	WindSpeed            string        `json:"wind_speed"`     // pre-formatted, display only
	WindDirection        string        `json:"wind_direction"` // pre-formatted, display only
	Conditions           string        `json:"conditions"`
	DangerLevel          string        `json:"fire_danger_level"`
	DroughtLevel         string        `json:"drought_level,omitempty"`
	ActiveFiresNearby    OptionalInt   `json:"active_fires_nearby"`
	StatewideActiveFires OptionalInt   `json:"statewide_active_fires"`
	RiskScore            OptionalFloat `json:"risk_score"`

	// Per-factor qualitative flags reported by some upstream versions.
	HighTempRisk    string `json:"high_temp_risk,omitempty"`
	LowHumidityRisk string `json:"low_humidity_risk,omitempty"`
	HighWindRisk    string `json:"high_wind_risk,omitempty"`
}

// HasObservation reports whether the upstream supplied a usable timestamp.
func (r CountyRiskRecord) HasObservation() bool {
	return !r.ObservedAt.IsZero()
}

// LatestObservation returns the most recent per-record timestamp, or the zero
// time when no record carries one.
func LatestObservation(records []CountyRiskRecord) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.ObservedAt.After(latest) {
			latest = r.ObservedAt
		}
	}
	return latest
}

// CountyNames returns the county names in record order.
func CountyNames(records []CountyRiskRecord) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.County)
	}
	return names
}
