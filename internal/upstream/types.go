package upstream

import (
	"time"

	"github.com/lox/firerisk/internal/htmlutil"
	"github.com/lox/firerisk/internal/models"
)

// fireDataRecord is the upstream JSON shape. Every field other than county is
// optional and numeric fields may arrive as strings or null.
type fireDataRecord struct {
	County               string               `json:"county"`
	Timestamp            flexText             `json:"timestamp"`
	TemperatureF         models.OptionalFloat `json:"temperature_f"`
	WindSpeed            flexText             `json:"wind_speed"`
	WindDirection        flexText             `json:"wind_direction"`
	RelativeHumidity     models.OptionalFloat `json:"relative_humidity"`
	Conditions           flexText             `json:"conditions"`
	HighTempRisk         flexText             `json:"high_temp_risk"`
	LowHumidityRisk      flexText             `json:"low_humidity_risk"`
	HighWindRisk         flexText             `json:"high_wind_risk"`
	FireDangerLevel      flexText             `json:"fire_danger_level"`
	DroughtLevel         flexText             `json:"drought_level"`
	ActiveFiresNearby    models.OptionalInt   `json:"active_fires_nearby"`
	StatewideActiveFires models.OptionalInt   `json:"statewide_active_fires"`
	RiskScore            models.OptionalFloat `json:"risk_score"`
}

// timestampLayouts are tried in order. The first is what the upstream collector
// writes: naive local time.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(s string, loc *time.Location) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (w fireDataRecord) toRecord(loc *time.Location) models.CountyRiskRecord {
	return models.CountyRiskRecord{
		County:               w.County,
		ObservedAt:           parseTimestamp(string(w.Timestamp), loc),
		TemperatureF:         w.TemperatureF,
		RelativeHumidity:     w.RelativeHumidity,
		WindSpeed:            string(w.WindSpeed),
		WindDirection:        string(w.WindDirection),
		Conditions:           htmlutil.Condense(string(w.Conditions)),
		DangerLevel:          string(w.FireDangerLevel),
		DroughtLevel:         string(w.DroughtLevel),
		ActiveFiresNearby:    w.ActiveFiresNearby,
		StatewideActiveFires: w.StatewideActiveFires,
		RiskScore:            w.RiskScore,
		HighTempRisk:         string(w.HighTempRisk),
		LowHumidityRisk:      string(w.LowHumidityRisk),
		HighWindRisk:         string(w.HighWindRisk),
	}
}
