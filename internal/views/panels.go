package views

import (
	"cmp"
	"slices"
	"time"

	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/selection"
)

// DetailView is the panel for the active county.
type DetailView struct {
	State        LoadState               `json:"state"`
	County       string                  `json:"county"`
	Found        bool                    `json:"found"`
	Level        string                  `json:"level"`
	Color        risk.Color              `json:"color"`
	CSSClass     string                  `json:"css_class"`
	Inconsistent bool                    `json:"inconsistent,omitempty"`
	OnMap        bool                    `json:"on_map"`
	Record       models.CountyRiskRecord `json:"record"`
	Updated      string                  `json:"updated"`
}

// Detail shows the active county's record. A county that vanished in a later
// fetch is reported as not found rather than cleared.
func Detail(in Input) DetailView {
	v := DetailView{
		State:    in.fireState(),
		County:   in.Selection.ActiveCounty,
		Level:    risk.UnknownBand.Label,
		Color:    risk.UnknownBand.Color,
		CSSClass: risk.Unknown.CSSClass(),
		Updated:  in.describe(in.Fire.LastUpdated()),
	}
	if v.County == "" {
		return v
	}

	rec, ok := in.Fire.Lookup(v.County)
	if !ok {
		return v
	}
	band := in.band(rec)
	v.Found = true
	v.Record = rec
	v.Level = band.Label
	v.Color = band.Color
	v.CSSClass = band.Level.CSSClass()
	v.Inconsistent = !risk.Consistent(rec.DangerLevel, rec.RiskScore)
	v.OnMap = in.Boundaries.Has(rec.County)
	if rec.HasObservation() {
		v.Updated = in.describe(rec.ObservedAt)
	}
	return v
}

// RankedEntry is one row of the ranked list.
type RankedEntry struct {
	Rank     int                  `json:"rank"`
	County   string               `json:"county"`
	Level    string               `json:"level"`
	Color    risk.Color           `json:"color"`
	CSSClass string               `json:"css_class"`
	Score    models.OptionalFloat `json:"risk_score"`
	Active   bool                 `json:"active"`
	OnMap    bool                 `json:"on_map"`

	level risk.Level
}

// RankedView lists every county, join misses included, most dangerous first.
type RankedView struct {
	State   LoadState     `json:"state"`
	Active  string        `json:"active,omitempty"`
	Entries []RankedEntry `json:"entries"`
}

// Ranked sorts by level, then score (missing scores last), then name.
func Ranked(in Input) RankedView {
	v := RankedView{
		State:   in.fireState(),
		Active:  in.Selection.ActiveCounty,
		Entries: make([]RankedEntry, 0, len(in.Fire.Records)),
	}
	seen := make(map[string]bool, len(in.Fire.Records))
	for _, r := range in.Fire.Records {
		if seen[r.County] {
			continue
		}
		seen[r.County] = true
		band := in.band(r)
		v.Entries = append(v.Entries, RankedEntry{
			County:   r.County,
			Level:    band.Label,
			Color:    band.Color,
			CSSClass: band.Level.CSSClass(),
			Score:    r.RiskScore,
			Active:   r.County == in.Selection.ActiveCounty,
			OnMap:    in.Boundaries.Has(r.County),
			level:    band.Level,
		})
	}

	slices.SortStableFunc(v.Entries, func(a, b RankedEntry) int {
		if c := cmp.Compare(b.level, a.level); c != 0 {
			return c
		}
		if c := compareScores(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.County, b.County)
	})
	for i := range v.Entries {
		v.Entries[i].Rank = i + 1
	}
	return v
}

func compareScores(a, b models.OptionalFloat) int {
	switch {
	case a.Valid && b.Valid:
		return cmp.Compare(a.Float64, b.Float64)
	case a.Valid:
		return 1
	case b.Valid:
		return -1
	default:
		return 0
	}
}

// StoreStatus is the fetch state of one dataset.
type StoreStatus struct {
	State     LoadState `json:"state"`
	Fetching  bool      `json:"fetching"`
	Failed    bool      `json:"failed"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// StatusView is the loading indicator, failure notice and staleness line.
type StatusView struct {
	State       LoadState       `json:"state"`
	Fire        StoreStatus     `json:"fire_data"`
	Boundaries  StoreStatus     `json:"boundaries"`
	Counties    int             `json:"counties"`
	Notice      string          `json:"notice,omitempty"`
	LastUpdated time.Time       `json:"last_updated,omitzero"`
	Updated     string          `json:"updated"`
	Selection   selection.State `json:"selection"`
	Epoch       uint64          `json:"epoch"`
}

// Status summarises both stores. epoch is the staleness tick count, carried so
// clients can tell a re-render apart from new data.
func Status(in Input, epoch uint64) StatusView {
	fire := storeStatus(in.fireState(), in.Fire.Fetching, in.Fire.Failed, in.Fire.Err, in.Fire.FetchedAt)
	bounds := storeStatus(in.boundaryState(), in.Boundaries.Fetching, in.Boundaries.Failed, in.Boundaries.Err, in.Boundaries.FetchedAt)
	last := in.Fire.LastUpdated()
	return StatusView{
		State:       combine(fire.State, bounds.State),
		Fire:        fire,
		Boundaries:  bounds,
		Counties:    len(in.Fire.Records),
		Notice:      notice(fire, bounds),
		LastUpdated: last,
		Updated:     in.describe(last),
		Selection:   in.Selection,
		Epoch:       epoch,
	}
}

func storeStatus(state LoadState, fetching, failed bool, err error, fetchedAt time.Time) StoreStatus {
	s := StoreStatus{State: state, Fetching: fetching, Failed: failed, FetchedAt: fetchedAt}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func notice(fire, bounds StoreStatus) string {
	switch {
	case fire.State == Empty && bounds.State == Empty:
		return "Fire data and county boundaries are unavailable."
	case fire.State == Empty:
		return "Fire data is unavailable."
	case bounds.State == Empty:
		return "County boundaries are unavailable; the map cannot be drawn."
	case fire.Failed && bounds.Failed:
		return "Refresh failed. Showing the last known data."
	case fire.Failed:
		return "Fire data refresh failed. Showing the last known data."
	case bounds.Failed:
		return "Boundary refresh failed. Showing the last known map."
	default:
		return ""
	}
}
