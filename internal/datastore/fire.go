package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
)

// FireSource fetches county risk records. *upstream.Client implements it.
type FireSource interface {
	FireData(ctx context.Context) ([]models.CountyRiskRecord, error)
	County(ctx context.Context, county string) (models.CountyRiskRecord, error)
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock clockwork.Clock
	log   *logrus.Entry
}

// WithClock sets the clock used to stamp fetches.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the store's log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(component string, opts []Option) options {
	o := options{clock: clockwork.NewRealClock(), log: logging.For(component)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type fireData struct {
	records   []models.CountyRiskRecord
	index     map[string]int
	fetchedAt time.Time
}

// FireSnapshot is an immutable view of the fire data store.
type FireSnapshot struct {
	Records   []models.CountyRiskRecord
	FetchedAt time.Time
	Loaded    bool
	Fetching  bool
	Failed    bool
	Err       error

	index map[string]int
}

// Lookup finds a county by exact name.
func (s FireSnapshot) Lookup(county string) (models.CountyRiskRecord, bool) {
	i, ok := s.index[county]
	if !ok {
		return models.CountyRiskRecord{}, false
	}
	return s.Records[i], true
}

// NewFireSnapshot builds a loaded snapshot from fixed records. The first of
// several records for one county wins the index.
func NewFireSnapshot(records []models.CountyRiskRecord, fetchedAt time.Time) FireSnapshot {
	return FireSnapshot{
		Records:   records,
		FetchedAt: fetchedAt,
		Loaded:    true,
		index:     indexRecords(records, nil),
	}
}

func indexRecords(records []models.CountyRiskRecord, onDuplicate func(models.CountyRiskRecord)) map[string]int {
	index := make(map[string]int, len(records))
	for i, r := range records {
		if _, dup := index[r.County]; dup {
			if onDuplicate != nil {
				onDuplicate(r)
			}
			continue
		}
		index[r.County] = i
	}
	return index
}

// LastUpdated is the newest observation time in the snapshot, falling back to
// the fetch time when no record carries a timestamp.
func (s FireSnapshot) LastUpdated() time.Time {
	if t := models.LatestObservation(s.Records); !t.IsZero() {
		return t
	}
	return s.FetchedAt
}

// FireDataStore holds the last successfully fetched county risk records.
type FireDataStore struct {
	src   FireSource
	clock clockwork.Clock
	log   *logrus.Entry
	slot  slot[fireData]
}

// NewFireDataStore creates an empty store backed by src.
func NewFireDataStore(src FireSource, opts ...Option) *FireDataStore {
	o := buildOptions("firedata", opts)
	return &FireDataStore{
		src:   src,
		clock: o.clock,
		log:   o.log,
		slot:  slot[fireData]{name: "firedata"},
	}
}

// FetchAll makes one attempt to fetch every county. On success the snapshot is
// replaced and the new records returned. On failure the previous snapshot is kept
// and the error wraps upstream.ErrTransport. If ctx ends first the result is
// dropped and the error wraps ErrDiscarded. If a later fetch has already been
// committed the result is dropped and the error wraps ErrSuperseded.
func (s *FireDataStore) FetchAll(ctx context.Context) ([]models.CountyRiskRecord, error) {
	seq := s.slot.begin()
	records, err := s.src.FireData(ctx)

	var data *fireData
	if err == nil {
		data = s.build(records)
	}
	if err := s.slot.finish(ctx, seq, data, err, s.clock.Now()); err != nil {
		if errors.Is(err, ErrSuperseded) {
			s.log.Debug("older fire data fetch finished after a newer one, dropping it")
		} else {
			s.log.WithError(err).Warn("fire data fetch failed, keeping last snapshot")
		}
		return nil, err
	}

	metrics.StoreRecords.WithLabelValues("firedata").Set(float64(len(records)))
	s.log.WithField("counties", len(records)).Info("fire data loaded")
	return records, nil
}

func (s *FireDataStore) build(records []models.CountyRiskRecord) *fireData {
	index := indexRecords(records, func(r models.CountyRiskRecord) {
		s.log.WithField("county", r.County).Warn("duplicate county in fire data, keeping first")
	})
	for _, r := range records {
		if !risk.Consistent(r.DangerLevel, r.RiskScore) {
			s.log.WithFields(logrus.Fields{
				"county": r.County,
				"level":  r.DangerLevel,
				"score":  r.RiskScore.Float64,
			}).Warn("danger level disagrees with risk score")
		}
	}
	return &fireData{records: records, index: index, fetchedAt: s.clock.Now()}
}

// FetchOne fetches a single county without touching the snapshot. Unknown
// counties return an error wrapping upstream.ErrNotFound.
func (s *FireDataStore) FetchOne(ctx context.Context, county string) (models.CountyRiskRecord, error) {
	return s.src.County(ctx, county)
}

// Lookup finds a county in the current snapshot. Not found is a normal outcome.
func (s *FireDataStore) Lookup(county string) (models.CountyRiskRecord, bool) {
	return s.Snapshot().Lookup(county)
}

// Snapshot returns the current records and fetch status.
func (s *FireDataStore) Snapshot() FireSnapshot {
	st := s.slot.state()
	snap := FireSnapshot{
		Loaded:   st.Loaded,
		Fetching: st.Fetching,
		Failed:   st.Failed,
		Err:      st.Err,
	}
	if d := s.slot.load(); d != nil {
		snap.Records = d.records
		snap.FetchedAt = d.fetchedAt
		snap.index = d.index
	}
	return snap
}
