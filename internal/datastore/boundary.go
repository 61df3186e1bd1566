package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	geojson "github.com/paulmach/go.geojson"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
)

// BoundarySource fetches the county boundary collection. *upstream.Client
// implements it.
type BoundarySource interface {
	Boundaries(ctx context.Context) (*geojson.FeatureCollection, error)
}

type boundaryData struct {
	set       *models.BoundarySet
	fetchedAt time.Time
}

// BoundarySnapshot is an immutable view of the boundary store.
type BoundarySnapshot struct {
	Set       *models.BoundarySet
	FetchedAt time.Time
	Loaded    bool
	Fetching  bool
	Failed    bool
	Err       error
}

// Has reports whether a boundary exists for the exact county name.
func (s BoundarySnapshot) Has(county string) bool {
	return s.Set.Has(county)
}

// BoundaryStore holds the last successfully fetched county boundaries.
type BoundaryStore struct {
	src   BoundarySource
	key   string
	clock clockwork.Clock
	log   *logrus.Entry
	slot  slot[boundaryData]
}

// NewBoundaryStore creates an empty store. Features are indexed by the string
// property key (models.DefaultBoundaryKey when empty).
func NewBoundaryStore(src BoundarySource, key string, opts ...Option) *BoundaryStore {
	o := buildOptions("boundaries", opts)
	if key == "" {
		key = models.DefaultBoundaryKey
	}
	return &BoundaryStore{
		src:   src,
		key:   key,
		clock: o.clock,
		log:   o.log,
		slot:  slot[boundaryData]{name: "boundaries"},
	}
}

// FetchBoundaries makes one attempt to fetch the boundary collection, with the
// same replace-or-keep contract as FireDataStore.FetchAll.
func (s *BoundaryStore) FetchBoundaries(ctx context.Context) (*models.BoundarySet, error) {
	seq := s.slot.begin()
	fc, err := s.src.Boundaries(ctx)

	var data *boundaryData
	if err == nil {
		var set *models.BoundarySet
		set, err = models.NewBoundarySet(fc, s.key)
		if err == nil {
			data = &boundaryData{set: set, fetchedAt: s.clock.Now()}
		}
	}
	if err := s.slot.finish(ctx, seq, data, err, s.clock.Now()); err != nil {
		if errors.Is(err, ErrSuperseded) {
			s.log.Debug("older boundary fetch finished after a newer one, dropping it")
		} else {
			s.log.WithError(err).Warn("boundary fetch failed, keeping last snapshot")
		}
		return nil, err
	}

	if data.set.Skipped() > 0 {
		s.log.WithFields(logrus.Fields{
			"skipped": data.set.Skipped(),
			"key":     s.key,
		}).Warn("boundary features without usable geometry or name")
	}
	metrics.StoreRecords.WithLabelValues("boundaries").Set(float64(data.set.Len()))
	s.log.WithField("counties", data.set.Len()).Info("boundaries loaded")
	return data.set, nil
}

// Has reports whether the current snapshot has a boundary for county.
func (s *BoundaryStore) Has(county string) bool {
	return s.Snapshot().Has(county)
}

// Snapshot returns the current boundaries and fetch status.
func (s *BoundaryStore) Snapshot() BoundarySnapshot {
	st := s.slot.state()
	snap := BoundarySnapshot{
		Loaded:   st.Loaded,
		Fetching: st.Fetching,
		Failed:   st.Failed,
		Err:      st.Err,
	}
	if d := s.slot.load(); d != nil {
		snap.Set = d.set
		snap.FetchedAt = d.fetchedAt
	}
	return snap
}
