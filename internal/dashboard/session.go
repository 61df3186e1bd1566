// Package dashboard is the lifetime of one mounted dashboard: it owns both data
// stores, the selection coordinator and the staleness tick, and hands out
// consistent view inputs.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lox/firerisk/internal/datastore"
	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/selection"
	"github.com/lox/firerisk/internal/staleness"
	"github.com/lox/firerisk/internal/upstream"
	"github.com/lox/firerisk/internal/views"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("dashboard session closed")

// Upstream is everything the session needs from the data API.
// *upstream.Client implements it.
type Upstream interface {
	datastore.FireSource
	datastore.BoundarySource
	Refresh(ctx context.Context) (upstream.RefreshResult, error)
}

// Options configures a session. Zero values pick the defaults.
type Options struct {
	BoundaryKey  string
	HoverPolicy  selection.HoverPolicy
	ColorPolicy  risk.Policy
	TickInterval time.Duration
	Location     *time.Location
	Clock        clockwork.Clock
}

// LoadHook runs after every successful fire data fetch.
type LoadHook func(ctx context.Context, records []models.CountyRiskRecord)

// Session is one dashboard's state.
type Session struct {
	up     Upstream
	fire   *datastore.FireDataStore
	bounds *datastore.BoundaryStore
	coord  *selection.Coordinator
	ticker *staleness.Ticker
	clock  clockwork.Clock
	loc    *time.Location
	policy risk.Policy
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	hooks     []LoadHook
	started   bool
	closed    bool
	refreshes int
}

// New creates an unmounted session.
func New(up Upstream, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	storeOpts := []datastore.Option{datastore.WithClock(opts.Clock)}

	fire := datastore.NewFireDataStore(up, storeOpts...)
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		up:     up,
		fire:   fire,
		bounds: datastore.NewBoundaryStore(up, opts.BoundaryKey, storeOpts...),
		coord:  selection.New(fire, opts.HoverPolicy),
		ticker: staleness.NewTicker(opts.Clock, opts.TickInterval),
		clock:  opts.Clock,
		loc:    opts.Location,
		policy: opts.ColorPolicy,
		log:    logging.For("dashboard"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnFireData registers a hook run after each successful fire data fetch.
func (s *Session) OnFireData(hook LoadHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Start mounts the session: the staleness tick begins and the first load runs in
// the background. Views show the loading state until it lands.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	s.ticker.OnTick(func(epoch uint64) {
		s.log.WithField("epoch", epoch).Debug("staleness tick")
	})
	s.ticker.Start(s.ctx)
	s.log.WithField("interval", s.ticker.Interval()).Debug("staleness ticker started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Load(s.ctx); err != nil {
			s.log.WithError(err).Warn("initial load incomplete")
		}
	}()
	return nil
}

// Load fetches fire data and boundaries concurrently. Either may fail without
// affecting the other; the returned error joins both failures. Results are
// discarded if ctx or the session ends first. A load overtaken by a newer one
// commits nothing and runs no hooks, and is not an error.
func (s *Session) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	var fireErr, boundsErr error
	var g errgroup.Group
	g.Go(func() error {
		records, err := s.fire.FetchAll(ctx)
		if errors.Is(err, datastore.ErrSuperseded) {
			// A newer load already committed and ran the hooks.
			return nil
		}
		if err != nil {
			fireErr = err
			return err
		}
		s.coord.OnDataLoaded(records)
		s.runHooks(ctx, records)
		return nil
	})
	g.Go(func() error {
		_, err := s.bounds.FetchBoundaries(ctx)
		if errors.Is(err, datastore.ErrSuperseded) {
			return nil
		}
		boundsErr = err
		return err
	})
	_ = g.Wait()

	s.recordJoinMisses()
	return errors.Join(fireErr, boundsErr)
}

func (s *Session) runHooks(ctx context.Context, records []models.CountyRiskRecord) {
	s.mu.Lock()
	hooks := append([]LoadHook{}, s.hooks...)
	s.mu.Unlock()
	for _, h := range hooks {
		h(ctx, records)
	}
}

func (s *Session) recordJoinMisses() {
	fire, bounds := s.fire.Snapshot(), s.bounds.Snapshot()
	if !fire.Loaded || !bounds.Loaded {
		return
	}
	noBoundary, noRecord := views.JoinMisses(fire, bounds)
	metrics.JoinMisses.WithLabelValues("boundary").Set(float64(len(noBoundary)))
	metrics.JoinMisses.WithLabelValues("record").Set(float64(len(noRecord)))
	if len(noBoundary) > 0 {
		s.log.WithField("counties", noBoundary).Info("fire data counties without a boundary")
	}
}

// RefreshResult reports a manual refresh. The upstream trigger and the reload
// fail independently; the error returned alongside joins both.
type RefreshResult struct {
	Upstream   upstream.RefreshResult `json:"upstream"`
	Refreshes  int                    `json:"refreshes"`
	TriggerErr error                  `json:"-"`
	LoadErr    error                  `json:"-"`
}

// Refresh asks the upstream to recompute, then reloads both datasets. A failure
// anywhere leaves the previous data in place.
func (s *Session) Refresh(ctx context.Context) (RefreshResult, error) {
	if s.isClosed() {
		return RefreshResult{}, ErrClosed
	}
	res, trigErr := s.up.Refresh(ctx)
	if trigErr != nil {
		s.log.WithError(trigErr).Warn("upstream refresh trigger failed")
		trigErr = fmt.Errorf("refresh trigger: %w", trigErr)
	} else {
		s.log.WithField("counties", res.Counties).Info("upstream refreshed")
	}

	loadErr := s.Load(ctx)

	s.mu.Lock()
	s.refreshes++
	n := s.refreshes
	s.mu.Unlock()
	return RefreshResult{
		Upstream:   res,
		Refreshes:  n,
		TriggerErr: trigErr,
		LoadErr:    loadErr,
	}, errors.Join(trigErr, loadErr)
}

// County fetches one county straight from the upstream without touching the
// snapshot.
func (s *Session) County(ctx context.Context, county string) (models.CountyRiskRecord, error) {
	return s.fire.FetchOne(ctx, county)
}

// Hover, Select and ClearPin forward user events to the coordinator.
func (s *Session) Hover(county string)  { s.coord.OnHover(county) }
func (s *Session) Select(county string) { s.coord.OnSelect(county) }
func (s *Session) ClearPin()            { s.coord.ClearPin() }

// Selection returns the current selection.
func (s *Session) Selection() selection.State {
	return s.coord.State()
}

// OnSelectionChange registers a selection listener.
func (s *Session) OnSelectionChange(fn func(selection.Change)) {
	s.coord.Subscribe(fn)
}

// Input captures a consistent view input at the current time.
func (s *Session) Input() views.Input {
	return views.Input{
		Fire:       s.fire.Snapshot(),
		Boundaries: s.bounds.Snapshot(),
		Selection:  s.coord.State(),
		Now:        s.clock.Now(),
		Location:   s.loc,
		Policy:     s.policy,
	}
}

// Records returns the current fire data records.
func (s *Session) Records() []models.CountyRiskRecord {
	return s.fire.Snapshot().Records
}

// Boundaries returns the current boundary snapshot.
func (s *Session) Boundaries() datastore.BoundarySnapshot {
	return s.bounds.Snapshot()
}

// Epoch is the staleness tick count.
func (s *Session) Epoch() uint64 {
	return s.ticker.Epoch()
}

// Close unmounts the session. In-flight fetches are cancelled and their results
// discarded. Close waits for background work and is safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.ticker.Stop()
	s.wg.Wait()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
