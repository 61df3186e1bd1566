package dashboard

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/firerisk/internal/datastore"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/upstream"
	"github.com/lox/firerisk/internal/views"
)

type fakeUpstream struct {
	mu          sync.Mutex
	records     []models.CountyRiskRecord
	counties    []string
	fireErr     error
	boundsErr   error
	refreshErr  error
	gate        chan struct{}
	fireCalls   int
	refreshCall int

	// perCall, when set, overrides gate and records for each FireData call in turn.
	perCall []gatedCall
}

type gatedCall struct {
	gate    chan struct{}
	records []models.CountyRiskRecord
}

func (f *fakeUpstream) FireData(ctx context.Context) ([]models.CountyRiskRecord, error) {
	f.mu.Lock()
	f.fireCalls++
	gate, records, err := f.gate, f.records, f.fireErr
	if n := f.fireCalls; n <= len(f.perCall) {
		gate, records = f.perCall[n-1].gate, f.perCall[n-1].records
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return records, err
}

func (f *fakeUpstream) County(ctx context.Context, county string) (models.CountyRiskRecord, error) {
	for _, r := range f.records {
		if r.County == county {
			return r, nil
		}
	}
	return models.CountyRiskRecord{}, fmt.Errorf("%q: %w", county, upstream.ErrNotFound)
}

func (f *fakeUpstream) Boundaries(ctx context.Context) (*geojson.FeatureCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boundsErr != nil {
		return nil, f.boundsErr
	}
	fc := geojson.NewFeatureCollection()
	for _, n := range f.counties {
		feat := geojson.NewPolygonFeature([][][]float64{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
		feat.SetProperty("name", n)
		fc.AddFeature(feat)
	}
	return fc, nil
}

func (f *fakeUpstream) Refresh(ctx context.Context) (upstream.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCall++
	if f.refreshErr != nil {
		return upstream.RefreshResult{}, f.refreshErr
	}
	return upstream.RefreshResult{Status: "success", Counties: len(f.records)}, nil
}

var transportErr = fmt.Errorf("%w: connection refused", upstream.ErrTransport)

func napaYolo() *fakeUpstream {
	return &fakeUpstream{
		records: []models.CountyRiskRecord{
			{County: "Napa", DangerLevel: "High", RiskScore: models.Float(7)},
			{County: "Yolo", DangerLevel: "Low", RiskScore: models.Float(1)},
		},
		counties: []string{"Napa", "Yolo"},
	}
}

func newSession(t *testing.T, up Upstream) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.August, 14, 20, 0, 0, 0, time.UTC))
	s := New(up, Options{Clock: clock, TickInterval: time.Minute})
	t.Cleanup(s.Close)
	return s, clock
}

func TestSession_StartLoadsAndSelectsFirst(t *testing.T) {
	s, _ := newSession(t, napaYolo())

	assert.Equal(t, views.Loading, views.Map(s.Input()).State)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return views.Map(s.Input()).State == views.Ready
	}, time.Second, time.Millisecond)

	assert.Equal(t, "Napa", s.Selection().ActiveCounty)

	s.Hover("Yolo")
	d := views.Detail(s.Input())
	assert.Equal(t, "Yolo", d.County)
	assert.Equal(t, risk.ColorGreen, d.Color)

	s.Hover("Atlantis")
	assert.Equal(t, "Yolo", s.Selection().ActiveCounty)

	s.Hover("")
	assert.Equal(t, "Yolo", s.Selection().ActiveCounty)
}

func TestSession_IndependentFailures(t *testing.T) {
	up := napaYolo()
	up.boundsErr = transportErr
	s, _ := newSession(t, up)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrTransport)

	in := s.Input()
	assert.True(t, in.Fire.Loaded, "fire data lands despite boundary failure")
	assert.Equal(t, views.Empty, views.Map(in).State)
	assert.Equal(t, views.Ready, views.Ranked(in).State)
	assert.Len(t, views.Ranked(in).Entries, 2)
}

func TestSession_RefreshFailureKeepsData(t *testing.T) {
	up := napaYolo()
	s, _ := newSession(t, up)
	require.NoError(t, s.Load(context.Background()))

	up.mu.Lock()
	up.refreshErr = transportErr
	up.fireErr = transportErr
	up.mu.Unlock()

	res, err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Refreshes)
	assert.ErrorIs(t, res.TriggerErr, upstream.ErrTransport)
	assert.ErrorIs(t, res.LoadErr, upstream.ErrTransport)

	in := s.Input()
	assert.Len(t, in.Fire.Records, 2)
	assert.True(t, in.Fire.Failed)
	status := views.Status(in, s.Epoch())
	assert.Equal(t, views.Ready, status.State)
	assert.NotEmpty(t, status.Notice)
}

func TestSession_Refresh(t *testing.T) {
	up := napaYolo()
	s, _ := newSession(t, up)

	res, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upstream.Counties)
	assert.Equal(t, 1, up.refreshCall)
	assert.Equal(t, 1, up.fireCalls, "refresh refetches")
	assert.Equal(t, "Napa", s.Selection().ActiveCounty)
}

func TestSession_RefreshTriggerFailureStillReloads(t *testing.T) {
	up := napaYolo()
	up.refreshErr = transportErr
	s, _ := newSession(t, up)

	res, err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, res.TriggerErr, upstream.ErrTransport)
	assert.NoError(t, res.LoadErr)
	assert.Equal(t, 1, up.fireCalls)
	assert.Len(t, s.Records(), 2)
}

func TestSession_CloseDiscardsInFlightFetch(t *testing.T) {
	up := napaYolo()
	up.gate = make(chan struct{})
	s, _ := newSession(t, up)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.Input().Fire.Fetching }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	// Let the response arrive after the session is gone.
	time.Sleep(10 * time.Millisecond)
	close(up.gate)
	<-closed

	in := s.Input()
	assert.False(t, in.Fire.Loaded)
	assert.Empty(t, in.Fire.Records)
	assert.Empty(t, s.Selection().ActiveCounty)

	assert.ErrorIs(t, s.Load(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.Start(), ErrClosed)
}

func TestSession_LoadHooks(t *testing.T) {
	up := napaYolo()
	s, _ := newSession(t, up)

	var got []string
	s.OnFireData(func(ctx context.Context, records []models.CountyRiskRecord) {
		got = models.CountyNames(records)
	})

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []string{"Napa", "Yolo"}, got)
}

func TestSession_TickBumpsEpochWithoutFetching(t *testing.T) {
	up := napaYolo()
	s, clock := newSession(t, up)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.Input().Fire.Loaded }, time.Second, time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return s.Epoch() == 1 }, time.Second, time.Millisecond)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, 1, up.fireCalls)
}

func TestSession_County(t *testing.T) {
	s, _ := newSession(t, napaYolo())

	rec, err := s.County(context.Background(), "Yolo")
	require.NoError(t, err)
	assert.Equal(t, "Low", rec.DangerLevel)

	_, err = s.County(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, upstream.ErrNotFound)
}

var _ datastore.FireSource = (*fakeUpstream)(nil)

func TestSession_OvertakenLoadRunsNoHooks(t *testing.T) {
	kern := []models.CountyRiskRecord{{County: "Kern", DangerLevel: "Very High", RiskScore: models.Float(9)}}
	napa := []models.CountyRiskRecord{{County: "Napa", DangerLevel: "Low", RiskScore: models.Float(1)}}
	up := &fakeUpstream{
		counties: []string{"Kern", "Napa"},
		perCall: []gatedCall{
			{gate: make(chan struct{}), records: kern},
			{gate: make(chan struct{}), records: napa},
		},
	}
	s, _ := newSession(t, up)

	var mu sync.Mutex
	var delivered [][]string
	s.OnFireData(func(ctx context.Context, records []models.CountyRiskRecord) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, models.CountyNames(records))
	})

	calls := func() int {
		up.mu.Lock()
		defer up.mu.Unlock()
		return up.fireCalls
	}
	olderc, newerc := make(chan error, 1), make(chan error, 1)
	go func() { olderc <- s.Load(context.Background()) }()
	require.Eventually(t, func() bool { return calls() == 1 }, time.Second, time.Millisecond)
	go func() { newerc <- s.Load(context.Background()) }()
	require.Eventually(t, func() bool { return calls() == 2 }, time.Second, time.Millisecond)

	close(up.perCall[1].gate)
	require.NoError(t, <-newerc)
	close(up.perCall[0].gate)
	require.NoError(t, <-olderc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"Napa"}}, delivered)
	assert.Equal(t, "Napa", s.Selection().ActiveCounty)
	assert.Equal(t, []string{"Napa"}, models.CountyNames(s.Records()))
}
