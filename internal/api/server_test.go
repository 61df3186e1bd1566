package api_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	geojson "github.com/paulmach/go.geojson"

	"github.com/lox/firerisk/internal/api"
	"github.com/lox/firerisk/internal/dashboard"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/store"
	"github.com/lox/firerisk/internal/upstream"

	_ "modernc.org/sqlite"
)

type fakeUpstream struct {
	mu         sync.Mutex
	records    []models.CountyRiskRecord
	counties   []string
	fireErr    error
	refreshErr error
	// updated is the county count the refresh trigger reports.
	updated int
}

func (f *fakeUpstream) FireData(ctx context.Context) ([]models.CountyRiskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, f.fireErr
}

func (f *fakeUpstream) County(ctx context.Context, county string) (models.CountyRiskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fireErr != nil {
		return models.CountyRiskRecord{}, f.fireErr
	}
	for _, r := range f.records {
		if r.County == county {
			return r, nil
		}
	}
	return models.CountyRiskRecord{}, fmt.Errorf("%q: %w", county, upstream.ErrNotFound)
}

func (f *fakeUpstream) Boundaries(ctx context.Context) (*geojson.FeatureCollection, error) {
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
	if f.refreshErr != nil {
		return upstream.RefreshResult{}, f.refreshErr
	}
	return upstream.RefreshResult{Status: "success", Counties: f.updated}, nil
}

func (f *fakeUpstream) set(fn func(f *fakeUpstream)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func napaYolo() *fakeUpstream {
	return &fakeUpstream{
		records: []models.CountyRiskRecord{
			{County: "Napa", DangerLevel: "High", RiskScore: models.Float(7), TemperatureF: models.Float(97)},
			{County: "Yolo", DangerLevel: "Low", RiskScore: models.Float(1)},
		},
		counties: []string{"Napa", "Yolo"},
	}
}

type fakeChat struct {
	reply string
	err   error
}

func (c *fakeChat) Name() string { return "fake" }

func (c *fakeChat) Reply(ctx context.Context, message string) (string, error) {
	return c.reply, c.err
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, time.UTC)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

func newSession(t *testing.T, up dashboard.Upstream, load bool) *dashboard.Session {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.August, 14, 20, 0, 0, 0, time.UTC))
	s := dashboard.New(up, dashboard.Options{Clock: clock, TickInterval: time.Minute})
	t.Cleanup(s.Close)
	if load {
		if err := s.Load(context.Background()); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health api.HealthStatus
	decode(t, w, &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Counties != 2 {
		t.Errorf("counties = %d, want 2", health.Counties)
	}
}

func TestHealthEndpoint_Loading(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), false), api.Config{})

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"loading"`) {
		t.Errorf("expected loading status, got %s", w.Body.String())
	}
}

func TestHealthEndpoint_Unavailable(t *testing.T) {
	t.Parallel()
	up := napaYolo()
	up.fireErr = fmt.Errorf("%w: connection refused", upstream.ErrTransport)
	session := newSession(t, up, false)
	if err := session.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	srv := api.NewServer(session, api.Config{})

	w := do(t, srv.Handler(), "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"unavailable"`) {
		t.Errorf("expected unavailable status, got %s", w.Body.String())
	}
}

func TestMapView(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "GET", "/api/views/map", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view struct {
		State     string   `json:"state"`
		Locations []string `json:"locations"`
		Z         []int    `json:"z"`
		Active    string   `json:"active"`
	}
	decode(t, w, &view)
	if view.State != "ready" {
		t.Errorf("state = %q, want ready", view.State)
	}
	if strings.Join(view.Locations, ",") != "Napa,Yolo" {
		t.Errorf("locations = %v", view.Locations)
	}
	if len(view.Z) != 2 || view.Z[0] != 4 || view.Z[1] != 1 {
		t.Errorf("z = %v, want [4 1]", view.Z)
	}
	if view.Active != "Napa" {
		t.Errorf("active = %q, want Napa", view.Active)
	}
}

func TestHoverAndSelect(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})
	h := srv.Handler()

	var sel struct {
		ActiveCounty string `json:"active_county"`
	}

	w := do(t, h, "POST", "/api/selection/hover", `{"county":"Yolo"}`)
	if w.Code != 200 {
		t.Fatalf("hover: expected 200, got %d", w.Code)
	}
	decode(t, w, &sel)
	if sel.ActiveCounty != "Yolo" {
		t.Errorf("after hover active = %q, want Yolo", sel.ActiveCounty)
	}

	w = do(t, h, "POST", "/api/selection/hover", `{"county":null}`)
	decode(t, w, &sel)
	if sel.ActiveCounty != "Yolo" {
		t.Errorf("null hover should keep Yolo, got %q", sel.ActiveCounty)
	}

	w = do(t, h, "POST", "/api/selection/select", `{"county":"Napa"}`)
	decode(t, w, &sel)
	if sel.ActiveCounty != "Napa" {
		t.Errorf("after select active = %q, want Napa", sel.ActiveCounty)
	}

	var detail struct {
		County string `json:"county"`
		Level  string `json:"level"`
		Color  string `json:"color"`
	}
	decode(t, do(t, h, "GET", "/api/views/detail", ""), &detail)
	if detail.County != "Napa" || detail.Level != "High" || detail.Color != "#f97316" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestSelection_SharedByAllClients(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})
	h := srv.Handler()

	hover := httptest.NewRequest("POST", "/api/selection/hover", strings.NewReader(`{"county":"Yolo"}`))
	hover.RemoteAddr = "10.0.0.1:5000"
	hover.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), hover)

	read := httptest.NewRequest("GET", "/api/views/detail", nil)
	read.RemoteAddr = "10.0.0.2:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, read)

	var detail struct {
		County string `json:"county"`
	}
	decode(t, w, &detail)
	if detail.County != "Yolo" {
		t.Errorf("second client sees %q, want Yolo", detail.County)
	}
}

func TestSelection_BadJSON(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "POST", "/api/selection/select", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCountyEndpoint(t *testing.T) {
	t.Parallel()
	up := napaYolo()
	srv := api.NewServer(newSession(t, up, true), api.Config{})
	h := srv.Handler()

	if w := do(t, h, "GET", "/api/counties/Napa", ""); w.Code != 200 {
		t.Fatalf("Napa: expected 200, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/api/counties/Nowhere", ""); w.Code != http.StatusNotFound {
		t.Fatalf("Nowhere: expected 404, got %d", w.Code)
	}

	up.set(func(f *fakeUpstream) { f.fireErr = errors.New("boom") })
	if w := do(t, h, "GET", "/api/counties/Napa", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("failing upstream: expected 502, got %d", w.Code)
	}
}

func TestBoundariesEndpoint(t *testing.T) {
	t.Parallel()

	srv := api.NewServer(newSession(t, napaYolo(), false), api.Config{})
	if w := do(t, srv.Handler(), "GET", "/api/boundaries", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("before load: expected 503, got %d", w.Code)
	}

	srv = api.NewServer(newSession(t, napaYolo(), true), api.Config{})
	w := do(t, srv.Handler(), "GET", "/api/boundaries", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("features = %d, want 2", len(fc.Features))
	}
}

type refreshBody struct {
	Status       string `json:"status"`
	Counties     int    `json:"counties"`
	Loaded       int    `json:"loaded"`
	Refreshes    int    `json:"refreshes"`
	TriggerError string `json:"trigger_error"`
	LoadError    string `json:"load_error"`
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	up := napaYolo()
	up.updated = 58
	srv := api.NewServer(newSession(t, up, true), api.Config{})

	w := do(t, srv.Handler(), "POST", "/api/refresh", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp refreshBody
	decode(t, w, &resp)
	if resp.Status != "success" || resp.Counties != 58 || resp.Loaded != 2 || resp.Refreshes != 1 {
		t.Errorf("refresh response = %+v", resp)
	}
}

func TestRefresh_TriggerFailureReloads(t *testing.T) {
	t.Parallel()
	up := napaYolo()
	up.refreshErr = fmt.Errorf("%w: timeout", upstream.ErrTransport)
	srv := api.NewServer(newSession(t, up, true), api.Config{})

	w := do(t, srv.Handler(), "POST", "/api/refresh", "")
	if w.Code != 200 {
		t.Fatalf("expected 200 when only the trigger failed, got %d", w.Code)
	}
	var resp refreshBody
	decode(t, w, &resp)
	if resp.Status != "partial" || resp.TriggerError == "" || resp.LoadError != "" {
		t.Errorf("refresh response = %+v", resp)
	}
	if resp.Counties != 0 || resp.Loaded != 2 {
		t.Errorf("counties = %d, loaded = %d, want 0 and 2", resp.Counties, resp.Loaded)
	}
}

func TestRefresh_FailureKeepsData(t *testing.T) {
	t.Parallel()
	up := napaYolo()
	srv := api.NewServer(newSession(t, up, true), api.Config{})
	h := srv.Handler()

	if w := do(t, h, "POST", "/api/refresh", ""); w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	up.set(func(f *fakeUpstream) {
		f.refreshErr = fmt.Errorf("%w: timeout", upstream.ErrTransport)
		f.fireErr = fmt.Errorf("%w: timeout", upstream.ErrTransport)
	})
	w := do(t, h, "POST", "/api/refresh", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp refreshBody
	decode(t, w, &resp)
	if resp.Status != "error" || resp.Loaded != 2 || resp.Refreshes != 2 {
		t.Errorf("refresh response = %+v", resp)
	}
	if resp.TriggerError == "" || resp.LoadError == "" {
		t.Errorf("expected both errors reported, got %+v", resp)
	}

	var status struct {
		Notice string `json:"notice"`
	}
	decode(t, do(t, h, "GET", "/api/views/status", ""), &status)
	if !strings.Contains(status.Notice, "last known data") {
		t.Errorf("notice = %q", status.Notice)
	}
}

func TestChatEndpoint(t *testing.T) {
	t.Parallel()
	session := newSession(t, napaYolo(), true)

	srv := api.NewServer(session, api.Config{})
	if w := do(t, srv.Handler(), "POST", "/api/chat", `{"message":"hi"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("no backend: expected 503, got %d", w.Code)
	}

	srv = api.NewServer(session, api.Config{Chat: &fakeChat{reply: "Napa is high."}})
	h := srv.Handler()
	if w := do(t, h, "POST", "/api/chat", `{"message":"   "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank message: expected 400, got %d", w.Code)
	}
	w := do(t, h, "POST", "/api/chat", `{"message":"How is Napa?"}`)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Response string `json:"response"`
		Backend  string `json:"backend"`
	}
	decode(t, w, &resp)
	if resp.Response != "Napa is high." || resp.Backend != "fake" {
		t.Errorf("chat response = %+v", resp)
	}

	srv = api.NewServer(session, api.Config{Chat: &fakeChat{err: errors.New("down")}})
	if w := do(t, srv.Handler(), "POST", "/api/chat", `{"message":"hi"}`); w.Code != http.StatusBadGateway {
		t.Fatalf("failing backend: expected 502, got %d", w.Code)
	}
}

func TestSubscribeAlerts(t *testing.T) {
	t.Parallel()
	subs := setupTestStore(t)
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{Subscriptions: subs})
	h := srv.Handler()

	w := do(t, h, "POST", "/api/subscribe-alerts", `{"email":"Ranger@Example.com","county":"Napa"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sub struct {
		Email    string `json:"email"`
		County   string `json:"county"`
		MinLevel string `json:"min_level"`
	}
	decode(t, w, &sub)
	if sub.Email != "ranger@example.com" || sub.County != "Napa" || sub.MinLevel != "High" {
		t.Errorf("subscription = %+v", sub)
	}

	for _, body := range []string{
		`{"email":"not-an-email","county":"Napa"}`,
		`{"email":"a@example.com","county":"Atlantis"}`,
		`{"email":"a@example.com","county":"Napa","min_level":"Apocalyptic"}`,
	} {
		if w := do(t, h, "POST", "/api/subscribe-alerts", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}

	all, err := subs.Subscriptions()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(all))
	}

	if w := do(t, h, "DELETE", "/api/subscribe-alerts?email=ranger@example.com&county=Napa", ""); w.Code != 200 {
		t.Fatalf("unsubscribe: expected 200, got %d", w.Code)
	}
	if w := do(t, h, "DELETE", "/api/subscribe-alerts?email=ranger@example.com", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second unsubscribe: expected 404, got %d", w.Code)
	}
}

func TestSubscribeAlerts_NotConfigured(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "POST", "/api/subscribe-alerts", `{"email":"a@example.com"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestIndexPage(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "GET", "/", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<h1>California County Fire Risk</h1>") {
		t.Error("expected page heading")
	}
	if !strings.Contains(body, `data-county="Napa"`) {
		t.Error("expected Napa in the ranked list")
	}
	if !strings.Contains(body, "97°F") {
		t.Error("expected Napa temperature in the detail card")
	}
}

func TestIndexPage_UnknownPath(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	if w := do(t, srv.Handler(), "GET", "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := api.NewServer(newSession(t, napaYolo(), true), api.Config{})

	w := do(t, srv.Handler(), "GET", "/metrics", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "firerisk_") {
		t.Error("expected firerisk metrics")
	}
}
