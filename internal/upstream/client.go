// Package upstream is the client for the fire data API that publishes county
// boundaries and per-county risk metrics. Risk is computed upstream; this
// package only fetches and decodes.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/httputil"
	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/metrics"
	"github.com/lox/firerisk/internal/models"
)

const (
	// DefaultBaseURL is where the upstream API listens in local development.
	DefaultBaseURL = "http://localhost:5000"

	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 512
)

var (
	// ErrTransport marks network failures, non-2xx responses and undecodable
	// payloads. Callers keep their last good data when they see it.
	ErrTransport = errors.New("upstream transport failure")

	// ErrNotFound is returned when a single county is not known upstream.
	ErrNotFound = errors.New("county not found")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// RefreshResult is the upstream's answer to a recomputation trigger.
type RefreshResult struct {
	Status   string `json:"status"`
	Counties int    `json:"counties"`
	Message  string `json:"message,omitempty"`
}

// Client talks to the upstream fire data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	loc        *time.Location
	log        *logrus.Entry
}

// NewClient creates a client for baseURL. Naive upstream timestamps are
// interpreted in loc (UTC when nil).
func NewClient(baseURL string, loc *time.Location) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		httpClient: httputil.NewClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		loc:        loc,
		log:        logging.For("upstream"),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FireData fetches the risk records for every county, in upstream order.
func (c *Client) FireData(ctx context.Context) ([]models.CountyRiskRecord, error) {
	var wire []fireDataRecord
	if err := c.getJSON(ctx, "fire-data", "/api/fire-data", &wire); err != nil {
		return nil, err
	}

	records := make([]models.CountyRiskRecord, 0, len(wire))
	for _, w := range wire {
		if w.County == "" {
			c.log.Warn("skipping fire data record without county")
			continue
		}
		records = append(records, w.toRecord(c.loc))
	}
	return records, nil
}

// County fetches one county's record. Unknown counties return ErrNotFound.
func (c *Client) County(ctx context.Context, county string) (models.CountyRiskRecord, error) {
	var wire fireDataRecord
	err := c.getJSON(ctx, "fire-data-county", "/api/fire-data/"+url.PathEscape(county), &wire)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return models.CountyRiskRecord{}, fmt.Errorf("%q: %w", county, ErrNotFound)
	}
	if err != nil {
		return models.CountyRiskRecord{}, err
	}
	return wire.toRecord(c.loc), nil
}

// Boundaries fetches the county boundary FeatureCollection.
func (c *Client) Boundaries(ctx context.Context) (*geojson.FeatureCollection, error) {
	body, err := c.do(ctx, "geojson", http.MethodGet, "/api/geojson", nil)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w: %w", ErrTransport, err)
	}
	return fc, nil
}

// Refresh asks the upstream to recompute its data. It does not refetch.
func (c *Client) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult
	if err := c.sendJSON(ctx, "refresh-data", "/api/refresh-data", nil, &result); err != nil {
		return RefreshResult{}, err
	}
	if result.Status != "" && result.Status != "success" {
		msg := result.Message
		if msg == "" {
			msg = result.Status
		}
		return result, fmt.Errorf("refresh: %w: %s", ErrTransport, msg)
	}
	return result, nil
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat forwards a chat message and returns the reply text.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	var resp chatResponse
	if err := c.sendJSON(ctx, "chat", "/api/chat", chatRequest{Message: message}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	body, err := c.do(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", endpoint, ErrTransport, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, endpoint, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		payload = bytes.NewReader(b)
	}
	body, err := c.do(ctx, endpoint, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", endpoint, ErrTransport, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, ErrTransport, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", endpoint, ErrTransport, err)
	}

	c.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("upstream response")
	return body, nil
}
