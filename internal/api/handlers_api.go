package api

import (
	"errors"
	"net/http"

	"github.com/lox/firerisk/internal/dashboard"
	"github.com/lox/firerisk/internal/upstream"
	"github.com/lox/firerisk/internal/views"
)

func (s *Server) handleMapView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, views.Map(s.session.Input()))
}

func (s *Server) handleDetailView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, views.Detail(s.session.Input()))
}

func (s *Server) handleRankedView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, views.Ranked(s.session.Input()))
}

func (s *Server) handleStatusView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, views.Status(s.session.Input(), s.session.Epoch()))
}

func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Boundaries()
	if snap.Set == nil {
		writeError(w, http.StatusServiceUnavailable, "boundaries not loaded")
		return
	}
	writeJSON(w, http.StatusOK, snap.Set.Collection)
}

func (s *Server) handleCounty(w http.ResponseWriter, r *http.Request) {
	county := r.PathValue("county")
	rec, err := s.session.County(r.Context(), county)
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		writeError(w, http.StatusNotFound, "county not found")
	case err != nil:
		s.log.WithError(err).WithField("county", county).Warn("county fetch failed")
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

type selectionRequest struct {
	// County is empty (or null) when the pointer left the map.
	County string `json:"county"`
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.session.Hover(req.County)
	writeJSON(w, http.StatusOK, s.session.Selection())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.session.Select(req.County)
	writeJSON(w, http.StatusOK, s.session.Selection())
}

func (s *Server) handleClearPin(w http.ResponseWriter, r *http.Request) {
	s.session.ClearPin()
	writeJSON(w, http.StatusOK, s.session.Selection())
}

type refreshResponse struct {
	// Status is "success", "partial" when only the upstream trigger failed, or
	// "error" when the reload failed.
	Status    string `json:"status"`
	Counties  int    `json:"counties"`
	Loaded    int    `json:"loaded"`
	Refreshes int    `json:"refreshes"`

	TriggerError string `json:"trigger_error,omitempty"`
	LoadError    string `json:"load_error,omitempty"`
}

// handleRefresh reports the upstream's updated-county count as counties and the
// number of records now held as loaded. Only a failed reload is a 502.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Refresh(r.Context())
	if errors.Is(err, dashboard.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	resp := refreshResponse{
		Status:    "success",
		Counties:  res.Upstream.Counties,
		Loaded:    len(s.session.Records()),
		Refreshes: res.Refreshes,
	}
	if res.TriggerErr != nil {
		s.log.WithError(res.TriggerErr).Warn("upstream refresh trigger failed")
		resp.Status = "partial"
		resp.TriggerError = res.TriggerErr.Error()
	}
	if res.LoadErr != nil {
		s.log.WithError(res.LoadErr).Warn("reload failed, keeping previous data")
		resp.Status = "error"
		resp.LoadError = res.LoadErr.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
