package api

import (
	"net/http"
	"time"

	"github.com/lox/firerisk/internal/risk"
	"github.com/lox/firerisk/internal/views"
)

// IndexData is everything the dashboard page renders server-side. The map is
// drawn client-side from /api/views/map and /api/boundaries.
type IndexData struct {
	Status views.StatusView
	Detail views.DetailView
	Ranked views.RankedView
	Legend []risk.LegendEntry
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	in := s.session.Input()
	data := IndexData{
		Status: views.Status(in, s.session.Epoch()),
		Detail: views.Detail(in),
		Ranked: views.Ranked(in),
		Legend: risk.Legend(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.WithError(err).Error("render index")
	}
}

type HealthStatus struct {
	Status      string            `json:"status"`
	FireData    views.StoreStatus `json:"fire_data"`
	Boundaries  views.StoreStatus `json:"boundaries"`
	Counties    int               `json:"counties"`
	LastUpdated time.Time         `json:"last_updated,omitzero"`
	Epoch       uint64            `json:"epoch"`
}

// handleHealth reports "ok" when both datasets are current, "degraded" when the
// last fetch of either failed, "loading" before first data and "unavailable"
// when a first fetch failed. Only "unavailable" is a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := views.Status(s.session.Input(), s.session.Epoch())
	health := HealthStatus{
		FireData:    st.Fire,
		Boundaries:  st.Boundaries,
		Counties:    st.Counties,
		LastUpdated: st.LastUpdated,
		Epoch:       st.Epoch,
	}

	code := http.StatusOK
	switch {
	case st.State == views.Empty:
		health.Status = "unavailable"
		code = http.StatusServiceUnavailable
	case st.State == views.Loading:
		health.Status = "loading"
	case st.Fire.Failed || st.Boundaries.Failed:
		health.Status = "degraded"
	default:
		health.Status = "ok"
	}
	writeJSON(w, code, health)
}
