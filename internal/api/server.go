package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/chat"
	"github.com/lox/firerisk/internal/dashboard"
	"github.com/lox/firerisk/internal/logging"
	"github.com/lox/firerisk/internal/models"
)

// Subscriptions stores alert subscriptions. *store.Store implements it.
type Subscriptions interface {
	Subscribe(sub models.AlertSubscription, now time.Time) (models.AlertSubscription, error)
	Unsubscribe(email, county string) (int64, error)
}

// Config wires the optional parts of the server. A nil Chat or Subscriptions
// disables the matching endpoints with 503.
type Config struct {
	Addr          string
	Chat          chat.Responder
	Subscriptions Subscriptions
}

// Server serves one dashboard session over HTTP. The selection is process-wide,
// not per viewer: every client shares the same active county, so a hover from
// one browser moves the detail panel for all of them.
type Server struct {
	session *dashboard.Session
	addr    string
	chat    chat.Responder
	subs    Subscriptions
	tmpl    *template.Template
	log     *logrus.Entry
}

func NewServer(session *dashboard.Session, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{
		session: session,
		addr:    cfg.Addr,
		chat:    cfg.Chat,
		subs:    cfg.Subscriptions,
		tmpl:    newTemplates(),
		log:     logging.For("api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/views/map", s.handleMapView)
	mux.HandleFunc("GET /api/views/detail", s.handleDetailView)
	mux.HandleFunc("GET /api/views/ranked", s.handleRankedView)
	mux.HandleFunc("GET /api/views/status", s.handleStatusView)
	mux.HandleFunc("GET /api/boundaries", s.handleBoundaries)
	mux.HandleFunc("GET /api/counties/{county}", s.handleCounty)

	mux.HandleFunc("POST /api/selection/hover", s.handleHover)
	mux.HandleFunc("POST /api/selection/select", s.handleSelect)
	mux.HandleFunc("DELETE /api/selection/pin", s.handleClearPin)

	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/subscribe-alerts", s.handleSubscribe)
	mux.HandleFunc("DELETE /api/subscribe-alerts", s.handleUnsubscribe)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", s.addr).Info("listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
