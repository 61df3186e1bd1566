package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lox/firerisk/internal/alerts"
	"github.com/lox/firerisk/internal/models"
	"github.com/lox/firerisk/internal/store"
)

type subscribeRequest struct {
	Email    string `json:"email"`
	County   string `json:"county"`
	MinLevel string `json:"min_level"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts are not configured")
		return
	}
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email, err := parseEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	county := strings.TrimSpace(req.County)
	if county == "" {
		county = models.AllCounties
	}
	if !s.knownCounty(county) {
		writeError(w, http.StatusBadRequest, "unknown county")
		return
	}
	level, err := alerts.ParseMinLevel(req.MinLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.subs.Subscribe(models.AlertSubscription{
		Email:    email,
		County:   county,
		MinLevel: level.String(),
	}, time.Now())
	if errors.Is(err, store.ErrInvalidSubscription) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("save subscription")
		writeError(w, http.StatusInternalServerError, "could not save subscription")
		return
	}
	s.log.WithFields(logrus.Fields{"county": sub.County, "min_level": sub.MinLevel}).Info("alert subscription saved")
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeResponse struct {
	Removed int64 `json:"removed"`
}

// handleUnsubscribe takes email and optional county from the query string.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "alerts are not configured")
		return
	}
	email, err := parseEmail(r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	n, err := s.subs.Unsubscribe(email, r.URL.Query().Get("county"))
	if err != nil {
		s.log.WithError(err).Error("delete subscription")
		writeError(w, http.StatusInternalServerError, "could not remove subscription")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "no matching subscription")
		return
	}
	writeJSON(w, http.StatusOK, unsubscribeResponse{Removed: n})
}

func parseEmail(s string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// knownCounty accepts the wildcard, any county in either dataset, and anything
// at all before the first data arrives.
func (s *Server) knownCounty(county string) bool {
	if county == models.AllCounties {
		return true
	}
	in := s.session.Input()
	if !in.Fire.Loaded && !in.Boundaries.Loaded {
		return true
	}
	if _, ok := in.Fire.Lookup(county); ok {
		return true
	}
	return in.Boundaries.Has(county)
}
