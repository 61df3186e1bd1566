package api

import (
	"net/http"

	"github.com/lox/firerisk/internal/chat"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Backend  string `json:"backend"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := chat.Validate(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.chat.Reply(r.Context(), msg)
	if err != nil {
		s.log.WithError(err).WithField("backend", s.chat.Name()).Warn("chat failed")
		writeError(w, http.StatusBadGateway, "chat backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply, Backend: s.chat.Name()})
}
