package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.Upcoming(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.List(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var in service.SessionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	v, err := h.sessionService.Schedule(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes *string `json:"notes"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	v, err := h.sessionService.Complete(r.Context(), userID(r), r.PathValue("sessionID"), body.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
