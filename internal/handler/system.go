package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type SystemHandler struct {
	db            Pinger
	serviceWorker []byte
}

func NewSystemHandler(db Pinger, serviceWorker []byte) *SystemHandler {
	return &SystemHandler{db: db, serviceWorker: serviceWorker}
}

// Healthz reports whether the database answers.
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := h.db.PingContext(ctx)
	if err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServiceWorker serves the push service worker from the site root so its
// scope covers every page.
func (h *SystemHandler) ServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Service-Worker-Allowed", "/")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")
	_, err := w.Write(h.serviceWorker)
	if err != nil {
		slog.Error("failed to write service worker", "error", err)
	}
}

func (h *SystemHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusNotFound, "Not found")
}
