package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/service"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
	vapidPublicKey      string
}

func NewNotificationHandler(notificationService *service.NotificationService, vapidPublicKey string) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		vapidPublicKey:      vapidPublicKey,
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.notificationService.List(r.Context(), userID(r), queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Counts backs the unread badges.
func (h *NotificationHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.notificationService.UnreadCounts(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	err := h.notificationService.MarkRead(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationService.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	err := h.notificationService.Dismiss(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushConfig tells the browser whether to offer push and which key to subscribe with.
func (h *NotificationHandler) PushConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          h.notificationService.PushEnabled() && h.vapidPublicKey != "",
		"vapid_public_key": h.vapidPublicKey,
	})
}

// Subscribe stores the PushSubscription JSON produced by the browser.
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		push.Subscription
		ExpirationTime *float64 `json:"expirationTime"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	saved, err := h.notificationService.SavePushSubscription(r.Context(), userID(r), body.Subscription)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *NotificationHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	err := h.notificationService.DeletePushSubscription(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
