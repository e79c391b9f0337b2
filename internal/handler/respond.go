package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/templui/accountable/internal/ctxkeys"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/push"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
	"github.com/templui/accountable/internal/validation"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeError maps service and repository errors to a status code.
// Anything unrecognised is logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *validation.Error
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: invalid.Message, Field: invalid.Field})
		return
	}

	switch {
	case errors.Is(err, push.ErrMissingFields):
		writeMessage(w, http.StatusBadRequest, "Missing required fields")

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrPasswordless),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrInvalidJWT):
		writeMessage(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, model.ErrNotReceiver),
		errors.Is(err, model.ErrNotParticipant):
		writeMessage(w, http.StatusForbidden, err.Error())

	case errors.Is(err, repository.ErrGoalNotFound),
		errors.Is(err, repository.ErrPartnershipNotFound),
		errors.Is(err, repository.ErrProfileNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrMessageNotFound),
		errors.Is(err, repository.ErrMilestoneNotFound),
		errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrFileNotFound),
		errors.Is(err, repository.ErrReservationNotFound),
		errors.Is(err, repository.ErrPushSubscriptionNotFound),
		errors.Is(err, service.ErrGuideStepNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())

	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, service.ErrPartnershipNotActive),
		errors.Is(err, repository.ErrGoalAlreadyExists),
		errors.Is(err, repository.ErrDuplicatePartnership),
		errors.Is(err, repository.ErrDuplicateUsername),
		errors.Is(err, repository.ErrDuplicateEmail):
		writeMessage(w, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrStorageDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())

	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// userID returns the authenticated user. Routes that call it sit behind
// RequireAuth.
func userID(r *http.Request) string {
	user := ctxkeys.User(r.Context())
	if user == nil {
		return ""
	}
	return user.ID
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
