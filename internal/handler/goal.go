package handler

import (
	"errors"
	"net/http"

	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
)

type GoalHandler struct {
	goalService *service.GoalService
}

func NewGoalHandler(goalService *service.GoalService) *GoalHandler {
	return &GoalHandler{goalService: goalService}
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.GoalInput
	if !decodeJSON(w, r, &in) {
		return
	}

	goal, err := h.goalService.Create(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// Today answers {"goal": null} when nothing is posted yet.
func (h *GoalHandler) Today(w http.ResponseWriter, r *http.Request) {
	goal, err := h.goalService.Today(r.Context(), userID(r))
	if errors.Is(err, repository.ErrGoalNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"goal": nil})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goal": goal, "slots": goal.Slots()})
}

func (h *GoalHandler) History(w http.ResponseWriter, r *http.Request) {
	goals, err := h.goalService.History(r.Context(), userID(r), queryInt(r, "limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	goal, err := h.goalService.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goal": goal, "slots": goal.Slots()})
}

func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.GoalInput
	if !decodeJSON(w, r, &in) {
		return
	}

	goal, err := h.goalService.Update(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.goalService.Delete(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn takes {"done": bool}. The response carries the profile only when
// the streak changed.
func (h *GoalHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Done *bool `json:"done"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Done == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "done is required", Field: "done"})
		return
	}

	result, err := h.goalService.CheckIn(r.Context(), userID(r), r.PathValue("id"), *body.Done)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *GoalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	goals, err := h.goalService.Feed(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}
