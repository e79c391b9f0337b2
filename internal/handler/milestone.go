package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/service"
)

type MilestoneHandler struct {
	milestoneService *service.MilestoneService
}

func NewMilestoneHandler(milestoneService *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestoneService: milestoneService}
}

func (h *MilestoneHandler) List(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.milestoneService.List(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (h *MilestoneHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.MilestoneInput
	if !decodeJSON(w, r, &in) {
		return
	}

	m, err := h.milestoneService.Create(r.Context(), userID(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MilestoneHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	m, err := h.milestoneService.Toggle(r.Context(), userID(r), r.PathValue("milestoneID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
