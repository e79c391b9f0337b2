package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/service"
)

type GuideHandler struct {
	guideService *service.GuideService
}

func NewGuideHandler(guideService *service.GuideService) *GuideHandler {
	return &GuideHandler{guideService: guideService}
}

func (h *GuideHandler) List(w http.ResponseWriter, r *http.Request) {
	steps, err := h.guideService.Steps()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (h *GuideHandler) Step(w http.ResponseWriter, r *http.Request) {
	step, err := h.guideService.Step(r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}
