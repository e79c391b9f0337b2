package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/service"
)

type ProfileHandler struct {
	profileService *service.ProfileService
}

func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

func (h *ProfileHandler) Mine(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Update changes only the fields present in the body.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username     *string `json:"username"`
		Bio          *string `json:"bio"`
		FounderStage *string `json:"founder_stage"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	profile, err := h.profileService.Update(r.Context(), userID(r), service.ProfileUpdate{
		Username:     body.Username,
		Bio:          body.Bio,
		FounderStage: body.FounderStage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) Public(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.Public(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Discover lists founders to partner with, optionally filtered by ?stage=.
func (h *ProfileHandler) Discover(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileService.Discover(r.Context(), userID(r), r.URL.Query().Get("stage"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}
