package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/accountable/internal/service"
	"github.com/templui/accountable/internal/validation"
)

type AccountHandler struct {
	authService    *service.AuthService
	userService    *service.UserService
	profileService *service.ProfileService
}

func NewAccountHandler(authService *service.AuthService, userService *service.UserService, profileService *service.ProfileService) *AccountHandler {
	return &AccountHandler{
		authService:    authService,
		userService:    userService,
		profileService: profileService,
	}
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.authService.ChangePassword(r.Context(), userID(r), body.CurrentPassword, body.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	err := h.userService.DeleteAccount(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.authService.ClearJWTCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// UploadAvatar takes a multipart form with an "avatar" file field.
func (h *AccountHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.ImageConstraints.MaxSize+(1<<20))
	err := r.ParseMultipartForm(validation.ImageConstraints.MaxSize)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error("failed to close file", "error", closeErr)
		}
	}()

	profile, err := h.profileService.UploadAvatar(r.Context(), userID(r), file, header.Filename, header.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AccountHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	err := h.profileService.DeleteAvatar(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
