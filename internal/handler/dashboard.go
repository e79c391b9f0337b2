package handler

import (
	"errors"
	"net/http"

	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/service"
)

type DashboardHandler struct {
	goalService         *service.GoalService
	profileService      *service.ProfileService
	partnershipService  *service.PartnershipService
	notificationService *service.NotificationService
	sessionService      *service.SessionService
}

func NewDashboardHandler(
	goalService *service.GoalService,
	profileService *service.ProfileService,
	partnershipService *service.PartnershipService,
	notificationService *service.NotificationService,
	sessionService *service.SessionService,
) *DashboardHandler {
	return &DashboardHandler{
		goalService:         goalService,
		profileService:      profileService,
		partnershipService:  partnershipService,
		notificationService: notificationService,
		sessionService:      sessionService,
	}
}

type dashboardResponse struct {
	Profile      *model.Profile        `json:"profile"`
	TodayGoal    *model.Goal           `json:"today_goal"`
	Partnerships model.PartnershipSets `json:"partnerships"`
	Sessions     []*model.VideoSession `json:"upcoming_sessions"`
	Unread       *model.UnreadCounts   `json:"unread"`
}

// Show gathers everything the dashboard renders in one round trip.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(r)

	profile, err := h.profileService.Get(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	today, err := h.goalService.Today(ctx, uid)
	if err != nil && !errors.Is(err, repository.ErrGoalNotFound) {
		writeError(w, r, err)
		return
	}

	sets, err := h.partnershipService.Classify(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sessions, err := h.sessionService.Upcoming(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	counts, err := h.notificationService.UnreadCounts(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Profile:      profile,
		TodayGoal:    today,
		Partnerships: sets,
		Sessions:     sessions,
		Unread:       counts,
	})
}
