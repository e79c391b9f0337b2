package handler

import (
	"net/http"

	"github.com/templui/accountable/internal/service"
)

type PartnershipHandler struct {
	partnershipService *service.PartnershipService
}

func NewPartnershipHandler(partnershipService *service.PartnershipService) *PartnershipHandler {
	return &PartnershipHandler{partnershipService: partnershipService}
}

// Create sends a request. A full goal answers 409 with the outcome body;
// an existing open partnership answers 200 with that partnership.
func (h *PartnershipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReceiverID string  `json:"receiver_id"`
		Message    *string `json:"message"`
		GoalID     *string `json:"goal_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.partnershipService.Create(r.Context(), service.PartnershipRequest{
		RequesterID: userID(r),
		ReceiverID:  body.ReceiverID,
		Message:     body.Message,
		GoalID:      body.GoalID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch result.Outcome {
	case service.OutcomeCreated:
		writeJSON(w, http.StatusCreated, result)
	case service.OutcomeGoalFull:
		writeJSON(w, http.StatusConflict, result)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// List groups the user's open partnerships into active, incoming and outgoing.
func (h *PartnershipHandler) List(w http.ResponseWriter, r *http.Request) {
	sets, err := h.partnershipService.Classify(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *PartnershipHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.partnershipService.Get(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PartnershipHandler) Accept(w http.ResponseWriter, r *http.Request) {
	p, err := h.partnershipService.Accept(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PartnershipHandler) Decline(w http.ResponseWriter, r *http.Request) {
	p, err := h.partnershipService.Decline(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PartnershipHandler) End(w http.ResponseWriter, r *http.Request) {
	p, err := h.partnershipService.End(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
