package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"exam-score-service/internal/app"
	"exam-score-service/internal/domain"
)

// Handler exposes the scoring and leaderboard use cases over JSON/HTTP.
type Handler struct {
	service *app.ExamService
}

func NewHandler(service *app.ExamService) *Handler {
	return &Handler{service: service}
}

// Register wires the routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /attempts/{attemptID}/score", h.scoreAttempt)
	mux.HandleFunc("GET /tests/{testID}/leaderboard", h.getLeaderboard)
	mux.HandleFunc("POST /tests/{testID}/leaderboard/invalidate", h.invalidateLeaderboard)
}

type scoreRequest struct {
	Reason domain.SubmissionReason `json:"reason"`
}

type scoreResponse struct {
	Attempt   domain.Attempt   `json:"attempt"`
	Anomalies []domain.Anomaly `json:"anomalies,omitempty"`
}

func (h *Handler) scoreAttempt(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid score payload")
		return
	}

	attempt, anomalies, err := h.service.ScoreAttempt(r.Context(), r.PathValue("attemptID"), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Attempt: attempt, Anomalies: anomalies})
}

func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetLeaderboard(r.Context(), r.PathValue("testID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) invalidateLeaderboard(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InvalidateLeaderboard(r.Context(), r.PathValue("testID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorPayload struct {
	Message string `json:"message"`
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTestNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnknownSubmissionReason):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAttemptAlreadyScored):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
