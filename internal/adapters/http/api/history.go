package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	repository "github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/domain/model"
)

// HistoryHandler serves a user's saved practice sessions.
type HistoryHandler struct {
	deps HistoryDependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryDependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// sessionRequest mirrors the body of POST /ai-practice/sessions.
type sessionRequest struct {
	PoseName        string `json:"pose_name"`
	DurationSeconds *int   `json:"duration_seconds"`
	AccuracyScore   *int   `json:"accuracy_score"`
}

func (s sessionRequest) validate() error {
	switch {
	case strings.TrimSpace(s.PoseName) == "":
		return errors.New("missing pose_name")
	case s.DurationSeconds == nil:
		return errors.New("missing duration_seconds")
	case s.AccuracyScore == nil:
		return errors.New("missing accuracy_score")
	}
	return nil
}

type saveResponse struct {
	Message string                `json:"message"`
	Session model.PracticeSession `json:"session"`
}

// HandleSave handles POST /ai-practice/sessions.
func (h *HistoryHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_session"
	userID, _ := UserFrom(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	session, err := h.deps.SaveSession(r.Context(), userID, model.SessionRecord{
		PoseName:        req.PoseName,
		DurationSeconds: *req.DurationSeconds,
		AccuracyScore:   *req.AccuracyScore,
	})
	switch {
	case errors.Is(err, repository.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{Message: "Session saved successfully", Session: session})
}

// HandleHistory handles GET /ai-practice/history?limit=N.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.history"
	userID, _ := UserFrom(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	rows, err := h.deps.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	if rows == nil {
		rows = []model.PracticeSession{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleGet handles GET /ai-practice/sessions/{id}.
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	userID, _ := UserFrom(r.Context())

	session, err := h.deps.Session(r.Context(), userID, r.PathValue("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleStats handles GET /ai-practice/stats.
func (h *HistoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.history_stats"
	userID, _ := UserFrom(r.Context())

	stats, err := h.deps.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
