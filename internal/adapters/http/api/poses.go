package api

import (
	"net/http"

	"github.com/okian/posture/internal/domain/model"
)

// PoseLister lists the poses a session can be started for.
type PoseLister interface {
	Poses() []model.PoseInfo
}

// PosesHandler serves the pose catalogue.
type PosesHandler struct {
	poses PoseLister
}

// NewPosesHandler creates a new poses handler.
func NewPosesHandler(poses PoseLister) *PosesHandler {
	return &PosesHandler{poses: poses}
}

// HandleList handles GET /poses.
func (h *PosesHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	poses := h.poses.Poses()
	if poses == nil {
		poses = []model.PoseInfo{}
	}
	writeJSON(w, http.StatusOK, poses)
}
