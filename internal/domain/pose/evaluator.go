package pose

import (
	"github.com/okian/posture/internal/domain/geometry"
	"github.com/okian/posture/internal/domain/model"
)

// FrameEvaluator dispatches frames to the rule of the requested pose.
// It holds no per-frame state and is safe for concurrent use.
type FrameEvaluator struct {
	registry *Registry
	angle    AngleFunc
}

// NewFrameEvaluator creates an evaluator over registry.
func NewFrameEvaluator(registry *Registry) *FrameEvaluator {
	return &FrameEvaluator{registry: registry, angle: geometry.AngleAt}
}

// Evaluate scores frame against poseID. It returns false when the frame is
// incomplete or no pose is registered under poseID; the caller skips the frame.
func (e *FrameEvaluator) Evaluate(poseID string, frame model.Frame) (model.Evaluation, bool) {
	if !frame.Complete() {
		return model.Evaluation{}, false
	}
	d, ok := e.registry.Lookup(poseID)
	if !ok {
		return model.Evaluation{}, false
	}
	res := d.Rule.Evaluate(frame, e.angle)
	res.Score = Clamp(res.Score)
	return res, true
}
