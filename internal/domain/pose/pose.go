// Package pose defines reference postures and the rules that score a landmark
// frame against them.
package pose

import (
	"math"
	"strings"

	"github.com/okian/posture/internal/domain/model"
)

// Score bounds.
const (
	perfectScore = 100
	minScore     = 0
)

// AngleFunc computes the interior angle at b between b->a and b->c.
type AngleFunc func(a, b, c model.Landmark) float64

// Evaluator scores one complete frame against a reference posture.
type Evaluator interface {
	Evaluate(frame model.Frame, angle AngleFunc) model.Evaluation
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(frame model.Frame, angle AngleFunc) model.Evaluation

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(frame model.Frame, angle AngleFunc) model.Evaluation {
	return f(frame, angle)
}

// Definition is one registered pose.
type Definition struct {
	ID          string
	Name        string
	Description string
	Rule        Evaluator
}

// Info returns the listing view of the definition.
func (d Definition) Info() model.PoseInfo {
	return model.PoseInfo{ID: d.ID, Name: d.Name, Description: d.Description}
}

// Check is one deduction-based rule. Violated reports whether the frame breaks
// it; Deduction is subtracted and Message appended when it does.
type Check struct {
	Violated  func(frame model.Frame, angle AngleFunc) bool
	Deduction int
	Message   string
}

// Checklist evaluates independent, additive checks. When nothing fires the
// result is a perfect score with the Affirmation message.
type Checklist struct {
	Checks      []Check
	Affirmation string
}

// Evaluate implements Evaluator.
func (c Checklist) Evaluate(frame model.Frame, angle AngleFunc) model.Evaluation {
	score := perfectScore
	var messages []string
	for _, check := range c.Checks {
		if check.Violated(frame, angle) {
			score -= check.Deduction
			messages = append(messages, check.Message)
		}
	}
	feedback := strings.Join(messages, ". ")
	if feedback == "" {
		feedback = c.Affirmation
	}
	return model.Evaluation{Score: Clamp(score), Feedback: feedback}
}

// Clamp bounds a score to [0, 100].
func Clamp(score int) int {
	return int(math.Max(minScore, math.Min(perfectScore, float64(score))))
}
