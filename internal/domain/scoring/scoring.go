// Package scoring smooths per-frame pose scores with an exponential moving
// average so the displayed score does not flicker.
package scoring

import "math"

// Default smoothing configuration constants.
const (
	DefaultAlpha  = 0.2
	maxScoreValue = 100
	minScoreValue = 0
)

// Option applies a configuration option to the Smoother.
type Option func(*Smoother)

// WithAlpha sets the weight of the newest raw score. Values outside (0, 1]
// are ignored.
func WithAlpha(alpha float64) Option {
	return func(s *Smoother) {
		if alpha > 0 && alpha <= 1 {
			s.alpha = alpha
		}
	}
}

// Smooth returns prev*(1-alpha) + raw*alpha.
func Smooth(prev, raw, alpha float64) float64 {
	return prev*(1-alpha) + raw*alpha
}

// Smoother keeps a full-precision running average and exposes it rounded.
// The state is not rounded between frames so it converges to the raw input;
// rounding the displayed value back into the average stalls a few points
// short of it.
// A Smoother is not safe for concurrent use.
type Smoother struct {
	alpha float64
	value float64
}

// NewSmoother creates a smoother starting at zero.
func NewSmoother(opts ...Option) *Smoother {
	s := &Smoother{alpha: DefaultAlpha}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next folds raw into the average and returns the displayed value.
func (s *Smoother) Next(raw int) int {
	s.value = Smooth(s.value, float64(raw), s.alpha)
	return s.Value()
}

// Value returns the current displayed value, rounded and bounded to [0, 100].
func (s *Smoother) Value() int {
	return int(math.Max(minScoreValue, math.Min(maxScoreValue, math.Round(s.value))))
}

// Reset returns the average to zero.
func (s *Smoother) Reset() {
	s.value = 0
}

// Alpha returns the configured smoothing weight.
func (s *Smoother) Alpha() float64 {
	return s.alpha
}
