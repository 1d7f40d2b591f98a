// Package geometry computes joint features from landmark points.
package geometry

import (
	"math"

	"github.com/okian/posture/internal/domain/model"
)

const (
	straightAngle = 180.0
	fullTurn      = 360.0
)

// AngleAt returns the interior angle in degrees at vertex b between the rays
// b->a and b->c, always in [0, 180]. Inputs are not validated; NaN coordinates
// produce NaN.
func AngleAt(a, b, c model.Landmark) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * straightAngle / math.Pi)
	if angle > straightAngle {
		angle = fullTurn - angle
	}
	return angle
}

// HorizontalDistance returns |a.x - b.x|.
func HorizontalDistance(a, b model.Landmark) float64 {
	return math.Abs(a.X - b.X)
}

// Tilt returns the vertical offset between a and b relative to their
// horizontal separation. Coincident x coordinates yield +Inf (or NaN when the
// points coincide), which rule thresholds treat as a violation only when +Inf.
func Tilt(a, b model.Landmark) float64 {
	return math.Abs(a.Y-b.Y) / HorizontalDistance(a, b)
}
