// Package framegen builds synthetic landmark frames for the built-in poses and
// for common form faults. Frames are deterministic unless Jitter is applied.
package framegen

import (
	"math/rand"
	"time"

	"github.com/okian/posture/internal/domain/model"
)

// Fault mutates a landmark set in place.
type Fault func(lm []model.Landmark)

type point struct{ x, y float64 }

// standing is an upright, level-shouldered body with arms by the side.
var standing = map[int]point{
	model.LeftShoulder:  {0.45, 0.30},
	model.RightShoulder: {0.55, 0.30},
	model.LeftElbow:     {0.44, 0.42},
	model.RightElbow:    {0.56, 0.42},
	model.LeftWrist:     {0.43, 0.54},
	model.RightWrist:    {0.57, 0.54},
	model.LeftHip:       {0.47, 0.55},
	model.RightHip:      {0.53, 0.55},
	model.LeftKnee:      {0.47, 0.72},
	model.RightKnee:     {0.53, 0.72},
	model.LeftAnkle:     {0.47, 0.90},
	model.RightAnkle:    {0.53, 0.90},
}

func build(joints map[int]point) model.Frame {
	lm := make([]model.Landmark, model.LandmarkCount)
	// Face points cluster around the nose; hands and feet follow their joints.
	for i := 0; i <= 10; i++ {
		lm[i] = model.Landmark{X: 0.5 + float64(i%3-1)*0.01, Y: 0.15 - float64(i%2)*0.01, Visibility: 0.99}
	}
	for i, p := range joints {
		lm[i] = model.Landmark{X: p.x, Y: p.y, Visibility: 0.99}
	}
	follow(lm, model.LeftWrist, 17, 19, 21)
	follow(lm, model.RightWrist, 18, 20, 22)
	follow(lm, model.LeftAnkle, 29, 31)
	follow(lm, model.RightAnkle, 30, 32)
	return model.Frame{Landmarks: lm, TS: time.Unix(0, 0)}
}

func follow(lm []model.Landmark, joint int, extremities ...int) {
	for n, i := range extremities {
		lm[i] = model.Landmark{X: lm[joint].X, Y: lm[joint].Y + 0.01*float64(n+1), Visibility: 0.9}
	}
}

func withJoints(base map[int]point, overrides map[int]point) map[int]point {
	out := make(map[int]point, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Standing returns an upright frame: straight legs, level shoulders.
func Standing(faults ...Fault) model.Frame {
	return Apply(build(standing), faults...)
}

// Mountain is a well-formed mountain pose.
func Mountain(faults ...Fault) model.Frame {
	return Standing(faults...)
}

// Tree is a well-formed tree pose standing on the left leg, palms together.
func Tree(faults ...Fault) model.Frame {
	return Apply(build(withJoints(standing, map[int]point{
		model.RightKnee:  {0.65, 0.62},
		model.RightAnkle: {0.50, 0.65},
		model.LeftElbow:  {0.42, 0.40},
		model.RightElbow: {0.58, 0.40},
		model.LeftWrist:  {0.49, 0.35},
		model.RightWrist: {0.51, 0.35},
	})), faults...)
}

// Warrior2 is a well-formed warrior II lunging on the left knee.
func Warrior2(faults ...Fault) model.Frame {
	return Apply(build(map[int]point{
		model.LeftShoulder:  {0.42, 0.30},
		model.RightShoulder: {0.58, 0.30},
		model.LeftElbow:     {0.30, 0.30},
		model.RightElbow:    {0.70, 0.30},
		model.LeftWrist:     {0.18, 0.30},
		model.RightWrist:    {0.82, 0.30},
		model.LeftHip:       {0.45, 0.55},
		model.RightHip:      {0.55, 0.55},
		model.LeftKnee:      {0.30, 0.62},
		model.RightKnee:     {0.65, 0.70},
		model.LeftAnkle:     {0.30, 0.85},
		model.RightAnkle:    {0.75, 0.85},
	}), faults...)
}

// Empty is a frame with no detection.
func Empty() model.Frame {
	return model.Frame{TS: time.Unix(0, 0)}
}

// Apply copies frame and applies faults to the copy.
func Apply(frame model.Frame, faults ...Fault) model.Frame {
	lm := make([]model.Landmark, len(frame.Landmarks))
	copy(lm, frame.Landmarks)
	for _, f := range faults {
		f(lm)
	}
	return model.Frame{Landmarks: lm, TS: frame.TS}
}

// BentKnees bends both knees to roughly 124 degrees.
func BentKnees(lm []model.Landmark) {
	set(lm, model.LeftHip, 0.47, 0.55)
	set(lm, model.LeftKnee, 0.55, 0.70)
	set(lm, model.LeftAnkle, 0.47, 0.85)
	set(lm, model.RightHip, 0.53, 0.55)
	set(lm, model.RightKnee, 0.45, 0.70)
	set(lm, model.RightAnkle, 0.53, 0.85)
}

// StraightLegs puts each knee on the line between its hip and ankle.
func StraightLegs(lm []model.Landmark) {
	midpoint(lm, model.LeftKnee, model.LeftHip, model.LeftAnkle)
	midpoint(lm, model.RightKnee, model.RightHip, model.RightAnkle)
}

// TiltedShoulders drops the right shoulder.
func TiltedShoulders(lm []model.Landmark) {
	lm[model.RightShoulder].Y += 0.03
}

// OpenPalms spreads the wrists far apart.
func OpenPalms(lm []model.Landmark) {
	set(lm, model.LeftWrist, 0.30, 0.54)
	set(lm, model.RightWrist, 0.70, 0.54)
}

// BentArms folds the left forearm back toward the shoulder.
func BentArms(lm []model.Landmark) {
	s := lm[model.LeftShoulder]
	set(lm, model.LeftWrist, s.X+0.02, s.Y+0.02)
}

// Jitter returns a fault that displaces every landmark by up to amount using r.
func Jitter(r *rand.Rand, amount float64) Fault {
	return func(lm []model.Landmark) {
		for i := range lm {
			lm[i].X += (r.Float64()*2 - 1) * amount
			lm[i].Y += (r.Float64()*2 - 1) * amount
		}
	}
}

func set(lm []model.Landmark, i int, x, y float64) {
	lm[i].X, lm[i].Y = x, y
}

func midpoint(lm []model.Landmark, target, a, b int) {
	set(lm, target, (lm[a].X+lm[b].X)/2, (lm[a].Y+lm[b].Y)/2)
}

// ForPose returns a well-formed frame for a built-in pose id, or a standing
// frame for unknown ids.
func ForPose(id string, faults ...Fault) model.Frame {
	switch id {
	case "tree":
		return Tree(faults...)
	case "warrior2":
		return Warrior2(faults...)
	default:
		return Mountain(faults...)
	}
}

// FaultsFor returns faults that break every check of a built-in pose.
func FaultsFor(id string) []Fault {
	switch id {
	case "tree":
		return []Fault{BentKnees, OpenPalms}
	case "warrior2":
		return []Fault{BentArms, StraightLegs}
	default:
		return []Fault{BentKnees, TiltedShoulders}
	}
}
