package pose

import (
	"github.com/okian/posture/internal/domain/geometry"
	"github.com/okian/posture/internal/domain/model"
)

// Built-in pose identifiers.
const (
	MountainID = "mountain"
	TreeID     = "tree"
	Warrior2ID = "warrior2"
)

// Thresholds holds the tunable limits and deductions of the built-in rules.
// The defaults are heuristics, not validated biomechanical constants.
type Thresholds struct {
	Mountain MountainThresholds `koanf:"mountain"`
	Tree     TreeThresholds     `koanf:"tree"`
	Warrior2 WarriorThresholds  `koanf:"warrior2"`
}

// MountainThresholds tunes the mountain pose rule.
type MountainThresholds struct {
	MinLegAngle     float64 `koanf:"min_leg_angle"`
	LegDeduction    int     `koanf:"leg_deduction"`
	MaxShoulderTilt float64 `koanf:"max_shoulder_tilt"`
	TiltDeduction   int     `koanf:"tilt_deduction"`
}

// TreeThresholds tunes the tree pose rule.
type TreeThresholds struct {
	MinStandingKneeAngle float64 `koanf:"min_standing_knee_angle"`
	StandingDeduction    int     `koanf:"standing_deduction"`
	MaxWristDistance     float64 `koanf:"max_wrist_distance"`
	PalmsDeduction       int     `koanf:"palms_deduction"`
}

// WarriorThresholds tunes the warrior II rule.
type WarriorThresholds struct {
	MinArmAngle       float64 `koanf:"min_arm_angle"`
	ArmDeduction      int     `koanf:"arm_deduction"`
	MaxLungeKneeAngle float64 `koanf:"max_lunge_knee_angle"`
	LungeDeduction    int     `koanf:"lunge_deduction"`
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Mountain: MountainThresholds{
			MinLegAngle:     165,
			LegDeduction:    20,
			MaxShoulderTilt: 0.1,
			TiltDeduction:   10,
		},
		Tree: TreeThresholds{
			MinStandingKneeAngle: 160,
			StandingDeduction:    30,
			MaxWristDistance:     0.15,
			PalmsDeduction:       10,
		},
		Warrior2: WarriorThresholds{
			MinArmAngle:       160,
			ArmDeduction:      15,
			MaxLungeKneeAngle: 135,
			LungeDeduction:    30,
		},
	}
}

func leftLeg(f model.Frame, angle AngleFunc) float64 {
	return angle(f.At(model.LeftHip), f.At(model.LeftKnee), f.At(model.LeftAnkle))
}

func rightLeg(f model.Frame, angle AngleFunc) float64 {
	return angle(f.At(model.RightHip), f.At(model.RightKnee), f.At(model.RightAnkle))
}

func leftArm(f model.Frame, angle AngleFunc) float64 {
	return angle(f.At(model.LeftShoulder), f.At(model.LeftElbow), f.At(model.LeftWrist))
}

func rightArm(f model.Frame, angle AngleFunc) float64 {
	return angle(f.At(model.RightShoulder), f.At(model.RightElbow), f.At(model.RightWrist))
}

// Mountain builds the mountain pose: straight legs, level shoulders.
func Mountain(t MountainThresholds) Definition {
	return Definition{
		ID:          MountainID,
		Name:        "Mountain Pose",
		Description: "Stand tall, feet together, shoulders relaxed, arms by side.",
		Rule: Checklist{
			Affirmation: "Perfect form!",
			Checks: []Check{
				{
					Deduction: t.LegDeduction,
					Message:   "Straighten your legs",
					Violated: func(f model.Frame, angle AngleFunc) bool {
						return leftLeg(f, angle) < t.MinLegAngle || rightLeg(f, angle) < t.MinLegAngle
					},
				},
				{
					Deduction: t.TiltDeduction,
					Message:   "Level your shoulders",
					Violated: func(f model.Frame, _ AngleFunc) bool {
						return geometry.Tilt(f.At(model.LeftShoulder), f.At(model.RightShoulder)) > t.MaxShoulderTilt
					},
				},
			},
		},
	}
}

// Tree builds the tree pose: one straight standing leg, palms together.
// Either leg may be the standing one.
func Tree(t TreeThresholds) Definition {
	return Definition{
		ID:          TreeID,
		Name:        "Tree Pose",
		Description: "Balance on one leg, place other foot on inner thigh, hands in prayer.",
		Rule: Checklist{
			Affirmation: "Great balance!",
			Checks: []Check{
				{
					Deduction: t.StandingDeduction,
					Message:   "Straighten your standing leg",
					Violated: func(f model.Frame, angle AngleFunc) bool {
						return leftLeg(f, angle) < t.MinStandingKneeAngle && rightLeg(f, angle) < t.MinStandingKneeAngle
					},
				},
				{
					Deduction: t.PalmsDeduction,
					Message:   "Bring your palms together",
					Violated: func(f model.Frame, _ AngleFunc) bool {
						return geometry.HorizontalDistance(f.At(model.LeftWrist), f.At(model.RightWrist)) > t.MaxWristDistance
					},
				},
			},
		},
	}
}

// Warrior2 builds warrior II: arms extended, one knee in a lunge.
func Warrior2(t WarriorThresholds) Definition {
	return Definition{
		ID:          Warrior2ID,
		Name:        "Warrior II",
		Description: "Wide stance, lunge front knee 90°, arms horizontal gaze forward.",
		Rule: Checklist{
			Affirmation: "Strong Warrior!",
			Checks: []Check{
				{
					Deduction: t.ArmDeduction,
					Message:   "Extend your arms fully",
					Violated: func(f model.Frame, angle AngleFunc) bool {
						return leftArm(f, angle) < t.MinArmAngle || rightArm(f, angle) < t.MinArmAngle
					},
				},
				{
					Deduction: t.LungeDeduction,
					Message:   "Bend your front knee deeper",
					Violated: func(f model.Frame, angle AngleFunc) bool {
						return leftLeg(f, angle) >= t.MaxLungeKneeAngle && rightLeg(f, angle) >= t.MaxLungeKneeAngle
					},
				},
			},
		},
	}
}

// Builtins returns the stock poses in display order.
func Builtins(t Thresholds) []Definition {
	return []Definition{
		Mountain(t.Mountain),
		Tree(t.Tree),
		Warrior2(t.Warrior2),
	}
}
