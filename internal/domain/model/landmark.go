// Package model contains domain models passed between layers.
package model

import "time"

// LandmarkCount is the number of landmarks in one frame of the 33-point
// body topology produced by the pose-estimation provider.
const LandmarkCount = 33

// Landmark indices used by the built-in pose rules.
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28
)

// Landmark is one tracked body keypoint in normalized image coordinates.
// Z and Visibility are optional and zero when the provider omits them.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Frame is the complete landmark set for one detection cycle.
type Frame struct {
	Landmarks []Landmark
	TS        time.Time // capture time reported by the provider, zero if unknown
}

// Complete reports whether the frame carries the full fixed-index topology.
// Frames without a detection arrive empty and must be skipped.
func (f Frame) Complete() bool {
	return len(f.Landmarks) == LandmarkCount
}

// At returns the landmark at index i. Callers only index complete frames.
func (f Frame) At(i int) Landmark {
	return f.Landmarks[i]
}
