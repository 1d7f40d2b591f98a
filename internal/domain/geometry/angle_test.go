package geometry_test

import (
	"math"
	"testing"

	"github.com/okian/posture/internal/domain/geometry"
	"github.com/okian/posture/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const epsilon = 1e-9

func pt(x, y float64) model.Landmark { return model.Landmark{X: x, Y: y} }

func TestAngleAt(t *testing.T) {
	Convey("Given three landmark points", t, func() {
		Convey("When b lies between collinear a and c", func() {
			angle := geometry.AngleAt(pt(0, 0), pt(0.5, 0.5), pt(1, 1))

			Convey("Then the angle is straight", func() {
				So(angle, ShouldAlmostEqual, 180, epsilon)
			})
		})

		Convey("When the rays are perpendicular", func() {
			angle := geometry.AngleAt(pt(1, 0), pt(0, 0), pt(0, 1))

			Convey("Then the angle is a right angle", func() {
				So(angle, ShouldAlmostEqual, 90, epsilon)
			})
		})

		Convey("When the points are swapped around the vertex", func() {
			cases := [][3]model.Landmark{
				{pt(0.2, 0.1), pt(0.5, 0.5), pt(0.9, 0.3)},
				{pt(0.47, 0.55), pt(0.55, 0.70), pt(0.47, 0.85)},
				{pt(-1, 0.2), pt(0, 0), pt(-1, -0.2)},
				{pt(0.3, 0.9), pt(0.31, 0.2), pt(0.8, 0.85)},
			}

			Convey("Then the angle is symmetric and within [0, 180]", func() {
				for _, c := range cases {
					forward := geometry.AngleAt(c[0], c[1], c[2])
					backward := geometry.AngleAt(c[2], c[1], c[0])
					So(forward, ShouldAlmostEqual, backward, epsilon)
					So(forward, ShouldBeBetweenOrEqual, 0, 180)
				}
			})
		})

		Convey("When the raw difference exceeds a half turn", func() {
			// atan2 difference is about 348.6 degrees before reflection.
			angle := geometry.AngleAt(pt(-1, -0.1), pt(0, 0), pt(-1, 0.1))

			Convey("Then it is reflected into range", func() {
				So(angle, ShouldAlmostEqual, 2*math.Atan(0.1)*180/math.Pi, 1e-6)
			})
		})

		Convey("When a coordinate is NaN", func() {
			angle := geometry.AngleAt(pt(math.NaN(), 0), pt(0, 0), pt(1, 0))

			Convey("Then NaN propagates", func() {
				So(math.IsNaN(angle), ShouldBeTrue)
			})
		})
	})
}

func TestTilt(t *testing.T) {
	Convey("Given two shoulders", t, func() {
		Convey("When they are level", func() {
			So(geometry.Tilt(pt(0.45, 0.3), pt(0.55, 0.3)), ShouldEqual, 0)
		})

		Convey("When one is lower", func() {
			So(geometry.Tilt(pt(0.4, 0.3), pt(0.6, 0.34)), ShouldAlmostEqual, 0.2, 1e-9)
		})

		Convey("When they share an x coordinate", func() {
			So(math.IsInf(geometry.Tilt(pt(0.5, 0.3), pt(0.5, 0.4)), 1), ShouldBeTrue)
		})
	})
}
