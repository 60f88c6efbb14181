package kinematics

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

func TestFrameKinematics(t *testing.T) {
	frame, err := referenceframe.NewTranslationalFrame(
		"lift", r3.Vector{0, 0, 1}, referenceframe.Limit{Min: -10, Max: 10})
	test.That(t, err, test.ShouldBeNil)
	fk := NewFrameKinematics(frame)
	test.That(t, fk.NumJoints(), test.ShouldEqual, 1)

	pose, err := fk.Pose([]float64{2.5}, "lift")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().Z, test.ShouldAlmostEqual, 2.5)

	jac, err := fk.Jacobian([]float64{2.5}, "lift")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, jac.At(1, 0), test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, jac.At(2, 0), test.ShouldAlmostEqual, 1, 1e-6)
	for row := 3; row < 6; row++ {
		test.That(t, math.Abs(jac.At(row, 0)), test.ShouldBeLessThan, 1e-6)
	}

	_, err = fk.Pose([]float64{2.5}, "unknown")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFrameKinematicsRotational(t *testing.T) {
	frame, err := referenceframe.NewRotationalFrame(
		"spin", spatialmath.R4AA{RZ: 1}, referenceframe.Limit{Min: -math.Pi, Max: math.Pi})
	test.That(t, err, test.ShouldBeNil)
	fk := NewFrameKinematics(frame)
	test.That(t, fk.NumJoints(), test.ShouldEqual, 1)

	// The frame rotates in place: yaw tracks the joint value exactly.
	pose, err := fk.Pose([]float64{0.4}, "spin")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().Norm(), test.ShouldAlmostEqual, 0, 1e-9)
	rot := OrientationError(pose.Orientation())
	test.That(t, rot.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, rot.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, rot.Z, test.ShouldAlmostEqual, 0.4, 1e-9)

	// A revolute Z joint's geometric Jacobian is v = 0, w = (0, 0, 1).
	jac, err := fk.Jacobian([]float64{0.4}, "spin")
	test.That(t, err, test.ShouldBeNil)
	for row := 0; row < 3; row++ {
		test.That(t, math.Abs(jac.At(row, 0)), test.ShouldBeLessThan, 1e-6)
	}
	test.That(t, jac.At(3, 0), test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, jac.At(4, 0), test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, jac.At(5, 0), test.ShouldAlmostEqual, 1, 1e-6)
}
