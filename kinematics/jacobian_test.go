package kinematics

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/spatialmath"
)

func TestOrientationError(t *testing.T) {
	zero := OrientationError(spatialmath.NewZeroOrientation())
	test.That(t, zero.Norm(), test.ShouldAlmostEqual, 0)

	quarter := OrientationError(&spatialmath.R4AA{Theta: math.Pi / 2, RZ: 1})
	test.That(t, quarter.X, test.ShouldAlmostEqual, 0)
	test.That(t, quarter.Y, test.ShouldAlmostEqual, 0)
	test.That(t, quarter.Z, test.ShouldAlmostEqual, math.Pi/2)

	// Rotations past pi must come back as their shortest-arc equivalent.
	long := OrientationError(&spatialmath.R4AA{Theta: 3 * math.Pi / 2, RZ: 1})
	test.That(t, long.Z, test.ShouldAlmostEqual, -math.Pi/2, 1e-9)

	// At 180 degrees the extraction must stay finite with magnitude pi.
	half := OrientationError(&spatialmath.R4AA{Theta: math.Pi, RX: 1})
	test.That(t, math.IsNaN(half.Norm()), test.ShouldBeFalse)
	test.That(t, half.Norm(), test.ShouldAlmostEqual, math.Pi, 1e-9)
}

func TestJacobianChangeBase(t *testing.T) {
	jac := mat.NewDense(6, 1, []float64{1, 0, 0, 0, 0, 1})
	base := spatialmath.NewPose(r3.Vector{5, 5, 5}, &spatialmath.R4AA{Theta: math.Pi / 2, RZ: 1})
	JacobianChangeBase(jac, base)

	// Linear row rotated into +Y, angular row about Z unchanged; the base
	// translation must not enter.
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, jac.At(1, 0), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, jac.At(2, 0), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, jac.At(5, 0), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestJacobianChangeRefPoint(t *testing.T) {
	jac := mat.NewDense(6, 1, []float64{0, 0, 0, 0, 0, 1})
	JacobianChangeRefPoint(jac, r3.Vector{1, 0, 0})

	// v' = v + w x r = (0,0,1) x (1,0,0) = (0,1,0).
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 0)
	test.That(t, jac.At(1, 0), test.ShouldAlmostEqual, 1)
	test.That(t, jac.At(2, 0), test.ShouldAlmostEqual, 0)
	test.That(t, jac.At(5, 0), test.ShouldAlmostEqual, 1)
}

func TestAddTwist(t *testing.T) {
	start := spatialmath.NewPoseFromPoint(r3.Vector{1, 2, 3})
	step := 1e-3
	moved := AddTwist(start, r3.Vector{1, 0, 0}, r3.Vector{0, 0, 1}, step)

	test.That(t, moved.Point().X, test.ShouldAlmostEqual, 1+step)
	rot := OrientationError(moved.Orientation())
	test.That(t, rot.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, rot.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, rot.Z, test.ShouldAlmostEqual, step, 1e-9)
}

// numericGeometricJacobian recovers the geometric Jacobian of a provider by
// central differences, for cross-checking the closed forms.
func numericGeometricJacobian(t *testing.T, fk ForwardKinematics, joints []float64, linkName string) *mat.Dense {
	t.Helper()
	const h = 1e-6
	jac := mat.NewDense(6, fk.NumJoints(), nil)
	perturbed := append([]float64(nil), joints...)
	for i := range joints {
		perturbed[i] = joints[i] + h
		plus, err := fk.Pose(perturbed, linkName)
		test.That(t, err, test.ShouldBeNil)
		perturbed[i] = joints[i] - h
		minus, err := fk.Pose(perturbed, linkName)
		test.That(t, err, test.ShouldBeNil)
		perturbed[i] = joints[i]

		v := plus.Point().Sub(minus.Point()).Mul(1 / (2 * h))
		w := OrientationError(spatialmath.OrientationBetween(minus.Orientation(), plus.Orientation())).Mul(1 / (2 * h))
		setColumn(jac, i, v, w)
	}
	return jac
}

func TestPlanarArmKinematics(t *testing.T) {
	arm, err := NewPlanarArm("arm", []float64{1, 0.7})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, arm.NumJoints(), test.ShouldEqual, 2)

	// All joints at zero: arm stretched along +X.
	pose, err := arm.Pose([]float64{0, 0}, arm.EndEffectorLinkName())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 1.7)
	test.That(t, pose.Point().Y, test.ShouldAlmostEqual, 0)

	joints := []float64{0.3, -0.4}
	jac, err := arm.Jacobian(joints, arm.EndEffectorLinkName())
	test.That(t, err, test.ShouldBeNil)
	numeric := numericGeometricJacobian(t, arm, joints, arm.EndEffectorLinkName())
	for i := 0; i < 6; i++ {
		for j := 0; j < 2; j++ {
			test.That(t, jac.At(i, j), test.ShouldAlmostEqual, numeric.At(i, j), 1e-6)
		}
	}

	_, err = arm.Pose(joints, "not_a_link")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGantryKinematics(t *testing.T) {
	gantry, err := NewGantry("cart", []r3.Vector{{1, 0, 0}, {0, 1, 0}})
	test.That(t, err, test.ShouldBeNil)

	pose, err := gantry.Pose([]float64{2, -3}, "cart")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 2)
	test.That(t, pose.Point().Y, test.ShouldAlmostEqual, -3)

	jac, err := gantry.Jacobian([]float64{2, -3}, "cart")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 1)
	test.That(t, jac.At(1, 1), test.ShouldAlmostEqual, 1)
	test.That(t, jac.At(5, 0), test.ShouldAlmostEqual, 0)
}

func TestAdjacencyMap(t *testing.T) {
	adjacency := NewAdjacencyMap(map[string]*LinkMapping{
		"tool": {LinkName: "arm_link2"},
	}, nil)
	test.That(t, adjacency.Mapping("tool"), test.ShouldNotBeNil)
	test.That(t, adjacency.Mapping("tool").LinkName, test.ShouldEqual, "arm_link2")
	test.That(t, adjacency.Mapping("nope"), test.ShouldBeNil)
	test.That(t, adjacency.ActiveLinkNames(), test.ShouldResemble, []string{"tool"})
}
