package kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/spatialmath"
)

const frameDiffStep = 1e-6

// frameKinematics adapts an rdk referenceframe.Frame to the
// ForwardKinematics contract, so URDF/JSON kinematic models can serve as
// providers. The frame exposes only its own pose, so the sole resolvable
// link name is the frame's name; the geometric Jacobian is recovered by
// central differences of the frame's pose.
type frameKinematics struct {
	frame referenceframe.Frame
}

// NewFrameKinematics wraps a referenceframe.Frame as a ForwardKinematics
// provider.
func NewFrameKinematics(f referenceframe.Frame) ForwardKinematics {
	return &frameKinematics{frame: f}
}

func (fk *frameKinematics) NumJoints() int {
	return len(fk.frame.DoF())
}

func (fk *frameKinematics) Pose(joints []float64, linkName string) (spatialmath.Pose, error) {
	if linkName != fk.frame.Name() {
		return nil, errors.Errorf("frame %q cannot resolve link %q", fk.frame.Name(), linkName)
	}
	if len(joints) != fk.NumJoints() {
		return nil, errors.Errorf("frame %q expects %d joint values, got %d", fk.frame.Name(), fk.NumJoints(), len(joints))
	}
	return fk.frame.Transform(referenceframe.FloatsToInputs(joints))
}

func (fk *frameKinematics) Jacobian(joints []float64, linkName string) (*mat.Dense, error) {
	if _, err := fk.Pose(joints, linkName); err != nil {
		return nil, err
	}
	n := fk.NumJoints()
	jac := mat.NewDense(6, n, nil)
	perturbed := append([]float64(nil), joints...)
	for i := 0; i < n; i++ {
		perturbed[i] = joints[i] + frameDiffStep
		plus, err := fk.frame.Transform(referenceframe.FloatsToInputs(perturbed))
		if err != nil {
			return nil, err
		}
		perturbed[i] = joints[i] - frameDiffStep
		minus, err := fk.frame.Transform(referenceframe.FloatsToInputs(perturbed))
		if err != nil {
			return nil, err
		}
		perturbed[i] = joints[i]

		v := plus.Point().Sub(minus.Point()).Mul(1 / (2 * frameDiffStep))
		// Angular velocity is the log of the relative rotation between the
		// two perturbed orientations, in the frame's base frame.
		w := OrientationError(spatialmath.OrientationBetween(minus.Orientation(), plus.Orientation())).
			Mul(1 / (2 * frameDiffStep))
		setColumn(jac, i, v, w)
	}
	return jac, nil
}

func setColumn(jac *mat.Dense, col int, v, w r3.Vector) {
	jac.Set(0, col, v.X)
	jac.Set(1, col, v.Y)
	jac.Set(2, col, v.Z)
	jac.Set(3, col, w.X)
	jac.Set(4, col, w.Y)
	jac.Set(5, col, w.Z)
}
