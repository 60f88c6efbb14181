package trajopt

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"go.viam.com/trajopt/kinematics"
	"go.viam.com/trajopt/nlp"
)

const (
	// Step used to turn geometric-Jacobian angular velocities into
	// rotation-vector derivatives by twist perturbation.
	rotationalDiffStep = 1e-5
	// Step for the full finite-difference fallback.
	numericDiffStep = 1e-6
)

// CartesianPoseConstraint pins the pose of one link to a target pose. Its
// residual is the 6-vector [translation error, rotation-vector error] of the
// relative pose from the target to the computed pose; by default all six
// components are bound to zero, demanding an exact pose match.
//
// The Jacobian is hybrid: translational rows come from the provider's
// geometric Jacobian re-expressed in the residual frame (exact, the
// joint-velocity/Cartesian-error relationship is linear), while rotational
// rows are recovered by perturbing the relative pose along each column's
// twist, because angular velocity is not the time derivative of the
// rotation-vector error. SetUseNumericDifferentiation switches to central
// finite differences of the full residual as a correctness fallback.
type CartesianPoseConstraint struct {
	name        string
	nDOF        int
	bounds      []nlp.Bounds
	positionVar *JointPositionVariable
	target      spatialmath.Pose
	targetInv   spatialmath.Pose
	kin         *KinematicContext
	numericDiff bool
	logger      logging.Logger
}

// NewCartesianPoseConstraint builds a pose constraint on positionVar using
// the shared kinematic context. The provider must report a positive joint
// count.
func NewCartesianPoseConstraint(
	target spatialmath.Pose,
	kin *KinematicContext,
	positionVar *JointPositionVariable,
	name string,
	logger logging.Logger,
) (*CartesianPoseConstraint, error) {
	nDOF := kin.Manipulator().NumJoints()
	if nDOF <= 0 {
		return nil, errors.Errorf("constraint %q: manipulator reports %d joints", name, nDOF)
	}
	bounds := make([]nlp.Bounds, 6)
	for i := range bounds {
		bounds[i] = nlp.BoundZero
	}
	return &CartesianPoseConstraint{
		name:        name,
		nDOF:        nDOF,
		bounds:      bounds,
		positionVar: positionVar,
		target:      target,
		targetInv:   spatialmath.PoseInverse(target),
		kin:         kin,
		logger:      logger,
	}, nil
}

// Name returns the constraint's name.
func (c *CartesianPoseConstraint) Name() string { return c.name }

// Rows returns 6: three translational and three rotational residuals.
func (c *CartesianPoseConstraint) Rows() int { return 6 }

// Bounds returns the stored 6-entry bound list.
func (c *CartesianPoseConstraint) Bounds() []nlp.Bounds {
	return append([]nlp.Bounds(nil), c.bounds...)
}

// SetBounds replaces the bound list, which must have exactly six entries.
func (c *CartesianPoseConstraint) SetBounds(bounds []nlp.Bounds) error {
	if len(bounds) != 6 {
		return errors.Errorf("constraint %q: pose bounds need 6 entries, got %d", c.name, len(bounds))
	}
	c.bounds = append([]nlp.Bounds(nil), bounds...)
	return nil
}

// SetTargetPose replaces the target pose and re-derives its cached inverse.
func (c *CartesianPoseConstraint) SetTargetPose(target spatialmath.Pose) {
	c.target = target
	c.targetInv = spatialmath.PoseInverse(target)
}

// TargetPose returns the current target pose.
func (c *CartesianPoseConstraint) TargetPose() spatialmath.Pose {
	return c.target
}

// SetUseNumericDifferentiation toggles the full finite-difference Jacobian
// in place of the hybrid analytic path.
func (c *CartesianPoseConstraint) SetUseNumericDifferentiation(use bool) {
	c.numericDiff = use
}

// CurrentPose returns the constrained link's pose, in the target's
// reference frame convention, at the variable's current joint values.
func (c *CartesianPoseConstraint) CurrentPose() (spatialmath.Pose, error) {
	return c.effectivePose(c.positionVar.Values())
}

// effectivePose chains world-to-base, forward kinematics, the resolved link
// offset and the tool offset.
func (c *CartesianPoseConstraint) effectivePose(joints []float64) (spatialmath.Pose, error) {
	fkPose, err := c.kin.Manipulator().Pose(joints, c.kin.LinkMapping().LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "constraint %q", c.name)
	}
	local := spatialmath.Compose(c.kin.LinkMapping().Transform, c.kin.TCP())
	return spatialmath.Compose(c.kin.WorldToBase(), spatialmath.Compose(fkPose, local)), nil
}

// Values returns the residual at the variable's current joint values.
func (c *CartesianPoseConstraint) Values() ([]float64, error) {
	return c.CalcValues(c.positionVar.Values())
}

// CalcValues computes the residual for arbitrary joint values.
func (c *CartesianPoseConstraint) CalcValues(joints []float64) ([]float64, error) {
	pose, err := c.effectivePose(joints)
	if err != nil {
		return nil, err
	}
	poseErr := spatialmath.Compose(c.targetInv, pose)
	pt := poseErr.Point()
	rot := kinematics.OrientationError(poseErr.Orientation())
	return []float64{pt.X, pt.Y, pt.Z, rot.X, rot.Y, rot.Z}, nil
}

// FillJacobianBlock writes the 6 x nDOF Jacobian when varName matches this
// constraint's variable, and is a no-op otherwise.
func (c *CartesianPoseConstraint) FillJacobianBlock(varName string, block *mat.Dense) error {
	if varName != c.positionVar.Name() {
		return nil
	}
	jac, err := c.CalcJacobian(c.positionVar.Values())
	if err != nil {
		return err
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < c.nDOF; j++ {
			block.Set(i, j, jac.At(i, j))
		}
	}
	return nil
}

// CalcJacobian computes the residual Jacobian for arbitrary joint values,
// using the hybrid analytic path unless numeric differentiation was
// requested.
func (c *CartesianPoseConstraint) CalcJacobian(joints []float64) (*mat.Dense, error) {
	if c.numericDiff {
		return c.numericJacobian(joints)
	}

	fkPose, err := c.kin.Manipulator().Pose(joints, c.kin.LinkMapping().LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "constraint %q", c.name)
	}
	jac, err := c.kin.Manipulator().Jacobian(joints, c.kin.LinkMapping().LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "constraint %q", c.name)
	}

	// Express the geometric Jacobian in the residual's frame: world frame
	// first, then shift the reference point out to the tool, then the
	// target-inverse frame the residual lives in.
	local := spatialmath.Compose(c.kin.LinkMapping().Transform, c.kin.TCP())
	kinematics.JacobianChangeBase(jac, c.kin.WorldToBase())
	refPoint := kinematics.Rotate(
		spatialmath.Compose(c.kin.WorldToBase(), fkPose).Orientation(), local.Point())
	kinematics.JacobianChangeRefPoint(jac, refPoint)
	kinematics.JacobianChangeBase(jac, c.targetInv)

	// The rotational rows now hold angular velocities of the relative pose,
	// not derivatives of its rotation-vector error. Recover those by flowing
	// the relative pose a small step along each column's twist and
	// differencing the rotational error.
	poseErr := spatialmath.Compose(c.targetInv,
		spatialmath.Compose(c.kin.WorldToBase(), spatialmath.Compose(fkPose, local)))
	rotErr := kinematics.OrientationError(poseErr.Orientation())
	for col := 0; col < c.nDOF; col++ {
		v := r3.Vector{jac.At(0, col), jac.At(1, col), jac.At(2, col)}
		w := r3.Vector{jac.At(3, col), jac.At(4, col), jac.At(5, col)}
		perturbed := kinematics.AddTwist(poseErr, v, w, rotationalDiffStep)
		newRotErr := kinematics.OrientationError(perturbed.Orientation())
		jac.Set(3, col, (newRotErr.X-rotErr.X)/rotationalDiffStep)
		jac.Set(4, col, (newRotErr.Y-rotErr.Y)/rotationalDiffStep)
		jac.Set(5, col, (newRotErr.Z-rotErr.Z)/rotationalDiffStep)
	}
	return jac, nil
}

// numericJacobian central-differences the full residual, one joint at a
// time.
func (c *CartesianPoseConstraint) numericJacobian(joints []float64) (*mat.Dense, error) {
	jac := mat.NewDense(6, c.nDOF, nil)
	perturbed := append([]float64(nil), joints...)
	for col := 0; col < c.nDOF; col++ {
		perturbed[col] = joints[col] + numericDiffStep
		plus, err := c.CalcValues(perturbed)
		if err != nil {
			return nil, err
		}
		perturbed[col] = joints[col] - numericDiffStep
		minus, err := c.CalcValues(perturbed)
		if err != nil {
			return nil, err
		}
		perturbed[col] = joints[col]
		for row := 0; row < 6; row++ {
			jac.Set(row, col, (plus[row]-minus[row])/(2*numericDiffStep))
		}
	}
	return jac, nil
}

var _ nlp.ConstraintSet = (*CartesianPoseConstraint)(nil)
