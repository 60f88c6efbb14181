package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/spatialmath"
)

// PlanarArm is a serial chain of revolute joints in the XY plane, every
// joint rotating about +Z and every link extending along its local X axis.
// Poses and geometric Jacobians have simple closed forms, which makes it a
// convenient provider for exercising constraints.
type PlanarArm struct {
	name    string
	lengths []float64
}

// NewPlanarArm returns a planar revolute arm with the given link lengths.
func NewPlanarArm(name string, lengths []float64) (*PlanarArm, error) {
	if len(lengths) == 0 {
		return nil, errors.New("planar arm needs at least one link")
	}
	for i, l := range lengths {
		if l <= 0 {
			return nil, errors.Errorf("planar arm link %d has non-positive length %f", i, l)
		}
	}
	return &PlanarArm{name: name, lengths: lengths}, nil
}

// NumJoints returns the arm's degrees of freedom, one per link.
func (a *PlanarArm) NumJoints() int {
	return len(a.lengths)
}

// LinkName returns the name of the idx-th link (zero-based).
func (a *PlanarArm) LinkName(idx int) string {
	return fmt.Sprintf("%s_link%d", a.name, idx+1)
}

// EndEffectorLinkName returns the name of the distal link.
func (a *PlanarArm) EndEffectorLinkName() string {
	return a.LinkName(len(a.lengths) - 1)
}

func (a *PlanarArm) linkIndex(linkName string) (int, error) {
	for i := range a.lengths {
		if a.LinkName(i) == linkName {
			return i, nil
		}
	}
	return 0, errors.Errorf("planar arm %q has no link %q", a.name, linkName)
}

// jointOrigins returns the world position of each joint plus the end of the
// final link, cumulative along the chain.
func (a *PlanarArm) jointOrigins(joints []float64) []r3.Vector {
	origins := make([]r3.Vector, len(a.lengths)+1)
	angle := 0.
	for i, l := range a.lengths {
		angle += joints[i]
		origins[i+1] = origins[i].Add(r3.Vector{l * math.Cos(angle), l * math.Sin(angle), 0})
	}
	return origins
}

// Pose returns the pose of the distal end of the named link, oriented with
// the link's X axis.
func (a *PlanarArm) Pose(joints []float64, linkName string) (spatialmath.Pose, error) {
	if len(joints) != len(a.lengths) {
		return nil, errors.Errorf("planar arm %q expects %d joint values, got %d", a.name, len(a.lengths), len(joints))
	}
	idx, err := a.linkIndex(linkName)
	if err != nil {
		return nil, err
	}
	yaw := 0.
	for i := 0; i <= idx; i++ {
		yaw += joints[i]
	}
	pt := a.jointOrigins(joints)[idx+1]
	return spatialmath.NewPose(pt, &spatialmath.R4AA{Theta: yaw, RZ: 1}), nil
}

// Jacobian returns the geometric Jacobian of the named link's distal end.
func (a *PlanarArm) Jacobian(joints []float64, linkName string) (*mat.Dense, error) {
	if len(joints) != len(a.lengths) {
		return nil, errors.Errorf("planar arm %q expects %d joint values, got %d", a.name, len(a.lengths), len(joints))
	}
	idx, err := a.linkIndex(linkName)
	if err != nil {
		return nil, err
	}
	origins := a.jointOrigins(joints)
	end := origins[idx+1]
	zAxis := r3.Vector{0, 0, 1}
	jac := mat.NewDense(6, len(a.lengths), nil)
	for i := 0; i <= idx; i++ {
		v := zAxis.Cross(end.Sub(origins[i]))
		jac.Set(0, i, v.X)
		jac.Set(1, i, v.Y)
		jac.Set(2, i, v.Z)
		jac.Set(5, i, 1)
	}
	return jac, nil
}

// Gantry is a purely prismatic chain moving one named body along fixed
// axes. It mirrors the box-on-rails test fixtures used for collision
// constraints: translation only, identity orientation everywhere.
type Gantry struct {
	linkName string
	axes     []r3.Vector
}

// NewGantry returns a prismatic provider moving linkName along the given
// unit axes, one joint per axis.
func NewGantry(linkName string, axes []r3.Vector) (*Gantry, error) {
	if len(axes) == 0 {
		return nil, errors.New("gantry needs at least one axis")
	}
	return &Gantry{linkName: linkName, axes: axes}, nil
}

// NumJoints returns the gantry's degrees of freedom, one per axis.
func (g *Gantry) NumJoints() int {
	return len(g.axes)
}

// LinkName returns the name of the moving body.
func (g *Gantry) LinkName() string {
	return g.linkName
}

// Pose returns the translated pose of the moving body.
func (g *Gantry) Pose(joints []float64, linkName string) (spatialmath.Pose, error) {
	if linkName != g.linkName {
		return nil, errors.Errorf("gantry has no link %q", linkName)
	}
	if len(joints) != len(g.axes) {
		return nil, errors.Errorf("gantry expects %d joint values, got %d", len(g.axes), len(joints))
	}
	pt := r3.Vector{}
	for i, axis := range g.axes {
		pt = pt.Add(axis.Mul(joints[i]))
	}
	return spatialmath.NewPoseFromPoint(pt), nil
}

// Jacobian returns the geometric Jacobian of the moving body; angular rows
// are identically zero.
func (g *Gantry) Jacobian(joints []float64, linkName string) (*mat.Dense, error) {
	if linkName != g.linkName {
		return nil, errors.Errorf("gantry has no link %q", linkName)
	}
	if len(joints) != len(g.axes) {
		return nil, errors.Errorf("gantry expects %d joint values, got %d", len(g.axes), len(joints))
	}
	jac := mat.NewDense(6, len(g.axes), nil)
	for i, axis := range g.axes {
		jac.Set(0, i, axis.X)
		jac.Set(1, i, axis.Y)
		jac.Set(2, i, axis.Z)
	}
	return jac, nil
}
