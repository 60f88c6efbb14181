package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rdk/spatialmath"
)

const smallAngle = 1e-9

// OrientationError returns the rotation-vector (log map) form of the given
// orientation: rotation angle times unit axis, magnitude at most pi. The
// quaternion is flipped to its shortest-arc representative and the angle is
// recovered with atan2 rather than acos, so orientations at or near 180
// degrees stay finite; below the small-angle cutoff the first-order
// expansion 2*imag(q) is used.
func OrientationError(o spatialmath.Orientation) r3.Vector {
	return rotationVector(o.Quaternion())
}

func rotationVector(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	im := r3.Vector{q.Imag, q.Jmag, q.Kmag}
	s := im.Norm()
	if s < smallAngle {
		return im.Mul(2)
	}
	angle := 2 * math.Atan2(s, q.Real)
	return im.Mul(angle / s)
}

func quatFromRotationVector(v r3.Vector) quat.Number {
	angle := v.Norm()
	if angle < smallAngle {
		return quat.Number{Real: 1, Imag: v.X / 2, Jmag: v.Y / 2, Kmag: v.Z / 2}
	}
	axis := v.Mul(1 / angle)
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

func orientationFromQuat(q quat.Number) spatialmath.Orientation {
	rv := rotationVector(q)
	angle := rv.Norm()
	if angle < smallAngle {
		return spatialmath.NewZeroOrientation()
	}
	axis := rv.Mul(1 / angle)
	return &spatialmath.R4AA{Theta: angle, RX: axis.X, RY: axis.Y, RZ: axis.Z}
}

// Rotate applies the given orientation to a 3-vector.
func Rotate(o spatialmath.Orientation, v r3.Vector) r3.Vector {
	return rotate(o.Quaternion(), v)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{r.Imag, r.Jmag, r.Kmag}
}

// JacobianChangeBase re-expresses a 6 x n geometric Jacobian in the frame
// reached by the given transform, rotating the linear and angular rows in
// place. The transform's translation does not enter; only orientation
// changes the basis of a velocity.
func JacobianChangeBase(jac *mat.Dense, base spatialmath.Pose) {
	q := base.Orientation().Quaternion()
	_, cols := jac.Dims()
	for c := 0; c < cols; c++ {
		v := rotate(q, r3.Vector{jac.At(0, c), jac.At(1, c), jac.At(2, c)})
		w := rotate(q, r3.Vector{jac.At(3, c), jac.At(4, c), jac.At(5, c)})
		jac.Set(0, c, v.X)
		jac.Set(1, c, v.Y)
		jac.Set(2, c, v.Z)
		jac.Set(3, c, w.X)
		jac.Set(4, c, w.Y)
		jac.Set(5, c, w.Z)
	}
}

// JacobianChangeRefPoint moves the linear rows of a 6 x n geometric Jacobian
// from the link origin to a point offset by refPoint (expressed in the
// Jacobian's current frame): v' = v + w x refPoint. Angular rows are
// unchanged.
func JacobianChangeRefPoint(jac *mat.Dense, refPoint r3.Vector) {
	_, cols := jac.Dims()
	for c := 0; c < cols; c++ {
		w := r3.Vector{jac.At(3, c), jac.At(4, c), jac.At(5, c)}
		shift := w.Cross(refPoint)
		jac.Set(0, c, jac.At(0, c)+shift.X)
		jac.Set(1, c, jac.At(1, c)+shift.Y)
		jac.Set(2, c, jac.At(2, c)+shift.Z)
	}
}

// AddTwist flows the given pose for step time along a spatial twist with
// linear velocity v and angular velocity w, both expressed in the pose's
// reference frame: translation moves by step*v and the rotation is
// premultiplied by the rotation exp(step*w).
func AddTwist(p spatialmath.Pose, v, w r3.Vector, step float64) spatialmath.Pose {
	q := p.Orientation().Quaternion()
	dq := quatFromRotationVector(w.Mul(step))
	return spatialmath.NewPose(p.Point().Add(v.Mul(step)), orientationFromQuat(quat.Mul(dq, q)))
}
