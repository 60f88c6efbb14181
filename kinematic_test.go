package trajopt

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"go.viam.com/trajopt/kinematics"
)

func TestKinematicContextResolution(t *testing.T) {
	logger := logging.NewTestLogger(t)
	arm, err := kinematics.NewPlanarArm("arm", []float64{1, 0.8})
	test.That(t, err, test.ShouldBeNil)

	offset := spatialmath.NewPoseFromPoint(r3.Vector{0.1, 0, 0})
	adjacency := kinematics.NewAdjacencyMap(map[string]*kinematics.LinkMapping{
		"tool": {LinkName: arm.EndEffectorLinkName(), Transform: offset},
	}, nil)

	ctx, err := NewKinematicContext(arm, adjacency, nil, "tool", nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ctx.LinkName(), test.ShouldEqual, "tool")
	test.That(t, ctx.LinkMapping().LinkName, test.ShouldEqual, arm.EndEffectorLinkName())
	test.That(t, spatialmath.PoseAlmostEqual(ctx.LinkMapping().Transform, offset), test.ShouldBeTrue)
	// Defaults fill in identities.
	test.That(t, spatialmath.PoseAlmostEqual(ctx.WorldToBase(), spatialmath.NewZeroPose()), test.ShouldBeTrue)
	test.That(t, spatialmath.PoseAlmostEqual(ctx.TCP(), spatialmath.NewZeroPose()), test.ShouldBeTrue)

	_, err = NewKinematicContext(arm, adjacency, nil, "phantom", nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrUnknownLink), test.ShouldBeTrue)
}
