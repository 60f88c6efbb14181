package trajopt

import (
	"github.com/pkg/errors"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"go.viam.com/trajopt/kinematics"
)

// ErrUnknownLink is returned when a link name cannot be resolved against an
// adjacency map.
var ErrUnknownLink = errors.New("link name not present in adjacency map")

// KinematicContext is the immutable bundle shared by every constraint
// targeting the same link: the forward-kinematics provider, the adjacency
// map, the world-to-base transform, the resolved link record and the
// tool-center-point offset. The link name is resolved exactly once, at
// construction; a context that failed to resolve is never returned.
type KinematicContext struct {
	manip       kinematics.ForwardKinematics
	adjacency   kinematics.AdjacencyMap
	worldToBase spatialmath.Pose
	linkName    string
	kinLink     *kinematics.LinkMapping
	tcp         spatialmath.Pose
}

// NewKinematicContext resolves linkName against the adjacency map and
// bundles the collaborators for constraint evaluation. A nil worldToBase or
// tcp defaults to the identity. An unresolvable link name is a fatal
// configuration error.
func NewKinematicContext(
	manip kinematics.ForwardKinematics,
	adjacency kinematics.AdjacencyMap,
	worldToBase spatialmath.Pose,
	linkName string,
	tcp spatialmath.Pose,
	logger logging.Logger,
) (*KinematicContext, error) {
	if worldToBase == nil {
		worldToBase = spatialmath.NewZeroPose()
	}
	if tcp == nil {
		tcp = spatialmath.NewZeroPose()
	}
	kinLink := adjacency.Mapping(linkName)
	if kinLink == nil {
		logger.Errorw("cannot build kinematic context", "link", linkName, "error", ErrUnknownLink)
		return nil, errors.Wrapf(ErrUnknownLink, "link %q", linkName)
	}
	return &KinematicContext{
		manip:       manip,
		adjacency:   adjacency,
		worldToBase: worldToBase,
		linkName:    linkName,
		kinLink:     kinLink,
		tcp:         tcp,
	}, nil
}

// Manipulator returns the forward-kinematics provider.
func (k *KinematicContext) Manipulator() kinematics.ForwardKinematics {
	return k.manip
}

// AdjacencyMap returns the link-resolution collaborator.
func (k *KinematicContext) AdjacencyMap() kinematics.AdjacencyMap {
	return k.adjacency
}

// WorldToBase returns the transform from the world frame to the provider's
// base frame.
func (k *KinematicContext) WorldToBase() spatialmath.Pose {
	return k.worldToBase
}

// LinkName returns the link name this context was built for.
func (k *KinematicContext) LinkName() string {
	return k.linkName
}

// LinkMapping returns the resolved chain link and fixed offset.
func (k *KinematicContext) LinkMapping() *kinematics.LinkMapping {
	return k.kinLink
}

// TCP returns the tool-center-point offset.
func (k *KinematicContext) TCP() spatialmath.Pose {
	return k.tcp
}
