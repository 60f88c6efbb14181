// Package kinematics defines the forward-kinematics and scene-adjacency
// contracts consumed by trajectory constraints, the frame arithmetic shared
// by their Jacobians, and small closed-form providers used in tests.
package kinematics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/spatialmath"
)

// ForwardKinematics computes link poses and geometric Jacobians for a
// kinematic chain. Implementations are read-only during evaluation and may
// be shared by many constraints.
type ForwardKinematics interface {
	// Pose returns the pose of the named link at the given joint values,
	// expressed in the provider's base frame.
	Pose(joints []float64, linkName string) (spatialmath.Pose, error)

	// Jacobian returns the 6 x NumJoints geometric Jacobian of the named
	// link at the given joint values: rows 0-2 map joint velocity to linear
	// velocity, rows 3-5 to angular velocity, both in the provider's base
	// frame. The returned matrix is freshly allocated; callers may mutate it.
	Jacobian(joints []float64, linkName string) (*mat.Dense, error)

	// NumJoints returns the number of degrees of freedom.
	NumJoints() int
}

// LinkMapping is the result of resolving a link name against an
// AdjacencyMap: the owning chain link and the fixed offset from that link to
// the requested one.
type LinkMapping struct {
	LinkName  string
	Transform spatialmath.Pose
}

// AdjacencyMap resolves scene link names to their owning kinematic chain
// links. Read-only after construction.
type AdjacencyMap interface {
	// Mapping returns the resolution for the given link name, or nil if the
	// link is unknown.
	Mapping(linkName string) *LinkMapping
	// ActiveLinkNames returns all resolvable link names, in a stable order.
	ActiveLinkNames() []string
}

type mapAdjacency struct {
	order    []string
	mappings map[string]*LinkMapping
}

// NewAdjacencyMap builds an AdjacencyMap from explicit link resolutions. The
// order slice fixes ActiveLinkNames ordering; a nil Transform in a mapping is
// replaced with the identity.
func NewAdjacencyMap(mappings map[string]*LinkMapping, order []string) AdjacencyMap {
	resolved := make(map[string]*LinkMapping, len(mappings))
	for name, m := range mappings {
		cp := *m
		if cp.Transform == nil {
			cp.Transform = spatialmath.NewZeroPose()
		}
		resolved[name] = &cp
	}
	if order == nil {
		for name := range resolved {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	return &mapAdjacency{order: order, mappings: resolved}
}

func (a *mapAdjacency) Mapping(linkName string) *LinkMapping {
	return a.mappings[linkName]
}

func (a *mapAdjacency) ActiveLinkNames() []string {
	return append([]string(nil), a.order...)
}
