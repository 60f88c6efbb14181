package collision

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rdk/spatialmath"
)

// GeometryEngine is an Engine over rdk spatialmath geometries: one geometry
// per movable link, defined in that link's frame, plus static world
// obstacles already posed in world coordinates. Signed distances come from
// the geometries' own pairwise distance support.
//
// Contact normals are taken between body centers, which is exact for
// spheres and an approximation for other convex shapes; evaluators needing
// exact gradients for non-spherical pairs should use their
// finite-difference mode.
type GeometryEngine struct {
	movable   map[string]spatialmath.Geometry
	obstacles map[string]spatialmath.Geometry

	movableOrder  []string
	obstacleOrder []string
}

// NewGeometryEngine builds an engine from per-link geometries and world
// obstacles. Obstacle names must not collide with link names.
func NewGeometryEngine(movable, obstacles map[string]spatialmath.Geometry) (*GeometryEngine, error) {
	e := &GeometryEngine{movable: movable, obstacles: obstacles}
	for name := range movable {
		e.movableOrder = append(e.movableOrder, name)
	}
	for name := range obstacles {
		if _, ok := movable[name]; ok {
			return nil, errors.Errorf("obstacle %q has the same name as a movable link", name)
		}
		e.obstacleOrder = append(e.obstacleOrder, name)
	}
	sort.Strings(e.movableOrder)
	sort.Strings(e.obstacleOrder)
	return e, nil
}

// ContactTest reports contacts between the posed movable links, and between
// each posed movable link and every obstacle, with signed distance below
// threshold. Links without a supplied pose are skipped.
func (e *GeometryEngine) ContactTest(
	poses map[string]spatialmath.Pose,
	threshold float64,
	mode ContactTestMode,
) ([]Contact, error) {
	type posed struct {
		name string
		geom spatialmath.Geometry
	}
	var bodies []posed
	for _, name := range e.movableOrder {
		pose, ok := poses[name]
		if !ok {
			continue
		}
		bodies = append(bodies, posed{name, e.movable[name].Transform(pose)})
	}

	var contacts []Contact
	appendContact := func(nameA, nameB string, geomA, geomB spatialmath.Geometry) error {
		dist, err := geomA.DistanceFrom(geomB)
		if err != nil {
			return errors.Wrapf(err, "distance between %q and %q", nameA, nameB)
		}
		if dist >= threshold {
			return nil
		}
		ctrA := geomA.Pose().Point()
		ctrB := geomB.Pose().Point()
		normal := ctrB.Sub(ctrA)
		if normal.Norm() > 0 {
			normal = normal.Normalize()
		}
		contacts = append(contacts, Contact{
			LinkA:    nameA,
			LinkB:    nameB,
			Distance: dist,
			Normal:   normal,
			PointA:   ctrA,
			PointB:   ctrB,
		})
		return nil
	}

	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			if err := appendContact(bodies[i].name, bodies[j].name, bodies[i].geom, bodies[j].geom); err != nil {
				return nil, err
			}
		}
		for _, obsName := range e.obstacleOrder {
			if err := appendContact(bodies[i].name, obsName, bodies[i].geom, e.obstacles[obsName]); err != nil {
				return nil, err
			}
		}
	}

	if mode == ContactTestClosest && len(contacts) > 1 {
		closest := contacts[0]
		for _, ct := range contacts[1:] {
			if ct.Distance < closest.Distance {
				closest = ct
			}
		}
		contacts = []Contact{closest}
	}
	return contacts, nil
}
