// Package collision defines the contact-query contract trajectory
// constraints consume from a collision-detection engine, and a concrete
// engine built on rdk spatialmath geometries.
package collision

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/spatialmath"
)

// ContactTestMode selects how many contacts a query reports.
type ContactTestMode int

const (
	// ContactTestClosest reports only the single closest (or deepest) contact.
	ContactTestClosest ContactTestMode = iota
	// ContactTestAll reports every contact within the distance threshold.
	ContactTestAll
)

// Contact is one reported proximity or penetration between two bodies.
// Distance is signed: negative means the bodies interpenetrate by that
// depth. Normal points from LinkA toward LinkB; PointA and PointB are the
// nearest points on each body, in world coordinates.
type Contact struct {
	LinkA    string
	LinkB    string
	Distance float64
	Normal   r3.Vector
	PointA   r3.Vector
	PointB   r3.Vector
}

// Engine answers contact queries for a set of posed links. Implementations
// are read-only during a query; callers supply the poses of every movable
// link each time, so the engine holds no configuration state between calls.
type Engine interface {
	// ContactTest reports contacts involving the given posed links whose
	// signed distance is below threshold. An empty result is not an error.
	ContactTest(poses map[string]spatialmath.Pose, threshold float64, mode ContactTestMode) ([]Contact, error)
}
