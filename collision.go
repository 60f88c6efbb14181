package trajopt

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"go.viam.com/trajopt/collision"
	"go.viam.com/trajopt/kinematics"
	"go.viam.com/trajopt/nlp"
)

type pairKey [2]string

func newPairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

type pairMargin struct {
	margin float64
	coeff  float64
}

// SafetyMarginData is the margin policy for collision residuals: a default
// clearance margin and weighting coefficient, with optional per-link-pair
// overrides. The coefficient scales the violation residual itself
// (coeff * (margin + buffer - distance)); bounds stay at (-inf, 0], so it
// acts as a penalty weight rather than a bound shift.
type SafetyMarginData struct {
	margin float64
	coeff  float64
	pairs  map[pairKey]pairMargin
}

// NewSafetyMarginData returns a policy with the given default margin and
// coefficient.
func NewSafetyMarginData(margin, coeff float64) *SafetyMarginData {
	return &SafetyMarginData{margin: margin, coeff: coeff, pairs: map[pairKey]pairMargin{}}
}

// SetPairData overrides the margin and coefficient for one link pair,
// irrespective of argument order.
func (s *SafetyMarginData) SetPairData(linkA, linkB string, margin, coeff float64) {
	s.pairs[newPairKey(linkA, linkB)] = pairMargin{margin: margin, coeff: coeff}
}

// PairData returns the margin and coefficient for a link pair, falling back
// to the defaults.
func (s *SafetyMarginData) PairData(linkA, linkB string) (float64, float64) {
	if p, ok := s.pairs[newPairKey(linkA, linkB)]; ok {
		return p.margin, p.coeff
	}
	return s.margin, s.coeff
}

// MaxMargin returns the largest margin across the defaults and all pair
// overrides; contact queries use it to derive their distance threshold.
func (s *SafetyMarginData) MaxMargin() float64 {
	max := s.margin
	for _, p := range s.pairs {
		if p.margin > max {
			max = p.margin
		}
	}
	return max
}

// CollisionEvaluator turns one configuration into clearance residuals and
// their Jacobians: one residual per reported contact, equal to
// coeff * (margin + buffer - distance), positive meaning too close or
// penetrating. Nothing is cached between queries; every call re-poses the
// active links and re-queries the engine.
type CollisionEvaluator struct {
	manip       kinematics.ForwardKinematics
	adjacency   kinematics.AdjacencyMap
	engine      collision.Engine
	worldToBase spatialmath.Pose
	margins     *SafetyMarginData
	mode        collision.ContactTestMode
	buffer      float64
	numericDiff bool
	logger      logging.Logger
}

// NewCollisionEvaluator bundles the collaborators for collision residual
// evaluation. The buffer is added to every margin for conservative
// triggering; a nil worldToBase defaults to the identity.
func NewCollisionEvaluator(
	manip kinematics.ForwardKinematics,
	adjacency kinematics.AdjacencyMap,
	engine collision.Engine,
	worldToBase spatialmath.Pose,
	margins *SafetyMarginData,
	mode collision.ContactTestMode,
	buffer float64,
	logger logging.Logger,
) (*CollisionEvaluator, error) {
	if margins == nil {
		return nil, errors.New("collision evaluator needs safety margin data")
	}
	if manip.NumJoints() <= 0 {
		return nil, errors.Errorf("collision evaluator: manipulator reports %d joints", manip.NumJoints())
	}
	if worldToBase == nil {
		worldToBase = spatialmath.NewZeroPose()
	}
	return &CollisionEvaluator{
		manip:       manip,
		adjacency:   adjacency,
		engine:      engine,
		worldToBase: worldToBase,
		margins:     margins,
		mode:        mode,
		buffer:      buffer,
		logger:      logger,
	}, nil
}

// SetUseNumericDifferentiation toggles finite-difference clearance
// gradients in place of the analytic contact-normal path.
func (e *CollisionEvaluator) SetUseNumericDifferentiation(use bool) {
	e.numericDiff = use
}

// Mode returns the evaluator's contact-query mode.
func (e *CollisionEvaluator) Mode() collision.ContactTestMode {
	return e.mode
}

// linkPoses computes the world pose of every active link at the given joint
// values.
func (e *CollisionEvaluator) linkPoses(joints []float64) (map[string]spatialmath.Pose, error) {
	poses := make(map[string]spatialmath.Pose)
	for _, linkName := range e.adjacency.ActiveLinkNames() {
		m := e.adjacency.Mapping(linkName)
		fkPose, err := e.manip.Pose(joints, m.LinkName)
		if err != nil {
			return nil, errors.Wrapf(err, "posing link %q", linkName)
		}
		poses[linkName] = spatialmath.Compose(e.worldToBase, spatialmath.Compose(fkPose, m.Transform))
	}
	return poses, nil
}

// CalcContacts queries the engine at the given joint values. An empty
// contact set is not an error; a contact naming no active link indicates
// the adjacency map and the engine have desynchronized and is fatal.
func (e *CollisionEvaluator) CalcContacts(joints []float64) ([]collision.Contact, error) {
	poses, err := e.linkPoses(joints)
	if err != nil {
		return nil, err
	}
	threshold := e.margins.MaxMargin() + e.buffer
	contacts, err := e.engine.ContactTest(poses, threshold, e.mode)
	if err != nil {
		return nil, err
	}
	for _, ct := range contacts {
		if e.adjacency.Mapping(ct.LinkA) == nil && e.adjacency.Mapping(ct.LinkB) == nil {
			e.logger.Errorw("contact between unresolved links", "linkA", ct.LinkA, "linkB", ct.LinkB)
			return nil, errors.Errorf("contact between links %q and %q, neither in the adjacency map", ct.LinkA, ct.LinkB)
		}
	}
	return contacts, nil
}

// CalcValues returns one residual per contact at the given joint values,
// in the engine's reporting order.
func (e *CollisionEvaluator) CalcValues(joints []float64) ([]float64, error) {
	contacts, err := e.CalcContacts(joints)
	if err != nil {
		return nil, err
	}
	return e.residuals(contacts), nil
}

func (e *CollisionEvaluator) residuals(contacts []collision.Contact) []float64 {
	values := make([]float64, 0, len(contacts))
	for _, ct := range contacts {
		margin, coeff := e.margins.PairData(ct.LinkA, ct.LinkB)
		values = append(values, coeff*(margin+e.buffer-ct.Distance))
	}
	return values
}

// CalcJacobian returns the len(contacts) x nDOF Jacobian of the residuals
// at the given joint values, rows aligned with CalcContacts ordering.
func (e *CollisionEvaluator) CalcJacobian(joints []float64) (*mat.Dense, error) {
	contacts, err := e.CalcContacts(joints)
	if err != nil {
		return nil, err
	}
	return e.contactJacobian(joints, contacts)
}

func (e *CollisionEvaluator) contactJacobian(joints []float64, contacts []collision.Contact) (*mat.Dense, error) {
	nDOF := e.manip.NumJoints()
	jac := mat.NewDense(max(len(contacts), 1), nDOF, nil)
	for row, ct := range contacts {
		_, coeff := e.margins.PairData(ct.LinkA, ct.LinkB)
		var grad []float64
		var err error
		if e.numericDiff {
			grad, err = e.numericDistanceGradient(joints, ct)
		} else {
			grad, err = e.analyticDistanceGradient(joints, ct)
		}
		if err != nil {
			return nil, err
		}
		// residual = coeff * (margin + buffer - distance)
		for col := 0; col < nDOF; col++ {
			jac.Set(row, col, -coeff*grad[col])
		}
	}
	return jac, nil
}

// analyticDistanceGradient composes the contact normal with the
// translational Jacobian rows at each involved contact point. Clearance is
// a scalar function of link positions, so no rotational correction is
// needed.
func (e *CollisionEvaluator) analyticDistanceGradient(joints []float64, ct collision.Contact) ([]float64, error) {
	nDOF := e.manip.NumJoints()
	grad := make([]float64, nDOF)
	// distance = normal . (pointB - pointA), normal pointing A -> B.
	if e.adjacency.Mapping(ct.LinkA) != nil {
		jacA, err := e.linkPointJacobian(joints, ct.LinkA, ct.PointA)
		if err != nil {
			return nil, err
		}
		for col := 0; col < nDOF; col++ {
			v := r3.Vector{jacA.At(0, col), jacA.At(1, col), jacA.At(2, col)}
			grad[col] -= ct.Normal.Dot(v)
		}
	}
	if e.adjacency.Mapping(ct.LinkB) != nil {
		jacB, err := e.linkPointJacobian(joints, ct.LinkB, ct.PointB)
		if err != nil {
			return nil, err
		}
		for col := 0; col < nDOF; col++ {
			v := r3.Vector{jacB.At(0, col), jacB.At(1, col), jacB.At(2, col)}
			grad[col] += ct.Normal.Dot(v)
		}
	}
	return grad, nil
}

// linkPointJacobian returns the world-frame geometric Jacobian of a scene
// link, with its reference point moved to the given world point.
func (e *CollisionEvaluator) linkPointJacobian(joints []float64, linkName string, worldPoint r3.Vector) (*mat.Dense, error) {
	m := e.adjacency.Mapping(linkName)
	fkPose, err := e.manip.Pose(joints, m.LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "posing link %q", linkName)
	}
	jac, err := e.manip.Jacobian(joints, m.LinkName)
	if err != nil {
		return nil, errors.Wrapf(err, "jacobian of link %q", linkName)
	}
	kinematics.JacobianChangeBase(jac, e.worldToBase)
	linkOrigin := spatialmath.Compose(e.worldToBase, fkPose).Point()
	kinematics.JacobianChangeRefPoint(jac, worldPoint.Sub(linkOrigin))
	return jac, nil
}

// numericDistanceGradient central-differences the pair's signed distance
// with respect to each joint.
func (e *CollisionEvaluator) numericDistanceGradient(joints []float64, ct collision.Contact) ([]float64, error) {
	nDOF := e.manip.NumJoints()
	grad := make([]float64, nDOF)
	perturbed := append([]float64(nil), joints...)
	for col := 0; col < nDOF; col++ {
		perturbed[col] = joints[col] + numericDiffStep
		plus, err := e.pairDistance(perturbed, ct.LinkA, ct.LinkB)
		if err != nil {
			return nil, err
		}
		perturbed[col] = joints[col] - numericDiffStep
		minus, err := e.pairDistance(perturbed, ct.LinkA, ct.LinkB)
		if err != nil {
			return nil, err
		}
		perturbed[col] = joints[col]
		grad[col] = (plus - minus) / (2 * numericDiffStep)
	}
	return grad, nil
}

// pairDistance re-queries the engine with an unbounded threshold and picks
// out the named pair.
func (e *CollisionEvaluator) pairDistance(joints []float64, linkA, linkB string) (float64, error) {
	poses, err := e.linkPoses(joints)
	if err != nil {
		return 0, err
	}
	contacts, err := e.engine.ContactTest(poses, math.Inf(1), collision.ContactTestAll)
	if err != nil {
		return 0, err
	}
	want := newPairKey(linkA, linkB)
	for _, ct := range contacts {
		if newPairKey(ct.LinkA, ct.LinkB) == want {
			return ct.Distance, nil
		}
	}
	return 0, errors.Errorf("engine no longer reports pair %q/%q", linkA, linkB)
}

// CollisionConstraint adapts a CollisionEvaluator to the solver's
// constraint-set contract for one variable. Row count is fixed at
// construction: one row in closest-contact mode, a capacity in all-contacts
// mode. When the evaluator reports more contacts than rows, the most
// violating contacts are kept; fewer, and the remaining rows read zero,
// which sits exactly on the (-inf, 0] bound.
type CollisionConstraint struct {
	name        string
	evaluator   *CollisionEvaluator
	positionVar *JointPositionVariable
	rows        int
	bounds      []nlp.Bounds
	logger      logging.Logger
}

// NewCollisionConstraint wires an evaluator to a variable. maxContacts caps
// the row count in all-contacts mode and is ignored in closest mode. The
// variable's dimensionality must match the evaluator's manipulator.
func NewCollisionConstraint(
	evaluator *CollisionEvaluator,
	positionVar *JointPositionVariable,
	maxContacts int,
	name string,
	logger logging.Logger,
) (*CollisionConstraint, error) {
	if positionVar.Rows() != evaluator.manip.NumJoints() {
		return nil, errors.Errorf("constraint %q: variable %q has %d joints, manipulator has %d",
			name, positionVar.Name(), positionVar.Rows(), evaluator.manip.NumJoints())
	}
	rows := 1
	if evaluator.Mode() == collision.ContactTestAll {
		if maxContacts <= 0 {
			return nil, errors.Errorf("constraint %q: all-contacts mode needs a positive contact capacity", name)
		}
		rows = maxContacts
	}
	bounds := make([]nlp.Bounds, rows)
	for i := range bounds {
		bounds[i] = nlp.BoundSmallerZero
	}
	return &CollisionConstraint{
		name:        name,
		evaluator:   evaluator,
		positionVar: positionVar,
		rows:        rows,
		bounds:      bounds,
		logger:      logger,
	}, nil
}

// Name returns the constraint's name.
func (c *CollisionConstraint) Name() string { return c.name }

// Rows returns the fixed residual count.
func (c *CollisionConstraint) Rows() int { return c.rows }

// Bounds returns (-inf, 0] for every row.
func (c *CollisionConstraint) Bounds() []nlp.Bounds {
	return append([]nlp.Bounds(nil), c.bounds...)
}

// topIndices orders residual indices by decreasing violation and keeps at
// most c.rows of them.
func (c *CollisionConstraint) topIndices(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	if len(idx) > c.rows {
		idx = idx[:c.rows]
	}
	return idx
}

// Values returns the most violating residuals at the variable's current
// joint values, zero-padded to the fixed row count.
func (c *CollisionConstraint) Values() ([]float64, error) {
	values, err := c.evaluator.CalcValues(c.positionVar.Values())
	if err != nil {
		return nil, errors.Wrapf(err, "constraint %q", c.name)
	}
	out := make([]float64, c.rows)
	for i, vi := range c.topIndices(values) {
		out[i] = values[vi]
	}
	return out, nil
}

// FillJacobianBlock writes the Jacobian rows of the selected contacts when
// varName matches this constraint's variable, and is a no-op otherwise.
func (c *CollisionConstraint) FillJacobianBlock(varName string, block *mat.Dense) error {
	if varName != c.positionVar.Name() {
		return nil
	}
	joints := c.positionVar.Values()
	contacts, err := c.evaluator.CalcContacts(joints)
	if err != nil {
		return errors.Wrapf(err, "constraint %q", c.name)
	}
	jac, err := c.evaluator.contactJacobian(joints, contacts)
	if err != nil {
		return errors.Wrapf(err, "constraint %q", c.name)
	}
	values := c.evaluator.residuals(contacts)
	for row, vi := range c.topIndices(values) {
		for col := 0; col < c.positionVar.Rows(); col++ {
			block.Set(row, col, jac.At(vi, col))
		}
	}
	return nil
}

var _ nlp.ConstraintSet = (*CollisionConstraint)(nil)
