package trajopt

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rdk/logging"

	"go.viam.com/trajopt/nlp"
)

// JointPositionConstraint bounds joint values directly, one block of nDOF
// residuals per referenced variable, concatenated in list order. Its
// Jacobian is the identity on each variable's own block: residual i of
// block k depends only on joint i of variable k, with unit slope.
type JointPositionConstraint struct {
	name         string
	nDOF         int
	nVars        int
	bounds       []nlp.Bounds
	positionVars []*JointPositionVariable
	logger       logging.Logger
}

// NewJointPositionConstraint pins every listed variable to the given target
// joint vector, encoded as per-joint equality bounds.
func NewJointPositionConstraint(
	targets []float64,
	positionVars []*JointPositionVariable,
	name string,
	logger logging.Logger,
) (*JointPositionConstraint, error) {
	return newJointPositionConstraint(nlp.NewTargetBounds(targets), positionVars, name, logger)
}

// NewJointPositionConstraintFromBounds applies the given per-joint bound
// list (length nDOF) to every listed variable.
func NewJointPositionConstraintFromBounds(
	bounds []nlp.Bounds,
	positionVars []*JointPositionVariable,
	name string,
	logger logging.Logger,
) (*JointPositionConstraint, error) {
	return newJointPositionConstraint(bounds, positionVars, name, logger)
}

func newJointPositionConstraint(
	bounds []nlp.Bounds,
	positionVars []*JointPositionVariable,
	name string,
	logger logging.Logger,
) (*JointPositionConstraint, error) {
	if len(positionVars) == 0 {
		return nil, errors.Errorf("constraint %q: no position variables", name)
	}
	nDOF := positionVars[0].Rows()
	if nDOF <= 0 {
		return nil, errors.Errorf("constraint %q: variable %q has no joints", name, positionVars[0].Name())
	}
	for _, v := range positionVars[1:] {
		if v.Rows() != nDOF {
			return nil, errors.Errorf("constraint %q: variable %q has %d joints, expected %d",
				name, v.Name(), v.Rows(), nDOF)
		}
	}
	if len(bounds) != nDOF {
		return nil, errors.Errorf("constraint %q: bound list has %d entries, expected %d", name, len(bounds), nDOF)
	}
	full := make([]nlp.Bounds, 0, nDOF*len(positionVars))
	for range positionVars {
		full = append(full, bounds...)
	}
	return &JointPositionConstraint{
		name:         name,
		nDOF:         nDOF,
		nVars:        len(positionVars),
		bounds:       full,
		positionVars: append([]*JointPositionVariable(nil), positionVars...),
		logger:       logger,
	}, nil
}

// Name returns the constraint's name.
func (c *JointPositionConstraint) Name() string { return c.name }

// Rows returns nDOF times the number of referenced variables.
func (c *JointPositionConstraint) Rows() int { return c.nDOF * c.nVars }

// Values concatenates every variable's current joint values in list order.
func (c *JointPositionConstraint) Values() ([]float64, error) {
	values := make([]float64, 0, c.Rows())
	for _, v := range c.positionVars {
		values = append(values, v.Values()...)
	}
	return values, nil
}

// Bounds returns the concatenated bound list.
func (c *JointPositionConstraint) Bounds() []nlp.Bounds {
	return append([]nlp.Bounds(nil), c.bounds...)
}

// FillJacobianBlock sets the identity on the sub-block of every variable in
// the list matching varName, at that variable's row offset.
func (c *JointPositionConstraint) FillJacobianBlock(varName string, block *mat.Dense) error {
	for i, v := range c.positionVars {
		if v.Name() != varName {
			continue
		}
		for j := 0; j < c.nDOF; j++ {
			block.Set(i*c.nDOF+j, j, 1)
		}
	}
	return nil
}

var _ nlp.ConstraintSet = (*JointPositionConstraint)(nil)
