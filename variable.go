// Package trajopt formulates trajectory-optimization constraints: it turns
// a robot's kinematic and collision state at a configuration into residual
// vectors, bound intervals and sparse Jacobian blocks consumable by a
// generic nonlinear-programming solver. Forward kinematics, collision
// detection and the solver itself are external collaborators; this layer is
// only the numerical glue between them.
package trajopt

import (
	"github.com/pkg/errors"

	"go.viam.com/trajopt/nlp"
)

// JointPositionVariable is the decision-variable block for one timestep: a
// named, ordered vector of joint values. The solver is its only mutator;
// constraints referencing it read the current iterate through Values.
type JointPositionVariable struct {
	name   string
	values []float64
}

// NewJointPositionVariable returns a variable seeded with the given joint
// values. The name must be unique within a problem; it is how constraints
// claim their block of the overall Jacobian.
func NewJointPositionVariable(values []float64, name string) *JointPositionVariable {
	return &JointPositionVariable{name: name, values: append([]float64(nil), values...)}
}

// Name returns the variable's stable identity.
func (v *JointPositionVariable) Name() string {
	return v.name
}

// Rows returns the number of joint values.
func (v *JointPositionVariable) Rows() int {
	return len(v.values)
}

// Values returns a copy of the current joint values.
func (v *JointPositionVariable) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// SetValues replaces the current joint values; the replacement must have the
// same dimensionality.
func (v *JointPositionVariable) SetValues(values []float64) error {
	if len(values) != len(v.values) {
		return errors.Errorf("variable %q holds %d joint values, cannot set %d", v.name, len(v.values), len(values))
	}
	copy(v.values, values)
	return nil
}

var _ nlp.VariableSet = (*JointPositionVariable)(nil)
