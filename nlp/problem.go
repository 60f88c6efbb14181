package nlp

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Problem is an ordered registry of variable sets and constraint sets. It
// concatenates variable values, residuals and bounds in registration order
// and assembles the overall constraint Jacobian from per-variable blocks.
// It performs no locking; the solver is the single mutator.
type Problem struct {
	variables   []VariableSet
	varsByName  map[string]VariableSet
	constraints []ConstraintSet
}

// NewProblem returns an empty Problem.
func NewProblem() *Problem {
	return &Problem{varsByName: map[string]VariableSet{}}
}

// AddVariableSet registers a variable set. Variable names identify Jacobian
// blocks, so a duplicate name is a configuration error.
func (p *Problem) AddVariableSet(v VariableSet) error {
	if _, ok := p.varsByName[v.Name()]; ok {
		return errors.Errorf("variable set %q already registered", v.Name())
	}
	p.variables = append(p.variables, v)
	p.varsByName[v.Name()] = v
	return nil
}

// AddConstraintSet registers a constraint set.
func (p *Problem) AddConstraintSet(c ConstraintSet) {
	p.constraints = append(p.constraints, c)
}

// VariableSet returns the registered variable set with the given name, or nil.
func (p *Problem) VariableSet(name string) VariableSet {
	return p.varsByName[name]
}

// NumVariables returns the total number of decision variable components.
func (p *Problem) NumVariables() int {
	n := 0
	for _, v := range p.variables {
		n += v.Rows()
	}
	return n
}

// NumConstraints returns the total number of residual components.
func (p *Problem) NumConstraints() int {
	n := 0
	for _, c := range p.constraints {
		n += c.Rows()
	}
	return n
}

// VariableValues concatenates the current values of all variable sets in
// registration order.
func (p *Problem) VariableValues() []float64 {
	values := make([]float64, 0, p.NumVariables())
	for _, v := range p.variables {
		values = append(values, v.Values()...)
	}
	return values
}

// SetVariableValues scatters a full iterate back into the variable sets.
func (p *Problem) SetVariableValues(values []float64) error {
	if len(values) != p.NumVariables() {
		return errors.Errorf("expected %d variable values, got %d", p.NumVariables(), len(values))
	}
	offset := 0
	for _, v := range p.variables {
		if err := v.SetValues(values[offset : offset+v.Rows()]); err != nil {
			return err
		}
		offset += v.Rows()
	}
	return nil
}

// ConstraintValues concatenates the residuals of all constraint sets in
// registration order.
func (p *Problem) ConstraintValues() ([]float64, error) {
	values := make([]float64, 0, p.NumConstraints())
	for _, c := range p.constraints {
		v, err := c.Values()
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating constraint %q", c.Name())
		}
		values = append(values, v...)
	}
	return values, nil
}

// ConstraintBounds concatenates the bounds of all constraint sets in
// registration order.
func (p *Problem) ConstraintBounds() []Bounds {
	bounds := make([]Bounds, 0, p.NumConstraints())
	for _, c := range p.constraints {
		bounds = append(bounds, c.Bounds()...)
	}
	return bounds
}

// Jacobian assembles the dense NumConstraints x NumVariables Jacobian of all
// constraints at the current iterate. Each constraint fills one zeroed block
// per variable set; blocks land at the row offset of the constraint and the
// column offset of the variable.
func (p *Problem) Jacobian() (*mat.Dense, error) {
	jac := mat.NewDense(p.NumConstraints(), p.NumVariables(), nil)
	rowOffset := 0
	for _, c := range p.constraints {
		colOffset := 0
		for _, v := range p.variables {
			block := mat.NewDense(c.Rows(), v.Rows(), nil)
			if err := c.FillJacobianBlock(v.Name(), block); err != nil {
				return nil, errors.Wrapf(err, "filling jacobian block of %q for %q", c.Name(), v.Name())
			}
			for i := 0; i < c.Rows(); i++ {
				for j := 0; j < v.Rows(); j++ {
					jac.Set(rowOffset+i, colOffset+j, block.At(i, j))
				}
			}
			colOffset += v.Rows()
		}
		rowOffset += c.Rows()
	}
	return jac, nil
}
