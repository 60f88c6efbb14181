// Package nlp defines the contracts between trajectory constraints and a
// generic nonlinear-programming solver: named variable sets the solver
// mutates, constraint sets that report residuals, bounds, and sparse
// Jacobian blocks, and a Problem container aggregating both.
package nlp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bounds is the allowable interval for a single residual or variable
// component. An equality constraint is encoded as Lower == Upper.
type Bounds struct {
	Lower float64
	Upper float64
}

// Commonly used bound intervals.
var (
	// BoundZero constrains a component to be exactly zero.
	BoundZero = Bounds{0, 0}
	// BoundUnbounded leaves a component unconstrained.
	BoundUnbounded = Bounds{math.Inf(-1), math.Inf(1)}
	// BoundSmallerZero constrains a component to be nonpositive.
	BoundSmallerZero = Bounds{math.Inf(-1), 0}
	// BoundGreaterZero constrains a component to be nonnegative.
	BoundGreaterZero = Bounds{0, math.Inf(1)}
)

// NewTargetBounds returns equality bounds pinning each component to the
// corresponding target value.
func NewTargetBounds(targets []float64) []Bounds {
	bounds := make([]Bounds, 0, len(targets))
	for _, t := range targets {
		bounds = append(bounds, Bounds{t, t})
	}
	return bounds
}

// VariableSet is a named, ordered vector of decision variables. The solver is
// the only mutator; constraints read the current iterate through Values.
type VariableSet interface {
	// Name is the stable identity of this variable set within a problem.
	Name() string
	// Rows is the number of components.
	Rows() int
	// Values returns a copy of the current iterate.
	Values() []float64
	// SetValues replaces the current iterate. The given slice must have
	// exactly Rows components.
	SetValues(values []float64) error
}

// ConstraintSet produces residuals, bounds and Jacobian blocks for the
// current values of the variable sets it references.
type ConstraintSet interface {
	Name() string
	// Rows is the number of residual components.
	Rows() int
	// Values returns the residual vector for the current iterate.
	Values() ([]float64, error)
	// Bounds returns the per-component allowable intervals, length Rows.
	Bounds() []Bounds
	// FillJacobianBlock writes the partial derivatives of the residuals with
	// respect to the named variable set into block, which the caller sizes
	// Rows x (variable Rows) and zeroes beforehand. A variable name this
	// constraint does not reference is not an error; the block is left
	// untouched.
	FillJacobianBlock(varName string, block *mat.Dense) error
}
