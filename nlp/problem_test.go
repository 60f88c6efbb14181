package nlp

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

type stubVariable struct {
	name   string
	values []float64
}

func (v *stubVariable) Name() string      { return v.name }
func (v *stubVariable) Rows() int         { return len(v.values) }
func (v *stubVariable) Values() []float64 { return append([]float64(nil), v.values...) }
func (v *stubVariable) SetValues(values []float64) error {
	if len(values) != len(v.values) {
		return errors.New("length mismatch")
	}
	copy(v.values, values)
	return nil
}

// stubConstraint depends linearly on a single variable.
type stubConstraint struct {
	name    string
	varName string
	rows    int
	weights []float64
}

func (c *stubConstraint) Name() string { return c.name }
func (c *stubConstraint) Rows() int    { return c.rows }
func (c *stubConstraint) Values() ([]float64, error) {
	return make([]float64, c.rows), nil
}
func (c *stubConstraint) Bounds() []Bounds {
	bounds := make([]Bounds, c.rows)
	for i := range bounds {
		bounds[i] = BoundZero
	}
	return bounds
}

func (c *stubConstraint) FillJacobianBlock(varName string, block *mat.Dense) error {
	if varName != c.varName {
		return nil
	}
	_, cols := block.Dims()
	for i := 0; i < c.rows; i++ {
		for j := 0; j < cols; j++ {
			block.Set(i, j, c.weights[i*cols+j])
		}
	}
	return nil
}

func TestProblemVariables(t *testing.T) {
	p := NewProblem()
	test.That(t, p.AddVariableSet(&stubVariable{"a", []float64{1, 2}}), test.ShouldBeNil)
	test.That(t, p.AddVariableSet(&stubVariable{"b", []float64{3, 4, 5}}), test.ShouldBeNil)
	test.That(t, p.AddVariableSet(&stubVariable{"a", []float64{9}}), test.ShouldNotBeNil)

	test.That(t, p.NumVariables(), test.ShouldEqual, 5)
	test.That(t, p.VariableValues(), test.ShouldResemble, []float64{1, 2, 3, 4, 5})

	test.That(t, p.SetVariableValues([]float64{5, 4, 3, 2, 1}), test.ShouldBeNil)
	test.That(t, p.VariableSet("b").Values(), test.ShouldResemble, []float64{3, 2, 1})
	test.That(t, p.SetVariableValues([]float64{1, 2}), test.ShouldNotBeNil)
}

func TestProblemJacobianAssembly(t *testing.T) {
	p := NewProblem()
	test.That(t, p.AddVariableSet(&stubVariable{"a", []float64{0, 0}}), test.ShouldBeNil)
	test.That(t, p.AddVariableSet(&stubVariable{"b", []float64{0, 0, 0}}), test.ShouldBeNil)

	p.AddConstraintSet(&stubConstraint{name: "onA", varName: "a", rows: 1, weights: []float64{7, 8}})
	p.AddConstraintSet(&stubConstraint{name: "onB", varName: "b", rows: 2, weights: []float64{1, 2, 3, 4, 5, 6}})

	jac, err := p.Jacobian()
	test.That(t, err, test.ShouldBeNil)
	rows, cols := jac.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 5)

	// First constraint lands in a's columns, first row.
	test.That(t, jac.At(0, 0), test.ShouldEqual, 7)
	test.That(t, jac.At(0, 1), test.ShouldEqual, 8)
	test.That(t, jac.At(0, 2), test.ShouldEqual, 0)

	// Second constraint lands in b's columns at row offset 1.
	test.That(t, jac.At(1, 2), test.ShouldEqual, 1)
	test.That(t, jac.At(1, 4), test.ShouldEqual, 3)
	test.That(t, jac.At(2, 2), test.ShouldEqual, 4)
	test.That(t, jac.At(2, 4), test.ShouldEqual, 6)
	test.That(t, jac.At(1, 0), test.ShouldEqual, 0)
}

func TestTargetBounds(t *testing.T) {
	bounds := NewTargetBounds([]float64{1.5, -2})
	test.That(t, bounds, test.ShouldResemble, []Bounds{{1.5, 1.5}, {-2, -2}})
}
