// Package solver drives an nlp.Problem toward feasibility with SLSQP from
// nlopt, using an exterior quadratic penalty on constraint-bound violations
// whose gradient is chained through the constraints' Jacobian blocks.
package solver

import (
	"context"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/rdk/logging"

	"go.viam.com/trajopt/nlp"
)

var errNoSolve = errors.New("solver could not reach a feasible point")

const (
	defaultMaxEvaluations = 5000
	defaultEpsilon        = 1e-8
)

// Options tune a Solve run. Zero values select defaults.
type Options struct {
	// MaxEvaluations caps objective evaluations.
	MaxEvaluations int
	// Epsilon is both the convergence tolerance and the feasibility
	// threshold on the final penalty.
	Epsilon float64
}

type solveResult struct {
	solution []float64
	penalty  float64
	err      error
}

// Solve minimizes the squared bound violation of every constraint in the
// problem, starting from the problem's current iterate. On success the
// problem's variables hold the solution, which is also returned.
func Solve(ctx context.Context, problem *nlp.Problem, logger logging.Logger, opts Options) ([]float64, error) {
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = defaultMaxEvaluations
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = defaultEpsilon
	}

	nVars := problem.NumVariables()
	if nVars == 0 {
		return nil, errors.New("problem has no decision variables")
	}
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(nVars))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	bounds := problem.ConstraintBounds()
	objective := func(x, gradient []float64) float64 {
		penalty, grad, evalErr := penaltyAt(problem, bounds, x)
		if evalErr != nil {
			logger.Errorw("error evaluating constraints", "error", evalErr)
			if stopErr := opt.ForceStop(); stopErr != nil {
				logger.Errorw("forcestop error", "error", stopErr)
			}
			return 0
		}
		copy(gradient, grad)
		return penalty
	}

	err = multierr.Combine(
		opt.SetFtolRel(opts.Epsilon),
		opt.SetFtolAbs(opts.Epsilon),
		opt.SetXtolRel(opts.Epsilon),
		opt.SetStopVal(opts.Epsilon*opts.Epsilon),
		opt.SetMaxEval(opts.MaxEvaluations),
		opt.SetMinObjective(objective),
	)
	if err != nil {
		return nil, err
	}

	resultChan := make(chan *solveResult, 1)
	utils.PanicCapturingGo(func() {
		solution, penalty, optErr := opt.Optimize(problem.VariableValues())
		resultChan <- &solveResult{solution, penalty, optErr}
	})

	var result *solveResult
	select {
	case <-ctx.Done():
		err = multierr.Combine(opt.ForceStop(), ctx.Err())
		<-resultChan
		return nil, err
	case result = <-resultChan:
	}
	if result.solution == nil {
		return nil, multierr.Combine(result.err, errNoSolve)
	}
	if result.penalty > opts.Epsilon {
		return nil, multierr.Combine(result.err, errors.Wrapf(errNoSolve, "final penalty %g", result.penalty))
	}
	if err := problem.SetVariableValues(result.solution); err != nil {
		return nil, err
	}
	return result.solution, nil
}

// penaltyAt evaluates the exterior penalty sum(violation^2) and its
// gradient at the given iterate. The violation of component i is the
// distance of its residual from the interval [lower, upper]; its gradient
// follows from the corresponding Jacobian row with a sign for which side of
// the interval was crossed.
func penaltyAt(problem *nlp.Problem, bounds []nlp.Bounds, x []float64) (float64, []float64, error) {
	if err := problem.SetVariableValues(x); err != nil {
		return 0, nil, err
	}
	values, err := problem.ConstraintValues()
	if err != nil {
		return 0, nil, err
	}
	jac, err := problem.Jacobian()
	if err != nil {
		return 0, nil, err
	}

	penalty := 0.
	grad := make([]float64, len(x))
	for i, v := range values {
		var viol float64
		switch {
		case v > bounds[i].Upper:
			viol = v - bounds[i].Upper
		case v < bounds[i].Lower:
			viol = v - bounds[i].Lower
		default:
			continue
		}
		penalty += viol * viol
		for j := range grad {
			grad[j] += 2 * viol * jac.At(i, j)
		}
	}
	return penalty, grad, nil
}
