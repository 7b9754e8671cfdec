//go:build exclude
// +build exclude

//==============================================================================
// ifhighs: Interface Functions for HiGHS

// Any code which makes use of the lanl/highs package is in this file. This
// keeps the rest of the package independent of the HiGHS installation. If
// HiGHS is not installed, exclude this file from the build and plug in a
// different SubSolver.

package gcg

import (
	"context"
	"math"

	"github.com/lanl/highs"
	"github.com/pkg/errors"
)

// HighsSolver solves sub-problems through the HiGHS callable library. The
// zero value is ready to use. Distinct Problem values may be solved from
// distinct goroutines; each Solve call builds its own highs.Model.
//
// Of the SolveLimits only Relaxation is honored: the lanl/highs model
// structure exposes no time or node option, so Time and Nodes are not
// forwarded. Reported objectives include the problem's constant term, as
// SolveResult requires (HiGHS folds the model offset into its objective).
type HighsSolver struct{}

// Solve implements SubSolver.
func (s *HighsSolver) Solve(ctx context.Context, p *Problem, lim SolveLimits) (*SolveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Vars) == 0 {
		return nil, errors.Errorf("problem %s has no variables", p.Name)
	}

	model := s.buildModel(p, lim)
	sol, err := model.Solve()
	if err != nil {
		return nil, errors.Wrapf(err, "HiGHS failed to solve %s", p.Name)
	}

	res := &SolveResult{Objective: sol.Objective}
	switch sol.Status {
	case highs.Optimal:
		res.Status = StatusOptimal
		res.ColValues = sol.ColumnPrimal
		res.RowDuals = sol.RowDual
	case highs.Infeasible:
		res.Status = StatusInfeasible
		// HiGHS exposes no Farkas certificate through this wrapper; the
		// coordinator falls back to reporting the master as infeasible.
	case highs.Unbounded:
		res.Status = StatusUnbounded
	default:
		return nil, errors.Errorf("HiGHS returned status %s for %s", sol.Status.String(), p.Name)
	}
	return res, nil
}

// buildModel translates a Problem into the HiGHS model structure. For
// relaxation solves the integrality marks are dropped.
func (s *HighsSolver) buildModel(p *Problem, lim SolveLimits) *highs.Model {
	n := len(p.Vars)
	model := &highs.Model{
		Maximize: p.Maximize,
		Offset:   p.ObjConst,
		ColCosts: make([]float64, n),
		ColLower: make([]float64, n),
		ColUpper: make([]float64, n),
	}

	mip := false
	for i, v := range p.Vars {
		model.ColCosts[i] = v.Obj
		model.ColLower[i] = v.Lb
		model.ColUpper[i] = v.Ub
		if v.Type != ContinuousVar {
			mip = true
		}
	}
	if mip && !lim.Relaxation {
		model.VarTypes = make([]highs.VariableType, n)
		for i, v := range p.Vars {
			switch v.Type {
			case IntegerVar, BinaryVar:
				model.VarTypes[i] = highs.IntegerType
				if v.Type == BinaryVar {
					model.ColLower[i] = math.Max(model.ColLower[i], 0)
					model.ColUpper[i] = math.Min(model.ColUpper[i], 1)
				}
			}
		}
	}

	for row, c := range p.Conss {
		model.RowLower = append(model.RowLower, c.Lhs)
		model.RowUpper = append(model.RowUpper, c.Rhs)
		for _, t := range c.Terms {
			model.ConstMatrix = append(model.ConstMatrix, highs.Nonzero{
				Row: row,
				Col: t.Var.Index,
				Val: t.Coef,
			})
		}
	}
	return model
}
