package gcg

// transform: the two solution-transformation algorithms. TransOrigToMaster
// maps a point in original space onto the current master columns;
// TransMasterToOrig reconstructs an original-space solution from a weighted
// combination of master columns, surfacing the convexity-constraint
// semantics in variable space. All comparisons use the feasibility
// tolerance, never exact equality.

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TransOrigToMaster computes the master-space coefficients equivalent to a
// given original-space vector: entry m of the result is the accumulated
// weight of master variable m. Hosts use it when injecting externally
// generated cuts into the master. The result is dense and aligned with the
// master problem's variables.
func (d *Decomp) TransOrigToMaster(vars []*Variable, vals []float64) (*mat.VecDense, error) {
	if !d.built {
		return nil, errors.New("decomposition not built")
	}
	if len(vars) != len(vals) {
		return nil, errors.Errorf("got %d variables but %d values", len(vars), len(vals))
	}
	if len(d.master.Prob.Vars) == 0 {
		return nil, errors.New("master problem has no variables")
	}

	out := mat.NewVecDense(len(d.master.Prob.Vars), nil)
	for i, ov := range vars {
		if vals[i] == 0 {
			continue
		}
		od, err := origData(ov)
		if err != nil {
			return nil, errors.Wrap(err, "TransOrigToMaster failed")
		}

		if od.Block == BlockUnassigned {
			// direct transfer: exactly one master variable, coefficient 1
			for _, wm := range od.MasterVars {
				out.SetVec(wm.Var.Index, out.AtVec(wm.Var.Index)+vals[i]*wm.Coef)
			}
			continue
		}

		if od.Block == BlockLinking {
			// the linking rows force every block's columns to carry the
			// same value, so the reference block's columns represent the
			// variable exactly once
			ref := linkingRefBlock(od)
			for _, wm := range od.MasterVars {
				wmd, err := masterData(wm.Var)
				if err != nil {
					return nil, err
				}
				if wmd.Block != ref {
					continue
				}
				out.SetVec(wm.Var.Index, out.AtVec(wm.Var.Index)+vals[i]*wm.Coef)
			}
			continue
		}

		pv := od.PricingVar
		if pv == nil {
			return nil, &InvariantError{Block: od.Block, Var: ov.Name,
				Msg: "block variable has no pricing counterpart"}
		}

		// distribute through the aggregation-class representative
		rep := pv.Data.(*PricingVarData).OrigVars[0]
		for _, wm := range rep.Data.(*OrigVarData).MasterVars {
			out.SetVec(wm.Var.Index, out.AtVec(wm.Var.Index)+vals[i]*wm.Coef)
		}
	}
	return out, nil
}

// TransMasterToOrig reconstructs an original-space solution from a master
// solution given as a dense weight vector aligned with the master problem's
// variables. Processing is three-phase:
//
//  1. ray columns contribute value*coordinate directly and are consumed;
//  2. integral weight is consumed unit by unit, each unit filling the next
//     copy of the owning block;
//  3. fractional weight is packed copy by copy, so each of the block's
//     multiplicity-many copies ends up with total weight one.
//
// The result does not depend on the order of master variables as long as
// the input satisfies the convexity constraints.
func (d *Decomp) TransMasterToOrig(masterVals []float64) (map[*Variable]float64, error) {
	if !d.built {
		return nil, errors.New("decomposition not built")
	}
	if len(masterVals) != len(d.master.Prob.Vars) {
		return nil, errors.Errorf("master solution has %d entries, master has %d variables",
			len(masterVals), len(d.master.Prob.Vars))
	}
	tol := d.Settings.Tolerance

	vals := make([]float64, len(masterVals))
	copy(vals, masterVals)

	sol := make(map[*Variable]float64, len(d.Orig.Vars))
	blockvalue := make([]float64, len(d.pricing))
	blocknr := make([]int, len(d.pricing))

	// ray pass: rays contribute unboundedly, outside convexity accounting
	for idx, mv := range d.master.Prob.Vars {
		md := mv.Data.(*MasterVarData)
		if !md.IsRay || vals[idx] <= tol {
			continue
		}
		for k, ov := range md.OrigVars {
			if replicaSkipped(ov, md.Block) {
				continue
			}
			sol[ov] += vals[idx] * md.OrigVals[k]
		}
		vals[idx] = 0
	}

	// integral pass: whole units of block capacity, one copy per unit
	for idx, mv := range d.master.Prob.Vars {
		md := mv.Data.(*MasterVarData)
		if md.IsRay {
			continue
		}
		if md.IsArtificial {
			// bootstrap columns have no original-space image
			vals[idx] = 0
			continue
		}
		if md.Block == BlockUnassigned {
			if vals[idx] > tol || vals[idx] < -tol {
				sol[md.OrigVars[0]] += vals[idx] * md.OrigVals[0]
			}
			vals[idx] = 0
			continue
		}
		for vals[idx] >= 1-tol {
			for k, ov := range md.OrigVars {
				if replicaSkipped(ov, md.Block) {
					continue
				}
				target, err := d.copyTarget(ov, blocknr[md.Block])
				if err != nil {
					return nil, err
				}
				sol[target] += md.OrigVals[k]
			}
			vals[idx] -= 1
			blocknr[md.Block]++
		}
	}

	// fractional pass: pack remaining weight so each copy fills to one
	for idx, mv := range d.master.Prob.Vars {
		md := mv.Data.(*MasterVarData)
		if md.IsRay || md.Block == BlockUnassigned {
			continue
		}
		b := md.Block
		for vals[idx] > tol {
			increase := vals[idx]
			if blocknr[b] < d.multiplicity[b] {
				increase = math.Min(vals[idx], 1-blockvalue[b])
			}
			for k, ov := range md.OrigVars {
				if replicaSkipped(ov, md.Block) {
					continue
				}
				target, err := d.copyTarget(ov, blocknr[b])
				if err != nil {
					return nil, err
				}
				sol[target] += increase * md.OrigVals[k]
			}
			vals[idx] -= increase
			blockvalue[b] += increase
			if blockvalue[b] >= 1-tol {
				blockvalue[b] = 0
				blocknr[b]++
			}
		}
	}

	return sol, nil
}

// replicaSkipped reports whether a linking variable's contribution from a
// column of the given block must be dropped. The linking rows force every
// touched block's columns to carry the same value for the variable, so only
// the reference block's columns contribute, once.
func replicaSkipped(ov *Variable, block int) bool {
	od, ok := ov.Data.(*OrigVarData)
	return ok && od.Block == BlockLinking && block != linkingRefBlock(od)
}

// copyTarget returns the original variable receiving the given copy of ov's
// contribution: the copy-th entry of the represented-originals list of ov's
// pricing counterpart. An index beyond the list collapses onto the last
// entry; this mirrors the reference behavior for numerical slack beyond the
// expected multiplicity and is deliberately not extended further.
func (d *Decomp) copyTarget(ov *Variable, copyIdx int) (*Variable, error) {
	od, err := origData(ov)
	if err != nil {
		return nil, err
	}
	if od.Block == BlockLinking {
		// a block carrying a linking variable is never aggregated, so the
		// contribution lands on the variable itself
		return ov, nil
	}
	pv := od.PricingVar
	if pv == nil {
		return nil, &InvariantError{Block: od.Block, Var: ov.Name,
			Msg: "block variable has no pricing counterpart"}
	}
	list := pv.Data.(*PricingVarData).OrigVars
	if copyIdx >= len(list) {
		copyIdx = len(list) - 1
	}
	return list[copyIdx], nil
}

//==============================================================================
// FEASIBILITY AND OBJECTIVE CHECKS
//==============================================================================

// checkOrigFeasible verifies the reconstructed solution against the
// original problem: variable bounds, integrality, and all constraints,
// each within tolerance.
func (d *Decomp) checkOrigFeasible(sol map[*Variable]float64) bool {
	tol := d.Settings.Tolerance

	for _, v := range d.Orig.Vars {
		x := sol[v]
		if x < v.Lb-tol || x > v.Ub+tol {
			return false
		}
		if v.Type != ContinuousVar && math.Abs(x-math.Round(x)) > tol {
			return false
		}
	}
	for _, c := range d.Orig.Conss {
		act := c.Activity(sol)
		if act < c.Lhs-tol || act > c.Rhs+tol {
			return false
		}
	}
	return true
}

// origObjValue evaluates the original objective at sol.
func (d *Decomp) origObjValue(sol map[*Variable]float64) float64 {
	obj := d.Orig.ObjConst
	for _, v := range d.Orig.Vars {
		obj += v.Obj * sol[v]
	}
	return obj
}
