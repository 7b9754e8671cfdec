package gcg

// aggregate: detects structurally identical pricing blocks and merges their
// representation, so only one representative sub-problem is priced per
// equivalence class. Identity testing is delegated to a BlockIdentityOracle;
// this file owns only the merge bookkeeping and the exclusion rules.

import (
	"math"

	"github.com/pkg/errors"
)

// BlockIdentityOracle decides whether two pricing blocks are structurally
// identical, returning the variable correspondence that witnesses it: a map
// from a's pricing variables onto b's. Implementations backed by graph
// automorphism detection plug in here; the package default is a pairwise
// structural comparison.
type BlockIdentityOracle interface {
	AreIdentical(a, b *PricingProblem) (bool, map[*Variable]*Variable, error)
}

// checkIdenticalBlocks greedily merges identical blocks in index order:
// each block i is tested against every lower-indexed block j that still
// represents itself, and merged into the first match. Blocks touching a
// linking variable are never merged, because each replica must remain
// individually addressable.
func (d *Decomp) checkIdenticalBlocks() error {
	for i := 1; i < len(d.pricing); i++ {
		if d.blockHasLinking(i) {
			continue
		}
		for j := 0; j < i; j++ {
			if d.representative[j] != j || d.blockHasLinking(j) {
				continue
			}
			ident, phi, err := d.Oracle.AreIdentical(d.pricing[i], d.pricing[j])
			if err != nil {
				return errors.Wrapf(err, "identity check of blocks %d and %d failed", i, j)
			}
			if !ident {
				continue
			}
			if err := d.mergeBlocks(i, j, phi); err != nil {
				return err
			}
			d.Log.WithFields(map[string]interface{}{
				"block":          i,
				"representative": j,
				"multiplicity":   d.multiplicity[j],
			}).Debug("aggregated identical pricing blocks")
			break
		}
	}
	return nil
}

// mergeBlocks folds block i into representative j under the correspondence
// phi. Every original variable previously pointing at block i's pricing
// image is redirected to the corresponding image in block j, whose
// represented-originals list grows accordingly.
func (d *Decomp) mergeBlocks(i, j int, phi map[*Variable]*Variable) error {
	for _, pvi := range d.pricing[i].Prob.Vars {
		pvj := phi[pvi]
		if pvj == nil {
			return &InvariantError{Block: i, Var: pvi.Name,
				Msg: "identity correspondence misses a pricing variable"}
		}
		pdi := pvi.Data.(*PricingVarData)
		pdj := pvj.Data.(*PricingVarData)
		for _, ov := range pdi.OrigVars {
			od := ov.Data.(*OrigVarData)
			od.PricingVar = pvj
			pdj.OrigVars = append(pdj.OrigVars, ov)
		}
	}

	d.representative[i] = j
	d.multiplicity[j] += d.multiplicity[i]
	d.multiplicity[i] = 0
	return nil
}

// blockHasLinking reports whether any pricing variable of block b is the
// replica of a linking variable.
func (d *Decomp) blockHasLinking(b int) bool {
	for _, pv := range d.pricing[b].Prob.Vars {
		pd := pv.Data.(*PricingVarData)
		if od, ok := pd.OrigVars[0].Data.(*OrigVarData); ok && od.Block == BlockLinking {
			return true
		}
	}
	return false
}

//==============================================================================
// DEFAULT ORACLE
//==============================================================================

// structuralOracle is the built-in identity check: it pairs the two blocks'
// variables in creation order and verifies that objectives, bounds, types,
// global-constraint participation signatures, and all block constraints
// coincide under that pairing. It finds exactly the identities a symmetric
// model construction produces; permuted-but-identical blocks need an
// automorphism-based oracle.
type structuralOracle struct {
	d *Decomp
}

func (o *structuralOracle) AreIdentical(a, b *PricingProblem) (bool, map[*Variable]*Variable, error) {
	if len(a.Prob.Vars) != len(b.Prob.Vars) || len(a.Prob.Conss) != len(b.Prob.Conss) {
		return false, nil, nil
	}
	tol := o.d.Settings.Tolerance

	phi := make(map[*Variable]*Variable, len(a.Prob.Vars))
	for k, pva := range a.Prob.Vars {
		pvb := b.Prob.Vars[k]
		if !o.varsMatch(pva, pvb, tol) {
			return false, nil, nil
		}
		phi[pva] = pvb
	}

	for k, ca := range a.Prob.Conss {
		cb := b.Prob.Conss[k]
		if !o.conssMatch(ca, cb, phi, tol) {
			return false, nil, nil
		}
	}
	return true, phi, nil
}

// varsMatch compares one candidate variable pair: pricing bounds and type,
// original objective, and the master-constraint participation signature of
// the represented original variables.
func (o *structuralOracle) varsMatch(pva, pvb *Variable, tol float64) bool {
	if pva.Type != pvb.Type ||
		math.Abs(pva.Lb-pvb.Lb) > tol ||
		math.Abs(pva.Ub-pvb.Ub) > tol {
		return false
	}

	ova := pva.Data.(*PricingVarData).OrigVars[0]
	ovb := pvb.Data.(*PricingVarData).OrigVars[0]
	if math.Abs(ova.Obj-ovb.Obj) > tol {
		return false
	}

	sa := ova.Data.(*OrigVarData).MasterConss
	sb := ovb.Data.(*OrigVarData).MasterConss
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if sa[k].Cons != sb[k].Cons || math.Abs(sa[k].Coef-sb[k].Coef) > tol {
			return false
		}
	}
	return true
}

// conssMatch compares one candidate constraint pair under phi: same sides,
// same terms over corresponding variables.
func (o *structuralOracle) conssMatch(ca, cb *Constraint, phi map[*Variable]*Variable, tol float64) bool {
	if len(ca.Terms) != len(cb.Terms) ||
		!sidesMatch(ca.Lhs, cb.Lhs, tol) ||
		!sidesMatch(ca.Rhs, cb.Rhs, tol) {
		return false
	}
	for k, ta := range ca.Terms {
		tb := cb.Terms[k]
		if phi[ta.Var] != tb.Var || math.Abs(ta.Coef-tb.Coef) > tol {
			return false
		}
	}
	return true
}

// sidesMatch compares two constraint sides, treating equal infinities as
// matching.
func sidesMatch(a, b, tol float64) bool {
	if math.IsInf(a, 1) || math.IsInf(b, 1) {
		return math.IsInf(a, 1) && math.IsInf(b, 1)
	}
	if math.IsInf(a, -1) || math.IsInf(b, -1) {
		return math.IsInf(a, -1) && math.IsInf(b, -1)
	}
	return math.Abs(a-b) <= tol
}
