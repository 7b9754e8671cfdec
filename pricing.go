package gcg

// pricing: builds one pricing sub-problem per block of the partition.
// Pricing variables mirror their original variable's bounds and type but
// start with objective coefficient zero; the coordinator rewrites pricing
// objectives from master dual values every round.

import (
	"fmt"

	"github.com/pkg/errors"
)

// buildPricingProblems creates the B pricing problems, the pricing-variable
// images of every block-assigned original variable, the per-block replicas
// of linking variables, and the pricing copies of all block constraints.
// It runs before aggregation, so every block still owns its own images.
func (d *Decomp) buildPricingProblems(part Partition) error {
	d.pricing = make([]*PricingProblem, part.NBlocks)
	for b := range d.pricing {
		d.pricing[b] = &PricingProblem{
			Block: b,
			Prob:  NewProblem(fmt.Sprintf("%s_pricing_%d", d.Orig.Name, b)),
		}
		// pricing problems share the master's objective sense
		d.pricing[b].Prob.Maximize = d.Orig.Maximize
	}

	for i, v := range d.Orig.Vars {
		od := v.Data.(*OrigVarData)

		switch {
		case od.Block >= 0:
			pv := d.newPricingVar(od.Block, v)
			od.PricingVar = pv

		case od.Block == BlockLinking:
			for _, b := range part.VarLinks[i] {
				if od.LinkVars[b] != nil {
					continue
				}
				od.LinkVars[b] = d.newPricingVar(b, v)
			}

		case od.Block == BlockUnassigned:
			// transferred directly into the master; see master.go
		}
	}

	for i, c := range d.Orig.Conss {
		b := part.ConsBlock[i]
		if b == BlockMaster {
			continue
		}
		if err := d.copyConsToPricing(b, c); err != nil {
			return err
		}
	}

	for b, pp := range d.pricing {
		d.Log.WithFields(map[string]interface{}{
			"block": b,
			"vars":  len(pp.Prob.Vars),
			"conss": len(pp.Prob.Conss),
		}).Debug("pricing problem built")
	}
	return nil
}

// newPricingVar creates the pricing image of original variable v in the
// given block. The image keeps bounds and type; its objective starts at 0.
func (d *Decomp) newPricingVar(block int, v *Variable) *Variable {
	pp := d.pricing[block]
	pv := pp.Prob.AddVariable(fmt.Sprintf("pr%d_%s", block, v.Name), v.Lb, v.Ub, v.Type, 0)
	pv.Data = &PricingVarData{
		Block:    block,
		OrigVars: []*Variable{v},
	}
	return pv
}

// copyConsToPricing copies one block-local constraint of the original
// problem into the owning pricing problem, mapping every referenced
// variable onto its pricing image in that block. A variable without an
// image there means the partition is inconsistent, which is fatal.
func (d *Decomp) copyConsToPricing(block int, c *Constraint) error {
	pp := d.pricing[block]

	vars := make([]*Variable, 0, len(c.Terms))
	coefs := make([]float64, 0, len(c.Terms))
	for _, t := range c.Terms {
		od := t.Var.Data.(*OrigVarData)

		var img *Variable
		switch {
		case od.Block == block:
			img = od.PricingVar
		case od.Block == BlockLinking:
			img = od.LinkVars[block]
		}
		if img == nil {
			return &PartitionError{
				Block: block,
				Var:   t.Var.Name,
				Cons:  c.Name,
				Msg:   "constraint assigned to block references a variable with no pricing image there",
			}
		}
		vars = append(vars, img)
		coefs = append(coefs, t.Coef)
	}

	if _, err := pp.Prob.AddLinearConstraint(c.Name, c.Lhs, c.Rhs, vars, coefs); err != nil {
		return errors.Wrapf(err, "failed to copy constraint %s into block %d", c.Name, block)
	}
	return nil
}

// setPricingObjectives rewrites the objective of every relevant pricing
// problem from the current master dual values, using the reduced-cost
// formula: the pricing image of original variable x gets
//
//	obj(x) - sum over global constraints g of dual(g) * coef(x, g)
//
// In Farkas mode the original objective term is dropped and the duals are
// the Farkas multipliers of the master's infeasibility proof. The dual of
// the block's convexity constraint is not folded into the objective; it is
// cached on the pricing problem and subtracted by the pricing solver when
// judging reduced costs.
func (d *Decomp) setPricingObjectives(mode PricingMode, duals []float64) error {
	if len(duals) != len(d.master.Prob.Conss) {
		return errors.Errorf("dual vector has %d entries, master has %d constraints",
			len(duals), len(d.master.Prob.Conss))
	}

	for b, pp := range d.pricing {
		if !d.IsBlockRelevant(b) {
			continue
		}
		if cc := d.master.ConvConss[b]; cc != nil {
			pp.convDual = duals[cc.Index]
		} else {
			pp.convDual = 0
		}

		for _, pv := range pp.Prob.Vars {
			pd := pv.Data.(*PricingVarData)
			ov := pd.OrigVars[0]
			od := ov.Data.(*OrigVarData)

			obj := 0.0
			if mode == ReducedCostPricing {
				obj = ov.Obj
			}
			if od.Block == BlockLinking {
				// Replica objectives come from the linking equality rows;
				// the reference replica additionally carries the original
				// objective and the global-constraint terms.
				obj = d.linkingReplicaObj(ov, od, pv, mode, duals)
			} else {
				for _, mc := range od.MasterConss {
					obj -= duals[d.master.imageOf[mc.Cons].Index] * mc.Coef
				}
			}
			pv.Obj = obj
		}
	}
	return nil
}

// linkingReplicaObj computes the pricing objective of one replica of a
// linking variable. The reference replica (lowest touched block) carries
// the original objective and the global-constraint dual terms; every
// replica additionally collects the duals of the linking equality rows it
// appears in, with the sign of its coefficient there.
func (d *Decomp) linkingReplicaObj(ov *Variable, od *OrigVarData, pv *Variable, mode PricingMode, duals []float64) float64 {
	pd := pv.Data.(*PricingVarData)
	ref := linkingRefBlock(od)

	obj := 0.0
	if pd.Block == ref {
		if mode == ReducedCostPricing {
			obj = ov.Obj
		}
		for _, mc := range od.MasterConss {
			obj -= duals[d.master.imageOf[mc.Cons].Index] * mc.Coef
		}
		// reference replica appears with +1 in every linking row
		for _, lc := range od.LinkConss {
			if lc != nil {
				obj -= duals[lc.Index]
			}
		}
	} else if lc := od.LinkConss[pd.Block]; lc != nil {
		// non-reference replica appears with -1 in its linking row
		obj += duals[lc.Index]
	}
	return obj
}

// linkingRefBlock returns the reference block of a linking variable: the
// lowest-indexed block it touches.
func linkingRefBlock(od *OrigVarData) int {
	for b, pv := range od.LinkVars {
		if pv != nil {
			return b
		}
	}
	return BlockUnassigned
}

