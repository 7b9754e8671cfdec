package gcg

// master: builds the reformulated master problem. Global constraints are
// copied with their sides but no terms (column coefficients arrive as
// columns are generated), one convexity constraint is created per
// represented block, and original variables without a block assignment are
// transferred 1:1. The modeling layer only admits linear constraints, so
// the unsupported-constraint failure mode of richer front ends reduces here
// to the builders never seeing such a row.

import (
	"fmt"

	"github.com/pkg/errors"
)

// buildMasterProblem creates the master sub-problem. It runs after block
// aggregation, so convexity constraints are created only for representative
// blocks, with both sides equal to the block's multiplicity.
func (d *Decomp) buildMasterProblem(part Partition) error {
	m := &MasterProblem{
		Prob:      NewProblem(d.Orig.Name + "_master"),
		ConvConss: make([]*Constraint, part.NBlocks),
		imageOf:   make(map[*Constraint]*Constraint),
	}
	m.Prob.Maximize = d.Orig.Maximize
	m.Prob.ObjConst = d.Orig.ObjConst
	d.master = m

	// Master images of the global constraints: same sides, no terms yet.
	for i, c := range d.Orig.Conss {
		if part.ConsBlock[i] != BlockMaster {
			continue
		}
		img, err := m.Prob.AddLinearConstraint("m_"+c.Name, c.Lhs, c.Rhs, nil, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to copy global constraint %s", c.Name)
		}
		img.Orig = c
		m.GlobalConss = append(m.GlobalConss, img)
		m.imageOf[c] = img
	}

	// One convexity constraint per represented block. Ray columns never
	// enter these rows, point columns enter with coefficient 1.
	for b := 0; b < part.NBlocks; b++ {
		if !d.IsBlockRelevant(b) {
			continue
		}
		mult := float64(d.multiplicity[b])
		cc, err := m.Prob.AddLinearConstraint(fmt.Sprintf("conv_%d", b), mult, mult, nil, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to create convexity constraint for block %d", b)
		}
		m.ConvConss[b] = cc
	}

	// Linking equality rows: one per linking variable and non-reference
	// block, keeping that block's replica equal to the reference replica.
	// They live in the master because their coefficients are column values.
	for _, v := range d.Orig.Vars {
		od := v.Data.(*OrigVarData)
		if od.Block != BlockLinking {
			continue
		}
		ref := linkingRefBlock(od)
		for b, pv := range od.LinkVars {
			if pv == nil || b == ref {
				continue
			}
			lc, err := m.Prob.AddLinearConstraint(fmt.Sprintf("link_%s_%d", v.Name, b), 0, 0, nil, nil)
			if err != nil {
				return errors.Wrapf(err, "failed to create linking constraint for %s in block %d", v.Name, b)
			}
			od.LinkConss[b] = lc
			m.LinkConss = append(m.LinkConss, lc)
		}
	}

	// Direct transfer of unassigned original variables: a 1:1 master copy
	// with the original objective, appearing in exactly the global rows the
	// original participates in.
	for _, v := range d.Orig.Vars {
		od := v.Data.(*OrigVarData)
		if od.Block != BlockUnassigned {
			continue
		}
		mv := m.Prob.AddVariable("t_"+v.Name, v.Lb, v.Ub, v.Type, v.Obj)
		mv.Data = &MasterVarData{
			Block:    BlockUnassigned,
			OrigVars: []*Variable{v},
			OrigVals: []float64{1},
		}
		for _, mc := range od.MasterConss {
			m.imageOf[mc.Cons].AddCoef(mv, mc.Coef)
		}
		od.MasterVars = append(od.MasterVars, WeightedMaster{Var: mv, Coef: 1})
	}

	if d.Settings.ArtificialCost > 0 {
		d.addArtificialColumns()
	}

	return nil
}

// addArtificialColumns seeds the master with high-cost bootstrap columns so
// its first LP relaxation is feasible before any block column exists. One
// artificial covers each master row a zero solution violates; the convexity
// rows always receive one. Positive weight on an artificial at convergence
// certifies node infeasibility without a Farkas proof from the solver.
func (d *Decomp) addArtificialColumns() {
	m := d.master
	cost := d.Settings.ArtificialCost
	if m.Prob.Maximize {
		cost = -cost
	}
	tol := d.Settings.Tolerance

	seed := func(c *Constraint, suffix string, coef float64) {
		av := m.Prob.AddVariable("art_"+c.Name+suffix, 0, Inf(), ContinuousVar, cost)
		av.Data = &MasterVarData{Block: BlockUnassigned, IsArtificial: true}
		c.AddCoef(av, coef)
		d.artificials = append(d.artificials, av)
	}
	for _, c := range m.Prob.Conss {
		if c.Lhs > tol {
			seed(c, "_lo", 1)
		}
		if c.Rhs < -tol {
			seed(c, "_up", -1)
		}
	}
}

// Image returns the master image of an original global constraint, or nil
// if the constraint was not designated global.
func (m *MasterProblem) Image(orig *Constraint) *Constraint {
	return m.imageOf[orig]
}

// addMasterColumn turns one pricing column into a new master variable: its
// objective is the column's original-space objective value, it enters every
// global constraint with the column's aggregated coefficient there, the
// owning block's convexity constraint with coefficient 1 (points only), and
// the linking rows of any linking variable it carries.
func (d *Decomp) addMasterColumn(col Column) (*Variable, error) {
	if !d.IsBlockRelevant(col.Block) {
		return nil, &InvariantError{Block: col.Block, Var: "",
			Msg: "column generated for a block that is not its own representative"}
	}
	m := d.master

	obj := 0.0
	for ov, val := range col.Vals {
		obj += ov.Obj * val
	}

	mv := m.Prob.AddVariable(
		fmt.Sprintf("mv_%d_%d", col.Block, len(m.Prob.Vars)),
		0, Inf(), ContinuousVar, obj)

	md := &MasterVarData{Block: col.Block, IsRay: col.IsRay}

	// Aggregate the column's coefficient per master row before touching the
	// rows, so each row receives a single term for this variable.
	rowCoef := make(map[*Constraint]float64)

	for ov, val := range col.Vals {
		od, err := origData(ov)
		if err != nil {
			return nil, err
		}
		md.OrigVars = append(md.OrigVars, ov)
		md.OrigVals = append(md.OrigVals, val)

		for _, mc := range od.MasterConss {
			rowCoef[m.imageOf[mc.Cons]] += mc.Coef * val
		}

		if od.Block == BlockLinking {
			ref := linkingRefBlock(od)
			switch {
			case col.Block == ref:
				for _, lc := range od.LinkConss {
					if lc != nil {
						rowCoef[lc] += val
					}
				}
			case od.LinkConss[col.Block] != nil:
				rowCoef[od.LinkConss[col.Block]] -= val
			}
		}

		od.MasterVars = append(od.MasterVars, WeightedMaster{Var: mv, Coef: val})

		// node-local bound rows on linking/transferred variables must also
		// cover columns generated while they are active
		if bcons := d.nodeBoundCons[ov]; bcons != nil {
			rowCoef[bcons] += val
		}
	}

	for row, coef := range rowCoef {
		if coef != 0 {
			row.AddCoef(mv, coef)
		}
	}

	if !col.IsRay {
		m.ConvConss[col.Block].AddCoef(mv, 1)
	}

	mv.Data = md
	return mv, nil
}
