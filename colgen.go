package gcg

// colgen: the column-generation coordinator. PerformRelaxation is invoked
// once per search-node activation and runs to convergence or to a reported
// resource-limit exit before control returns to the host. Within one
// pricing round the relevant pricing problems are solved in parallel; all
// results are collected before any column enters the master.

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	priorityqueue "gopkg.in/dnaeon/go-priorityqueue.v1"
)

// NodeState is the per-node solve state machine.
type NodeState int

const (
	NodeNotSolved NodeState = iota
	NodeSolving
	NodeSolved
	NodeInfeasible
	NodeCutoff
)

func (s NodeState) String() string {
	switch s {
	case NodeNotSolved:
		return "not solved"
	case NodeSolving:
		return "solving"
	case NodeSolved:
		return "solved"
	case NodeInfeasible:
		return "infeasible"
	case NodeCutoff:
		return "cutoff"
	}
	return "unknown"
}

// BoundChange tightens one original variable at a search node.
type BoundChange struct {
	Var *Variable
	Lb  float64
	Ub  float64
}

// Node is the host search-tree node the coordinator synchronizes with.
type Node struct {
	ID           int64
	State        NodeState
	BoundChanges []BoundChange
	LowerBound   float64
}

// RelaxResult reports the outcome of one PerformRelaxation call. Completed
// false means the loop hit a time or round limit before convergence: the
// node was NOT solved and must be revisited; this is a retry condition, not
// an error. ObjMismatch flags a reconstructed objective that disagrees with
// the master objective beyond tolerance, which is a defect to investigate,
// never auto-corrected.
type RelaxResult struct {
	State        NodeState
	Completed    bool
	LowerBound   float64
	ObjMismatch  bool
	Rounds       int
	ColumnsAdded int
}

// Pricing sentinels returned by PricingSolver implementations. The
// coordinator treats an infeasible restricted pricing problem as a normal
// no-column outcome, an infeasible unrestricted one as fatal, and a
// resource limit as report-and-exclude for the round.
var (
	ErrPricingInfeasible = errors.New("pricing problem infeasible")
	ErrPricingLimit      = errors.New("pricing problem hit its resource limit")
)

// PerformRelaxation runs the column-generation loop for one node: apply the
// node's bound changes, solve the master with a one-node budget increase,
// generate columns to convergence, transform the master solution back to
// original space, and propagate the relaxation bound. Node-local bound
// changes are reverted before returning.
func (d *Decomp) PerformRelaxation(ctx context.Context, node *Node) (*RelaxResult, error) {
	if !d.built {
		return nil, errors.New("decomposition not built")
	}
	if d.Solver == nil {
		return nil, errors.New("no SubSolver configured")
	}
	if d.Pricer == nil {
		d.Pricer = &MIPPricer{Solver: d.Solver}
	}
	if node.State == NodeSolving {
		return nil, errors.Errorf("node %d is already being solved", node.ID)
	}
	node.State = NodeSolving

	var deadline time.Time
	if d.Settings.TimeLimit > 0 {
		deadline = time.Now().Add(d.Settings.TimeLimit)
	}

	if err := d.activateRules(node); err != nil {
		return nil, err
	}
	defer d.deactivateRules(node)

	restore, err := d.applyNodeBounds(node)
	if err != nil {
		node.State = NodeNotSolved
		return nil, err
	}
	defer restore()

	if err := d.propagateRules(node); err != nil {
		node.State = NodeNotSolved
		return nil, err
	}

	d.nodeBudget++
	rounds0, cols0 := d.Stats.Rounds, d.Stats.ColumnsAdded

	res, completed, err := d.generateColumns(ctx, deadline)
	if err != nil {
		node.State = NodeNotSolved
		return nil, errors.Wrapf(err, "column generation failed at node %d", node.ID)
	}

	out := &RelaxResult{
		Rounds:       d.Stats.Rounds - rounds0,
		ColumnsAdded: d.Stats.ColumnsAdded - cols0,
	}

	if !completed {
		// Did not run to completion: the host must re-invoke. The node is
		// deliberately left observable as unsolved.
		node.State = NodeNotSolved
		out.State = NodeNotSolved
		d.Log.WithField("node", node.ID).Warn("column generation did not run to completion")
		return out, nil
	}

	switch res.Status {
	case StatusInfeasible:
		node.State = NodeInfeasible
		out.State = NodeInfeasible
		out.Completed = true
		return out, nil

	case StatusUnbounded:
		node.State = NodeSolved
		out.State = NodeSolved
		out.Completed = true
		out.LowerBound = math.Inf(-1)
		node.LowerBound = out.LowerBound
		return out, nil

	case StatusOptimal:
		// fall through to solution transfer
	default:
		node.State = NodeNotSolved
		return nil, errors.Errorf("master solve ended with unexpected status %s", res.Status)
	}

	if d.artificialsActive(res.ColValues) {
		// converged with bootstrap columns still carrying weight: no
		// combination of block columns satisfies the master rows
		node.State = NodeInfeasible
		out.State = NodeInfeasible
		out.Completed = true
		return out, nil
	}

	origSol, err := d.TransMasterToOrig(res.ColValues)
	if err != nil {
		node.State = NodeNotSolved
		return nil, errors.Wrapf(err, "solution transfer failed at node %d", node.ID)
	}
	d.curOrigSol = origSol
	d.curFeasible = d.checkOrigFeasible(origSol)

	recObj := d.origObjValue(origSol)
	masterObj := res.Objective
	if math.Abs(recObj-masterObj) > math.Sqrt(d.Settings.Tolerance) {
		out.ObjMismatch = true
		d.Log.WithFields(logrus.Fields{
			"node":          node.ID,
			"reconstructed": recObj,
			"master":        masterObj,
		}).Error("reconstructed objective disagrees with master objective")
	}

	out.Completed = true
	out.LowerBound = masterObj
	node.LowerBound = masterObj

	if d.curFeasible {
		// The transferred solution is feasible in the original problem, so
		// it certifies the node's relaxation value and the node is pruned.
		node.State = NodeCutoff
		out.State = NodeCutoff
	} else {
		node.State = NodeSolved
		out.State = NodeSolved
	}

	if err := d.masterSolvedRules(node, out); err != nil {
		return nil, err
	}
	return out, nil
}

// generateColumns repeats solve-master / solve-pricing / add-columns until
// no improving column exists or a limit triggers. The boolean result is
// false when the loop was cut short by a time, round, or solver limit.
func (d *Decomp) generateColumns(ctx context.Context, deadline time.Time) (*SolveResult, bool, error) {
	rounds := 0
	for {
		if ctx.Err() != nil {
			return nil, false, nil
		}

		lim := SolveLimits{Relaxation: true, Nodes: d.nodeBudget}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, false, nil
			}
			lim.Time = remaining
		}

		res, err := d.Solver.Solve(ctx, d.master.Prob, lim)
		d.Stats.MasterSolves++
		if err != nil {
			return nil, false, errors.Wrap(err, "master solve failed")
		}

		var mode PricingMode
		switch res.Status {
		case StatusOptimal:
			mode = ReducedCostPricing
		case StatusInfeasible:
			if len(res.RowDuals) != len(d.master.Prob.Conss) {
				// no usable Farkas proof: the node is infeasible as is
				return res, true, nil
			}
			mode = FarkasPricing
		case StatusUnbounded:
			// propagate unboundedness immediately
			return res, true, nil
		case StatusTimeLimit, StatusNodeLimit:
			return res, false, nil
		default:
			return nil, false, errors.Errorf("master solve returned status %s", res.Status)
		}

		if d.Settings.MaxRounds > 0 && rounds >= d.Settings.MaxRounds {
			return res, false, nil
		}
		rounds++
		d.Stats.Rounds++

		added, err := d.pricingRound(ctx, mode, res.RowDuals)
		if err != nil {
			return nil, false, err
		}
		if added == 0 {
			// no improving column: the loop converged, with the master
			// either optimal or (after a fruitless Farkas round) infeasible
			return res, true, nil
		}
	}
}

// artificialsActive reports whether any bootstrap column still carries
// weight above tolerance in the given master solution.
func (d *Decomp) artificialsActive(colVals []float64) bool {
	for _, av := range d.artificials {
		if av.Index < len(colVals) && colVals[av.Index] > d.Settings.Tolerance {
			return true
		}
	}
	return false
}

// pricingRound prices every relevant block (in parallel), collects all
// results, and admits the best improving columns into the master, ordered
// by reduced cost. It returns the number of columns added.
func (d *Decomp) pricingRound(ctx context.Context, mode PricingMode, duals []float64) (int, error) {
	if err := d.setPricingObjectives(mode, duals); err != nil {
		return 0, err
	}

	colsPerBlock := make([][]Column, len(d.pricing))
	g, gctx := errgroup.WithContext(ctx)
	calls := 0
	for b := range d.pricing {
		if !d.IsBlockRelevant(b) {
			continue
		}
		b := b
		pp := d.pricing[b]
		calls++
		g.Go(func() error {
			cols, err := d.priceBlock(gctx, pp, mode)
			if err != nil {
				return err
			}
			colsPerBlock[b] = cols
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	d.Stats.PricingCalls += calls

	// Rank improving columns by reduced cost and admit the best ones.
	sense := 1.0
	if d.master.Prob.Maximize {
		sense = -1.0
	}
	tol := d.Settings.Tolerance

	var cand []Column
	pq := priorityqueue.New[int, float64](priorityqueue.MinHeap)
	for _, cols := range colsPerBlock {
		for _, col := range cols {
			if rc := sense * col.RedCost; rc < -tol {
				cand = append(cand, col)
				pq.Put(len(cand)-1, rc)
			}
		}
	}

	added := 0
	for pq.Len() > 0 && (d.Settings.MaxColsRound <= 0 || added < d.Settings.MaxColsRound) {
		item := pq.Get()
		if _, err := d.addMasterColumn(cand[item.Value]); err != nil {
			return added, errors.Wrap(err, "failed to add column to master")
		}
		added++
		d.Stats.ColumnsAdded++
	}
	return added, nil
}

// priceBlock runs the pricing solver on one block, trying heuristic pricing
// first when enabled, and classifies the sentinel outcomes: a restricted
// infeasible pricing problem contributes no column, an unrestricted one is
// fatal for the whole solve, and a resource limit excludes the block from
// this round only.
func (d *Decomp) priceBlock(ctx context.Context, pp *PricingProblem, mode PricingMode) ([]Column, error) {
	if d.Settings.Heuristic {
		cols, err := d.Pricer.SolvePricing(ctx, d, pp, mode, true)
		if err == nil && d.anyImproving(cols) {
			return cols, nil
		}
		// fall through to exact pricing on failure or no improvement
	}

	cols, err := d.Pricer.SolvePricing(ctx, d, pp, mode, false)
	switch errors.Cause(err) {
	case nil:
		return cols, nil
	case ErrPricingInfeasible:
		if d.nodeRestricted {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "pricing problem of block %d is infeasible at the unrestricted level", pp.Block)
	case ErrPricingLimit:
		d.Log.WithField("block", pp.Block).Warn("pricing hit its resource limit, block excluded this round")
		return nil, nil
	default:
		return nil, errors.Wrapf(err, "pricing of block %d failed", pp.Block)
	}
}

func (d *Decomp) anyImproving(cols []Column) bool {
	sense := 1.0
	if d.master.Prob.Maximize {
		sense = -1.0
	}
	for _, c := range cols {
		if sense*c.RedCost < -d.Settings.Tolerance {
			return true
		}
	}
	return false
}

//==============================================================================
// NODE BOUND TRANSLATION
//==============================================================================

// applyNodeBounds maps the node's local bound changes into the decomposed
// problems: a change on a non-linking block variable tightens the
// corresponding pricing variable, a change on a master-transferred or
// linking variable becomes an additional master-side row over the
// variable's master coefficients. The returned function reverts everything.
func (d *Decomp) applyNodeBounds(node *Node) (func(), error) {
	type savedBound struct {
		v      *Variable
		lb, ub float64
	}
	var saved []savedBound
	nconss := len(d.master.Prob.Conss)
	d.nodeBoundCons = make(map[*Variable]*Constraint)

	undo := func() {
		for _, s := range saved {
			s.v.Lb, s.v.Ub = s.lb, s.ub
		}
		d.master.Prob.Conss = d.master.Prob.Conss[:nconss]
		d.nodeBoundCons = nil
		d.nodeRestricted = false
	}

	for _, bc := range node.BoundChanges {
		od, err := origData(bc.Var)
		if err != nil {
			undo()
			return nil, errors.Wrap(err, "bound change on a non-original variable")
		}

		if od.Block >= 0 {
			pv := od.PricingVar
			if pv == nil {
				undo()
				return nil, &InvariantError{Block: od.Block, Var: bc.Var.Name,
					Msg: "bound change on a block variable with no pricing counterpart"}
			}
			saved = append(saved, savedBound{pv, pv.Lb, pv.Ub})
			pv.Lb = math.Max(pv.Lb, bc.Lb)
			pv.Ub = math.Min(pv.Ub, bc.Ub)
			continue
		}

		// master-transferred or linking: enforce through a master row over
		// the variable's current and future master coefficients
		vars := make([]*Variable, 0, len(od.MasterVars))
		coefs := make([]float64, 0, len(od.MasterVars))
		for _, wm := range od.MasterVars {
			vars = append(vars, wm.Var)
			coefs = append(coefs, wm.Coef)
		}
		bcons, err := d.master.Prob.AddLinearConstraint(
			"bnd_"+bc.Var.Name, bc.Lb, bc.Ub, vars, coefs)
		if err != nil {
			undo()
			return nil, errors.Wrapf(err, "failed to add bound row for %s", bc.Var.Name)
		}
		d.nodeBoundCons[bc.Var] = bcons
	}

	d.nodeRestricted = len(node.BoundChanges) > 0
	return undo, nil
}

//==============================================================================
// PROBING
//==============================================================================

// StartProbing enters a speculative scope: the cached original-space
// solution is snapshotted so probing excursions cannot leak into the node's
// committed state. Every StartProbing must be paired with EndProbing.
func (d *Decomp) StartProbing() error {
	if !d.built {
		return errors.New("decomposition not built")
	}
	if d.probing {
		return errors.New("already probing")
	}
	if d.curOrigSol != nil {
		d.probeSolSave = make(map[*Variable]float64, len(d.curOrigSol))
		for v, x := range d.curOrigSol {
			d.probeSolSave[v] = x
		}
	} else {
		d.probeSolSave = nil
	}
	d.probeFeaSave = d.curFeasible

	if pr, ok := d.Solver.(Prober); ok {
		if err := pr.StartProbing(d.master.Prob); err != nil {
			return errors.Wrap(err, "solver failed to enter probing")
		}
	}
	d.probing = true
	return nil
}

// PerformProbing evaluates a speculative set of bound changes with the same
// transform-and-check machinery as a regular node, on a transient node.
func (d *Decomp) PerformProbing(ctx context.Context, changes []BoundChange) (*RelaxResult, error) {
	if !d.probing {
		return nil, errors.New("PerformProbing outside a probing scope")
	}
	node := &Node{ID: -1, BoundChanges: changes}
	return d.PerformRelaxation(ctx, node)
}

// EndProbing leaves the speculative scope and restores the committed
// cached solution.
func (d *Decomp) EndProbing() error {
	if !d.probing {
		return errors.New("EndProbing without StartProbing")
	}
	d.curOrigSol = d.probeSolSave
	d.curFeasible = d.probeFeaSave
	d.probeSolSave = nil
	d.probing = false

	if pr, ok := d.Solver.(Prober); ok {
		if err := pr.EndProbing(d.master.Prob); err != nil {
			return errors.Wrap(err, "solver failed to leave probing")
		}
	}
	return nil
}

//==============================================================================
// PRICING SOLVER PLUGIN
//==============================================================================

// PricingMode selects the pricing objective: reduced-cost pricing against
// an optimal master LP, or Farkas pricing against an infeasibility proof.
type PricingMode int

const (
	ReducedCostPricing PricingMode = iota
	FarkasPricing
)

// Column is one pricing result: an extreme point or ray of a block's
// polyhedron in original-variable coordinates, with its reduced cost.
type Column struct {
	Block   int
	Vals    map[*Variable]float64
	IsRay   bool
	RedCost float64
}

// PricingSolver is the consumed pricing plugin. Implementations read the
// pricing objectives the coordinator has set on the pricing problem and
// return candidate columns; they report infeasibility and resource limits
// through the ErrPricingInfeasible and ErrPricingLimit sentinels.
type PricingSolver interface {
	SolvePricing(ctx context.Context, d *Decomp, pp *PricingProblem, mode PricingMode, heuristic bool) ([]Column, error)
}

// MIPPricer is the default pricing plugin: it solves each pricing problem
// as a MIP through a SubSolver and returns the best solution as a single
// column. Heuristic pricing caps the solver's node budget.
type MIPPricer struct {
	Solver SubSolver
}

// SolvePricing implements PricingSolver.
func (p *MIPPricer) SolvePricing(ctx context.Context, d *Decomp, pp *PricingProblem, mode PricingMode, heuristic bool) ([]Column, error) {
	lim := SolveLimits{}
	if heuristic {
		lim.Nodes = d.Settings.PricingNodes
	}

	res, err := p.Solver.Solve(ctx, pp.Prob, lim)
	if err != nil {
		return nil, errors.Wrapf(err, "pricing solve of block %d failed", pp.Block)
	}

	switch res.Status {
	case StatusOptimal:
		col := p.columnFrom(d, pp, res.ColValues, false)
		col.RedCost = res.Objective - pp.convDual
		return []Column{col}, nil

	case StatusUnbounded:
		if len(res.Ray) != len(pp.Prob.Vars) {
			return nil, errors.Errorf("pricing problem of block %d unbounded but solver returned no ray", pp.Block)
		}
		col := p.columnFrom(d, pp, res.Ray, true)
		if pp.Prob.Maximize {
			col.RedCost = math.Inf(1)
		} else {
			col.RedCost = math.Inf(-1)
		}
		return []Column{col}, nil

	case StatusInfeasible:
		return nil, ErrPricingInfeasible

	case StatusTimeLimit, StatusNodeLimit:
		if len(res.ColValues) == len(pp.Prob.Vars) {
			// limit hit but a best solution exists: first-improving column
			col := p.columnFrom(d, pp, res.ColValues, false)
			col.RedCost = res.Objective - pp.convDual
			return []Column{col}, nil
		}
		return nil, ErrPricingLimit

	default:
		return nil, errors.Errorf("pricing solve of block %d returned status %s", pp.Block, res.Status)
	}
}

// columnFrom maps a pricing-space point or ray onto original-variable
// coordinates through each pricing variable's class representative.
func (p *MIPPricer) columnFrom(d *Decomp, pp *PricingProblem, point []float64, isRay bool) Column {
	vals := make(map[*Variable]float64)
	for _, pv := range pp.Prob.Vars {
		x := point[pv.Index]
		if math.Abs(x) <= d.Settings.Tolerance {
			continue
		}
		vals[pv.Data.(*PricingVarData).OrigVars[0]] = x
	}
	return Column{Block: pp.Block, Vals: vals, IsRay: isRay}
}
