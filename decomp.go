package gcg

// decomp: the shared decomposition context. A Decomp owns the original
// problem, the derived master and pricing problems, and the aggregation
// bookkeeping, and is passed explicitly to every component (there is no
// process-wide registry; hosts keep the handle).

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Settings controls tolerances and limits of a decomposition. It plays the
// role classic presolve codes give their reduction control structures: set
// the fields, hand it to NewDecomp, done.
type Settings struct {
	Tolerance    float64       // feasibility tolerance for all numeric comparisons
	MaxRounds    int           // pricing rounds per node, 0 for no limit
	MaxColsRound int           // columns accepted into the master per round
	TimeLimit    time.Duration // wall-clock budget per PerformRelaxation call, 0 for none
	Aggregation  bool          // merge structurally identical pricing blocks
	Heuristic    bool          // try heuristic pricing before exact pricing
	PricingNodes int64         // node limit for one heuristic pricing solve

	// ArtificialCost is the objective cost of the bootstrap columns seeded
	// into the master so its first LP relaxation is feasible before any
	// block column exists. 0 disables seeding; hosts whose solver returns
	// Farkas duals for infeasible problems may rely on Farkas pricing
	// instead.
	ArtificialCost float64
}

// DefaultSettings returns the settings used when callers have no opinion.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:      1e-6,
		MaxRounds:      1000,
		MaxColsRound:   100,
		Aggregation:    true,
		Heuristic:      false,
		PricingNodes:   1000,
		ArtificialCost: 1e6,
	}
}

// Partition is the consumed structure-detection result: a block count plus
// per-variable and per-constraint block designations for the original
// problem, aligned by index with Problem.Vars and Problem.Conss.
type Partition struct {
	NBlocks int
	// VarBlock holds, per original variable, a block index 0..NBlocks-1,
	// BlockUnassigned, or BlockLinking.
	VarBlock []int
	// VarLinks holds, per linking variable, the blocks it touches (ignored
	// for non-linking variables; may be nil there).
	VarLinks [][]int
	// ConsBlock holds, per original constraint, a block index 0..NBlocks-1
	// or BlockMaster for global constraints.
	ConsBlock []int
}

// Validate checks the partition against the original problem it is meant to
// decompose. It catches shape errors only; deeper inconsistencies (a block
// constraint referencing a variable outside the block) surface as
// PartitionError during Build.
func (pt *Partition) Validate(orig *Problem) error {
	if pt.NBlocks <= 0 {
		return errors.Errorf("partition has %d blocks", pt.NBlocks)
	}
	if len(pt.VarBlock) != len(orig.Vars) {
		return errors.Errorf("partition covers %d variables, problem has %d", len(pt.VarBlock), len(orig.Vars))
	}
	if len(pt.ConsBlock) != len(orig.Conss) {
		return errors.Errorf("partition covers %d constraints, problem has %d", len(pt.ConsBlock), len(orig.Conss))
	}
	for i, b := range pt.VarBlock {
		switch {
		case b >= 0 && b < pt.NBlocks:
		case b == BlockUnassigned:
		case b == BlockLinking:
			if i >= len(pt.VarLinks) || len(pt.VarLinks[i]) < 2 {
				return errors.Errorf("linking variable %s must touch at least two blocks", orig.Vars[i].Name)
			}
			for _, lb := range pt.VarLinks[i] {
				if lb < 0 || lb >= pt.NBlocks {
					return errors.Errorf("linking variable %s references block %d of %d", orig.Vars[i].Name, lb, pt.NBlocks)
				}
			}
		default:
			return errors.Errorf("variable %s has invalid block %d", orig.Vars[i].Name, b)
		}
	}
	for i, b := range pt.ConsBlock {
		if b != BlockMaster && (b < 0 || b >= pt.NBlocks) {
			return errors.Errorf("constraint %s has invalid block %d", orig.Conss[i].Name, b)
		}
	}
	return nil
}

// PricingProblem is one block's sub-problem.
type PricingProblem struct {
	Block int
	Prob  *Problem

	// convDual caches the dual value of the block's convexity constraint
	// for the current pricing round; pricing solvers subtract it when
	// computing reduced costs.
	convDual float64
}

// MasterProblem is the reformulated problem whose variables are weighted
// block columns plus direct transfers of unassigned original variables.
type MasterProblem struct {
	Prob *Problem
	// GlobalConss are the master images of the original global constraints,
	// in partition order; each image's Orig field points back.
	GlobalConss []*Constraint
	// ConvConss holds one convexity constraint per represented block,
	// indexed by block (nil for merged-away blocks).
	ConvConss []*Constraint
	// LinkConss are the equality constraints synchronizing linking-variable
	// replicas across blocks.
	LinkConss []*Constraint

	imageOf map[*Constraint]*Constraint
}

// Decomp is the decomposition context: original problem, derived problems,
// aggregation bookkeeping, plugged-in collaborators, and per-node solver
// state. It is not safe for concurrent use.
type Decomp struct {
	Orig     *Problem
	Settings Settings

	// Collaborators. Solver is required before PerformRelaxation; Pricer
	// defaults to a MIPPricer over Solver; Oracle defaults to the built-in
	// structural comparator.
	Solver SubSolver
	Pricer PricingSolver
	Oracle BlockIdentityOracle
	Log    logrus.FieldLogger

	master  *MasterProblem
	pricing []*PricingProblem

	// artificials are the bootstrap columns seeded into the master at Build
	// time; positive weight on any of them at convergence certifies node
	// infeasibility.
	artificials []*Variable

	// representative[i] is the block whose pricing problem stands in for
	// block i; multiplicity[i] is how many merged blocks a representative
	// accounts for (0 for merged-away blocks).
	representative []int
	multiplicity   []int

	rules []BranchRule

	// Cached original-space solution of the last master solve, plus its
	// feasibility verdict. Saved and restored around probing.
	curOrigSol  map[*Variable]float64
	curFeasible bool

	probing      bool
	probeSolSave map[*Variable]float64
	probeFeaSave bool

	// node-local state of the relaxation currently being performed
	nodeRestricted bool
	nodeBoundCons  map[*Variable]*Constraint

	nodeBudget int64
	Stats      Stats

	built bool
}

// Stats counts work done by the column-generation coordinator.
type Stats struct {
	MasterSolves int
	Rounds       int
	PricingCalls int
	ColumnsAdded int
}

// NewDecomp wraps the original problem in a fresh decomposition context.
// Build must be called before anything else.
func NewDecomp(orig *Problem, s Settings) *Decomp {
	if s.Tolerance <= 0 {
		s.Tolerance = 1e-6
	}
	d := &Decomp{
		Orig:     orig,
		Settings: s,
		Log:      logrus.StandardLogger(),
	}
	d.Oracle = &structuralOracle{d: d}
	return d
}

// Build derives the pricing problems and the master problem from the given
// partition and, if enabled, aggregates structurally identical blocks.
// A returned error means the partition was rejected and the context is not
// usable; partition inconsistencies surface as *PartitionError.
func (d *Decomp) Build(part Partition) error {
	if d.built {
		return errors.Errorf("decomposition for %s already built", d.Orig.Name)
	}
	if err := part.Validate(d.Orig); err != nil {
		return errors.Wrap(err, "Build rejected partition")
	}

	d.representative = make([]int, part.NBlocks)
	d.multiplicity = make([]int, part.NBlocks)
	for i := range d.representative {
		d.representative[i] = i
		d.multiplicity[i] = 1
	}

	d.attachOrigData(part)

	if err := d.buildPricingProblems(part); err != nil {
		return errors.Wrap(err, "Build failed to create pricing problems")
	}

	if d.Settings.Aggregation {
		if err := d.checkIdenticalBlocks(); err != nil {
			return errors.Wrap(err, "Build failed during block aggregation")
		}
	}

	if err := d.buildMasterProblem(part); err != nil {
		return errors.Wrap(err, "Build failed to create master problem")
	}

	d.built = true
	d.Log.WithFields(logrus.Fields{
		"blocks":     part.NBlocks,
		"relevant":   d.numRelevantBlocks(),
		"masterCons": len(d.master.Prob.Conss),
	}).Info("decomposition built")
	return nil
}

// attachOrigData tags every original variable with its OrigVarData record
// and records the master-constraint participation signatures.
func (d *Decomp) attachOrigData(part Partition) {
	for i, v := range d.Orig.Vars {
		od := &OrigVarData{Block: part.VarBlock[i]}
		if od.Block == BlockLinking {
			od.LinkVars = make([]*Variable, part.NBlocks)
			od.LinkConss = make([]*Constraint, part.NBlocks)
		}
		v.Data = od
	}

	// The participation signature of a variable is the ordered list of its
	// coefficients in the global constraints; aggregation compares it.
	for i, c := range d.Orig.Conss {
		if part.ConsBlock[i] != BlockMaster {
			continue
		}
		for _, t := range c.Terms {
			od := t.Var.Data.(*OrigVarData)
			od.MasterConss = append(od.MasterConss, MasterConsCoef{Coef: t.Coef, Cons: c})
		}
	}
}

//==============================================================================
// HOST-FACING ACCESSORS
//==============================================================================

// MasterProblem returns the master problem; nil before Build.
func (d *Decomp) MasterProblem() *MasterProblem { return d.master }

// PricingProblem returns block i's pricing problem; nil out of range.
func (d *Decomp) PricingProblem(i int) *PricingProblem {
	if i < 0 || i >= len(d.pricing) {
		return nil
	}
	return d.pricing[i]
}

// NBlocks returns the number of blocks of the partition.
func (d *Decomp) NBlocks() int { return len(d.pricing) }

// IsBlockRelevant reports whether block i's pricing problem must be solved,
// i.e. the block represents itself (and was not merged away).
func (d *Decomp) IsBlockRelevant(i int) bool {
	return i >= 0 && i < len(d.representative) && d.representative[i] == i && d.multiplicity[i] > 0
}

// BlockRepresentative returns the block standing in for block i.
func (d *Decomp) BlockRepresentative(i int) int {
	if i < 0 || i >= len(d.representative) {
		return BlockUnassigned
	}
	return d.representative[i]
}

// BlockMultiplicity returns how many merged blocks block i accounts for
// (0 if block i was merged into another block).
func (d *Decomp) BlockMultiplicity(i int) int {
	if i < 0 || i >= len(d.multiplicity) {
		return 0
	}
	return d.multiplicity[i]
}

// MasterConstraints returns the master images of the original global
// constraints.
func (d *Decomp) MasterConstraints() []*Constraint {
	if d.master == nil {
		return nil
	}
	return d.master.GlobalConss
}

// CurrentOriginalSolution returns the original-space solution cached by the
// last master solve, or nil if none exists. The map is keyed by original
// variables; callers must not mutate it.
func (d *Decomp) CurrentOriginalSolution() map[*Variable]float64 { return d.curOrigSol }

// IsCurrentSolutionFeasible reports whether the cached original-space
// solution satisfies the original problem within tolerance.
func (d *Decomp) IsCurrentSolutionFeasible() bool { return d.curFeasible }

func (d *Decomp) numRelevantBlocks() int {
	n := 0
	for i := range d.representative {
		if d.IsBlockRelevant(i) {
			n++
		}
	}
	return n
}

//==============================================================================
// INVARIANT SWEEP
//==============================================================================

// Validate sweeps the built decomposition and reports the first violated
// structural invariant as an *InvariantError. Hosts may call it after
// manipulating the data model; the test suite leans on it heavily.
func (d *Decomp) Validate() error {
	if !d.built {
		return errors.New("decomposition not built")
	}

	for _, v := range d.Orig.Vars {
		od, err := origData(v)
		if err != nil {
			return err
		}
		switch {
		case od.Block >= 0:
			if od.PricingVar == nil {
				return &InvariantError{Block: od.Block, Var: v.Name, Msg: "block variable has no pricing counterpart"}
			}
			pd, err := pricingData(od.PricingVar)
			if err != nil {
				return err
			}
			if d.representative[od.Block] != pd.Block {
				return &InvariantError{Block: od.Block, Var: v.Name,
					Msg: "pricing counterpart does not live in the representative block"}
			}
		case od.Block == BlockLinking:
			n := 0
			for _, pv := range od.LinkVars {
				if pv != nil {
					n++
				}
			}
			if n < 2 {
				return &InvariantError{Block: BlockLinking, Var: v.Name, Msg: "linking variable with fewer than two replicas"}
			}
		}
	}

	for _, mv := range d.master.Prob.Vars {
		md, err := masterData(mv)
		if err != nil {
			return err
		}
		if md.IsArtificial {
			continue
		}
		if md.Block == BlockUnassigned {
			if len(md.OrigVars) != 1 || md.OrigVals[0] != 1 {
				return &InvariantError{Block: BlockUnassigned, Var: mv.Name,
					Msg: "direct-transfer master variable must represent one original variable with value 1"}
			}
		}
		if len(md.OrigVars) != len(md.OrigVals) {
			return &InvariantError{Block: md.Block, Var: mv.Name, Msg: "ragged column coordinates"}
		}
	}

	for b, cc := range d.master.ConvConss {
		if !d.IsBlockRelevant(b) {
			if cc != nil {
				return &InvariantError{Block: b, Var: "", Msg: "merged-away block still owns a convexity constraint"}
			}
			continue
		}
		if cc == nil {
			return &InvariantError{Block: b, Var: "", Msg: "represented block has no convexity constraint"}
		}
		mult := float64(d.multiplicity[b])
		if math.Abs(cc.Lhs-mult) > d.Settings.Tolerance || math.Abs(cc.Rhs-mult) > d.Settings.Tolerance {
			return &InvariantError{Block: b, Var: "",
				Msg: "convexity constraint bounds disagree with block multiplicity"}
		}
	}

	return nil
}
