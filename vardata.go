package gcg

// vardata: the decomposition data model. Every variable of the original,
// master, and pricing problems carries a tagged VarData record linking it to
// its counterparts in the other spaces. The three kinds are mutually
// exclusive; dispatch is by type switch on the VarData interface.

import (
	"github.com/pkg/errors"
)

// Block assignment markers used in OrigVarData.Block.
const (
	// BlockUnassigned marks an original variable that belongs to no block
	// and is transferred directly into the master problem.
	BlockUnassigned = -1
	// BlockLinking marks an original variable that spans several blocks and
	// is replicated once per block it touches.
	BlockLinking = -2
	// BlockMaster marks a constraint kept global (in the master problem).
	BlockMaster = -1
)

// VarKind tags the three variable roles.
type VarKind int

const (
	OrigKind VarKind = iota
	PricingKind
	MasterKind
)

// VarData is the tagged record attached to every variable of a
// decomposition. Exactly one of OrigVarData, PricingVarData, and
// MasterVarData implements it per variable.
type VarData interface {
	Kind() VarKind
}

// WeightedMaster records that a master variable includes the owning
// original variable with the given coefficient (the original variable's
// value in the column the master variable represents).
type WeightedMaster struct {
	Var  *Variable
	Coef float64
}

// MasterConsCoef records the owning original variable's participation in
// one global (master) constraint of the original problem.
type MasterConsCoef struct {
	Coef float64
	Cons *Constraint // the original global constraint
}

// OrigVarData is attached to variables of the original problem.
type OrigVarData struct {
	// Block is the block index 0..B-1, BlockUnassigned, or BlockLinking.
	Block int
	// PricingVar is the single pricing-variable counterpart of a
	// block-assigned, non-linking variable. After block aggregation it
	// always points at the representative block's pricing variable.
	PricingVar *Variable
	// MasterVars lists every master variable this original variable appears
	// in, with its value in that column. Grows as columns are generated.
	MasterVars []WeightedMaster
	// MasterConss lists this variable's coefficients in the original
	// problem's global constraints. Fixed at build time; aggregation uses
	// it as the structural participation signature.
	MasterConss []MasterConsCoef
	// LinkVars holds, for a linking variable, one pricing-variable replica
	// per block (nil for blocks the variable does not touch). Nil for
	// non-linking variables.
	LinkVars []*Variable
	// LinkConss holds, for a linking variable, the master-side equality
	// constraint synchronizing each non-reference block's replica with the
	// reference replica (nil for untouched blocks and the reference block).
	LinkConss []*Constraint
}

func (*OrigVarData) Kind() VarKind { return OrigKind }

// PricingVarData is attached to variables of the pricing problems.
type PricingVarData struct {
	// Block is the index of the owning pricing problem.
	Block int
	// OrigVars lists the original variables this pricing variable stands
	// for: one entry normally, several after aggregation merges identical
	// blocks. Entry 0 is the aggregation-class representative.
	OrigVars []*Variable
}

func (*PricingVarData) Kind() VarKind { return PricingKind }

// MasterVarData is attached to variables of the master problem. Each
// represents one extreme point or ray of a block's polyhedron, or the
// direct transfer of an unassigned original variable.
type MasterVarData struct {
	// Block is the (representative) block the column was generated from,
	// or BlockUnassigned for a direct-transfer variable.
	Block int
	// IsRay distinguishes extreme rays from extreme points. Ray columns do
	// not enter the block's convexity constraint.
	IsRay bool
	// IsArtificial marks a bootstrap column seeded at Build time. Such a
	// column has no original-space coordinates.
	IsArtificial bool
	// OrigVars/OrigVals are the column's coordinates in original space.
	// A direct-transfer variable has exactly one entry with value 1.
	OrigVars []*Variable
	OrigVals []float64
}

func (*MasterVarData) Kind() VarKind { return MasterKind }

//==============================================================================
// DATA ACCESS HELPERS
//==============================================================================

func origData(v *Variable) (*OrigVarData, error) {
	d, ok := v.Data.(*OrigVarData)
	if !ok {
		return nil, errors.Errorf("variable %s is not an original variable", v.Name)
	}
	return d, nil
}

func pricingData(v *Variable) (*PricingVarData, error) {
	d, ok := v.Data.(*PricingVarData)
	if !ok {
		return nil, errors.Errorf("variable %s is not a pricing variable", v.Name)
	}
	return d, nil
}

func masterData(v *Variable) (*MasterVarData, error) {
	d, ok := v.Data.(*MasterVarData)
	if !ok {
		return nil, errors.Errorf("variable %s is not a master variable", v.Name)
	}
	return d, nil
}

// IsLinkingVar reports whether v is an original variable spanning several
// blocks.
func IsLinkingVar(v *Variable) bool {
	d, ok := v.Data.(*OrigVarData)
	return ok && d.Block == BlockLinking
}

// IsLinkingVarInBlock reports whether the linking variable v has a replica
// in the given block. It returns false for non-linking variables and for
// out-of-range blocks.
func IsLinkingVarInBlock(v *Variable, block int) bool {
	d, ok := v.Data.(*OrigVarData)
	if !ok || d.Block != BlockLinking {
		return false
	}
	if block < 0 || block >= len(d.LinkVars) {
		return false
	}
	return d.LinkVars[block] != nil
}

// LinkingBlocks returns the blocks a linking variable touches, in index
// order, or nil for non-linking variables.
func LinkingBlocks(v *Variable) []int {
	d, ok := v.Data.(*OrigVarData)
	if !ok || d.Block != BlockLinking {
		return nil
	}
	var blocks []int
	for b, pv := range d.LinkVars {
		if pv != nil {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

//==============================================================================
// ERROR TYPES
//==============================================================================

// PartitionError is the fatal condition raised when the supplied block
// partition is internally inconsistent, e.g. a block constraint references
// a variable with no pricing image in that block.
type PartitionError struct {
	Block int
	Var   string
	Cons  string
	Msg   string
}

func (e *PartitionError) Error() string {
	s := "inconsistent partition"
	if e.Cons != "" {
		s += " at constraint " + e.Cons
	}
	if e.Var != "" {
		s += ", variable " + e.Var
	}
	return errors.Errorf("%s (block %d): %s", s, e.Block, e.Msg).Error()
}

// InvariantError is the fatal condition raised when the decomposition data
// model violates one of its structural invariants. It identifies the block
// and variable involved so the defect can be traced, and must never be
// swallowed: a violated invariant means any reconstructed solution would be
// silently wrong.
type InvariantError struct {
	Block int
	Var   string
	Msg   string
}

func (e *InvariantError) Error() string {
	return errors.Errorf("decomposition invariant violated (block %d, variable %s): %s",
		e.Block, e.Var, e.Msg).Error()
}
