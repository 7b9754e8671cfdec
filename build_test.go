package gcg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBlockFixture builds the canonical small decomposition: four variables,
// two per block, one global constraint x1+x3 <= 5, one local constraint per
// block. The block objectives differ so aggregation finds nothing to merge.
func twoBlockFixture(t *testing.T) (*Decomp, *Problem) {
	t.Helper()

	orig := NewProblem("two_block")
	x1 := orig.AddVariable("x1", 0, 4, IntegerVar, 1)
	x2 := orig.AddVariable("x2", 0, 4, IntegerVar, 1)
	x3 := orig.AddVariable("x3", 0, 4, IntegerVar, 2)
	x4 := orig.AddVariable("x4", 0, 4, IntegerVar, 2)

	_, err := orig.AddLinearConstraint("global", NegInf(), 5, []*Variable{x1, x3}, []float64{1, 1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("local0", NegInf(), 4, []*Variable{x1, x2}, []float64{1, 1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("local1", NegInf(), 4, []*Variable{x3, x4}, []float64{1, 1})
	require.NoError(t, err)

	d := NewDecomp(orig, DefaultSettings())
	require.NoError(t, d.Build(Partition{
		NBlocks:   2,
		VarBlock:  []int{0, 0, 1, 1},
		ConsBlock: []int{BlockMaster, 0, 1},
	}))
	return d, orig
}

func TestBuildTwoBlockPartition(t *testing.T) {
	d, orig := twoBlockFixture(t)

	m := d.MasterProblem()
	require.NotNil(t, m)

	// one global constraint image plus one convexity constraint per block
	assert.Len(t, m.GlobalConss, 1)
	require.NotNil(t, m.ConvConss[0])
	require.NotNil(t, m.ConvConss[1])
	assert.Len(t, m.Prob.Conss, 3)

	// the image keeps the original sides but starts without terms
	img := m.GlobalConss[0]
	assert.Equal(t, 5.0, img.Rhs)
	assert.Empty(t, img.Terms)
	assert.Equal(t, orig.Conss[0], img.Orig)

	// each pricing problem holds exactly its block: 2 variables, 1 local
	// constraint, no global constraints
	for b := 0; b < 2; b++ {
		pp := d.PricingProblem(b)
		require.NotNil(t, pp)
		assert.Len(t, pp.Prob.Vars, 2, "block %d", b)
		assert.Len(t, pp.Prob.Conss, 1, "block %d", b)
		assert.True(t, d.IsBlockRelevant(b))
		assert.Equal(t, 1, d.BlockMultiplicity(b))
	}

	// convexity bounds equal the (unaggregated) multiplicity
	assert.Equal(t, 1.0, m.ConvConss[0].Lhs)
	assert.Equal(t, 1.0, m.ConvConss[0].Rhs)

	// pricing images start with a zero objective and mirror bounds/type
	x1 := orig.VarByName("x1")
	od := x1.Data.(*OrigVarData)
	require.NotNil(t, od.PricingVar)
	assert.Equal(t, 0.0, od.PricingVar.Obj)
	assert.Equal(t, x1.Ub, od.PricingVar.Ub)
	assert.Equal(t, x1.Type, od.PricingVar.Type)

	// participation signature: x1 appears in the global constraint with 1
	require.Len(t, od.MasterConss, 1)
	assert.Equal(t, 1.0, od.MasterConss[0].Coef)

	assert.NoError(t, d.Validate())
}

func TestBuildLinkingVariable(t *testing.T) {
	orig := NewProblem("linking")
	y := orig.AddVariable("y", 0, 2, ContinuousVar, 1)
	w0 := orig.AddVariable("w0", 0, 1, ContinuousVar, 1)
	w1 := orig.AddVariable("w1", 0, 1, ContinuousVar, 1)

	_, err := orig.AddLinearConstraint("local0", NegInf(), 2, []*Variable{y, w0}, []float64{1, 1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("local1", NegInf(), 2, []*Variable{y, w1}, []float64{1, 1})
	require.NoError(t, err)

	d := NewDecomp(orig, DefaultSettings())
	require.NoError(t, d.Build(Partition{
		NBlocks:   2,
		VarBlock:  []int{BlockLinking, 0, 1},
		VarLinks:  [][]int{{0, 1}, nil, nil},
		ConsBlock: []int{0, 1},
	}))

	od := y.Data.(*OrigVarData)

	// one replica per touched block
	require.NotNil(t, od.LinkVars[0])
	require.NotNil(t, od.LinkVars[1])
	assert.Equal(t, []int{0, 1}, LinkingBlocks(y))

	// one linking equality row in the master, for the non-reference block
	m := d.MasterProblem()
	require.Len(t, m.LinkConss, 1)
	assert.Nil(t, od.LinkConss[0])
	assert.Equal(t, m.LinkConss[0], od.LinkConss[1])
	assert.Equal(t, 0.0, m.LinkConss[0].Lhs)
	assert.Equal(t, 0.0, m.LinkConss[0].Rhs)

	assert.True(t, IsLinkingVarInBlock(y, 0))
	assert.True(t, IsLinkingVarInBlock(y, 1))
	assert.False(t, IsLinkingVarInBlock(y, 2))
	assert.False(t, IsLinkingVarInBlock(w0, 0))

	assert.NoError(t, d.Validate())
}

func TestBuildDirectTransfer(t *testing.T) {
	orig := NewProblem("transfer")
	x := orig.AddVariable("x", 0, 3, IntegerVar, 4)
	z := orig.AddVariable("z", 0, 1, ContinuousVar, 1)

	_, err := orig.AddLinearConstraint("global", 1, Inf(), []*Variable{x, z}, []float64{2, 1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("local", NegInf(), 1, []*Variable{z}, []float64{1})
	require.NoError(t, err)

	d := NewDecomp(orig, DefaultSettings())
	require.NoError(t, d.Build(Partition{
		NBlocks:   1,
		VarBlock:  []int{BlockUnassigned, 0},
		ConsBlock: []int{BlockMaster, 0},
	}))

	// x was copied 1:1 into the master with its objective; the remaining
	// master variables are the bootstrap columns
	m := d.MasterProblem()
	require.Len(t, m.Prob.Vars, 3)
	mv := m.Prob.Vars[0]
	assert.Equal(t, 4.0, mv.Obj)
	assert.Equal(t, 3.0, mv.Ub)

	md := mv.Data.(*MasterVarData)
	assert.Equal(t, BlockUnassigned, md.Block)
	assert.False(t, md.IsArtificial)
	assert.Equal(t, []*Variable{x}, md.OrigVars)
	assert.Equal(t, []float64{1.0}, md.OrigVals)

	// and participates in the global image with its original coefficient,
	// ahead of the image's bootstrap column
	img := m.GlobalConss[0]
	require.Len(t, img.Terms, 2)
	assert.Equal(t, mv, img.Terms[0].Var)
	assert.Equal(t, 2.0, img.Terms[0].Coef)

	assert.NoError(t, d.Validate())
}

func TestBuildArtificialBootstrap(t *testing.T) {
	orig := NewProblem("bootstrap")
	x := orig.AddVariable("x", 0, 10, ContinuousVar, 1)

	// violated at zero from below, satisfied at zero, violated from above
	_, err := orig.AddLinearConstraint("ge", 3, Inf(), []*Variable{x}, []float64{1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("le", NegInf(), 5, []*Variable{x}, []float64{1})
	require.NoError(t, err)
	_, err = orig.AddLinearConstraint("neg", NegInf(), -1, []*Variable{x}, []float64{-1})
	require.NoError(t, err)

	d := NewDecomp(orig, DefaultSettings())
	require.NoError(t, d.Build(Partition{
		NBlocks:   1,
		VarBlock:  []int{0},
		ConsBlock: []int{BlockMaster, BlockMaster, BlockMaster},
	}))

	// one artificial for the positive lhs, one for the negative rhs, and
	// one for the convexity row; none for the row feasible at zero
	m := d.MasterProblem()
	require.Len(t, d.artificials, 3)
	names := make(map[string]*Variable)
	for _, av := range d.artificials {
		names[av.Name] = av
		md := av.Data.(*MasterVarData)
		assert.True(t, md.IsArtificial)
		assert.Equal(t, 0.0, av.Lb)
		assert.True(t, math.IsInf(av.Ub, 1))
		assert.Equal(t, d.Settings.ArtificialCost, av.Obj)
	}
	require.Contains(t, names, "art_m_ge_lo")
	require.Contains(t, names, "art_m_neg_up")
	require.Contains(t, names, "art_conv_0_lo")
	assert.NotContains(t, names, "art_m_le_lo")
	assert.NotContains(t, names, "art_m_le_up")

	// coefficients push the violated side toward feasibility
	geImg := m.GlobalConss[0]
	require.Len(t, geImg.Terms, 1)
	assert.Equal(t, 1.0, geImg.Terms[0].Coef)
	negImg := m.GlobalConss[2]
	require.Len(t, negImg.Terms, 1)
	assert.Equal(t, -1.0, negImg.Terms[0].Coef)
	leImg := m.GlobalConss[1]
	assert.Empty(t, leImg.Terms)

	assert.NoError(t, d.Validate())
}

func TestBuildWithoutArtificials(t *testing.T) {
	orig := NewProblem("no_bootstrap")
	orig.AddVariable("x", 0, 10, ContinuousVar, 1)

	s := DefaultSettings()
	s.ArtificialCost = 0
	d := NewDecomp(orig, s)
	require.NoError(t, d.Build(Partition{
		NBlocks:  1,
		VarBlock: []int{0},
	}))

	assert.Empty(t, d.artificials)
	assert.Empty(t, d.MasterProblem().Prob.Vars)
}

func TestBuildInconsistentPartitionIsFatal(t *testing.T) {
	orig := NewProblem("broken")
	a := orig.AddVariable("a", 0, 1, ContinuousVar, 1)
	b := orig.AddVariable("b", 0, 1, ContinuousVar, 1)

	// constraint assigned to block 0 references b, which lives in block 1
	_, err := orig.AddLinearConstraint("bad", NegInf(), 1, []*Variable{a, b}, []float64{1, 1})
	require.NoError(t, err)

	d := NewDecomp(orig, DefaultSettings())
	err = d.Build(Partition{
		NBlocks:   2,
		VarBlock:  []int{0, 1},
		ConsBlock: []int{0},
	})
	require.Error(t, err)

	var perr *PartitionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, perr.Block)
	assert.Equal(t, "b", perr.Var)
	assert.Equal(t, "bad", perr.Cons)
}

func TestPartitionValidation(t *testing.T) {
	orig := NewProblem("shape")
	orig.AddVariable("a", 0, 1, ContinuousVar, 1)

	d := NewDecomp(orig, DefaultSettings())

	// wrong variable coverage
	err := d.Build(Partition{NBlocks: 1, VarBlock: []int{0, 0}, ConsBlock: nil})
	assert.Error(t, err)

	// linking variable with a single block is rejected
	err = d.Build(Partition{
		NBlocks:  2,
		VarBlock: []int{BlockLinking},
		VarLinks: [][]int{{0}},
	})
	assert.Error(t, err)

	// out-of-range block index
	err = d.Build(Partition{NBlocks: 1, VarBlock: []int{3}})
	assert.Error(t, err)
}
