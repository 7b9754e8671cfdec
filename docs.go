/*
Package gcg ("generic column generation") provides a Go language engine for
Dantzig-Wolfe decomposition of mixed-integer linear programs. Given an
original problem whose constraints and variables are partitioned into
independent blocks plus a set of global linking constraints, the package
builds a reformulated master problem (one column per extreme point or ray of
each block's polyhedron) and per-block pricing sub-problems, coordinates
their solution via column generation, and translates solutions between the
original variable space and the master space.

Some of the main capabilities include:
  - building models directly via the Problem data structures
  - constructing master and pricing problems from a block partition
  - aggregating structurally identical pricing blocks
  - driving the column-generation loop node by node
  - transforming solutions between original and master space

The underlying LP/MIP solving is delegated to a SubSolver. The package ships
an adapter for the HiGHS solver (via github.com/lanl/highs) in ifhighs.go;
any other solver can be plugged in by implementing the SubSolver interface.
Pricing itself is likewise pluggable through the PricingSolver interface,
with a default implementation (MIPPricer) that solves each pricing
sub-problem as a MIP through the configured SubSolver.

# Building a decomposition

A decomposition is created from an original Problem and a Partition that
assigns every variable and constraint to a block (or marks it as linking or
global). The control structure Settings selects tolerances and limits:

	orig := gcg.NewProblem("bins")
	x1 := orig.AddVariable("x1", 0, 10, gcg.ContinuousVar, 2)
	...
	d := gcg.NewDecomp(orig, gcg.DefaultSettings())
	if err := d.Build(part); err != nil {
		// the partition was inconsistent; nothing was built
	}

After Build, the master problem, the pricing problems, and the per-block
representative/multiplicity bookkeeping are available through accessors, and
PerformRelaxation drives one node-synchronized column-generation solve.

# Solution transformation

TransMasterToOrig reconstructs an original-space solution from a weighted
combination of master columns, honoring the convexity-constraint semantics:
ray columns contribute directly, integral column weight is routed copy by
copy across aggregated blocks, and fractional weight is packed so that each
of a block's multiplicity-many copies receives total weight one.
TransOrigToMaster maps a point in original space onto the current master
columns, which is what a host needs when injecting externally generated
cuts into the master.

# Scope

The package deliberately does not implement a general MIP solver, a
branch-and-bound search, or graph-isomorphism detection for block identity;
those are consumed through the SubSolver, host-node, and
BlockIdentityOracle interfaces respectively.
*/
package gcg
