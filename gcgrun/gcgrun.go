//==============================================================================
// gcgrun: Executable for running some gcg functions.

// This file contains wrapper functions demonstrating how the main gcg
// functions are used on a small production-planning example.

package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	gcg "github.com/scipopt/gcg-sub009"
)

// Package global data structures for the demo problem. They are global to
// avoid having to pass them in function calls (as SHOULD be done) in this
// sample program.
var demoProb   *gcg.Problem     // original problem
var demoDecomp *gcg.Decomp      // decomposition context
var demoResult *gcg.RelaxResult // result of the last relaxation run
var demoNode   *gcg.Node        // root node handed to the coordinator

//==============================================================================

// printOptions displays the options that are available for testing.
// The function accepts no arguments and returns no values.
func printOptions() {

	fmt.Println("\nAvailable Options:")
	fmt.Println()

	fmt.Println(" 0 - EXIT program")
	fmt.Println(" 1 - build the demo problem and its decomposition")
	fmt.Println(" 2 - display the master and pricing problems")
	fmt.Println(" 3 - run column generation on the root node using HiGHS")
	fmt.Println(" 4 - display the solution in original-problem terms")

}

//==============================================================================

// wpBuildDemo populates the original problem and builds the decomposition.
// The model is a two-machine production problem: each machine can produce
// goods A and B within its capacity, and total production must cover demand.
// The two machines are identical, so block aggregation merges them and the
// master carries a single convexity constraint with multiplicity two.
// In case of failure, the function returns an error.
func wpBuildDemo() error {
	var vars  []*gcg.Variable // variable list for building constraints
	var part  gcg.Partition   // block designations
	var err   error           // error received from called functions

	fmt.Printf("\nThis example builds a problem with one capacity constraint per\n")
	fmt.Printf("machine and global demand constraints, designates the capacity\n")
	fmt.Printf("constraints as blocks, and builds the decomposition.\n\n")

	demoProb = gcg.NewProblem("production")

	// Production of goods A and B on each of the two machines. Cost and
	// capacity usage are the same on both machines.
	for m := 0; m < 2; m++ {
		a := demoProb.AddVariable(fmt.Sprintf("a%d", m), 0, 6, gcg.IntegerVar, 4)
		b := demoProb.AddVariable(fmt.Sprintf("b%d", m), 0, 4, gcg.IntegerVar, 7)
		vars = append(vars, a, b)
	}

	// One capacity constraint per machine: 2a + 3b <= 12.
	for m := 0; m < 2; m++ {
		_, err = demoProb.AddLinearConstraint(fmt.Sprintf("cap%d", m),
			gcg.NegInf(), 12,
			[]*gcg.Variable{vars[2*m], vars[2*m+1]}, []float64{2, 3})
		if err != nil {
			return errors.Wrap(err, "wpBuildDemo failed to add capacity constraint")
		}
	}

	// Global demand constraints coupling the machines.
	_, err = demoProb.AddLinearConstraint("demandA", 5, gcg.Inf(),
		[]*gcg.Variable{vars[0], vars[2]}, []float64{1, 1})
	if err != nil {
		return errors.Wrap(err, "wpBuildDemo failed to add demand constraint")
	}
	_, err = demoProb.AddLinearConstraint("demandB", 3, gcg.Inf(),
		[]*gcg.Variable{vars[1], vars[3]}, []float64{1, 1})
	if err != nil {
		return errors.Wrap(err, "wpBuildDemo failed to add demand constraint")
	}

	// Each machine is one block; the demand constraints stay in the master.
	part = gcg.Partition{
		NBlocks:   2,
		VarBlock:  []int{0, 0, 1, 1},
		ConsBlock: []int{0, 1, gcg.BlockMaster, gcg.BlockMaster},
	}

	demoDecomp = gcg.NewDecomp(demoProb, gcg.DefaultSettings())
	demoDecomp.Solver = &gcg.HighsSolver{}

	if err = demoDecomp.Build(part); err != nil {
		return errors.Wrap(err, "wpBuildDemo failed to build the decomposition")
	}

	fmt.Printf("Decomposition built: %d blocks, %d relevant after aggregation.\n",
		demoDecomp.NBlocks(), countRelevant())

	return nil
}

//==============================================================================

// countRelevant returns the number of blocks which survived aggregation as
// their own representative.
func countRelevant() int {
	var count int

	for b := 0; b < demoDecomp.NBlocks(); b++ {
		if demoDecomp.IsBlockRelevant(b) {
			count++
		}
	}
	return count
}

//==============================================================================

// wpShowDecomp prints the structure of the master and pricing problems in a
// formatted manner. The function accepts no arguments. In case of failure,
// the function returns an error.
func wpShowDecomp() error {

	if demoDecomp == nil {
		return errors.New("decomposition not built, please run option 1 first")
	}

	m := demoDecomp.MasterProblem()
	fmt.Printf("\nMASTER PROBLEM %s\n\n", m.Prob.Name)
	fmt.Printf("%6s  %-12s %15s %15s %8s\n", "INDEX", "NAME", "LHS", "RHS", "TERMS")
	for _, c := range m.Prob.Conss {
		fmt.Printf("%6d  %-12s %15e %15e %8d\n", c.Index, c.Name, c.Lhs, c.Rhs, len(c.Terms))
	}

	for b := 0; b < demoDecomp.NBlocks(); b++ {
		if !demoDecomp.IsBlockRelevant(b) {
			fmt.Printf("\nBLOCK %d merged into block %d\n",
				b, demoDecomp.BlockRepresentative(b))
			continue
		}
		pp := demoDecomp.PricingProblem(b)
		fmt.Printf("\nPRICING PROBLEM %s (multiplicity %d)\n",
			pp.Prob.Name, demoDecomp.BlockMultiplicity(b))
		fmt.Printf("%6s  %-12s %15s %15s %-10s\n", "INDEX", "NAME", "LB", "UB", "TYPE")
		for _, v := range pp.Prob.Vars {
			fmt.Printf("%6d  %-12s %15e %15e %-10s\n", v.Index, v.Name, v.Lb, v.Ub, v.Type)
		}
	}

	return nil
}

//==============================================================================

// wpSolveDemo runs the column-generation loop on the root node. The function
// accepts no arguments. In case of failure, the function returns an error.
func wpSolveDemo() error {
	var err error

	if demoDecomp == nil {
		return errors.New("decomposition not built, please run option 1 first")
	}

	demoNode = &gcg.Node{ID: 1}
	demoResult, err = demoDecomp.PerformRelaxation(context.Background(), demoNode)
	if err != nil {
		return errors.Wrap(err, "wpSolveDemo failed to perform the relaxation")
	}

	fmt.Printf("\nNode state ......... %s\n", demoResult.State)
	fmt.Printf("Completed .......... %t\n", demoResult.Completed)
	fmt.Printf("Lower bound ........ %f\n", demoResult.LowerBound)
	fmt.Printf("Pricing rounds ..... %d\n", demoResult.Rounds)
	fmt.Printf("Columns added ...... %d\n", demoResult.ColumnsAdded)

	if !demoResult.Completed {
		fmt.Printf("WARNING: the loop did not run to completion, re-run option 3.\n")
	}

	return nil
}

//==============================================================================

// wpShowSoln prints the solution of the last relaxation run in terms of the
// original problem. The function accepts no arguments. In case of failure,
// the function returns an error.
func wpShowSoln() error {

	if demoResult == nil {
		return errors.New("no solution available, please run option 3 first")
	}

	sol := demoDecomp.CurrentOriginalSolution()
	if sol == nil {
		return errors.New("the last run produced no original-space solution")
	}

	fmt.Printf("\nOBJECTIVE LOWER BOUND = %f\n", demoResult.LowerBound)
	fmt.Printf("FEASIBLE IN ORIGINAL  = %t\n\n", demoDecomp.IsCurrentSolutionFeasible())

	fmt.Printf("%6s  %-10s %15s\n", "INDEX", "NAME", "VALUE")
	for _, v := range demoProb.Vars {
		fmt.Printf("%6d  %-10s %15e\n", v.Index, v.Name, sol[v])
	}

	return nil
}

//==============================================================================

// main controls the interaction with the user and calls the wrapper functions
// which illustrate the gcg functionality.
func main() {
	var userString string // option entered by the user
	var err        error  // error received from called functions

	fmt.Println("\nSample program illustrating decomposition and column generation.")

	for {
		printOptions()
		userString = ""
		fmt.Printf("\nEnter a new option: ")
		fmt.Scanln(&userString)

		err = nil
		switch userString {
		case "0":
			fmt.Println("\nNormal program termination.")
			return
		case "1":
			err = wpBuildDemo()
		case "2":
			err = wpShowDecomp()
		case "3":
			err = wpSolveDemo()
		case "4":
			err = wpShowSoln()
		default:
			fmt.Printf("Unsupported option: '%s'\n", userString)
		}

		if err != nil {
			fmt.Printf("\nERROR: %s\n", err)
		}
	}
}
