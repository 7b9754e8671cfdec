/*

Executable provides examples of gcg use on a small production-planning model.

SUMMARY

This executable provides examples of how the gcg package can be used to
decompose a problem with block structure and solve its root relaxation by
column generation. The sub-problems are solved through the HiGHS callable
library, which must be installed for option 3 to work.

The user must select one of the provided options to perform the desired task.
To redisplay the available options, enter a blank line or any other
"unsupported" option.

The options available from the main menu are:

    0 - exit program
    1 - build the demo problem and its decomposition
    2 - display the master and pricing problems
    3 - run column generation on the root node using HiGHS
    4 - display the solution in original-problem terms

Build the demo problem

This option populates the original problem, a two-machine production model
with one capacity constraint per machine and two global demand constraints,
designates each capacity constraint as one block, and builds the
decomposition. The two machines are identical, so block aggregation merges
them: the master ends up with a single convexity constraint whose sides equal
the merged multiplicity of two. The main functions that are called are:

   NewProblem           - Create the original problem.
   AddVariable          - Add the production variables of both machines.
   AddLinearConstraint  - Add the capacity and demand constraints.
   NewDecomp            - Wrap the problem in a decomposition context.
   Build                - Validate the partition and build the master and
                          pricing problems, aggregating identical blocks.

Display the master and pricing problems

This option shows the constraints of the master problem and the variables of
each pricing problem in their raw form. It is not "pretty", but is useful for
seeing what Build produced: the master images of the demand constraints start
with zero terms and grow as columns are generated.

Run column generation

This option hands the root node to PerformRelaxation, which alternates master
solves and pricing solves until no improving column exists, and then maps the
master solution back onto the original variables. The node state, the lower
bound, and the work counters are displayed. If the run reports that it did
not run to completion, the node must simply be re-run; this is a retry
condition, not an error.

Display the solution

This option shows the solution of the last relaxation run in terms of the
original problem variables, together with the feasibility verdict of the
built-in original-space check.

*/
package main
