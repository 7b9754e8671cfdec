package gcg

// problem: the sub-problem modeling layer shared by the original problem,
// the master problem, and the pricing problems. A Problem is a collection of
// bounded, typed variables and linear constraints together with an objective;
// solving it is delegated to a SubSolver implementation.

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
)

// VarType identifies the domain of a variable.
type VarType int

const (
	ContinuousVar VarType = iota
	IntegerVar
	BinaryVar
)

func (t VarType) String() string {
	switch t {
	case ContinuousVar:
		return "continuous"
	case IntegerVar:
		return "integer"
	case BinaryVar:
		return "binary"
	}
	return "unknown"
}

// Variable is one column of a Problem. Its decomposition role (original,
// pricing, or master) is carried by the tagged Data field; see vardata.go.
type Variable struct {
	Name  string
	Index int     // position within the owning problem
	Obj   float64 // objective coefficient
	Lb    float64
	Ub    float64
	Type  VarType
	Data  VarData
}

// Term is one (variable, coefficient) entry of a linear constraint.
type Term struct {
	Var  *Variable
	Coef float64
}

// Constraint is one linear row of a Problem: Lhs <= sum(Terms) <= Rhs.
// Use math.Inf for one-sided rows. Orig links a master-problem image back
// to the original constraint it was copied from, and is nil everywhere else.
type Constraint struct {
	Name  string
	Index int // position within the owning problem
	Lhs   float64
	Rhs   float64
	Terms []Term
	Orig  *Constraint
}

// AddCoef appends a (variable, coefficient) term to the constraint. Master
// constraints are created with zero terms and grow as columns are generated.
func (c *Constraint) AddCoef(v *Variable, coef float64) {
	c.Terms = append(c.Terms, Term{Var: v, Coef: coef})
}

// Coef returns the coefficient of v in the constraint, 0 if absent.
func (c *Constraint) Coef(v *Variable) float64 {
	for _, t := range c.Terms {
		if t.Var == v {
			return t.Coef
		}
	}
	return 0
}

// Problem is an independent solver instance: the original problem, the
// master problem, and each pricing problem are separate Problem values.
type Problem struct {
	Name     string
	Maximize bool
	ObjConst float64 // constant term of the objective
	Vars     []*Variable
	Conss    []*Constraint

	byName map[string]*Variable
}

// NewProblem returns an empty minimization problem with the given name.
func NewProblem(name string) *Problem {
	return &Problem{
		Name:   name,
		byName: make(map[string]*Variable),
	}
}

// AddVariable appends a variable with the given bounds, type, and objective
// coefficient, and returns it. Names are expected to be unique within one
// problem; a duplicate name silently shadows the older variable in lookups.
func (p *Problem) AddVariable(name string, lb, ub float64, vtype VarType, obj float64) *Variable {
	v := &Variable{
		Name:  name,
		Index: len(p.Vars),
		Obj:   obj,
		Lb:    lb,
		Ub:    ub,
		Type:  vtype,
	}
	p.Vars = append(p.Vars, v)
	p.byName[name] = v
	return v
}

// VarByName returns the variable with the given name, or nil.
func (p *Problem) VarByName(name string) *Variable {
	return p.byName[name]
}

// AddLinearConstraint appends the constraint lhs <= sum(coefs[i]*vars[i]) <= rhs
// and returns it. The variable and coefficient lists must have equal length
// and every variable must belong to this problem.
func (p *Problem) AddLinearConstraint(name string, lhs, rhs float64, vars []*Variable, coefs []float64) (*Constraint, error) {
	if len(vars) != len(coefs) {
		return nil, errors.Errorf("constraint %s: %d variables but %d coefficients", name, len(vars), len(coefs))
	}

	c := &Constraint{
		Name:  name,
		Index: len(p.Conss),
		Lhs:   lhs,
		Rhs:   rhs,
	}
	for i, v := range vars {
		if v == nil || v.Index >= len(p.Vars) || p.Vars[v.Index] != v {
			return nil, errors.Errorf("constraint %s: variable %d does not belong to problem %s", name, i, p.Name)
		}
		c.Terms = append(c.Terms, Term{Var: v, Coef: coefs[i]})
	}
	p.Conss = append(p.Conss, c)
	return c, nil
}

// Activity evaluates the left-hand side of c at the point given by vals,
// a map from variables to values (absent variables count as 0).
func (c *Constraint) Activity(vals map[*Variable]float64) float64 {
	act := 0.0
	for _, t := range c.Terms {
		act += t.Coef * vals[t.Var]
	}
	return act
}

// IsMip reports whether the problem contains any non-continuous variable.
func (p *Problem) IsMip() bool {
	for _, v := range p.Vars {
		if v.Type != ContinuousVar {
			return true
		}
	}
	return false
}

//==============================================================================
// SOLVER CAPABILITY
//==============================================================================

// SolveStatus is the outcome reported by a SubSolver.
type SolveStatus int

const (
	StatusUnknown SolveStatus = iota
	StatusOptimal
	StatusInfeasible
	StatusUnbounded
	StatusTimeLimit
	StatusNodeLimit
	StatusError
)

func (s SolveStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeLimit:
		return "time limit"
	case StatusNodeLimit:
		return "node limit"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// SolveLimits bounds one invocation of a SubSolver.
type SolveLimits struct {
	Time       time.Duration // 0 means no limit
	Nodes      int64         // 0 means no limit
	Relaxation bool          // solve the LP relaxation, ignoring integrality
}

// SolveResult carries the best solution and dual information of one solve.
// Objective is the full objective value at the solution, including the
// problem's constant term ObjConst; consumers must not add it again.
// ColValues is aligned with Problem.Vars and RowDuals with Problem.Conss.
// For an infeasible LP relaxation, RowDuals holds the Farkas multipliers of
// the infeasibility proof when the solver can provide them. For an unbounded
// problem, Ray holds a primal ray when available.
type SolveResult struct {
	Status    SolveStatus
	Objective float64
	ColValues []float64
	RowDuals  []float64
	Ray       []float64
}

// SubSolver is the consumed LP/MIP solving capability. Implementations must
// be safe for concurrent Solve calls on distinct Problem values; the engine
// never solves the same Problem from two goroutines at once.
type SubSolver interface {
	Solve(ctx context.Context, p *Problem, lim SolveLimits) (*SolveResult, error)
}

// Prober is an optional extension of SubSolver for backends that maintain
// per-problem state across probing excursions. StartProbing and EndProbing
// calls are strictly paired by the engine.
type Prober interface {
	StartProbing(p *Problem) error
	EndProbing(p *Problem) error
}

// Inf returns positive infinity, the conventional "no bound" value.
func Inf() float64 { return math.Inf(1) }

// NegInf returns negative infinity.
func NegInf() float64 { return math.Inf(-1) }
