// Package program describes mixed-integer programs with bilinear objective terms
// and the oracle interface that solves them.
//
// A Program is built fresh for every solve and handed to a Solver; the Solver
// returns a Solution value. Nothing is shared between solves.
package program

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"workforce-planner/errors"
)

// Domain is the value domain of a decision variable.
type Domain int

const (
	Continuous Domain = iota
	Integer
	Binary
)

func (d Domain) String() string {
	switch d {
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "continuous"
	}
}

// VarID indexes Program.Variables.
type VarID int

// Variable is a decision variable with finite lower bound and a possibly infinite upper bound.
type Variable struct {
	Name   string
	Domain Domain
	Lower  float64
	Upper  float64
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case GreaterEq:
		return ">="
	case Equal:
		return "="
	default:
		return "<="
	}
}

// Term is coef·x.
type Term struct {
	Var  VarID
	Coef float64
}

// BilinearTerm is coef·x·y.
type BilinearTerm struct {
	X, Y VarID
	Coef float64
}

// Constraint is Σ terms (sense) RHS.
type Constraint struct {
	Name  string
	Sense Sense
	RHS   float64
	Terms []Term
}

// Objective is minimized: Constant + Σ Linear + Σ Bilinear.
type Objective struct {
	Constant float64
	Linear   []Term
	Bilinear []BilinearTerm
}

// Program is a minimization over integer, binary and continuous variables with
// linear constraints and a linear plus bilinear objective.
type Program struct {
	Name        string
	Variables   []Variable
	Constraints []Constraint
	Objective   Objective
	// Hint is an optional starting solution. Solvers may use it as an initial
	// incumbent when it is feasible and ignore it otherwise.
	Hint []float64
}

// New returns an empty program.
func New(name string) *Program {
	return &Program{Name: name}
}

// AddVariable appends a variable and returns its id. Binary bounds are clipped to [0, 1].
func (p *Program) AddVariable(name string, domain Domain, lower, upper float64) VarID {
	if domain == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	p.Variables = append(p.Variables, Variable{Name: name, Domain: domain, Lower: lower, Upper: upper})
	return VarID(len(p.Variables) - 1)
}

// AddConstraint appends a linear constraint.
func (p *Program) AddConstraint(name string, sense Sense, rhs float64, terms ...Term) {
	p.Constraints = append(p.Constraints, Constraint{Name: name, Sense: sense, RHS: rhs, Terms: terms})
}

// AddConstant adds c to the objective constant.
func (p *Program) AddConstant(c float64) {
	p.Objective.Constant += c
}

// AddLinear adds coef·v to the objective.
func (p *Program) AddLinear(v VarID, coef float64) {
	if coef == 0 {
		return
	}
	p.Objective.Linear = append(p.Objective.Linear, Term{Var: v, Coef: coef})
}

// AddBilinear adds coef·x·y to the objective.
func (p *Program) AddBilinear(x, y VarID, coef float64) {
	if coef == 0 {
		return
	}
	p.Objective.Bilinear = append(p.Objective.Bilinear, BilinearTerm{X: x, Y: y, Coef: coef})
}

// NumVariables returns the number of variables.
func (p *Program) NumVariables() int {
	return len(p.Variables)
}

// Validate checks variable ids, bounds and hint length.
func (p *Program) Validate() error {
	n := len(p.Variables)
	for i, v := range p.Variables {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 0) {
			return fmt.Errorf("%w: variable %s has bounds [%v, %v]", errors.ErrInvalidProgram, name(p, VarID(i)), v.Lower, v.Upper)
		}
		if v.Lower > v.Upper {
			return fmt.Errorf("%w: variable %s has lower bound %v above upper bound %v",
				errors.ErrInvalidProgram, name(p, VarID(i)), v.Lower, v.Upper)
		}
	}
	check := func(id VarID, where string) error {
		if int(id) < 0 || int(id) >= n {
			return fmt.Errorf("%w: %s references unknown variable %d", errors.ErrInvalidProgram, where, id)
		}
		return nil
	}
	for _, c := range p.Constraints {
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("%w: constraint %s has rhs %v", errors.ErrInvalidProgram, c.Name, c.RHS)
		}
		for _, t := range c.Terms {
			if err := check(t.Var, "constraint "+c.Name); err != nil {
				return err
			}
		}
	}
	for _, t := range p.Objective.Linear {
		if err := check(t.Var, "objective"); err != nil {
			return err
		}
	}
	for _, t := range p.Objective.Bilinear {
		if err := check(t.X, "objective"); err != nil {
			return err
		}
		if err := check(t.Y, "objective"); err != nil {
			return err
		}
	}
	if p.Hint != nil && len(p.Hint) != n {
		return fmt.Errorf("%w: hint has %d values for %d variables", errors.ErrInvalidProgram, len(p.Hint), n)
	}
	return nil
}

// Merged returns the objective with duplicate terms combined and zero terms dropped.
// Bilinear terms are keyed by the unordered pair {X, Y}.
func (o Objective) Merged() Objective {
	linear := map[VarID]float64{}
	for _, t := range o.Linear {
		linear[t.Var] += t.Coef
	}
	type pair struct{ x, y VarID }
	bilinear := map[pair]float64{}
	for _, t := range o.Bilinear {
		k := pair{t.X, t.Y}
		if k.y < k.x {
			k = pair{t.Y, t.X}
		}
		bilinear[k] += t.Coef
	}

	out := Objective{Constant: o.Constant}
	for v, c := range linear {
		if c != 0 {
			out.Linear = append(out.Linear, Term{Var: v, Coef: c})
		}
	}
	for k, c := range bilinear {
		if c != 0 {
			out.Bilinear = append(out.Bilinear, BilinearTerm{X: k.x, Y: k.y, Coef: c})
		}
	}
	sort.Slice(out.Linear, func(i, j int) bool { return out.Linear[i].Var < out.Linear[j].Var })
	sort.Slice(out.Bilinear, func(i, j int) bool {
		if out.Bilinear[i].X != out.Bilinear[j].X {
			return out.Bilinear[i].X < out.Bilinear[j].X
		}
		return out.Bilinear[i].Y < out.Bilinear[j].Y
	})
	return out
}

// Evaluate returns the objective value at values.
func (p *Program) Evaluate(values []float64) float64 {
	total := p.Objective.Constant
	for _, t := range p.Objective.Linear {
		total += t.Coef * values[t.Var]
	}
	for _, t := range p.Objective.Bilinear {
		total += t.Coef * values[t.X] * values[t.Y]
	}
	return total
}

// Check returns an error describing the first bound, integrality or constraint
// violation of values, or nil when values is feasible within tol.
func (p *Program) Check(values []float64, tol float64) error {
	if len(values) != len(p.Variables) {
		return fmt.Errorf("%w: %d values for %d variables", errors.ErrInvalidProgram, len(values), len(p.Variables))
	}
	for i, v := range p.Variables {
		x := values[i]
		if x < v.Lower-tol || x > v.Upper+tol {
			return fmt.Errorf("variable %s=%v outside [%v, %v]", name(p, VarID(i)), x, v.Lower, v.Upper)
		}
		if v.Domain != Continuous && math.Abs(x-math.Round(x)) > tol {
			return fmt.Errorf("variable %s=%v is not integral", name(p, VarID(i)), x)
		}
	}
	for _, c := range p.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		ok := true
		switch c.Sense {
		case LessEq:
			ok = lhs <= c.RHS+tol
		case GreaterEq:
			ok = lhs >= c.RHS-tol
		case Equal:
			ok = math.Abs(lhs-c.RHS) <= tol
		}
		if !ok {
			return fmt.Errorf("constraint %s violated: %v %s %v", c.Name, lhs, c.Sense, c.RHS)
		}
	}
	return nil
}

func name(p *Program, id VarID) string {
	if n := p.Variables[id].Name; n != "" {
		return n
	}
	return fmt.Sprintf("x%d", id)
}

// Status is the outcome of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusUnbounded  Status = "unbounded"
	StatusTimeout    Status = "timeout"
	StatusNodeLimit  Status = "node_limit"
	StatusError      Status = "error"
)

// Solution holds one value per program variable.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Duration  time.Duration
}

// Value returns the solved value of v.
func (s *Solution) Value(v VarID) float64 {
	return s.Values[v]
}

// Int returns the solved value of v rounded to the nearest integer.
func (s *Solution) Int(v VarID) int {
	return int(math.Round(s.Values[v]))
}

// Bool returns the solved value of a binary variable.
func (s *Solution) Bool(v VarID) bool {
	return s.Values[v] > 0.5
}

// Solver is the oracle that solves a program. Implementations return a non-nil
// error whenever no feasible solution is available, together with a Solution
// whose Status says why.
type Solver interface {
	Solve(ctx context.Context, p *Program) (*Solution, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, p *Program) (*Solution, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, p *Program) (*Solution, error) {
	return f(ctx, p)
}
