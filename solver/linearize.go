package solver

import (
	"fmt"
	"math"

	"workforce-planner/errors"
	"workforce-planner/program"
)

// linearProgram is a Program whose bilinear objective terms have been replaced
// by auxiliary variables and McCormick rows, or folded into the cost of their
// bounded factor. The first `original` variables are the variables of the
// source program.
type linearProgram struct {
	vars     []program.Variable
	rows     []program.Constraint
	cost     []float64
	constant float64
	original int
	folded   []fold
	isFolded []bool
}

// fold is a rewarded product coef·x·y, coef < 0, x in [0, upper], whose binary y
// enters no row and no other product. For fixed x the best (w, y) of its
// McCormick relaxation is known in closed form, so relax prices x directly and
// keeps neither w nor y as columns.
type fold struct {
	x, y  int
	coef  float64
	upper float64
}

// linearize rewrites every bilinear term coef·x·y, where one factor is binary and
// the other has finite bounds [L, U], as coef·w. Of the McCormick envelope
//
//	L·y <= w <= U·y
//	x - U·(1-y) <= w <= x - L·(1-y)
//
// only the side the objective pushes w against is emitted, which still pins
// w = x·y whenever y is 0 or 1.
func linearize(p *program.Program) (*linearProgram, error) {
	obj := p.Objective.Merged()

	lp := &linearProgram{
		vars:     append([]program.Variable(nil), p.Variables...),
		rows:     append([]program.Constraint(nil), p.Constraints...),
		cost:     make([]float64, len(p.Variables)),
		constant: obj.Constant,
		original: len(p.Variables),
		isFolded: make([]bool, len(p.Variables)),
	}
	for _, t := range obj.Linear {
		lp.cost[t.Var] += t.Coef
	}

	inRows := make([]bool, len(p.Variables))
	for _, c := range p.Constraints {
		for _, t := range c.Terms {
			if t.Coef != 0 {
				inRows[t.Var] = true
			}
		}
	}
	products := make([]int, len(p.Variables))
	for _, t := range obj.Bilinear {
		products[t.X]++
		products[t.Y]++
	}

	for _, t := range obj.Bilinear {
		bin, other := t.Y, t.X
		if p.Variables[bin].Domain != program.Binary {
			bin, other = t.X, t.Y
		}
		if p.Variables[bin].Domain != program.Binary {
			return nil, fmt.Errorf("%w: product of %s and %s has no binary factor",
				errors.ErrUnsupportedTerm, p.Variables[t.X].Name, p.Variables[t.Y].Name)
		}

		yv := p.Variables[bin]
		if yv.Upper < 0.5 {
			// y is fixed to 0, the product vanishes.
			continue
		}
		if yv.Lower > 0.5 {
			lp.cost[other] += t.Coef
			continue
		}

		xv := p.Variables[other]
		lower, upper := xv.Lower, xv.Upper
		if math.IsInf(upper, 1) {
			return nil, fmt.Errorf("%w: factor %s of a bilinear term needs a finite upper bound",
				errors.ErrUnsupportedTerm, xv.Name)
		}
		if lower == 0 && upper == 0 {
			continue
		}

		if t.Coef < 0 && lower == 0 && !inRows[bin] && products[bin] == 1 && !lp.isFolded[other] {
			lp.folded = append(lp.folded, fold{x: int(other), y: int(bin), coef: t.Coef, upper: upper})
			lp.isFolded[bin] = true
			continue
		}

		w := program.VarID(len(lp.vars))
		lp.vars = append(lp.vars, program.Variable{
			Name:   fmt.Sprintf("%s*%s", xv.Name, yv.Name),
			Domain: program.Continuous,
			Lower:  math.Min(lower, 0),
			Upper:  math.Max(upper, 0),
		})
		lp.cost = append(lp.cost, t.Coef)
		lp.isFolded = append(lp.isFolded, false)

		x, y := other, bin
		if t.Coef < 0 {
			// w is pushed up: w <= U·y and w <= x - L·(1-y).
			lp.rows = append(lp.rows,
				program.Constraint{Name: "mccormick-up-y", Sense: program.LessEq, RHS: 0,
					Terms: []program.Term{{Var: w, Coef: 1}, {Var: y, Coef: -upper}}},
				program.Constraint{Name: "mccormick-up-x", Sense: program.LessEq, RHS: -lower,
					Terms: []program.Term{{Var: w, Coef: 1}, {Var: x, Coef: -1}, {Var: y, Coef: -lower}}},
			)
			continue
		}
		// w is pushed down: w >= L·y and w >= x - U·(1-y).
		lp.rows = append(lp.rows,
			program.Constraint{Name: "mccormick-lo-y", Sense: program.LessEq, RHS: 0,
				Terms: []program.Term{{Var: y, Coef: lower}, {Var: w, Coef: -1}}},
			program.Constraint{Name: "mccormick-lo-x", Sense: program.LessEq, RHS: upper,
				Terms: []program.Term{{Var: x, Coef: 1}, {Var: w, Coef: -1}, {Var: y, Coef: upper}}},
		)
	}
	return lp, nil
}

// bounds returns fresh copies of the variable bounds.
func (lp *linearProgram) bounds() (lo, hi []float64) {
	lo = make([]float64, len(lp.vars))
	hi = make([]float64, len(lp.vars))
	for i, v := range lp.vars {
		lo[i], hi[i] = v.Lower, v.Upper
		if v.Domain != program.Continuous {
			lo[i] = math.Ceil(lo[i] - 1e-9)
			hi[i] = math.Floor(hi[i] + 1e-9)
		}
	}
	return lo, hi
}
