package solver

import (
	stderrors "errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"workforce-planner/program"
)

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
)

const feasTol = 1e-9

// relax solves the LP relaxation of lin under the node bounds lo, hi.
//
// Every free variable is shifted to x = lo + z with z >= 0 so the problem fits
// gonum's standard form (min cᵀz, Az = b, z >= 0). Fixed variables are
// substituted out, inequality rows get a slack column and rows with a negative
// right-hand side are negated. Upper bounds already implied by a row get no row
// of their own, and folded products only adjust the cost of their factor.
func relax(lin *linearProgram, lo, hi []float64, tol float64) (relaxStatus, float64, []float64, error) {
	n := len(lin.vars)
	for j := 0; j < n; j++ {
		if lo[j] > hi[j]+feasTol {
			return relaxInfeasible, 0, nil, nil
		}
	}

	cost := append([]float64(nil), lin.cost...)
	offset := lin.constant
	for _, f := range lin.folded {
		cy := cost[f.y]
		cost[f.y] = 0
		switch {
		case hi[f.y] < 0.5:
			// y = 0, the product vanishes.
		case lo[f.y] > 0.5, cy < 0:
			offset += cy
			cost[f.x] += f.coef
		default:
			cost[f.x] += math.Min(0, f.coef+cy/f.upper)
		}
	}

	col := make([]int, n)
	var free []int
	for j := 0; j < n; j++ {
		if !lin.isFolded[j] && hi[j]-lo[j] > feasTol {
			col[j] = len(free)
			free = append(free, j)
		} else {
			col[j] = -1
		}
	}

	for j := 0; j < n; j++ {
		offset += cost[j] * lo[j]
	}

	type row struct {
		coef  map[int]float64
		sense program.Sense
		rhs   float64
	}
	var rows []row

	for _, c := range lin.rows {
		r := row{coef: map[int]float64{}, sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			r.rhs -= t.Coef * lo[t.Var]
			if k := col[t.Var]; k >= 0 && t.Coef != 0 {
				r.coef[k] += t.Coef
			}
		}
		for k, v := range r.coef {
			if v == 0 {
				delete(r.coef, k)
			}
		}
		if len(r.coef) == 0 {
			// Every variable in the row is fixed.
			if !rowHolds(0, r.sense, r.rhs) {
				return relaxInfeasible, 0, nil, nil
			}
			continue
		}
		rows = append(rows, r)
	}
	// z >= 0, so a <= row with no negative coefficient bounds each of its columns.
	implied := make([]float64, len(free))
	for k := range implied {
		implied[k] = math.Inf(1)
	}
	for _, r := range rows {
		if r.sense == program.GreaterEq || !nonNegative(r.coef) {
			continue
		}
		for k, v := range r.coef {
			implied[k] = math.Min(implied[k], r.rhs/v)
		}
	}
	for k, j := range free {
		if !math.IsInf(hi[j], 1) && implied[k] > hi[j]-lo[j]+feasTol {
			rows = append(rows, row{coef: map[int]float64{k: 1}, sense: program.LessEq, rhs: hi[j] - lo[j]})
		}
	}

	// A free column that appears in no row is set by its cost alone.
	used := make([]bool, len(free))
	for _, r := range rows {
		for k := range r.coef {
			used[k] = true
		}
	}
	z := make([]float64, len(free))
	var active []int
	for k, j := range free {
		if used[k] {
			active = append(active, k)
			continue
		}
		if cost[j] < 0 {
			return relaxUnbounded, 0, nil, nil
		}
	}

	if len(rows) > 0 {
		pos := make(map[int]int, len(active))
		for i, k := range active {
			pos[k] = i
		}
		slacks := 0
		for _, r := range rows {
			if r.sense != program.Equal {
				slacks++
			}
		}
		m, cols := len(rows), len(active)+slacks
		if m > cols {
			return relaxInfeasible, 0, nil, fmt.Errorf("relaxation has %d rows and only %d columns", m, cols)
		}

		a := mat.NewDense(m, cols, nil)
		b := make([]float64, m)
		c := make([]float64, cols)
		for i, k := range active {
			c[i] = cost[free[k]]
		}
		basis := make([]int, 0, m)
		s := len(active)
		for i, r := range rows {
			sign := 1.0
			if r.rhs < 0 {
				sign = -1
			}
			for k, v := range r.coef {
				a.Set(i, pos[k], sign*v)
			}
			b[i] = sign * r.rhs
			switch r.sense {
			case program.LessEq:
				a.Set(i, s, sign)
				if sign > 0 {
					basis = append(basis, s)
				}
				s++
			case program.GreaterEq:
				a.Set(i, s, -sign)
				if sign < 0 {
					basis = append(basis, s)
				}
				s++
			}
		}
		if len(basis) != m {
			basis = nil
		}

		_, x, err := lp.Simplex(c, a, b, tol, basis)
		switch {
		case stderrors.Is(err, lp.ErrInfeasible):
			return relaxInfeasible, 0, nil, nil
		case stderrors.Is(err, lp.ErrUnbounded):
			return relaxUnbounded, 0, nil, nil
		case err != nil:
			return relaxInfeasible, 0, nil, fmt.Errorf("simplex: %w", err)
		}
		for i, k := range active {
			z[k] = math.Max(x[i], 0)
		}
	}

	values := make([]float64, n)
	obj := offset
	for j := 0; j < n; j++ {
		values[j] = lo[j]
		if k := col[j]; k >= 0 {
			values[j] += z[k]
			obj += cost[j] * z[k]
		}
	}
	for _, f := range lin.folded {
		cy := lin.cost[f.y]
		switch {
		case hi[f.y] < 0.5:
			values[f.y] = 0
		case lo[f.y] > 0.5, cy < 0:
			values[f.y] = 1
		case f.coef+cy/f.upper < 0:
			values[f.y] = math.Min(values[f.x]/f.upper, 1)
		default:
			values[f.y] = 0
		}
	}
	return relaxOptimal, obj, values, nil
}

func nonNegative(coef map[int]float64) bool {
	for _, v := range coef {
		if v < 0 {
			return false
		}
	}
	return true
}

func rowHolds(lhs float64, sense program.Sense, rhs float64) bool {
	switch sense {
	case program.GreaterEq:
		return lhs >= rhs-feasTol
	case program.Equal:
		return math.Abs(lhs-rhs) <= feasTol
	default:
		return lhs <= rhs+feasTol
	}
}
