// Package solver is a pure-Go oracle for program.Program. Bilinear terms are
// linearized exactly, integrality is enforced by depth-first branch-and-bound and
// every node relaxation is solved with gonum's simplex.
package solver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"workforce-planner/errors"
	"workforce-planner/program"
)

// Options tune the branch-and-bound search.
type Options struct {
	// TimeLimit bounds the wall clock of one Solve. Zero disables the limit.
	TimeLimit time.Duration
	// MaxNodes bounds the number of explored nodes.
	MaxNodes int
	// Tolerance is passed to the simplex.
	Tolerance float64
	// IntegralityTol is how far from an integer a value may be and still count as integral.
	IntegralityTol float64
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		TimeLimit:      time.Minute,
		MaxNodes:       200000,
		Tolerance:      1e-9,
		IntegralityTol: 1e-6,
	}
}

// BranchAndBound implements program.Solver.
type BranchAndBound struct {
	opts Options
	log  *slog.Logger
	// beforeRelax runs at the start of every node relaxation. Tests use it to
	// hold a relaxation past the time limit.
	beforeRelax func()
}

// New creates a solver. Zero option fields take their DefaultOptions value;
// a nil logger discards output.
func New(opts Options, logger *slog.Logger) *BranchAndBound {
	def := DefaultOptions()
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = def.MaxNodes
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.IntegralityTol <= 0 {
		opts.IntegralityTol = def.IntegralityTol
	}
	if opts.TimeLimit < 0 {
		opts.TimeLimit = 0
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BranchAndBound{opts: opts, log: logger}
}

type node struct {
	lo, hi []float64
	depth  int
}

// Solve minimizes p. A non-nil error is returned, together with a Solution whose
// Status explains it, whenever no feasible solution is available.
func (b *BranchAndBound) Solve(ctx context.Context, p *program.Program) (*program.Solution, error) {
	start := time.Now()
	fail := func(status program.Status, nodes int, err error) (*program.Solution, error) {
		return &program.Solution{Status: status, Nodes: nodes, Duration: time.Since(start)}, err
	}

	if err := p.Validate(); err != nil {
		return fail(program.StatusError, 0, err)
	}
	lin, err := linearize(p)
	if err != nil {
		return fail(program.StatusError, 0, err)
	}

	if b.opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.TimeLimit)
		defer cancel()
	}

	var (
		incumbent    []float64
		incumbentObj = math.Inf(1)
	)
	if p.Hint != nil {
		if err := p.Check(p.Hint, b.opts.IntegralityTol); err == nil {
			incumbent = roundIntegral(p, p.Hint)
			incumbentObj = p.Evaluate(incumbent)
			b.log.DebugContext(ctx, "using hint as incumbent", "program", p.Name, "objective", incumbentObj)
		} else {
			b.log.DebugContext(ctx, "ignoring infeasible hint", "program", p.Name, "reason", err.Error())
		}
	}

	lo, hi := lin.bounds()
	stack := []node{{lo: lo, hi: hi}}
	nodes := 0
	limited := false

	interrupted := func(nodes int, err error) (*program.Solution, error) {
		b.log.WarnContext(ctx, "solve interrupted", "program", p.Name, "nodes", nodes, "error", err)
		return fail(program.StatusTimeout, nodes, fmt.Errorf("%w after %d nodes: %v", errors.ErrTimeout, nodes, err))
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return interrupted(nodes, err)
		}
		if nodes >= b.opts.MaxNodes {
			limited = true
			break
		}
		nodes++

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rel, err := b.relaxNode(ctx, lin, nd)
		if err != nil {
			return interrupted(nodes, err)
		}
		if rel.err != nil {
			return fail(program.StatusError, nodes, rel.err)
		}
		switch rel.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			return fail(program.StatusUnbounded, nodes, errors.ErrUnbounded)
		}
		obj, values := rel.obj, rel.values
		if obj >= incumbentObj-pruneGap(incumbentObj) {
			continue
		}

		branch, value := b.mostFractional(lin, values)
		if branch < 0 {
			candidate := roundIntegral(p, values[:lin.original])
			candObj := p.Evaluate(candidate)
			if candObj < incumbentObj {
				incumbent, incumbentObj = candidate, candObj
				b.log.DebugContext(ctx, "new incumbent", "program", p.Name, "objective", candObj, "node", nodes, "depth", nd.depth)
			}
			continue
		}

		down := node{lo: nd.lo, hi: cloneWith(nd.hi, branch, math.Floor(value)), depth: nd.depth + 1}
		up := node{lo: cloneWith(nd.lo, branch, math.Ceil(value)), hi: nd.hi, depth: nd.depth + 1}
		stack = append(stack, down, up)
	}

	elapsed := time.Since(start)
	switch {
	case incumbent == nil && limited:
		return fail(program.StatusNodeLimit, nodes, errors.ErrNodeLimit)
	case incumbent == nil:
		return fail(program.StatusInfeasible, nodes, errors.ErrInfeasible)
	}

	status := program.StatusOptimal
	if limited {
		status = program.StatusFeasible
		b.log.WarnContext(ctx, "node limit reached, returning best solution found",
			"program", p.Name, "nodes", nodes, "objective", incumbentObj)
	}
	b.log.DebugContext(ctx, "solve finished", "program", p.Name, "status", string(status),
		"objective", incumbentObj, "nodes", nodes, "duration", elapsed)
	return &program.Solution{
		Status:    status,
		Objective: incumbentObj,
		Values:    incumbent,
		Nodes:     nodes,
		Duration:  elapsed,
	}, nil
}

type relaxation struct {
	status relaxStatus
	obj    float64
	values []float64
	err    error
}

// relaxNode solves the node relaxation in its own goroutine so that ctx can
// interrupt a long simplex. An abandoned relaxation finishes in the background
// and its result is dropped; nd's bounds are never written after creation.
func (b *BranchAndBound) relaxNode(ctx context.Context, lin *linearProgram, nd node) (relaxation, error) {
	done := make(chan relaxation, 1)
	go func() {
		if b.beforeRelax != nil {
			b.beforeRelax()
		}
		status, obj, values, err := relax(lin, nd.lo, nd.hi, b.opts.Tolerance)
		done <- relaxation{status: status, obj: obj, values: values, err: err}
	}()

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return relaxation{}, ctx.Err()
	}
}

// mostFractional returns the integer variable whose relaxed value is furthest
// from an integer, or -1 when all are integral.
func (b *BranchAndBound) mostFractional(lin *linearProgram, values []float64) (int, float64) {
	best, bestFrac := -1, b.opts.IntegralityTol
	for j, v := range lin.vars {
		if v.Domain == program.Continuous {
			continue
		}
		frac := math.Abs(values[j] - math.Round(values[j]))
		if frac > bestFrac {
			best, bestFrac = j, frac
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, values[best]
}

func pruneGap(incumbent float64) float64 {
	if math.IsInf(incumbent, 1) {
		return 0
	}
	return 1e-7 * math.Max(1, math.Abs(incumbent))
}

func roundIntegral(p *program.Program, values []float64) []float64 {
	out := make([]float64, len(p.Variables))
	for i, v := range p.Variables {
		out[i] = values[i]
		if v.Domain != program.Continuous {
			out[i] = math.Round(values[i])
		}
	}
	return out
}

func cloneWith(bounds []float64, i int, v float64) []float64 {
	out := append([]float64(nil), bounds...)
	out[i] = v
	return out
}

// StatusOf extracts the solution status implied by a solver error.
func StatusOf(err error) program.Status {
	switch {
	case err == nil:
		return program.StatusOptimal
	case stderrors.Is(err, errors.ErrInfeasible):
		return program.StatusInfeasible
	case stderrors.Is(err, errors.ErrUnbounded):
		return program.StatusUnbounded
	case stderrors.Is(err, errors.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return program.StatusTimeout
	case stderrors.Is(err, errors.ErrNodeLimit):
		return program.StatusNodeLimit
	default:
		return program.StatusError
	}
}
