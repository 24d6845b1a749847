package solver_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce-planner/assignment"
	customerrors "workforce-planner/errors"
	"workforce-planner/models"
	"workforce-planner/program"
	"workforce-planner/solver"
)

// knapsack: max 5x + 4y s.t. 6x + 4y <= 24, x + 2y <= 6, x, y integer.
// The relaxation optimum is (3, 1.5) = 21, the integer optimum is (4, 0) = 20.
func knapsack() (*program.Program, program.VarID, program.VarID) {
	p := program.New("knapsack")
	x := p.AddVariable("x", program.Integer, 0, math.Inf(1))
	y := p.AddVariable("y", program.Integer, 0, math.Inf(1))
	p.AddLinear(x, -5)
	p.AddLinear(y, -4)
	p.AddConstraint("c1", program.LessEq, 24, program.Term{Var: x, Coef: 6}, program.Term{Var: y, Coef: 4})
	p.AddConstraint("c2", program.LessEq, 6, program.Term{Var: x, Coef: 1}, program.Term{Var: y, Coef: 2})
	return p, x, y
}

func TestBranchAndBound_Solve(t *testing.T) {
	tests := map[string]struct {
		build          func() *program.Program
		opts           solver.Options
		expectedStatus program.Status
		expectedObj    float64
		expectedErr    error
		expectedValues []float64
	}{
		"IntegerKnapsack": {
			build: func() *program.Program {
				p, _, _ := knapsack()
				return p
			},
			expectedStatus: program.StatusOptimal,
			expectedObj:    -20,
			expectedValues: []float64{4, 0},
		},
		"BilinearCoverage": {
			build: func() *program.Program {
				p := program.New("bilinear")
				h := p.AddVariable("hours", program.Integer, 0, 10)
				l := p.AddVariable("license", program.Binary, 0, 1)
				p.AddConstant(10)
				p.AddBilinear(h, l, -1)
				p.AddConstraint("cap", program.LessEq, 7, program.Term{Var: h, Coef: 1})
				return p
			},
			expectedStatus: program.StatusOptimal,
			expectedObj:    3,
			expectedValues: []float64{7, 1},
		},
		"BilinearWithBinaryFixedToZero": {
			build: func() *program.Program {
				p := program.New("blocked")
				h := p.AddVariable("hours", program.Integer, 0, 10)
				l := p.AddVariable("license", program.Binary, 0, 0)
				p.AddConstant(10)
				p.AddBilinear(h, l, -1)
				p.AddLinear(h, 0.001)
				p.AddConstraint("cap", program.LessEq, 7, program.Term{Var: h, Coef: 1})
				return p
			},
			expectedStatus: program.StatusOptimal,
			expectedObj:    10,
			expectedValues: []float64{0, 0},
		},
		"Infeasible": {
			build: func() *program.Program {
				p := program.New("infeasible")
				x := p.AddVariable("x", program.Integer, 0, 5)
				p.AddConstraint("min", program.GreaterEq, 6, program.Term{Var: x, Coef: 1})
				return p
			},
			expectedStatus: program.StatusInfeasible,
			expectedErr:    customerrors.ErrInfeasible,
		},
		"Unbounded": {
			build: func() *program.Program {
				p := program.New("unbounded")
				x := p.AddVariable("x", program.Continuous, 0, math.Inf(1))
				p.AddLinear(x, -1)
				p.AddConstraint("min", program.GreaterEq, 1, program.Term{Var: x, Coef: 1})
				return p
			},
			expectedStatus: program.StatusUnbounded,
			expectedErr:    customerrors.ErrUnbounded,
		},
		"NoBinaryFactor": {
			build: func() *program.Program {
				p := program.New("unsupported")
				x := p.AddVariable("x", program.Integer, 0, 3)
				y := p.AddVariable("y", program.Integer, 0, 3)
				p.AddBilinear(x, y, -1)
				return p
			},
			expectedStatus: program.StatusError,
			expectedErr:    customerrors.ErrUnsupportedTerm,
		},
		"NodeLimitWithoutIncumbent": {
			build: func() *program.Program {
				p, _, _ := knapsack()
				return p
			},
			opts:           solver.Options{MaxNodes: 1},
			expectedStatus: program.StatusNodeLimit,
			expectedErr:    customerrors.ErrNodeLimit,
		},
		"NodeLimitFallsBackToHint": {
			build: func() *program.Program {
				p, _, _ := knapsack()
				p.Hint = []float64{3, 1}
				return p
			},
			opts:           solver.Options{MaxNodes: 1},
			expectedStatus: program.StatusFeasible,
			expectedObj:    -19,
			expectedValues: []float64{3, 1},
		},
		"InvalidBounds": {
			build: func() *program.Program {
				p := program.New("invalid")
				p.AddVariable("x", program.Integer, 3, 1)
				return p
			},
			expectedStatus: program.StatusError,
			expectedErr:    customerrors.ErrInvalidProgram,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := solver.New(tt.opts, nil)
			p := tt.build()
			sol, err := s.Solve(context.Background(), p)
			require.NotNil(t, sol)
			assert.Equal(t, tt.expectedStatus, sol.Status)

			if tt.expectedErr != nil {
				assert.True(t, errors.Is(err, tt.expectedErr), "expected %v, got %v", tt.expectedErr, err)
				assert.Equal(t, tt.expectedStatus, solver.StatusOf(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expectedObj, sol.Objective, 1e-6)
			assert.InDeltaSlice(t, tt.expectedValues, sol.Values, 1e-6)
			assert.NoError(t, p.Check(sol.Values, 1e-6))
		})
	}
}

func TestBranchAndBound_CancelledContext(t *testing.T) {
	p, _, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := solver.New(solver.Options{}, nil).Solve(ctx, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, customerrors.ErrTimeout))
	assert.Equal(t, program.StatusTimeout, sol.Status)
}

func TestBranchAndBound_BilinearMatchesProduct(t *testing.T) {
	// Two providers share one region. a is always credited, b only when lb is on.
	p := program.New("shared")
	a := p.AddVariable("a", program.Integer, 0, 40)
	b := p.AddVariable("b", program.Integer, 0, 20)
	lb := p.AddVariable("lb", program.Binary, 0, 1)
	p.AddConstant(50)
	p.AddLinear(a, -1)
	p.AddBilinear(b, lb, -1)
	p.AddLinear(lb, 1e-4)
	p.AddLinear(b, 1e-5)
	p.AddConstraint("demand", program.LessEq, 50, program.Term{Var: a, Coef: 1}, program.Term{Var: b, Coef: 1})

	sol, err := solver.New(solver.Options{}, nil).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, program.StatusOptimal, sol.Status)
	assert.Equal(t, 40, sol.Int(a))
	assert.Equal(t, 10, sol.Int(b))
	assert.True(t, sol.Bool(lb))
	assert.InDelta(t, p.Evaluate(sol.Values), sol.Objective, 1e-9)
	assert.InDelta(t, 2e-4, sol.Objective, 1e-9)
}

func TestBranchAndBound_TimeLimitExpiresDuringRelaxation(t *testing.T) {
	tests := map[string]struct {
		hint []float64
	}{
		"NoIncumbent":   {},
		"HintIsNotKept": {hint: []float64{3, 1}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p, _, _ := knapsack()
			p.Hint = tt.hint

			entered := make(chan struct{})
			release := make(chan struct{})
			defer close(release)
			var once sync.Once

			s := solver.New(solver.Options{TimeLimit: 50 * time.Millisecond}, nil)
			solver.SetRelaxHook(s, func() {
				once.Do(func() { close(entered) })
				<-release
			})

			start := time.Now()
			sol, err := s.Solve(context.Background(), p)
			elapsed := time.Since(start)

			select {
			case <-entered:
			case <-time.After(time.Second):
				t.Fatal("no relaxation was started")
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, customerrors.ErrTimeout), "expected %v, got %v", customerrors.ErrTimeout, err)
			assert.Equal(t, program.StatusTimeout, sol.Status)
			assert.Equal(t, program.StatusTimeout, solver.StatusOf(err))
			assert.Equal(t, 1, sol.Nodes, "the deadline hit inside the root relaxation")
			assert.Nil(t, sol.Values)
			assert.Less(t, elapsed, 2*time.Second, "a stuck relaxation must not hold the solve")
		})
	}
}

func TestBranchAndBound_RewardedProductsBranchOnTheirBinary(t *testing.T) {
	// Two rewarded products share one capacity row below either factor's bound,
	// so the relaxed licenses are fractional and the cheaper one must be branched in.
	p := program.New("folded")
	x1 := p.AddVariable("x1", program.Integer, 0, 30)
	y1 := p.AddVariable("y1", program.Binary, 0, 1)
	x2 := p.AddVariable("x2", program.Integer, 0, 30)
	y2 := p.AddVariable("y2", program.Binary, 0, 1)
	p.AddConstant(30)
	p.AddBilinear(x1, y1, -1)
	p.AddBilinear(x2, y2, -1)
	p.AddLinear(y1, 1e-4)
	p.AddLinear(y2, 2e-4)
	p.AddConstraint("cap", program.LessEq, 20, program.Term{Var: x1, Coef: 1}, program.Term{Var: x2, Coef: 1})

	sol, err := solver.New(solver.Options{}, nil).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, program.StatusOptimal, sol.Status)
	assert.InDeltaSlice(t, []float64{20, 1, 0, 0}, sol.Values, 1e-9)
	assert.InDelta(t, 10+1e-4, sol.Objective, 1e-9)
	assert.Greater(t, sol.Nodes, 1)
}

// sharedRegions builds 20 therapists with 20h each and 10 states. Every state has
// two licensed therapists; states 0-4 need 60h and states 5-9 need 20h, so the
// optimum moves one spare therapist into each busy state: no deficit, 5 licenses.
func sharedRegions() *models.MasterData {
	data := &models.MasterData{Licenses: models.LicenseRecord{}}
	for j := 0; j < 10; j++ {
		demand := 20.0
		if j < 5 {
			demand = 60
		}
		data.States = append(data.States, models.State{ID: fmt.Sprintf("S%d", j), DemandPerWeek: demand, LicenseTime: 10, TimeToHire: 20})
	}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("T%02d", i)
		data.Therapists = append(data.Therapists, models.Therapist{ID: id, HoursPerWeek: 20})
		data.Licenses[id] = map[string]bool{fmt.Sprintf("S%d", i%10): true}
	}
	return data
}

func TestBranchAndBound_SolvesTwentyByTenWithinDefaultLimit(t *testing.T) {
	model := assignment.FormulateExisting(sharedRegions(), assignment.ExistingParams{
		PlanningHorizon: 45,
		Gate:            assignment.GateStrict,
		TieBreak:        assignment.DefaultTieBreak,
	})

	sol, err := solver.New(solver.DefaultOptions(), nil).Solve(context.Background(), model.Program)
	require.NoError(t, err)
	assert.Equal(t, program.StatusOptimal, sol.Status)
	assert.Less(t, sol.Duration, solver.DefaultOptions().TimeLimit)
	require.NoError(t, model.Program.Check(sol.Values, 1e-6))

	covered, licenses := 0, 0
	for _, a := range model.Assignments(sol) {
		covered += a.AssignedHours
		if a.NewLicense {
			licenses++
		}
	}
	assert.Equal(t, 400, covered)
	assert.Equal(t, 5, licenses)
	assert.InDelta(t, 5*assignment.DefaultTieBreak+400*assignment.DefaultTieBreak/100, sol.Objective, 1e-9)
}
