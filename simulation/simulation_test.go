package simulation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce-planner/assignment"
	customerrors "workforce-planner/errors"
	"workforce-planner/formatter"
	"workforce-planner/metrics"
	"workforce-planner/models"
	"workforce-planner/parser"
	"workforce-planner/program"
	"workforce-planner/sampler"
	"workforce-planner/simulation"
	"workforce-planner/solver"
)

type memLoader struct {
	data  func() *models.MasterData
	err   error
	calls int
}

func (l *memLoader) Load(context.Context) (*models.MasterData, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.data(), nil
}

type recordingExporter struct {
	existing []*models.ExistingResult
	hiring   []*models.HiringResult
}

func (e *recordingExporter) ExportExisting(res *models.ExistingResult) ([]string, error) {
	e.existing = append(e.existing, res)
	return nil, nil
}

func (e *recordingExporter) ExportHiring(res *models.HiringResult) ([]string, error) {
	e.hiring = append(e.hiring, res)
	return nil, nil
}

func sharedState() *models.MasterData {
	return &models.MasterData{
		Therapists: []models.Therapist{
			{ID: "A", HoursPerWeek: 40},
			{ID: "B", HoursPerWeek: 20},
		},
		States: []models.State{
			{ID: "S", DemandPerWeek: 50, LicenseTime: 10, TimeToHire: 20},
		},
		Licenses: models.LicenseRecord{"A": {"S": true}},
	}
}

func defaultOptions(count int) simulation.Options {
	return simulation.Options{
		PlanningHorizon: 45,
		SimulationCount: count,
		Gate:            assignment.GateStrict,
		TieBreak:        assignment.DefaultTieBreak,
	}
}

func TestDriver_Run(t *testing.T) {
	loader := &memLoader{data: sharedState}
	exporter := &recordingExporter{}
	driver := simulation.NewDriver(loader, sampler.New(1, nil), solver.New(solver.Options{}, nil), exporter, defaultOptions(3), nil)

	res, err := driver.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Run, "the last run is returned")
	assert.Equal(t, string(program.StatusOptimal), res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 0.0, res.TotalDeficit())
	require.Len(t, res.States, 1)
	assert.Equal(t, models.StateSummary{State: "S", AssignedHours: 50, NewLicenses: 1, Demand: 50, Deficit: 0}, res.States[0])
	require.NotNil(t, res.Data)
	assert.Equal(t, sharedState().States, res.Data.States, "the solved master data travels with the result")

	assert.Equal(t, 3, loader.calls, "master data is reloaded every run")
	require.Len(t, exporter.existing, 3)
	ids := map[string]bool{}
	for i, r := range exporter.existing {
		assert.Equal(t, i, r.Run)
		ids[r.RunID] = true
	}
	assert.Len(t, ids, 3, "every run gets its own id")

	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.DemandHoursTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.DeficitHoursTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NewLicensesTotal))
}

func TestDriver_Run_ExportsLastRun(t *testing.T) {
	dir := t.TempDir()
	first := true
	loader := &memLoader{data: func() *models.MasterData {
		d := sharedState()
		if first {
			d.States = append(d.States, models.State{ID: "T", DemandPerWeek: 5, LicenseTime: 1, TimeToHire: 1})
			first = false
		}
		return d
	}}
	driver := simulation.NewDriver(loader, sampler.New(1, nil), solver.New(solver.Options{}, nil),
		formatter.Exporter{Dir: dir}, defaultOptions(2), nil)

	res, err := driver.Run(context.Background())
	require.NoError(t, err)

	rows, err := parser.LoadStateStats(formatter.StateStatsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, res.States, rows, "the export holds the last run only")
}

func TestDriver_Run_SampledDemandIsReproducible(t *testing.T) {
	data := func() *models.MasterData {
		d := sharedState()
		d.States[0].Distribution = &models.DemandDistribution{Mean: 45, Std: 10}
		return d
	}

	run := func() *models.ExistingResult {
		driver := simulation.NewDriver(&memLoader{data: data}, sampler.New(7, nil),
			solver.New(solver.Options{}, nil), nil, defaultOptions(2), nil)
		res, err := driver.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.States, b.States)
	assert.Equal(t, a.States[0].Demand, a.Data.States[0].DemandPerWeek, "the result carries the sampled demand")
	assert.Equal(t, 10.0, a.Data.States[0].LicenseTime)
	for _, s := range a.States {
		assert.Equal(t, s.Demand-float64(s.AssignedHours), s.Deficit)
		assert.GreaterOrEqual(t, s.Demand, 0.0)
	}
}

func TestDriver_Run_Failures(t *testing.T) {
	infeasible := program.SolverFunc(func(context.Context, *program.Program) (*program.Solution, error) {
		return &program.Solution{Status: program.StatusInfeasible}, customerrors.ErrInfeasible
	})

	tests := map[string]struct {
		loader      *memLoader
		solver      program.Solver
		count       int
		expectedErr error
		check       func(t *testing.T, err error)
	}{
		"SolverFailureCarriesRunAndStage": {
			loader:      &memLoader{data: sharedState},
			solver:      infeasible,
			count:       2,
			expectedErr: customerrors.ErrInfeasible,
			check: func(t *testing.T, err error) {
				var sf *customerrors.SolverFailure
				require.True(t, errors.As(err, &sf))
				assert.Equal(t, 0, sf.Run)
				assert.Equal(t, models.StageExisting, sf.Stage)
				assert.Equal(t, string(program.StatusInfeasible), sf.Status)
			},
		},
		"MasterDataError": {
			loader:      &memLoader{err: &customerrors.MasterDataError{Source: "states", Err: customerrors.ErrEmptyTable}},
			solver:      solver.New(solver.Options{}, nil),
			count:       1,
			expectedErr: customerrors.ErrEmptyTable,
		},
		"NoRuns": {
			loader:      &memLoader{data: sharedState},
			solver:      solver.New(solver.Options{}, nil),
			count:       0,
			expectedErr: customerrors.ErrNonPositive,
			check: func(t *testing.T, err error) {
				var cfgErr *customerrors.ConfigurationError
				assert.True(t, errors.As(err, &cfgErr))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			exporter := &recordingExporter{}
			driver := simulation.NewDriver(tt.loader, sampler.New(1, nil), tt.solver, exporter, defaultOptions(tt.count), nil)

			res, err := driver.Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.expectedErr), "expected %v, got %v", tt.expectedErr, err)
			assert.Empty(t, exporter.existing)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestDriver_Run_DeadlineDuringSolve(t *testing.T) {
	inner := solver.New(solver.Options{}, nil)
	calls := 0
	// the second run's solve outlives the deadline
	stalling := program.SolverFunc(func(ctx context.Context, p *program.Program) (*program.Solution, error) {
		calls++
		if calls == 1 {
			return inner.Solve(ctx, p)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	failures := metrics.SolverFailuresTotal.WithLabelValues(models.StageExisting, string(program.StatusTimeout))
	before := testutil.ToFloat64(failures)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	exporter := &recordingExporter{}
	driver := simulation.NewDriver(&memLoader{data: sharedState}, sampler.New(1, nil), stalling, exporter, defaultOptions(3), nil)

	res, err := driver.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var sf *customerrors.SolverFailure
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, 1, sf.Run)
	assert.Equal(t, models.StageExisting, sf.Stage)
	assert.Equal(t, string(program.StatusTimeout), sf.Status)

	assert.Equal(t, 2, calls, "no run starts after the failing one")
	assert.Len(t, exporter.existing, 1, "only the completed run was exported")
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}

func hiringStates() []models.State {
	return []models.State{
		{ID: "CA", LicenseTime: 10, TimeToHire: 20},
		{ID: "NY", LicenseTime: 10, TimeToHire: 60},
		{ID: "TX", LicenseTime: 10, TimeToHire: 5},
	}
}

func hiringSummary() []models.StateSummary {
	return []models.StateSummary{
		{State: "CA", AssignedHours: 10, Demand: 60, Deficit: 50},
		{State: "NY", AssignedHours: 0, Demand: 20, Deficit: 20},
		{State: "TX", AssignedHours: 5, Demand: 5, Deficit: 0},
	}
}

func TestPlanner_Plan(t *testing.T) {
	exporter := &recordingExporter{}
	planner := simulation.NewPlanner(solver.New(solver.Options{}, nil), exporter, simulation.HiringOptions{
		PlanningHorizon: 45,
		MaxNewHireHours: 30,
		MaxHires:        3,
		TieBreak:        assignment.DefaultTieBreak,
	}, nil)

	res, err := planner.Plan(context.Background(), hiringStates(), hiringSummary())
	require.NoError(t, err)
	require.Len(t, exporter.hiring, 1)

	assert.Equal(t, []models.HireableHours{
		{State: "CA", Hours: 50},
		{State: "NY", Hours: 0},
		{State: "TX", Hours: 0},
	}, res.Hireable)

	byState := map[string]models.PostHiringStateSummary{}
	for _, s := range res.States {
		byState[s.State] = s
	}
	assert.Equal(t, 50, byState["CA"].NewHireHours)
	assert.Equal(t, 0.0, byState["CA"].DeficitPostHiring)
	assert.Equal(t, 0, byState["NY"].NewHires, "NY cannot hire within the horizon")
	assert.Equal(t, 20.0, byState["NY"].DeficitPostHiring)

	total := 0
	for _, s := range res.Slots {
		assert.LessOrEqual(t, s.Hours, 30)
		total += s.Hours
	}
	assert.Equal(t, 50, total)
	assert.Equal(t, float64(len(res.Slots)), testutil.ToFloat64(metrics.HiresUsed))
	assert.Equal(t, 20.0, testutil.ToFloat64(metrics.PostHiringDeficitTotal))
}

func TestPlanner_Plan_NoHires(t *testing.T) {
	planner := simulation.NewPlanner(solver.New(solver.Options{}, nil), nil, simulation.HiringOptions{
		PlanningHorizon: 45,
		MaxNewHireHours: 30,
		MaxHires:        0,
	}, nil)

	res, err := planner.Plan(context.Background(), hiringStates(), hiringSummary())
	require.NoError(t, err)

	assert.Empty(t, res.Assignments)
	assert.Empty(t, res.Slots)
	for i, s := range res.States {
		assert.Equal(t, hiringSummary()[i].Deficit, s.DeficitPostHiring)
	}
}

func TestPlanner_Plan_Errors(t *testing.T) {
	tests := map[string]struct {
		opts        simulation.HiringOptions
		summary     []models.StateSummary
		expectedErr error
	}{
		"ZeroHoursPerHire": {
			opts:        simulation.HiringOptions{PlanningHorizon: 45, MaxNewHireHours: 0, MaxHires: 3},
			summary:     hiringSummary(),
			expectedErr: customerrors.ErrNonPositive,
		},
		"NegativePool": {
			opts:        simulation.HiringOptions{PlanningHorizon: 45, MaxNewHireHours: 30, MaxHires: -1},
			summary:     hiringSummary(),
			expectedErr: customerrors.ErrNegative,
		},
		"UnknownStateInSummary": {
			opts:        simulation.HiringOptions{PlanningHorizon: 45, MaxNewHireHours: 30, MaxHires: 1},
			summary:     []models.StateSummary{{State: "ZZ", Deficit: 4}},
			expectedErr: customerrors.ErrUnknownState,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			planner := simulation.NewPlanner(solver.New(solver.Options{}, nil), nil, tt.opts, nil)
			_, err := planner.Plan(context.Background(), hiringStates(), tt.summary)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expectedErr), "expected %v, got %v", tt.expectedErr, err)
		})
	}
}
