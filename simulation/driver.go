// Package simulation runs the planning stages end to end: load master data,
// sample demand, formulate, solve, aggregate, export.
package simulation

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"workforce-planner/aggregator"
	"workforce-planner/assignment"
	"workforce-planner/errors"
	"workforce-planner/logging"
	"workforce-planner/metrics"
	"workforce-planner/models"
	"workforce-planner/program"
	"workforce-planner/sampler"
)

// Loader returns a fresh copy of the master data. It is called once per run.
type Loader interface {
	Load(ctx context.Context) (*models.MasterData, error)
}

// Exporter persists results. Each call replaces the previous export.
type Exporter interface {
	ExportExisting(res *models.ExistingResult) ([]string, error)
	ExportHiring(res *models.HiringResult) ([]string, error)
}

// Options configures the existing-workforce simulation.
type Options struct {
	PlanningHorizon float64
	SimulationCount int
	Gate            assignment.LicenseGate
	TieBreak        float64
}

// Driver runs the existing-workforce stage SimulationCount times.
type Driver struct {
	loader   Loader
	sampler  *sampler.Sampler
	solver   program.Solver
	exporter Exporter
	opts     Options
	log      *slog.Logger
}

// NewDriver creates a driver. A nil exporter skips exports, a nil logger discards logs.
func NewDriver(loader Loader, smp *sampler.Sampler, solver program.Solver, exporter Exporter, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		loader:   loader,
		sampler:  smp,
		solver:   solver,
		exporter: exporter,
		opts:     opts,
		log:      logger,
	}
}

// Run executes the simulation runs sequentially and returns the last run's
// result. Runs are independent: every run reloads the master data, draws new
// demand and overwrites the previous export. The first failing run aborts.
func (d *Driver) Run(ctx context.Context) (*models.ExistingResult, error) {
	if d.opts.SimulationCount < 1 {
		return nil, &errors.ConfigurationError{Field: "planning.simulation_count", Value: d.opts.SimulationCount, Err: errors.ErrNonPositive}
	}

	var last *models.ExistingResult
	for run := 0; run < d.opts.SimulationCount; run++ {
		res, err := d.runOnce(ctx, run)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
		metrics.RunsTotal.WithLabelValues("success").Inc()
		last = res
	}
	return last, nil
}

func (d *Driver) runOnce(ctx context.Context, run int) (*models.ExistingResult, error) {
	start := time.Now()
	defer func() {
		metrics.RunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID, run)
	metrics.ResetRunGauges()
	d.log.InfoContext(ctx, "run started", "seed", d.sampler.Seed())

	data, err := d.loader.Load(ctx)
	if err != nil {
		d.log.ErrorContext(ctx, "loading master data failed", "error", err)
		return nil, fmt.Errorf("run %d: %w", run, err)
	}
	data = data.WithStates(d.sampler.Sample(ctx, data.States))

	model := assignment.FormulateExisting(data, assignment.ExistingParams{
		PlanningHorizon: d.opts.PlanningHorizon,
		Gate:            d.opts.Gate,
		TieBreak:        d.opts.TieBreak,
	})
	d.log.DebugContext(ctx, "formulated",
		"variables", model.Program.NumVariables(), "constraints", len(model.Program.Constraints))

	sol, err := solve(ctx, d.solver, model.Program, run, models.StageExisting, d.log)
	if err != nil {
		return nil, err
	}

	rows := model.Assignments(sol)
	aggregator.SortAssignments(rows)
	states, providers, err := aggregator.Existing(data, rows)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", run, err)
	}

	res := &models.ExistingResult{
		RunID:       runID,
		Run:         run,
		Status:      string(sol.Status),
		Objective:   sol.Objective,
		Assignments: rows,
		States:      states,
		Providers:   providers,
		Data:        data,
	}
	recordExisting(res)

	if d.exporter != nil {
		paths, err := d.exporter.ExportExisting(res)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		d.log.DebugContext(ctx, "exported", "files", paths)
	}

	d.log.InfoContext(ctx, "run finished",
		"status", res.Status,
		"deficit", res.TotalDeficit(),
		"nodes", sol.Nodes,
		"duration", time.Since(start))
	return res, nil
}

func recordExisting(res *models.ExistingResult) {
	var demand, deficit float64
	var assigned, licenses int
	for _, s := range res.States {
		demand += s.Demand
		deficit += s.Deficit
		assigned += s.AssignedHours
		licenses += s.NewLicenses
		metrics.DeficitByState.WithLabelValues(s.State).Set(s.Deficit)
	}
	metrics.DemandHoursTotal.Set(demand)
	metrics.DeficitHoursTotal.Set(deficit)
	metrics.AssignedHoursTotal.Set(float64(assigned))
	metrics.NewLicensesTotal.Set(float64(licenses))
}

// solve runs one program and turns anything but an optimal or feasible
// solution into a SolverFailure carrying the run and stage.
func solve(ctx context.Context, s program.Solver, p *program.Program, run int, stage string, log *slog.Logger) (*program.Solution, error) {
	ctx = logging.WithStage(ctx, stage)
	start := time.Now()
	sol, err := s.Solve(ctx, p)
	metrics.SolveDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if sol != nil {
		metrics.SolverNodes.WithLabelValues(stage).Observe(float64(sol.Nodes))
	}

	if err == nil && sol != nil && (sol.Status == program.StatusOptimal || sol.Status == program.StatusFeasible) {
		if sol.Status == program.StatusFeasible {
			log.WarnContext(ctx, "solve stopped early, using best solution found", "objective", sol.Objective)
		}
		return sol, nil
	}

	status := program.StatusError
	switch {
	case sol != nil && sol.Status != "":
		status = sol.Status
	case stderrors.Is(err, context.DeadlineExceeded):
		status = program.StatusTimeout
	}
	if err == nil {
		err = fmt.Errorf("solver returned status %s", status)
	}
	metrics.SolverFailuresTotal.WithLabelValues(stage, string(status)).Inc()
	log.ErrorContext(ctx, "solve failed", "status", string(status), "error", err)
	return nil, &errors.SolverFailure{Run: run, Stage: stage, Status: string(status), Err: err}
}
