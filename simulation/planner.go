package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"workforce-planner/aggregator"
	"workforce-planner/assignment"
	"workforce-planner/errors"
	"workforce-planner/logging"
	"workforce-planner/metrics"
	"workforce-planner/models"
	"workforce-planner/program"
)

// HiringOptions configures the new-hire plan.
type HiringOptions struct {
	PlanningHorizon float64
	MaxNewHireHours float64
	MaxHires        int
	TieBreak        float64
}

// Planner places new hires against the deficit left by the existing workforce.
type Planner struct {
	solver   program.Solver
	exporter Exporter
	opts     HiringOptions
	log      *slog.Logger
}

// NewPlanner creates a planner. A nil exporter skips exports, a nil logger discards logs.
func NewPlanner(solver program.Solver, exporter Exporter, opts HiringOptions, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Planner{solver: solver, exporter: exporter, opts: opts, log: logger}
}

// Plan computes the hiring plan for states given their stage-one summary,
// either from the last simulation run or loaded from an export. states
// supplies each state's license and hiring lead times.
func (p *Planner) Plan(ctx context.Context, states []models.State, summary []models.StateSummary) (*models.HiringResult, error) {
	switch {
	case p.opts.MaxNewHireHours <= 0:
		return nil, &errors.ConfigurationError{Field: "hiring.max_newhire_hrs", Value: p.opts.MaxNewHireHours, Err: errors.ErrNonPositive}
	case p.opts.MaxHires < 0:
		return nil, &errors.ConfigurationError{Field: "hiring.max_hires", Value: p.opts.MaxHires, Err: errors.ErrNegative}
	}
	metrics.ResetHiringGauges()

	hireable, err := assignment.HireableHours(states, summary, p.opts.PlanningHorizon)
	if err != nil {
		return nil, fmt.Errorf("hiring plan: %w", err)
	}

	model := assignment.FormulateNewHire(states, hireable, assignment.NewHireParams{
		PlanningHorizon: p.opts.PlanningHorizon,
		MaxNewHireHours: p.opts.MaxNewHireHours,
		MaxHires:        p.opts.MaxHires,
		TieBreak:        p.opts.TieBreak,
	})
	p.log.DebugContext(ctx, "formulated",
		"stage", models.StageNewHire,
		"variables", model.Program.NumVariables(), "constraints", len(model.Program.Constraints))

	sol, err := solve(ctx, p.solver, model.Program, -1, models.StageNewHire, p.log)
	if err != nil {
		return nil, err
	}

	hires := model.Assignments(sol)
	aggregator.SortHires(hires)
	post, err := aggregator.PostHiring(summary, hires)
	if err != nil {
		return nil, fmt.Errorf("hiring plan: %w", err)
	}

	res := &models.HiringResult{
		Status:      string(sol.Status),
		Objective:   sol.Objective,
		Hireable:    hireable,
		Assignments: hires,
		States:      post,
		Slots:       aggregator.Slots(hires),
	}

	remaining := 0.0
	for _, s := range res.States {
		remaining += s.DeficitPostHiring
	}
	metrics.HiresUsed.Set(float64(len(res.Slots)))
	metrics.PostHiringDeficitTotal.Set(remaining)

	if p.exporter != nil {
		paths, err := p.exporter.ExportHiring(res)
		if err != nil {
			return nil, fmt.Errorf("hiring plan: %w", err)
		}
		p.log.DebugContext(ctx, "exported", "files", paths)
	}

	p.log.InfoContext(ctx, "hiring plan finished",
		"status", res.Status,
		"hires_used", len(res.Slots),
		"deficit_post_hiring", remaining)
	return res, nil
}
