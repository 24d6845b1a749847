// Package metrics provides Prometheus observability metrics for the workforce planner.
// It includes Critical and Important metrics for business and operational visibility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// =============================================================================
// CRITICAL METRICS - Business Impact Visibility
// =============================================================================

// DeficitHoursTotal tracks the weekly demand hours left uncovered by the latest run.
// High values indicate the existing workforce cannot serve demand.
var DeficitHoursTotal = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "deficit_hours_total",
	Help:      "Weekly demand hours not covered by the existing workforce in the latest run",
})

// DemandHoursTotal tracks total weekly demand of the latest run.
var DemandHoursTotal = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "demand_hours_total",
	Help:      "Total weekly demand hours across all states in the latest run",
})

// AssignedHoursTotal tracks weekly hours assigned to existing therapists.
var AssignedHoursTotal = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "assigned_hours_total",
	Help:      "Total weekly hours assigned to existing therapists in the latest run",
})

// DeficitByState tracks the uncovered weekly hours per state.
var DeficitByState = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "deficit_hours_by_state",
	Help:      "Weekly demand hours not covered, broken down by state",
}, []string{"state"})

// NewLicensesTotal tracks the licenses the latest plan asks existing therapists to acquire.
var NewLicensesTotal = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "new_licenses_total",
	Help:      "Number of new licenses assigned to existing therapists in the latest run",
})

// HiresUsed tracks how many new-hire slots carry hours in the latest hiring plan.
var HiresUsed = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "hires_used",
	Help:      "Number of new-hire slots with assigned hours in the latest hiring plan",
})

// PostHiringDeficitTotal tracks the deficit left after new hires are placed.
var PostHiringDeficitTotal = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "planner",
	Name:      "post_hiring_deficit_hours_total",
	Help:      "Weekly demand hours still uncovered after the hiring plan",
})

// =============================================================================
// IMPORTANT METRICS - Operational Health
// =============================================================================

// RunsTotal counts simulation runs by outcome.
var RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "planner",
	Name:      "runs_total",
	Help:      "Total simulation runs by outcome",
}, []string{"outcome"})

// RunDurationSeconds tracks the time of one full simulation run.
var RunDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "planner",
	Name:      "run_duration_seconds",
	Help:      "Time taken by one simulation run, from loading master data to export",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
})

// SampledDemandClampedTotal counts demand draws that came out negative and were clamped to zero.
var SampledDemandClampedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "sampler",
	Name:      "clamped_draws_total",
	Help:      "Demand draws that were negative and clamped to zero",
})

// SolveDurationSeconds tracks solver wall-clock time by stage.
var SolveDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "solver",
	Name:      "duration_seconds",
	Help:      "Time taken to solve a program, by stage",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
}, []string{"stage"})

// SolverNodes tracks branch-and-bound nodes explored per solve.
var SolverNodes = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "solver",
	Name:      "nodes",
	Help:      "Branch-and-bound nodes explored per solve, by stage",
	Buckets:   []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
}, []string{"stage"})

// SolverFailuresTotal counts solves that produced no usable solution.
var SolverFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "solver",
	Name:      "failures_total",
	Help:      "Solves without a usable solution, by stage and status",
}, []string{"stage", "status"})

// ParserErrorsTotal tracks master-data errors by error type.
var ParserErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "errors_total",
	Help:      "Total master-data errors by error type",
}, []string{"error_type"})

// ParserRecordsTotal tracks master-data records successfully loaded, by table.
var ParserRecordsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "records_total",
	Help:      "Total master-data records successfully loaded",
}, []string{"table"})

// ParserDurationSeconds tracks time to load the master data.
var ParserDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "parser",
	Name:      "duration_seconds",
	Help:      "Time taken to load and validate the master data",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
})

// =============================================================================
// Helper Functions
// =============================================================================

// ResetRunGauges resets all per-run gauges before a new simulation run.
// Runs overwrite each other, so gauges always describe the latest run.
func ResetRunGauges() {
	DeficitHoursTotal.Set(0)
	DemandHoursTotal.Set(0)
	AssignedHoursTotal.Set(0)
	NewLicensesTotal.Set(0)
	DeficitByState.Reset()
}

// ResetHiringGauges resets the hiring-plan gauges before a new plan.
func ResetHiringGauges() {
	HiresUsed.Set(0)
	PostHiringDeficitTotal.Set(0)
}
