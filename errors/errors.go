package errors

import "fmt"

// MasterDataError reports a missing or malformed master-data table or record.
type MasterDataError struct {
	Source string
	Entity string
	Err    error
}

func (e *MasterDataError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("master data error in %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("master data error in %s (entity %q): %v", e.Source, e.Entity, e.Err)
}

func (e *MasterDataError) Unwrap() error {
	return e.Err
}

// SolverFailure wraps an oracle failure with the run index and stage that hit it.
// Run is -1 for solves outside the simulation loop (e.g. a standalone hiring plan).
type SolverFailure struct {
	Run    int
	Stage  string
	Status string
	Err    error
}

func (e *SolverFailure) Error() string {
	if e.Run < 0 {
		return fmt.Sprintf("solver failure in stage %s (status %s): %v", e.Stage, e.Status, e.Err)
	}
	return fmt.Sprintf("solver failure in run %d, stage %s (status %s): %v", e.Run, e.Stage, e.Status, e.Err)
}

func (e *SolverFailure) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned for invalid run configuration, before any solve is attempted.
type ConfigurationError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Master data
var (
	ErrEmptyTable        = fmt.Errorf("empty table")
	ErrMissingField      = fmt.Errorf("missing field")
	ErrInvalidCapacity   = fmt.Errorf("invalid capacity")
	ErrInvalidDemand     = fmt.Errorf("invalid demand")
	ErrInvalidLeadTime   = fmt.Errorf("invalid lead time")
	ErrUnknownState      = fmt.Errorf("unknown state")
	ErrUnknownTherapist  = fmt.Errorf("unknown therapist")
	ErrInvalidFieldCount = fmt.Errorf("invalid field count")
	ErrInvalidNumber     = fmt.Errorf("invalid number")
)

// Solver
var (
	ErrInfeasible      = fmt.Errorf("program is infeasible")
	ErrUnbounded       = fmt.Errorf("program is unbounded")
	ErrTimeout         = fmt.Errorf("solve time limit exceeded")
	ErrNodeLimit       = fmt.Errorf("node limit reached without a feasible solution")
	ErrUnsupportedTerm = fmt.Errorf("unsupported objective term")
	ErrInvalidProgram  = fmt.Errorf("invalid program")
)

// Configuration
var (
	ErrNonPositive   = fmt.Errorf("must be positive")
	ErrNegative      = fmt.Errorf("must not be negative")
	ErrOutOfRange    = fmt.Errorf("out of range")
	ErrUnknownOption = fmt.Errorf("unknown option")
	ErrRequired      = fmt.Errorf("is required")
	ErrInvalidFile   = fmt.Errorf("cannot read config file")
	ErrHiringPool    = fmt.Errorf("max_hires must be at least 1 when hiring is enabled")
)
