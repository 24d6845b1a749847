// Package config loads the planner's run configuration from a YAML file with
// WFP_-prefixed environment overrides, and validates it before any solve.
package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"workforce-planner/errors"
	"workforce-planner/logging"
)

// EnvPrefix prefixes every environment override, e.g. WFP_PLANNING_HORIZON.
const EnvPrefix = "WFP"

// Config is the top-level run configuration.
type Config struct {
	Input    InputConfig    `mapstructure:"input" yaml:"input"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`
	Planning PlanningConfig `mapstructure:"planning" yaml:"planning"`
	Hiring   HiringConfig   `mapstructure:"hiring" yaml:"hiring"`
	Solver   SolverConfig   `mapstructure:"solver" yaml:"solver"`
	Log      logging.Config `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// InputConfig locates the master-data tables. StateStats is only read by a
// standalone hiring plan; empty means the stage-one export under Output.Dir.
type InputConfig struct {
	Therapists string `mapstructure:"therapists" yaml:"therapists" validate:"required"`
	States     string `mapstructure:"states" yaml:"states" validate:"required"`
	Licenses   string `mapstructure:"licenses" yaml:"licenses" validate:"required"`
	StateStats string `mapstructure:"state_stats" yaml:"state_stats"`
}

// OutputConfig controls exports and stdout rendering.
type OutputConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir" validate:"required"`
	Format string `mapstructure:"format" yaml:"format"`
	Export bool   `mapstructure:"export" yaml:"export"`
}

// PlanningConfig holds the simulation parameters. Horizon is in weeks.
type PlanningConfig struct {
	Horizon         float64 `mapstructure:"horizon" yaml:"horizon"`
	SimulationCount int     `mapstructure:"simulation_count" yaml:"simulation_count"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed"`
	LicenseGate     string  `mapstructure:"license_gate" yaml:"license_gate"`
	TieBreak        float64 `mapstructure:"tie_break" yaml:"tie_break" validate:"gte=0,lt=1"`
}

// HiringConfig holds the new-hire pool.
type HiringConfig struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	MaxNewHireHours float64 `mapstructure:"max_newhire_hrs" yaml:"max_newhire_hrs"`
	MaxHires        int     `mapstructure:"max_hires" yaml:"max_hires"`
}

// SolverConfig bounds every solve.
type SolverConfig struct {
	TimeLimit      time.Duration `mapstructure:"time_limit" yaml:"time_limit" validate:"gt=0"`
	MaxNodes       int           `mapstructure:"max_nodes" yaml:"max_nodes" validate:"gt=0"`
	Tolerance      float64       `mapstructure:"tolerance" yaml:"tolerance" validate:"gt=0,lt=1"`
	IntegralityTol float64       `mapstructure:"integrality_tol" yaml:"integrality_tol" validate:"gt=0,lt=0.5"`
}

// MetricsConfig controls Prometheus exposure. Both are off when empty.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	PushURL string `mapstructure:"push_url" yaml:"push_url" validate:"omitempty,url"`
	Job     string `mapstructure:"job" yaml:"job" validate:"required"`
}

// Formats lists the values accepted by Output.Format.
var Formats = []string{"text", "json", "csv", "yaml"}

// LicenseGates lists the values accepted by Planning.LicenseGate.
var LicenseGates = []string{"strict", "legacy"}

// Default returns the configuration used when no file or override is given.
func Default() Config {
	return Config{
		Input: InputConfig{
			Therapists: "input/therapists.json",
			States:     "input/states.json",
			Licenses:   "input/therapist_state_license.json",
		},
		Output: OutputConfig{
			Dir:    "output",
			Format: "text",
			Export: true,
		},
		Planning: PlanningConfig{
			Horizon:         45,
			SimulationCount: 1,
			LicenseGate:     "strict",
			TieBreak:        1e-4,
		},
		Hiring: HiringConfig{
			Enabled:         true,
			MaxNewHireHours: 30,
			MaxHires:        3,
		},
		Solver: SolverConfig{
			TimeLimit:      time.Minute,
			MaxNodes:       200000,
			Tolerance:      1e-9,
			IntegralityTol: 1e-6,
		},
		Log: logging.Config{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Metrics: MetricsConfig{
			Job: "workforce_planner",
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("input.therapists", d.Input.Therapists)
	v.SetDefault("input.states", d.Input.States)
	v.SetDefault("input.licenses", d.Input.Licenses)
	v.SetDefault("input.state_stats", d.Input.StateStats)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.export", d.Output.Export)

	v.SetDefault("planning.horizon", d.Planning.Horizon)
	v.SetDefault("planning.simulation_count", d.Planning.SimulationCount)
	v.SetDefault("planning.seed", d.Planning.Seed)
	v.SetDefault("planning.license_gate", d.Planning.LicenseGate)
	v.SetDefault("planning.tie_break", d.Planning.TieBreak)

	v.SetDefault("hiring.enabled", d.Hiring.Enabled)
	v.SetDefault("hiring.max_newhire_hrs", d.Hiring.MaxNewHireHours)
	v.SetDefault("hiring.max_hires", d.Hiring.MaxHires)

	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.max_nodes", d.Solver.MaxNodes)
	v.SetDefault("solver.tolerance", d.Solver.Tolerance)
	v.SetDefault("solver.integrality_tol", d.Solver.IntegralityTol)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.push_url", d.Metrics.PushURL)
	v.SetDefault("metrics.job", d.Metrics.Job)
}

// Load reads the YAML file at path, applies WFP_ environment overrides on top
// of the defaults and validates the result. An empty path loads defaults and
// environment only. Every failure is a *errors.ConfigurationError.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, &errors.ConfigurationError{Field: "config", Value: path, Err: fmt.Errorf("%w: %v", errors.ErrInvalidFile, err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &errors.ConfigurationError{Field: "config", Value: path, Err: fmt.Errorf("%w: %v", errors.ErrInvalidFile, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the cross-field rules, then the struct tags.
func (c *Config) Validate() error {
	switch {
	case c.Planning.SimulationCount < 1:
		return &errors.ConfigurationError{Field: "planning.simulation_count", Value: c.Planning.SimulationCount, Err: errors.ErrNonPositive}
	case c.Planning.Horizon < 0:
		return &errors.ConfigurationError{Field: "planning.horizon", Value: c.Planning.Horizon, Err: errors.ErrNegative}
	case !slices.Contains(LicenseGates, c.Planning.LicenseGate):
		return &errors.ConfigurationError{Field: "planning.license_gate", Value: c.Planning.LicenseGate, Err: errors.ErrUnknownOption}
	case !slices.Contains(Formats, c.Output.Format):
		return &errors.ConfigurationError{Field: "output.format", Value: c.Output.Format, Err: errors.ErrUnknownOption}
	case c.Hiring.MaxNewHireHours <= 0:
		return &errors.ConfigurationError{Field: "hiring.max_newhire_hrs", Value: c.Hiring.MaxNewHireHours, Err: errors.ErrNonPositive}
	case c.Hiring.MaxHires < 0:
		return &errors.ConfigurationError{Field: "hiring.max_hires", Value: c.Hiring.MaxHires, Err: errors.ErrNegative}
	case c.Hiring.Enabled && c.Hiring.MaxHires < 1:
		return &errors.ConfigurationError{Field: "hiring.max_hires", Value: c.Hiring.MaxHires, Err: errors.ErrHiringPool}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &errors.ConfigurationError{Field: fieldPath(fe.Namespace()), Value: fe.Value(), Err: tagError(fe.Tag())}
		}
		return &errors.ConfigurationError{Field: "config", Err: err}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath turns "Config.planning.tie_break" into "planning.tie_break".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagError(tag string) error {
	switch tag {
	case "required":
		return errors.ErrRequired
	case "gt":
		return errors.ErrNonPositive
	case "gte":
		return errors.ErrNegative
	case "oneof":
		return errors.ErrUnknownOption
	default:
		return fmt.Errorf("%w: %s", errors.ErrOutOfRange, tag)
	}
}

var sectionComments = map[string]string{
	"input":    "# Master-data JSON tables, reread on every simulation run.",
	"output":   "# Export directory and stdout format (text, json, csv, yaml).",
	"planning": "# Planning horizon in weeks. seed 0 draws a time-based seed. license_gate is strict or legacy.",
	"hiring":   "# New-hire pool. max_hires must be at least 1 when enabled.",
	"solver":   "# Branch-and-bound limits for every solve.",
	"log":      "# Log level, format and optional rotated file.",
	"metrics":  "# Prometheus endpoint address and Pushgateway URL, both off when empty.",
}

// WriteDefault writes the default configuration as commented YAML.
func WriteDefault(w io.Writer) error {
	d := Default()
	var doc yaml.Node
	if err := doc.Encode(d); err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	doc.HeadComment = "# workforce-planner configuration. Every key can be overridden with a " +
		EnvPrefix + "_ environment variable, e.g. " + EnvPrefix + "_PLANNING_HORIZON=30."

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, section := doc.Content[i], doc.Content[i+1]
		key.HeadComment = sectionComments[key.Value]
		if key.Value != "solver" {
			continue
		}
		for j := 0; j+1 < len(section.Content); j += 2 {
			// durations are written in their readable form rather than nanoseconds
			if section.Content[j].Value == "time_limit" {
				section.Content[j+1].SetString(d.Solver.TimeLimit.String())
			}
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return enc.Close()
}
