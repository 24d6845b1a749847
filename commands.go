package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"workforce-planner/assignment"
	"workforce-planner/config"
	"workforce-planner/formatter"
	"workforce-planner/logging"
	"workforce-planner/metrics"
	"workforce-planner/parser"
	"workforce-planner/sampler"
	"workforce-planner/simulation"
	"workforce-planner/solver"
)

// rootFlags are shared by every subcommand. Non-empty values override the
// config file.
type rootFlags struct {
	config      string
	format      string
	metricsAddr string
	pushURL     string
	wait        bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "workforce-planner",
		Short:         "Allocate therapist hours to state demand and plan new hires",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "YAML config file (defaults and WFP_ environment when empty)")
	pf.StringVarP(&flags.format, "format", "f", "", "Output format: text|json|csv|yaml")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Address to expose Prometheus metrics (e.g., :9090)")
	pf.StringVar(&flags.pushURL, "push-url", "", "Pushgateway URL to push metrics to (e.g., http://localhost:9091)")
	pf.BoolVar(&flags.wait, "wait", false, "Keep process running after completion to allow for metric scraping")

	root.AddCommand(
		simulateCmd(flags),
		planHiresCmd(flags),
		runCmd(flags),
		validateCmd(flags),
		initConfigCmd(),
		versionCmd(),
	)
	return root
}

func simulateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Assign the existing workforce to sampled demand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) (*formatter.Report, error) {
				res, err := a.driver().Run(ctx)
				if err != nil {
					return nil, err
				}
				return &formatter.Report{Existing: res}, nil
			})
		},
	}
}

func planHiresCmd(flags *rootFlags) *cobra.Command {
	var stateStats string
	cmd := &cobra.Command{
		Use:   "plan-hires",
		Short: "Plan new hires against an exported state summary",
		Long: `Plan new hires against the deficit recorded in a state_stats.csv export.

The summary is read from --state-stats, input.state_stats, or the last
simulate export under output.dir, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) (*formatter.Report, error) {
				path := stateStats
				if path == "" {
					path = a.cfg.Input.StateStats
				}
				if path == "" {
					path = formatter.StateStatsPath(a.cfg.Output.Dir)
				}
				summary, err := parser.LoadStateStats(path)
				if err != nil {
					return nil, err
				}
				data, err := a.files().Load(ctx)
				if err != nil {
					return nil, err
				}
				a.log.InfoContext(ctx, "loaded state summary", "path", path, "states", len(summary))

				res, err := a.planner().Plan(ctx, data.States, summary)
				if err != nil {
					return nil, err
				}
				return &formatter.Report{Hiring: res}, nil
			})
		},
	}
	cmd.Flags().StringVar(&stateStats, "state-stats", "", "state_stats.csv to plan against")
	return cmd
}

func runCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Simulate, then plan new hires for the last run when hiring is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) (*formatter.Report, error) {
				existing, err := a.driver().Run(ctx)
				if err != nil {
					return nil, err
				}
				report := &formatter.Report{Existing: existing}
				if !a.cfg.Hiring.Enabled {
					a.log.InfoContext(ctx, "hiring disabled, skipping new-hire plan")
					return report, nil
				}

				report.Hiring, err = a.planner().Plan(ctx, existing.Data.States, existing.States)
				if err != nil {
					return nil, err
				}
				return report, nil
			})
		},
	}
}

func validateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and master data without solving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := a.files().Load(cmd.Context())
			if err != nil {
				return err
			}
			licenses := 0
			for _, set := range data.Licenses {
				licenses += len(set)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK : therapists=%d ; states=%d ; licenses=%d\n",
				len(data.Therapists), len(data.States), licenses)
			return nil
		},
	}
}

func initConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration as commented YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return config.WriteDefault(cmd.OutOrStdout())
			}
			mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			file, err := os.OpenFile(args[0], mode, 0o644)
			if err != nil {
				return fmt.Errorf("creating config: %w", err)
			}
			if err := config.WriteDefault(file); err != nil {
				file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "workforce-planner %s (commit %s)\n", version, commit)
			if bi, ok := debug.ReadBuildInfo(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", bi.GoVersion)
			}
		},
	}
}

// app holds what every planning command builds from the loaded config.
type app struct {
	cfg  *config.Config
	log  *slog.Logger
	wait bool
}

func newApp(flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.format != "" {
		cfg.Output.Format = flags.format
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if flags.pushURL != "" {
		cfg.Metrics.PushURL = flags.pushURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logging.New(cfg.Log, logOut), wait: flags.wait}, nil
}

// withApp loads the config, runs fn under a signal-aware context with
// metrics exposed, prints the report and pushes metrics.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, *app) (*formatter.Report, error)) error {
	a, err := newApp(flags, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := a.serveMetrics()
	defer a.shutdown(srv)

	report, err := fn(ctx, a)
	if err != nil {
		return err
	}
	out, err := formatter.Format(a.cfg.Output.Format, report)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)

	a.pushMetrics(ctx)
	a.waitForScrape(ctx)
	return nil
}

func (a *app) files() parser.Files {
	return parser.Files{
		Therapists: a.cfg.Input.Therapists,
		States:     a.cfg.Input.States,
		Licenses:   a.cfg.Input.Licenses,
	}
}

func (a *app) solver() *solver.BranchAndBound {
	return solver.New(solver.Options{
		TimeLimit:      a.cfg.Solver.TimeLimit,
		MaxNodes:       a.cfg.Solver.MaxNodes,
		Tolerance:      a.cfg.Solver.Tolerance,
		IntegralityTol: a.cfg.Solver.IntegralityTol,
	}, a.log)
}

func (a *app) exporter() simulation.Exporter {
	if !a.cfg.Output.Export {
		return nil
	}
	return formatter.Exporter{Dir: a.cfg.Output.Dir}
}

func (a *app) driver() *simulation.Driver {
	return simulation.NewDriver(a.files(), sampler.New(a.cfg.Planning.Seed, a.log), a.solver(), a.exporter(),
		simulation.Options{
			PlanningHorizon: a.cfg.Planning.Horizon,
			SimulationCount: a.cfg.Planning.SimulationCount,
			Gate:            assignment.LicenseGate(a.cfg.Planning.LicenseGate),
			TieBreak:        a.cfg.Planning.TieBreak,
		}, a.log)
}

func (a *app) planner() *simulation.Planner {
	return simulation.NewPlanner(a.solver(), a.exporter(), simulation.HiringOptions{
		PlanningHorizon: a.cfg.Planning.Horizon,
		MaxNewHireHours: a.cfg.Hiring.MaxNewHireHours,
		MaxHires:        a.cfg.Hiring.MaxHires,
		TieBreak:        a.cfg.Planning.TieBreak,
	}, a.log)
}

func (a *app) serveMetrics() *http.Server {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("metrics server listening", "addr", a.cfg.Metrics.Addr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func (a *app) shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Warn("metrics server shutdown", "error", err)
	}
}

func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushURL == "" {
		return
	}
	err := push.New(a.cfg.Metrics.PushURL, a.cfg.Metrics.Job).Gatherer(metrics.Registry).PushContext(ctx)
	if err != nil {
		a.log.ErrorContext(ctx, "pushing to Pushgateway failed", "error", err)
		return
	}
	a.log.InfoContext(ctx, "metrics pushed to Pushgateway", "url", a.cfg.Metrics.PushURL)
}

// waitForScrape keeps the metrics endpoint up after a batch run.
func (a *app) waitForScrape(ctx context.Context) {
	switch {
	case a.wait && a.cfg.Metrics.Addr != "":
		a.log.InfoContext(ctx, "kept alive for metric scraping, press Ctrl+C to exit")
		<-ctx.Done()
	case a.cfg.Metrics.Addr != "" && a.cfg.Metrics.PushURL == "":
		// batch jobs should push or wait; leave room for one last scrape
		time.Sleep(100 * time.Millisecond)
	}
}
