package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/migforge/migforge/internal/db"
	"github.com/migforge/migforge/internal/ledger"
	"github.com/migforge/migforge/internal/loop"
	"github.com/migforge/migforge/internal/planner"
	"github.com/migforge/migforge/internal/tools"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the migration loop until convergence or budget exhaustion",
	Long: `Runs repeated analyze → plan → fix → validate rounds. The loop halts on
convergence, on the max-rounds ceiling, or when progress stalls past the
stagnant round cap. Ctrl-C aborts between rounds; an in-flight round is
allowed to finish so the workspace is never left half-edited.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg, ws := bundle.cfg, bundle.ws

		logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
			logger = logger.Level(zerolog.InfoLevel)
		}

		led, err := ledger.Open(ws.LedgerPath(), cfg.Loop.RetryThreshold)
		if err != nil {
			return err
		}
		defer led.Close()

		dbPath := cfg.EventsDB
		if dbPath == "" {
			dbPath = ws.EventsDBPath()
		}
		events, err := db.Open(dbPath)
		if err != nil {
			return err
		}
		defer events.Close()

		var guidance planner.Guidance
		if cfg.Guidance != "" {
			guidance, err = planner.LoadGuidance(cfg.Guidance, cfg.Targets)
			if err != nil {
				return err
			}
		}

		runner := &tools.ExecRunner{}
		controller := loop.NewController(loop.Opts{
			Config: cfg,
			Store:  ws,
			Ledger: led,
			Analyzer: tools.NewAnalyzer(runner, tools.AnalyzerOpts{
				Command:  cfg.Analyzer.Command,
				Project:  cfg.Project,
				Provider: cfg.Provider,
				Targets:  cfg.Targets,
				Timeout:  cfg.Analyzer.TimeoutOr(15 * time.Minute),
			}),
			Fixer: tools.NewFixer(runner, tools.FixerOpts{
				Command: cfg.Fixer.Command,
				Project: cfg.Project,
				Timeout: cfg.Fixer.TimeoutOr(30 * time.Minute),
			}),
			Verifier: tools.NewVerifier(runner, tools.VerifierOpts{
				Project: cfg.Project,
				Build:   tools.VerifierCheck{Command: cfg.Verify.Build.Command, Timeout: cfg.Verify.Build.TimeoutOr(10 * time.Minute)},
				Lint:    tools.VerifierCheck{Command: cfg.Verify.Lint.Command, Timeout: cfg.Verify.Lint.TimeoutOr(5 * time.Minute)},
				Test:    tools.VerifierCheck{Command: cfg.Verify.Test.Command, Timeout: cfg.Verify.Test.TimeoutOr(20 * time.Minute)},
			}),
			Guidance: guidance,
			Events:   events,
			Logger:   logger,
		})

		// SIGINT/SIGTERM abort between rounds.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := controller.Run(ctx)
		if err != nil {
			return err
		}
		if err := report.Render(cmd.OutOrStdout()); err != nil {
			return err
		}
		if report.Status != loop.StatusConverged {
			// Non-converged terminal states exit non-zero for automation.
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
}
