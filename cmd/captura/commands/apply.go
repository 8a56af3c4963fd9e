package commands

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/policy"
	"github.com/acederberg/captura-deploy/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		autoApprove     bool
		force           bool
		parallelism     int
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "apply <stack>",
		Short: "Apply a stack",
		Long: `Plan and execute the changes needed to make the deployed resources
match the stack document.

This command:
  - Computes the plan (as 'captura plan' would)
  - Evaluates policies and blocks on error-level violations
  - Prompts for approval (unless --auto-approve)
  - Executes steps in dependency order, in parallel where safe
  - Commits each resource to the state store as it lands`,
		Example: `  # Apply with approval prompt
  captura apply stack.cue

  # Unattended apply, keep independent branches going on failure
  captura apply stack.cue --auto-approve --continue-on-error

  # Override a policy denial
  captura apply stack.cue --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, logger, err := setup()
			if err != nil {
				return err
			}

			stack, graph, err := loadStack(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Load(ctx)
			if err != nil {
				return err
			}

			plan, err := engine.Diff(graph, record)
			if err != nil {
				return err
			}
			if err := printPlan(plan); err != nil {
				return err
			}
			if !plan.HasChanges() {
				logger.Info().Str("stack", stack.Name).Msg("Nothing to apply")
				return nil
			}

			verdict, err := policy.NewEngine(logger).EvaluatePlan(ctx, plan)
			if err != nil {
				return err
			}
			printPolicyResult(verdict)
			if !verdict.Allowed {
				if !force {
					return fmt.Errorf("plan denied by policy (use --force to override)")
				}
				logger.Warn().Msg("Policy denial overridden by --force")
			}

			if !autoApprove && !confirm("\nProceed with apply?") {
				return fmt.Errorf("apply aborted")
			}

			reg, err := buildRegistry(settings)
			if err != nil {
				return err
			}

			cfg := settings.telemetryConfig(logLevel, logFormat)
			tracer, err := telemetry.NewTracer(ctx, cfg.Tracing, "captura", cmd.Root().Version)
			if err != nil {
				return err
			}
			defer tracer.Shutdown(ctx)

			metrics := telemetry.NewMetrics(cfg.Metrics)
			if settings.Telemetry.MetricsListen != "" {
				go serveMetrics(settings.Telemetry.MetricsListen, metrics, logger)
			}

			opts := engine.ExecOptions{
				Parallelism:     settings.Apply.Parallelism,
				MaxRetries:      settings.Apply.MaxRetries,
				RetryBackoff:    settings.Apply.RetryBackoff.Duration,
				ContinueOnError: settings.Apply.ContinueOnError || continueOnError,
			}
			if parallelism > 0 {
				opts.Parallelism = parallelism
			}

			executor := engine.NewExecutor(reg, store, store, logger, opts)
			report, err := executor.Apply(ctx, graph, plan)
			if err != nil {
				return err
			}

			metrics.ObserveReport(report)
			metrics.SetManagedResources(graph.Len())

			if err := printReport(report); err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip approval prompt")
	cmd.Flags().BoolVar(&force, "force", false, "proceed despite policy denial")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max parallel steps (0 uses settings)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep independent branches running after a failure")

	return cmd
}

func serveMetrics(addr string, metrics *telemetry.Metrics, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("Metrics listener failed")
	}
}
