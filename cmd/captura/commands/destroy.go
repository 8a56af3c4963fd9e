package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

func newDestroyCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down every managed resource",
		Long: `Delete all resources recorded in the state store, dependents first.

Destroy diffs the state against an empty stack, so the resulting plan
contains only deletes. Policies are not evaluated: destroy is the
explicit teardown path and the deletion guardrails exist to catch
accidental removals inside an apply.`,
		Example: `  # Tear down with confirmation prompt
  captura destroy

  # Unattended teardown
  captura destroy --auto-approve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, logger, err := setup()
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

			// An empty desired graph turns every live resource into a
			// delete step, ordered dependents first.
			graph, err := engine.BuildGraph(nil)
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
				logger.Info().Msg("Nothing to destroy")
				return nil
			}

			if !autoApprove && !confirm("\nDestroy all resources above?") {
				return fmt.Errorf("destroy aborted")
			}

			reg, err := buildRegistry(settings)
			if err != nil {
				return err
			}

			executor := engine.NewExecutor(reg, store, store, logger, engine.ExecOptions{
				Parallelism:  settings.Apply.Parallelism,
				MaxRetries:   settings.Apply.MaxRetries,
				RetryBackoff: settings.Apply.RetryBackoff.Duration,
			})
			report, err := executor.Apply(ctx, graph, plan)
			if err != nil {
				return err
			}
			if err := printReport(report); err != nil {
				return err
			}
			return report.Err()
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip confirmation prompt")

	return cmd
}
