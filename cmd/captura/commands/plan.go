package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/policy"
)

func newPlanCommand() *cobra.Command {
	var showPolicy bool

	cmd := &cobra.Command{
		Use:   "plan <stack>",
		Short: "Preview the changes an apply would make",
		Long: `Diff the declared stack against the last-applied state and print the
resulting plan without executing it.

This command:
  - Loads and validates the stack document
  - Loads the state record from the SQLite store
  - Computes create, update, delete, and replace steps
  - Optionally evaluates policies against the plan`,
		Example: `  # Show the pending changes
  captura plan stack.cue

  # Plan as JSON, including the policy verdict
  captura plan stack.cue --json --policy`,
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

			logger.Info().
				Str("stack", stack.Name).
				Int64("serial", record.Serial).
				Int("steps", len(plan.Steps)).
				Msg("Plan computed")

			if err := printPlan(plan); err != nil {
				return err
			}

			if showPolicy {
				result, err := policy.NewEngine(logger).EvaluatePlan(ctx, plan)
				if err != nil {
					return err
				}
				printPolicyResult(result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPolicy, "policy", false, "evaluate policies against the plan")

	return cmd
}

func printPolicyResult(result *policy.Result) {
	if result.Allowed && len(result.Violations) == 0 {
		fmt.Println("\nPolicy: allowed")
		return
	}
	fmt.Println()
	for _, v := range result.Violations {
		fmt.Printf("Policy %s [%s]: %s", v.Policy, v.Severity, v.Message)
		if v.Resource != "" {
			fmt.Printf(" (%s)", v.Resource)
		}
		fmt.Println()
	}
	if !result.Allowed {
		fmt.Println("Policy: denied")
	}
}
