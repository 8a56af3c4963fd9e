package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/state"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage the state store",
	}

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateExportCommand())
	cmd.AddCommand(newStateImportCommand())
	cmd.AddCommand(newStateRunsCommand())
	cmd.AddCommand(newStateEventsCommand())
	cmd.AddCommand(newStateUnlockCommand())

	return cmd
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List recorded resources",
		Args:  cobra.NoArgs,
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
			if jsonOutput {
				return printJSON(record)
			}

			ids := make([]string, 0, len(record.Resources))
			for id := range record.Resources {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			fmt.Printf("State serial %d, %d resource(s)\n", record.Serial, len(ids))
			for _, id := range ids {
				rs := record.Resources[id]
				fmt.Printf("  %-9s %s (applied %s)\n", rs.Status, id,
					rs.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newStateExportCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the state record as a YAML snapshot",
		Args:  cobra.NoArgs,
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
			data, err := state.Export(record)
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(outFile, data, 0o600)
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the snapshot to a file instead of stdout")

	return cmd
}

func newStateImportCommand() *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Replace the state record from a YAML snapshot",
		Long: `Load a snapshot produced by 'captura state export' and replace the
entire state record with it. The previous record is overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, logger, err := setup()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			record, err := state.Import(data)
			if err != nil {
				return err
			}

			if !autoApprove && !confirm(fmt.Sprintf(
				"Replace the state record with %d resource(s) at serial %d?",
				len(record.Resources), record.Serial)) {
				return fmt.Errorf("import aborted")
			}

			store, err := openStore(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Replace(ctx, record); err != nil {
				return err
			}
			logger.Info().
				Int64("serial", record.Serial).
				Int("resources", len(record.Resources)).
				Msg("State imported")
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip confirmation prompt")

	return cmd
}

func newStateRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List finalized apply runs",
		Args:  cobra.NoArgs,
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

			runs, err := store.Runs(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			for _, run := range runs {
				fmt.Printf("  serial %-4d %s  %s\n", run.Serial, run.ID,
					run.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func newStateEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the event timeline of a run",
		Args:  cobra.ExactArgs(1),
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

			events, err := store.Events(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(events)
			}
			for _, ev := range events {
				line := fmt.Sprintf("  %s %-7s %s",
					ev.Timestamp.Format("15:04:05.000"), ev.Level, ev.Message)
				if ev.Resource != "" {
					line += " (" + ev.Resource + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newStateUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Force-release a stale apply lock",
		Long: `Release the stack lock regardless of owner.

Only use this when an apply died without unlocking, for example after a
power loss. Unlocking while another apply is genuinely running corrupts
nothing but lets the two runs interleave.`,
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

			if err := store.ForceUnlock(ctx); err != nil {
				return err
			}
			logger.Info().Msg("Lock released")
			return nil
		},
	}
}
