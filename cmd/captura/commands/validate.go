package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <stack>",
		Short: "Validate a stack document",
		Long: `Parse and validate a stack document without touching any state.

This command:
  - Parses the CUE stack document (file or directory)
  - Checks resource types, names, and required inputs
  - Resolves references and rejects dangling or cyclic dependencies
  - Prints the dependency order`,
		Example: `  # Validate a single stack file
  captura validate stack.cue

  # Validate a directory of CUE files
  captura validate ./deploy/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}

			stack, graph, err := loadStack(args[0])
			if err != nil {
				var verr config.ValidationError
				if errors.As(err, &verr) {
					fmt.Printf("invalid: %s\n", verr)
				}
				return err
			}

			logger.Info().
				Str("stack", stack.Name).
				Int("resources", graph.Len()).
				Msg("Stack is valid")

			if jsonOutput {
				return printJSON(map[string]any{
					"stack":     stack.Name,
					"resources": graph.Len(),
					"order":     graph.TopologicalOrder(),
				})
			}
			fmt.Printf("Stack %q: %d resource(s)\n", stack.Name, graph.Len())
			for _, name := range graph.TopologicalOrder() {
				res, _ := graph.Resource(name)
				deps := graph.Dependencies(name)
				if len(deps) == 0 {
					fmt.Printf("  %s/%s\n", res.Type(), name)
					continue
				}
				fmt.Printf("  %s/%s (after %v)\n", res.Type(), name, deps)
			}
			return nil
		},
	}

	return cmd
}
