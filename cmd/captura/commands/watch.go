package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/state"
)

const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <stack>",
		Short: "Re-plan whenever the stack document changes",
		Long: `Watch the stack document and print a fresh plan each time it changes.

Nothing is ever applied; this is a live preview for editing stack
documents. Editor save patterns (write-then-rename) are handled by
watching the containing directory and debouncing bursts of events.`,
		Example: `  # Live-preview the pending changes while editing
  captura watch stack.cue`,
		Args: cobra.ExactArgs(1),
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

			source, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the parent directory so rename-style saves keep
			// delivering events after the original inode is gone.
			if err := watcher.Add(filepath.Dir(source)); err != nil {
				return err
			}

			replan(ctx, logger, store, source)

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
						!event.Op.Has(fsnotify.Rename) {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case <-pending:
					replan(ctx, logger, store, source)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	return cmd
}

func replan(ctx context.Context, logger zerolog.Logger, store *state.SQLiteStore, source string) {
	_, graph, err := loadStack(source)
	if err != nil {
		logger.Error().Err(err).Msg("Stack is invalid")
		return
	}
	record, err := store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load state")
		return
	}
	plan, err := engine.Diff(graph, record)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to plan")
		return
	}
	fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
	if err := printPlan(plan); err != nil {
		logger.Error().Err(err).Msg("Failed to print plan")
	}
}
