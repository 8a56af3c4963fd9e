package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/acederberg/captura-deploy/pkg/config"
	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/providers"
	"github.com/acederberg/captura-deploy/pkg/providers/digitalocean"
	"github.com/acederberg/captura-deploy/pkg/state"
	"github.com/acederberg/captura-deploy/pkg/telemetry"
)

// setup loads settings and builds the logger shared by every command.
func setup() (Settings, zerolog.Logger, error) {
	settings, err := loadSettings(configPath)
	if err != nil {
		return settings, zerolog.Nop(), err
	}
	if statePath != "" {
		settings.StatePath = statePath
	}

	cfg := settings.telemetryConfig(logLevel, logFormat)
	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return settings, zerolog.Nop(), err
	}
	return settings, logger, nil
}

// openStore opens the SQLite state store named by the settings.
func openStore(ctx context.Context, settings Settings, logger zerolog.Logger) (*state.SQLiteStore, error) {
	store, err := state.Open(ctx, state.Config{Path: settings.StatePath}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// loadStack parses the stack document and builds the dependency graph.
func loadStack(source string) (*config.Stack, *engine.Graph, error) {
	stack, resources, err := config.NewLoader().Load(source)
	if err != nil {
		return nil, nil, err
	}
	graph, err := engine.BuildGraph(resources)
	if err != nil {
		return nil, nil, err
	}
	return stack, graph, nil
}

// buildRegistry wires the adapter set named by the settings.
func buildRegistry(settings Settings) (*providers.Registry, error) {
	reg := providers.NewRegistry()
	switch settings.Provider {
	case "mock":
		providers.RegisterMockAdapters(reg)
	case "digitalocean", "":
		client, err := digitalocean.NewClient(digitalocean.Config{
			Token:            settings.DigitalOcean.Token,
			PollInterval:     settings.DigitalOcean.PollInterval.Duration,
			ProvisionTimeout: settings.DigitalOcean.ProvisionTimeout.Duration,
		})
		if err != nil {
			return nil, err
		}
		client.RegisterAdapters(reg)
	default:
		return nil, fmt.Errorf("unknown provider %q", settings.Provider)
	}
	return reg, nil
}

// printPlan renders a plan to stdout, as JSON or as a step listing.
func printPlan(plan *engine.Plan) error {
	if jsonOutput {
		return printJSON(plan)
	}
	for _, step := range plan.Steps {
		marker := "~"
		switch step.Op {
		case engine.OpCreate:
			marker = "+"
		case engine.OpDelete:
			marker = "-"
		case engine.OpNoop:
			marker = " "
		}
		line := fmt.Sprintf("  %s %s", marker, step.ID)
		if step.Replacement {
			line += " (replacement)"
		}
		if step.Reason != "" {
			line += "  # " + step.Reason
		}
		fmt.Println(line)
	}
	s := plan.Summary
	fmt.Printf("\nPlan: %d to create, %d to update, %d to delete, %d to replace, %d unchanged\n",
		s.ToCreate, s.ToUpdate, s.ToDelete, s.ToReplace, s.Unchanged)
	return nil
}

// printReport renders an apply report to stdout.
func printReport(report *engine.Report) error {
	if jsonOutput {
		return printJSON(report)
	}
	for _, step := range report.Steps {
		line := fmt.Sprintf("  %-9s %s", step.Status, step.StepID)
		if step.Error != "" {
			line += "  # " + step.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("\nApply %s: %d succeeded, %d failed, %d skipped, %d unchanged\n",
		report.RunID, report.Succeeded, report.Failed, report.Skipped, report.Unchanged)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm prompts on stdin and accepts only an exact "yes".
func confirm(prompt string) bool {
	fmt.Printf("%s Only 'yes' will be accepted: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
