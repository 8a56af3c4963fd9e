package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acederberg/captura-deploy/pkg/engine"
	"github.com/acederberg/captura-deploy/pkg/transports/ssh"
)

func newBootstrapCommand() *cobra.Command {
	var (
		scriptPath string
		uploads    []string
		user       string
		keyPath    string
		insecure   bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap <instance>",
		Short: "Push the platform payload onto a compute instance",
		Long: `Connect to an applied compute instance over SSH, upload the platform
payload, and run the bootstrap script on it.

The instance address comes from the state store, so the instance must
have been applied first. Connection settings live in the [bootstrap]
settings section; --user, --key, and --insecure override them per run.`,
		Example: `  # Run the bootstrap script on the instance named "server"
  captura bootstrap server --script bootstrap.sh

  # Ship the compose file and site content alongside the script
  captura bootstrap server --script bootstrap.sh \
    --upload compose.yaml:/srv/compose.yaml \
    --upload site.tar.gz:/srv/site.tar.gz`,
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

			record, err := store.Load(ctx)
			if err != nil {
				return err
			}
			host, err := bootstrapTarget(record, args[0])
			if err != nil {
				return err
			}

			cfg := ssh.Config{
				Host:                  host,
				Port:                  settings.Bootstrap.Port,
				User:                  settings.Bootstrap.User,
				PrivateKeyPath:        settings.Bootstrap.PrivateKeyPath,
				KnownHostsPath:        settings.Bootstrap.KnownHostsPath,
				InsecureIgnoreHostKey: settings.Bootstrap.Insecure || insecure,
				ConnectTimeout:        settings.Bootstrap.ConnectTimeout.Duration,
				CommandTimeout:        settings.Bootstrap.CommandTimeout.Duration,
			}
			if user != "" {
				cfg.User = user
			}
			if keyPath != "" {
				cfg.PrivateKeyPath = keyPath
			}

			client, err := ssh.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			for _, spec := range uploads {
				local, remote, err := splitUpload(spec)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(local)
				if err != nil {
					return err
				}
				if err := client.Upload(remote, data, 0o644); err != nil {
					return err
				}
				logger.Info().Str("local", local).Str("remote", remote).Msg("Payload uploaded")
			}

			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return err
			}
			out, err := client.Bootstrap(ctx, script)
			if out != "" {
				fmt.Print(out)
			}
			if err != nil {
				return err
			}
			logger.Info().Str("instance", args[0]).Str("host", host).Msg("Bootstrap finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "bootstrap script to upload and run")
	cmd.Flags().StringArrayVar(&uploads, "upload", nil, "payload file as local:remote (repeatable)")
	cmd.Flags().StringVar(&user, "user", "", "SSH user (overrides settings)")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key path (overrides settings)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip host key verification")
	cmd.MarkFlagRequired("script")

	return cmd
}

// bootstrapTarget resolves an instance name to its recorded address.
func bootstrapTarget(record *engine.StateRecord, name string) (string, error) {
	id := string(engine.TypeComputeInstance) + "/" + name
	if !record.Live(id) {
		return "", fmt.Errorf("compute instance %q is not applied; run apply first", name)
	}
	rs, _ := record.Resource(id)
	host, ok := rs.Outputs["ipv4"].(string)
	if !ok || host == "" {
		return "", fmt.Errorf("compute instance %q has no recorded address", name)
	}
	return host, nil
}

// splitUpload parses a local:remote upload spec.
func splitUpload(spec string) (local, remote string, err error) {
	local, remote, ok := strings.Cut(spec, ":")
	if !ok || local == "" || remote == "" {
		return "", "", fmt.Errorf("upload %q is not of the form local:remote", spec)
	}
	return local, remote, nil
}
