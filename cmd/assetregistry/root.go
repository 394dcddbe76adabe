package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/asset-registry/pkg/assetregistry/config"
)

// app carries what PersistentPreRunE loaded for the subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "assetregistry",
		Short: "Metadata registry and proxy for binary assets",
		Long: `assetregistry keeps a registry of assets that live on external disks
(GitHub repositories, remote URLs, local paths, S3) and resolves slugs to
public URLs.

Settings come from environment variables, optionally layered over a YAML
file passed with --config. Run "assetregistry config --env" for the list.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Log.NewLogger(os.Stderr)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}
