package main

import (
	"github.com/spf13/cobra"
	"github.com/tendant/asset-registry/pkg/assetregistry/config"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	var envHelp bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if envHelp {
				return config.Usage(out)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg.Redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&envHelp, "env", false, "list the supported environment variables instead")
	return cmd
}
