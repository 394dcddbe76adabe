package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.MigrateDatabase(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("Migrations applied", "schema", a.cfg.Store.Postgres.Schema)
			return nil
		},
	}
}
