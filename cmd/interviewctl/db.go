package main

import (
	"fmt"

	"github.com/ashureev/excel-interviewer/internal/config"
	"github.com/ashureev/excel-interviewer/internal/store"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the Postgres schema",
		Long:  "Manage the Postgres schema. The SQLite store creates its schema on open and needs no migrations.",
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := connectPostgres(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}

	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := connectPostgres(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()

			if err := pg.Rollback(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Last migration rolled back.")
			return nil
		},
	}

	cmd.AddCommand(migrate, rollback)
	return cmd
}

func connectPostgres(cmd *cobra.Command) (*store.PGStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER is %q; migrations apply to postgres only", cfg.Database.Driver)
	}
	return store.ConnectPostgres(cmd.Context(), cfg.Database.URL)
}
