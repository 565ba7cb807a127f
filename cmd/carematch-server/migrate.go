package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carematch/carematch/internal/platform/db"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(migrateAction("up", "Apply pending migrations", func(ctx context.Context, m *db.Migrator) error {
		return m.Up(ctx)
	}))
	cmd.AddCommand(migrateAction("down", "Roll back the most recent migration", func(ctx context.Context, m *db.Migrator) error {
		return m.Down(ctx)
	}))
	cmd.AddCommand(migrateAction("status", "Show applied and pending migrations", func(ctx context.Context, m *db.Migrator) error {
		return m.Status(ctx)
	}))

	return cmd
}

func migrateAction(use, short string, run func(context.Context, *db.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if err := run(ctx, migrator); err != nil {
				return err
			}
			v, err := migrator.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
			return nil
		},
	}
}
