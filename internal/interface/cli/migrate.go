package cli

import (
	"context"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func migrateCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, open, func(ctx context.Context, m Migrator) error {
				applied, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				if applied == 0 {
					printf(cmd.OutOrStdout(), "%s schema is up to date\n", okMark())
					return nil
				}
				printf(cmd.OutOrStdout(), "%s applied %d migration(s)\n", okMark(), applied)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, open, func(ctx context.Context, m Migrator) error {
				version, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if version == 0 {
					printf(cmd.OutOrStdout(), "%s nothing to roll back\n", warnMark())
					return nil
				}
				printf(cmd.OutOrStdout(), "%s rolled back migration %d\n", okMark(), version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, open, func(ctx context.Context, m Migrator) error {
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}

				applied := color.New(color.FgGreen).Sprint("applied")
				pending := color.New(color.FgYellow).Sprint("pending")

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				printf(w, "VERSION\tNAME\tSTATE\tAPPLIED AT\n")
				for _, mg := range migrations {
					state, at := pending, "-"
					if mg.IsApplied {
						state, at = applied, mg.AppliedAt.UTC().Format("2006-01-02 15:04:05")
					}
					printf(w, "%d\t%s\t%s\t%s\n", mg.Version, mg.Name, state, at)
				}
				return w.Flush()
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, open Opener, fn func(ctx context.Context, m Migrator) error) error {
	return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
		if rt.Migrator == nil {
			return ErrNoMigrations
		}
		return fn(ctx, rt.Migrator)
	})
}
