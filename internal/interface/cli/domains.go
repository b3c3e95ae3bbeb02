package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/academic-erp/erp-backend/internal/domain/student"
)

func domainsCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Manage academic programs (domains)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert the default programs that are not present yet",
		Long: `seed inserts B.Tech CSE, B.Tech ECE, M.Tech CSE, IM.Tech AIDS and
MS by Research CSE. Programs that already exist by name are left alone, so the
command can be run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				out := cmd.OutOrStdout()

				added, err := rt.Seeder.Seed(ctx, student.DefaultPrograms())
				if err != nil {
					return err
				}
				printf(out, "%s seeded %d program(s), %d already present\n",
					okMark(), added, len(student.DefaultPrograms())-added)

				if added > 0 && rt.DomainCache != nil {
					if err := rt.DomainCache.InvalidateDomains(ctx); err != nil {
						printf(out, "%s could not invalidate cached programs: %v\n", warnMark(), err)
					}
				}
				return nil
			})
		},
	})

	return cmd
}
