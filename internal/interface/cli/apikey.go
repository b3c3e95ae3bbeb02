package cli

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"github.com/academic-erp/erp-backend/internal/interface/http/handlers"
)

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage admission API keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "hash [key]",
		Short: "Print the bcrypt hash of a key for API_KEY_HASHES",
		Long: `hash prints the bcrypt hash to put in API_KEY_HASHES. The key is read from
the first argument, or from the first line of stdin when no argument is given.
Quote the hash with single quotes in .env files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return err
				}
				key = strings.TrimRight(line, "\r\n")
			}

			hash, err := handlers.HashAPIKey(key)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", hash)
			return nil
		},
	})

	return cmd
}
