package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiovault/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(database); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", database.Dialect)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
