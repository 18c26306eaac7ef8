package cmd

import (
	"github.com/spf13/cobra"

	"audiovault/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Long:  `Apply pending migrations, then serve the upload and retrieval API until SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
