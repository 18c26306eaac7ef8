package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiovault/cache"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check the Redis record cache",
	Long:  `Connect to Redis with the configured settings and run a set/get/delete round trip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RedisEnabled() {
			return fmt.Errorf("REDIS_HOST is not set")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := cache.Connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintln(out, "connected")

		if err := cache.CheckReadWrite(cmd.Context(), client); err != nil {
			return err
		}
		fmt.Fprintln(out, "read/write check passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
