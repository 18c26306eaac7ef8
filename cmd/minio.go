package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"audiovault/storage"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `List, summarise or delete objects in the configured MinIO bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		store, err := storage.NewMinioStore(cmd.Context(), storage.MinioConfigFrom(cfg))
		if err != nil {
			return err
		}

		switch {
		case minioDelete:
			n, err := store.DeletePrefix(cmd.Context(), minioPrefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %d objects under %q\n", n, minioPrefix)
		case minioStats:
			stats, err := store.Stats(cmd.Context(), minioPrefix)
			if err != nil {
				return err
			}
			printStats(out, store.Bucket(), minioPrefix, stats)
		default:
			objects, err := store.List(cmd.Context(), minioPrefix)
			if err != nil {
				return err
			}
			for _, obj := range objects {
				fmt.Fprintf(out, "%s\t%s\t%s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "%d objects\n", len(objects))
		}
		return nil
	},
}

func printStats(out io.Writer, bucket, prefix string, stats *storage.BucketStats) {
	fmt.Fprintf(out, "bucket:        %s\n", bucket)
	fmt.Fprintf(out, "prefix:        %q\n", prefix)
	fmt.Fprintf(out, "objects:       %d\n", stats.TotalObjects)
	fmt.Fprintf(out, "total size:    %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(out, "last modified: %s\n", stats.LastModified.Format(time.RFC3339))
	}

	exts := make([]string, 0, len(stats.ByExtension))
	for ext := range stats.ByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		fmt.Fprintf(out, "  %-8s %d\n", ext, stats.ByExtension[ext])
	}
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "audio/", "only objects under this prefix")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "print bucket statistics")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "delete every object under --prefix")

	minioCmd.Example = `  # list stored recordings
  audiovault minio

  # statistics for the whole bucket
  audiovault minio -s -p ""

  # delete everything under a prefix
  audiovault minio -d -p "audio/old/"`
}
