package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	bencherrors "dockbench/internal/errors"
	"dockbench/internal/export"
	"dockbench/internal/report"
	"dockbench/internal/store"
	"dockbench/pkg/benchmark"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse, delete and export recorded results",
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded results",
	Run: func(cmd *cobra.Command, args []string) {
		filter := filterFromFlags(cmd)
		withSummary, _ := cmd.Flags().GetBool("summary")

		s := openStore()
		defer s.Close()

		results, err := s.List(context.Background(), filter)
		if err != nil {
			exitWithError(storeError("Failed to list results", err))
		}
		report.RenderResults(os.Stdout, results)
		if withSummary {
			fmt.Println()
			report.RenderSummary(os.Stdout, results)
		}
	},
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete results by id",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				exitWithError(fmt.Errorf("invalid result id %q", arg))
			}
			if err := s.Delete(context.Background(), id); err != nil {
				exitWithError(storeError(fmt.Sprintf("Failed to delete result %d", id), err))
			}
			fmt.Printf("Deleted result %d\n", id)
		}
	},
}

var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export results as CSV or JSON to a file, stdout or object storage",
	Run: func(cmd *cobra.Command, args []string) {
		filter := filterFromFlags(cmd)
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		upload, _ := cmd.Flags().GetBool("upload")
		prefix, _ := cmd.Flags().GetString("prefix")

		format, err := export.ParseFormat(formatName)
		if err != nil {
			exitWithError(err)
		}

		s := openStore()
		defer s.Close()

		ctx := context.Background()
		results, err := s.List(ctx, filter)
		if err != nil {
			exitWithError(storeError("Failed to read results", err))
		}

		if upload {
			uploadResults(ctx, prefix, format, results)
			return
		}

		if output == "" || output == "-" {
			if err := export.Write(os.Stdout, format, results); err != nil {
				exitWithError(err)
			}
			return
		}
		f, err := os.Create(output)
		if err != nil {
			exitWithError(fmt.Errorf("failed to create %s: %w", output, err))
		}
		if err := export.Write(f, format, results); err != nil {
			f.Close()
			exitWithError(err)
		}
		if err := f.Close(); err != nil {
			exitWithError(err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d result(s) to %s\n", len(results), output)
	},
}

var resultsImagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List images that have results",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()
		images, err := s.DistinctImages(context.Background())
		if err != nil {
			exitWithError(storeError("Failed to list images", err))
		}
		for _, img := range images {
			fmt.Println(img)
		}
	},
}

var resultsOperationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List operations that have results",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()
		ops, err := s.DistinctOperations(context.Background())
		if err != nil {
			exitWithError(storeError("Failed to list operations", err))
		}
		for _, op := range ops {
			fmt.Println(op)
		}
	},
}

func uploadResults(ctx context.Context, prefix string, format export.Format, results []benchmark.TestResult) {
	if !cfg.ExportEnabled() {
		exitWithError(bencherrors.NewConfigError(
			"Object storage export is not configured",
			"export.endpoint is empty",
			"Set export.endpoint and export.bucket in dockbench.yaml",
			nil,
		))
	}
	up, err := export.NewS3Uploader(export.S3Config{
		Endpoint:  cfg.Export.Endpoint,
		AccessKey: cfg.Export.AccessKey,
		SecretKey: cfg.Export.SecretKey,
		Region:    cfg.Export.Region,
		UseSSL:    cfg.Export.UseSSL,
		Bucket:    cfg.Export.Bucket,
	})
	if err != nil {
		exitWithError(err)
	}
	if err := up.EnsureBucket(ctx); err != nil {
		exitWithError(err)
	}
	key, err := export.Publish(ctx, up, prefix, format, results)
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("Uploaded %d result(s) to %s\n", len(results), up.Location(key))
}

func filterFromFlags(cmd *cobra.Command) store.Filter {
	var f store.Filter
	f.DBImage, _ = cmd.Flags().GetString("image")
	f.Operation, _ = cmd.Flags().GetString("operation")
	f.RunID, _ = cmd.Flags().GetString("run")
	f.SortBy, _ = cmd.Flags().GetString("sort")
	f.Order, _ = cmd.Flags().GetString("order")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f
}

func openStore() *store.SQLiteStore {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		exitWithError(storeError("Failed to open result database "+cfg.Store.Path, err))
	}
	return s
}

func storeError(msg string, err error) error {
	return bencherrors.NewStoreError(msg, err.Error(), "Check store.path in dockbench.yaml", err)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", "", "Only results for this image")
	cmd.Flags().String("operation", "", "Only results for this operation")
	cmd.Flags().String("run", "", "Only results of this run id")
	cmd.Flags().String("sort", "timestamp", "Sort column (timestamp, id, dbImage, operation, numRecords, execTime, memory, cpuPercent)")
	cmd.Flags().String("order", "desc", "Sort order (asc or desc)")
	cmd.Flags().Int("limit", 0, "Maximum number of results (0 for all)")
}

func init() {
	addFilterFlags(resultsListCmd)
	resultsListCmd.Flags().Bool("summary", false, "Print per-operation totals below the list")

	addFilterFlags(resultsExportCmd)
	resultsExportCmd.Flags().StringP("format", "f", "csv", "Export format (csv or json)")
	resultsExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	resultsExportCmd.Flags().Bool("upload", false, "Upload to the configured object storage bucket")
	resultsExportCmd.Flags().String("prefix", "dockbench", "Object key prefix for uploads")

	resultsCmd.AddCommand(resultsListCmd, resultsDeleteCmd, resultsExportCmd, resultsImagesCmd, resultsOperationsCmd)
	rootCmd.AddCommand(resultsCmd)
}
