package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dockbench/internal/config"
	"dockbench/internal/driver"
	bencherrors "dockbench/internal/errors"
)

// version is set at build time via ldflags
var version = "dev"

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "dockbench",
	Short:   "dockbench - benchmark databases running in containers",
	Version: version,
	Long: `dockbench provisions (or attaches to) a database container, runs a scenario
of table creation, data population and query steps against it, and records
execution time, memory and CPU usage of every step.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			exitWithError(bencherrors.NewConfigError(
				"Failed to load dockbench configuration",
				err.Error(),
				"Fix dockbench.yaml or the DOCKBENCH_* environment variables",
				err,
			))
		}
		cfg = loaded
		setupLogging(cfg.LogLevel, verbose)
	},
}

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List supported database type and driver combinations",
	Run: func(cmd *cobra.Command, args []string) {
		for _, pair := range driver.DefaultRegistry().Supported() {
			fmt.Println(pair)
		}
	},
}

func setupLogging(level string, verbose bool) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// exitWithError reports err through the error handler and exits.
func exitWithError(err error) {
	bencherrors.HandleError(err)
	if handler, hErr := bencherrors.GetDefaultHandler(); hErr == nil {
		handler.Close()
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the dockbench configuration file (default ./dockbench.yaml or ~/.config/dockbench/dockbench.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(driversCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
