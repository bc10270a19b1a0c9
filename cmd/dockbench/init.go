package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dockbench/internal/scaffolder"
	"dockbench/internal/ui"
)

var (
	initEngine string
	initDryRun bool
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Create a starter benchmark workspace",
	Long: `Init writes dockbench.yaml, an image configuration for the chosen engine
under images/ and a basic scenario under scenarios/ into DIR (default: the
current directory).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dest := "."
		if len(args) == 1 {
			dest = args[0]
		}

		written, err := scaffolder.Scaffold(scaffolder.Options{
			Destination: dest,
			Engine:      initEngine,
			DryRun:      initDryRun,
			Force:       initForce,
			Out:         os.Stdout,
		})
		if err != nil {
			exitWithError(fmt.Errorf("failed to scaffold workspace: %w", err))
		}
		if initDryRun {
			return
		}

		console := ui.NewConsole()
		for _, path := range written {
			console.PrintInfo(fmt.Sprintf("created %s", path))
		}
		console.PrintSuccess(fmt.Sprintf("Workspace ready. Try: dockbench run -i %s -s %s",
			written[1], written[2]))
	},
}

func init() {
	initCmd.Flags().StringVarP(&initEngine, "engine", "e", "postgres", "Database engine ("+strings.Join(scaffolder.Engines(), ", ")+")")
	initCmd.Flags().BoolVar(&initDryRun, "dry-run", false, "Print the files that would be created without writing them")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
