package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dockbench/internal/driver"
	bencherrors "dockbench/internal/errors"
	"dockbench/internal/parser"
	"dockbench/pkg/benchmark"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Validate and convert scenario files",
}

var scenarioValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a scenario file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := parser.ParseScenario(args[0])
		if err != nil {
			exitWithError(bencherrors.NewScenarioError("Scenario is invalid", err.Error(), "Fix the reported steps and validate again", err))
		}

		fmt.Printf("Scenario %q is valid: %d step(s), %d included\n", s.Name, len(s.Steps), s.IncludedSteps())
		for i, step := range s.Steps {
			marker := " "
			if step.Included {
				marker = "x"
			}
			fmt.Printf("  [%s] %d. %s %s\n", marker, i+1, step.Operation, step.Describe())
		}
	},
}

var scenarioConvertCmd = &cobra.Command{
	Use:   "convert SOURCE TARGET",
	Short: "Convert a scenario between JSON and YAML",
	Long: `Convert reads SOURCE and writes it to TARGET. The format of each file follows
its extension: .json for JSON, anything else for YAML.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := parser.ParseScenario(args[0])
		if err != nil {
			exitWithError(bencherrors.NewScenarioError("Scenario is invalid", err.Error(), "Fix the reported steps and convert again", err))
		}

		data, err := benchmark.MarshalScenario(*s, benchmark.FormatFromPath(args[1]))
		if err != nil {
			exitWithError(fmt.Errorf("failed to encode scenario: %w", err))
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			exitWithError(fmt.Errorf("failed to write %s: %w", args[1], err))
		}
		fmt.Printf("Wrote %s\n", args[1])
	},
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Inspect image configuration files",
}

var imageValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate an image configuration and its driver",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		imageCfg, err := parser.ParseImageConfig(args[0])
		if err != nil {
			exitWithError(bencherrors.NewConfigError("Image configuration is invalid", err.Error(), "Fix the reported fields and validate again", err))
		}
		adapter, err := driver.DefaultRegistry().Lookup(imageCfg.DBType, imageCfg.Driver)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Image configuration for %s is valid (adapter %s, port %d)\n", imageCfg.Image, adapter.Name(), imageCfg.Port)
	},
}

func init() {
	scenarioCmd.AddCommand(scenarioValidateCmd, scenarioConvertCmd)
	imageCmd.AddCommand(imageValidateCmd)
	rootCmd.AddCommand(scenarioCmd, imageCmd)
}
