package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dockbench/internal/container"
	"dockbench/internal/driver"
	bencherrors "dockbench/internal/errors"
	"dockbench/internal/events"
	"dockbench/internal/metrics"
	"dockbench/internal/parser"
	"dockbench/internal/report"
	"dockbench/internal/runner"
	"dockbench/internal/runtime"
	"dockbench/internal/store"
	"dockbench/internal/ui"
	"dockbench/pkg/benchmark"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario against a database container",
	Long: `Run provisions a new container from the image configuration (or attaches to a
running one with --existing), executes every included scenario step and stores
one result per step in the result database.`,
	Run: func(cmd *cobra.Command, args []string) {
		imagePath, _ := cmd.Flags().GetString("image")
		scenarioPath, _ := cmd.Flags().GetString("scenario")
		existing, _ := cmd.Flags().GetBool("existing")
		stop, _ := cmd.Flags().GetBool("stop")
		remove, _ := cmd.Flags().GetBool("remove")
		summary, _ := cmd.Flags().GetBool("summary")

		imageCfg, err := parser.ParseImageConfig(imagePath)
		if err != nil {
			exitWithError(bencherrors.NewConfigError("Failed to load image configuration", err.Error(), "Check the file passed with --image", err))
		}
		scenario, err := parser.ParseScenario(scenarioPath)
		if err != nil {
			exitWithError(bencherrors.NewScenarioError("Failed to load scenario", err.Error(), "Check the file passed with --scenario", err))
		}

		mode := benchmark.RunMode{
			ConnectionMode:   benchmark.NewContainer,
			StopOnCompletion: stop,
			RemoveAfterStop:  remove,
		}
		if existing {
			mode.ConnectionMode = benchmark.ConnectExisting
		}
		if remove && !stop {
			slog.Warn("--remove has no effect without --stop")
		}

		run, err := runner.NewTestRun(*imageCfg, *scenario, mode, driver.DefaultRegistry())
		if err != nil {
			exitWithError(err)
		}

		opts := cfg.RunnerOptions()
		if summary {
			opts.SummaryRow = true
		}

		rep, err := executeRun(run, opts)
		if err != nil {
			exitWithError(err)
		}
		if rep.Err != nil {
			exitWithError(rep.Err)
		}
	},
}

// executeRun wires the runtime, result store and console and runs to
// completion. Interrupts cancel the run between steps.
func executeRun(run *runner.TestRun, opts runner.Options) (runner.Report, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// embedded engines run in process and need no docker daemon
	var (
		manager   *container.Manager
		collector *metrics.Collector
	)
	if !run.Embedded() {
		rt, err := runtime.NewDockerRuntime(ctx, cfg.HostConfig())
		if err != nil {
			return runner.Report{}, bencherrors.NewRuntimeError(
				"Docker is not reachable",
				err.Error(),
				"Start the docker daemon or set docker.host in dockbench.yaml",
				err,
			)
		}
		defer rt.Close()
		manager = container.NewManager(rt, cfg.ContainerOptions())
		collector = metrics.NewCollector(rt, cfg.Metrics.SampleInterval)
	}

	results, err := store.Open(cfg.Store.Path)
	if err != nil {
		return runner.Report{}, bencherrors.NewStoreError(
			"Failed to open result database "+cfg.Store.Path,
			err.Error(),
			"Check store.path in dockbench.yaml",
			err,
		)
	}
	defer results.Close()

	console := ui.NewConsole()
	bus := events.NewBus()
	done := make(chan struct{})
	go printProgress(console, bus.Subscribe(), done)

	r := runner.New(manager, collector, results, bus, opts)

	console.PrintInfo(fmt.Sprintf("Running scenario %q against %s (run %s)", run.Scenario.Name, run.Image.Image, run.ID))
	rep := r.Run(ctx, run)
	bus.Close()
	<-done

	for _, w := range rep.Warnings {
		bencherrors.WarnError(w)
	}
	if rep.Err != nil {
		return rep, nil
	}

	fmt.Println()
	report.RenderResults(os.Stdout, rep.Results)
	fmt.Println()
	report.RenderSummary(os.Stdout, rep.Results)

	switch {
	case rep.Cancelled:
		console.PrintWarning(fmt.Sprintf("Run cancelled after %d of %d steps", len(rep.Results), run.Scenario.IncludedSteps()))
	case rep.FailedSteps() > 0:
		console.PrintWarning(fmt.Sprintf("Run completed with %d failed step(s)", rep.FailedSteps()))
	default:
		console.PrintSuccess(fmt.Sprintf("Run completed: %d step(s) recorded", len(rep.Results)))
	}
	return rep, nil
}

func printProgress(console *ui.Console, ch <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	for e := range ch {
		switch e.Type {
		case events.EventStepStarted:
			console.PrintStepStarted(e.Data.Step, e.Data.StepCount, e.Data.Description)
		case events.EventStepFinished:
			res := e.Data.Result
			if res == nil {
				continue
			}
			failure := ""
			if res.Failed() {
				failure = res.TestInfo
			}
			console.PrintStepFinished(e.Data.Step, e.Data.StepCount, res.NumRecords, res.ExecTime, res.Memory, res.CPUPercent, failure)
		case events.EventStateChanged:
			slog.Debug("Run state changed", "from", e.Data.From, "to", e.Data.To)
		}
	}
}

func init() {
	runCmd.Flags().StringP("image", "i", "", "Path to the image configuration file (required)")
	runCmd.Flags().StringP("scenario", "s", "", "Path to the scenario file (required)")
	runCmd.Flags().Bool("existing", false, "Attach to a running container instead of provisioning a new one")
	runCmd.Flags().Bool("stop", false, "Stop the container when the run completes")
	runCmd.Flags().Bool("remove", false, "Remove the container after stopping it (requires --stop)")
	runCmd.Flags().Bool("summary", false, "Record a run_summary result after the last step")
	for _, name := range []string{"image", "scenario"} {
		if err := runCmd.MarkFlagRequired(name); err != nil {
			slog.Error("Failed to mark flag as required for run command", "flag", name, "error", err)
		}
	}
	rootCmd.AddCommand(runCmd)
}
