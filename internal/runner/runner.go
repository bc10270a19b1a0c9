package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dockbench/internal/container"
	"dockbench/internal/driver"
	bencherrors "dockbench/internal/errors"
	"dockbench/internal/events"
	"dockbench/internal/metrics"
	"dockbench/internal/store"
	"dockbench/pkg/benchmark"
)

const (
	// DefaultStepTimeout bounds a single step.
	DefaultStepTimeout = 5 * time.Minute

	releaseTimeout = 30 * time.Second
)

// Options tunes step execution.
type Options struct {
	StepTimeout time.Duration
	// SummaryRow appends a run_summary result after the last step.
	SummaryRow bool
}

// Report is the outcome of one run. Results hold every recorded step in
// scenario order, including those that could not be persisted.
type Report struct {
	RunID     string
	State     State
	Results   []benchmark.TestResult
	Warnings  []error
	Cancelled bool
	// Err is set when the run failed before executing any step.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// FailedSteps counts results with an error status.
func (r Report) FailedSteps() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// ErrRunStarted is returned in the report of a run that was already started.
var ErrRunStarted = errors.New("test run already started")

// Runner drives test runs. One Runner may execute several runs concurrently;
// every run owns its container handle and connection.
//
// Progress goes to the bus. Step-finished and warning events wait for room in
// every subscriber's buffer; state and step-started events are dropped for a
// subscriber that has fallen behind.
type Runner struct {
	manager   *container.Manager
	collector *metrics.Collector
	store     store.ResultStore
	bus       *events.Bus
	opts      Options
}

// New creates a Runner. store and bus may be nil.
func New(manager *container.Manager, collector *metrics.Collector, resultStore store.ResultStore, bus *events.Bus, opts Options) *Runner {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	return &Runner{
		manager:   manager,
		collector: collector,
		store:     resultStore,
		bus:       bus,
		opts:      opts,
	}
}

// Run executes run to completion. Step failures are recorded as results and
// never abort the run; only acquisition and the initial connection are fatal.
func (r *Runner) Run(ctx context.Context, run *TestRun) Report {
	report := Report{RunID: run.ID, StartedAt: time.Now()}
	logger := slog.With("runId", run.ID, "image", run.Image.Image, "scenario", run.Scenario.Name)

	// idle -> provisioning is only legal once, so a second Run is refused here.
	if err := r.setState(run, StateProvisioning); err != nil {
		logger.Error("Refusing to run", "state", run.State())
		report.State = StateFailed
		report.Err = fmt.Errorf("run %s is %s: %w", run.ID, run.State(), ErrRunStarted)
		report.FinishedAt = time.Now()
		return report
	}
	logger.Info("Starting test run", "steps", run.Scenario.IncludedSteps(), "mode", run.Mode.ConnectionMode)

	handle, err := r.acquire(ctx, run)
	if err != nil {
		return r.fail(run, report, err)
	}
	r.setState(run, StateReady)

	conn, err := run.adapter.Connect(ctx, driver.EndpointFor(run.Image, handle.Host, handle.Port))
	if err == nil {
		err = conn.Ping(ctx)
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		r.release(ctx, run, handle, &report)
		return r.fail(run, report, bencherrors.NewProvisionError(
			fmt.Sprintf("Failed to connect to %s with %s", run.Image.Image, run.adapter.Name()),
			err.Error(),
			"Check the credentials and database name in the image configuration",
			err,
		))
	}

	r.executeSteps(ctx, run, handle, conn, &report)

	if err := conn.Close(); err != nil {
		logger.Warn("Failed to close database connection", "error", err)
	}

	if r.opts.SummaryRow && len(report.Results) > 0 {
		summary := summarize(run, report.Results)
		r.record(ctx, run, &report, summary)
	}

	r.release(ctx, run, handle, &report)

	r.setState(run, StateCompleted)
	report.State = run.State()
	report.FinishedAt = time.Now()
	logger.Info("Test run completed",
		"results", len(report.Results),
		"failedSteps", report.FailedSteps(),
		"warnings", len(report.Warnings),
		"cancelled", report.Cancelled,
	)
	return report
}

// acquire returns the container handle of the run. Embedded engines get a
// handle without a container, which disables sampling and release.
func (r *Runner) acquire(ctx context.Context, run *TestRun) (*container.Handle, error) {
	if run.Embedded() {
		slog.Info("Engine runs in process, no container to acquire", "runId", run.ID, "driver", run.adapter.Name())
		return &container.Handle{Image: run.Image.Image}, nil
	}
	return r.manager.Acquire(ctx, run.Image, run.Mode.ConnectionMode, r.probe(run))
}

// probe checks readiness by opening and pinging a short-lived connection.
func (r *Runner) probe(run *TestRun) container.Probe {
	return func(ctx context.Context, host string, port int) error {
		conn, err := run.adapter.Connect(ctx, driver.EndpointFor(run.Image, host, port))
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Ping(ctx)
	}
}

func (r *Runner) executeSteps(ctx context.Context, run *TestRun, handle *container.Handle, conn driver.Conn, report *Report) {
	total := run.Scenario.IncludedSteps()
	n := 0
	for i, step := range run.Scenario.Steps {
		if !step.Included {
			continue
		}
		if ctx.Err() != nil {
			slog.Info("Test run cancelled", "runId", run.ID, "executed", n, "remaining", total-n)
			report.Cancelled = true
			return
		}
		n++

		r.setState(run, StateExecuting)
		desc := step.Describe()
		r.bus.Publish(events.NewStepStartedEvent(run.ID, n, total, desc))
		slog.Info("Executing step", "runId", run.ID, "step", n, "of", total, "operation", step.Operation)

		result := r.executeStep(ctx, run, handle, conn, i, step)

		r.setState(run, StateCollecting)
		r.record(ctx, run, report, result)
		r.bus.Publish(events.NewStepFinishedEvent(run.ID, n, total, result))
	}
}

func (r *Runner) executeStep(ctx context.Context, run *TestRun, handle *container.Handle, conn driver.Conn, index int, step benchmark.Step) benchmark.TestResult {
	stepCtx, cancel := context.WithTimeout(ctx, r.opts.StepTimeout)
	defer cancel()

	var outcome driver.Outcome
	m, err := r.collector.Measure(stepCtx, handle.ContainerID, func(ctx context.Context) error {
		var execErr error
		outcome, execErr = conn.Execute(ctx, step)
		return execErr
	})

	result := benchmark.TestResult{
		RunID:      run.ID,
		StepIndex:  index,
		Timestamp:  time.Now().UTC(),
		DBImage:    run.Image.Image,
		Operation:  step.Operation,
		NumRecords: outcome.RecordsAffected,
		TestInfo:   outcome.Info,
		Status:     benchmark.StatusOK,
		ExecTime:   m.ExecTime,
		Memory:     m.MemoryBytes,
		CPUPercent: m.CPUPercent,
	}
	if result.TestInfo == "" {
		result.TestInfo = step.Describe()
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("step exceeded %s: %w", r.opts.StepTimeout, err)
		}
		stepErr := bencherrors.NewStepError(
			fmt.Sprintf("Step %d (%s) failed", index+1, step.Operation),
			err.Error(),
			"",
			err,
		)
		slog.Warn("Step failed", "runId", run.ID, "step", index+1, "operation", step.Operation,
			"records", outcome.RecordsAffected, "error", err)
		result.Status = benchmark.StatusError
		result.TestInfo = fmt.Sprintf("%s; error: %s", result.TestInfo, stepErr.Error())
	}
	return result
}

// record appends a result to the report and persists it. A store failure
// becomes a warning; the result stays in the report.
func (r *Runner) record(ctx context.Context, run *TestRun, report *Report, result benchmark.TestResult) {
	if r.store != nil {
		storeCtx := context.WithoutCancel(ctx)
		if err := r.store.Append(storeCtx, &result); err != nil {
			r.warn(run, report, bencherrors.NewStoreError(
				fmt.Sprintf("Failed to save result of step %d", result.StepIndex+1),
				err.Error(),
				"Check that the result database is writable",
				err,
			))
		}
	}
	report.Results = append(report.Results, result)
}

// release tears down per the run mode with a context that survives
// cancellation of the run.
func (r *Runner) release(ctx context.Context, run *TestRun, handle *container.Handle, report *Report) {
	if handle.ContainerID == "" {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := r.manager.Release(releaseCtx, handle, run.Mode.StopOnCompletion, run.Mode.ShouldRemove()); err != nil {
		r.warn(run, report, err)
	}
}

func (r *Runner) warn(run *TestRun, report *Report, err error) {
	slog.Warn("Test run warning", "runId", run.ID, "error", err)
	report.Warnings = append(report.Warnings, err)
	r.bus.Publish(events.NewWarningEvent(run.ID, err))
}

func (r *Runner) fail(run *TestRun, report Report, err error) Report {
	slog.Error("Test run failed", "runId", run.ID, "error", err)
	r.setState(run, StateFailed)
	report.State = run.State()
	report.Err = err
	report.FinishedAt = time.Now()
	return report
}

func (r *Runner) setState(run *TestRun, next State) error {
	prev, err := run.transition(next)
	if err != nil {
		slog.Error("Ignoring state change", "runId", run.ID, "error", err)
		return err
	}
	slog.Debug("Run state changed", "runId", run.ID, "from", prev, "to", next)
	r.bus.Publish(events.NewStateChangedEvent(run.ID, prev.String(), next.String()))
	return nil
}

// summarize builds the run-level result: total records and time, peak
// resource usage across steps.
func summarize(run *TestRun, results []benchmark.TestResult) benchmark.TestResult {
	sum := benchmark.TestResult{
		RunID:     run.ID,
		StepIndex: len(run.Scenario.Steps),
		Timestamp: time.Now().UTC(),
		DBImage:   run.Image.Image,
		Operation: benchmark.OpRunSummary,
		Status:    benchmark.StatusOK,
	}
	failed := 0
	for _, res := range results {
		sum.NumRecords += res.NumRecords
		sum.ExecTime += res.ExecTime
		sum.Memory = max(sum.Memory, res.Memory)
		sum.CPUPercent = max(sum.CPUPercent, res.CPUPercent)
		if res.Failed() {
			failed++
		}
	}
	if failed > 0 {
		sum.Status = benchmark.StatusError
	}
	sum.TestInfo = fmt.Sprintf("scenario=%s steps=%d failed=%d", run.Scenario.Name, len(results), failed)
	return sum
}
