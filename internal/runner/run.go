// Package runner executes a scenario against a database container and
// records one result per included step.
package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dockbench/internal/driver"
	bencherrors "dockbench/internal/errors"
	"dockbench/internal/parser"
	"dockbench/pkg/benchmark"
)

// TestRun is one execution of a scenario against one image configuration.
// The configuration and scenario are copied on creation and never change.
type TestRun struct {
	ID        string
	Image     benchmark.ImageConfig
	Scenario  benchmark.Scenario
	Mode      benchmark.RunMode
	CreatedAt time.Time

	adapter driver.Adapter

	mu    sync.Mutex
	state State
}

// NewTestRun validates its inputs and resolves the driver adapter. An unknown
// (dbType, driver) pair fails here, before any container is touched.
func NewTestRun(cfg benchmark.ImageConfig, scenario benchmark.Scenario, mode benchmark.RunMode, registry *driver.Registry) (*TestRun, error) {
	if err := parser.ValidateImageConfig(cfg); err != nil {
		return nil, bencherrors.NewConfigError("Invalid image configuration", err.Error(), "Fix the image configuration file", err)
	}
	if err := parser.ValidateScenario(scenario); err != nil {
		return nil, bencherrors.NewScenarioError(
			"Invalid scenario "+scenario.Name,
			err.Error(),
			"Run 'dockbench scenario validate' for details",
			err,
		)
	}
	if err := parser.ValidateRunMode(mode); err != nil {
		return nil, bencherrors.NewConfigError("Invalid run mode", err.Error(), "Use new_container or connect_existing", err)
	}
	if registry == nil {
		registry = driver.DefaultRegistry()
	}

	adapter, err := registry.Lookup(cfg.DBType, cfg.Driver)
	if err != nil {
		return nil, err
	}

	steps := make([]benchmark.Step, len(scenario.Steps))
	copy(steps, scenario.Steps)
	scenario.Steps = steps

	return &TestRun{
		ID:        uuid.NewString(),
		Image:     cfg.Clone(),
		Scenario:  scenario,
		Mode:      mode,
		CreatedAt: time.Now(),
		adapter:   adapter,
		state:     StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (r *TestRun) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Adapter returns the resolved driver adapter.
func (r *TestRun) Adapter() driver.Adapter {
	return r.adapter
}

// Embedded reports whether the engine runs in process, without a container.
func (r *TestRun) Embedded() bool {
	return driver.Embedded(r.adapter)
}

func (r *TestRun) transition(next State) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.state
	if !prev.canTransition(next) {
		return prev, transitionError{from: prev, to: next}
	}
	r.state = next
	return prev, nil
}
