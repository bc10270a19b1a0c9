// Package container owns the lifecycle of the database container backing a run.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	bencherrors "dockbench/internal/errors"
	"dockbench/pkg/benchmark"
	"dockbench/pkg/runtime"
)

const (
	LabelManaged = "dockbench.managed"
	LabelImage   = "dockbench.image"
	LabelDBType  = "dockbench.db-type"

	nameSuffix = "_bench"
)

// Probe attempts a database connection against host:port and returns nil once
// the database accepts it.
type Probe func(ctx context.Context, host string, port int) error

// Options tunes readiness and teardown.
type Options struct {
	ReadinessTimeout time.Duration
	InitialInterval  time.Duration
	MaxInterval      time.Duration
	StopTimeout      time.Duration
}

// DefaultOptions returns the readiness and teardown defaults.
func DefaultOptions() Options {
	return Options{
		ReadinessTimeout: 60 * time.Second,
		InitialInterval:  250 * time.Millisecond,
		MaxInterval:      5 * time.Second,
		StopTimeout:      10 * time.Second,
	}
}

// Handle identifies the container a run is attached to.
type Handle struct {
	ContainerID string
	Name        string
	Image       string
	Host        string
	Port        int
	// Created is true when the container was provisioned by this run.
	Created bool
}

// Manager acquires and releases database containers.
type Manager struct {
	rt   runtime.ContainerRuntime
	opts Options
}

// NewManager creates a Manager. Zero option fields take their defaults.
func NewManager(rt runtime.ContainerRuntime, opts Options) *Manager {
	def := DefaultOptions()
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = def.ReadinessTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = def.MaxInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = def.StopTimeout
	}
	return &Manager{rt: rt, opts: opts}
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// ContainerName returns the deterministic container name for an image.
func ContainerName(image string) string {
	name := invalidNameChars.ReplaceAllString(image, "_")
	name = strings.Trim(name, "_.-")
	if name == "" {
		name = "db"
	}
	return name + nameSuffix
}

// Acquire provisions a new container or attaches to an existing one and waits
// until probe succeeds.
func (m *Manager) Acquire(ctx context.Context, cfg benchmark.ImageConfig, mode benchmark.ConnectionMode, probe Probe) (*Handle, error) {
	switch mode {
	case benchmark.ConnectExisting:
		return m.attach(ctx, cfg, probe)
	case benchmark.NewContainer, "":
		return m.provision(ctx, cfg, probe)
	default:
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Unknown connection mode %q", mode),
			"",
			"Use new_container or connect_existing",
			nil,
		)
	}
}

func (m *Manager) provision(ctx context.Context, cfg benchmark.ImageConfig, probe Probe) (*Handle, error) {
	name := ContainerName(cfg.Image)
	slog.Info("Provisioning database container", "image", cfg.Image, "name", name)

	if err := m.ensureImage(ctx, cfg.Image); err != nil {
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Failed to pull image %s", cfg.Image),
			err.Error(),
			"Check the image reference and registry access",
			err,
		)
	}

	if err := m.removeStale(ctx, name); err != nil {
		suggestion := "Remove the container manually with docker rm -f " + name
		if errors.Is(err, errNameInUse) {
			suggestion = "Wait for the run using " + name + " to finish, or attach to it with connect_existing"
		}
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Cannot reuse container name %s", name),
			err.Error(),
			suggestion,
			err,
		)
	}

	id, err := m.rt.CreateContainer(ctx, runtime.CreateOptions{
		Image:         cfg.Image,
		Name:          name,
		EnvVars:       cfg.Env,
		Labels:        labelsFor(cfg),
		ContainerPort: cfg.Port,
		HostPort:      cfg.Port,
	})
	if err != nil {
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Failed to create container %s", name),
			err.Error(),
			"Check that the port is free and the docker daemon is healthy",
			err,
		)
	}

	handle := &Handle{
		ContainerID: id,
		Name:        name,
		Image:       cfg.Image,
		Host:        m.rt.Host(),
		Port:        cfg.Port,
		Created:     true,
	}

	if err := m.rt.StartContainer(ctx, id); err != nil {
		m.discard(handle)
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Failed to start container %s", name),
			err.Error(),
			fmt.Sprintf("Check that port %d is not already allocated", cfg.Port),
			err,
		)
	}

	if err := m.waitReady(ctx, handle, probe); err != nil {
		m.discard(handle)
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Container %s did not become ready within %s", name, m.opts.ReadinessTimeout),
			err.Error(),
			"Check the container logs and the credentials in the image configuration",
			err,
		)
	}

	slog.Info("Database container ready", "name", name, "id", shortID(id), "host", handle.Host, "port", handle.Port)
	return handle, nil
}

func (m *Manager) attach(ctx context.Context, cfg benchmark.ImageConfig, probe Probe) (*Handle, error) {
	info, err := m.findExisting(ctx, cfg)
	if err != nil {
		return nil, err
	}

	handle := &Handle{
		ContainerID: info.ID,
		Name:        info.Name,
		Image:       cfg.Image,
		Host:        m.rt.Host(),
		Port:        cfg.Port,
	}
	slog.Info("Attaching to existing container", "name", info.Name, "id", shortID(info.ID))

	if err := m.waitReady(ctx, handle, probe); err != nil {
		return nil, bencherrors.NewProvisionError(
			fmt.Sprintf("Container %s is running but the database did not accept connections", info.Name),
			err.Error(),
			"Check the credentials and port in the image configuration",
			err,
		)
	}
	return handle, nil
}

// findExisting looks up the running container by deterministic name, then by
// image with a matching published port.
func (m *Manager) findExisting(ctx context.Context, cfg benchmark.ImageConfig) (runtime.ContainerInfo, error) {
	name := ContainerName(cfg.Image)

	byName, err := m.rt.FindContainers(ctx, runtime.Filter{Name: name, RunningOnly: true})
	if err != nil {
		return runtime.ContainerInfo{}, bencherrors.NewRuntimeError("Failed to list containers", err.Error(), "Check the docker host configuration", err)
	}
	if len(byName) > 0 {
		return byName[0], nil
	}

	byImage, err := m.rt.FindContainers(ctx, runtime.Filter{Image: cfg.Image, RunningOnly: true})
	if err != nil {
		return runtime.ContainerInfo{}, bencherrors.NewRuntimeError("Failed to list containers", err.Error(), "Check the docker host configuration", err)
	}
	for _, info := range byImage {
		if cfg.Port == 0 || publishes(info, cfg.Port) {
			return info, nil
		}
	}

	return runtime.ContainerInfo{}, bencherrors.NewNotFoundError(
		fmt.Sprintf("No running container found for image %s", cfg.Image),
		fmt.Sprintf("no container named %s and no %s container publishing port %d", name, cfg.Image, cfg.Port),
		"Start the database container or use the new_container connection mode",
		nil,
	)
}

func publishes(info runtime.ContainerInfo, port int) bool {
	for _, hostPort := range info.Ports {
		if hostPort == port {
			return true
		}
	}
	return false
}

func (m *Manager) ensureImage(ctx context.Context, image string) error {
	exists, err := m.rt.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		slog.Debug("Image present locally", "image", image)
		return nil
	}
	return m.rt.PullImage(ctx, image)
}

var errNameInUse = errors.New("container name in use")

// removeStale clears a leftover container with the run's name. Only stopped
// containers carrying the managed label are removed; a running one may belong
// to another run.
func (m *Manager) removeStale(ctx context.Context, name string) error {
	stale, err := m.rt.FindContainers(ctx, runtime.Filter{Name: name})
	if err != nil {
		return err
	}
	for _, info := range stale {
		if info.Running {
			return fmt.Errorf("%w: %s is running", errNameInUse, name)
		}
		if info.Labels[LabelManaged] != "true" {
			return fmt.Errorf("%w: %s was not created by dockbench", errNameInUse, name)
		}
		slog.Info("Removing stale container", "name", name, "id", shortID(info.ID), "state", info.State)
		if err := m.rt.RemoveContainer(ctx, info.ID, true); err != nil {
			return err
		}
	}
	return nil
}

var errContainerExited = errors.New("container exited")

// waitReady polls until the container runs and probe succeeds, backing off
// exponentially until the readiness deadline.
func (m *Manager) waitReady(ctx context.Context, h *Handle, probe Probe) error {
	readyCtx, cancel := context.WithTimeout(ctx, m.opts.ReadinessTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialInterval
	b.MaxInterval = m.opts.MaxInterval
	b.MaxElapsedTime = m.opts.ReadinessTimeout

	attempt := 0
	var lastErr error
	operation := func() error {
		attempt++
		info, err := m.rt.InspectContainer(readyCtx, h.ContainerID)
		if err != nil {
			if errors.Is(err, runtime.ErrContainerNotFound) {
				return backoff.Permanent(err)
			}
			lastErr = err
			return err
		}
		if !info.Running {
			if info.State == "exited" || info.State == "dead" {
				return backoff.Permanent(fmt.Errorf("%w: state %s", errContainerExited, info.State))
			}
			lastErr = fmt.Errorf("container state %s", info.State)
			return lastErr
		}
		if probe == nil {
			return nil
		}
		if err := probe(readyCtx, h.Host, h.Port); err != nil {
			slog.Debug("Database not ready yet", "name", h.Name, "attempt", attempt, "error", err)
			lastErr = err
			return err
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(b, readyCtx))
	if err == nil {
		return nil
	}
	if lastErr != nil && !errors.Is(err, errContainerExited) && !errors.Is(err, runtime.ErrContainerNotFound) {
		return fmt.Errorf("after %d attempts: %w", attempt, lastErr)
	}
	return err
}

// discard force-removes a container this run created but could not use.
func (m *Manager) discard(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StopTimeout+5*time.Second)
	defer cancel()
	if err := m.rt.RemoveContainer(ctx, h.ContainerID, true); err != nil {
		slog.Warn("Failed to remove unusable container", "name", h.Name, "error", err)
	}
}

// Release stops the container when stop is set and removes it when remove is
// also set. A failure is returned as a teardown warning.
func (m *Manager) Release(ctx context.Context, h *Handle, stop, remove bool) error {
	if h == nil || h.ContainerID == "" || !stop {
		return nil
	}

	slog.Info("Stopping container", "name", h.Name, "id", shortID(h.ContainerID))
	if err := m.rt.StopContainer(ctx, h.ContainerID, m.opts.StopTimeout); err != nil {
		return bencherrors.NewTeardownWarning(
			fmt.Sprintf("Failed to stop container %s", h.Name),
			err.Error(),
			"Stop the container manually with docker stop "+h.Name,
			err,
		)
	}

	if !remove {
		return nil
	}

	slog.Info("Removing container", "name", h.Name, "id", shortID(h.ContainerID))
	if err := m.rt.RemoveContainer(ctx, h.ContainerID, false); err != nil {
		return bencherrors.NewTeardownWarning(
			fmt.Sprintf("Failed to remove container %s", h.Name),
			err.Error(),
			"Remove the container manually with docker rm "+h.Name,
			err,
		)
	}
	return nil
}

func labelsFor(cfg benchmark.ImageConfig) map[string]string {
	return map[string]string{
		LabelManaged: "true",
		LabelImage:   cfg.Image,
		LabelDBType:  cfg.DBType,
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
