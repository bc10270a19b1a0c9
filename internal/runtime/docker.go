package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"dockbench/pkg/runtime"
)

// HostConfig describes how to reach the docker daemon. A zero value uses the
// environment (DOCKER_HOST, DOCKER_CERT_PATH, ...).
type HostConfig struct {
	Host       string
	APIVersion string
	Timeout    time.Duration
	CACert     string
	ClientCert string
	ClientKey  string
}

// DockerRuntime implements the ContainerRuntime interface using Docker client.
type DockerRuntime struct {
	client *client.Client
	host   string
}

// NewDockerRuntime creates a new DockerRuntime and checks that the daemon answers.
func NewDockerRuntime(ctx context.Context, cfg HostConfig) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.CACert != "" && cfg.ClientCert != "" && cfg.ClientKey != "" {
		opts = append(opts, client.WithTLSClientConfig(cfg.CACert, cfg.ClientCert, cfg.ClientKey))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Check if Docker daemon is accessible
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return &DockerRuntime{
		client: dockerClient,
		host:   hostFromDaemon(dockerClient.DaemonHost()),
	}, nil
}

// hostFromDaemon maps the daemon address to the host where published ports
// are reachable: the TCP host for remote daemons, localhost otherwise.
func hostFromDaemon(daemonHost string) string {
	u, err := url.Parse(daemonHost)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	switch u.Scheme {
	case "tcp", "http", "https":
		return u.Hostname()
	default:
		return "localhost"
	}
}

// Host returns the address used to reach published container ports.
func (d *DockerRuntime) Host() string {
	return d.host
}

// Close releases the underlying client.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// ImageExists reports whether the image reference is present locally.
func (d *DockerRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	images, err := d.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list images: %w", err)
	}
	return len(images) > 0, nil
}

// PullImage pulls a Docker image.
func (d *DockerRuntime) PullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Stream the pull output (but don't print it to avoid clutter)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	slog.Info("Successfully pulled Docker image", "image", imageName)
	return nil
}

// CreateContainer creates (but does not start) a database container.
func (d *DockerRuntime) CreateContainer(ctx context.Context, opts runtime.CreateOptions) (string, error) {
	var envVars []string
	for key, value := range opts.EnvVars {
		envVars = append(envVars, fmt.Sprintf("%s=%s", key, value))
	}

	containerConfig := &container.Config{
		Image:  opts.Image,
		Env:    envVars,
		Labels: opts.Labels,
	}
	hostConfig := &container.HostConfig{}

	if opts.ContainerPort > 0 {
		port, err := nat.NewPort("tcp", strconv.Itoa(opts.ContainerPort))
		if err != nil {
			return "", fmt.Errorf("invalid container port %d: %w", opts.ContainerPort, err)
		}
		hostPort := opts.HostPort
		if hostPort == 0 {
			hostPort = opts.ContainerPort
		}
		containerConfig.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostConfig.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}},
		}
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("Docker create warning", "container", opts.Name, "warning", w)
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (d *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// InspectContainer returns the current state of a container.
func (d *DockerRuntime) InspectContainer(ctx context.Context, id string) (runtime.ContainerInfo, error) {
	resp, err := d.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return runtime.ContainerInfo{}, fmt.Errorf("%s: %w", id, runtime.ErrContainerNotFound)
		}
		return runtime.ContainerInfo{}, fmt.Errorf("failed to inspect container: %w", err)
	}

	info := runtime.ContainerInfo{
		ID:    resp.ID,
		Name:  strings.TrimPrefix(resp.Name, "/"),
		Ports: map[int]int{},
	}
	if resp.State != nil {
		info.State = resp.State.Status
		info.Running = resp.State.Running
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if resp.NetworkSettings != nil {
		for port, bindings := range resp.NetworkSettings.Ports {
			for _, b := range bindings {
				if hp, err := strconv.Atoi(b.HostPort); err == nil {
					info.Ports[port.Int()] = hp
					break
				}
			}
		}
	}
	return info, nil
}

// FindContainers lists containers matching the filter.
func (d *DockerRuntime) FindContainers(ctx context.Context, filter runtime.Filter) ([]runtime.ContainerInfo, error) {
	args := filters.NewArgs()
	if filter.Name != "" {
		args.Add("name", "^/"+filter.Name+"$")
	}
	if filter.Image != "" {
		args.Add("ancestor", filter.Image)
	}
	for k, v := range filter.Label {
		args.Add("label", k+"="+v)
	}

	list, err := d.client.ContainerList(ctx, container.ListOptions{All: !filter.RunningOnly, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]runtime.ContainerInfo, 0, len(list))
	for _, c := range list {
		info := runtime.ContainerInfo{
			ID:      c.ID,
			Image:   c.Image,
			State:   c.State,
			Running: c.State == "running",
			Labels:  c.Labels,
			Ports:   map[int]int{},
		}
		if len(c.Names) > 0 {
			info.Name = strings.TrimPrefix(c.Names[0], "/")
		}
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				info.Ports[int(p.PrivatePort)] = int(p.PublicPort)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// StopContainer stops a running container, waiting up to timeout before killing it.
func (d *DockerRuntime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := d.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// Stats takes a single resource accounting snapshot.
func (d *DockerRuntime) Stats(ctx context.Context, id string) (runtime.StatsSample, error) {
	resp, err := d.client.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return runtime.StatsSample{}, fmt.Errorf("failed to read container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return runtime.StatsSample{}, fmt.Errorf("failed to decode container stats: %w", err)
	}
	return sampleFromStats(stats), nil
}

// sampleFromStats maps the engine payload into a StatsSample. Memory excludes
// the inactive page cache, as `docker stats` does.
func sampleFromStats(stats container.StatsResponse) runtime.StatsSample {
	mem := stats.MemoryStats.Usage
	cache := stats.MemoryStats.Stats["inactive_file"]
	if cache == 0 {
		cache = stats.MemoryStats.Stats["total_inactive_file"]
	}
	if cache < mem {
		mem -= cache
	}

	online := stats.CPUStats.OnlineCPUs
	if online == 0 {
		online = uint32(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}

	return runtime.StatsSample{
		Read:           stats.Read,
		CPUTotalUsage:  stats.CPUStats.CPUUsage.TotalUsage,
		SystemCPUUsage: stats.CPUStats.SystemUsage,
		OnlineCPUs:     online,
		MemoryUsage:    mem,
	}
}
