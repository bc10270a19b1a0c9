// Located in pkg/runtime/runtime.go
package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrContainerNotFound is returned when a container lookup has no match.
var ErrContainerNotFound = errors.New("container not found")

// CreateOptions defines the parameters for creating a database container.
type CreateOptions struct {
	Image         string
	Name          string
	EnvVars       map[string]string
	Labels        map[string]string
	ContainerPort int
	HostPort      int
}

// ContainerInfo is the typed view of a container returned by the engine.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	State   string
	Running bool
	Ports   map[int]int // container port -> published host port
	Labels  map[string]string
}

// Filter narrows FindContainers results. Empty fields match everything.
type Filter struct {
	Name        string
	Image       string
	Label       map[string]string
	RunningOnly bool
}

// StatsSample is one resource accounting snapshot of a container.
type StatsSample struct {
	Read           time.Time
	CPUTotalUsage  uint64
	SystemCPUUsage uint64
	OnlineCPUs     uint32
	MemoryUsage    uint64
}

// ContainerRuntime defines the contract for container operations.
type ContainerRuntime interface {
	ImageExists(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, opts CreateOptions) (string, error)
	StartContainer(ctx context.Context, id string) error
	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)
	FindContainers(ctx context.Context, filter Filter) ([]ContainerInfo, error)
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	Stats(ctx context.Context, id string) (StatsSample, error)
	// Host is the address at which published ports are reachable.
	Host() string
}
