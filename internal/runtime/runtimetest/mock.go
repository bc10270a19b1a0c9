// Package runtimetest provides a testify mock of runtime.ContainerRuntime.
package runtimetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"dockbench/pkg/runtime"
)

// MockContainerRuntime is a mock implementation of the ContainerRuntime interface
type MockContainerRuntime struct {
	*mock.Mock
	HostName string
}

func NewMockContainerRuntime() *MockContainerRuntime {
	return &MockContainerRuntime{Mock: &mock.Mock{}, HostName: "localhost"}
}

func (m *MockContainerRuntime) ImageExists(ctx context.Context, image string) (bool, error) {
	args := m.Called(ctx, image)
	return args.Bool(0), args.Error(1)
}

func (m *MockContainerRuntime) PullImage(ctx context.Context, image string) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockContainerRuntime) CreateContainer(ctx context.Context, opts runtime.CreateOptions) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) StartContainer(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContainerRuntime) InspectContainer(ctx context.Context, id string) (runtime.ContainerInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(runtime.ContainerInfo), args.Error(1)
}

func (m *MockContainerRuntime) FindContainers(ctx context.Context, filter runtime.Filter) ([]runtime.ContainerInfo, error) {
	args := m.Called(ctx, filter)
	infos, _ := args.Get(0).([]runtime.ContainerInfo)
	return infos, args.Error(1)
}

func (m *MockContainerRuntime) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	args := m.Called(ctx, id, timeout)
	return args.Error(0)
}

func (m *MockContainerRuntime) RemoveContainer(ctx context.Context, id string, force bool) error {
	args := m.Called(ctx, id, force)
	return args.Error(0)
}

func (m *MockContainerRuntime) Stats(ctx context.Context, id string) (runtime.StatsSample, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(runtime.StatsSample), args.Error(1)
}

func (m *MockContainerRuntime) Host() string {
	return m.HostName
}

var _ runtime.ContainerRuntime = (*MockContainerRuntime)(nil)
