package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	bencherrors "dockbench/internal/errors"
	"dockbench/internal/runtime/runtimetest"
	"dockbench/pkg/benchmark"
	"dockbench/pkg/runtime"
)

func testOptions() Options {
	return Options{
		ReadinessTimeout: 300 * time.Millisecond,
		InitialInterval:  5 * time.Millisecond,
		MaxInterval:      20 * time.Millisecond,
		StopTimeout:      time.Second,
	}
}

func postgresConfig() benchmark.ImageConfig {
	return benchmark.ImageConfig{
		Image:  "postgres:16",
		DBType: "postgresql",
		Driver: "pgx",
		Port:   5432,
		Env:    benchmark.Env{"POSTGRES_PASSWORD": "secret"},
	}
}

func okProbe(context.Context, string, int) error { return nil }

func TestContainerName(t *testing.T) {
	tests := []struct {
		image string
		want  string
	}{
		{"postgres:16", "postgres_16_bench"},
		{"bitnami/redis:7.2", "bitnami_redis_7.2_bench"},
		{"registry.local:5000/mysql@sha256:abc", "registry.local_5000_mysql_sha256_abc_bench"},
		{"", "db_bench"},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerName(tt.image))
		})
	}
}

func TestManager_AcquireNewContainer(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(false, nil)
	rt.On("PullImage", mock.Anything, "postgres:16").Return(nil)
	rt.On("FindContainers", mock.Anything, runtime.Filter{Name: "postgres_16_bench"}).
		Return([]runtime.ContainerInfo{{ID: "stale123", State: "exited", Labels: map[string]string{LabelManaged: "true"}}}, nil)
	rt.On("RemoveContainer", mock.Anything, "stale123", true).Return(nil)
	rt.On("CreateContainer", mock.Anything, mock.MatchedBy(func(opts runtime.CreateOptions) bool {
		return opts.Name == "postgres_16_bench" &&
			opts.ContainerPort == 5432 && opts.HostPort == 5432 &&
			opts.EnvVars["POSTGRES_PASSWORD"] == "secret" &&
			opts.Labels[LabelManaged] == "true" && opts.Labels[LabelDBType] == "postgresql"
	})).Return("abc123", nil)
	rt.On("StartContainer", mock.Anything, "abc123").Return(nil)
	rt.On("InspectContainer", mock.Anything, "abc123").Return(runtime.ContainerInfo{ID: "abc123", State: "running", Running: true}, nil)

	probes := 0
	probe := func(_ context.Context, host string, port int) error {
		probes++
		assert.Equal(t, "localhost", host)
		assert.Equal(t, 5432, port)
		if probes < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	m := NewManager(rt, testOptions())
	h, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, probe)
	require.NoError(t, err)

	assert.Equal(t, "abc123", h.ContainerID)
	assert.Equal(t, "postgres_16_bench", h.Name)
	assert.True(t, h.Created)
	assert.Equal(t, 3, probes)
	rt.AssertExpectations(t)
}

func TestManager_AcquireKeepsForeignContainers(t *testing.T) {
	tests := []struct {
		name  string
		stale runtime.ContainerInfo
		cause string
	}{
		{
			name:  "running managed container",
			stale: runtime.ContainerInfo{ID: "busy1", State: "running", Running: true, Labels: map[string]string{LabelManaged: "true"}},
			cause: "postgres_16_bench is running",
		},
		{
			name:  "stopped unmanaged container",
			stale: runtime.ContainerInfo{ID: "theirs1", State: "exited"},
			cause: "was not created by dockbench",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := runtimetest.NewMockContainerRuntime()
			rt.On("ImageExists", mock.Anything, "postgres:16").Return(true, nil)
			rt.On("FindContainers", mock.Anything, runtime.Filter{Name: "postgres_16_bench"}).
				Return([]runtime.ContainerInfo{tt.stale}, nil)

			m := NewManager(rt, testOptions())
			_, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, okProbe)

			require.Error(t, err)
			assert.True(t, errors.Is(err, bencherrors.ErrProvisionFailed))
			assert.Contains(t, err.Error(), tt.cause)
			rt.AssertNotCalled(t, "RemoveContainer", mock.Anything, mock.Anything, mock.Anything)
			rt.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
		})
	}
}

func TestManager_AcquireReadinessTimeout(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(true, nil)
	rt.On("FindContainers", mock.Anything, mock.Anything).Return([]runtime.ContainerInfo{}, nil)
	rt.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	rt.On("StartContainer", mock.Anything, "abc123").Return(nil)
	rt.On("InspectContainer", mock.Anything, "abc123").Return(runtime.ContainerInfo{ID: "abc123", State: "running", Running: true}, nil)
	rt.On("RemoveContainer", mock.Anything, "abc123", true).Return(nil)

	probe := func(context.Context, string, int) error { return errors.New("connection refused") }

	m := NewManager(rt, testOptions())
	h, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, probe)

	assert.Nil(t, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, bencherrors.ErrProvisionFailed)
	assert.Contains(t, err.Error(), "connection refused")
	rt.AssertNotCalled(t, "PullImage", mock.Anything, mock.Anything)
	rt.AssertCalled(t, "RemoveContainer", mock.Anything, "abc123", true)
}

func TestManager_AcquireContainerExits(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(true, nil)
	rt.On("FindContainers", mock.Anything, mock.Anything).Return(nil, nil)
	rt.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	rt.On("StartContainer", mock.Anything, "abc123").Return(nil)
	rt.On("InspectContainer", mock.Anything, "abc123").Return(runtime.ContainerInfo{ID: "abc123", State: "exited"}, nil)
	rt.On("RemoveContainer", mock.Anything, "abc123", true).Return(nil)

	m := NewManager(rt, testOptions())
	_, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, okProbe)

	require.Error(t, err)
	assert.ErrorIs(t, err, bencherrors.ErrProvisionFailed)
	assert.ErrorIs(t, err, errContainerExited)
	rt.AssertNumberOfCalls(t, "InspectContainer", 1)
}

func TestManager_AcquireStartFailure(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(true, nil)
	rt.On("FindContainers", mock.Anything, mock.Anything).Return(nil, nil)
	rt.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	rt.On("StartContainer", mock.Anything, "abc123").Return(errors.New("port is already allocated"))
	rt.On("RemoveContainer", mock.Anything, "abc123", true).Return(nil)

	m := NewManager(rt, testOptions())
	_, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, okProbe)

	require.Error(t, err)
	assert.ErrorIs(t, err, bencherrors.ErrProvisionFailed)
	var benchErr *bencherrors.Error
	require.ErrorAs(t, err, &benchErr)
	assert.Contains(t, benchErr.Suggestion, "5432")
}

func TestManager_AcquirePullFailure(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(false, nil)
	rt.On("PullImage", mock.Anything, "postgres:16").Return(errors.New("manifest unknown"))

	m := NewManager(rt, testOptions())
	_, err := m.Acquire(context.Background(), postgresConfig(), benchmark.NewContainer, okProbe)

	assert.ErrorIs(t, err, bencherrors.ErrProvisionFailed)
	rt.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
}

func TestManager_AcquireExisting(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*runtimetest.MockContainerRuntime)
		wantID    string
		wantErr   error
	}{
		{
			name: "found by name",
			setupMock: func(m *runtimetest.MockContainerRuntime) {
				m.On("FindContainers", mock.Anything, runtime.Filter{Name: "postgres_16_bench", RunningOnly: true}).
					Return([]runtime.ContainerInfo{{ID: "byname", Name: "postgres_16_bench", Running: true}}, nil)
			},
			wantID: "byname",
		},
		{
			name: "found by image and port",
			setupMock: func(m *runtimetest.MockContainerRuntime) {
				m.On("FindContainers", mock.Anything, runtime.Filter{Name: "postgres_16_bench", RunningOnly: true}).Return(nil, nil)
				m.On("FindContainers", mock.Anything, runtime.Filter{Image: "postgres:16", RunningOnly: true}).
					Return([]runtime.ContainerInfo{
						{ID: "otherport", Running: true, Ports: map[int]int{5432: 15432}},
						{ID: "match", Running: true, Ports: map[int]int{5432: 5432}},
					}, nil)
			},
			wantID: "match",
		},
		{
			name: "image running on a different port",
			setupMock: func(m *runtimetest.MockContainerRuntime) {
				m.On("FindContainers", mock.Anything, runtime.Filter{Name: "postgres_16_bench", RunningOnly: true}).Return(nil, nil)
				m.On("FindContainers", mock.Anything, runtime.Filter{Image: "postgres:16", RunningOnly: true}).
					Return([]runtime.ContainerInfo{{ID: "otherport", Running: true, Ports: map[int]int{5432: 15432}}}, nil)
			},
			wantErr: bencherrors.ErrNotFound,
		},
		{
			name: "nothing running",
			setupMock: func(m *runtimetest.MockContainerRuntime) {
				m.On("FindContainers", mock.Anything, mock.Anything).Return(nil, nil)
			},
			wantErr: bencherrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := runtimetest.NewMockContainerRuntime()
			tt.setupMock(rt)
			rt.On("InspectContainer", mock.Anything, mock.Anything).Return(runtime.ContainerInfo{State: "running", Running: true}, nil)

			m := NewManager(rt, testOptions())
			h, err := m.Acquire(context.Background(), postgresConfig(), benchmark.ConnectExisting, okProbe)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, bencherrors.IsFatal(err))
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, h.ContainerID)
			assert.False(t, h.Created)
			rt.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
		})
	}
}

func TestManager_AcquireCancelled(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	rt.On("ImageExists", mock.Anything, "postgres:16").Return(true, nil)
	rt.On("FindContainers", mock.Anything, mock.Anything).Return(nil, nil)
	rt.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	rt.On("StartContainer", mock.Anything, "abc123").Return(nil)
	rt.On("InspectContainer", mock.Anything, "abc123").Return(runtime.ContainerInfo{State: "created"}, nil)
	rt.On("RemoveContainer", mock.Anything, "abc123", true).Return(nil)

	opts := testOptions()
	opts.ReadinessTimeout = 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewManager(rt, opts).Acquire(ctx, postgresConfig(), benchmark.NewContainer, okProbe)

	assert.ErrorIs(t, err, bencherrors.ErrProvisionFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManager_Release(t *testing.T) {
	handle := &Handle{ContainerID: "abc123", Name: "postgres_16_bench"}

	tests := []struct {
		name        string
		stop        bool
		remove      bool
		stopErr     error
		removeErr   error
		wantStop    bool
		wantRemove  bool
		wantWarning bool
	}{
		{name: "keep running", stop: false, remove: false},
		{name: "remove without stop never removes", stop: false, remove: true},
		{name: "stop only", stop: true, remove: false, wantStop: true},
		{name: "stop and remove", stop: true, remove: true, wantStop: true, wantRemove: true},
		{name: "stop failure skips remove", stop: true, remove: true, stopErr: errors.New("daemon unreachable"), wantStop: true, wantWarning: true},
		{name: "remove failure", stop: true, remove: true, removeErr: errors.New("removal in progress"), wantStop: true, wantRemove: true, wantWarning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := runtimetest.NewMockContainerRuntime()
			rt.On("StopContainer", mock.Anything, "abc123", time.Second).Return(tt.stopErr)
			rt.On("RemoveContainer", mock.Anything, "abc123", false).Return(tt.removeErr)

			err := NewManager(rt, testOptions()).Release(context.Background(), handle, tt.stop, tt.remove)

			if tt.wantWarning {
				assert.ErrorIs(t, err, bencherrors.ErrTeardown)
				assert.False(t, bencherrors.IsFatal(err))
			} else {
				assert.NoError(t, err)
			}
			if tt.wantStop {
				rt.AssertCalled(t, "StopContainer", mock.Anything, "abc123", time.Second)
			} else {
				rt.AssertNotCalled(t, "StopContainer", mock.Anything, mock.Anything, mock.Anything)
			}
			if tt.wantRemove {
				rt.AssertCalled(t, "RemoveContainer", mock.Anything, "abc123", false)
			} else {
				rt.AssertNotCalled(t, "RemoveContainer", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestManager_ReleaseNilHandle(t *testing.T) {
	rt := runtimetest.NewMockContainerRuntime()
	m := NewManager(rt, testOptions())
	assert.NoError(t, m.Release(context.Background(), nil, true, true))
	assert.NoError(t, m.Release(context.Background(), &Handle{Image: "keinos/sqlite3:3.46"}, true, true))
	rt.AssertNotCalled(t, "StopContainer", mock.Anything, mock.Anything, mock.Anything)
}
