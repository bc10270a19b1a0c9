// Package metrics measures execution time and container resource usage of a
// single step.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dockbench/pkg/runtime"
)

// DefaultSampleInterval is the resource polling cadence.
const DefaultSampleInterval = 250 * time.Millisecond

const finalSampleTimeout = 2 * time.Second

// Sampler reads one resource accounting snapshot of a container.
type Sampler interface {
	Stats(ctx context.Context, id string) (runtime.StatsSample, error)
}

// Measurement is what one wrapped execution produced.
type Measurement struct {
	ExecTime time.Duration
	// MemoryBytes is the peak resident memory observed.
	MemoryBytes uint64
	// CPUPercent is the peak usage between two samples, 100 per fully used
	// core, so it ranges up to 100 * online CPUs.
	CPUPercent   float64
	Samples      int
	SampleErrors int
}

// Collector wraps step executions with timing and resource sampling. Resource
// figures are best effort: when no sample succeeds during a step the last
// known values of the same container are reported instead.
type Collector struct {
	sampler  Sampler
	interval time.Duration

	mu   sync.Mutex
	last map[string]usage
}

// usage is the last peak pair measured for a container.
type usage struct {
	memory uint64
	cpu    float64
}

// NewCollector returns a Collector. A nil sampler disables resource sampling.
func NewCollector(sampler Sampler, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Collector{sampler: sampler, interval: interval, last: make(map[string]usage)}
}

// Measure runs fn and samples containerID while it runs. The error is fn's.
func (c *Collector) Measure(ctx context.Context, containerID string, fn func(context.Context) error) (Measurement, error) {
	if c == nil || c.sampler == nil || containerID == "" {
		start := time.Now()
		err := fn(ctx)
		return Measurement{ExecTime: time.Since(start)}, err
	}

	w := &window{}
	w.observe(c.sampler.Stats(ctx, containerID))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.observe(c.sampler.Stats(ctx, containerID))
			}
		}
	}()

	start := time.Now()
	err := fn(ctx)
	execTime := time.Since(start)

	close(done)
	wg.Wait()

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSampleTimeout)
	w.observe(c.sampler.Stats(finalCtx, containerID))
	cancel()

	m := Measurement{
		ExecTime:     execTime,
		Samples:      w.ok,
		SampleErrors: w.failed,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w.ok == 0 {
		prev := c.last[containerID]
		slog.Debug("No resource samples, reusing last known values", "container", containerID, "errors", w.failed)
		m.MemoryBytes = prev.memory
		m.CPUPercent = prev.cpu
		return m, err
	}
	m.MemoryBytes = w.peakMemory
	m.CPUPercent = w.peakCPU
	c.last[containerID] = usage{memory: m.MemoryBytes, cpu: m.CPUPercent}
	return m, err
}

// window accumulates samples of one execution.
type window struct {
	mu         sync.Mutex
	prev       *runtime.StatsSample
	peakMemory uint64
	peakCPU    float64
	ok         int
	failed     int
}

func (w *window) observe(s runtime.StatsSample, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.failed++
		slog.Debug("Resource sample failed", "error", err)
		return
	}
	w.ok++
	w.peakMemory = max(w.peakMemory, s.MemoryUsage)
	if w.prev != nil {
		w.peakCPU = max(w.peakCPU, CPUPercent(*w.prev, s))
	}
	w.prev = &s
}

// CPUPercent follows the docker stats convention:
// cpuDelta / systemDelta * onlineCPUs * 100.
func CPUPercent(prev, cur runtime.StatsSample) float64 {
	if cur.CPUTotalUsage < prev.CPUTotalUsage || cur.SystemCPUUsage <= prev.SystemCPUUsage {
		return 0
	}
	cpuDelta := float64(cur.CPUTotalUsage - prev.CPUTotalUsage)
	systemDelta := float64(cur.SystemCPUUsage - prev.SystemCPUUsage)
	online := float64(cur.OnlineCPUs)
	if online == 0 {
		online = 1
	}
	return cpuDelta / systemDelta * online * 100
}
