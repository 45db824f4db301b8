package metrics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	toolCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procstream",
			Subsystem: "tool",
			Name:      "cpu_percent",
			Help:      "CPU usage of the running tool process.",
		},
	)
	toolMemoryRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procstream",
			Subsystem: "tool",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the running tool process.",
		},
	)
)

// ResourceSample is one CPU/memory reading of a running subprocess.
type ResourceSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// SampleProcess reads CPU and memory usage of pid and publishes the gauges.
func SampleProcess(pid int) (ResourceSample, error) {
	s := ResourceSample{PID: int32(pid), Timestamp: time.Now()}
	if pid <= 0 {
		return s, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return s, fmt.Errorf("failed to create process handle: %w", err)
	}
	// CPUPercent may need a previous call for an accurate value; 0 is acceptable on the first tick
	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	} else {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return s, fmt.Errorf("failed to get memory info: %w", err)
	}
	s.MemoryRSS = mem.RSS
	if n, err := proc.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if regOK.Load() {
		toolCPUPercent.Set(s.CPUPercent)
		toolMemoryRSS.Set(float64(s.MemoryRSS))
	}
	return s, nil
}

// ResetProcessGauges zeroes the tool gauges once nothing is running.
func ResetProcessGauges() {
	if regOK.Load() {
		toolCPUPercent.Set(0)
		toolMemoryRSS.Set(0)
	}
}
