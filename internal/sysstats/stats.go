// Package sysstats samples resource usage of the gateway process and its
// host for the health endpoint.
package sysstats

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const mb = 1024.0 * 1024.0

// Process describes the gateway process itself.
type Process struct {
	RSSMB      float64 `json:"rssMB"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

// Host describes the machine the gateway runs on. Zero values mean the
// metric could not be read.
type Host struct {
	RAMUsedMB   float64 `json:"ramUsedMB"`
	RAMTotalMB  float64 `json:"ramTotalMB"`
	DiskUsedGB  float64 `json:"diskUsedGB"`
	DiskTotalGB float64 `json:"diskTotalGB"`
}

// Stats is one sample.
type Stats struct {
	Process Process `json:"process"`
	Host    Host    `json:"host"`
}

// Collector samples the current process. Reads are cheap and never sleep,
// so it can be called from an HTTP handler.
type Collector struct {
	proc     *process.Process
	diskPath string
	logger   *slog.Logger
}

// NewCollector attaches to the running process.
func NewCollector(logger *slog.Logger) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open own process: %w", err)
	}
	return &Collector{proc: proc, diskPath: "/", logger: logger}, nil
}

// Process samples the gateway process. CPU is the average since process
// start.
func (c *Collector) Process() (Process, error) {
	p := Process{Goroutines: runtime.NumGoroutine()}

	memInfo, err := c.proc.MemoryInfo()
	if err != nil {
		return p, fmt.Errorf("read process memory: %w", err)
	}
	p.RSSMB = float64(memInfo.RSS) / mb

	cpu, err := c.proc.CPUPercent()
	if err != nil {
		return p, fmt.Errorf("read process cpu: %w", err)
	}
	p.CPUPercent = cpu
	return p, nil
}

// Host samples machine-wide memory and disk usage. Failures are logged and
// leave the metric at zero.
func (c *Collector) Host() Host {
	var h Host

	// Used = Total - Available. Linux page cache counts as available.
	if vMem, err := mem.VirtualMemory(); err == nil {
		h.RAMUsedMB = float64(vMem.Total-vMem.Available) / mb
		h.RAMTotalMB = float64(vMem.Total) / mb
	} else {
		c.logger.Warn("Cannot read host memory", "error", err)
	}

	if dStat, err := disk.Usage(c.diskPath); err == nil {
		h.DiskUsedGB = float64(dStat.Used) / mb / 1024.0
		h.DiskTotalGB = float64(dStat.Total) / mb / 1024.0
	} else {
		c.logger.Warn("Cannot read disk usage", "path", c.diskPath, "error", err)
	}
	return h
}

// Collect takes a full sample. A process read error is logged and the
// partial sample is still returned.
func (c *Collector) Collect() Stats {
	p, err := c.Process()
	if err != nil {
		c.logger.Warn("Cannot sample process", "error", err)
	}
	return Stats{Process: p, Host: c.Host()}
}
