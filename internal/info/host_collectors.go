package info

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/net"
	"github.com/shirou/gopsutil/process"
)

// MemoryCollector reports virtual memory usage.
type MemoryCollector struct{}

func (m *MemoryCollector) Name() string { return "memory" }

func (m *MemoryCollector) Collect(ctx context.Context) (any, error) {
	stats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total":        stats.Total,
		"available":    stats.Available,
		"used":         stats.Used,
		"used_percent": stats.UsedPercent,
	}, nil
}

func (m *MemoryCollector) Description() string {
	return "Total, available and used virtual memory in bytes."
}

// CPUCollector reports core count and current utilization.
type CPUCollector struct{}

func (c *CPUCollector) Name() string { return "cpu" }

func (c *CPUCollector) Collect(ctx context.Context) (any, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"logical_cores": cores}

	// zero interval compares against the previous call, no sampling delay
	if percentages, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percentages) > 0 {
		out["usage_percent"] = percentages[0]
	}
	return out, nil
}

func (c *CPUCollector) Description() string {
	return "Logical core count and utilization across all cores."
}

// DiskCollector reports usage of the filesystem holding Path.
type DiskCollector struct {
	Path string
}

func (d *DiskCollector) Name() string { return "disk" }

func (d *DiskCollector) Collect(ctx context.Context) (any, error) {
	stats, err := disk.UsageWithContext(ctx, d.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"path":         stats.Path,
		"total":        stats.Total,
		"free":         stats.Free,
		"used_percent": stats.UsedPercent,
	}, nil
}

func (d *DiskCollector) Description() string {
	return "Disk space of the root filesystem."
}

// HostCollector reports the operating system and board identification.
type HostCollector struct{}

func (h *HostCollector) Name() string { return "host" }

func (h *HostCollector) Collect(ctx context.Context) (any, error) {
	stats, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"hostname":         stats.Hostname,
		"os":               stats.OS,
		"platform":         stats.Platform,
		"platform_version": stats.PlatformVersion,
		"kernel_version":   stats.KernelVersion,
		"kernel_arch":      stats.KernelArch,
		"uptime_s":         stats.Uptime,
	}, nil
}

func (h *HostCollector) Description() string {
	return "Hostname, operating system, kernel and host uptime."
}

// NetworkCollector reports total bytes moved across all interfaces.
type NetworkCollector struct{}

func (n *NetworkCollector) Name() string { return "network" }

func (n *NetworkCollector) Collect(ctx context.Context) (any, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return map[string]any{}, nil
	}
	return map[string]any{
		"bytes_sent": counters[0].BytesSent,
		"bytes_recv": counters[0].BytesRecv,
	}, nil
}

func (n *NetworkCollector) Description() string {
	return "Bytes sent and received since boot."
}

// ProcessCollector reports resource usage of the agent process itself.
type ProcessCollector struct{}

func (p *ProcessCollector) Name() string { return "process" }

func (p *ProcessCollector) Collect(ctx context.Context) (any, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	out := map[string]any{"pid": proc.Pid}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		out["rss"] = memInfo.RSS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		out["threads"] = threads
	}
	return out, nil
}

func (p *ProcessCollector) Description() string {
	return "Resident memory and thread count of the agent process."
}

// RuntimeCollector reports Go runtime statistics. It never fails.
type RuntimeCollector struct{}

func (r *RuntimeCollector) Name() string { return "runtime" }

func (r *RuntimeCollector) Collect(ctx context.Context) (any, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]any{
		"go_version": runtime.Version(),
		"goos":       runtime.GOOS,
		"goarch":     runtime.GOARCH,
		"goroutines": runtime.NumGoroutine(),
		"mem_alloc":  ms.Alloc,
		"mem_sys":    ms.Sys,
	}, nil
}

func (r *RuntimeCollector) Description() string {
	return "Go version, goroutine count and heap allocation."
}
