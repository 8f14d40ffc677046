// Package system reports host resource usage for the system endpoint.
package system

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Snapshot is a point-in-time view of host resource usage. Sources
// that could not be probed leave their fields at the zero value.
type Snapshot struct {
	Hostname      string      `json:"hostname"`
	OS            string      `json:"os"`
	Arch          string      `json:"arch"`
	UptimeSeconds uint64      `json:"uptime_seconds"`
	CPU           CPUInfo     `json:"cpu"`
	Load          LoadInfo    `json:"load"`
	Memory        MemoryInfo  `json:"memory"`
	Disks         []DiskInfo  `json:"disks,omitempty"`
	Network       NetworkInfo `json:"network"`
	CollectedAt   time.Time   `json:"collected_at"`
}

// CPUInfo describes the processor and its current utilization.
type CPUInfo struct {
	Model   string  `json:"model,omitempty"`
	Cores   int     `json:"cores"`
	Percent float64 `json:"percent"`
}

// LoadInfo is the 1/5/15 minute load average.
type LoadInfo struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// MemoryInfo is physical memory usage.
type MemoryInfo struct {
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	Percent    float64 `json:"percent"`
}

// DiskInfo is filesystem usage for one library root.
type DiskInfo struct {
	Path       string  `json:"path"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	Percent    float64 `json:"percent"`
}

// NetworkInfo is aggregate interface counters plus transfer rates
// derived from the previous sample.
type NetworkInfo struct {
	BytesSent   uint64  `json:"bytes_sent"`
	BytesRecv   uint64  `json:"bytes_recv"`
	SendRateBps float64 `json:"send_rate_bps"`
	RecvRateBps float64 `json:"recv_rate_bps"`
}

// Collector samples host statistics. Network rates compare against the
// previous sample, so one Collector should live for the process
// lifetime. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	hostname string
	cpuModel string

	lastNet     *net.IOCountersStat
	lastNetTime time.Time
}

// NewCollector creates a collector. The first Collect reports zero
// network rates because there is no previous sample yet.
func NewCollector() *Collector {
	hostname, _ := os.Hostname()
	return &Collector{hostname: hostname}
}

// Collect gathers a snapshot. Probes are best effort: a failing source
// zeroes its fields instead of failing the snapshot. Disk usage is
// reported for each root that resolves.
func (c *Collector) Collect(ctx context.Context, roots []string) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Snapshot{
		Hostname:    c.hostname,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CollectedAt: time.Now().UTC(),
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snap.UptimeSeconds = uptime
	}

	// The CPU model never changes; probe it once and reuse.
	if c.cpuModel == "" {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			c.cpuModel = infos[0].ModelName
		}
	}
	snap.CPU.Model = c.cpuModel

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPU.Cores = cores
	}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPU.Percent = percents[0]
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load = LoadInfo{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Memory = MemoryInfo{
			TotalBytes: vm.Total,
			UsedBytes:  vm.Used,
			Percent:    vm.UsedPercent,
		}
	}

	for _, root := range roots {
		usage, err := disk.UsageWithContext(ctx, root)
		if err != nil {
			continue
		}
		snap.Disks = append(snap.Disks, DiskInfo{
			Path:       root,
			TotalBytes: usage.Total,
			UsedBytes:  usage.Used,
			FreeBytes:  usage.Free,
			Percent:    usage.UsedPercent,
		})
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		cur := counters[0]
		now := time.Now()
		snap.Network.BytesSent = cur.BytesSent
		snap.Network.BytesRecv = cur.BytesRecv
		if c.lastNet != nil {
			if elapsed := now.Sub(c.lastNetTime).Seconds(); elapsed > 0 {
				snap.Network.SendRateBps = rate(cur.BytesSent, c.lastNet.BytesSent, elapsed)
				snap.Network.RecvRateBps = rate(cur.BytesRecv, c.lastNet.BytesRecv, elapsed)
			}
		}
		c.lastNet = &cur
		c.lastNetTime = now
	}

	return snap
}

// rate converts a counter delta to bytes per second. A counter that
// went backwards (reset, interface churn) yields zero.
func rate(cur, prev uint64, elapsed float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed
}
