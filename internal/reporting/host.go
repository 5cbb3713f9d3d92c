package reporting

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine a report was produced on, so elapsed times can be
// compared across hosts.
type HostInfo struct {
	Hostname         string `json:"hostname" msgpack:"hostname"`
	Platform         string `json:"platform" msgpack:"platform"`
	PhysicalCPUs     int    `json:"physical_cpus" msgpack:"physical_cpus"`
	LogicalCPUs      int    `json:"logical_cpus" msgpack:"logical_cpus"`
	MemoryTotalBytes uint64 `json:"memory_total_bytes" msgpack:"memory_total_bytes"`
	GoVersion        string `json:"go_version" msgpack:"go_version"`
}

// CollectHostInfo gathers what gopsutil can report. Fields it cannot read stay zero,
// except LogicalCPUs which falls back to runtime.NumCPU.
func CollectHostInfo() HostInfo {
	info := HostInfo{
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
		GoVersion:   runtime.Version(),
	}
	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		if h.Platform != "" {
			info.Platform = h.Platform + " " + h.PlatformVersion + " (" + runtime.GOARCH + ")"
		}
	}
	if n, err := cpu.Counts(false); err == nil {
		info.PhysicalCPUs = n
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.LogicalCPUs = n
	}
	if v, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalBytes = v.Total
	}
	return info
}
